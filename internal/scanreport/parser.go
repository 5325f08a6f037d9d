// Package scanreport parses uploaded scan reports into a normalized in-memory
// model of source tables, columns, and sampled value frequencies.
//
// The report is a CSV file with the fixed header
//
//	table,column,type,nullable,value,frequency
//
// Rows with an empty value cell define a column; rows carrying a value and a
// frequency attach one sampled value to an already-defined column. Tables and
// columns keep their order of first appearance.
package scanreport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"mapping-service/internal/apperrors"
)

// ValueFreq is one sampled (value, count) pair for a column.
type ValueFreq struct {
	Value     string
	Frequency int64
}

// ReportField is one column described by the scan report.
type ReportField struct {
	Name     string
	Type     string
	Nullable bool
	Samples  []ValueFreq
}

// ReportTable is one source table described by the scan report.
type ReportTable struct {
	Name   string
	Fields []ReportField
}

// Report is the normalized parse result of one scan report.
type Report struct {
	Tables []ReportTable
}

var reportHeader = []string{"table", "column", "type", "nullable", "value", "frequency"}

// Parse reads a scan report stream. Structural problems surface as
// KindValidation errors so the caller can answer with a 400.
func Parse(r io.Reader) (*Report, error) {
	reader := csv.NewReader(r)
	// Tolerate short rows and loose quoting the way real-world exports look.
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperrors.Validationf("non-standard structure of report: empty file")
		}
		return nil, apperrors.Wrap(apperrors.KindValidation, "non-standard structure of report: unreadable header", err)
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	report := &Report{}
	tableIdx := map[string]int{}
	fieldIdx := map[string]map[string]int{}

	rowNum := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rowNum++
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindValidation,
				fmt.Sprintf("non-standard structure of report: row %d", rowNum), err)
		}
		row = normalizeRow(row, len(reportHeader))

		tableName := row[0]
		columnName := row[1]
		if tableName == "" || columnName == "" {
			return nil, apperrors.Validationf("non-standard structure of report: row %d has no table or column name", rowNum)
		}

		if row[4] == "" {
			// Definition row.
			if _, ok := tableIdx[tableName]; !ok {
				tableIdx[tableName] = len(report.Tables)
				fieldIdx[tableName] = map[string]int{}
				report.Tables = append(report.Tables, ReportTable{Name: tableName})
			}
			ti := tableIdx[tableName]
			if _, dup := fieldIdx[tableName][columnName]; dup {
				return nil, apperrors.Validationf("non-standard structure of report: column %s.%s defined twice", tableName, columnName)
			}
			nullable, err := parseNullable(row[3])
			if err != nil {
				return nil, apperrors.Validationf("non-standard structure of report: row %d: %v", rowNum, err)
			}
			fieldIdx[tableName][columnName] = len(report.Tables[ti].Fields)
			report.Tables[ti].Fields = append(report.Tables[ti].Fields, ReportField{
				Name:     columnName,
				Type:     row[2],
				Nullable: nullable,
			})
			continue
		}

		// Sample row. The column must have been defined above it.
		ti, ok := tableIdx[tableName]
		if !ok {
			return nil, apperrors.Validationf("non-standard structure of report: sample for unknown table %s", tableName)
		}
		fi, ok := fieldIdx[tableName][columnName]
		if !ok {
			return nil, apperrors.Validationf("non-standard structure of report: sample for unknown column %s.%s", tableName, columnName)
		}
		freq, err := strconv.ParseInt(strings.TrimSpace(row[5]), 10, 64)
		if err != nil {
			return nil, apperrors.Validationf("non-standard structure of report: row %d has a non-numeric frequency", rowNum)
		}
		field := &report.Tables[ti].Fields[fi]
		field.Samples = append(field.Samples, ValueFreq{Value: row[4], Frequency: freq})
	}

	if len(report.Tables) == 0 {
		return nil, apperrors.Validationf("non-standard structure of report: no tables described")
	}
	return report, nil
}

func checkHeader(header []string) error {
	if len(header) < len(reportHeader) {
		return apperrors.Validationf("non-standard structure of report: expected header %s", strings.Join(reportHeader, ","))
	}
	for i, want := range reportHeader {
		if !strings.EqualFold(strings.TrimSpace(header[i]), want) {
			return apperrors.Validationf("non-standard structure of report: expected header %s", strings.Join(reportHeader, ","))
		}
	}
	return nil
}

// normalizeRow pads short rows with empty cells and truncates long ones, then
// trims surrounding whitespace.
func normalizeRow(row []string, width int) []string {
	if len(row) < width {
		padded := make([]string, width)
		copy(padded, row)
		row = padded
	} else if len(row) > width {
		row = row[:width]
	}
	for i := range row {
		row[i] = strings.TrimSpace(row[i])
	}
	return row
}

func parseNullable(token string) (bool, error) {
	switch strings.ToLower(token) {
	case "", "true", "yes", "1":
		return true, nil
	case "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("unrecognized nullable token %q", token)
}
