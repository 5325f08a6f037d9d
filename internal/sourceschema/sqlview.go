package sourceschema

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mapping-service/internal/apperrors"
	"mapping-service/internal/models"
)

// CheckViewSQL runs a user-authored SQL view against a sandbox database
// seeded with the user's source schema and sampled values, and returns the
// resulting column metadata. A SQL error in the user's statement comes back
// as a KindValidation failure; sandbox setup failures stay KindInternal.
func (s *Service) CheckViewSQL(username string, etlMappingID uuid.UUID, sql string) ([]models.ColumnInfo, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, apperrors.Validationf("sql must not be empty")
	}

	sandbox, cleanup, err := s.openSandbox(etlMappingID)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	rows, err := sandbox.Raw(sql).Rows()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "invalid sql", err)
	}
	defer rows.Close()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "invalid sql", err)
	}

	info := make([]models.ColumnInfo, 0, len(columnTypes))
	for _, ct := range columnTypes {
		info = append(info, models.ColumnInfo{
			Name: ct.Name(),
			Type: normalizeSandboxType(ct.DatabaseTypeName()),
		})
	}
	return info, nil
}

// RunSQLTransformation validates a SQL transformation the same way a view is
// checked: it must parse and execute against the current source data.
func (s *Service) RunSQLTransformation(username string, etlMappingID uuid.UUID, sql string) ([]models.ColumnInfo, error) {
	return s.CheckViewSQL(username, etlMappingID, sql)
}

// openSandbox builds an in-memory sqlite database holding the mapping's
// source tables with their sampled values.
func (s *Service) openSandbox(etlMappingID uuid.UUID) (*gorm.DB, func(), error) {
	tables, err := s.LoadByMapping(etlMappingID)
	if err != nil {
		return nil, nil, err
	}
	if len(tables) == 0 {
		return nil, nil, apperrors.NotFoundf("no source schema for ETL mapping %s", etlMappingID)
	}

	sandbox, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.KindInternal, "failed to open sql sandbox", err)
	}
	// A pooled second connection would see its own empty in-memory database.
	if sqlDB, err := sandbox.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	cleanup := func() {
		if sqlDB, err := sandbox.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	for _, table := range tables {
		if err := s.seedSandboxTable(sandbox, etlMappingID, table); err != nil {
			cleanup()
			return nil, nil, err
		}
	}
	return sandbox, cleanup, nil
}

func (s *Service) seedSandboxTable(sandbox *gorm.DB, etlMappingID uuid.UUID, table models.SourceTable) error {
	if len(table.Fields) == 0 {
		return nil
	}

	columnDefs := make([]string, 0, len(table.Fields))
	for _, field := range table.Fields {
		columnDefs = append(columnDefs, fmt.Sprintf("%s %s", quoteIdent(field.Name), sandboxColumnType(field.Type)))
	}
	createStmt := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table.Name), strings.Join(columnDefs, ", "))
	if err := sandbox.Exec(createStmt).Error; err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "failed to seed sql sandbox", err)
	}

	// Sampled values are stored per column, not per row. Rows are assembled
	// column-wise: row i carries each column's i-th sample or NULL.
	samplesByField := map[string][]string{}
	maxRows := 0
	for _, field := range table.Fields {
		var samples []models.ScanSample
		err := s.db.
			Where("etl_mapping_id = ? AND table_name = ? AND field_name = ?", etlMappingID, table.Name, field.Name).
			Order("rank").
			Find(&samples).Error
		if err != nil {
			return apperrors.Wrap(apperrors.KindInternal, "failed to load samples for sandbox", err)
		}
		values := make([]string, 0, len(samples))
		for _, sample := range samples {
			values = append(values, sample.Value)
		}
		samplesByField[field.Name] = values
		if len(values) > maxRows {
			maxRows = len(values)
		}
	}

	columns := make([]string, 0, len(table.Fields))
	for _, field := range table.Fields {
		columns = append(columns, quoteIdent(field.Name))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	insertStmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table.Name), strings.Join(columns, ", "), placeholders)

	for i := 0; i < maxRows; i++ {
		args := make([]interface{}, 0, len(table.Fields))
		for _, field := range table.Fields {
			values := samplesByField[field.Name]
			if i < len(values) {
				args = append(args, values[i])
			} else {
				args = append(args, nil)
			}
		}
		if err := sandbox.Exec(insertStmt, args...).Error; err != nil {
			return apperrors.Wrap(apperrors.KindInternal, "failed to seed sql sandbox", err)
		}
	}
	return nil
}

func sandboxColumnType(fieldType string) string {
	switch fieldType {
	case "integer":
		return "INTEGER"
	case "float":
		return "REAL"
	default:
		return "TEXT"
	}
}

func normalizeSandboxType(dbType string) string {
	switch strings.ToUpper(dbType) {
	case "INTEGER", "INT":
		return "integer"
	case "REAL", "FLOAT", "NUMERIC":
		return "float"
	default:
		return "string"
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
