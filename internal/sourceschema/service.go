// Package sourceschema builds and serves the editable source schema derived
// from a scan report, and validates user-authored SQL views against it.
package sourceschema

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"mapping-service/internal/apperrors"
	"mapping-service/internal/filestore"
	"mapping-service/internal/models"
	"mapping-service/internal/scanreport"
)

// topValueCount is how many sampled values get_column_info returns.
const topValueCount = 10

// Service builds, persists, and queries source schemas.
type Service struct {
	db    *gorm.DB
	files *filestore.Store
}

// NewService creates a source schema service.
func NewService(db *gorm.DB, files *filestore.Store) *Service {
	return &Service{db: db, files: files}
}

// CreateByScanReport persists the parsed report as the source schema of the
// given ETL mapping. The write is all-or-nothing: any failure leaves no
// partial tables, fields, or samples behind.
func (s *Service) CreateByScanReport(username string, etlMappingID uuid.UUID, report *scanreport.Report) ([]models.SourceTable, error) {
	tables := make([]models.SourceTable, 0, len(report.Tables))

	err := s.db.Transaction(func(tx *gorm.DB) error {
		for ti, reportTable := range report.Tables {
			table := models.SourceTable{
				ID:           uuid.New(),
				EtlMappingID: etlMappingID,
				Name:         reportTable.Name,
				Position:     ti,
			}
			if err := tx.Create(&table).Error; err != nil {
				return err
			}
			for fi, reportField := range reportTable.Fields {
				field := models.SourceField{
					ID:         uuid.New(),
					TableID:    table.ID,
					Name:       reportField.Name,
					Type:       FieldType(reportField.Type),
					IsNullable: reportField.Nullable,
					Position:   fi,
				}
				if err := tx.Create(&field).Error; err != nil {
					return err
				}
				table.Fields = append(table.Fields, field)

				for rank, sample := range reportField.Samples {
					row := models.ScanSample{
						ID:           uuid.New(),
						EtlMappingID: etlMappingID,
						TableName:    reportTable.Name,
						FieldName:    reportField.Name,
						Value:        sample.Value,
						Frequency:    sample.Frequency,
						Rank:         rank,
					}
					if err := tx.Create(&row).Error; err != nil {
						return err
					}
				}
			}
			tables = append(tables, table)
		}
		return nil
	})
	if err != nil {
		slog.Error("source schema persistence failed", "user", username, "etlMappingID", etlMappingID, "error", err)
		return nil, apperrors.Wrap(apperrors.KindInternal, "failed to persist source schema", err)
	}
	return tables, nil
}

// LoadSaved returns the user's persisted schema by name, tables in their
// original order with fields preloaded.
func (s *Service) LoadSaved(username, schemaName string) ([]models.SourceTable, error) {
	var mapping models.EtlMapping
	err := s.db.First(&mapping, "username = ? AND schema_name = ?", username, schemaName).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFoundf("saved schema %s not found for user %s", schemaName, username)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "failed to load saved schema", err)
	}
	return s.LoadByMapping(mapping.ID)
}

// LoadByMapping returns the schema belonging to one ETL mapping.
func (s *Service) LoadByMapping(etlMappingID uuid.UUID) ([]models.SourceTable, error) {
	var tables []models.SourceTable
	err := s.db.
		Preload("Fields", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Where("etl_mapping_id = ?", etlMappingID).
		Order("position").
		Find(&tables).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "failed to load source schema", err)
	}
	return tables, nil
}

// SetViewSQL stores a validated SQL view definition on a source table.
func (s *Service) SetViewSQL(etlMappingID uuid.UUID, tableName, sql string) error {
	res := s.db.Model(&models.SourceTable{}).
		Where("etl_mapping_id = ? AND name = ?", etlMappingID, tableName).
		Update("view_sql", sql)
	if res.Error != nil {
		return apperrors.Wrap(apperrors.KindInternal, "failed to store view SQL", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFoundf("source table %s not found", tableName)
	}
	return nil
}

// GetColumnInfo returns the top-10 most frequent sampled values for one
// column, based on the stored scan-report statistics. A missing report and a
// column absent from the report are distinct not-found failures.
func (s *Service) GetColumnInfo(username string, etlMappingID uuid.UUID, tableName, columnName string) (*models.ColumnInfoResponse, error) {
	var mapping models.EtlMapping
	err := s.db.First(&mapping, "id = ? AND username = ?", etlMappingID, username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFoundf("ETL mapping not found by id %s", etlMappingID)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "failed to load ETL mapping", err)
	}

	// The stored statistics derive from the uploaded report file; if that is
	// gone from storage the statistics cannot be trusted either.
	if mapping.ScanReportID != nil {
		if _, _, err := s.files.Open(*mapping.ScanReportID); err != nil {
			if apperrors.IsKind(err, apperrors.KindNotFound) {
				return nil, apperrors.NotFoundf("report not found")
			}
			return nil, err
		}
	}

	var samples []models.ScanSample
	err = s.db.
		Where("etl_mapping_id = ? AND table_name = ? AND field_name = ?", etlMappingID, tableName, columnName).
		Order("rank").
		Limit(topValueCount).
		Find(&samples).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "failed to load column statistics", err)
	}
	if len(samples) == 0 {
		return nil, apperrors.NotFoundf("column %s.%s not found in report", tableName, columnName)
	}

	resp := &models.ColumnInfoResponse{TableName: tableName, ColumnName: columnName}
	for _, sample := range samples {
		resp.TopValues = append(resp.TopValues, models.ValueFrequency{Value: sample.Value, Frequency: sample.Frequency})
	}
	return resp, nil
}

// FieldType normalizes a raw scanned type token to one of the source field
// type names: string, integer, float, date, time, datetime.
func FieldType(token string) string {
	t := strings.ToLower(strings.TrimSpace(token))
	// Strip length modifiers like varchar(255).
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	switch {
	case t == "":
		return "string"
	case strings.Contains(t, "int"):
		return "integer"
	case strings.Contains(t, "float"), strings.Contains(t, "double"),
		strings.Contains(t, "real"), strings.Contains(t, "numeric"),
		strings.Contains(t, "decimal"), strings.Contains(t, "number"):
		return "float"
	case strings.Contains(t, "timestamp"), strings.Contains(t, "datetime"):
		return "datetime"
	case strings.Contains(t, "date"):
		return "date"
	case strings.Contains(t, "time"):
		return "time"
	default:
		return "string"
	}
}
