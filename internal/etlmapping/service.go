// Package etlmapping manages the per-upload-session records that tie a user's
// scan report to its derived source schema.
package etlmapping

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"mapping-service/internal/apperrors"
	"mapping-service/internal/models"
)

// Service provides CRUD over ETL mapping records.
type Service struct {
	db *gorm.DB
}

// NewService creates a new ETL mapping service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Create inserts a new mapping row for an upload session. The schema name
// defaults to the username, matching the per-user schema convention.
func (s *Service) Create(username, scanReportName string, scanReportID *uuid.UUID) (*models.EtlMapping, error) {
	mapping := models.EtlMapping{
		ID:             uuid.New(),
		Username:       username,
		SchemaName:     username,
		ScanReportName: scanReportName,
		ScanReportID:   scanReportID,
	}
	if err := s.db.Create(&mapping).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "failed to create ETL mapping", err)
	}
	return &mapping, nil
}

// CreateByRequest inserts a mapping row copying the scan-report reference the
// client already holds from a previous upload.
func (s *Service) CreateByRequest(username string, req models.CreateSchemaRequest) (*models.EtlMapping, error) {
	id := req.ScanReportID
	mapping, err := s.Create(username, req.ScanReportName, &id)
	if err != nil {
		return nil, err
	}
	if req.CdmVersion != "" {
		if err := s.SetCdmVersion(mapping.ID, req.CdmVersion); err != nil {
			return nil, err
		}
		mapping.CdmVersion = &req.CdmVersion
	}
	return mapping, nil
}

// FindByID loads one mapping row.
func (s *Service) FindByID(id uuid.UUID) (*models.EtlMapping, error) {
	var mapping models.EtlMapping
	err := s.db.First(&mapping, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFoundf("ETL mapping not found by id %s", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "failed to load ETL mapping", err)
	}
	return &mapping, nil
}

// FindByUsername returns the user's live mapping, if any.
func (s *Service) FindByUsername(username string) (*models.EtlMapping, error) {
	var mapping models.EtlMapping
	err := s.db.First(&mapping, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFoundf("no ETL mapping for user %s", username)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "failed to load ETL mapping", err)
	}
	return &mapping, nil
}

// SetScanReportInfo attaches scan-report metadata to an existing mapping.
func (s *Service) SetScanReportInfo(id uuid.UUID, reportName string, reportID uuid.UUID) error {
	return s.partialUpdate(id, map[string]interface{}{
		"scan_report_name": reportName,
		"scan_report_id":   reportID,
	})
}

// SetCdmVersion records the CDM version chosen for the session.
func (s *Service) SetCdmVersion(id uuid.UUID, version string) error {
	return s.partialUpdate(id, map[string]interface{}{"cdm_version": version})
}

func (s *Service) partialUpdate(id uuid.UUID, values map[string]interface{}) error {
	res := s.db.Model(&models.EtlMapping{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return apperrors.Wrap(apperrors.KindInternal, "failed to update ETL mapping", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFoundf("ETL mapping not found by id %s", id)
	}
	return nil
}

// Delete removes a mapping row and its dependent schema rows. It is the
// compensating action run when a later upload step fails, so it must never
// raise past the failure that triggered it: problems are logged and swallowed.
func (s *Service) Delete(id uuid.UUID) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var tables []models.SourceTable
		if err := tx.Where("etl_mapping_id = ?", id).Find(&tables).Error; err != nil {
			return err
		}
		for _, table := range tables {
			if err := tx.Where("table_id = ?", table.ID).Delete(&models.SourceField{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("etl_mapping_id = ?", id).Delete(&models.SourceTable{}).Error; err != nil {
			return err
		}
		if err := tx.Where("etl_mapping_id = ?", id).Delete(&models.ScanSample{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.EtlMapping{}).Error
	})
	if err != nil {
		slog.Error("compensating delete of ETL mapping failed", "id", id, "error", err)
	}
}
