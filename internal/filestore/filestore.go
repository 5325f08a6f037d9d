// Package filestore persists uploaded scan-report files on local disk, one
// directory per user, with a database record per stored file.
package filestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"mapping-service/internal/apperrors"
	"mapping-service/internal/models"
)

// Store saves and retrieves scan-report files.
type Store struct {
	db      *gorm.DB
	baseDir string
}

// NewStore creates a file store rooted at baseDir.
func NewStore(db *gorm.DB, baseDir string) *Store {
	return &Store{db: db, baseDir: baseDir}
}

// Save writes the uploaded bytes under the user's directory and records the
// file. Returns the created record.
func (s *Store) Save(username, fileName string, data []byte) (*models.ScanReportFile, error) {
	dir := filepath.Join(s.baseDir, username)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "failed to create upload directory", err)
	}

	record := models.ScanReportFile{
		ID:       uuid.New(),
		Username: username,
		FileName: fileName,
	}
	record.StoredPath = filepath.Join(dir, fmt.Sprintf("%s_%s", record.ID, filepath.Base(fileName)))

	if err := os.WriteFile(record.StoredPath, data, 0o644); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "failed to store uploaded file", err)
	}
	if err := s.db.Create(&record).Error; err != nil {
		// The record is the source of truth; drop the orphan file.
		_ = os.Remove(record.StoredPath)
		return nil, apperrors.Wrap(apperrors.KindInternal, "failed to record uploaded file", err)
	}
	return &record, nil
}

// Open returns the stored bytes of a scan report by id.
func (s *Store) Open(id uuid.UUID) ([]byte, *models.ScanReportFile, error) {
	var record models.ScanReportFile
	err := s.db.First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, apperrors.NotFoundf("report not found")
	}
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.KindInternal, "failed to look up report file", err)
	}
	data, err := os.ReadFile(record.StoredPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, apperrors.NotFoundf("report file missing from storage")
		}
		return nil, nil, apperrors.Wrap(apperrors.KindInternal, "failed to read report file", err)
	}
	return data, &record, nil
}

// DeleteByUser removes every stored file and record for the user. Missing
// files are ignored; the operation is idempotent.
func (s *Store) DeleteByUser(username string) error {
	var records []models.ScanReportFile
	if err := s.db.Where("username = ?", username).Find(&records).Error; err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "failed to list report files", err)
	}
	for _, record := range records {
		if err := os.Remove(record.StoredPath); err != nil && !os.IsNotExist(err) {
			return apperrors.Wrap(apperrors.KindInternal, "failed to delete report file", err)
		}
	}
	if err := s.db.Where("username = ?", username).Delete(&models.ScanReportFile{}).Error; err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "failed to delete report records", err)
	}
	_ = os.Remove(filepath.Join(s.baseDir, username))
	return nil
}

// Delete removes one stored file and its record. Used as a compensating step,
// so a missing file is not an error.
func (s *Store) Delete(id uuid.UUID) error {
	var record models.ScanReportFile
	err := s.db.First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "failed to look up report file", err)
	}
	if err := os.Remove(record.StoredPath); err != nil && !os.IsNotExist(err) {
		return apperrors.Wrap(apperrors.KindInternal, "failed to delete report file", err)
	}
	return s.db.Delete(&record).Error
}
