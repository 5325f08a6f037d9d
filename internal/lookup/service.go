// Package lookup manages reusable value-translation tables, both global
// (system-provided, immutable) and per-user.
package lookup

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"mapping-service/internal/apperrors"
	"mapping-service/internal/models"
)

// Service provides CRUD over lookups.
type Service struct {
	db *gorm.DB
}

// NewService creates a lookup service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// List returns all lookups of a type visible to the user: global ones plus
// the user's own, sorted by name.
func (s *Service) List(username, lookupType string) ([]models.LookupListItem, error) {
	if !models.ValidLookupTypes[lookupType] {
		return nil, apperrors.Validationf("unknown lookup type %q", lookupType)
	}
	var lookups []models.Lookup
	err := s.db.
		Where("lookup_type = ? AND (username IS NULL OR username = ?)", lookupType, username).
		Order("name").
		Find(&lookups).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "failed to list lookups", err)
	}

	items := make([]models.LookupListItem, 0, len(lookups))
	for _, l := range lookups {
		items = append(items, models.LookupListItem{
			ID:            l.ID,
			Name:          l.Name,
			LookupType:    l.LookupType,
			IsUserDefined: l.Username != nil,
		})
	}
	return items, nil
}

// Get fetches one lookup by id when id is non-nil, otherwise by the legacy
// (name, type) identification. Both paths stay supported until legacy callers
// are retired.
func (s *Service) Get(username string, id *uuid.UUID, name, lookupType string) (*models.Lookup, error) {
	var lookup models.Lookup
	var err error
	if id != nil {
		err = s.db.First(&lookup, "id = ?", *id).Error
	} else {
		if !models.ValidLookupTypes[lookupType] {
			return nil, apperrors.Validationf("unknown lookup type %q", lookupType)
		}
		err = s.db.
			Where("name = ? AND lookup_type = ? AND (username IS NULL OR username = ?)", name, lookupType, username).
			// User-defined lookups shadow global ones of the same name.
			Order("username DESC").
			First(&lookup).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFoundf("lookup not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "failed to load lookup", err)
	}
	return &lookup, nil
}

// GetSQL returns the lookup's defining SQL body.
func (s *Service) GetSQL(username string, id *uuid.UUID, name, lookupType string) (string, error) {
	lookup, err := s.Get(username, id, name, lookupType)
	if err != nil {
		return "", err
	}
	return lookup.SQL, nil
}

// Save creates a user-defined lookup, or overwrites the existing one with the
// same (name, type): duplicate names replace deterministically rather than
// fail. The row set is replaced atomically inside one transaction.
func (s *Service) Save(username string, req models.LookupRequest) (*models.Lookup, error) {
	if len(req.Pairs) == 0 && strings.TrimSpace(req.SQL) == "" {
		return nil, apperrors.Validationf("lookup must define value pairs or sql")
	}

	body := req.SQL
	if len(req.Pairs) > 0 {
		body = renderPairsSQL(req.Pairs)
	}

	var saved models.Lookup
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing models.Lookup
		err := tx.
			Where("name = ? AND lookup_type = ? AND username = ?", req.Name, req.LookupType, username).
			First(&existing).Error
		switch {
		case err == nil:
			existing.SQL = body
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
			saved = existing
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			user := username
			saved = models.Lookup{
				ID:         uuid.New(),
				Name:       req.Name,
				LookupType: req.LookupType,
				Username:   &user,
				SQL:        body,
			}
			return tx.Create(&saved).Error
		default:
			return err
		}
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "failed to save lookup", err)
	}
	return &saved, nil
}

// DeleteByID removes one user-defined lookup. Global lookups are immutable.
func (s *Service) DeleteByID(username string, id uuid.UUID) error {
	var lookup models.Lookup
	err := s.db.First(&lookup, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFoundf("lookup not found")
	}
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "failed to load lookup", err)
	}
	if lookup.Username == nil || *lookup.Username != username {
		return apperrors.Validationf("cannot delete a system lookup")
	}
	if err := s.db.Delete(&lookup).Error; err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "failed to delete lookup", err)
	}
	return nil
}

// DeleteByName removes the user's lookups with the given name across both
// lookup types. Legacy identification path; callers migrating to ids should
// use DeleteByID.
func (s *Service) DeleteByName(username, name string) error {
	err := s.db.
		Where("name = ? AND username = ?", name, username).
		Delete(&models.Lookup{}).Error
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "failed to delete lookup", err)
	}
	return nil
}

// renderPairsSQL renders (source, target) pairs as the lookup's defining SQL,
// the form the downstream ETL engine consumes.
func renderPairsSQL(pairs []models.LookupPair) string {
	var b strings.Builder
	for i, pair := range pairs {
		if i > 0 {
			b.WriteString("\nUNION ALL\n")
		}
		fmt.Fprintf(&b, "SELECT %s AS source_value, %s AS target_value",
			quoteSQLString(pair.SourceValue), quoteSQLString(pair.TargetValue))
	}
	return b.String()
}

func quoteSQLString(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}
