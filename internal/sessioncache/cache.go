// Package sessioncache enforces the one-live-session-per-user rule: before a
// new upload begins, anything left over from the user's previous session is
// released. The state lives in the backing store and on disk, not in memory,
// so release is an explicit query-and-delete, idempotent by construction.
package sessioncache

import (
	"log/slog"

	"gorm.io/gorm"

	"mapping-service/internal/apperrors"
	"mapping-service/internal/etlmapping"
	"mapping-service/internal/filestore"
	"mapping-service/internal/models"
	"mapping-service/internal/xmlwriter"
)

// Cache releases per-user session resources.
type Cache struct {
	db       *gorm.DB
	mappings *etlmapping.Service
	files    *filestore.Store
	xml      *xmlwriter.Generator
}

// NewCache creates a resource cache over the given collaborators.
func NewCache(db *gorm.DB, mappings *etlmapping.Service, files *filestore.Store, xml *xmlwriter.Generator) *Cache {
	return &Cache{db: db, mappings: mappings, files: files, xml: xml}
}

// ReleaseResourceIfUsed discards the user's live ETL mapping, its source
// schema, stored scan-report files, and the XML working directory. Calling
// it with nothing to release is a no-op. Two concurrent uploads from the
// same user are not serialized here; a single active browser session per
// user is assumed.
func (c *Cache) ReleaseResourceIfUsed(username string) error {
	if err := c.releaseMappings(username); err != nil {
		return err
	}
	if err := c.files.DeleteByUser(username); err != nil {
		return err
	}
	return c.xml.Clear(username)
}

// ReleaseKeepingFiles discards the mapping session and working directory but
// leaves stored scan-report files in place, for operations that rebuild a
// schema from an already uploaded report.
func (c *Cache) ReleaseKeepingFiles(username string) error {
	if err := c.releaseMappings(username); err != nil {
		return err
	}
	return c.xml.Clear(username)
}

func (c *Cache) releaseMappings(username string) error {
	var mappings []models.EtlMapping
	if err := c.db.Where("username = ?", username).Find(&mappings).Error; err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "failed to query live sessions", err)
	}
	for _, mapping := range mappings {
		slog.Info("releasing previous mapping session", "user", username, "etlMappingID", mapping.ID)
		c.mappings.Delete(mapping.ID)
	}
	return nil
}
