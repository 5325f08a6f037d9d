package lookup

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"mapping-service/internal/models"
)

// defaultLookups are the system-provided lookups shipped with the service.
// They carry no username and cannot be modified or deleted through the API.
var defaultLookups = []models.Lookup{
	{
		Name:       "gender",
		LookupType: models.LookupTypeSourceToStandard,
		SQL: "SELECT 'M' AS source_value, '8507' AS target_value\n" +
			"UNION ALL\nSELECT 'F' AS source_value, '8532' AS target_value",
	},
	{
		Name:       "gender",
		LookupType: models.LookupTypeSourceToSource,
		SQL: "SELECT 'MALE' AS source_value, 'M' AS target_value\n" +
			"UNION ALL\nSELECT 'FEMALE' AS source_value, 'F' AS target_value",
	},
	{
		Name:       "visit_type",
		LookupType: models.LookupTypeSourceToStandard,
		SQL: "SELECT 'IP' AS source_value, '9201' AS target_value\n" +
			"UNION ALL\nSELECT 'OP' AS source_value, '9202' AS target_value\n" +
			"UNION ALL\nSELECT 'ER' AS source_value, '9203' AS target_value",
	},
}

// SeedDefaults inserts the system lookups if they are not present yet. Safe
// to call on every startup.
func SeedDefaults(db *gorm.DB) error {
	for _, l := range defaultLookups {
		var existing models.Lookup
		err := db.
			Where("name = ? AND lookup_type = ? AND username IS NULL", l.Name, l.LookupType).
			First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		l.ID = uuid.New()
		if err := db.Create(&l).Error; err != nil {
			return err
		}
	}
	return nil
}
