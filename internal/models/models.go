package models

import (
	"time"

	"github.com/google/uuid"
)

// Lookup types supported by the lookup store. A source_to_standard lookup maps
// raw source values onto standard concept values; a source_to_source lookup
// rewrites source values before mapping.
const (
	LookupTypeSourceToStandard = "source_to_standard"
	LookupTypeSourceToSource   = "source_to_source"
)

// ValidLookupTypes defines the allowed lookup type tokens.
var ValidLookupTypes = map[string]bool{
	LookupTypeSourceToStandard: true,
	LookupTypeSourceToSource:   true,
}

// EtlMapping is the per-(user, upload-session) record linking a scan report to
// its derived source schema. Exactly one live mapping per user is kept; the
// session cache deletes the previous one when a new upload starts.
type EtlMapping struct {
	ID             uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	Username       string     `json:"username" gorm:"type:varchar(255);not null;index"`
	SchemaName     string     `json:"schema_name" gorm:"type:varchar(255);not null"`
	ScanReportName string     `json:"scan_report_name" gorm:"type:varchar(255)"`
	ScanReportID   *uuid.UUID `json:"scan_report_id,omitempty" gorm:"type:uuid"`
	CdmVersion     *string    `json:"cdm_version,omitempty" gorm:"type:varchar(50)"`
	CreatedAt      time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// SourceTable is one table of a user's source schema.
type SourceTable struct {
	ID           uuid.UUID     `json:"id" gorm:"type:uuid;primary_key"`
	EtlMappingID uuid.UUID     `json:"etl_mapping_id" gorm:"type:uuid;not null;uniqueIndex:idx_mapping_table_name"`
	Name         string        `json:"name" gorm:"type:varchar(255);not null;uniqueIndex:idx_mapping_table_name"`
	Position     int           `json:"position"`
	ViewSQL      *string       `json:"view_sql,omitempty" gorm:"type:text"`
	Fields       []SourceField `json:"fields,omitempty" gorm:"foreignKey:TableID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CreatedAt    time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
}

// SourceField is one column of a source table.
type SourceField struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	TableID    uuid.UUID `json:"table_id" gorm:"type:uuid;not null;uniqueIndex:idx_table_field_name"`
	Name       string    `json:"name" gorm:"type:varchar(255);not null;uniqueIndex:idx_table_field_name"`
	Type       string    `json:"type" gorm:"type:varchar(50);not null"`
	IsNullable bool      `json:"is_nullable" gorm:"default:true"`
	Comment    string    `json:"comment,omitempty" gorm:"type:text"`
	Position   int       `json:"position"`
}

// ScanSample is one sampled value-frequency row from a scan report, persisted
// so column statistics survive the upload request.
type ScanSample struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	EtlMappingID uuid.UUID `json:"etl_mapping_id" gorm:"type:uuid;not null;index:idx_sample_lookup"`
	TableName    string    `json:"table_name" gorm:"type:varchar(255);not null;index:idx_sample_lookup"`
	FieldName    string    `json:"field_name" gorm:"type:varchar(255);not null;index:idx_sample_lookup"`
	Value        string    `json:"value" gorm:"type:text"`
	Frequency    int64     `json:"frequency"`
	Rank         int       `json:"rank"`
}

// Lookup is a named value-translation table. Username nil marks a global,
// system-provided lookup that users cannot modify. The body is stored as the
// defining SQL; user-defined lookups are rendered to SQL from value pairs.
type Lookup struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	Name       string    `json:"name" gorm:"type:varchar(255);not null;uniqueIndex:idx_lookup_identity"`
	LookupType string    `json:"lookupType" gorm:"type:varchar(50);not null;uniqueIndex:idx_lookup_identity"`
	Username   *string   `json:"username,omitempty" gorm:"type:varchar(255);uniqueIndex:idx_lookup_identity"`
	SQL        string    `json:"sql" gorm:"column:sql;type:text"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// ScanReportFile records an uploaded scan report persisted by the file store.
type ScanReportFile struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	Username   string    `json:"username" gorm:"type:varchar(255);not null;index"`
	FileName   string    `json:"file_name" gorm:"type:varchar(255);not null"`
	StoredPath string    `json:"-" gorm:"type:varchar(1024);not null"`
	UploadedAt time.Time `json:"uploaded_at" gorm:"autoCreateTime"`
}

// UploadResponse is returned by the upload endpoints: the created session
// record plus the derived source schema.
type UploadResponse struct {
	Mapping EtlMapping    `json:"etl_mapping"`
	Schema  []SourceTable `json:"source_schema"`
}

// CreateSchemaRequest asks to rebuild a source schema from an already uploaded
// scan report.
type CreateSchemaRequest struct {
	ScanReportID   uuid.UUID `json:"scan_report_id" binding:"required"`
	ScanReportName string    `json:"scan_report_name" binding:"required"`
	CdmVersion     string    `json:"cdm_version,omitempty"`
}

// SchemaTableEdit is one edited table of the live source schema. Only the
// SQL view definition is user-editable; an empty ViewSQL leaves the table
// untouched.
type SchemaTableEdit struct {
	Name    string `json:"name" binding:"required"`
	ViewSQL string `json:"view_sql,omitempty"`
}

// SaveSchemaRequest persists user edits to the live source schema.
type SaveSchemaRequest struct {
	Tables []SchemaTableEdit `json:"tables" binding:"required,min=1"`
}

// SQLRequest carries a user-authored SQL view or transformation body.
type SQLRequest struct {
	SQL string `json:"sql" binding:"required"`
}

// ColumnInfo describes one column returned by a validated SQL view.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ValueFrequency is one (value, count) pair of a column's sampled top values.
type ValueFrequency struct {
	Value     string `json:"value"`
	Frequency int64  `json:"frequency"`
}

// ColumnInfoResponse is the top-N value listing for one column.
type ColumnInfoResponse struct {
	TableName  string           `json:"table_name"`
	ColumnName string           `json:"column_name"`
	TopValues  []ValueFrequency `json:"top_values"`
}

// LookupPair is one (source value, target value) row of a user lookup.
type LookupPair struct {
	SourceValue string `json:"source_value" binding:"required"`
	TargetValue string `json:"target_value" binding:"required"`
}

// LookupRequest creates or replaces a user-defined lookup. Either Pairs or a
// raw SQL body must be provided.
type LookupRequest struct {
	Name       string       `json:"name" binding:"required,min=1,max=255"`
	LookupType string       `json:"lookupType" binding:"required,oneof=source_to_standard source_to_source"`
	Pairs      []LookupPair `json:"pairs,omitempty"`
	SQL        string       `json:"sql,omitempty"`
}

// LookupListItem is the listing shape for lookups.
type LookupListItem struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	LookupType    string    `json:"lookupType"`
	IsUserDefined bool      `json:"is_user_defined"`
}

// FieldMappingSpec maps one source field onto one target field, optionally
// through a lookup and/or a SQL transformation.
type FieldMappingSpec struct {
	SourceField       string `json:"source_field"`
	TargetField       string `json:"target_field" binding:"required"`
	SQLTransformation string `json:"sql_transformation,omitempty"`
	Lookup            string `json:"lookup,omitempty"`
}

// MappingItemSpec maps one source table onto one target table.
type MappingItemSpec struct {
	SourceTable string             `json:"source_table" binding:"required"`
	TargetTable string             `json:"target_table" binding:"required"`
	Mappings    []FieldMappingSpec `json:"mapping" binding:"required"`
}

// MappingSpec is the client-submitted mapping used to render the XML artifact.
type MappingSpec struct {
	EtlMappingID *uuid.UUID        `json:"etl_mapping_id,omitempty"`
	CdmVersion   string            `json:"cdm_version,omitempty"`
	MappingItems []MappingItemSpec `json:"mapping_items" binding:"required,min=1"`
	Views        map[string]string `json:"views,omitempty"`
}

// EtlArchiveRequest asks for a full downloadable .etl archive.
type EtlArchiveRequest struct {
	EtlMappingID uuid.UUID   `json:"etl_mapping_id" binding:"required"`
	Name         string      `json:"name,omitempty"`
	CdmVersion   string      `json:"cdm_version,omitempty"`
	Mapping      MappingSpec `json:"mapping" binding:"required"`
}

// TargetField is one column of a CDM target table.
type TargetField struct {
	FieldName  string `json:"field_name"`
	FieldType  string `json:"field_type"`
	IsNullable bool   `json:"is_nullable"`
}

// TargetTable is one table of a CDM version's schema.
type TargetTable struct {
	TableName string        `json:"table_name"`
	Fields    []TargetField `json:"fields"`
}
