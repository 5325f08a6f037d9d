// Package xmlwriter renders a submitted mapping into the XML artifact set the
// downstream ETL engine consumes, bundles it into downloadable archives, and
// unpacks previously exported archives for round-trip re-import.
package xmlwriter

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"mapping-service/internal/apperrors"
	"mapping-service/internal/models"
)

// Fixed artifact names shared with deployed consumers.
const (
	XMLArchiveName = "cdm_xml_set.zip"
	EtlArchiveExt  = ".etl"
)

// SchemaLoader supplies the persisted source schema for a mapping session.
type SchemaLoader interface {
	LoadByMapping(etlMappingID uuid.UUID) ([]models.SourceTable, error)
}

// LookupResolver supplies the defining SQL of a lookup referenced by name.
type LookupResolver interface {
	GetSQL(username string, id *uuid.UUID, name, lookupType string) (string, error)
}

// Generator renders and packages mapping artifacts under a per-user working
// directory.
type Generator struct {
	workDir string
	schema  SchemaLoader
	lookups LookupResolver
}

// NewGenerator creates a generator rooted at workDir.
func NewGenerator(workDir string, schema SchemaLoader, lookups LookupResolver) *Generator {
	return &Generator{workDir: workDir, schema: schema, lookups: lookups}
}

// UserDir returns the per-user working directory. No two users share a path.
func (g *Generator) UserDir(username string) string {
	return filepath.Join(g.workDir, username)
}

// GetXML renders one XML document per source table in the mapping spec,
// writes them under the user's working directory (replacing any previous
// generation), and returns them keyed by source table name.
func (g *Generator) GetXML(username string, spec models.MappingSpec) (map[string]string, error) {
	docs, err := g.renderDocuments(spec)
	if err != nil {
		return nil, err
	}

	dir := g.UserDir(username)
	// Each generation replaces the previous one wholesale.
	if err := os.RemoveAll(dir); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "failed to clear working directory", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "failed to create working directory", err)
	}

	out := make(map[string]string, len(docs))
	for tableName, doc := range docs {
		payload, err := marshalDocument(doc)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(dir, tableName+".xml")
		if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "failed to write XML file", err)
		}
		out[tableName] = payload
	}
	return out, nil
}

// Clear removes the user's working directory contents.
func (g *Generator) Clear(username string) error {
	if err := os.RemoveAll(g.UserDir(username)); err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "failed to clear working directory", err)
	}
	return nil
}

// renderDocuments builds one QueryDefinition per source table, grouping the
// spec's mapping items so a source table mapped onto several target tables
// yields a single document.
func (g *Generator) renderDocuments(spec models.MappingSpec) (map[string]*QueryDefinition, error) {
	if len(spec.MappingItems) == 0 {
		return nil, apperrors.Validationf("mapping spec has no mapping items")
	}

	// Field catalog from the persisted schema when the session is known.
	fieldsByTable := map[string][]XMLField{}
	viewByTable := map[string]string{}
	if spec.EtlMappingID != nil {
		tables, err := g.schema.LoadByMapping(*spec.EtlMappingID)
		if err != nil {
			return nil, err
		}
		for _, table := range tables {
			var fields []XMLField
			for _, field := range table.Fields {
				fields = append(fields, XMLField{Name: field.Name, Type: field.Type, Nullable: field.IsNullable})
			}
			fieldsByTable[table.Name] = fields
			if table.ViewSQL != nil {
				viewByTable[table.Name] = *table.ViewSQL
			}
		}
	}

	docs := map[string]*QueryDefinition{}
	for _, item := range spec.MappingItems {
		// The source table name becomes a file name inside the user's
		// working directory; a path-like name could escape it.
		if !safeFileName(item.SourceTable) {
			return nil, apperrors.Validationf("invalid source table name %q", item.SourceTable)
		}
		doc, ok := docs[item.SourceTable]
		if !ok {
			doc = &QueryDefinition{
				SourceTable: XMLSourceTable{Name: item.SourceTable},
			}
			doc.SourceTable.Fields = fieldsByTable[item.SourceTable]
			doc.Query = g.queryFor(item.SourceTable, spec, viewByTable, doc.SourceTable.Fields)
			docs[item.SourceTable] = doc
		}

		target := XMLTargetTable{Name: item.TargetTable}
		for _, fm := range item.Mappings {
			target.FieldMappings = append(target.FieldMappings, XMLFieldMapping{
				Source:            fm.SourceField,
				Target:            fm.TargetField,
				Lookup:            fm.Lookup,
				SQLTransformation: fm.SQLTransformation,
			})
			// Previews without a session still need a usable field list.
			if len(fieldsByTable[item.SourceTable]) == 0 && fm.SourceField != "" {
				doc.SourceTable.Fields = appendFieldOnce(doc.SourceTable.Fields, fm.SourceField)
			}
		}
		doc.TargetTables = append(doc.TargetTables, target)
	}
	return docs, nil
}

// queryFor picks the SQL the document's Query element carries: an explicit
// view in the submitted mapping wins, then a persisted view definition, then
// a plain select over the known fields.
func (g *Generator) queryFor(tableName string, spec models.MappingSpec, persisted map[string]string, fields []XMLField) string {
	if sql, ok := spec.Views[tableName]; ok && strings.TrimSpace(sql) != "" {
		return sql
	}
	if sql, ok := persisted[tableName]; ok {
		return sql
	}
	if len(fields) == 0 {
		return fmt.Sprintf("SELECT * FROM %s", tableName)
	}
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name)
	}
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(names, ", "), tableName)
}

// safeFileName reports whether name can be used as a bare file name under
// the user's working directory. Path separators and dot entries would resolve
// outside it.
func safeFileName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) {
		return false
	}
	return filepath.Base(name) == name
}

func appendFieldOnce(fields []XMLField, name string) []XMLField {
	for _, f := range fields {
		if f.Name == name {
			return fields
		}
	}
	return append(fields, XMLField{Name: name, Type: "string", Nullable: true})
}

func marshalDocument(doc *QueryDefinition) (string, error) {
	raw, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindInternal, "failed to render XML document", err)
	}
	return xml.Header + string(raw) + "\n", nil
}
