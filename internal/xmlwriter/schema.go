package xmlwriter

import "encoding/xml"

// Wire format of the generated mapping artifact: one QueryDefinition document
// per source table, consumed by the downstream CDM builder. The same structs
// drive unmarshalling when a previously exported archive is re-imported.

// XMLField is one source column inside a QueryDefinition.
type XMLField struct {
	Name     string `xml:"name,attr"`
	Type     string `xml:"type,attr"`
	Nullable bool   `xml:"nullable,attr"`
}

// XMLSourceTable describes the source table a document maps from.
type XMLSourceTable struct {
	Name   string     `xml:"name,attr"`
	Fields []XMLField `xml:"Fields>Field"`
}

// XMLFieldMapping is one source-field to target-field assignment.
type XMLFieldMapping struct {
	Source            string `xml:"source,attr,omitempty"`
	Target            string `xml:"target,attr"`
	Lookup            string `xml:"Lookup,omitempty"`
	SQLTransformation string `xml:"SqlTransformation,omitempty"`
}

// XMLTargetTable groups the field mappings aimed at one CDM table.
type XMLTargetTable struct {
	Name          string            `xml:"name,attr"`
	FieldMappings []XMLFieldMapping `xml:"FieldMappings>FieldMapping"`
}

// QueryDefinition is the root element of one generated XML document.
type QueryDefinition struct {
	XMLName      xml.Name         `xml:"QueryDefinition"`
	Query        string           `xml:"Query"`
	SourceTable  XMLSourceTable   `xml:"SourceTable"`
	TargetTables []XMLTargetTable `xml:"TargetTables>TargetTable"`
}

// Manifest travels inside a .etl archive and names the mapping it contains.
type Manifest struct {
	Name       string `json:"name"`
	CdmVersion string `json:"cdm_version,omitempty"`
}
