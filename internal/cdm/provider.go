// Package cdm provides read-only access to the versioned Common Data Model
// reference schemas. The definitions are embedded at build time and never
// mutated at runtime.
package cdm

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"mapping-service/internal/apperrors"
	"mapping-service/internal/models"
)

//go:embed data/*.json
var schemaFS embed.FS

// Provider serves CDM schema versions loaded from the embedded dataset.
type Provider struct {
	schemas map[string][]models.TargetTable
}

// NewProvider loads every embedded schema file. File names follow
// cdm_<version>.json.
func NewProvider() (*Provider, error) {
	entries, err := schemaFS.ReadDir("data")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded CDM schemas: %w", err)
	}

	p := &Provider{schemas: make(map[string][]models.TargetTable)}
	for _, entry := range entries {
		name := entry.Name()
		version := strings.TrimSuffix(strings.TrimPrefix(name, "cdm_"), ".json")
		raw, err := schemaFS.ReadFile(path.Join("data", name))
		if err != nil {
			return nil, fmt.Errorf("failed to read CDM schema %s: %w", name, err)
		}
		var tables []models.TargetTable
		if err := json.Unmarshal(raw, &tables); err != nil {
			return nil, fmt.Errorf("failed to parse CDM schema %s: %w", name, err)
		}
		p.schemas[version] = tables
	}
	return p, nil
}

// Versions returns the available CDM version strings, sorted.
func (p *Provider) Versions() []string {
	versions := make([]string, 0, len(p.schemas))
	for v := range p.schemas {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}

// Schema returns the target tables of one CDM version.
func (p *Provider) Schema(version string) ([]models.TargetTable, error) {
	tables, ok := p.schemas[version]
	if !ok {
		return nil, apperrors.NotFoundf("CDM version %s not found", version)
	}
	return tables, nil
}
