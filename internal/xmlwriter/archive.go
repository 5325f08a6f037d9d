package xmlwriter

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"mapping-service/internal/apperrors"
	"mapping-service/internal/models"
	"mapping-service/internal/scanreport"
)

// ZipXML bundles every currently generated XML file for the user into the
// fixed-name zip archive inside the same directory. Fails with a not-found
// error when no generation has happened.
func (g *Generator) ZipXML(username string) error {
	dir := g.UserDir(username)
	xmlFiles, err := listXMLFiles(dir)
	if err != nil {
		return err
	}
	if len(xmlFiles) == 0 {
		return apperrors.NotFoundf("no generated XML found for user %s", username)
	}

	archivePath := filepath.Join(dir, XMLArchiveName)
	out, err := os.Create(archivePath)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "failed to create zip archive", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, name := range xmlFiles {
		if err := addFileToZip(zw, filepath.Join(dir, name), name); err != nil {
			zw.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "failed to finalize zip archive", err)
	}
	return nil
}

// GenerateEtlArchive renders the mapping, collects the referenced lookups,
// and packages everything as a single .etl archive ready for download.
// Returns the directory and file name of the archive; the caller removes the
// file once the response body has been streamed.
func (g *Generator) GenerateEtlArchive(req models.EtlArchiveRequest, username string) (string, string, error) {
	spec := req.Mapping
	id := req.EtlMappingID
	spec.EtlMappingID = &id

	docs, err := g.GetXML(username, spec)
	if err != nil {
		return "", "", err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "etl_mapping"
	}
	// The archive name lands on disk and is later removed by the handler; it
	// must stay inside the user's working directory.
	if !safeFileName(name) {
		return "", "", apperrors.Validationf("invalid archive name %q", name)
	}
	fileName := name + EtlArchiveExt
	dir := g.UserDir(username)
	archivePath := filepath.Join(dir, fileName)

	out, err := os.Create(archivePath)
	if err != nil {
		return "", "", apperrors.Wrap(apperrors.KindInternal, "failed to create etl archive", err)
	}
	defer out.Close()
	zw := zip.NewWriter(out)

	// Deterministic entry order keeps archives byte-comparable in tests.
	tables := make([]string, 0, len(docs))
	for tableName := range docs {
		tables = append(tables, tableName)
	}
	sort.Strings(tables)
	for _, tableName := range tables {
		if err := writeZipEntry(zw, path.Join("mapping", tableName+".xml"), []byte(docs[tableName])); err != nil {
			zw.Close()
			return "", "", err
		}
	}

	for _, ref := range collectLookupRefs(spec) {
		sql, err := g.lookups.GetSQL(username, nil, ref.name, ref.lookupType)
		if err != nil {
			if apperrors.IsKind(err, apperrors.KindNotFound) {
				continue // a dangling reference must not break the export
			}
			zw.Close()
			return "", "", err
		}
		entry := path.Join("lookups", fmt.Sprintf("%s_%s.sql", ref.name, ref.lookupType))
		if err := writeZipEntry(zw, entry, []byte(sql)); err != nil {
			zw.Close()
			return "", "", err
		}
	}

	manifest, err := json.MarshalIndent(Manifest{Name: name, CdmVersion: req.CdmVersion}, "", "  ")
	if err != nil {
		zw.Close()
		return "", "", apperrors.Wrap(apperrors.KindInternal, "failed to render manifest", err)
	}
	if err := writeZipEntry(zw, "manifest.json", manifest); err != nil {
		zw.Close()
		return "", "", err
	}

	if err := zw.Close(); err != nil {
		return "", "", apperrors.Wrap(apperrors.KindInternal, "failed to finalize etl archive", err)
	}
	return dir, fileName, nil
}

// LookupDef is one lookup carried inside a .etl archive.
type LookupDef struct {
	Name       string
	LookupType string
	SQL        string
}

// UnpackEtlArchive reads a previously exported .etl archive back into
// scan-report-equivalent data, so a session can be rebuilt from it.
func UnpackEtlArchive(data []byte) (*scanreport.Report, []LookupDef, *Manifest, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, nil, nil, apperrors.Wrap(apperrors.KindValidation, "not a valid etl archive", err)
	}

	report := &scanreport.Report{}
	var lookups []LookupDef
	var manifest *Manifest

	for _, entry := range zr.File {
		switch {
		case strings.HasPrefix(entry.Name, "mapping/") && strings.HasSuffix(entry.Name, ".xml"):
			raw, err := readZipEntry(entry)
			if err != nil {
				return nil, nil, nil, err
			}
			var doc QueryDefinition
			if err := xml.Unmarshal(raw, &doc); err != nil {
				return nil, nil, nil, apperrors.Wrap(apperrors.KindValidation, "malformed mapping XML in archive", err)
			}
			table := scanreport.ReportTable{Name: doc.SourceTable.Name}
			for _, field := range doc.SourceTable.Fields {
				table.Fields = append(table.Fields, scanreport.ReportField{
					Name:     field.Name,
					Type:     field.Type,
					Nullable: field.Nullable,
				})
			}
			report.Tables = append(report.Tables, table)

		case strings.HasPrefix(entry.Name, "lookups/") && strings.HasSuffix(entry.Name, ".sql"):
			raw, err := readZipEntry(entry)
			if err != nil {
				return nil, nil, nil, err
			}
			base := strings.TrimSuffix(path.Base(entry.Name), ".sql")
			name, lookupType := splitLookupEntryName(base)
			lookups = append(lookups, LookupDef{Name: name, LookupType: lookupType, SQL: string(raw)})

		case entry.Name == "manifest.json":
			raw, err := readZipEntry(entry)
			if err != nil {
				return nil, nil, nil, err
			}
			var m Manifest
			if err := json.Unmarshal(raw, &m); err != nil {
				return nil, nil, nil, apperrors.Wrap(apperrors.KindValidation, "malformed manifest in archive", err)
			}
			manifest = &m
		}
	}

	if len(report.Tables) == 0 {
		return nil, nil, nil, apperrors.Validationf("etl archive contains no mapping documents")
	}
	return report, lookups, manifest, nil
}

// splitLookupEntryName separates "<name>_<type>" where type is one of the
// known lookup type suffixes.
func splitLookupEntryName(base string) (string, string) {
	for _, suffix := range []string{models.LookupTypeSourceToStandard, models.LookupTypeSourceToSource} {
		if strings.HasSuffix(base, "_"+suffix) {
			return strings.TrimSuffix(base, "_"+suffix), suffix
		}
	}
	return base, models.LookupTypeSourceToStandard
}

type lookupRef struct {
	name       string
	lookupType string
}

// collectLookupRefs gathers distinct lookup names referenced by the mapping.
// Both lookup types are attempted for each name; missing ones are skipped at
// packaging time.
func collectLookupRefs(spec models.MappingSpec) []lookupRef {
	seen := map[string]bool{}
	var refs []lookupRef
	for _, item := range spec.MappingItems {
		for _, fm := range item.Mappings {
			if fm.Lookup == "" || seen[fm.Lookup] {
				continue
			}
			seen[fm.Lookup] = true
			refs = append(refs,
				lookupRef{name: fm.Lookup, lookupType: models.LookupTypeSourceToStandard},
				lookupRef{name: fm.Lookup, lookupType: models.LookupTypeSourceToSource},
			)
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].name != refs[j].name {
			return refs[i].name < refs[j].name
		}
		return refs[i].lookupType < refs[j].lookupType
	})
	return refs
}

func listXMLFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.Wrap(apperrors.KindInternal, "failed to read working directory", err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".xml") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func addFileToZip(zw *zip.Writer, filePath, entryName string) error {
	in, err := os.Open(filePath)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "failed to read generated XML", err)
	}
	defer in.Close()
	w, err := zw.Create(entryName)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "failed to add zip entry", err)
	}
	if _, err := io.Copy(w, in); err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "failed to write zip entry", err)
	}
	return nil
}

func readZipEntry(entry *zip.File) ([]byte, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "failed to open zip entry", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "failed to read zip entry", err)
	}
	return data, nil
}

func writeZipEntry(zw *zip.Writer, entryName string, data []byte) error {
	w, err := zw.Create(entryName)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "failed to add zip entry", err)
	}
	if _, err := w.Write(data); err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "failed to write zip entry", err)
	}
	return nil
}
