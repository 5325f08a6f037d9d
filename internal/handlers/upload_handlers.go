package handlers

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"mapping-service/internal/models"
	"mapping-service/internal/scanreport"
	"mapping-service/internal/xmlwriter"
)

// uploadScanReport starts a new mapping session from an uploaded scan report:
// release any previous session, parse, store the file, create the mapping
// row, then persist the schema. Failures after the mapping row exists run
// compensating deletes before the original error is returned.
func (h *Handler) uploadScanReport(c *gin.Context) {
	username := currentUser(c)
	slog.Info("REST request to upload scan report", "user", username)

	fileName, data, ok := readUpload(c)
	if !ok {
		return
	}

	report, err := scanreport.Parse(bytes.NewReader(data))
	if err != nil {
		RespondWithAppError(c, err, models.ErrorCodeInvalidReport)
		return
	}

	if err := h.cache.ReleaseResourceIfUsed(username); err != nil {
		RespondWithAppError(c, err)
		return
	}

	record, err := h.files.Save(username, fileName, data)
	if err != nil {
		RespondWithAppError(c, err)
		return
	}

	mapping, err := h.mappings.Create(username, fileName, &record.ID)
	if err != nil {
		// The stored file is the only partial state so far.
		if cerr := h.files.Delete(record.ID); cerr != nil {
			slog.Error("compensating file delete failed", "user", username, "error", cerr)
		}
		RespondWithAppError(c, err)
		return
	}

	tables, err := h.schema.CreateByScanReport(username, mapping.ID, report)
	if err != nil {
		h.mappings.Delete(mapping.ID)
		if cerr := h.files.Delete(record.ID); cerr != nil {
			slog.Error("compensating file delete failed", "user", username, "error", cerr)
		}
		RespondWithAppError(c, err)
		return
	}

	RespondWithSuccess(c, http.StatusOK, models.UploadResponse{Mapping: *mapping, Schema: tables})
}

// uploadEtlMapping rebuilds a session from a previously exported .etl
// archive: the archive's mapping documents become the source schema and its
// lookups are imported under the user's scope.
func (h *Handler) uploadEtlMapping(c *gin.Context) {
	username := currentUser(c)
	slog.Info("REST request to upload etl mapping archive", "user", username)

	fileName, data, ok := readUpload(c)
	if !ok {
		return
	}

	report, lookupDefs, manifest, err := xmlwriter.UnpackEtlArchive(data)
	if err != nil {
		RespondWithAppError(c, err)
		return
	}

	if err := h.cache.ReleaseResourceIfUsed(username); err != nil {
		RespondWithAppError(c, err)
		return
	}

	record, err := h.files.Save(username, fileName, data)
	if err != nil {
		RespondWithAppError(c, err)
		return
	}

	mapping, err := h.mappings.Create(username, fileName, &record.ID)
	if err != nil {
		if cerr := h.files.Delete(record.ID); cerr != nil {
			slog.Error("compensating file delete failed", "user", username, "error", cerr)
		}
		RespondWithAppError(c, err)
		return
	}
	if manifest != nil && manifest.CdmVersion != "" {
		if err := h.mappings.SetCdmVersion(mapping.ID, manifest.CdmVersion); err == nil {
			mapping.CdmVersion = &manifest.CdmVersion
		}
	}

	tables, err := h.schema.CreateByScanReport(username, mapping.ID, report)
	if err != nil {
		h.mappings.Delete(mapping.ID)
		if cerr := h.files.Delete(record.ID); cerr != nil {
			slog.Error("compensating file delete failed", "user", username, "error", cerr)
		}
		RespondWithAppError(c, err)
		return
	}

	for _, def := range lookupDefs {
		_, err := h.lookups.Save(username, models.LookupRequest{
			Name:       def.Name,
			LookupType: def.LookupType,
			SQL:        def.SQL,
		})
		if err != nil {
			// Lookups are a best-effort part of the import; the session is
			// already consistent without them.
			slog.Warn("failed to import lookup from archive", "user", username, "lookup", def.Name, "error", err)
		}
	}

	RespondWithSuccess(c, http.StatusOK, models.UploadResponse{Mapping: *mapping, Schema: tables})
}

// createSourceSchemaByScanReport rebuilds the schema from a scan report that
// was already uploaded, referenced by id. Stored files survive the release so
// the referenced report stays available.
func (h *Handler) createSourceSchemaByScanReport(c *gin.Context) {
	username := currentUser(c)
	slog.Info("REST request to create source schema by scan report", "user", username)

	var req models.CreateSchemaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "Invalid request payload", gin.H{"reason": err.Error()})
		return
	}

	data, _, err := h.files.Open(req.ScanReportID)
	if err != nil {
		RespondWithAppError(c, err, models.ErrorCodeReportNotFound)
		return
	}
	report, err := scanreport.Parse(bytes.NewReader(data))
	if err != nil {
		RespondWithAppError(c, err, models.ErrorCodeInvalidReport)
		return
	}

	if err := h.cache.ReleaseKeepingFiles(username); err != nil {
		RespondWithAppError(c, err)
		return
	}

	mapping, err := h.mappings.CreateByRequest(username, req)
	if err != nil {
		RespondWithAppError(c, err)
		return
	}

	tables, err := h.schema.CreateByScanReport(username, mapping.ID, report)
	if err != nil {
		h.mappings.Delete(mapping.ID)
		RespondWithAppError(c, err)
		return
	}

	RespondWithSuccess(c, http.StatusOK, models.UploadResponse{Mapping: *mapping, Schema: tables})
}

// loadSavedSourceSchema returns a previously persisted schema by name.
func (h *Handler) loadSavedSourceSchema(c *gin.Context) {
	username := currentUser(c)
	slog.Info("REST request to load saved source schema", "user", username)

	schemaName := c.Query("schema_name")
	if schemaName == "" {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "schema_name query parameter is required", nil)
		return
	}

	tables, err := h.schema.LoadSaved(username, schemaName)
	if err != nil {
		RespondWithAppError(c, err)
		return
	}
	RespondWithSuccess(c, http.StatusOK, tables)
}

// readUpload pulls the multipart "file" part into memory. Responds and
// returns ok=false on failure.
func readUpload(c *gin.Context) (string, []byte, bool) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "multipart file field is required", gin.H{"reason": err.Error()})
		return "", nil, false
	}
	file, err := fileHeader.Open()
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "unreadable upload", gin.H{"reason": err.Error()})
		return "", nil, false
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "unreadable upload", gin.H{"reason": err.Error()})
		return "", nil, false
	}
	return fileHeader.Filename, data, true
}
