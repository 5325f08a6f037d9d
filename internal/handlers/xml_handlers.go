package handlers

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"mapping-service/internal/apperrors"
	"mapping-service/internal/models"
	"mapping-service/internal/xmlwriter"
)

// xmlPreview renders the mapping spec and returns the XML documents keyed by
// source table, leaving them in the user's working directory for a follow-up
// zip request.
func (h *Handler) xmlPreview(c *gin.Context) {
	username := currentUser(c)
	slog.Info("REST request to get XML", "user", username)

	spec, ok := h.bindMappingSpec(c, username)
	if !ok {
		return
	}

	docs, err := h.xml.GetXML(username, spec)
	if err != nil {
		RespondWithAppError(c, err)
		return
	}
	RespondWithSuccess(c, http.StatusOK, docs)
}

// generateZipXML renders the mapping, zips the XML set, and streams the
// archive. The archive is removed once the response has been written; a
// failed cleanup is logged and never fails the response.
func (h *Handler) generateZipXML(c *gin.Context) {
	username := currentUser(c)
	slog.Info("REST request to get zip XML", "user", username)

	spec, ok := h.bindMappingSpec(c, username)
	if !ok {
		return
	}

	if _, err := h.xml.GetXML(username, spec); err != nil {
		RespondWithAppError(c, err)
		return
	}
	if err := h.xml.ZipXML(username); err != nil {
		RespondWithAppError(c, err)
		return
	}

	archivePath := filepath.Join(h.xml.UserDir(username), xmlwriter.XMLArchiveName)
	defer removeAfterSend(archivePath, username)
	c.FileAttachment(archivePath, xmlwriter.XMLArchiveName)
}

// generateEtlMappingArchive builds the full .etl bundle (XML set plus
// lookups plus manifest) and streams it for download.
func (h *Handler) generateEtlMappingArchive(c *gin.Context) {
	username := currentUser(c)
	slog.Info("REST request to generate etl mapping archive", "user", username)

	var req models.EtlArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "Invalid request payload", gin.H{"reason": err.Error()})
		return
	}

	if _, err := h.mappings.FindByID(req.EtlMappingID); err != nil {
		RespondWithAppError(c, err, models.ErrorCodeMappingNotFound)
		return
	}
	if req.CdmVersion != "" {
		if err := h.mappings.SetCdmVersion(req.EtlMappingID, req.CdmVersion); err != nil {
			RespondWithAppError(c, err)
			return
		}
	}

	dir, fileName, err := h.xml.GenerateEtlArchive(req, username)
	if err != nil {
		RespondWithAppError(c, err)
		return
	}

	archivePath := filepath.Join(dir, fileName)
	defer removeAfterSend(archivePath, username)
	c.FileAttachment(archivePath, fileName)
}

// bindMappingSpec reads the mapping spec from the body and fills in the
// user's live session id when the client did not send one.
func (h *Handler) bindMappingSpec(c *gin.Context, username string) (models.MappingSpec, bool) {
	var spec models.MappingSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "Invalid request payload", gin.H{"reason": err.Error()})
		return spec, false
	}
	if spec.EtlMappingID == nil {
		mapping, err := h.mappings.FindByUsername(username)
		if err == nil {
			spec.EtlMappingID = &mapping.ID
		} else if !apperrors.IsKind(err, apperrors.KindNotFound) {
			RespondWithAppError(c, err)
			return spec, false
		}
		// Without a session the preview falls back to the fields named in
		// the request body.
	}
	return spec, true
}

// removeAfterSend deletes a generated artifact once the handler has written
// the response. Deletion problems are logged and do not affect the response.
func removeAfterSend(path, username string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Error("failed to remove generated artifact", "user", username, "path", path, "error", err)
	}
}
