package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"mapping-service/internal/apperrors"
	"mapping-service/internal/models"
	"mapping-service/internal/sourceschema"
)

// viewSQL validates a user-authored SQL view against the live session's
// source data and returns the resulting column metadata. SQL mistakes answer
// 400, never 500.
func (h *Handler) viewSQL(c *gin.Context) {
	username := currentUser(c)
	slog.Info("REST request to get view", "user", username)

	var req models.SQLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "Invalid request payload", gin.H{"reason": err.Error()})
		return
	}

	mapping, err := h.mappings.FindByUsername(username)
	if err != nil {
		RespondWithAppError(c, err, models.ErrorCodeMappingNotFound)
		return
	}

	columns, err := h.schema.CheckViewSQL(username, mapping.ID, req.SQL)
	if err != nil {
		respondSQLError(c, err)
		return
	}
	RespondWithSuccess(c, http.StatusOK, columns)
}

// validateSQL runs a SQL transformation for validation only: 204 when it
// executes, 400 when it does not.
func (h *Handler) validateSQL(c *gin.Context) {
	username := currentUser(c)
	slog.Info("REST request to validate sql", "user", username)

	var req models.SQLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "Invalid request payload", gin.H{"reason": err.Error()})
		return
	}

	mapping, err := h.mappings.FindByUsername(username)
	if err != nil {
		RespondWithAppError(c, err, models.ErrorCodeMappingNotFound)
		return
	}

	if _, err := h.schema.RunSQLTransformation(username, mapping.ID, req.SQL); err != nil {
		respondSQLError(c, err)
		return
	}
	RespondWithSuccess(c, http.StatusNoContent, nil)
}

// saveSourceSchema persists user edits to the live schema. Each submitted
// SQL view is first run against the sandbox; only views that execute are
// stored. Answers the reloaded schema so the client sees what was saved.
func (h *Handler) saveSourceSchema(c *gin.Context) {
	username := currentUser(c)
	slog.Info("REST request to save source schema to db", "user", username)

	var req models.SaveSchemaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "Invalid request payload", gin.H{"reason": err.Error()})
		return
	}

	mapping, err := h.mappings.FindByUsername(username)
	if err != nil {
		RespondWithAppError(c, err, models.ErrorCodeMappingNotFound)
		return
	}

	for _, edit := range req.Tables {
		if strings.TrimSpace(edit.ViewSQL) == "" {
			continue
		}
		if _, err := h.schema.CheckViewSQL(username, mapping.ID, edit.ViewSQL); err != nil {
			respondSQLError(c, err)
			return
		}
		if err := h.schema.SetViewSQL(mapping.ID, edit.Name, edit.ViewSQL); err != nil {
			RespondWithAppError(c, err)
			return
		}
	}

	tables, err := h.schema.LoadByMapping(mapping.ID)
	if err != nil {
		RespondWithAppError(c, err)
		return
	}
	RespondWithSuccess(c, http.StatusOK, tables)
}

// respondSQLError marks SQL mistakes with the INVALID_SQL code; other
// failures (a missing schema is a 404, not bad SQL) keep their default code.
func respondSQLError(c *gin.Context, err error) {
	if apperrors.IsKind(err, apperrors.KindValidation) {
		RespondWithAppError(c, err, models.ErrorCodeInvalidSQL)
		return
	}
	RespondWithAppError(c, err)
}

// getColumnInfo returns the top-10 most frequent sampled values of a column.
func (h *Handler) getColumnInfo(c *gin.Context) {
	username := currentUser(c)
	slog.Info("REST request to get column info", "user", username)

	tableName := c.Query("table_name")
	columnName := c.Query("column_name")
	if tableName == "" || columnName == "" {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "table_name and column_name query parameters are required", nil)
		return
	}

	mappingID, err := uuid.Parse(c.Query("etl_mapping_id"))
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeInvalidIDFormat, "etl_mapping_id must be a valid UUID", nil)
		return
	}

	info, err := h.schema.GetColumnInfo(username, mappingID, tableName, columnName)
	if err != nil {
		RespondWithAppError(c, err)
		return
	}
	RespondWithSuccess(c, http.StatusOK, info)
}

// getFieldType normalizes a raw scanned type token. Open endpoint; the GET
// variant needs no identity.
func (h *Handler) getFieldType(c *gin.Context) {
	token := c.Query("type")
	RespondWithSuccess(c, http.StatusOK, sourceschema.FieldType(token))
}

// getCdmVersions lists the available CDM versions.
func (h *Handler) getCdmVersions(c *gin.Context) {
	slog.Info("REST request to get CDM versions", "user", currentUser(c))
	RespondWithSuccess(c, http.StatusOK, h.cdm.Versions())
}

// getCdmSchema returns the target tables of one CDM version.
func (h *Handler) getCdmSchema(c *gin.Context) {
	slog.Info("REST request to get CDM schema", "user", currentUser(c))

	version := c.Query("cdm_version")
	if version == "" {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "cdm_version query parameter is required", nil)
		return
	}
	tables, err := h.cdm.Schema(version)
	if err != nil {
		RespondWithAppError(c, err, models.ErrorCodeCdmVersionNotFound)
		return
	}
	RespondWithSuccess(c, http.StatusOK, tables)
}
