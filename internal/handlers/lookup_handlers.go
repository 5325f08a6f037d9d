package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"mapping-service/internal/apperrors"
	"mapping-service/internal/models"
)

// getLookups lists the lookups of one type visible to the user.
func (h *Handler) getLookups(c *gin.Context) {
	username := currentUser(c)
	slog.Info("REST request to get lookup list", "user", username)

	items, err := h.lookups.List(username, c.Query("lookupType"))
	if err != nil {
		RespondWithAppError(c, err, models.ErrorCodeInvalidEnumValue)
		return
	}
	RespondWithSuccess(c, http.StatusOK, items)
}

// getLookupSQL returns a lookup's defining SQL, resolved by id when given,
// otherwise by the legacy name+type pair.
func (h *Handler) getLookupSQL(c *gin.Context) {
	username := currentUser(c)
	slog.Info("REST request to get lookup sql", "user", username)

	id, ok := optionalUUIDParam(c, "id")
	if !ok {
		return
	}
	name := c.Query("name")
	lookupType := c.Query("lookupType")
	if id == nil && name == "" {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "either id or name with lookupType is required", nil)
		return
	}

	sql, err := h.lookups.GetSQL(username, id, name, lookupType)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			RespondWithAppError(c, err, models.ErrorCodeLookupNotFound)
		} else {
			RespondWithAppError(c, err, models.ErrorCodeInvalidEnumValue)
		}
		return
	}
	RespondWithSuccess(c, http.StatusOK, gin.H{"sql": sql})
}

// saveLookup creates or replaces a user-defined lookup. A duplicate
// (name, type) for the same user overwrites the previous definition.
func (h *Handler) saveLookup(c *gin.Context) {
	username := currentUser(c)
	slog.Info("REST request to save lookup", "user", username)

	var req models.LookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "Invalid request payload", gin.H{"reason": err.Error()})
		return
	}

	saved, err := h.lookups.Save(username, req)
	if err != nil {
		RespondWithAppError(c, err)
		return
	}
	status := http.StatusCreated
	if c.Request.Method == http.MethodPut {
		status = http.StatusOK
	}
	RespondWithSuccess(c, status, saved)
}

// deleteLookup removes a lookup by id (current path) or by name across both
// lookup types (legacy path, kept until legacy callers are retired).
func (h *Handler) deleteLookup(c *gin.Context) {
	username := currentUser(c)
	slog.Info("REST request to delete lookup", "user", username)

	id, ok := optionalUUIDParam(c, "id")
	if !ok {
		return
	}
	if id != nil {
		if err := h.lookups.DeleteByID(username, *id); err != nil {
			if apperrors.IsKind(err, apperrors.KindNotFound) {
				RespondWithAppError(c, err, models.ErrorCodeLookupNotFound)
			} else {
				RespondWithAppError(c, err)
			}
			return
		}
		RespondWithSuccess(c, http.StatusOK, gin.H{"success": true})
		return
	}

	name := c.Query("name")
	if name == "" {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "either id or name is required", nil)
		return
	}
	if err := h.lookups.DeleteByName(username, name); err != nil {
		RespondWithAppError(c, err)
		return
	}
	RespondWithSuccess(c, http.StatusOK, gin.H{"success": true})
}

// optionalUUIDParam parses an optional UUID query parameter, answering 400 on
// malformed input.
func optionalUUIDParam(c *gin.Context, param string) (*uuid.UUID, bool) {
	raw := c.Query(param)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeInvalidIDFormat, param+" must be a valid UUID", nil)
		return nil, false
	}
	return &id, true
}
