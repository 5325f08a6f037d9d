package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"mapping-service/internal/apperrors"
	"mapping-service/internal/models"
)

// RespondWithError sends a standardized JSON error response.
func RespondWithError(c *gin.Context, httpStatus int, appErrorCode string, message string, details interface{}) {
	errResp := models.APIError{
		Code:    appErrorCode,
		Message: message,
		Details: details,
	}
	c.JSON(httpStatus, errResp)
}

// RespondWithAppError translates a typed service error into its HTTP
// response. An optional code overrides the default for the 400/404 classes.
// Internal errors are fully logged but answered with a generic message so
// nothing leaks to the client.
func RespondWithAppError(c *gin.Context, err error, codeOverride ...string) {
	appErr := apperrors.As(err)
	if appErr == nil {
		slog.Error("unexpected error", "path", c.FullPath(), "error", err)
		RespondWithError(c, http.StatusInternalServerError, models.ErrorCodeInternalServerError, "Internal server error", nil)
		return
	}

	code := defaultErrorCode(appErr.Kind)
	if len(codeOverride) > 0 {
		code = codeOverride[0]
	}

	switch appErr.Kind {
	case apperrors.KindValidation, apperrors.KindNotFound:
		RespondWithError(c, appErr.HTTPStatus(), code, appErr.Error(), nil)
	default:
		slog.Error("internal error", "path", c.FullPath(), "error", err)
		RespondWithError(c, http.StatusInternalServerError, models.ErrorCodeInternalServerError, "Internal server error", nil)
	}
}

func defaultErrorCode(kind apperrors.Kind) string {
	switch kind {
	case apperrors.KindValidation:
		return models.ErrorCodeValidation
	case apperrors.KindNotFound:
		return models.ErrorCodeNotFound
	default:
		return models.ErrorCodeInternalServerError
	}
}

// RespondWithSuccess sends a standardized JSON success response; a nil body
// becomes a bare status (used for 204 No Content).
func RespondWithSuccess(c *gin.Context, httpStatus int, data interface{}) {
	if data != nil {
		c.JSON(httpStatus, data)
	} else {
		c.Status(httpStatus)
	}
}
