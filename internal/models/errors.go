package models

// APIError represents a standardized error response format for the API.
type APIError struct {
	Code    string      `json:"code"`              // Application-specific error code (e.g., "NOT_FOUND", "VALIDATION_ERROR")
	Message string      `json:"message"`           // Human-readable message describing the error
	Details interface{} `json:"details,omitempty"` // Optional field for additional error details
}

// Predefined application-specific error codes
const (
	// Generic Errors
	ErrorCodeInternalServerError = "INTERNAL_SERVER_ERROR"
	ErrorCodeUnknown             = "UNKNOWN_ERROR"

	// Input Validation & Data Errors
	ErrorCodeValidation       = "VALIDATION_ERROR" // General validation failure
	ErrorCodeInvalidJSON      = "INVALID_JSON"     // Malformed JSON payload
	ErrorCodeInvalidIDFormat  = "INVALID_ID_FORMAT"
	ErrorCodeInvalidSQL       = "INVALID_SQL"        // User-authored SQL failed to parse or run
	ErrorCodeInvalidReport    = "INVALID_REPORT"     // Non-standard scan report structure
	ErrorCodeInvalidEnumValue = "INVALID_ENUM_VALUE" // For fields like LookupType

	// Resource Specific Errors
	ErrorCodeNotFound           = "NOT_FOUND" // Generic resource not found
	ErrorCodeReportNotFound     = "REPORT_NOT_FOUND"
	ErrorCodeMappingNotFound    = "ETL_MAPPING_NOT_FOUND"
	ErrorCodeLookupNotFound     = "LOOKUP_NOT_FOUND"
	ErrorCodeCdmVersionNotFound = "CDM_VERSION_NOT_FOUND"

	// Auth Errors
	ErrorCodeUnauthorized = "UNAUTHORIZED"
)
