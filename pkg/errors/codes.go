package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeFeatureDisabled    ErrorCode = "COMMON_015"
	ErrCodeNotImplemented     ErrorCode = "COMMON_016"
	ErrCodeLockNotAcquired    ErrorCode = "COMMON_017"
	ErrCodeStorageError       ErrorCode = "COMMON_018"
	ErrCodeMessagingError     ErrorCode = "COMMON_019"
)

// Aliases
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeOK           = ErrorCode("OK")
	CodeUnknown      = ErrorCode("UNKNOWN")
)

// SMARTS Module Error Codes
const (
	// ErrCodeMalformedInputLine marks an import line that is neither a comment
	// nor a data line. Collected and reported, never fatal.
	ErrCodeMalformedInputLine ErrorCode = "SMARTS_001"
	ErrCodeUnknownMode        ErrorCode = "SMARTS_002"
	ErrCodeModeMismatch       ErrorCode = "SMARTS_003"
	ErrCodeParseGrammar       ErrorCode = "SMARTS_004"
	ErrCodeNoPatterns         ErrorCode = "SMARTS_005"
	ErrCodeInvalidPattern     ErrorCode = "SMARTS_006"
	ErrCodeEdgeInvariant      ErrorCode = "SMARTS_007"
	ErrCodeModeNotImplemented ErrorCode = "SMARTS_008"
	ErrCodeSMARTSNotFound     ErrorCode = "SMARTS_009"
	ErrCodeLibraryExists      ErrorCode = "SMARTS_010"
)

// External Tool Error Codes
const (
	ErrCodeExternalTool        ErrorCode = "TOOL_001"
	ErrCodeExternalToolTimeout ErrorCode = "TOOL_002"
)

// Molecule Module Error Codes
const (
	ErrCodeUploadValidation      ErrorCode = "MOL_001"
	ErrCodePipelineFailure       ErrorCode = "MOL_002"
	ErrCodeMoleculeSetNotFound   ErrorCode = "MOL_003"
	ErrCodeMoleculeNotFound      ErrorCode = "MOL_004"
	ErrCodeMoleculeParsingFailed ErrorCode = "MOL_006"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeFeatureDisabled:    http.StatusForbidden,
	ErrCodeNotImplemented:     http.StatusNotImplemented,
	ErrCodeLockNotAcquired:    http.StatusConflict,
	ErrCodeStorageError:       http.StatusInternalServerError,
	ErrCodeMessagingError:     http.StatusInternalServerError,

	ErrCodeMalformedInputLine: http.StatusBadRequest,
	ErrCodeUnknownMode:        http.StatusBadRequest,
	ErrCodeModeMismatch:       http.StatusBadGateway,
	ErrCodeParseGrammar:       http.StatusBadGateway,
	ErrCodeNoPatterns:         http.StatusConflict,
	ErrCodeInvalidPattern:     http.StatusBadRequest,
	ErrCodeEdgeInvariant:      http.StatusInternalServerError,
	ErrCodeModeNotImplemented: http.StatusNotImplemented,
	ErrCodeSMARTSNotFound:     http.StatusNotFound,
	ErrCodeLibraryExists:      http.StatusConflict,

	ErrCodeExternalTool:        http.StatusBadGateway,
	ErrCodeExternalToolTimeout: http.StatusGatewayTimeout,

	ErrCodeUploadValidation:      http.StatusBadRequest,
	ErrCodePipelineFailure:       http.StatusInternalServerError,
	ErrCodeMoleculeSetNotFound:   http.StatusNotFound,
	ErrCodeMoleculeNotFound:      http.StatusNotFound,
	ErrCodeMoleculeParsingFailed: http.StatusBadRequest,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeFeatureDisabled:    "feature disabled",
	ErrCodeNotImplemented:     "not implemented",
	ErrCodeLockNotAcquired:    "another run of this pipeline is in progress",
	ErrCodeStorageError:       "object storage error",
	ErrCodeMessagingError:     "messaging error",

	ErrCodeMalformedInputLine: "malformed input line",
	ErrCodeUnknownMode:        "unknown comparison mode",
	ErrCodeModeMismatch:       "comparison tool ran in a different mode than requested",
	ErrCodeParseGrammar:       "malformed tool output",
	ErrCodeNoPatterns:         "no SMARTS available",
	ErrCodeInvalidPattern:     "pattern contains a separator character",
	ErrCodeEdgeInvariant:      "relationship invariant violated",
	ErrCodeModeNotImplemented: "comparison mode not implemented",
	ErrCodeSMARTSNotFound:     "SMARTS not found",
	ErrCodeLibraryExists:      "library already imported",

	ErrCodeExternalTool:        "external tool failed",
	ErrCodeExternalToolTimeout: "external tool timed out",

	ErrCodeUploadValidation:      "invalid upload",
	ErrCodePipelineFailure:       "molecule matching failed",
	ErrCodeMoleculeSetNotFound:   "molecule set not found",
	ErrCodeMoleculeNotFound:      "molecule not found",
	ErrCodeMoleculeParsingFailed: "failed to parse molecule file",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
