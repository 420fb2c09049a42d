// Package errors provides structured error handling for barshelf.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (persistent store, catalog blobs)
//   - 3XX: Upstream errors (spreadsheet source)
//   - 4XX: Request errors (validation, not found, rate limited)
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates persistent store and serialization errors.
	CategoryStorage Category = "STORAGE"
	// CategoryUpstream indicates failures talking to the data source.
	CategoryUpstream Category = "UPSTREAM"
	// CategoryRequest indicates problems with what the caller asked for.
	CategoryRequest Category = "REQUEST"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeStoreUnavailable = "ERR_201_STORE_UNAVAILABLE"
	ErrCodeCorruptBlob      = "ERR_205_CORRUPT_BLOB"
	ErrCodeStructural       = "ERR_207_STRUCTURAL"
	ErrCodePersistence      = "ERR_208_PERSISTENCE"

	// Upstream errors (300-399)
	ErrCodeUpstreamFetch   = "ERR_301_UPSTREAM_FETCH"
	ErrCodeUpstreamTimeout = "ERR_302_UPSTREAM_TIMEOUT"
	ErrCodeUpstreamAuth    = "ERR_303_UPSTREAM_AUTH"

	// Request errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeNotFound     = "ERR_404_NOT_FOUND"
	ErrCodeRateLimited  = "ERR_410_RATE_LIMITED"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeBuildFailed  = "ERR_502_BUILD_FAILED"
	ErrCodeQueryFailed  = "ERR_503_QUERY_FAILED"
	ErrCodeDaemonFailed = "ERR_504_DAEMON_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "301" from "ERR_301_UPSTREAM_FETCH")
	numStr := code[4:7]

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryUpstream
	case '4':
		return CategoryRequest
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptBlob, ErrCodeStructural, ErrCodePersistence:
		// Treated as a cache miss or logged and swallowed.
		return SeverityWarning
	case ErrCodeNotFound, ErrCodeRateLimited:
		return SeverityInfo
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeUpstreamFetch, ErrCodeUpstreamTimeout, ErrCodeStoreUnavailable, ErrCodeRateLimited:
		return true
	default:
		return false
	}
}
