package dto

import (
	"net/http"

	syncdomain "github.com/invsync/backend/internal/domain/sync"
)

// Error codes, format ERR_<CATEGORY>_<DESCRIPTION>.
const (
	ErrCodeInternal   = "ERR_INTERNAL"
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	ErrCodeValidation = "ERR_VALIDATION"
	ErrCodeNotFound   = "ERR_NOT_FOUND"
	ErrCodeConflict   = "ERR_CONFLICT"

	// ErrCodeSyncActive is returned when a trigger loses the
	// single-flight race to a run already in progress.
	ErrCodeSyncActive = "ERR_SYNC_ACTIVE"
	// ErrCodeConfiguration covers missing or rejected credentials and
	// other setup problems.
	ErrCodeConfiguration = "ERR_CONFIGURATION"
	// ErrCodeConnectivity covers upstream reachability failures.
	ErrCodeConnectivity = "ERR_CONNECTIVITY"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes.
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:      http.StatusInternalServerError,
	ErrCodeBadRequest:    http.StatusBadRequest,
	ErrCodeValidation:    http.StatusBadRequest,
	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeConflict:      http.StatusConflict,
	ErrCodeSyncActive:    http.StatusConflict,
	ErrCodeConfiguration: http.StatusUnprocessableEntity,
	ErrCodeConnectivity:  http.StatusBadGateway,
}

// GetHTTPStatus returns the HTTP status for an error code, defaulting
// to 500 for unknown codes.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// CodeForClass maps a sync error class to an API error code.
func CodeForClass(class syncdomain.ErrorClass) string {
	switch class {
	case syncdomain.ClassConcurrency:
		return ErrCodeSyncActive
	case syncdomain.ClassConfiguration:
		return ErrCodeConfiguration
	case syncdomain.ClassConnectivity:
		return ErrCodeConnectivity
	case syncdomain.ClassValidation:
		return ErrCodeValidation
	case syncdomain.ClassConflict:
		return ErrCodeConflict
	default:
		return ErrCodeInternal
	}
}
