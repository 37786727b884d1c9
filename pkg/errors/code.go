package errors

import "net/http"

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 17000-17999: Exercise provisioning errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError       ErrorCode = 10100
	RecordNotFound      ErrorCode = 10101
	RecordAlreadyExists ErrorCode = 10102
	TransactionFailed   ErrorCode = 10103

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200
	LockFailed ErrorCode = 10203

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Exercise Provisioning Errors (17000-17999) ==========

	// Exercise basic (17000-17099)
	ExerciseNotFound      ErrorCode = 17000
	ExerciseCloneFailed   ErrorCode = 17001
	ExerciseUpdateFailed  ErrorCode = 17002
	ExerciseDeleteFailed  ErrorCode = 17003
	ImportInProgress      ErrorCode = 17004
	DuplicateTestCaseName ErrorCode = 17005

	// Settings (17100-17199)
	InvalidPackageName         ErrorCode = 17100
	ProjectTypeRequired        ErrorCode = 17101
	ConflictingFeatureFlags    ErrorCode = 17102
	StaticAnalysisNotSupported ErrorCode = 17103
	ProjectKeyAlreadyExists    ErrorCode = 17104
	InvalidShortName           ErrorCode = 17105

	// External systems (17200-17299)
	VCSProvisioningFailed ErrorCode = 17200
	CIProvisioningFailed  ErrorCode = 17201
	ArchiveImportFailed   ErrorCode = 17202
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Database
	DatabaseError:       "Database operation failed",
	RecordNotFound:      "Record not found in database",
	RecordAlreadyExists: "Record already exists",
	TransactionFailed:   "Database transaction failed",

	// Cache
	CacheError: "Cache operation failed",
	LockFailed: "Failed to acquire lock",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Exercise
	ExerciseNotFound:      "Programming exercise not found",
	ExerciseCloneFailed:   "Failed to copy exercise content",
	ExerciseUpdateFailed:  "Failed to update exercise",
	ExerciseDeleteFailed:  "Failed to delete exercise",
	ImportInProgress:      "An import into this project is already running",
	DuplicateTestCaseName: "Test case names must be unique within an exercise",

	// Settings
	InvalidPackageName:         "Invalid package name",
	ProjectTypeRequired:        "Project type is required for this language",
	ConflictingFeatureFlags:    "Conflicting exercise feature settings",
	StaticAnalysisNotSupported: "Static code analysis is not supported for this language",
	ProjectKeyAlreadyExists:    "A project with the same key already exists",
	InvalidShortName:           "Invalid short name",

	// External systems
	VCSProvisioningFailed: "Version control provisioning failed",
	CIProvisioningFailed:  "Continuous integration provisioning failed",
	ArchiveImportFailed:   "Failed to import exercise archive",
}

// Message returns the default message of the code.
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus maps the code to the status the REST layer responds with.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case Success:
		return http.StatusOK
	case InvalidParams, ValidationFailed, InvalidFormat, InvalidValue, RequiredFieldEmpty,
		InvalidPackageName, ProjectTypeRequired, ConflictingFeatureFlags,
		StaticAnalysisNotSupported, InvalidShortName, DuplicateTestCaseName:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound, RecordNotFound, ExerciseNotFound:
		return http.StatusNotFound
	case RecordAlreadyExists, ProjectKeyAlreadyExists, ImportInProgress, LockFailed:
		return http.StatusConflict
	case TooManyRequests:
		return http.StatusTooManyRequests
	case ServiceUnavailable:
		return http.StatusServiceUnavailable
	case Timeout:
		return http.StatusGatewayTimeout
	case VCSProvisioningFailed, CIProvisioningFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
