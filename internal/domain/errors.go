package domain

import (
	"errors"
	"net/http"
)

// Error codes for boot errors. Every boot error is fatal: the process is
// expected to stop rather than continue in a partially mounted state.
const (
	CodeMissingRootPath = iota + 1
	CodeManifestNotFound
	CodeInvalidManifest
	CodeModuleNameConflict
	CodeMissingModuleName
	CodeMissingDependency
	CodeMissingInitializers
	CodeNotAnInitializer

	// CodeModuleNotFound is a lookup miss at request time, not a boot error.
	CodeModuleNotFound
)

// AppError represents a boot error with a code, message, and optional wrapped error.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the wrapped error for use with errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Predefined boot errors.
//
// Detailed error types in the manifest, modules and initd packages unwrap to
// one of these sentinels, so errors.Is works against them directly. The IsX
// helpers additionally match any *AppError carrying the same code, including
// instances built with NewAppError.
var (
	ErrMissingRootPath     = &AppError{Code: CodeMissingRootPath, Message: "root path is required"}
	ErrManifestNotFound    = &AppError{Code: CodeManifestNotFound, Message: "manifest not found"}
	ErrInvalidManifest     = &AppError{Code: CodeInvalidManifest, Message: "invalid manifest"}
	ErrModuleNameConflict  = &AppError{Code: CodeModuleNameConflict, Message: "module name conflict"}
	ErrMissingModuleName   = &AppError{Code: CodeMissingModuleName, Message: "module name is required"}
	ErrMissingDependency   = &AppError{Code: CodeMissingDependency, Message: "missing module dependency"}
	ErrMissingInitializers = &AppError{Code: CodeMissingInitializers, Message: "no initializers were passed"}
	ErrNotAnInitializer    = &AppError{Code: CodeNotAnInitializer, Message: "not an initializer"}
	ErrModuleNotFound      = &AppError{Code: CodeModuleNotFound, Message: "module not found"}
)

// NewAppError creates a new AppError with the given code, message, and wrapped error.
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsMissingRootPath reports whether err is or wraps an AppError with CodeMissingRootPath.
func IsMissingRootPath(err error) bool {
	return hasCode(err, CodeMissingRootPath)
}

// IsManifestNotFound reports whether err is or wraps an AppError with CodeManifestNotFound.
func IsManifestNotFound(err error) bool {
	return hasCode(err, CodeManifestNotFound)
}

// IsInvalidManifest reports whether err is or wraps an AppError with CodeInvalidManifest.
func IsInvalidManifest(err error) bool {
	return hasCode(err, CodeInvalidManifest)
}

// IsModuleNameConflict reports whether err is or wraps an AppError with CodeModuleNameConflict.
func IsModuleNameConflict(err error) bool {
	return hasCode(err, CodeModuleNameConflict)
}

// IsMissingModuleName reports whether err is or wraps an AppError with CodeMissingModuleName.
func IsMissingModuleName(err error) bool {
	return hasCode(err, CodeMissingModuleName)
}

// IsMissingDependency reports whether err is or wraps an AppError with CodeMissingDependency.
func IsMissingDependency(err error) bool {
	return hasCode(err, CodeMissingDependency)
}

// IsMissingInitializers reports whether err is or wraps an AppError with CodeMissingInitializers.
func IsMissingInitializers(err error) bool {
	return hasCode(err, CodeMissingInitializers)
}

// IsNotAnInitializer reports whether err is or wraps an AppError with CodeNotAnInitializer.
func IsNotAnInitializer(err error) bool {
	return hasCode(err, CodeNotAnInitializer)
}

// IsModuleNotFound reports whether err is or wraps an AppError with CodeModuleNotFound.
func IsModuleNotFound(err error) bool {
	return hasCode(err, CodeModuleNotFound)
}

// HTTPStatusCode maps an error to the HTTP status the info endpoints answer
// with. Errors that are not an *AppError map to 500.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	switch appErr.Code {
	case CodeMissingModuleName:
		return http.StatusBadRequest
	case CodeModuleNotFound, CodeManifestNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// hasCode checks whether err is or wraps an *AppError with the given code.
func hasCode(err error, code int) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
