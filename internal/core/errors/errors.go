package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type ErrorCode string

// Node-local codes. These annotate a single tree node and never abort a run.
const (
	CodeInvalidManifest   ErrorCode = "INVALID_MANIFEST"
	CodeNotInstalled      ErrorCode = "NOT_INSTALLED"
	CodeResolutionWarning ErrorCode = "RESOLUTION_WARNING"
	CodeResolutionTimeout ErrorCode = "RESOLUTION_TIMEOUT"
	CodeScanError         ErrorCode = "SCAN_ERROR"
	CodeScanTimeout       ErrorCode = "SCAN_TIMEOUT"
)

// Process-level codes.
const (
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeValidationError  ErrorCode = "VALIDATION_ERROR"
	CodeInternal         ErrorCode = "INTERNAL_ERROR"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
)

type DomainError struct {
	Code    ErrorCode
	Message string
	Err     error
	Context map[string]interface{}
}

const (
	CtxPath      = "path"
	CtxOperation = "operation"
	CtxPackage   = "package"
	CtxRange     = "range"
	CtxVersion   = "version"
	CtxTimeout   = "timeout"
)

func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		msg += " {" + strings.Join(parts, " ") + "}"
	}
	return msg
}

// Summary is the message without context, used by renderers.
func (e *DomainError) Summary() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func New(code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg}
}

func Wrap(err error, code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg, Err: err}
}

// NewNode builds a node-local annotation. The concrete type is returned so
// tree fields can hold it without type assertions.
func NewNode(code ErrorCode, msg string, err error) *DomainError {
	return &DomainError{Code: code, Message: msg, Err: err}
}

// AddContext attaches a key/value to err, wrapping foreign errors as INTERNAL_ERROR.
func AddContext(err error, key string, value interface{}) error {
	var de *DomainError
	if errors.As(err, &de) {
		de.WithContext(key, value)
		return de
	}
	return &DomainError{
		Code:    CodeInternal,
		Message: "wrapped error",
		Err:     err,
		Context: map[string]interface{}{key: value},
	}
}

func IsCode(err error, code ErrorCode) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// As returns the first DomainError in err's chain.
func As(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsIssue reports whether code counts toward a run's node-level issue total.
func IsIssue(code ErrorCode) bool {
	switch code {
	case CodeInvalidManifest, CodeNotInstalled, CodeResolutionTimeout, CodeScanError, CodeScanTimeout:
		return true
	default:
		return false
	}
}
