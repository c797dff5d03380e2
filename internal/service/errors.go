package service

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/MimeLyc/subrender/pkg/log"
)

type ErrorType int

const (
	ErrValidation ErrorType = iota
	ErrConversion
	ErrTranscription
	ErrRender
	ErrTimeout
	ErrNotFound
	ErrUnavailable
	ErrUnknown
)

// Error is a classified failure surfaced to API callers.
type Error struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		var ctxParts []string
		for k, v := range e.Context {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, v))
		}
		sort.Strings(ctxParts)
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

// HTTPStatus maps the error type to a response status code.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case ErrValidation:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrUnavailable:
		return http.StatusServiceUnavailable
	case ErrTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Advice is a short operator hint for the error type.
func (e *Error) Advice() string {
	switch e.Type {
	case ErrValidation:
		return "Check the request parameters and uploaded file"
	case ErrConversion:
		return "Ensure ffmpeg is installed and the file is a readable audio or video container"
	case ErrTranscription:
		return "Check the whisper executable and model paths, and that the audio contains speech"
	case ErrRender:
		return "Check the render command configuration and the composition id"
	case ErrTimeout:
		return "The file may be too large; try a shorter clip or raise the timeout"
	case ErrNotFound:
		return "The resource does not exist or has expired"
	case ErrUnavailable:
		return "A required external tool is not installed or not configured"
	default:
		return "Review the server log for details"
	}
}

func (t ErrorType) String() string {
	switch t {
	case ErrValidation:
		return "Validation"
	case ErrConversion:
		return "Conversion"
	case ErrTranscription:
		return "Transcription"
	case ErrRender:
		return "Render"
	case ErrTimeout:
		return "Timeout"
	case ErrNotFound:
		return "NotFound"
	case ErrUnavailable:
		return "Unavailable"
	default:
		return "Unknown"
	}
}

func IsErrorType(err error, errorType ErrorType) bool {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Type == errorType
	}
	return false
}

func WrapError(err error, errorType ErrorType, message string) *Error {
	return NewErrorWithCause(errorType, message, err)
}

// AsError classifies any error, defaulting to ErrUnknown.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	log.Debug("Unclassified error: %v", err)
	return NewErrorWithCause(ErrUnknown, err.Error(), err)
}

func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(ErrUnknown, fmt.Sprintf("runtime error: %v", r))
		}
	}()

	return fn()
}
