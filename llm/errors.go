// Provider error classification.
//
// Information Hiding:
// - Each SDK's error type and status field hidden behind StatusError
// - Retry classification (network, 408, 429, 5xx) encapsulated
// - API keys scrubbed from error text

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/richinex/toolthread/internal/observability"
)

// StatusError is a failure to obtain a completion from a provider.
// StatusCode is zero when no HTTP response was received.
type StatusError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	msg := "request failed"
	if e.Err != nil {
		msg = observability.Redact(e.Err.Error())
	}
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Provider, msg)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, msg)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient: a network error, a
// request timeout, rate limiting or a server-side error.
func (e *StatusError) Retryable() bool {
	switch {
	case e.StatusCode == 0:
		return isNetworkError(e.Err)
	case e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode == http.StatusTooManyRequests,
		e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err carries a retryable *StatusError.
func IsRetryable(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Retryable()
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// wrapError converts an SDK error into a *StatusError. Caller cancellation
// is passed through unchanged.
func wrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var existing *StatusError
	if errors.As(err, &existing) {
		return err
	}
	return &StatusError{
		Provider:   provider,
		StatusCode: statusCode(err),
		Err:        err,
	}
}

// statusCode digs the HTTP status out of the known SDK error types.
func statusCode(err error) int {
	var oaiAPI *openai.APIError
	if errors.As(err, &oaiAPI) {
		return oaiAPI.HTTPStatusCode
	}
	var oaiReq *openai.RequestError
	if errors.As(err, &oaiReq) {
		return oaiReq.HTTPStatusCode
	}
	var antErr *anthropic.Error
	if errors.As(err, &antErr) {
		return antErr.StatusCode
	}
	var genErr genai.APIError
	if errors.As(err, &genErr) {
		return genErr.Code
	}
	var genPtr *genai.APIError
	if errors.As(err, &genPtr) {
		return genPtr.Code
	}
	return 0
}

// ErrModel matches every *ModelError through errors.Is.
var ErrModel = errors.New("model error")

// ErrorKind classifies a ModelError.
type ErrorKind string

const (
	// KindTransport: the provider could not be reached or refused the request.
	KindTransport ErrorKind = "transport"
	// KindMalformed: the response could not be interpreted.
	KindMalformed ErrorKind = "malformed"
	// KindSchemaViolation: a structured answer does not match the requested schema.
	KindSchemaViolation ErrorKind = "schema_violation"
	// KindEmptyToolRequest: the model asked for tool use but named no calls.
	KindEmptyToolRequest ErrorKind = "empty_tool_request"
	// KindDuplicateToolCallID: a tool call id repeats within a round or the session.
	KindDuplicateToolCallID ErrorKind = "duplicate_tool_call_id"
)

// ModelError is a failure to obtain a usable decision from the model.
type ModelError struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

// NewModelError creates a ModelError.
func NewModelError(kind ErrorKind, detail string, err error) *ModelError {
	return &ModelError{Kind: kind, Detail: detail, Err: err}
}

func (e *ModelError) Error() string {
	msg := fmt.Sprintf("model error (%s)", e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrModel) true for any kind.
func (e *ModelError) Is(target error) bool {
	return target == ErrModel
}

// IsKind reports whether err is a *ModelError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var modelErr *ModelError
	return errors.As(err, &modelErr) && modelErr.Kind == kind
}
