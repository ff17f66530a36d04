// Package errs provides structured error types shared across the gateway.
package errs

import (
	"errors"
	"strconv"
	"strings"
)

// Code identifies an error category in the caller-visible taxonomy.
type Code string

const (
	// CodeValidation indicates invalid input provided by the caller
	// (bad limit, interval, side, type or symbol).
	CodeValidation Code = "validation"
	// CodeAuth indicates authentication or account configuration errors.
	CodeAuth Code = "auth"
	// CodeRateLimited indicates that the request exceeded upstream rate limits.
	CodeRateLimited Code = "rate_limited"
	// CodeHTTP indicates a venue-side 4xx failure other than 429.
	CodeHTTP Code = "http"
	// CodeNetwork indicates a retryable transport failure
	// (timeout, connection reset).
	CodeNetwork Code = "network"
	// CodeStreamTerminal indicates a websocket subscription the venue
	// rejected, or a queue overflow that tore the stream down.
	CodeStreamTerminal Code = "stream_terminal"
	// CodeOther captures 5xx responses, decode failures and everything
	// else that is not classified.
	CodeOther Code = "other"
)

// E captures structured error information produced across the gateway stack.
type E struct {
	Venue   string
	Code    Code
	HTTP    int
	RawCode string
	RawMsg  string
	Message string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the venue and error code.
func New(venue string, code Code, opts ...Option) *E {
	e := &E{Venue: strings.TrimSpace(venue), Code: code}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) { e.Message = trimmed }
}

// WithHTTP records the associated HTTP status code.
func WithHTTP(status int) Option {
	return func(e *E) { e.HTTP = status }
}

// WithRawCode captures the raw venue error code.
func WithRawCode(code string) Option {
	trimmed := strings.TrimSpace(code)
	return func(e *E) { e.RawCode = trimmed }
}

// WithRawMessage captures the raw venue error message.
func WithRawMessage(msg string) Option {
	return func(e *E) { e.RawMsg = msg }
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) { e.cause = err }
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	venue := strings.TrimSpace(e.Venue)
	if venue == "" {
		venue = "unknown"
	}
	parts = append(parts, "venue="+venue)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = string(CodeOther)
	}
	parts = append(parts, "code="+code)

	if e.HTTP > 0 {
		parts = append(parts, "http="+strconv.Itoa(e.HTTP))
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.RawCode != "" {
		parts = append(parts, "raw_code="+strconv.Quote(e.RawCode))
	}
	if e.RawMsg != "" {
		parts = append(parts, "raw_msg="+strconv.Quote(e.RawMsg))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// CodeOf extracts the taxonomy code from err, or CodeOther when err does not
// carry an envelope.
func CodeOf(err error) Code {
	var e *E
	if errors.As(err, &e) && e != nil {
		return e.Code
	}
	return CodeOther
}

// HasCode reports whether err carries the given taxonomy code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// Retryable reports whether err represents a transient transport or
// throttling failure.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeNetwork, CodeRateLimited:
		return true
	default:
		return false
	}
}

// Validation builds a caller-input error without venue context.
func Validation(msg string) *E {
	return New("", CodeValidation, WithMessage(msg))
}
