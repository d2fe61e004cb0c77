// Package stageerr classifies failures raised by pipeline stages so the
// driver can decide between retrying and failing fast.
package stageerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies the class of a stage failure.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindTransport covers network errors and non-2xx responses from the source API.
	KindTransport
	// KindAudit covers failures to persist the raw payload after a successful fetch.
	KindAudit
	// KindTransform covers malformed payloads that cannot be normalized.
	KindTransform
	// KindSchema covers tables missing required columns.
	KindSchema
	// KindQuality covers data-quality violations such as negative counts.
	KindQuality
	// KindPersistence covers warehouse transaction failures.
	KindPersistence
	// KindConfig covers invalid requests and configuration.
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindAudit:
		return "audit"
	case KindTransform:
		return "transform"
	case KindSchema:
		return "schema"
	case KindQuality:
		return "quality"
	case KindPersistence:
		return "persistence"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Retryable reports whether a failure of this kind may succeed on a later attempt.
func (k Kind) Retryable() bool {
	switch k {
	case KindTransport, KindAudit, KindPersistence:
		return true
	default:
		return false
	}
}

// Error is a classified stage failure.
type Error struct {
	Kind Kind
	Op   string
	// Columns lists the offending columns for schema and quality failures.
	Columns []string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
	} else {
		b.WriteString(e.Kind.String())
		b.WriteString(" error")
	}
	if len(e.Columns) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Columns, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns a classified error wrapping err.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf returns a classified error with a formatted message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Transport wraps a fetch failure.
func Transport(op string, err error) *Error { return New(KindTransport, op, err) }

// Audit wraps a raw payload persistence failure.
func Audit(op string, err error) *Error { return New(KindAudit, op, err) }

// Transform wraps a normalization failure.
func Transform(op string, err error) *Error { return New(KindTransform, op, err) }

// Persistence wraps a warehouse failure.
func Persistence(op string, err error) *Error { return New(KindPersistence, op, err) }

// MissingColumns returns a schema error naming the absent columns.
func MissingColumns(op string, columns []string) *Error {
	return &Error{Kind: KindSchema, Op: op, Columns: columns, Err: errors.New("missing required columns")}
}

// Quality returns a quality error for the given columns.
func Quality(op string, columns []string, err error) *Error {
	return &Error{Kind: KindQuality, Op: op, Columns: columns, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether err is worth another attempt. Unclassified
// errors are not retried.
func Retryable(err error) bool {
	return KindOf(err).Retryable()
}
