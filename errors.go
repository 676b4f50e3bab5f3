package camview

import (
	"errors"
	"fmt"
)

// Kind classifies errors returned by sources and the decoder, so callers can
// decide whether to retry.
type Kind int

const (
	KindUnknown Kind = iota
	KindDeviceNotFound
	KindNegotiation
	KindTransient
	KindDecode
	KindEndOfStream
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindDeviceNotFound:
		return "device not found"
	case KindNegotiation:
		return "negotiation failed"
	case KindTransient:
		return "transient read failure"
	case KindDecode:
		return "decode failed"
	case KindEndOfStream:
		return "end of stream"
	default:
		return "unknown"
	}
}

// Sentinel errors, one per Kind. Use errors.Is to test for them.
var (
	ErrDeviceNotFound = &Error{Kind: KindDeviceNotFound}
	ErrNegotiation    = &Error{Kind: KindNegotiation}
	ErrTransient      = &Error{Kind: KindTransient}
	ErrDecode         = &Error{Kind: KindDecode}
	ErrEndOfStream    = &Error{Kind: KindEndOfStream}
)

// Error is an error with a Kind. Errors with the same Kind match each other
// with errors.Is, regardless of Op and Err.
type Error struct {
	Kind Kind
	Op   string // Operation that failed, e.g. "set format".
	Err  error  // Underlying error, may be nil.
}

// Errorf returns an Error of kind k for operation op, with an underlying
// error formatted from format and args.
func Errorf(k Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: k, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap returns an Error of kind k for operation op wrapping err.
func Wrap(k Kind, op string, err error) error {
	return &Error{Kind: k, Op: op, Err: err}
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsTransient reports whether err is a transient read failure that may
// succeed when retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
