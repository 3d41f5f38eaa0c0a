package direct

import "fmt"

// Kind enumerates the error taxonomy used across every subsystem.
// Codec and state-machine errors carry one of these; nothing below
// the public API boundary panics except on programmer error.
type Kind int

const (
	KindUnspecified Kind = iota
	KindMalformed
	KindProtocolError
	KindTimeout
	KindDisconnected
	KindCancelled
	KindUnauthorized
	KindBusy
	KindIOError
	KindNotSupported
)

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "Malformed"
	case KindProtocolError:
		return "ProtocolError"
	case KindTimeout:
		return "Timeout"
	case KindDisconnected:
		return "Disconnected"
	case KindCancelled:
		return "Cancelled"
	case KindUnauthorized:
		return "Unauthorized"
	case KindBusy:
		return "Busy"
	case KindIOError:
		return "IOError"
	case KindNotSupported:
		return "NotSupported"
	default:
		return "Unspecified"
	}
}

// Error is the error type returned across this module's public API
// boundary. Wrap with github.com/pkg/errors (errors.Wrap) to attach a
// call-site trace while preserving Kind via errors.Cause.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError constructs an *Error with the given Kind and formatted message.
func NewError(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of the first *Error found in err's Cause()
// chain, or KindUnspecified if there is none. Kind isn't itself an
// error, so callers compare KindOf's result rather than using errors.Is.
func KindOf(err error) Kind {
	type causer interface{ Cause() error }
	for err != nil {
		if de, ok := err.(*Error); ok {
			return de.Kind
		}
		c, ok := err.(causer)
		if !ok {
			return KindUnspecified
		}
		err = c.Cause()
	}
	return KindUnspecified
}
