package osmium

import "fmt"

// ErrorKind classifies engine errors.
type ErrorKind int

const (
	// ErrAssertion - the caller misused the API (e.g. pinged an HTTP/1 peer).
	ErrAssertion ErrorKind = iota
	// ErrInvalidStream - the referenced stream is unknown or not writable.
	ErrInvalidStream
	// ErrWouldBlock - the local stream limit is reached, or (HTTP/1 server) a
	// request head arrived while the previous exchange is still open; wait for
	// OnStreamEnd.
	ErrWouldBlock
	// ErrProtocol - the peer broke the protocol, or closed the connection with
	// an error code. In h2 mode a GOAWAY has been sent first, except for a bad
	// client preface or initial SETTINGS, a peer stream id rejected by the
	// stream table (wrong parity; for PUSH_PROMISE also out of order or over
	// the limit) and a received GOAWAY, which are reported without one.
	ErrProtocol
	// ErrNotImplemented - the operation is valid but unsupported (padded frame splitting).
	ErrNotImplemented
	// ErrDisconnect - terminal; the host must stop feeding and writing.
	ErrDisconnect
)

func (k ErrorKind) String() string {
	switch k {
	case ErrAssertion:
		return "ASSERTION"
	case ErrInvalidStream:
		return "INVALID_STREAM"
	case ErrWouldBlock:
		return "WOULD_BLOCK"
	case ErrProtocol:
		return "PROTOCOL"
	case ErrNotImplemented:
		return "NOT_IMPLEMENTED"
	case ErrDisconnect:
		return "DISCONNECT"
	default:
		return "UNKNOWN"
	}
}

// Error is the concrete error type returned by all engine entry points.
type Error struct {
	Kind   ErrorKind
	Reason string
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.Reason
}

func assertionError(format string, args ...interface{}) error {
	return &Error{ErrAssertion, fmt.Sprintf(format, args...)}
}

func invalidStreamError(format string, args ...interface{}) error {
	return &Error{ErrInvalidStream, fmt.Sprintf(format, args...)}
}

func wouldBlockError(format string, args ...interface{}) error {
	return &Error{ErrWouldBlock, fmt.Sprintf(format, args...)}
}

func protocolError(format string, args ...interface{}) error {
	return &Error{ErrProtocol, fmt.Sprintf(format, args...)}
}

func notImplementedError(format string, args ...interface{}) error {
	return &Error{ErrNotImplemented, fmt.Sprintf(format, args...)}
}

func disconnectError(format string, args ...interface{}) error {
	return &Error{ErrDisconnect, fmt.Sprintf(format, args...)}
}

// KindOf returns the ErrorKind of an engine error, or ok=false for foreign
// errors (such as ones returned by the host's own callbacks).
func KindOf(err error) (ErrorKind, bool) {
	if e, ok := err.(*Error); ok {
		return e.Kind, true
	}
	return 0, false
}
