package protocol

import "errors"

// Sentinel errors for the command engine. Facade-level operations map these
// to boolean or zero-value returns; callers needing detail unwrap with
// errors.Is.
var (
	// ErrDisconnected indicates the operation requires an open channel and
	// none is open, or the channel was torn down while waiting.
	ErrDisconnected = errors.New("device disconnected")

	// ErrTimeout indicates a tracked command did not receive a response
	// within its deadline.
	ErrTimeout = errors.New("command timed out")

	// ErrValidation indicates a caller-supplied numeric argument is out of
	// the accepted range.
	ErrValidation = errors.New("argument out of range")

	// ErrProtocol indicates a response was present but did not satisfy the
	// operation's content expectation.
	ErrProtocol = errors.New("unexpected device response")
)
