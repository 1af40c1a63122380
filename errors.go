package makcu

import (
	"fmt"

	"makcu/protocol"
)

// Sentinel errors, re-exported from the protocol layer so callers only
// import one package.
var (
	ErrDisconnected = protocol.ErrDisconnected
	ErrTimeout      = protocol.ErrTimeout
	ErrValidation   = protocol.ErrValidation
	ErrProtocol     = protocol.ErrProtocol
)

// ConnectError reports a failed connect attempt along with the status the
// facade was left in.
type ConnectError struct {
	Status ConnectionStatus
	Reason error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect failed (%s): %v", e.Status, e.Reason)
}

func (e *ConnectError) Unwrap() error {
	return e.Reason
}
