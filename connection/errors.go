package connection

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionClosed resolves every call that was in flight when the
	// transport ended, and is returned immediately by calls issued afterward.
	ErrConnectionClosed = errors.New("connection: closed")

	// ErrStaleReference is returned for a call addressed to a guid whose
	// owning scope has already been disposed.
	ErrStaleReference = errors.New("connection: stale object reference")

	// ErrTransportClosed is returned when sending on a transport that has
	// been closed locally.
	ErrTransportClosed = errors.New("connection: transport closed")
)

// ProtocolError reports a wire-protocol violation by the remote side, such as
// a malformed frame or a response for a call that was never issued. It is
// fatal: the connection is torn down and every pending call fails.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("connection: protocol violation: %s", e.Reason)
}

// RemoteError carries an error the remote engine returned for a single call.
// It is scoped to that call; the connection stays usable.
type RemoteError struct {
	Name    string
	Message string
	Stack   string
}

func (e *RemoteError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: %s", e.Name, e.Message)
	}
	return e.Message
}
