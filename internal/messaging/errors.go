package messaging

import (
	"errors"
	"fmt"
)

// ErrNotStarted is returned when publishing on a client that has no channel
var ErrNotStarted = errors.New("messaging client not started")

// UnsupportedActionError is returned for actions without a queue pair
type UnsupportedActionError struct {
	Action TriggerAction
	Reason string
}

func (e *UnsupportedActionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported action %q: %s", e.Action, e.Reason)
	}
	return fmt.Sprintf("unsupported action %q", e.Action)
}

// ProtocolError marks a message that can never be processed, such as a
// request without a correlation id. Such messages are rejected without requeue.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Reason
}

// IsProtocolError reports whether err is or wraps a ProtocolError
func IsProtocolError(err error) bool {
	var protocolErr *ProtocolError
	return errors.As(err, &protocolErr)
}
