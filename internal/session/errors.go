package session

import (
	"errors"
	"fmt"
)

var (
	// ErrLinkLost is returned by operations that were in flight, or issued,
	// after the link to the hub went away.
	ErrLinkLost = errors.New("link to hub lost")

	// ErrNotConnected is returned by operations on a session that was
	// never connected or was disconnected.
	ErrNotConnected = errors.New("session not connected")

	// ErrEmptyAddress is returned when the hub has no reachable address
	// yet. Callers may poll.
	ErrEmptyAddress = errors.New("hub reported an empty address")
)

// ConnectError is returned by Connect after the retry was exhausted.
type ConnectError struct {
	HubID    string
	Attempts int
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to hub %s after %d attempts: %v", e.HubID, e.Attempts, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// WriteRejectedError is returned when the hub did not accept a write.
type WriteRejectedError struct {
	Attribute string
	Err       error
}

func (e *WriteRejectedError) Error() string {
	return fmt.Sprintf("write to %s rejected: %v", e.Attribute, e.Err)
}

func (e *WriteRejectedError) Unwrap() error {
	return e.Err
}
