package provisioning

import (
	"errors"
	"fmt"
	"time"

	"github.com/hubonboard/hubsetup/internal/hubapi"
)

// State is a provisioning state
type State int

const (
	StateIdle State = iota
	StateSelectingNetwork
	StateSendingCredentials
	StateAwaitingJoin
	StateRelocatingOnHomeNetwork
	StateJoined
	StateJoinFailed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateSelectingNetwork:
		return "SelectingNetwork"
	case StateSendingCredentials:
		return "SendingCredentials"
	case StateAwaitingJoin:
		return "AwaitingJoin"
	case StateRelocatingOnHomeNetwork:
		return "RelocatingOnHomeNetwork"
	case StateJoined:
		return "Joined"
	case StateJoinFailed:
		return "JoinFailed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether the state ends an attempt
func (s State) Terminal() bool {
	return s == StateJoined || s == StateJoinFailed
}

// Transition describes one state change
type Transition struct {
	From   State
	To     State
	Reason string
	At     time.Time
}

// Failure reasons carried by JoinFailedError
const (
	ReasonJoinRejected         = "join rejected"
	ReasonUnreachableAfterJoin = "unreachable after join"
	ReasonSendFailed           = "failed to send credentials"
	ReasonLinkLost             = "link lost"
	ReasonNoAddress            = "hub address unavailable"
)

var (
	// ErrTimeout is wrapped by failures caused by a bounded wait running out
	ErrTimeout = errors.New("timed out")

	// ErrInvalidState is returned by operations issued in the wrong state
	ErrInvalidState = errors.New("invalid state for operation")

	// ErrClosed is returned after Close
	ErrClosed = errors.New("provisioning closed")

	// ErrRestarted is returned to a pending SubmitPassword when the
	// machine is restarted
	ErrRestarted = errors.New("provisioning restarted")

	errJoinRejected = errors.New("hub reported DISCONNECTED after credentials were sent")
)

// JoinFailedError is the terminal failure of an attempt. Reason is meant
// for the operator; Err is the cause.
type JoinFailedError struct {
	Reason string
	Err    error
}

func (e *JoinFailedError) Error() string {
	if e.Err == nil {
		return "join failed: " + e.Reason
	}
	return fmt.Sprintf("join failed: %s: %v", e.Reason, e.Err)
}

func (e *JoinFailedError) Unwrap() error {
	return e.Err
}

// Result is the outcome of a successful attempt
type Result struct {
	// Address is the hub API address on the home network
	Address string

	// SSID is the network the hub joined
	SSID string

	// Relocated is true when the hub was found by polling after the
	// Bluetooth link dropped
	Relocated bool

	// Info is the hub info document when the address was probed
	Info *hubapi.HubInfo
}

// Credentials are the Wi-Fi credentials of one attempt. They are never
// stored or logged.
type Credentials struct {
	SSID     string
	Password string
}

// Config holds the tunable waits of the state machine
type Config struct {
	// JoinTimeout is how long AwaitingJoin waits for a terminal
	// connection state before relocating. CONNECTING restarts it.
	JoinTimeout time.Duration

	// RelocationTimeout bounds polling for the hub on the home network
	RelocationTimeout time.Duration

	// PollInterval is the pause between relocation probes
	PollInterval time.Duration
}

// DefaultConfig returns the default waits
func DefaultConfig() Config {
	return Config{
		JoinTimeout:       30 * time.Second,
		RelocationTimeout: 60 * time.Second,
		PollInterval:      3 * time.Second,
	}
}

// Validate checks that every wait is positive
func (c Config) Validate() error {
	if c.JoinTimeout <= 0 {
		return fmt.Errorf("join timeout must be positive, got %s", c.JoinTimeout)
	}
	if c.RelocationTimeout <= 0 {
		return fmt.Errorf("relocation timeout must be positive, got %s", c.RelocationTimeout)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	return nil
}
