package attribute

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrMalformedAttribute is returned when an attribute payload cannot be
// decoded. Callers treat the attribute as UNKNOWN or empty.
var ErrMalformedAttribute = errors.New("malformed attribute")

// WifiState is the hub's Wi-Fi connection state code.
type WifiState int

const (
	StateUnknown      WifiState = -1
	StateDown         WifiState = 0
	StateDisconnected WifiState = 1
	StateConnecting   WifiState = 2
	StateConnected    WifiState = 3
)

// String returns the lower case state name
func (s WifiState) String() string {
	switch s {
	case StateDown:
		return "down"
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// HasSSID reports whether a state of this kind carries a joined SSID.
func (s WifiState) HasSSID() bool {
	return s == StateConnecting || s == StateConnected
}

// ConnectionState is a decoded CONNECTION_STATE value. SSID is only set
// when State is StateConnecting or StateConnected.
type ConnectionState struct {
	State WifiState
	SSID  string
}

// UnknownConnectionState is the value reported before the hub has been read.
var UnknownConnectionState = ConnectionState{State: StateUnknown}

// String returns e.g. "connected to HomeNet" or "disconnected"
func (c ConnectionState) String() string {
	if c.State.HasSSID() && c.SSID != "" {
		return fmt.Sprintf("%s to %s", c.State, c.SSID)
	}
	return c.State.String()
}

// EncodeText encodes a string for transport in an attribute value.
func EncodeText(value string) []byte {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(value)))
	base64.StdEncoding.Encode(out, []byte(value))
	return out
}

// DecodeText decodes an attribute value produced by EncodeText.
func DecodeText(data []byte) (string, error) {
	raw, err := decodeTransport(data)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// DecodeConnectionState decodes a CONNECTION_STATE payload. The first
// decoded byte is the state code; the remaining bytes are the SSID when the
// code is above DISCONNECTED. Codes the client does not know decode to
// StateUnknown without an error.
func DecodeConnectionState(data []byte) (ConnectionState, error) {
	if len(data) < 1 {
		return UnknownConnectionState, fmt.Errorf("%w: empty connection state", ErrMalformedAttribute)
	}

	raw, err := decodeTransport(data)
	if err != nil {
		return UnknownConnectionState, err
	}
	if len(raw) < 1 {
		return UnknownConnectionState, fmt.Errorf("%w: connection state without state code", ErrMalformedAttribute)
	}

	state := stateFromCode(raw[0])
	// an unknown code has no known payload layout, so its tail is dropped
	if !state.HasSSID() {
		return ConnectionState{State: state}, nil
	}
	return ConnectionState{State: state, SSID: string(raw[1:])}, nil
}

// EncodeConnectionState is the inverse of DecodeConnectionState. The SSID
// is only framed for states that carry one.
func EncodeConnectionState(cs ConnectionState) []byte {
	code := byte(0xFF)
	if cs.State >= StateDown && cs.State <= StateConnected {
		code = byte(cs.State)
	}
	raw := []byte{code}
	if cs.State.HasSSID() {
		raw = append(raw, cs.SSID...)
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out
}

func stateFromCode(code byte) WifiState {
	switch WifiState(code) {
	case StateDown, StateDisconnected, StateConnecting, StateConnected:
		return WifiState(code)
	default:
		return StateUnknown
	}
}

func decodeTransport(data []byte) ([]byte, error) {
	out := make([]byte, base64.StdEncoding.DecodedLen(len(data)))
	n, err := base64.StdEncoding.Decode(out, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAttribute, err)
	}
	return out[:n], nil
}
