package ble

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// PowerState is the power state of the local Bluetooth radio.
type PowerState int

const (
	PowerUnknown PowerState = iota
	PoweredOff
	PoweredOn
)

// String returns a human-readable power state
func (p PowerState) String() string {
	switch p {
	case PoweredOff:
		return "powered_off"
	case PoweredOn:
		return "powered_on"
	default:
		return "unknown"
	}
}

// ErrLinkClosed is returned by Link operations after the link went away.
var ErrLinkClosed = errors.New("ble: link closed")

// ErrUnknownPeer is returned by Connect for an address that was never seen
// in a scan.
var ErrUnknownPeer = errors.New("ble: unknown peer address")

// Advertisement is one advertising packet seen during a scan.
type Advertisement struct {
	// Address identifies the peer (MAC on Linux, UUID on macOS)
	Address string

	// Name is the advertised local name, may be empty
	Name string

	// Services holds the advertised service UUIDs
	Services []uuid.UUID

	// RSSI is the received signal strength in dBm
	RSSI int16
}

// Radio is the local Bluetooth adapter.
type Radio interface {
	// WatchPower calls fn with the current power state and again on every
	// change until cancel is called.
	WatchPower(fn func(PowerState)) (cancel func())

	// StartScan starts delivering advertisements to onAdvertisement.
	// Scan failures after start are reported to onError; the scan is
	// stopped when that happens.
	StartScan(onAdvertisement func(Advertisement), onError func(error)) error

	// StopScan halts an active scan. Stopping an idle radio is a no-op.
	StopScan() error

	// Connect opens a link to a previously advertised peer.
	Connect(ctx context.Context, address string) (Link, error)
}

// Link is an open GATT connection to one peer.
type Link interface {
	// Discover resolves the characteristics of service. It must succeed
	// before any other operation.
	Discover(ctx context.Context, service uuid.UUID, characteristics []uuid.UUID) error

	// Read reads a characteristic value.
	Read(ctx context.Context, characteristic uuid.UUID) ([]byte, error)

	// Write writes a characteristic value and waits for the peer's
	// acknowledgement.
	Write(ctx context.Context, characteristic uuid.UUID, value []byte) error

	// Subscribe enables notifications for a characteristic. The returned
	// function disables them again.
	Subscribe(characteristic uuid.UUID, fn func([]byte)) (unsubscribe func() error, err error)

	// Lost is closed when the link drops for any reason, including Close.
	Lost() <-chan struct{}

	// Err returns the reason the link dropped, or nil while it is up or
	// after a local Close.
	Err() error

	// Close releases the link.
	Close() error
}
