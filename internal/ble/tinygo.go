package ble

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"

	"github.com/hubonboard/hubsetup/internal/logging"
)

// maxAttributeSize is the largest GATT value the hub sends (ATT MTU bound)
const maxAttributeSize = 512

// TinyGoRadio implements Radio on top of tinygo.org/x/bluetooth, which
// talks to BlueZ on Linux, CoreBluetooth on macOS and WinRT on Windows.
type TinyGoRadio struct {
	adapter *bluetooth.Adapter

	// watched are the service UUIDs probed in each advertisement. The
	// library only answers "does this packet carry service X".
	watched []uuid.UUID

	mu       sync.Mutex
	power    PowerState
	watchers map[int]func(PowerState)
	nextID   int
	peers    map[string]bluetooth.Address
	links    map[string]*tinyLink
	scanning bool
}

// NewTinyGoRadio wraps the platform default adapter. services lists the
// service UUIDs that should be reported in Advertisement.Services.
func NewTinyGoRadio(services ...uuid.UUID) *TinyGoRadio {
	r := &TinyGoRadio{
		adapter:  bluetooth.DefaultAdapter,
		watched:  services,
		watchers: make(map[int]func(PowerState)),
		peers:    make(map[string]bluetooth.Address),
		links:    make(map[string]*tinyLink),
	}
	r.adapter.SetConnectHandler(r.onConnectionChange)
	return r
}

// Enable powers up the adapter and publishes the resulting power state.
func (r *TinyGoRadio) Enable() error {
	if err := r.adapter.Enable(); err != nil {
		r.SetPowerState(PoweredOff)
		return fmt.Errorf("failed to enable bluetooth adapter: %w", err)
	}
	r.SetPowerState(PoweredOn)
	return nil
}

// SetPowerState publishes a power state reported by the platform.
func (r *TinyGoRadio) SetPowerState(state PowerState) {
	r.mu.Lock()
	if r.power == state {
		r.mu.Unlock()
		return
	}
	r.power = state
	watchers := make([]func(PowerState), 0, len(r.watchers))
	for _, fn := range r.watchers {
		watchers = append(watchers, fn)
	}
	r.mu.Unlock()

	logging.LogRadioState(state.String())
	for _, fn := range watchers {
		fn(state)
	}
}

// WatchPower implements Radio. The adapter is enabled on first use.
func (r *TinyGoRadio) WatchPower(fn func(PowerState)) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.watchers[id] = fn
	state := r.power
	r.mu.Unlock()

	if state == PowerUnknown {
		if err := r.Enable(); err != nil {
			logging.Warn("Bluetooth adapter unavailable", zap.Error(err))
		}
	} else {
		fn(state)
	}

	return func() {
		r.mu.Lock()
		delete(r.watchers, id)
		r.mu.Unlock()
	}
}

// StartScan implements Radio.
func (r *TinyGoRadio) StartScan(onAdvertisement func(Advertisement), onError func(error)) error {
	r.mu.Lock()
	if r.scanning {
		r.mu.Unlock()
		return nil
	}
	r.scanning = true
	r.mu.Unlock()

	go func() {
		// Scan blocks until StopScan
		err := r.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			onAdvertisement(r.advertisement(result))
		})

		r.mu.Lock()
		r.scanning = false
		r.mu.Unlock()

		if err != nil && onError != nil {
			onError(err)
		}
	}()
	return nil
}

// StopScan implements Radio.
func (r *TinyGoRadio) StopScan() error {
	r.mu.Lock()
	scanning := r.scanning
	r.mu.Unlock()
	if !scanning {
		return nil
	}
	if err := r.adapter.StopScan(); err != nil {
		return fmt.Errorf("failed to stop scan: %w", err)
	}
	return nil
}

func (r *TinyGoRadio) advertisement(result bluetooth.ScanResult) Advertisement {
	address := result.Address.String()

	r.mu.Lock()
	r.peers[address] = result.Address
	r.mu.Unlock()

	adv := Advertisement{
		Address: address,
		Name:    result.LocalName(),
		RSSI:    result.RSSI,
	}
	for _, id := range r.watched {
		if result.HasServiceUUID(toBluetoothUUID(id)) {
			adv.Services = append(adv.Services, id)
		}
	}
	return adv
}

// Connect implements Radio.
func (r *TinyGoRadio) Connect(ctx context.Context, address string) (Link, error) {
	r.mu.Lock()
	peer, ok := r.peers[address]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, address)
	}

	type result struct {
		device bluetooth.Device
		err    error
	}
	done := make(chan result, 1)
	go func() {
		device, err := r.adapter.Connect(peer, bluetooth.ConnectionParams{})
		done <- result{device: device, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		// Release a connection that completes after we gave up
		go func() {
			if late := <-done; late.err == nil {
				_ = late.device.Disconnect()
			}
		}()
		return nil, ctx.Err()
	}
	if res.err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, res.err)
	}

	link := &tinyLink{
		address: address,
		device:  res.device,
		chars:   make(map[uuid.UUID]bluetooth.DeviceCharacteristic),
		lost:    make(chan struct{}),
		release: func() {
			r.mu.Lock()
			delete(r.links, address)
			r.mu.Unlock()
		},
	}
	r.mu.Lock()
	r.links[address] = link
	r.mu.Unlock()
	return link, nil
}

func (r *TinyGoRadio) onConnectionChange(device bluetooth.Device, connected bool) {
	if connected {
		return
	}
	address := device.Address.String()

	r.mu.Lock()
	link := r.links[address]
	delete(r.links, address)
	r.mu.Unlock()

	if link != nil {
		link.drop(fmt.Errorf("peer %s disconnected", address))
	}
}

type tinyLink struct {
	address string
	device  bluetooth.Device
	release func()

	mu     sync.Mutex
	chars  map[uuid.UUID]bluetooth.DeviceCharacteristic
	lost   chan struct{}
	err    error
	closed bool
}

func (l *tinyLink) Discover(ctx context.Context, service uuid.UUID, characteristics []uuid.UUID) error {
	wanted := make([]bluetooth.UUID, len(characteristics))
	for i, id := range characteristics {
		wanted[i] = toBluetoothUUID(id)
	}

	return l.blocking(ctx, func() error {
		services, err := l.device.DiscoverServices([]bluetooth.UUID{toBluetoothUUID(service)})
		if err != nil {
			return fmt.Errorf("service discovery failed: %w", err)
		}
		if len(services) == 0 {
			return fmt.Errorf("service %s not found", service)
		}
		chars, err := services[0].DiscoverCharacteristics(wanted)
		if err != nil {
			return fmt.Errorf("characteristic discovery failed: %w", err)
		}

		l.mu.Lock()
		defer l.mu.Unlock()
		for _, c := range chars {
			id, err := uuid.Parse(c.UUID().String())
			if err != nil {
				continue
			}
			l.chars[id] = c
		}
		for _, id := range characteristics {
			if _, ok := l.chars[id]; !ok {
				return fmt.Errorf("characteristic %s not found", id)
			}
		}
		return nil
	})
}

func (l *tinyLink) Read(ctx context.Context, characteristic uuid.UUID) ([]byte, error) {
	c, err := l.characteristic(characteristic)
	if err != nil {
		return nil, err
	}
	var value []byte
	err = l.blocking(ctx, func() error {
		buf := make([]byte, maxAttributeSize)
		n, err := c.Read(buf)
		if err != nil {
			return err
		}
		value = buf[:n]
		return nil
	})
	return value, err
}

func (l *tinyLink) Write(ctx context.Context, characteristic uuid.UUID, value []byte) error {
	c, err := l.characteristic(characteristic)
	if err != nil {
		return err
	}
	return l.blocking(ctx, func() error {
		// Write is a write request; the call returns after the peer's response
		_, err := c.Write(value)
		return err
	})
}

func (l *tinyLink) Subscribe(characteristic uuid.UUID, fn func([]byte)) (func() error, error) {
	c, err := l.characteristic(characteristic)
	if err != nil {
		return nil, err
	}
	if err := c.EnableNotifications(func(buf []byte) {
		value := make([]byte, len(buf))
		copy(value, buf)
		fn(value)
	}); err != nil {
		return nil, fmt.Errorf("failed to enable notifications: %w", err)
	}
	return func() error {
		if l.isClosed() {
			return nil
		}
		return c.EnableNotifications(nil)
	}, nil
}

func (l *tinyLink) Lost() <-chan struct{} { return l.lost }

func (l *tinyLink) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *tinyLink) Close() error {
	if !l.markClosed(nil) {
		return nil
	}
	l.release()
	return l.device.Disconnect()
}

func (l *tinyLink) drop(cause error) {
	l.markClosed(cause)
}

func (l *tinyLink) markClosed(cause error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.closed = true
	l.err = cause
	close(l.lost)
	return true
}

func (l *tinyLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *tinyLink) characteristic(id uuid.UUID) (bluetooth.DeviceCharacteristic, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return bluetooth.DeviceCharacteristic{}, ErrLinkClosed
	}
	c, ok := l.chars[id]
	if !ok {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("characteristic %s not discovered", id)
	}
	return c, nil
}

// blocking runs a synchronous library call so that it can be abandoned on
// context cancellation or link loss.
func (l *tinyLink) blocking(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-l.lost:
		return ErrLinkClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func toBluetoothUUID(id uuid.UUID) bluetooth.UUID {
	// uuid.UUID is a 16 byte big-endian array, the same layout NewUUID takes
	return bluetooth.NewUUID([16]byte(id))
}
