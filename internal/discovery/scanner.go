package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hubonboard/hubsetup/internal/ble"
	"github.com/hubonboard/hubsetup/internal/clock"
	"github.com/hubonboard/hubsetup/internal/logging"
)

const (
	// DefaultRestartDelay is how long the scanner waits before restarting a
	// radio scan that failed
	DefaultRestartDelay = 2 * time.Second

	// DefaultScanTimeout is the default scan window used by the CLI
	DefaultScanTimeout = 10 * time.Second
)

// DiscoveryError reports a radio failure during scanning. The scan loop
// keeps running after reporting it.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery: radio scan failed: %v", e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// Handlers receive scan events. All callbacks run on the goroutine that
// called Scan; nil callbacks are skipped.
type Handlers struct {
	// OnRadioState is called with every radio power state observed
	OnRadioState func(ble.PowerState)

	// OnHubFound is called once per hub per Scan call
	OnHubFound func(*Hub)

	// OnError is called with a *DiscoveryError for every radio failure
	OnError func(error)
}

// Scanner discovers hubs over Bluetooth LE
type Scanner struct {
	radio        ble.Radio
	clock        clock.Clock
	restartDelay time.Duration

	mu     sync.Mutex
	active bool
}

// Option configures a Scanner
type Option func(*Scanner)

// WithClock sets the time source used for restart back-off
func WithClock(c clock.Clock) Option {
	return func(s *Scanner) { s.clock = c }
}

// WithRestartDelay sets the back-off before a failed scan is restarted
func WithRestartDelay(d time.Duration) Option {
	return func(s *Scanner) { s.restartDelay = d }
}

// NewScanner creates a scanner for radio
func NewScanner(radio ble.Radio, opts ...Option) *Scanner {
	s := &Scanner{
		radio:        radio,
		clock:        clock.Real(),
		restartDelay: DefaultRestartDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan runs until ctx is cancelled. The radio scans while it is powered on
// and is stopped while it is powered off. Calling Scan while another Scan
// is running returns nil immediately.
func (s *Scanner) Scan(ctx context.Context, h Handlers) error {
	if !s.acquire() {
		logging.Debug("Scan already active, ignoring")
		return nil
	}
	defer s.release()

	loop := &scanLoop{
		scanner: s,
		h:       h,
		seen:    make(map[string]bool),
		power:   make(chan ble.PowerState, 8),
		adverts: make(chan ble.Advertisement, 64),
		errs:    make(chan error, 4),
		done:    make(chan struct{}),
	}
	defer close(loop.done)

	cancelWatch := s.radio.WatchPower(loop.onPower)
	defer cancelWatch()
	defer loop.stop()

	return loop.run(ctx)
}

// ScanFor collects the hubs found within timeout
func (s *Scanner) ScanFor(ctx context.Context, timeout time.Duration) ([]*Hub, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	hubs := make([]*Hub, 0)
	err := s.Scan(ctx, Handlers{
		OnHubFound: func(hub *Hub) {
			hubs = append(hubs, hub)
		},
		OnError: func(err error) {
			logging.Warn("Scan error", zap.Error(err))
		},
	})
	return hubs, err
}

// FindHub scans until the hub with the given ID is seen or ctx ends
func (s *Scanner) FindHub(ctx context.Context, id string) (*Hub, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var found *Hub
	err := s.Scan(ctx, Handlers{
		OnHubFound: func(hub *Hub) {
			if found == nil && (id == "" || hub.ID == id) {
				found = hub
				cancel()
			}
		},
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		if id == "" {
			return nil, fmt.Errorf("no hub found: %w", ctx.Err())
		}
		return nil, fmt.Errorf("hub %s not found: %w", id, ctx.Err())
	}
	return found, nil
}

func (s *Scanner) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return false
	}
	s.active = true
	return true
}

func (s *Scanner) release() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

// scanLoop is the state of one Scan call. Radio callbacks only feed
// channels; all state lives on the Scan goroutine.
type scanLoop struct {
	scanner *Scanner
	h       Handlers

	power   chan ble.PowerState
	adverts chan ble.Advertisement
	errs    chan error
	done    chan struct{}

	seen     map[string]bool
	powered  bool
	scanning bool
	restart  <-chan time.Time
}

func (l *scanLoop) onPower(state ble.PowerState) {
	select {
	case l.power <- state:
	case <-l.done:
	}
}

func (l *scanLoop) onAdvertisement(adv ble.Advertisement) {
	select {
	case l.adverts <- adv:
	case <-l.done:
	}
}

func (l *scanLoop) onError(err error) {
	select {
	case l.errs <- err:
	case <-l.done:
	}
}

func (l *scanLoop) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case state := <-l.power:
			logging.LogRadioState(state.String())
			if l.h.OnRadioState != nil {
				l.h.OnRadioState(state)
			}
			if state == ble.PoweredOn {
				l.powered = true
				l.start()
			} else {
				l.powered = false
				l.stop()
			}

		case adv := <-l.adverts:
			l.handleAdvertisement(adv)

		case err := <-l.errs:
			l.scanning = false
			l.report(err)
			l.scheduleRestart()

		case <-l.restart:
			l.restart = nil
			l.start()
		}
	}
}

func (l *scanLoop) start() {
	if !l.powered || l.scanning {
		return
	}
	if err := l.scanner.radio.StartScan(l.onAdvertisement, l.onError); err != nil {
		l.report(err)
		l.scheduleRestart()
		return
	}
	l.scanning = true
	l.restart = nil
	logging.Debug("Radio scan started")
}

func (l *scanLoop) stop() {
	l.restart = nil
	if !l.scanning {
		return
	}
	l.scanning = false
	if err := l.scanner.radio.StopScan(); err != nil {
		logging.Warn("Failed to stop radio scan", zap.Error(err))
		return
	}
	logging.Debug("Radio scan stopped")
}

func (l *scanLoop) scheduleRestart() {
	if !l.powered {
		return
	}
	l.restart = l.scanner.clock.After(l.scanner.restartDelay)
}

func (l *scanLoop) report(err error) {
	derr := &DiscoveryError{Err: err}
	logging.Warn("Radio scan error", zap.Error(err))
	if l.h.OnError != nil {
		l.h.OnError(derr)
	}
}

func (l *scanLoop) handleAdvertisement(adv ble.Advertisement) {
	// Advertisements queued before a power off are not delivered
	if !l.scanning {
		return
	}
	if !IsHub(adv) || l.seen[adv.Address] {
		return
	}
	l.seen[adv.Address] = true

	hub := hubFromAdvertisement(adv, l.scanner.clock.Now())
	logging.Info("Hub discovered",
		zap.String("hub", hub.ID),
		zap.String("name", hub.Name),
		zap.Int16("rssi", hub.RSSI))
	if l.h.OnHubFound != nil {
		l.h.OnHubFound(hub)
	}
}
