package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hubonboard/hubsetup/internal/attribute"
	"github.com/hubonboard/hubsetup/internal/ble"
	"github.com/hubonboard/hubsetup/internal/discovery"
	"github.com/hubonboard/hubsetup/internal/logging"
)

const (
	// DefaultConnectTimeout bounds one connection attempt including
	// discovery, subscriptions and seed reads
	DefaultConnectTimeout = 15 * time.Second

	// connectAttempts is the first attempt plus one automatic retry
	connectAttempts = 2
)

// Status is the lifecycle status of a session
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusDisconnecting
	StatusFailed
)

// String returns a human-readable status
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnecting:
		return "disconnecting"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

var lastSessionID atomic.Uint64

// Session owns the connection to one hub and its attribute exchange.
type Session struct {
	id             uint64
	hub            *discovery.Hub
	radio          ble.Radio
	connectTimeout time.Duration

	connects singleflight.Group
	writeMu  sync.Mutex

	mu            sync.Mutex
	status        Status
	conn          *connection
	cancelConnect context.CancelFunc
	state         attribute.ConnectionState
	stateSeq      uint64
	version       string
	address       string

	networks   slot[NetworksFunc]
	states     slot[StateFunc]
	disconnect slot[DisconnectFunc]
}

// Option configures a Session
type Option func(*Session)

// WithConnectTimeout bounds each connection attempt
func WithConnectTimeout(d time.Duration) Option {
	return func(s *Session) { s.connectTimeout = d }
}

// New creates a disconnected session for hub. Every session gets a new ID.
func New(radio ble.Radio, hub *discovery.Hub, opts ...Option) *Session {
	s := &Session{
		id:             lastSessionID.Add(1),
		hub:            hub,
		radio:          radio,
		connectTimeout: DefaultConnectTimeout,
		state:          attribute.UnknownConnectionState,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session identity. IDs are never reused in a process.
func (s *Session) ID() uint64 { return s.id }

// Hub returns the hub this session is bound to
func (s *Session) Hub() *discovery.Hub { return s.hub }

// Status returns the lifecycle status
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ConnectionState returns the last known Wi-Fi state of the hub
func (s *Session) ConnectionState() attribute.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Version returns the hub version read at connect time
func (s *Session) Version() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// ReachableAddress returns the last address the hub reported, or "" if
// none is known
func (s *Session) ReachableAddress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// OnNetworksChanged registers the single networks observer
func (s *Session) OnNetworksChanged(fn NetworksFunc) *Subscription {
	return s.networks.register(fn)
}

// OnConnectionStateChanged registers the single connection state observer
func (s *Session) OnConnectionStateChanged(fn StateFunc) *Subscription {
	return s.states.register(fn)
}

// OnDisconnected registers the single link loss observer
func (s *Session) OnDisconnected(fn DisconnectFunc) *Subscription {
	return s.disconnect.register(fn)
}

// Connect connects to the hub, retrying once. Concurrent calls share one
// attempt. Connect on a connected session returns nil immediately.
func (s *Session) Connect(ctx context.Context) error {
	if s.Status() == StatusConnected {
		return nil
	}

	results := s.connects.DoChan("connect", func() (interface{}, error) {
		return nil, s.connect()
	})
	select {
	case res := <-results:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) connect() error {
	s.mu.Lock()
	if s.status == StatusConnected {
		s.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelConnect = cancel
	s.status = StatusConnecting
	s.mu.Unlock()
	defer cancel()

	logging.LogHubEvent(s.hub.ID, s.id, "connecting")

	var lastErr error
	attempts := 0
	for attempts < connectAttempts && ctx.Err() == nil {
		attempts++
		if attempts > 1 {
			logging.Warn("Retrying hub connection",
				zap.String("hub_id", s.hub.ID),
				zap.Error(lastErr))
		}

		conn, err := s.dial(ctx)
		if err != nil {
			lastErr = err
			continue
		}

		s.mu.Lock()
		if ctx.Err() != nil {
			// Disconnect ran while the attempt was finishing
			s.mu.Unlock()
			_ = conn.release()
			break
		}
		s.conn = conn
		s.status = StatusConnected
		s.cancelConnect = nil
		s.mu.Unlock()

		go s.watchLink(conn)
		logging.LogHubEvent(s.hub.ID, s.id, "connected")
		return nil
	}

	s.mu.Lock()
	cancelled := ctx.Err() != nil
	if !cancelled {
		s.status = StatusFailed
		s.cancelConnect = nil
	}
	s.mu.Unlock()

	if cancelled {
		logging.LogHubEvent(s.hub.ID, s.id, "connect cancelled")
		return fmt.Errorf("connect to hub %s cancelled: %w", s.hub.ID, ErrLinkLost)
	}
	logging.LogHubEvent(s.hub.ID, s.id, "connect failed")
	return &ConnectError{HubID: s.hub.ID, Attempts: attempts, Err: lastErr}
}

// dial performs one connection attempt: link, service discovery,
// subscriptions and seed reads.
func (s *Session) dial(parent context.Context) (*connection, error) {
	ctx, cancel := context.WithTimeout(parent, s.connectTimeout)
	defer cancel()

	link, err := s.radio.Connect(ctx, s.hub.ID)
	if err != nil {
		return nil, err
	}
	conn := newConnection(link)

	if err := link.Discover(ctx, attribute.ServiceUUID, attribute.UUIDs()); err != nil {
		_ = conn.release()
		return nil, fmt.Errorf("failed to discover onboarding service: %w", err)
	}

	unsubNetworks, err := link.Subscribe(attribute.AvailableNetworksUUID, func(data []byte) {
		s.handleNetworks(conn, data)
	})
	if err != nil {
		_ = conn.release()
		return nil, fmt.Errorf("failed to subscribe to networks: %w", err)
	}
	conn.unsubs = append(conn.unsubs, unsubNetworks)

	unsubState, err := link.Subscribe(attribute.ConnectionStateUUID, func(data []byte) {
		s.handleState(conn, data)
	})
	if err != nil {
		_ = conn.release()
		return nil, fmt.Errorf("failed to subscribe to connection state: %w", err)
	}
	conn.unsubs = append(conn.unsubs, unsubState)

	s.seed(ctx, conn)
	if err := parent.Err(); err != nil {
		_ = conn.release()
		return nil, err
	}
	return conn, nil
}

// seed reads the values that are not notified. Failures are logged only.
func (s *Session) seed(ctx context.Context, conn *connection) {
	s.mu.Lock()
	seq := s.stateSeq
	s.mu.Unlock()

	if data, err := conn.read(ctx, attribute.ConnectionStateUUID); err != nil {
		logging.Warn("Failed to read connection state", zap.Error(err))
	} else {
		cs, err := attribute.DecodeConnectionState(data)
		if err != nil {
			logging.Warn("Malformed connection state", zap.Error(err))
		}
		s.mu.Lock()
		// a notification that arrived during the read is newer
		fresh := s.stateSeq == seq
		if fresh {
			s.state = cs
		}
		s.mu.Unlock()
		if fresh {
			s.notifyState(cs)
		}
	}

	if version, err := s.readText(ctx, conn, attribute.VersionUUID); err != nil {
		logging.Warn("Failed to read hub version", zap.Error(err))
	} else {
		s.mu.Lock()
		s.version = version
		s.mu.Unlock()
	}

	if address, err := s.readText(ctx, conn, attribute.ReachableAddressUUID); err != nil {
		logging.Debug("Failed to read reachable address", zap.Error(err))
	} else if address != "" {
		s.mu.Lock()
		s.address = address
		s.mu.Unlock()
	}
}

// Disconnect closes the session. In-flight operations fail with
// ErrLinkLost and an in-flight Connect is cancelled. Disconnecting a
// disconnected session returns nil.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	cancelConnect := s.cancelConnect
	if conn == nil && cancelConnect == nil {
		s.status = StatusDisconnected
		s.mu.Unlock()
		return nil
	}
	s.conn = nil
	s.cancelConnect = nil
	s.status = StatusDisconnecting
	s.mu.Unlock()

	if cancelConnect != nil {
		cancelConnect()
	}

	var err error
	if conn != nil {
		conn.local.Store(true)
		err = conn.release()
	}

	s.mu.Lock()
	if s.status == StatusDisconnecting {
		s.status = StatusDisconnected
	}
	s.mu.Unlock()

	logging.LogHubEvent(s.hub.ID, s.id, "disconnected")
	if err != nil {
		return fmt.Errorf("failed to release link: %w", err)
	}
	return nil
}

// SendSSID writes the SSID the hub should join
func (s *Session) SendSSID(ctx context.Context, ssid string) error {
	return s.write(ctx, attribute.SSIDUUID, attribute.EncodeText(ssid), true)
}

// SendPassword writes the Wi-Fi password. The value is never logged.
func (s *Session) SendPassword(ctx context.Context, password string) error {
	return s.write(ctx, attribute.CredentialsUUID, attribute.EncodeText(password), false)
}

// write issues one confirmed write. Writes are serialized so they complete
// in the order they were issued.
func (s *Session) write(ctx context.Context, id uuid.UUID, payload []byte, loggable bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	name := attribute.Name(id)
	conn, err := s.current()
	if err != nil {
		return &WriteRejectedError{Attribute: name, Err: err}
	}

	if loggable {
		logging.LogAttribute("write", name, payload)
	} else {
		logging.Debug("Attribute write", zap.String("attribute", name), zap.Int("length", len(payload)))
	}

	if err := conn.write(ctx, id, payload); err != nil {
		if errors.Is(err, ErrLinkLost) {
			return err
		}
		return &WriteRejectedError{Attribute: name, Err: err}
	}
	return nil
}

// ReadReachableAddress reads the address the hub API answers on.
// It returns ErrEmptyAddress while the hub has none.
func (s *Session) ReadReachableAddress(ctx context.Context) (string, error) {
	conn, err := s.current()
	if err != nil {
		return "", err
	}
	address, err := s.readText(ctx, conn, attribute.ReachableAddressUUID)
	if err != nil {
		return "", err
	}
	if address == "" {
		return "", ErrEmptyAddress
	}

	s.mu.Lock()
	s.address = address
	s.mu.Unlock()
	return address, nil
}

// ReadVersion reads the hub version string
func (s *Session) ReadVersion(ctx context.Context) (string, error) {
	conn, err := s.current()
	if err != nil {
		return "", err
	}
	version, err := s.readText(ctx, conn, attribute.VersionUUID)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.version = version
	s.mu.Unlock()
	return version, nil
}

// ReadConnectionState reads CONNECTION_STATE directly. Notifications remain
// authoritative; the read does not overwrite a newer notified value.
func (s *Session) ReadConnectionState(ctx context.Context) (attribute.ConnectionState, error) {
	conn, err := s.current()
	if err != nil {
		return attribute.UnknownConnectionState, err
	}

	s.mu.Lock()
	seq := s.stateSeq
	s.mu.Unlock()

	data, err := conn.read(ctx, attribute.ConnectionStateUUID)
	if err != nil {
		return attribute.UnknownConnectionState, err
	}
	cs, err := attribute.DecodeConnectionState(data)
	if err != nil {
		return cs, err
	}

	s.mu.Lock()
	if s.stateSeq == seq {
		s.state = cs
	}
	s.mu.Unlock()
	return cs, nil
}

func (s *Session) readText(ctx context.Context, conn *connection, id uuid.UUID) (string, error) {
	data, err := conn.read(ctx, id)
	if err != nil {
		return "", err
	}
	logging.LogAttribute("read", attribute.Name(id), data)
	return attribute.DecodeText(data)
}

func (s *Session) current() (*connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, ErrNotConnected
	}
	return s.conn, nil
}

func (s *Session) handleNetworks(conn *connection, data []byte) {
	if conn.isDone() {
		return
	}
	logging.LogAttribute("notify", "AVAILABLE_NETWORKS", data)

	ssid, err := attribute.DecodeText(data)
	if err != nil {
		logging.Warn("Dropping malformed network notification", zap.Error(err))
		return
	}
	if fn, ok := s.networks.get(); ok {
		fn(s.id, ssid)
	}
}

func (s *Session) handleState(conn *connection, data []byte) {
	if conn.isDone() {
		return
	}
	logging.LogAttribute("notify", "CONNECTION_STATE", data)

	cs, err := attribute.DecodeConnectionState(data)
	if err != nil {
		logging.Warn("Malformed connection state notification", zap.Error(err))
	}

	s.mu.Lock()
	s.state = cs
	s.stateSeq++
	s.mu.Unlock()

	s.notifyState(cs)
}

func (s *Session) notifyState(cs attribute.ConnectionState) {
	if fn, ok := s.states.get(); ok {
		fn(s.id, cs)
	}
}

// watchLink reports a link that drops without a local Disconnect
func (s *Session) watchLink(conn *connection) {
	select {
	case <-conn.link.Lost():
	case <-conn.done:
	}
	if conn.local.Load() {
		return
	}

	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
		s.status = StatusDisconnected
	}
	s.mu.Unlock()

	cause := conn.link.Err()
	_ = conn.release()

	err := ErrLinkLost
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrLinkLost, cause)
	}
	logging.Warn("Hub link lost",
		zap.String("hub_id", s.hub.ID),
		zap.Uint64("session_id", s.id),
		zap.Error(err))

	if fn, ok := s.disconnect.get(); ok {
		fn(s.id, err)
	}
}

// connection is one physical link. done is closed when the link is
// released, failing every operation still using it.
type connection struct {
	link   ble.Link
	done   chan struct{}
	unsubs []func() error
	local  atomic.Bool
	once   sync.Once
}

func newConnection(link ble.Link) *connection {
	return &connection{
		link: link,
		done: make(chan struct{}),
	}
}

func (c *connection) isDone() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// release fails pending operations, drops subscriptions and closes the
// link. Only the first call has an effect.
func (c *connection) release() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		for _, unsub := range c.unsubs {
			if uerr := unsub(); uerr != nil {
				logging.Debug("Failed to unsubscribe", zap.Error(uerr))
			}
		}
		err = c.link.Close()
	})
	return err
}

// bind derives a context that is also cancelled when the connection is
// released
func (c *connection) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func (c *connection) read(ctx context.Context, id uuid.UUID) ([]byte, error) {
	if c.isDone() {
		return nil, ErrLinkLost
	}
	opCtx, cancel := c.bind(ctx)
	defer cancel()

	data, err := c.link.Read(opCtx, id)
	if err != nil {
		return nil, c.translate(err)
	}
	return data, nil
}

func (c *connection) write(ctx context.Context, id uuid.UUID, payload []byte) error {
	if c.isDone() {
		return ErrLinkLost
	}
	opCtx, cancel := c.bind(ctx)
	defer cancel()

	if err := c.link.Write(opCtx, id, payload); err != nil {
		return c.translate(err)
	}
	return nil
}

func (c *connection) translate(err error) error {
	if c.isDone() || errors.Is(err, ble.ErrLinkClosed) {
		return ErrLinkLost
	}
	select {
	case <-c.link.Lost():
		return ErrLinkLost
	default:
	}
	return err
}
