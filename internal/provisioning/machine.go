package provisioning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hubonboard/hubsetup/internal/attribute"
	"github.com/hubonboard/hubsetup/internal/clock"
	"github.com/hubonboard/hubsetup/internal/hubapi"
	"github.com/hubonboard/hubsetup/internal/logging"
	"github.com/hubonboard/hubsetup/internal/session"
)

// Session is the part of an onboarding session the state machine drives.
// *session.Session implements it.
type Session interface {
	ID() uint64
	ReachableAddress() string
	OnNetworksChanged(fn session.NetworksFunc) *session.Subscription
	OnConnectionStateChanged(fn session.StateFunc) *session.Subscription
	OnDisconnected(fn session.DisconnectFunc) *session.Subscription
	SendSSID(ctx context.Context, ssid string) error
	SendPassword(ctx context.Context, password string) error
	ReadReachableAddress(ctx context.Context) (string, error)
	Disconnect(ctx context.Context) error
}

// AddressProber checks whether the hub API answers at an address.
// *hubapi.Prober implements it.
type AddressProber interface {
	Probe(ctx context.Context, address string) (*hubapi.HubInfo, error)
}

// AddressLocator finds the current hub address on the home network, from
// a stale address or from the name the hub advertised.
// *discovery.MDNSLocator implements it.
type AddressLocator interface {
	LocateAddress(ctx context.Context, address string) (string, error)
	LocateName(ctx context.Context, name string) (string, error)
}

// Option configures a Machine
type Option func(*Machine)

// WithClock sets the time source for every timeout
func WithClock(c clock.Clock) Option {
	return func(m *Machine) { m.clock = c }
}

// WithConfig sets the waits
func WithConfig(cfg Config) Option {
	return func(m *Machine) { m.cfg = cfg }
}

// WithLocator enables the mDNS fallback during relocation
func WithLocator(l AddressLocator) Option {
	return func(m *Machine) { m.locator = l }
}

// WithHubName sets the advertised hub name the locator searches for when
// no address is known
func WithHubName(name string) Option {
	return func(m *Machine) { m.hubName = name }
}

// WithFallbackAddress sets the address polled during relocation when the
// hub never reported one, typically the last address on record
func WithFallbackAddress(address string) Option {
	return func(m *Machine) { m.fallback = address }
}

// Machine drives one hub through Wi-Fi provisioning. All state changes
// happen on a single event loop goroutine; the exported methods post
// commands to it.
type Machine struct {
	cfg     Config
	clock   clock.Clock
	prober  AddressProber
	locator  AddressLocator
	hubName  string
	fallback string

	events    chan event
	done      chan struct{}
	closeOnce sync.Once
	stopped   chan struct{}

	mu           sync.Mutex
	state        State
	networks     *NetworkList
	attempt      *attempt
	onTransition func(Transition)
	onNetworks   func([]string)

	// owned by the event loop
	sess      Session
	sessionID uint64
	subs      []*session.Subscription
	epoch     uint64
	timerSeq  uint64
	timer     *clock.Timer
	cancelOp  context.CancelFunc
	ssid      string
	sending   bool
	resolving bool
	reply     chan error
}

// New creates a machine for sess and starts its event loop. The machine
// stays Idle until Start.
func New(sess Session, prober AddressProber, opts ...Option) (*Machine, error) {
	if sess == nil {
		return nil, errors.New("provisioning: nil session")
	}
	if prober == nil {
		return nil, errors.New("provisioning: nil prober")
	}

	m := &Machine{
		cfg:      DefaultConfig(),
		clock:    clock.Real(),
		prober:   prober,
		events:   make(chan event, 32),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		networks: NewNetworkList(),
		attempt:  newAttempt(),
		sess:     sess,
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("provisioning: %w", err)
	}

	go m.loop()
	return m, nil
}

// Start enters SelectingNetwork, registering the session observers and
// clearing the network list
func (m *Machine) Start() error {
	return m.command(restartCmd{})
}

// Restart abandons the current attempt and enters SelectingNetwork again.
// A non-nil sess replaces the session; notifications from the previous
// one are ignored from then on.
func (m *Machine) Restart(sess Session) error {
	return m.command(restartCmd{sess: sess})
}

// SelectNetwork picks the SSID to join and moves to SendingCredentials
func (m *Machine) SelectNetwork(ssid string) error {
	if ssid == "" {
		return errors.New("provisioning: empty SSID")
	}
	return m.command(selectCmd{ssid: ssid})
}

// SubmitPassword writes the selected SSID and then password to the hub.
// It returns once both writes resolved. On success the machine is in
// AwaitingJoin; on failure it is in JoinFailed and the error is returned.
func (m *Machine) SubmitPassword(ctx context.Context, password string) error {
	reply := make(chan error, 1)
	if err := m.post(passwordCmd{ctx: ctx, password: password, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-m.stopped:
		return ErrClosed
	}
}

// Wait blocks until the current attempt reaches Joined or JoinFailed. A
// failed attempt returns a *JoinFailedError.
func (m *Machine) Wait(ctx context.Context) (*Result, error) {
	m.mu.Lock()
	a := m.attempt
	m.mu.Unlock()

	select {
	case <-a.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.stopped:
		select {
		case <-a.done:
		default:
			return nil, ErrClosed
		}
	}

	if a.failure != nil {
		return nil, a.failure
	}
	return a.result, nil
}

// State returns the current state
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Networks returns the SSIDs reported since SelectingNetwork was entered
func (m *Machine) Networks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.networks.Items()
}

// OnTransition registers fn to be called on the event loop after every
// state change. fn must not call back into the machine synchronously.
func (m *Machine) OnTransition(fn func(Transition)) {
	m.mu.Lock()
	m.onTransition = fn
	m.mu.Unlock()
}

// OnNetworksChanged registers fn to be called with the sorted list each
// time a new SSID is added
func (m *Machine) OnNetworksChanged(fn func([]string)) {
	m.mu.Lock()
	m.onNetworks = fn
	m.mu.Unlock()
}

// Close stops the event loop, cancelling timers and in-flight operations
func (m *Machine) Close() error {
	m.closeOnce.Do(func() {
		close(m.done)
	})
	<-m.stopped
	return nil
}

// event loop

type event interface{}

type restartCmd struct {
	sess  Session
	reply chan error
}

type selectCmd struct {
	ssid  string
	reply chan error
}

type passwordCmd struct {
	ctx      context.Context
	password string
	reply    chan error
}

type networkEvent struct {
	sessionID uint64
	ssid      string
}

type stateEvent struct {
	sessionID uint64
	state     attribute.ConnectionState
}

type linkLostEvent struct {
	sessionID uint64
	err       error
}

type writesDoneEvent struct {
	epoch uint64
	err   error
}

type addressEvent struct {
	epoch   uint64
	address string
	err     error
}

type relocatedEvent struct {
	epoch   uint64
	address string
	info    *hubapi.HubInfo
}

type timerKind int

const (
	timerJoin timerKind = iota
	timerRelocation
)

type timerEvent struct {
	epoch uint64
	seq   uint64
	kind  timerKind
}

func (m *Machine) post(ev event) error {
	select {
	case <-m.done:
		return ErrClosed
	default:
	}
	select {
	case m.events <- ev:
		return nil
	case <-m.done:
		return ErrClosed
	}
}

// command posts a command carrying a reply channel and waits for the loop
// to accept or reject it
func (m *Machine) command(cmd event) error {
	reply := make(chan error, 1)
	switch c := cmd.(type) {
	case restartCmd:
		c.reply = reply
		cmd = c
	case selectCmd:
		c.reply = reply
		cmd = c
	}
	if err := m.post(cmd); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-m.stopped:
		return ErrClosed
	}
}

func (m *Machine) loop() {
	defer close(m.stopped)
	defer m.shutdown()

	for {
		select {
		case <-m.done:
			return
		case ev := <-m.events:
			m.handle(ev)
		}
	}
}

func (m *Machine) handle(ev event) {
	switch e := ev.(type) {
	case restartCmd:
		if e.sess != nil {
			m.sess = e.sess
		}
		m.enterSelecting()
		e.reply <- nil

	case selectCmd:
		e.reply <- m.selectNetwork(e.ssid)

	case passwordCmd:
		m.submitPassword(e)

	case networkEvent:
		if m.current(e.sessionID) && m.State() == StateSelectingNetwork {
			m.addNetwork(e.ssid)
		}

	case stateEvent:
		if m.current(e.sessionID) {
			m.handleState(e.state)
		}

	case linkLostEvent:
		if m.current(e.sessionID) {
			m.handleLinkLost(e.err)
		}

	case writesDoneEvent:
		if e.epoch == m.epoch {
			m.writesDone(e.err)
		}

	case addressEvent:
		if e.epoch == m.epoch && m.resolving {
			m.addressResolved(e.address, e.err)
		}

	case relocatedEvent:
		if e.epoch == m.epoch && m.State() == StateRelocatingOnHomeNetwork {
			m.join(e.address, true, e.info)
		}

	case timerEvent:
		if e.epoch == m.epoch && e.seq == m.timerSeq {
			m.timer = nil
			m.handleTimer(e.kind)
		}
	}
}

func (m *Machine) current(sessionID uint64) bool {
	return m.sessionID != 0 && sessionID == m.sessionID
}

// states

func (m *Machine) enterSelecting() {
	m.answer(ErrRestarted)
	m.resetAttempt()

	m.mu.Lock()
	m.networks.Reset()
	if m.attempt.settled() {
		m.attempt = newAttempt()
	}
	m.mu.Unlock()

	m.ssid = ""
	m.subscribe()
	m.transition(StateSelectingNetwork, "started")
}

func (m *Machine) selectNetwork(ssid string) error {
	if state := m.State(); state != StateSelectingNetwork {
		return fmt.Errorf("%w: cannot select a network in %s", ErrInvalidState, state)
	}
	m.ssid = ssid
	m.transition(StateSendingCredentials, "network selected")

	m.mu.Lock()
	m.networks.Reset()
	m.mu.Unlock()
	return nil
}

func (m *Machine) submitPassword(cmd passwordCmd) {
	if state := m.State(); state != StateSendingCredentials || m.sending {
		cmd.reply <- fmt.Errorf("%w: cannot submit a password in %s", ErrInvalidState, state)
		return
	}

	ctx, cancel := context.WithCancel(cmd.ctx)
	m.cancelOp = cancel
	m.sending = true
	m.reply = cmd.reply

	sess, ssid, password, epoch := m.sess, m.ssid, cmd.password, m.epoch
	go func() {
		err := sess.SendSSID(ctx, ssid)
		if err == nil {
			err = sess.SendPassword(ctx, password)
		}
		_ = m.post(writesDoneEvent{epoch: epoch, err: err})
	}()
}

func (m *Machine) writesDone(err error) {
	m.sending = false
	m.cancelOperation()
	if err != nil {
		reason := ReasonSendFailed
		if errors.Is(err, session.ErrLinkLost) {
			reason = ReasonLinkLost
		}
		m.fail(reason, err)
		m.answer(err)
		return
	}
	m.enterAwaitingJoin()
	m.answer(nil)
}

func (m *Machine) enterAwaitingJoin() {
	m.transition(StateAwaitingJoin, "credentials sent")
	m.armTimer(m.cfg.JoinTimeout, timerJoin)
}

func (m *Machine) handleState(cs attribute.ConnectionState) {
	switch m.State() {
	case StateSendingCredentials:
		// reports before the writes finish describe the previous attempt
		logging.Debug("Ignoring connection state while sending credentials",
			zap.String("state", cs.State.String()))

	case StateAwaitingJoin:
		if m.resolving {
			return
		}
		switch cs.State {
		case attribute.StateConnected:
			if cs.SSID != "" && cs.SSID != m.ssid {
				logging.Warn("Hub connected to another network",
					zap.String("ssid", cs.SSID),
					zap.String("expected", m.ssid))
				return
			}
			m.resolveAddress()
		case attribute.StateDisconnected:
			m.fail(ReasonJoinRejected, errJoinRejected)
		case attribute.StateConnecting:
			m.armTimer(m.cfg.JoinTimeout, timerJoin)
		}
	}
}

func (m *Machine) handleLinkLost(err error) {
	switch m.State() {
	case StateSendingCredentials:
		m.fail(ReasonLinkLost, err)
		m.answer(err)
	case StateAwaitingJoin:
		m.enterRelocating("link lost")
	case StateSelectingNetwork:
		logging.Warn("Link lost while selecting a network", zap.Error(err))
	}
}

func (m *Machine) handleTimer(kind timerKind) {
	switch {
	case kind == timerJoin && m.State() == StateAwaitingJoin:
		m.enterRelocating("join timeout")
	case kind == timerRelocation && m.State() == StateRelocatingOnHomeNetwork:
		m.fail(ReasonUnreachableAfterJoin,
			fmt.Errorf("hub did not answer within %s: %w", m.cfg.RelocationTimeout, ErrTimeout))
	}
}

// resolveAddress reads REACHABLE_ADDRESS after CONNECTED. An empty value
// means the hub has no address yet and is read again every poll interval,
// bounded by the join timer.
func (m *Machine) resolveAddress() {
	m.resolving = true
	m.armTimer(m.cfg.JoinTimeout, timerJoin)

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelOp = cancel

	sess, clk, interval, epoch := m.sess, m.clock, m.cfg.PollInterval, m.epoch
	go func() {
		for {
			address, err := sess.ReadReachableAddress(ctx)
			if err == nil || !errors.Is(err, session.ErrEmptyAddress) {
				_ = m.post(addressEvent{epoch: epoch, address: address, err: err})
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-clk.After(interval):
			}
		}
	}()
}

func (m *Machine) addressResolved(address string, err error) {
	m.resolving = false
	m.cancelOperation()
	if err == nil {
		m.join(address, false, nil)
		return
	}

	logging.Warn("Failed to read hub address", zap.Error(err))
	if seeded := m.sess.ReachableAddress(); seeded != "" {
		m.join(seeded, false, nil)
		return
	}
	if !errors.Is(err, session.ErrEmptyAddress) {
		err = fmt.Errorf("%w: %w", session.ErrEmptyAddress, err)
	}
	m.fail(ReasonNoAddress, err)
}

// enterRelocating drops the Bluetooth session and polls the hub API on
// the home network until it answers or RelocationTimeout runs out. With
// no reported address the fallback address and the locator are polled.
func (m *Machine) enterRelocating(reason string) {
	address := m.sess.ReachableAddress()
	if address == "" {
		address = m.fallback
	}

	m.cancelOperation()
	m.resolving = false
	m.unsubscribe()
	sess := m.sess
	go func() {
		if err := sess.Disconnect(context.Background()); err != nil {
			logging.Debug("Background disconnect failed", zap.Error(err))
		}
	}()

	if address == "" && (m.locator == nil || m.hubName == "") {
		logging.Warn("No hub address to poll, waiting for relocation timeout")
	}

	m.transition(StateRelocatingOnHomeNetwork, reason)
	m.armTimer(m.cfg.RelocationTimeout, timerRelocation)

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelOp = cancel
	go m.poll(ctx, m.epoch, address)
}

func (m *Machine) poll(ctx context.Context, epoch uint64, address string) {
	for {
		if address != "" {
			if info, err := m.prober.Probe(ctx, address); err == nil {
				_ = m.post(relocatedEvent{epoch: epoch, address: address, info: info})
				return
			}
		}

		if located := m.locate(ctx, address); located != "" && located != address {
			if info, err := m.prober.Probe(ctx, located); err == nil {
				_ = m.post(relocatedEvent{epoch: epoch, address: located, info: info})
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-m.clock.After(m.cfg.PollInterval):
		}
	}
}

// locate asks the locator for a replacement of address, then for the hub
// by name. It returns "" when neither lookup answers.
func (m *Machine) locate(ctx context.Context, address string) string {
	if m.locator == nil {
		return ""
	}
	if address != "" {
		located, err := m.locator.LocateAddress(ctx, address)
		if err == nil {
			return located
		}
		logging.Debug("Address lookup failed", zap.String("address", address), zap.Error(err))
	}
	if m.hubName != "" {
		located, err := m.locator.LocateName(ctx, m.hubName)
		if err == nil {
			return located
		}
		logging.Debug("Name lookup failed", zap.String("name", m.hubName), zap.Error(err))
	}
	return ""
}

func (m *Machine) join(address string, relocated bool, info *hubapi.HubInfo) {
	result := &Result{
		Address:   address,
		SSID:      m.ssid,
		Relocated: relocated,
		Info:      info,
	}
	m.resetAttempt()

	reason := "hub reported CONNECTED"
	if relocated {
		reason = "hub answered on home network"
	}
	m.transition(StateJoined, reason)
	m.settle(result, nil)
}

func (m *Machine) fail(reason string, err error) {
	m.resetAttempt()
	m.transition(StateJoinFailed, reason)
	m.settle(nil, &JoinFailedError{Reason: reason, Err: err})
}

func (m *Machine) settle(result *Result, err error) {
	m.mu.Lock()
	a := m.attempt
	m.mu.Unlock()

	a.result = result
	a.failure = err
	close(a.done)
}

// helpers

func (m *Machine) subscribe() {
	m.unsubscribe()

	id := m.sess.ID()
	m.sessionID = id
	m.subs = []*session.Subscription{
		m.sess.OnNetworksChanged(func(sid uint64, ssid string) {
			_ = m.post(networkEvent{sessionID: sid, ssid: ssid})
		}),
		m.sess.OnConnectionStateChanged(func(sid uint64, cs attribute.ConnectionState) {
			_ = m.post(stateEvent{sessionID: sid, state: cs})
		}),
		m.sess.OnDisconnected(func(sid uint64, err error) {
			_ = m.post(linkLostEvent{sessionID: sid, err: err})
		}),
	}
}

func (m *Machine) unsubscribe() {
	for _, sub := range m.subs {
		sub.Cancel()
	}
	m.subs = nil
	m.sessionID = 0
}

func (m *Machine) addNetwork(ssid string) {
	m.mu.Lock()
	added := m.networks.Add(ssid)
	items := m.networks.Items()
	fn := m.onNetworks
	m.mu.Unlock()

	if added && fn != nil {
		fn(items)
	}
}

func (m *Machine) transition(to State, reason string) {
	m.mu.Lock()
	from := m.state
	m.state = to
	fn := m.onTransition
	m.mu.Unlock()

	m.epoch++
	logging.LogTransition(from.String(), to.String(), reason)
	if fn != nil {
		fn(Transition{From: from, To: to, Reason: reason, At: m.clock.Now()})
	}
}

func (m *Machine) armTimer(d time.Duration, kind timerKind) {
	m.stopTimer()
	m.timerSeq++
	epoch, seq := m.epoch, m.timerSeq
	m.timer = m.clock.AfterFunc(d, func() {
		_ = m.post(timerEvent{epoch: epoch, seq: seq, kind: kind})
	})
}

func (m *Machine) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerSeq++
}

func (m *Machine) cancelOperation() {
	if m.cancelOp != nil {
		m.cancelOp()
		m.cancelOp = nil
	}
}

// resetAttempt cancels everything tied to the current state
func (m *Machine) resetAttempt() {
	m.stopTimer()
	m.cancelOperation()
	m.unsubscribe()
	m.sending = false
	m.resolving = false
}

// answer resolves a pending SubmitPassword
func (m *Machine) answer(err error) {
	if m.reply != nil {
		m.reply <- err
		m.reply = nil
	}
}

func (m *Machine) shutdown() {
	m.answer(ErrClosed)
	m.resetAttempt()
}

// attempt is the outcome of one run from SelectingNetwork to a terminal
// state. result and failure are written before done is closed.
type attempt struct {
	done    chan struct{}
	result  *Result
	failure error
}

func newAttempt() *attempt {
	return &attempt{done: make(chan struct{})}
}

func (a *attempt) settled() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}
