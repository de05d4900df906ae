package provisioning

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hubonboard/hubsetup/internal/attribute"
	"github.com/hubonboard/hubsetup/internal/ble"
	"github.com/hubonboard/hubsetup/internal/ble/bletest"
	"github.com/hubonboard/hubsetup/internal/clock"
	"github.com/hubonboard/hubsetup/internal/discovery"
	"github.com/hubonboard/hubsetup/internal/hubapi"
	"github.com/hubonboard/hubsetup/internal/logging"
	"github.com/hubonboard/hubsetup/internal/session"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var start = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type fakeProber struct {
	clock *clock.FakeClock
	ok    func(address string, now time.Time) bool

	mu     sync.Mutex
	probed []string
}

func (p *fakeProber) Probe(ctx context.Context, address string) (*hubapi.HubInfo, error) {
	p.mu.Lock()
	p.probed = append(p.probed, address)
	p.mu.Unlock()

	if p.ok != nil && p.ok(address, p.clock.Now()) {
		return &hubapi.HubInfo{Onboarded: true}, nil
	}
	return nil, hubapi.NewNetworkError("hub not reachable", errors.New("connection refused"), address)
}

type fakeLocator struct {
	address string
	named   string
	calls   atomic.Int32

	mu    sync.Mutex
	names []string
}

func (l *fakeLocator) LocateAddress(ctx context.Context, address string) (string, error) {
	l.calls.Add(1)
	if l.address == "" {
		return "", errors.New("not found")
	}
	return l.address, nil
}

func (l *fakeLocator) LocateName(ctx context.Context, name string) (string, error) {
	l.mu.Lock()
	l.names = append(l.names, name)
	l.mu.Unlock()
	if l.named == "" {
		return "", errors.New("not found")
	}
	return l.named, nil
}

type recorder struct {
	mu          sync.Mutex
	transitions []Transition
}

func (r *recorder) record(tr Transition) {
	r.mu.Lock()
	r.transitions = append(r.transitions, tr)
	r.mu.Unlock()
}

func (r *recorder) reasons(to State) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, tr := range r.transitions {
		if tr.To == to {
			out = append(out, tr.Reason)
		}
	}
	return out
}

type harness struct {
	radio   *bletest.Radio
	peer    *bletest.Peer
	sess    *session.Session
	clock   *clock.FakeClock
	prober  *fakeProber
	machine *Machine
	log     *recorder
}

// newHarness discovers and connects hub H1, then starts a machine on it.
// seededAddress is the REACHABLE_ADDRESS value at connect time.
func newHarness(t *testing.T, seededAddress string, opts ...Option) *harness {
	t.Helper()

	radio := bletest.NewRadio()
	clk := clock.Fake(start)

	peer := radio.AddPeer("H1")
	peer.SetValue(attribute.ConnectionStateUUID,
		attribute.EncodeConnectionState(attribute.ConnectionState{State: attribute.StateDisconnected}))
	peer.SetValue(attribute.VersionUUID, attribute.EncodeText("2.1.0"))
	peer.SetValue(attribute.ReachableAddressUUID, attribute.EncodeText(seededAddress))

	hub := discoverHub(t, radio, clk)
	sess := session.New(radio, hub)
	require.NoError(t, sess.Connect(context.Background()))
	t.Cleanup(func() { _ = sess.Disconnect(context.Background()) })

	prober := &fakeProber{clock: clk}
	m, err := New(sess, prober, append([]Option{WithClock(clk)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	log := &recorder{}
	m.OnTransition(log.record)
	require.NoError(t, m.Start())

	return &harness{
		radio:   radio,
		peer:    peer,
		sess:    sess,
		clock:   clk,
		prober:  prober,
		machine: m,
		log:     log,
	}
}

func discoverHub(t *testing.T, radio *bletest.Radio, clk clock.Clock) *discovery.Hub {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	adv := ble.Advertisement{
		Address:  "H1",
		Name:     "Living Room",
		Services: []uuid.UUID{attribute.ServiceUUID},
		RSSI:     -48,
	}
	go func() {
		for !radio.Advertise(adv) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Millisecond):
			}
		}
	}()

	hub, err := discovery.NewScanner(radio, discovery.WithClock(clk)).FindHub(ctx, "H1")
	require.NoError(t, err)
	return hub
}

func (h *harness) notifyState(t *testing.T, state attribute.WifiState, ssid string) {
	t.Helper()
	value := attribute.EncodeConnectionState(attribute.ConnectionState{State: state, SSID: ssid})
	require.True(t, h.peer.Notify(attribute.ConnectionStateUUID, value))
}

func (h *harness) notifyNetwork(t *testing.T, ssid string) {
	t.Helper()
	require.True(t, h.peer.Notify(attribute.AvailableNetworksUUID, attribute.EncodeText(ssid)))
}

// sendCredentials reports two networks, selects HomeNet and submits the
// password
func (h *harness) sendCredentials(t *testing.T) {
	t.Helper()

	h.notifyNetwork(t, "HomeNet")
	h.notifyNetwork(t, "Guest")
	require.Eventually(t, func() bool {
		return len(h.machine.Networks()) == 2
	}, waitFor, tick)
	assert.Equal(t, []string{"Guest", "HomeNet"}, h.machine.Networks())

	require.NoError(t, h.machine.SelectNetwork("HomeNet"))
	assert.Equal(t, StateSendingCredentials, h.machine.State())
	assert.Empty(t, h.machine.Networks())

	require.NoError(t, h.machine.SubmitPassword(context.Background(), "secret"))
	require.Equal(t, StateAwaitingJoin, h.machine.State())
}

func (h *harness) wait(t *testing.T) (*Result, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	return h.machine.Wait(ctx)
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.machine.State() == want
	}, waitFor, tick, "state %s never reached, last %s", want, h.machine.State())
}

// flush round-trips through the event loop so that every event posted
// before it has been handled. Only valid outside SelectingNetwork.
func flush(t *testing.T, m *Machine) {
	t.Helper()
	require.ErrorIs(t, m.SelectNetwork("flush"), ErrInvalidState)
}

func requireJoinFailed(t *testing.T, err error, reason string) *JoinFailedError {
	t.Helper()
	var jf *JoinFailedError
	require.ErrorAs(t, err, &jf)
	assert.Equal(t, reason, jf.Reason)
	return jf
}

func TestMachine_JoinsWithReportedAddress(t *testing.T) {
	h := newHarness(t, "")
	h.sendCredentials(t)

	writes := h.peer.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, attribute.SSIDUUID, writes[0].Characteristic)
	assert.Equal(t, attribute.EncodeText("HomeNet"), writes[0].Value)
	assert.Equal(t, attribute.CredentialsUUID, writes[1].Characteristic)
	assert.Equal(t, attribute.EncodeText("secret"), writes[1].Value)

	h.clock.WaitForTimers(1)
	h.clock.Advance(2 * time.Second)
	h.peer.SetValue(attribute.ReachableAddressUUID, attribute.EncodeText("http://192.168.1.40/"))
	h.notifyState(t, attribute.StateConnected, "HomeNet")

	result, err := h.wait(t)
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.1.40/", result.Address)
	assert.Equal(t, "HomeNet", result.SSID)
	assert.False(t, result.Relocated)
	assert.Equal(t, StateJoined, h.machine.State())
	assert.Zero(t, h.clock.PendingCount(), "join timer should be stopped")
}

func TestMachine_JoinRejected(t *testing.T) {
	h := newHarness(t, "")
	h.sendCredentials(t)

	h.clock.WaitForTimers(1)
	h.clock.Advance(2 * time.Second)
	h.notifyState(t, attribute.StateDisconnected, "")

	_, err := h.wait(t)
	requireJoinFailed(t, err, ReasonJoinRejected)
	assert.Equal(t, StateJoinFailed, h.machine.State())
	assert.Zero(t, h.clock.PendingCount())

	// a stale fire after the terminal state changes nothing
	h.clock.Advance(time.Minute)
	assert.Equal(t, StateJoinFailed, h.machine.State())
}

func TestMachine_RelocatesAfterJoinTimeout(t *testing.T) {
	h := newHarness(t, "http://hub.local/")
	h.prober.ok = func(_ string, now time.Time) bool {
		return !now.Before(start.Add(45 * time.Second))
	}
	h.sendCredentials(t)

	h.clock.WaitForTimers(1)
	h.clock.Advance(30 * time.Second)
	h.waitState(t, StateRelocatingOnHomeNetwork)
	assert.Equal(t, []string{"join timeout"}, h.log.reasons(StateRelocatingOnHomeNetwork))

	// probes at 30s, 33s, ... until the hub answers at 45s
	for i := 0; i < 5; i++ {
		h.clock.WaitForTimers(2)
		h.clock.Advance(3 * time.Second)
	}

	result, err := h.wait(t)
	require.NoError(t, err)
	assert.Equal(t, "http://hub.local/", result.Address)
	assert.True(t, result.Relocated)
	require.NotNil(t, result.Info)
	assert.True(t, result.Info.Onboarded)

	assert.Eventually(t, func() bool {
		return h.sess.Status() == session.StatusDisconnected
	}, waitFor, tick, "session should be released after relocation starts")
}

func TestMachine_RelocationTimesOut(t *testing.T) {
	h := newHarness(t, "http://hub.local/")
	h.sendCredentials(t)

	h.clock.WaitForTimers(1)
	h.clock.Advance(30 * time.Second)
	h.waitState(t, StateRelocatingOnHomeNetwork)

	for i := 0; i < 20; i++ {
		h.clock.WaitForTimers(2)
		h.clock.Advance(3 * time.Second)
	}

	_, err := h.wait(t)
	requireJoinFailed(t, err, ReasonUnreachableAfterJoin)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestMachine_RelocationFallsBackToMDNS(t *testing.T) {
	locator := &fakeLocator{address: "http://192.168.1.77/"}
	h := newHarness(t, "http://hub.local/", WithLocator(locator))
	h.prober.ok = func(address string, _ time.Time) bool {
		return address == "http://192.168.1.77/"
	}
	h.sendCredentials(t)

	h.clock.WaitForTimers(1)
	h.clock.Advance(30 * time.Second)

	result, err := h.wait(t)
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.1.77/", result.Address)
	assert.True(t, result.Relocated)
	assert.Equal(t, int32(1), locator.calls.Load())
}

func TestMachine_RelocatesWithoutAddress(t *testing.T) {
	h := newHarness(t, "")
	h.sendCredentials(t)

	h.clock.WaitForTimers(1)
	h.clock.Advance(30 * time.Second)
	h.waitState(t, StateRelocatingOnHomeNetwork)
	assert.Equal(t, []string{"join timeout"}, h.log.reasons(StateRelocatingOnHomeNetwork))

	// nothing to poll, so only the relocation timeout ends the attempt
	for i := 0; i < 20; i++ {
		h.clock.WaitForTimers(2)
		h.clock.Advance(3 * time.Second)
	}

	_, err := h.wait(t)
	requireJoinFailed(t, err, ReasonUnreachableAfterJoin)
	assert.ErrorIs(t, err, ErrTimeout)

	h.prober.mu.Lock()
	defer h.prober.mu.Unlock()
	assert.Empty(t, h.prober.probed)
}

func TestMachine_RelocatesWithoutAddressUsing(t *testing.T) {
	tests := []struct {
		name    string
		locator *fakeLocator
		opts    []Option
		want    string
	}{
		{
			name:    "hub name",
			locator: &fakeLocator{named: "http://192.168.1.77/"},
			opts:    []Option{WithHubName("Living Room")},
			want:    "http://192.168.1.77/",
		},
		{
			name: "fallback address",
			opts: []Option{WithFallbackAddress("http://10.0.0.8/")},
			want: "http://10.0.0.8/",
		},
		{
			name:    "name after stale fallback",
			locator: &fakeLocator{named: "http://10.0.0.9/"},
			opts:    []Option{WithFallbackAddress("http://10.0.0.8/"), WithHubName("Living Room")},
			want:    "http://10.0.0.9/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			if tt.locator != nil {
				opts = append([]Option{WithLocator(tt.locator)}, opts...)
			}
			h := newHarness(t, "", opts...)
			h.prober.ok = func(address string, _ time.Time) bool {
				return address == tt.want
			}
			h.sendCredentials(t)

			h.clock.WaitForTimers(1)
			h.clock.Advance(30 * time.Second)

			result, err := h.wait(t)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Address)
			assert.True(t, result.Relocated)
			assert.Equal(t, []string{"join timeout"}, h.log.reasons(StateRelocatingOnHomeNetwork))

			if tt.locator != nil {
				tt.locator.mu.Lock()
				defer tt.locator.mu.Unlock()
				assert.Equal(t, []string{"Living Room"}, tt.locator.names)
			}
		})
	}
}

func TestMachine_LinkLossWhileAwaitingJoinRelocates(t *testing.T) {
	h := newHarness(t, "http://hub.local/")
	h.prober.ok = func(string, time.Time) bool { return true }
	h.sendCredentials(t)

	h.peer.Drop(errors.New("supervision timeout"))

	result, err := h.wait(t)
	require.NoError(t, err)
	assert.True(t, result.Relocated)
	assert.Equal(t, []string{"link lost"}, h.log.reasons(StateRelocatingOnHomeNetwork))
}

func TestMachine_LinkLossWhileSendingFails(t *testing.T) {
	h := newHarness(t, "")
	require.NoError(t, h.machine.SelectNetwork("HomeNet"))

	h.peer.Drop(errors.New("supervision timeout"))

	_, err := h.wait(t)
	requireJoinFailed(t, err, ReasonLinkLost)
	assert.ErrorIs(t, err, session.ErrLinkLost)
}

func TestMachine_PasswordWriteRejected(t *testing.T) {
	h := newHarness(t, "")
	h.peer.FailWrite(attribute.CredentialsUUID, errors.New("write not permitted"))
	require.NoError(t, h.machine.SelectNetwork("HomeNet"))

	err := h.machine.SubmitPassword(context.Background(), "secret")
	var rejected *session.WriteRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, StateJoinFailed, h.machine.State())
	assert.Len(t, h.peer.Writes(), 2)

	_, err = h.wait(t)
	requireJoinFailed(t, err, ReasonSendFailed)
}

func TestMachine_SSIDWriteRejectedSkipsPassword(t *testing.T) {
	h := newHarness(t, "")
	h.peer.FailWrite(attribute.SSIDUUID, errors.New("write not permitted"))
	require.NoError(t, h.machine.SelectNetwork("HomeNet"))

	require.Error(t, h.machine.SubmitPassword(context.Background(), "secret"))
	writes := h.peer.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, attribute.SSIDUUID, writes[0].Characteristic)
}

func TestMachine_ConnectingRearmsJoinTimer(t *testing.T) {
	h := newHarness(t, "http://hub.local/")
	h.sendCredentials(t)

	h.clock.WaitForTimers(1)
	h.clock.Advance(20 * time.Second)
	h.notifyState(t, attribute.StateConnecting, "HomeNet")
	flush(t, h.machine)

	h.clock.Advance(20 * time.Second)
	flush(t, h.machine)
	assert.Equal(t, StateAwaitingJoin, h.machine.State())

	h.clock.Advance(10 * time.Second)
	h.waitState(t, StateRelocatingOnHomeNetwork)
}

func TestMachine_IgnoresConnectionToOtherNetwork(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logging.SetLogger(zap.New(core))
	t.Cleanup(func() { logging.SetLogger(nil) })

	h := newHarness(t, "http://hub.local/")
	h.sendCredentials(t)

	h.notifyState(t, attribute.StateConnected, "Neighbour")
	h.notifyState(t, attribute.StateDown, "")
	flush(t, h.machine)
	assert.Equal(t, StateAwaitingJoin, h.machine.State())

	warned := logs.FilterMessage("Hub connected to another network").All()
	require.Len(t, warned, 1)
	assert.Equal(t, "Neighbour", warned[0].ContextMap()["ssid"])
	assert.Equal(t, "HomeNet", warned[0].ContextMap()["expected"])
}

func TestMachine_IgnoresStateWhileSending(t *testing.T) {
	h := newHarness(t, "http://10.0.0.5/")
	h.peer.OnWrite(func(w bletest.Write) {
		if w.Characteristic == attribute.SSIDUUID {
			// left over from before the new credentials
			h.peer.Notify(attribute.ConnectionStateUUID, attribute.EncodeConnectionState(
				attribute.ConnectionState{State: attribute.StateDisconnected}))
		}
	})
	require.NoError(t, h.machine.SelectNetwork("HomeNet"))
	require.NoError(t, h.machine.SubmitPassword(context.Background(), "secret"))
	flush(t, h.machine)
	require.Equal(t, StateAwaitingJoin, h.machine.State())

	h.notifyState(t, attribute.StateConnected, "HomeNet")

	result, err := h.wait(t)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5/", result.Address)
	assert.False(t, result.Relocated)
}

func TestMachine_WaitsForAddressAfterConnected(t *testing.T) {
	h := newHarness(t, "")
	h.sendCredentials(t)
	h.notifyState(t, attribute.StateConnected, "HomeNet")

	// join timer plus the address retry
	h.clock.WaitForTimers(2)
	h.peer.SetValue(attribute.ReachableAddressUUID, attribute.EncodeText("http://192.168.1.40/"))
	h.clock.Advance(3 * time.Second)

	result, err := h.wait(t)
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.1.40/", result.Address)
}

func TestMachine_UnresolvedAddressRelocates(t *testing.T) {
	h := newHarness(t, "", WithFallbackAddress("http://10.0.0.8/"))
	h.prober.ok = func(address string, _ time.Time) bool {
		return address == "http://10.0.0.8/"
	}
	h.sendCredentials(t)
	h.notifyState(t, attribute.StateConnected, "HomeNet")

	// join timer plus the address retry
	h.clock.WaitForTimers(2)
	h.clock.Advance(30 * time.Second)

	result, err := h.wait(t)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.8/", result.Address)
	assert.True(t, result.Relocated)
}

func TestMachine_RestartAfterFailure(t *testing.T) {
	h := newHarness(t, "")
	h.sendCredentials(t)
	h.notifyState(t, attribute.StateDisconnected, "")
	_, err := h.wait(t)
	require.Error(t, err)

	require.NoError(t, h.machine.Restart(nil))
	assert.Equal(t, StateSelectingNetwork, h.machine.State())
	assert.Empty(t, h.machine.Networks())

	h.notifyNetwork(t, "HomeNet")
	require.Eventually(t, func() bool {
		return len(h.machine.Networks()) == 1
	}, waitFor, tick)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = h.machine.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "new attempt should be pending")
}

func TestMachine_NetworksObserver(t *testing.T) {
	h := newHarness(t, "")

	var mu sync.Mutex
	var calls [][]string
	h.machine.OnNetworksChanged(func(items []string) {
		mu.Lock()
		calls = append(calls, items)
		mu.Unlock()
	})

	h.notifyNetwork(t, "HomeNet")
	h.notifyNetwork(t, "HomeNet")
	h.notifyNetwork(t, "")
	h.notifyNetwork(t, "attic")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) == 2
	}, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"attic", "HomeNet"}, calls[1])
}

func TestMachine_OperationsInWrongState(t *testing.T) {
	sess := newStubSession(7001)
	m, err := New(sess, &fakeProber{clock: clock.Fake(start)})
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, StateIdle, m.State())
	assert.ErrorIs(t, m.SelectNetwork("HomeNet"), ErrInvalidState)

	require.NoError(t, m.Start())
	assert.ErrorIs(t, m.SubmitPassword(context.Background(), "secret"), ErrInvalidState)
	assert.Error(t, m.SelectNetwork(""))

	require.NoError(t, m.SelectNetwork("HomeNet"))
	assert.ErrorIs(t, m.SelectNetwork("Guest"), ErrInvalidState)
}

func TestMachine_IgnoresSupersededSession(t *testing.T) {
	old := newStubSession(7101)
	current := newStubSession(7102)

	m, err := New(old, &fakeProber{clock: clock.Fake(start)})
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Start())
	require.NoError(t, m.Restart(current))

	// the old session still holds its callbacks and delivers late
	old.emitNetwork("Stale")
	current.emitNetwork("Fresh")

	require.Eventually(t, func() bool {
		return len(m.Networks()) == 1
	}, waitFor, tick)
	assert.Equal(t, []string{"Fresh"}, m.Networks())
}

func TestMachine_Close(t *testing.T) {
	m, err := New(newStubSession(7201), &fakeProber{clock: clock.Fake(start)})
	require.NoError(t, err)
	require.NoError(t, m.Start())

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err = m.Wait(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Start(), ErrClosed)
}

func TestNew_Validates(t *testing.T) {
	prober := &fakeProber{clock: clock.Fake(start)}

	_, err := New(nil, prober)
	assert.Error(t, err)

	_, err = New(newStubSession(7301), nil)
	assert.Error(t, err)

	_, err = New(newStubSession(7302), prober, WithConfig(Config{}))
	assert.Error(t, err)
}

// stubSession hands out subscriptions that never unregister, so callbacks
// can fire after the machine moved on
type stubSession struct {
	id uint64

	mu       sync.Mutex
	networks session.NetworksFunc
	states   session.StateFunc
	lost     session.DisconnectFunc
}

func newStubSession(id uint64) *stubSession {
	return &stubSession{id: id}
}

func (s *stubSession) ID() uint64               { return s.id }
func (s *stubSession) ReachableAddress() string { return "" }

func (s *stubSession) OnNetworksChanged(fn session.NetworksFunc) *session.Subscription {
	s.mu.Lock()
	s.networks = fn
	s.mu.Unlock()
	return &session.Subscription{}
}

func (s *stubSession) OnConnectionStateChanged(fn session.StateFunc) *session.Subscription {
	s.mu.Lock()
	s.states = fn
	s.mu.Unlock()
	return &session.Subscription{}
}

func (s *stubSession) OnDisconnected(fn session.DisconnectFunc) *session.Subscription {
	s.mu.Lock()
	s.lost = fn
	s.mu.Unlock()
	return &session.Subscription{}
}

func (s *stubSession) SendSSID(context.Context, string) error     { return nil }
func (s *stubSession) SendPassword(context.Context, string) error { return nil }
func (s *stubSession) Disconnect(context.Context) error           { return nil }

func (s *stubSession) ReadReachableAddress(context.Context) (string, error) {
	return "", session.ErrEmptyAddress
}

func (s *stubSession) emitNetwork(ssid string) {
	s.mu.Lock()
	fn := s.networks
	s.mu.Unlock()
	if fn != nil {
		fn(s.id, ssid)
	}
}
