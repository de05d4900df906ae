package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubonboard/hubsetup/internal/attribute"
	"github.com/hubonboard/hubsetup/internal/ble/bletest"
	"github.com/hubonboard/hubsetup/internal/discovery"
)

const waitFor = 2 * time.Second

func testHub(id string) *discovery.Hub {
	return &discovery.Hub{ID: id, Name: "Hub " + id}
}

func newPeer(radio *bletest.Radio, id string) *bletest.Peer {
	peer := radio.AddPeer(id)
	peer.SetValue(attribute.ConnectionStateUUID,
		attribute.EncodeConnectionState(attribute.ConnectionState{State: attribute.StateDisconnected}))
	peer.SetValue(attribute.VersionUUID, attribute.EncodeText("2.1.0"))
	peer.SetValue(attribute.ReachableAddressUUID, attribute.EncodeText(""))
	return peer
}

func connected(t *testing.T) (*bletest.Radio, *bletest.Peer, *Session) {
	t.Helper()
	radio := bletest.NewRadio()
	peer := newPeer(radio, "H1")
	sess := New(radio, testHub("H1"))
	require.NoError(t, sess.Connect(context.Background()))
	t.Cleanup(func() { _ = sess.Disconnect(context.Background()) })
	return radio, peer, sess
}

func TestConnect_SubscribesAndSeeds(t *testing.T) {
	_, peer, sess := connected(t)

	assert.Equal(t, StatusConnected, sess.Status())
	assert.Equal(t, "2.1.0", sess.Version())
	assert.Equal(t, attribute.StateDisconnected, sess.ConnectionState().State)
	assert.Empty(t, sess.ReachableAddress())

	link := peer.Link()
	require.NotNil(t, link)
	assert.True(t, link.Subscribed(attribute.AvailableNetworksUUID))
	assert.True(t, link.Subscribed(attribute.ConnectionStateUUID))
}

func TestConnect_AlreadyConnectedIsNoOp(t *testing.T) {
	radio, _, sess := connected(t)

	require.NoError(t, sess.Connect(context.Background()))
	assert.Equal(t, 1, radio.ConnectCount())
}

func TestConnect_ConcurrentCallersShareOneAttempt(t *testing.T) {
	radio := bletest.NewRadio()
	newPeer(radio, "H1")
	sess := New(radio, testHub("H1"))
	defer func() { _ = sess.Disconnect(context.Background()) }()

	release := radio.HoldConnects()

	const callers = 8
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- sess.Connect(context.Background())
		}()
	}

	require.Eventually(t, func() bool { return radio.ConnectCount() == 1 }, waitFor, time.Millisecond)
	release()
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, radio.ConnectCount(), "exactly one physical connection attempt")
	assert.Equal(t, StatusConnected, sess.Status())
}

func TestConnect_RetriesOnce(t *testing.T) {
	radio := bletest.NewRadio()
	newPeer(radio, "H1")
	radio.FailNextConnect(errors.New("le-connection-abort-by-local"))
	sess := New(radio, testHub("H1"))
	defer func() { _ = sess.Disconnect(context.Background()) }()

	require.NoError(t, sess.Connect(context.Background()))
	assert.Equal(t, 2, radio.ConnectCount())
	assert.Equal(t, StatusConnected, sess.Status())
}

func TestConnect_FailsAfterRetry(t *testing.T) {
	radio := bletest.NewRadio()
	newPeer(radio, "H1")
	first := errors.New("first failure")
	second := errors.New("second failure")
	radio.FailNextConnect(first, second)
	sess := New(radio, testHub("H1"))

	err := sess.Connect(context.Background())

	var cerr *ConnectError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 2, cerr.Attempts)
	assert.Equal(t, "H1", cerr.HubID)
	assert.ErrorIs(t, err, second)
	assert.Equal(t, 2, radio.ConnectCount())
	assert.Equal(t, StatusFailed, sess.Status())

	// a later attempt starts fresh
	require.NoError(t, sess.Connect(context.Background()))
	assert.Equal(t, StatusConnected, sess.Status())
	_ = sess.Disconnect(context.Background())
}

func TestConnect_SeedFailuresAreNotFatal(t *testing.T) {
	radio := bletest.NewRadio()
	peer := radio.AddPeer("H1")
	// garbage everywhere
	peer.SetValue(attribute.ConnectionStateUUID, []byte("$$$$"))
	peer.SetValue(attribute.VersionUUID, []byte("%%%%"))
	sess := New(radio, testHub("H1"))
	defer func() { _ = sess.Disconnect(context.Background()) }()

	require.NoError(t, sess.Connect(context.Background()))
	assert.Equal(t, attribute.StateUnknown, sess.ConnectionState().State)
	assert.Empty(t, sess.Version())
}

func TestDisconnect_WhenDisconnectedIsNoOp(t *testing.T) {
	radio := bletest.NewRadio()
	sess := New(radio, testHub("H1"))

	require.NoError(t, sess.Disconnect(context.Background()))
	require.NoError(t, sess.Disconnect(context.Background()))
	assert.Equal(t, StatusDisconnected, sess.Status())
}

func TestDisconnect_ReleasesLinkAndSubscriptions(t *testing.T) {
	_, peer, sess := connected(t)
	link := peer.Link()

	require.NoError(t, sess.Disconnect(context.Background()))

	assert.Equal(t, StatusDisconnected, sess.Status())
	assert.True(t, link.Closed())
	assert.False(t, link.Subscribed(attribute.AvailableNetworksUUID))
	assert.False(t, link.Subscribed(attribute.ConnectionStateUUID))
	assert.False(t, peer.Notify(attribute.AvailableNetworksUUID, attribute.EncodeText("Late")))
}

func TestDisconnect_FailsInFlightReadThenReconnects(t *testing.T) {
	radio, peer, sess := connected(t)
	peer.SetValue(attribute.ReachableAddressUUID, attribute.EncodeText("http://hub.local/"))

	release := peer.HoldReads()
	defer release()

	result := make(chan error, 1)
	go func() {
		_, err := sess.ReadReachableAddress(context.Background())
		result <- err
	}()
	require.Eventually(t, func() bool { return peer.PendingReads() == 1 }, waitFor, time.Millisecond)

	require.NoError(t, sess.Disconnect(context.Background()))

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrLinkLost)
	case <-time.After(waitFor):
		t.Fatal("in-flight read still pending after Disconnect")
	}

	release()
	require.NoError(t, sess.Connect(context.Background()))
	assert.Equal(t, StatusConnected, sess.Status())
	assert.Equal(t, 2, radio.ConnectCount())

	address, err := sess.ReadReachableAddress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://hub.local/", address)
}

func TestDisconnect_CancelsInFlightConnect(t *testing.T) {
	radio := bletest.NewRadio()
	newPeer(radio, "H1")
	sess := New(radio, testHub("H1"))
	release := radio.HoldConnects()
	defer release()

	result := make(chan error, 1)
	go func() { result <- sess.Connect(context.Background()) }()
	require.Eventually(t, func() bool { return radio.ConnectCount() == 1 }, waitFor, time.Millisecond)

	require.NoError(t, sess.Disconnect(context.Background()))

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrLinkLost)
	case <-time.After(waitFor):
		t.Fatal("Connect still pending after Disconnect")
	}
	assert.Equal(t, StatusDisconnected, sess.Status())
	assert.Equal(t, 1, radio.ConnectCount(), "a cancelled attempt is not retried")
}

func TestLinkLoss_NotifiesObserverAndFailsOperations(t *testing.T) {
	_, peer, sess := connected(t)

	lost := make(chan error, 1)
	sess.OnDisconnected(func(id uint64, err error) {
		assert.Equal(t, sess.ID(), id)
		lost <- err
	})

	cause := errors.New("supervision timeout")
	peer.Drop(cause)

	select {
	case err := <-lost:
		assert.ErrorIs(t, err, ErrLinkLost)
		assert.ErrorIs(t, err, cause)
	case <-time.After(waitFor):
		t.Fatal("disconnect observer not called")
	}
	assert.Equal(t, StatusDisconnected, sess.Status())

	err := sess.SendSSID(context.Background(), "HomeNet")
	var rejected *WriteRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestLocalDisconnect_DoesNotNotifyObserver(t *testing.T) {
	_, _, sess := connected(t)

	called := make(chan struct{}, 1)
	sess.OnDisconnected(func(uint64, error) { called <- struct{}{} })

	require.NoError(t, sess.Disconnect(context.Background()))

	select {
	case <-called:
		t.Fatal("observer called for a local disconnect")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWrites_CompleteInIssueOrder(t *testing.T) {
	_, peer, sess := connected(t)

	require.NoError(t, sess.SendSSID(context.Background(), "HomeNet"))
	require.NoError(t, sess.SendPassword(context.Background(), "secret"))

	writes := peer.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, attribute.SSIDUUID, writes[0].Characteristic)
	assert.Equal(t, attribute.EncodeText("HomeNet"), writes[0].Value)
	assert.Equal(t, attribute.CredentialsUUID, writes[1].Characteristic)
	assert.Equal(t, attribute.EncodeText("secret"), writes[1].Value)
}

func TestWrites_RejectedByHub(t *testing.T) {
	_, peer, sess := connected(t)
	cause := errors.New("att error 0x03: write not permitted")
	peer.FailWrite(attribute.CredentialsUUID, cause)

	err := sess.SendPassword(context.Background(), "secret")

	var rejected *WriteRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "CREDENTIALS", rejected.Attribute)
	assert.ErrorIs(t, err, cause)
	assert.NotContains(t, err.Error(), "secret")
}

func TestNotifications_ReachObservers(t *testing.T) {
	_, peer, sess := connected(t)

	var mu sync.Mutex
	var ssids []string
	var states []attribute.ConnectionState
	sess.OnNetworksChanged(func(id uint64, ssid string) {
		assert.Equal(t, sess.ID(), id)
		mu.Lock()
		ssids = append(ssids, ssid)
		mu.Unlock()
	})
	sess.OnConnectionStateChanged(func(id uint64, cs attribute.ConnectionState) {
		mu.Lock()
		states = append(states, cs)
		mu.Unlock()
	})

	require.True(t, peer.Notify(attribute.AvailableNetworksUUID, attribute.EncodeText("HomeNet")))
	require.True(t, peer.Notify(attribute.AvailableNetworksUUID, []byte("not base64!")))
	require.True(t, peer.Notify(attribute.ConnectionStateUUID,
		attribute.EncodeConnectionState(attribute.ConnectionState{State: attribute.StateConnecting, SSID: "HomeNet"})))
	require.True(t, peer.Notify(attribute.ConnectionStateUUID, []byte{}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"HomeNet"}, ssids, "malformed network notifications are dropped")
	require.Len(t, states, 2)
	assert.Equal(t, attribute.ConnectionState{State: attribute.StateConnecting, SSID: "HomeNet"}, states[0])
	assert.Equal(t, attribute.UnknownConnectionState, states[1], "malformed state decodes to unknown")
	assert.Equal(t, attribute.UnknownConnectionState, sess.ConnectionState())
}

func TestObservers_SingleSlot(t *testing.T) {
	_, peer, sess := connected(t)

	var first, second int
	subFirst := sess.OnNetworksChanged(func(uint64, string) { first++ })
	subSecond := sess.OnNetworksChanged(func(uint64, string) { second++ })

	peer.Notify(attribute.AvailableNetworksUUID, attribute.EncodeText("A"))
	assert.Equal(t, 0, first, "replaced observer must not be called")
	assert.Equal(t, 1, second)

	// cancelling the replaced observer leaves the current one in place
	subFirst.Cancel()
	peer.Notify(attribute.AvailableNetworksUUID, attribute.EncodeText("B"))
	assert.Equal(t, 2, second)

	subSecond.Cancel()
	subSecond.Cancel()
	peer.Notify(attribute.AvailableNetworksUUID, attribute.EncodeText("C"))
	assert.Equal(t, 2, second)
}

func TestReadReachableAddress(t *testing.T) {
	_, peer, sess := connected(t)

	_, err := sess.ReadReachableAddress(context.Background())
	assert.ErrorIs(t, err, ErrEmptyAddress)

	peer.SetValue(attribute.ReachableAddressUUID, attribute.EncodeText("http://hub.local/"))
	address, err := sess.ReadReachableAddress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://hub.local/", address)
	assert.Equal(t, "http://hub.local/", sess.ReachableAddress())
}

func TestReadVersionAndState(t *testing.T) {
	_, peer, sess := connected(t)

	peer.SetValue(attribute.VersionUUID, attribute.EncodeText("2.2.0"))
	version, err := sess.ReadVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2.2.0", version)

	want := attribute.ConnectionState{State: attribute.StateConnected, SSID: "HomeNet"}
	peer.SetValue(attribute.ConnectionStateUUID, attribute.EncodeConnectionState(want))
	cs, err := sess.ReadConnectionState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, cs)
	assert.Equal(t, want, sess.ConnectionState())
}

func TestOperationsBeforeConnect(t *testing.T) {
	sess := New(bletest.NewRadio(), testHub("H1"))

	_, err := sess.ReadReachableAddress(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = sess.ReadVersion(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSessionIDsAreUnique(t *testing.T) {
	radio := bletest.NewRadio()
	a := New(radio, testHub("H1"))
	b := New(radio, testHub("H1"))
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Greater(t, b.ID(), a.ID())
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "Status(42)", Status(42).String())
}
