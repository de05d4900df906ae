package session

import (
	"sync"

	"github.com/hubonboard/hubsetup/internal/attribute"
)

// NetworksFunc receives one SSID per AVAILABLE_NETWORKS notification.
type NetworksFunc func(sessionID uint64, ssid string)

// StateFunc receives every decoded CONNECTION_STATE value.
type StateFunc func(sessionID uint64, state attribute.ConnectionState)

// DisconnectFunc is called once when the link drops without a local
// Disconnect. err wraps ErrLinkLost.
type DisconnectFunc func(sessionID uint64, err error)

// Subscription is the handle of a registered observer.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Cancel removes the observer if it is still the registered one.
// Cancelling a replaced observer does nothing.
func (s *Subscription) Cancel() {
	if s == nil || s.cancel == nil {
		return
	}
	s.once.Do(s.cancel)
}

// slot holds at most one observer. Registering replaces the previous one.
type slot[F any] struct {
	mu    sync.Mutex
	owner *Subscription
	fn    F
}

func (o *slot[F]) register(fn F) *Subscription {
	sub := &Subscription{}
	sub.cancel = func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.owner == sub {
			var zero F
			o.owner = nil
			o.fn = zero
		}
	}

	o.mu.Lock()
	o.owner = sub
	o.fn = fn
	o.mu.Unlock()
	return sub
}

func (o *slot[F]) get() (F, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fn, o.owner != nil
}
