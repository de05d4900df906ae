package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/hubonboard/hubsetup/internal/ble"
	"github.com/hubonboard/hubsetup/internal/discovery"
	"github.com/hubonboard/hubsetup/internal/logging"
)

// Owner holds the one current session of the process. Selecting another
// hub disconnects the current session before the new one is created.
type Owner struct {
	radio ble.Radio
	opts  []Option

	mu      sync.Mutex
	current *Session
}

// NewOwner creates an owner whose sessions use radio and opts
func NewOwner(radio ble.Radio, opts ...Option) *Owner {
	return &Owner{radio: radio, opts: opts}
}

// Select replaces the current session with a new, disconnected session
// for hub. Selecting the hub of the current session returns it unchanged.
func (o *Owner) Select(ctx context.Context, hub *discovery.Hub) *Session {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current != nil {
		if o.current.Hub().ID == hub.ID {
			return o.current
		}
		o.releaseLocked(ctx)
	}

	o.current = New(o.radio, hub, o.opts...)
	logging.LogHubEvent(hub.ID, o.current.ID(), "selected")
	return o.current
}

// Current returns the current session, or nil
func (o *Owner) Current() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Release disconnects and forgets the current session
func (o *Owner) Release(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.releaseLocked(ctx)
}

func (o *Owner) releaseLocked(ctx context.Context) {
	if o.current == nil {
		return
	}
	prev := o.current
	o.current = nil
	if err := prev.Disconnect(ctx); err != nil {
		logging.Warn("Failed to disconnect previous session",
			zap.String("hub_id", prev.Hub().ID),
			zap.Error(err))
	}
}
