package discovery

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hubonboard/hubsetup/internal/attribute"
	"github.com/hubonboard/hubsetup/internal/ble"
)

// Hub is a hub seen advertising over Bluetooth LE
type Hub struct {
	// ID is the radio address of the peer, used to connect
	ID string

	// Name is the advertised local name (may be empty)
	Name string

	// Services holds the advertised service UUIDs
	Services []uuid.UUID

	// RSSI is the signal strength of the first advertisement seen
	RSSI int16

	// DiscoveredAt is when the hub was first seen in this scan
	DiscoveredAt time.Time
}

// String returns a human-readable representation of the hub
func (h *Hub) String() string {
	if h.Name == "" {
		return fmt.Sprintf("Hub %s (%d dBm)", h.ID, h.RSSI)
	}
	return fmt.Sprintf("Hub %s [%s] (%d dBm)", h.Name, h.ID, h.RSSI)
}

// DisplayName returns the advertised name, or the ID when the hub did not
// advertise one
func (h *Hub) DisplayName() string {
	if h.Name != "" {
		return h.Name
	}
	return h.ID
}

// IsHub reports whether an advertisement carries the hub service UUID.
// An advertisement without a service list is never a hub.
func IsHub(adv ble.Advertisement) bool {
	for _, id := range adv.Services {
		if attribute.MatchesService(id.String()) {
			return true
		}
	}
	return false
}

func hubFromAdvertisement(adv ble.Advertisement, seen time.Time) *Hub {
	services := make([]uuid.UUID, len(adv.Services))
	copy(services, adv.Services)
	return &Hub{
		ID:           adv.Address,
		Name:         adv.Name,
		Services:     services,
		RSSI:         adv.RSSI,
		DiscoveredAt: seen,
	}
}
