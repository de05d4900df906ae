package config

import (
	"sort"
	"time"
)

const currentVersion = 1

// Registry is the whole configuration file
type Registry struct {
	Version     int             `yaml:"version"`
	Hubs        map[string]*Hub `yaml:"hubs,omitempty"` // Keyed by Bluetooth address
	Preferences *Preferences    `yaml:"preferences,omitempty"`
}

// Hub is what the registry remembers about one onboarded hub
type Hub struct {
	Nickname    string    `yaml:"nickname,omitempty"`     // User-friendly name
	Name        string    `yaml:"name,omitempty"`         // Advertised Bluetooth name
	LastAddress string    `yaml:"last_address,omitempty"` // Hub API address on the home network
	LastSSID    string    `yaml:"last_ssid,omitempty"`    // Network the hub last joined
	HubVersion  string    `yaml:"hub_version,omitempty"`  // Firmware version read during setup
	LastSeen    time.Time `yaml:"last_seen,omitempty"`
}

// DisplayName returns the nickname, the advertised name or id, in that
// order of preference
func (h *Hub) DisplayName(id string) string {
	switch {
	case h == nil:
		return id
	case h.Nickname != "":
		return h.Nickname
	case h.Name != "":
		return h.Name
	default:
		return id
	}
}

// Preferences are application-wide settings. Durations are stored in
// whole seconds.
type Preferences struct {
	ScanTimeout       int    `yaml:"scan_timeout"`       // BLE scan window
	JoinTimeout       int    `yaml:"join_timeout"`       // Wait for CONNECTED after credentials
	RelocationTimeout int    `yaml:"relocation_timeout"` // Wait for the hub on the home network
	PollInterval      int    `yaml:"poll_interval"`      // Pause between relocation probes
	LogLevel          string `yaml:"log_level,omitempty"`
}

// DefaultPreferences returns the preferences used when the file has none
func DefaultPreferences() *Preferences {
	return &Preferences{
		ScanTimeout:       10,
		JoinTimeout:       30,
		RelocationTimeout: 60,
		PollInterval:      3,
	}
}

// ScanDuration returns ScanTimeout as a duration
func (p *Preferences) ScanDuration() time.Duration {
	return seconds(p.ScanTimeout, 10)
}

// JoinDuration returns JoinTimeout as a duration
func (p *Preferences) JoinDuration() time.Duration {
	return seconds(p.JoinTimeout, 30)
}

// RelocationDuration returns RelocationTimeout as a duration
func (p *Preferences) RelocationDuration() time.Duration {
	return seconds(p.RelocationTimeout, 60)
}

// PollDuration returns PollInterval as a duration
func (p *Preferences) PollDuration() time.Duration {
	return seconds(p.PollInterval, 3)
}

// seconds converts n, falling back to def for unset or negative values
func seconds(n, def int) time.Duration {
	if n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Second
}

// NewRegistry creates an empty registry with default preferences
func NewRegistry() *Registry {
	return &Registry{
		Version:     currentVersion,
		Hubs:        make(map[string]*Hub),
		Preferences: DefaultPreferences(),
	}
}

// GetHub returns the entry for id, or nil
func (r *Registry) GetHub(id string) *Hub {
	return r.Hubs[id]
}

// EnsureHub returns the entry for id, creating it if needed
func (r *Registry) EnsureHub(id string) *Hub {
	if r.Hubs == nil {
		r.Hubs = make(map[string]*Hub)
	}
	if hub, exists := r.Hubs[id]; exists {
		return hub
	}
	hub := &Hub{}
	r.Hubs[id] = hub
	return hub
}

// RecordJoin stores the outcome of a successful setup
func (r *Registry) RecordJoin(id, ssid, address string) {
	hub := r.EnsureHub(id)
	hub.LastSSID = ssid
	hub.LastAddress = address
	hub.LastSeen = time.Now()
}

// SetHubNickname sets a user-friendly nickname for a hub
func (r *Registry) SetHubNickname(id, nickname string) {
	r.EnsureHub(id).Nickname = nickname
}

// FindHub looks a hub up by id or nickname
func (r *Registry) FindHub(ref string) (string, *Hub) {
	if hub, ok := r.Hubs[ref]; ok {
		return ref, hub
	}
	for id, hub := range r.Hubs {
		if hub.Nickname != "" && hub.Nickname == ref {
			return id, hub
		}
	}
	return "", nil
}

// HubIDs returns the registered ids, sorted
func (r *Registry) HubIDs() []string {
	ids := make([]string, 0, len(r.Hubs))
	for id := range r.Hubs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
