package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/hubonboard/hubsetup/internal/logging"
)

const (
	// ServiceType is the mDNS service type the hub API advertises
	ServiceType = "_http._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultLocateTimeout bounds one mDNS lookup
	DefaultLocateTimeout = 3 * time.Second

	// DefaultPort is the default HTTP port of the hub API
	DefaultPort = 80
)

// ErrNotMDNSName is returned when an address does not name a .local host,
// so mDNS cannot find a replacement for it.
var ErrNotMDNSName = errors.New("address is not an mDNS host name")

// HomeHub is a provisioned hub found on the home network by mDNS
type HomeHub struct {
	// Instance is the mDNS service instance name
	Instance string

	// Hostname is the mDNS host name (e.g., "hub.local.")
	Hostname string

	// IP is the resolved address, IPv4 preferred
	IP string

	// Port is the HTTP port (typically 80)
	Port int

	// Metadata contains the TXT record data
	Metadata map[string]string

	// DiscoveredAt is when the hub answered
	DiscoveredAt time.Time
}

// String returns a human-readable representation of the hub
func (h *HomeHub) String() string {
	return fmt.Sprintf("Hub %s (%s) at %s:%d", h.Instance, h.Hostname, h.IP, h.Port)
}

// BaseURL returns the hub API base URL
func (h *HomeHub) BaseURL() string {
	host := h.IP
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("http://%s:%d/", host, h.Port)
}

// GetMetadata retrieves a TXT value by key, or returns empty string if not found
func (h *HomeHub) GetMetadata(key string) string {
	if h.Metadata == nil {
		return ""
	}
	return h.Metadata[key]
}

// MDNSLocator finds hubs on the home network by host name
type MDNSLocator struct {
	// Timeout is the maximum time one lookup browses for
	Timeout time.Duration
}

// NewMDNSLocator creates a locator with default settings
func NewMDNSLocator() *MDNSLocator {
	return &MDNSLocator{
		Timeout: DefaultLocateTimeout,
	}
}

// Locate browses for an HTTP service published by hostname
func (m *MDNSLocator) Locate(ctx context.Context, hostname string) (*HomeHub, error) {
	ctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan *HomeHub, 1)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	go func() {
		for entry := range entries {
			hub := parseServiceEntry(entry, hostname)
			if hub != nil {
				select {
				case found <- hub:
				default:
				}
				cancel()
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	select {
	case hub := <-found:
		logging.Debug("Hub located by mDNS",
			zap.String("hostname", hostname),
			zap.String("address", hub.BaseURL()))
		return hub, nil
	case <-ctx.Done():
		// the browse goroutine may have delivered just before the deadline
		select {
		case hub := <-found:
			return hub, nil
		default:
		}
		return nil, fmt.Errorf("hub %s not found within timeout", hostname)
	}
}

// LocateAddress resolves the host of a hub API address by mDNS and returns
// a base URL pointing at the address the hub answers on now.
func (m *MDNSLocator) LocateAddress(ctx context.Context, address string) (string, error) {
	hostname, err := HostnameFromAddress(address)
	if err != nil {
		return "", err
	}
	hub, err := m.Locate(ctx, hostname)
	if err != nil {
		return "", err
	}
	return hub.BaseURL(), nil
}

// LocateName finds a hub by the name it advertised over Bluetooth, which
// matches its mDNS instance name
func (m *MDNSLocator) LocateName(ctx context.Context, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("empty hub name")
	}
	hub, err := m.Locate(ctx, name)
	if err != nil {
		return "", err
	}
	return hub.BaseURL(), nil
}

// HostnameFromAddress extracts the .local host name from an address such
// as "http://hub.local/" or "hub.local:8080".
func HostnameFromAddress(address string) (string, error) {
	raw := strings.TrimSpace(address)
	if raw == "" {
		return "", ErrNotMDNSName
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", address, err)
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" || net.ParseIP(host) != nil || !strings.HasSuffix(host, ".local") {
		return "", fmt.Errorf("%w: %q", ErrNotMDNSName, address)
	}
	return host, nil
}

// parseServiceEntry converts a zeroconf service entry to a HomeHub.
// Returns nil if the entry was not published by hostname or has no address.
func parseServiceEntry(entry *zeroconf.ServiceEntry, hostname string) *HomeHub {
	if !matchesHost(entry, hostname) {
		return nil
	}

	// Get IP address (prefer IPv4)
	var ip string
	for _, addr := range entry.AddrIPv4 {
		ip = addr.String()
		break
	}

	// Fallback to IPv6 if no IPv4
	if ip == "" && len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}

	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	// TXT records are in "key=value" format
	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}

	return &HomeHub{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// matchesHost compares host names without the trailing dot, ignoring case.
// A bare label such as "hub" also matches the instance name.
func matchesHost(entry *zeroconf.ServiceEntry, hostname string) bool {
	want := strings.TrimSuffix(strings.ToLower(hostname), ".")
	if want == "" || entry.HostName == "" {
		return false
	}
	got := strings.TrimSuffix(strings.ToLower(entry.HostName), ".")
	if got == want {
		return true
	}
	label := strings.TrimSuffix(want, ".local")
	return strings.EqualFold(entry.Instance, label)
}
