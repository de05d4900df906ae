package provisioning

import (
	"sort"
	"strings"
)

// NetworkList is the set of SSIDs a hub reported, kept sorted
// case-insensitively for display. SSIDs themselves are case-sensitive, so
// "Home" and "home" are distinct entries.
type NetworkList struct {
	items []string
	seen  map[string]struct{}
}

// NewNetworkList returns an empty list
func NewNetworkList() *NetworkList {
	return &NetworkList{seen: make(map[string]struct{})}
}

// Add inserts ssid and reports whether the list changed. Empty SSIDs
// (hidden networks) and duplicates are ignored.
func (l *NetworkList) Add(ssid string) bool {
	if ssid == "" {
		return false
	}
	if _, ok := l.seen[ssid]; ok {
		return false
	}
	l.seen[ssid] = struct{}{}

	i := sort.Search(len(l.items), func(i int) bool {
		return !networkLess(l.items[i], ssid)
	})
	l.items = append(l.items, "")
	copy(l.items[i+1:], l.items[i:])
	l.items[i] = ssid
	return true
}

// Items returns a copy of the sorted SSIDs
func (l *NetworkList) Items() []string {
	out := make([]string, len(l.items))
	copy(out, l.items)
	return out
}

// Len returns the number of SSIDs
func (l *NetworkList) Len() int {
	return len(l.items)
}

// Contains reports whether ssid was added
func (l *NetworkList) Contains(ssid string) bool {
	_, ok := l.seen[ssid]
	return ok
}

// Reset empties the list
func (l *NetworkList) Reset() {
	l.items = nil
	l.seen = make(map[string]struct{})
}

// networkLess orders case-insensitively, falling back to byte order so
// the order is total
func networkLess(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return la < lb
	}
	return a < b
}
