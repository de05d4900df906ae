package provisioning

import (
	"reflect"
	"testing"
)

func TestNetworkList_Add(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{
			name:  "sorted case-insensitively",
			input: []string{"Zulu", "alpha", "Bravo"},
			want:  []string{"alpha", "Bravo", "Zulu"},
		},
		{
			name:  "duplicates ignored",
			input: []string{"HomeNet", "Guest", "HomeNet"},
			want:  []string{"Guest", "HomeNet"},
		},
		{
			name:  "empty SSID ignored",
			input: []string{"", "HomeNet", ""},
			want:  []string{"HomeNet"},
		},
		{
			name:  "case variants are distinct",
			input: []string{"home", "Home"},
			want:  []string{"Home", "home"},
		},
		{
			name:  "nothing reported",
			input: nil,
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewNetworkList()
			for _, ssid := range tt.input {
				l.Add(ssid)
			}
			if got := l.Items(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Items() = %v, want %v", got, tt.want)
			}
			if l.Len() != len(tt.want) {
				t.Errorf("Len() = %d, want %d", l.Len(), len(tt.want))
			}
		})
	}
}

func TestNetworkList_AddReportsChange(t *testing.T) {
	l := NewNetworkList()
	if !l.Add("HomeNet") {
		t.Error("first Add should report a change")
	}
	if l.Add("HomeNet") {
		t.Error("duplicate Add should not report a change")
	}
	if l.Add("") {
		t.Error("empty Add should not report a change")
	}
	if !l.Contains("HomeNet") {
		t.Error("Contains(HomeNet) = false")
	}
}

func TestNetworkList_Reset(t *testing.T) {
	l := NewNetworkList()
	l.Add("HomeNet")
	l.Reset()

	if l.Len() != 0 {
		t.Errorf("Len() after Reset = %d", l.Len())
	}
	if !l.Add("HomeNet") {
		t.Error("Add after Reset should accept a previously seen SSID")
	}
}

func TestNetworkList_ItemsIsCopy(t *testing.T) {
	l := NewNetworkList()
	l.Add("HomeNet")
	items := l.Items()
	items[0] = "changed"

	if got := l.Items()[0]; got != "HomeNet" {
		t.Errorf("list modified through Items(): %q", got)
	}
}
