package main

import (
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/hubonboard/hubsetup/internal/config"
	"github.com/hubonboard/hubsetup/internal/discovery"
	"github.com/hubonboard/hubsetup/internal/provisioning"
)

func TestMachineConfig(t *testing.T) {
	prefs := config.DefaultPreferences()

	tests := []struct {
		name                     string
		join, relocation, poll   int
		wantJoin, wantRelocation time.Duration
		wantPoll                 time.Duration
	}{
		{
			name:           "preferences",
			wantJoin:       30 * time.Second,
			wantRelocation: 60 * time.Second,
			wantPoll:       3 * time.Second,
		},
		{
			name:           "flags override",
			join:           45,
			relocation:     120,
			poll:           1,
			wantJoin:       45 * time.Second,
			wantRelocation: 120 * time.Second,
			wantPoll:       time.Second,
		},
		{
			name:           "partial override",
			relocation:     90,
			wantJoin:       30 * time.Second,
			wantRelocation: 90 * time.Second,
			wantPoll:       3 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			joinTimeout, relocationTimeout, pollInterval = tt.join, tt.relocation, tt.poll
			t.Cleanup(func() { joinTimeout, relocationTimeout, pollInterval = 0, 0, 0 })

			cfg := machineConfig(prefs)
			if cfg.JoinTimeout != tt.wantJoin {
				t.Errorf("JoinTimeout = %v, want %v", cfg.JoinTimeout, tt.wantJoin)
			}
			if cfg.RelocationTimeout != tt.wantRelocation {
				t.Errorf("RelocationTimeout = %v, want %v", cfg.RelocationTimeout, tt.wantRelocation)
			}
			if cfg.PollInterval != tt.wantPoll {
				t.Errorf("PollInterval = %v, want %v", cfg.PollInterval, tt.wantPoll)
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate() = %v", err)
			}
		})
	}
}

func TestReadLine(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"secret\n", "secret"},
		{"secret\r\n", "secret"},
		{"no newline", "no newline"},
		{"\n", ""},
		{"", ""},
		{"first\nsecond\n", "first"},
		{" spaced pass \n", " spaced pass "},
	}

	for _, tt := range tests {
		got, err := readLine(strings.NewReader(tt.input))
		if err != nil {
			t.Errorf("readLine(%q) error = %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("readLine(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestOfferLatest(t *testing.T) {
	ch := make(chan []string, 1)

	offerLatest(ch, []string{"a"})
	offerLatest(ch, []string{"a", "b"})

	got := <-ch
	if len(got) != 2 || got[1] != "b" {
		t.Errorf("got %v, want the latest list", got)
	}

	select {
	case extra := <-ch:
		t.Errorf("unexpected extra value %v", extra)
	default:
	}
}

func TestFailureTroubleshooting(t *testing.T) {
	reasons := []string{
		provisioning.ReasonJoinRejected,
		provisioning.ReasonUnreachableAfterJoin,
		provisioning.ReasonLinkLost,
		provisioning.ReasonSendFailed,
		provisioning.ReasonNoAddress,
	}
	for _, reason := range reasons {
		err := &provisioning.JoinFailedError{Reason: reason}
		if tips := failureTroubleshooting(err); len(tips) == 0 {
			t.Errorf("no tips for %q", reason)
		}
	}

	if tips := failureTroubleshooting(errors.New("other")); tips != nil {
		t.Errorf("tips for unrelated error = %v, want nil", tips)
	}
}

func TestValueOr(t *testing.T) {
	if got := valueOr("", "first found"); got != "first found" {
		t.Errorf("valueOr empty = %q", got)
	}
	if got := valueOr("HomeNet", "choose"); got != "HomeNet" {
		t.Errorf("valueOr set = %q", got)
	}
}

func TestLastAddress(t *testing.T) {
	reg := config.NewRegistry()
	reg.RecordJoin("D4:36:39:0A:11:F2", "HomeNet", "http://10.0.0.8/")
	reg.SetHubNickname("AA:BB:CC:DD:EE:FF", "garage")

	tests := []struct {
		id   string
		want string
	}{
		{"D4:36:39:0A:11:F2", "http://10.0.0.8/"},
		{"AA:BB:CC:DD:EE:FF", ""},
		{"unknown", ""},
	}
	for _, tt := range tests {
		if got := lastAddress(reg, tt.id); got != tt.want {
			t.Errorf("lastAddress(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestRecordJoin_KeepsEditsSavedDuringSetup(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG layout only applies on Linux")
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	stale, err := config.ReloadRegistry()
	if err != nil {
		t.Fatalf("ReloadRegistry() error = %v", err)
	}

	// another invocation renames a hub while setup waits
	other := config.NewRegistry()
	other.SetHubNickname("AA:BB:CC:DD:EE:FF", "garage")
	if err := other.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	hub := &discovery.Hub{ID: "D4:36:39:0A:11:F2", Name: "Living Room"}
	recordJoin(stale, hub, "2.1.0", &provisioning.Result{SSID: "HomeNet", Address: "http://10.0.0.8/"})

	saved, err := config.ReloadRegistry()
	if err != nil {
		t.Fatalf("ReloadRegistry() error = %v", err)
	}
	if got := saved.GetHub("AA:BB:CC:DD:EE:FF"); got == nil || got.Nickname != "garage" {
		t.Errorf("renamed hub = %+v, want nickname garage", got)
	}
	joined := saved.GetHub("D4:36:39:0A:11:F2")
	if joined == nil {
		t.Fatal("joined hub was not saved")
	}
	if joined.LastAddress != "http://10.0.0.8/" || joined.Name != "Living Room" || joined.HubVersion != "2.1.0" {
		t.Errorf("joined hub = %+v", joined)
	}
}
