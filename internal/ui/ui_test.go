package ui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestResultRender(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
		want   []string
		absent []string
	}{
		{
			name: "success shows details in order",
			result: NewSuccessResult("Hub joined HomeNet",
				Param{Key: "Hub", Value: "Kitchen"},
				Param{Key: "Address", Value: "http://192.168.1.40/"}),
			want: []string{"SUCCESS", "Hub joined HomeNet", "Kitchen", "http://192.168.1.40/"},
		},
		{
			name:   "failure shows error and tips",
			result: NewFailureResult("Setup failed", errors.New("join rejected"), "Check the password"),
			want:   []string{"FAILED", "join rejected", "Troubleshooting:", "Check the password"},
		},
		{
			name:   "failure without tips",
			result: NewFailureResult("Setup failed", errors.New("boom")),
			want:   []string{"FAILED", "boom"},
			absent: []string{"Troubleshooting:"},
		},
		{
			name:   "warning",
			result: NewWarningResult("Registry not saved", Param{Key: "Path", Value: "/tmp/x"}),
			want:   []string{"WARNING", "Registry not saved", "/tmp/x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.result.SetWidth(80).Render()
			for _, s := range tt.want {
				if !strings.Contains(out, s) {
					t.Errorf("Render() missing %q\n%s", s, out)
				}
			}
			for _, s := range tt.absent {
				if strings.Contains(out, s) {
					t.Errorf("Render() should not contain %q", s)
				}
			}
		})
	}
}

func TestResultDetailOrder(t *testing.T) {
	out := NewSuccessResult("done").
		AddDetail("First", "one").
		AddDetail("Second", "two").
		SetWidth(80).
		Render()

	if strings.Index(out, "First") > strings.Index(out, "Second") {
		t.Error("details should render in insertion order")
	}
}

func TestHeaderRender(t *testing.T) {
	out := NewHeader("Hub setup", "hubsetup setup",
		Param{Key: "Hub", Value: "Kitchen"},
		Param{Key: "Network", Value: "HomeNet"}).
		SetWidth(70).
		Render()

	for _, s := range []string{"HUB SETUP", "hubsetup setup", "Kitchen", "HomeNet"} {
		if !strings.Contains(out, s) {
			t.Errorf("Render() missing %q", s)
		}
	}
	if strings.Index(out, "Kitchen") > strings.Index(out, "HomeNet") {
		t.Error("params should render in order")
	}
}

func TestProgressUpdateStep(t *testing.T) {
	p := NewProgress("Setting up", "Discover", "Connect", "Send credentials", "Await join")

	p.StartStep(1, "")
	if p.Current != 1 {
		t.Errorf("Current = %d, want 1", p.Current)
	}

	p.CompleteStep(1, "-52 dBm")
	p.SkipStep(2, "already connected")
	if p.Percent != 0.5 {
		t.Errorf("Percent = %v, want 0.5", p.Percent)
	}

	p.FailStep(3, "rejected")
	if p.Percent != 0.5 {
		t.Errorf("failed steps should not count, Percent = %v", p.Percent)
	}

	p.UpdateStep(9, StepComplete, "")
	if p.Percent != 0.5 {
		t.Error("out of range step should be ignored")
	}

	out := p.SetWidth(80).Render()
	for _, s := range []string{"Setting up", "[1/4]", "-52 dBm", "rejected"} {
		if !strings.Contains(out, s) {
			t.Errorf("Render() missing %q", s)
		}
	}
	if p.RenderStepLine(0) != "" {
		t.Error("RenderStepLine(0) should be empty")
	}
}

func keyMsg(k tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: k}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(m PickerModel, msg tea.Msg) (PickerModel, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(PickerModel), cmd
}

func TestPicker_SelectsHighlightedNetwork(t *testing.T) {
	m := NewPickerModel("Kitchen")
	m, _ = update(m, NetworksMsg{"Guest", "HomeNet"})
	m, _ = update(m, keyMsg(tea.KeyDown))
	m, _ = update(m, keyMsg(tea.KeyDown))

	if m.Cursor != 1 {
		t.Fatalf("Cursor = %d, want 1 (clamped)", m.Cursor)
	}

	m, cmd := update(m, keyMsg(tea.KeyEnter))
	if cmd == nil {
		t.Fatal("enter should quit the program")
	}
	ssid, ok := m.Chosen()
	if !ok || ssid != "HomeNet" {
		t.Errorf("Chosen() = %q, %v", ssid, ok)
	}
}

func TestPicker_CursorFollowsSSIDWhenListGrows(t *testing.T) {
	m := NewPickerModel("Kitchen")
	m, _ = update(m, NetworksMsg{"HomeNet"})
	m, _ = update(m, NetworksMsg{"Attic", "Guest", "HomeNet"})

	if m.Networks[m.Cursor] != "HomeNet" {
		t.Errorf("cursor on %q, want HomeNet", m.Networks[m.Cursor])
	}
}

func TestPicker_EnterWithoutNetworks(t *testing.T) {
	m := NewPickerModel("Kitchen")
	m, cmd := update(m, keyMsg(tea.KeyEnter))
	if cmd != nil {
		t.Error("enter on an empty list should do nothing")
	}
	if _, ok := m.Chosen(); ok {
		t.Error("nothing should be chosen")
	}
}

func TestPicker_Quit(t *testing.T) {
	m := NewPickerModel("Kitchen")
	m, _ = update(m, NetworksMsg{"HomeNet"})
	m, cmd := update(m, runes("q"))

	if cmd == nil {
		t.Fatal("q should quit the program")
	}
	if _, ok := m.Chosen(); ok {
		t.Error("cancelled picker should not report a choice")
	}
}

func TestPicker_ManualEntry(t *testing.T) {
	m := NewPickerModel("Kitchen")
	m, _ = update(m, runes("m"))
	for _, r := range "Hidden" {
		m, _ = update(m, runes(string(r)))
	}

	if !strings.Contains(m.View(), "Hidden network") {
		t.Error("manual mode should show the input")
	}

	m, cmd := update(m, keyMsg(tea.KeyEnter))
	if cmd == nil {
		t.Fatal("confirm should quit the program")
	}
	if ssid, ok := m.Chosen(); !ok || ssid != "Hidden" {
		t.Errorf("Chosen() = %q, %v", ssid, ok)
	}
}

func TestPicker_View(t *testing.T) {
	m := NewPickerModel("Kitchen")
	if !strings.Contains(m.View(), "Waiting for the hub") {
		t.Error("empty picker should show the waiting line")
	}

	m, _ = update(m, NetworksMsg{"Guest", "HomeNet"})
	view := m.View()
	if !strings.Contains(view, "→ Guest") {
		t.Errorf("first network should be highlighted:\n%s", view)
	}
}
