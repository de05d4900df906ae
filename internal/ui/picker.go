package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// ErrCancelled is returned when the operator quits a picker
var ErrCancelled = errors.New("cancelled by user")

// NetworksMsg carries the full sorted SSID list each time it grows
type NetworksMsg []string

type pickerKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Enter  key.Binding
	Manual key.Binding
	Quit   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k pickerKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Enter, k.Manual, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k pickerKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Up, k.Down, k.Enter}, {k.Manual, k.Quit}}
}

type manualKeyMap struct {
	Confirm key.Binding
	Cancel  key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k manualKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Confirm, k.Cancel}
}

// FullHelp returns keybindings for the expanded help view
func (k manualKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Confirm, k.Cancel}}
}

// PickerModel lets the operator choose one of the networks a hub reports.
// The list grows while the model runs; the cursor stays on the same SSID
// as entries are inserted. Hidden networks can be typed in manually.
type PickerModel struct {
	Hub      string
	Networks []string
	Cursor   int

	Spinner    spinner.Model
	Input      textinput.Model
	Help       help.Model
	keys       pickerKeyMap
	manualKeys manualKeyMap

	manual    bool
	chosen    string
	cancelled bool
}

// NewPickerModel creates a picker for the named hub
func NewPickerModel(hub string) PickerModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = StepRunningStyle

	input := textinput.New()
	input.Placeholder = "network name"
	input.CharLimit = 32
	input.Width = 34

	return PickerModel{
		Hub:     hub,
		Spinner: s,
		Input:   input,
		Help:    help.New(),
		keys: pickerKeyMap{
			Up: key.NewBinding(
				key.WithKeys("up", "k"),
				key.WithHelp("↑/k", "move up"),
			),
			Down: key.NewBinding(
				key.WithKeys("down", "j"),
				key.WithHelp("↓/j", "move down"),
			),
			Enter: key.NewBinding(
				key.WithKeys("enter"),
				key.WithHelp("enter", "select"),
			),
			Manual: key.NewBinding(
				key.WithKeys("m"),
				key.WithHelp("m", "hidden network"),
			),
			Quit: key.NewBinding(
				key.WithKeys("q", "esc", "ctrl+c"),
				key.WithHelp("q", "quit"),
			),
		},
		manualKeys: manualKeyMap{
			Confirm: key.NewBinding(
				key.WithKeys("enter"),
				key.WithHelp("enter", "confirm"),
			),
			Cancel: key.NewBinding(
				key.WithKeys("esc"),
				key.WithHelp("esc", "back"),
			),
		},
	}
}

// Chosen returns the selected SSID, or false if the picker was cancelled
func (m PickerModel) Chosen() (string, bool) {
	return m.chosen, m.chosen != "" && !m.cancelled
}

// Init implements tea.Model
func (m PickerModel) Init() tea.Cmd {
	return m.Spinner.Tick
}

// Update implements tea.Model
func (m PickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case NetworksMsg:
		m.setNetworks(msg)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.manual {
			return m.updateManual(msg)
		}
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.cancelled = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			if m.Cursor > 0 {
				m.Cursor--
			}
		case key.Matches(msg, m.keys.Down):
			if m.Cursor < len(m.Networks)-1 {
				m.Cursor++
			}
		case key.Matches(msg, m.keys.Enter):
			if len(m.Networks) > 0 {
				m.chosen = m.Networks[m.Cursor]
				return m, tea.Quit
			}
		case key.Matches(msg, m.keys.Manual):
			m.manual = true
			m.Input.SetValue("")
			return m, m.Input.Focus()
		}
	}
	return m, nil
}

func (m PickerModel) updateManual(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.manualKeys.Cancel):
		m.manual = false
		m.Input.Blur()
		return m, nil
	case key.Matches(msg, m.manualKeys.Confirm):
		if ssid := m.Input.Value(); ssid != "" {
			m.chosen = ssid
			return m, tea.Quit
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.Input, cmd = m.Input.Update(msg)
	return m, cmd
}

func (m *PickerModel) setNetworks(networks []string) {
	var current string
	if m.Cursor < len(m.Networks) {
		current = m.Networks[m.Cursor]
	}
	m.Networks = append([]string(nil), networks...)
	m.Cursor = 0
	for i, ssid := range m.Networks {
		if ssid == current {
			m.Cursor = i
			break
		}
	}
}

// View implements tea.Model
func (m PickerModel) View() string {
	var b strings.Builder

	b.WriteString(HeaderTitleStyle.Render(fmt.Sprintf("Networks seen by %s", m.Hub)))
	b.WriteString("\n\n")

	if m.manual {
		b.WriteString(ProgressLabelStyle.Render("Hidden network: " + m.Input.View()))
		b.WriteString("\n\n")
		b.WriteString(m.Help.View(m.manualKeys))
		return b.String()
	}

	if len(m.Networks) == 0 {
		b.WriteString(fmt.Sprintf("  %s Waiting for the hub to report networks...\n", m.Spinner.View()))
	}
	for i, ssid := range m.Networks {
		if i == m.Cursor {
			b.WriteString(SelectedItemStyle.Render("  → " + ssid))
		} else {
			b.WriteString(ItemStyle.Render("    " + ssid))
		}
		b.WriteString("\n")
	}
	if len(m.Networks) > 0 {
		b.WriteString(fmt.Sprintf("\n  %s still listening\n", m.Spinner.View()))
	}

	b.WriteString("\n")
	b.WriteString(m.Help.View(m.keys))
	return b.String()
}

// PickNetwork runs the picker until the operator chooses a network. Each
// value received on updates replaces the displayed list.
func PickNetwork(ctx context.Context, hub string, updates <-chan []string) (string, error) {
	p := tea.NewProgram(NewPickerModel(hub), tea.WithContext(ctx))

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case networks, ok := <-updates:
				if !ok {
					return
				}
				p.Send(NetworksMsg(networks))
			case <-done:
				return
			}
		}
	}()

	final, err := p.Run()
	if err != nil {
		return "", err
	}
	if ssid, ok := final.(PickerModel).Chosen(); ok {
		return ssid, nil
	}
	return "", ErrCancelled
}
