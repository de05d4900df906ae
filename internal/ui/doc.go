// Package ui provides terminal output components for the hubsetup CLI.
//
// Most components follow a "render once" pattern: Header, Progress and
// Result build lipgloss-styled strings that a Printer writes out. The one
// interactive component is the network picker, a Bubble Tea program that
// lists the SSIDs a hub reports while they arrive:
//
//	updates := make(chan []string, 8)
//	machine.OnNetworksChanged(func(networks []string) { updates <- networks })
//	ssid, err := ui.PickNetwork(ctx, hub.DisplayName(), updates)
//
// # Logging Integration
//
// zap logging is silent unless HUBSETUP_LOG_LEVEL or --log-level is set,
// so the curated UI output is not interleaved with log lines.
package ui
