// Package logging provides structured logging for hubsetup.
//
// This package wraps a global zap logger with convenience functions for the
// logging patterns used by the onboarding core: radio state changes, hub
// session lifecycle events, GATT attribute dumps and provisioning state
// transitions.
//
// # Log Levels
//
//   - Debug: attribute payload dumps, failed reachability probes
//   - Info: radio state, connects/disconnects, state machine transitions
//   - Warn: retries, malformed attributes, link loss
//   - Error: unrecoverable failures
//
// # Silent By Default
//
// The logger is a no-op until Initialize is called with a level, or the
// HUBSETUP_LOG_LEVEL environment variable is set. Library packages can
// therefore log freely without polluting CLI output:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// # Credentials
//
// Wi-Fi passwords are never passed to any function in this package.
// LogAttribute is only called for attributes that carry no secrets.
package logging
