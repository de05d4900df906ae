// Package session manages the Bluetooth LE connection to one hub during
// onboarding.
//
// A Session connects to the hub (retrying once), subscribes to the
// AVAILABLE_NETWORKS and CONNECTION_STATE notifications, and exposes the
// attribute reads and writes the provisioning flow needs. Concurrent
// Connect calls share one physical attempt.
//
// # Observers
//
// Each notification kind has a single observer slot. Registering a new
// observer replaces the previous one; cancelling a replaced subscription
// does nothing. Callbacks receive the session ID so consumers can drop
// notifications from a session they no longer care about.
//
//	sub := sess.OnConnectionStateChanged(func(id uint64, cs attribute.ConnectionState) {
//	    fmt.Println("hub is", cs)
//	})
//	defer sub.Cancel()
//
// # Link Loss
//
// Disconnect, or the hub dropping the link, fails every in-flight
// operation with ErrLinkLost. A drop that was not caused by Disconnect is
// reported to the OnDisconnected observer.
//
// # Ownership
//
// Owner keeps at most one current session; selecting a different hub
// disconnects the previous session first.
package session
