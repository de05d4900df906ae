// Package attribute defines the GATT attributes a hub exposes for Wi-Fi
// onboarding and the codec for their values.
//
// # Attributes
//
// All attributes live under ServiceUUID:
//
//	AVAILABLE_NETWORKS  notify       text, one SSID per notification
//	CONNECTION_STATE    read+notify  state code + optional SSID tail
//	REACHABLE_ADDRESS   read         text, HTTP base URL or hostname
//	VERSION             read         text
//	SSID                write        text
//	CREDENTIALS         write        text (Wi-Fi password)
//
// # Wire Format
//
// Text values travel base64 encoded. CONNECTION_STATE decodes to a byte
// string whose first byte is the state code:
//
//	0 down, 1 disconnected, 2 connecting, 3 connected
//
// For connecting and connected the remaining bytes are the SSID the hub is
// joining or has joined. Unknown codes decode to StateUnknown so callers
// always receive a value.
package attribute
