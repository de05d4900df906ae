// Package ble abstracts the local Bluetooth LE radio used to reach hubs
// that are not yet on a Wi-Fi network.
//
// The Radio and Link interfaces cover exactly what onboarding needs:
// power state, scanning, one GATT connection per hub, characteristic
// reads and writes, and notifications. TinyGoRadio backs them with
// tinygo.org/x/bluetooth; package bletest provides an in-memory fake.
//
// Usage:
//
//	radio := ble.NewTinyGoRadio(attribute.ServiceUUID)
//	cancel := radio.WatchPower(func(state ble.PowerState) {
//	    fmt.Println("radio", state)
//	})
//	defer cancel()
package ble
