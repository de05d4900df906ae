// Package discovery finds hubs, both before and after they join Wi-Fi.
//
// # Bluetooth LE Scanning
//
// A hub that is not yet on a network advertises the onboarding service
// UUID over Bluetooth LE. Scanner follows the radio power state: it scans
// while the radio is powered on, halts the scan while it is off, and
// resumes when power returns. Each hub is reported once per Scan call.
//
//	scanner := discovery.NewScanner(radio)
//	err := scanner.Scan(ctx, discovery.Handlers{
//	    OnHubFound: func(hub *discovery.Hub) {
//	        fmt.Println("found", hub)
//	    },
//	    OnError: func(err error) {
//	        log.Println(err) // scanning continues
//	    },
//	})
//
// Scan holds the radio scan only while it runs. Every return path stops
// the scan.
//
// # mDNS Location
//
// Once the hub has joined the home network it drops the Bluetooth link and
// publishes its HTTP API as an "_http._tcp" service. MDNSLocator finds it
// by host name when the address the hub reported no longer answers:
//
//	locator := discovery.NewMDNSLocator()
//	address, err := locator.LocateAddress(ctx, "http://hub.local/")
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - The client must be on the same network segment as the hub
// - Firewall must allow mDNS (UDP port 5353)
package discovery
