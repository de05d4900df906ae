// Package provisioning drives a hub from network selection to a joined
// home network.
//
// A Machine owns one onboarding Session and moves through:
//
//	SelectingNetwork -> SendingCredentials -> AwaitingJoin -> Joined
//	                                               |
//	                                               v
//	                                  RelocatingOnHomeNetwork -> Joined
//
// Any step may end in JoinFailed. The hub usually drops the Bluetooth
// link while it switches networks, so a join timeout or a lost link
// during AwaitingJoin is not a failure: the machine releases the session
// and polls the hub API on the home network instead, optionally asking
// mDNS for a fresh address.
//
//	m, err := provisioning.New(sess, hubapi.NewProber(),
//	    provisioning.WithLocator(discovery.NewMDNSLocator()))
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
//
//	m.Start()
//	// ... show m.Networks() to the operator
//	m.SelectNetwork("HomeNet")
//	if err := m.SubmitPassword(ctx, password); err != nil {
//	    return err
//	}
//	result, err := m.Wait(ctx)
//
// All state lives on one event loop goroutine. Session callbacks, timer
// fires and finished I/O are posted to it as events; events from a
// replaced session or an earlier state are dropped.
package provisioning
