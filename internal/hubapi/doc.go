// Package hubapi is a minimal client for the hub's HTTP API.
//
// Only the API root is used here: GET on the reachable address returns the
// hub info document
//
//	{"onboarded": false}
//
// which tells the caller the hub is up on the home network. Requests are
// retried with exponential backoff when the failure is transient (timeouts,
// refused connections, 5xx responses).
//
// # Error Handling
//
// All failures are returned as *APIError, classified by ErrorType:
//
//	info, err := client.HubInfo(ctx)
//	if err != nil {
//	    fmt.Println(hubapi.GetShortErrorMessage(err))
//	    fmt.Println(hubapi.GetTroubleshootingHint(err))
//	}
package hubapi
