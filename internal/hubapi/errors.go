package hubapi

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNetwork indicates a network-level error (unreachable host, reset, etc.)
	ErrTypeNetwork ErrorType = iota
	// ErrTypeHTTP indicates an HTTP-level error (non-200 status code)
	ErrTypeHTTP
	// ErrTypeParse indicates a malformed hub info document
	ErrTypeParse
	// ErrTypeTimeout indicates a request timeout
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates the hub refused the connection
	ErrTypeConnectionRefused
	// ErrTypeDNS indicates a DNS resolution failure
	ErrTypeDNS
	// ErrTypeInvalidAddress indicates an address that cannot be turned into a URL
	ErrTypeInvalidAddress
)

// NetworkErrorSubtype provides more specific network error classification
type NetworkErrorSubtype int

const (
	NetworkErrorGeneral NetworkErrorSubtype = iota
	NetworkErrorTimeout
	NetworkErrorConnectionRefused
	NetworkErrorDNS
	NetworkErrorHostUnreachable
	NetworkErrorNetworkUnreachable
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeHTTP:
		return "HTTP Error"
	case ErrTypeParse:
		return "Parse Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeDNS:
		return "DNS Error"
	case ErrTypeInvalidAddress:
		return "Invalid Address"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// APIError represents a failed request against the hub API
type APIError struct {
	Type           ErrorType           // Category of error
	Message        string              // Human-readable error message
	StatusCode     int                 // HTTP status code (if applicable)
	Err            error               // Underlying error (if any)
	NetworkSubtype NetworkErrorSubtype // More specific network error type
	Address        string              // Hub address (for context)
	Retryable      bool                // Whether the error is retryable
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *APIError) Unwrap() error {
	return e.Err
}

// ClassifyNetworkError analyzes a transport error and returns a typed APIError
func ClassifyNetworkError(err error, address string) *APIError {
	if err == nil {
		return nil
	}

	if os.IsTimeout(err) {
		return &APIError{
			Type:           ErrTypeTimeout,
			Message:        "Request timed out",
			Err:            err,
			NetworkSubtype: NetworkErrorTimeout,
			Address:        address,
			Retryable:      true,
		}
	}

	// The hub may not have registered its name yet, so DNS failures are
	// retried while relocating
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &APIError{
			Type:           ErrTypeDNS,
			Message:        fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Err:            err,
			NetworkSubtype: NetworkErrorDNS,
			Address:        address,
			Retryable:      true,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return &APIError{
				Type:           ErrTypeConnectionRefused,
				Message:        "Hub refused connection",
				Err:            err,
				NetworkSubtype: NetworkErrorConnectionRefused,
				Address:        address,
				Retryable:      true,
			}
		}
		if errors.Is(opErr.Err, syscall.EHOSTUNREACH) {
			return &APIError{
				Type:           ErrTypeNetwork,
				Message:        "Host unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorHostUnreachable,
				Address:        address,
				Retryable:      true,
			}
		}
		if errors.Is(opErr.Err, syscall.ENETUNREACH) {
			return &APIError{
				Type:           ErrTypeNetwork,
				Message:        "Network unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorNetworkUnreachable,
				Address:        address,
				Retryable:      true,
			}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ClassifyNetworkError(urlErr.Err, address)
	}

	return &APIError{
		Type:           ErrTypeNetwork,
		Message:        "Network error occurred",
		Err:            err,
		NetworkSubtype: NetworkErrorGeneral,
		Address:        address,
		Retryable:      true,
	}
}

// NewNetworkError creates a network-level error with automatic classification
func NewNetworkError(message string, err error, address string) *APIError {
	classified := ClassifyNetworkError(err, address)
	if classified != nil {
		classified.Message = message
		return classified
	}
	return &APIError{
		Type:      ErrTypeNetwork,
		Message:   message,
		Err:       err,
		Address:   address,
		Retryable: true,
	}
}

// NewHTTPError creates an HTTP-level error
func NewHTTPError(statusCode int, message string, address string) *APIError {
	// 5xx while the hub services are still starting up
	retryable := statusCode >= 500
	return &APIError{
		Type:       ErrTypeHTTP,
		Message:    message,
		StatusCode: statusCode,
		Address:    address,
		Retryable:  retryable,
	}
}

// NewParseError creates a parsing error
func NewParseError(message string, err error, address string) *APIError {
	return &APIError{
		Type:      ErrTypeParse,
		Message:   message,
		Err:       err,
		Address:   address,
		Retryable: false,
	}
}

func asAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsNetworkError checks if an error is a network error (including timeout, connection refused, DNS, etc.)
func IsNetworkError(err error) bool {
	if apiErr, ok := asAPIError(err); ok {
		return apiErr.Type == ErrTypeNetwork ||
			apiErr.Type == ErrTypeTimeout ||
			apiErr.Type == ErrTypeConnectionRefused ||
			apiErr.Type == ErrTypeDNS
	}
	return false
}

// IsHTTPError checks if an error is an HTTP error
func IsHTTPError(err error) bool {
	if apiErr, ok := asAPIError(err); ok {
		return apiErr.Type == ErrTypeHTTP
	}
	return false
}

// IsParseError checks if an error is a parse error
func IsParseError(err error) bool {
	if apiErr, ok := asAPIError(err); ok {
		return apiErr.Type == ErrTypeParse
	}
	return false
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	if apiErr, ok := asAPIError(err); ok {
		return apiErr.Retryable
	}
	// Unknown errors are not retryable by default
	return false
}

// GetTroubleshootingHint returns user-friendly troubleshooting advice for an error
func GetTroubleshootingHint(err error) string {
	apiErr, ok := asAPIError(err)
	if !ok {
		return "An unexpected error occurred. Please try again."
	}

	switch apiErr.Type {
	case ErrTypeTimeout:
		return strings.Join([]string{
			"The hub did not respond in time.",
			"Troubleshooting:",
			"  • Make sure this computer is on the network the hub joined",
			"  • The hub may still be starting its services, try again in a minute",
			"  • Try increasing --relocation-timeout",
		}, "\n")

	case ErrTypeConnectionRefused:
		return strings.Join([]string{
			"The hub refused the connection.",
			"Troubleshooting:",
			"  • The hub API may still be starting, try again in a minute",
			"  • Verify the port in the hub address",
		}, "\n")

	case ErrTypeDNS:
		return strings.Join([]string{
			"Could not resolve the hub host name.",
			"Troubleshooting:",
			"  • Run 'hubsetup locate' to find the hub by mDNS",
			"  • Check that multicast DNS is allowed on your network",
			"  • Verify you're on the same network as the hub",
		}, "\n")

	case ErrTypeNetwork:
		hint := []string{"Network communication failed."}

		switch apiErr.NetworkSubtype {
		case NetworkErrorHostUnreachable:
			hint = append(hint, "The hub is not reachable on the network.",
				"Troubleshooting:",
				"  • Check that you're on the network the hub joined",
				"  • Ensure the hub is powered on",
				"  • Try pinging the hub: ping "+apiErr.Address)

		case NetworkErrorNetworkUnreachable:
			hint = append(hint, "Your computer cannot reach the hub's network.",
				"Troubleshooting:",
				"  • Connect to the Wi-Fi network the hub joined",
				"  • Check your network adapter settings")

		default:
			hint = append(hint, "Troubleshooting:",
				"  • Check your network connection",
				"  • Verify the hub is powered on",
				"  • Ensure you're connected to the correct network")
		}

		return strings.Join(hint, "\n")

	case ErrTypeHTTP:
		if apiErr.StatusCode >= 500 {
			return strings.Join([]string{
				fmt.Sprintf("The hub returned an error (HTTP %d).", apiErr.StatusCode),
				"Troubleshooting:",
				"  • Wait a minute for the hub services to start",
				"  • Power cycle the hub",
			}, "\n")
		}
		return fmt.Sprintf("The hub returned HTTP error %d. Check the hub address.", apiErr.StatusCode)

	case ErrTypeParse:
		return strings.Join([]string{
			"Failed to parse the hub's response.",
			"The address may point at a different HTTP server.",
		}, "\n")

	case ErrTypeInvalidAddress:
		return "The hub address is not a valid URL or host name."

	default:
		return "An error occurred. Please check the error message for details."
	}
}

// GetShortErrorMessage returns a concise, user-friendly error message
func GetShortErrorMessage(err error) string {
	apiErr, ok := asAPIError(err)
	if !ok {
		return err.Error()
	}

	switch apiErr.Type {
	case ErrTypeTimeout:
		return "Hub not responding (timeout)"
	case ErrTypeConnectionRefused:
		return "Hub refused connection"
	case ErrTypeDNS:
		return "Cannot resolve hub hostname"
	case ErrTypeNetwork:
		switch apiErr.NetworkSubtype {
		case NetworkErrorHostUnreachable:
			return "Hub unreachable - check network connection"
		case NetworkErrorNetworkUnreachable:
			return "Network unreachable - check Wi-Fi connection"
		default:
			return "Network error - check connection"
		}
	case ErrTypeHTTP:
		return fmt.Sprintf("Hub error (HTTP %d)", apiErr.StatusCode)
	case ErrTypeParse:
		return "Failed to parse hub response"
	default:
		return apiErr.Message
	}
}
