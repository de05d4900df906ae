package main

import (
	"errors"
	"testing"

	"github.com/hubonboard/hubsetup/internal/hubapi"
)

func TestAPIProblem(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"refused", hubapi.NewNetworkError("hub not reachable", errors.New("connection refused"), "http://10.0.0.8/"), "not answering"},
		{"timeout", &hubapi.APIError{Type: hubapi.ErrTypeTimeout}, "not answering"},
		{"server error", hubapi.NewHTTPError(500, "internal error", "http://10.0.0.8/"), "answering with errors"},
		{"wrong service", hubapi.NewParseError("invalid hub info", errors.New("unexpected EOF"), "http://10.0.0.8/"), "not a hub API"},
		{"plain error", errors.New("boom"), "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := apiProblem(tt.err); got != tt.want {
				t.Errorf("apiProblem() = %q, want %q", got, tt.want)
			}
		})
	}
}
