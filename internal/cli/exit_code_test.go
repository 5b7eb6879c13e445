package cli

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/benedict2310/tally/internal/client"
	"github.com/benedict2310/tally/internal/transport"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitOK},
		{name: "plain", err: errors.New("boom"), want: ExitFailure},
		{name: "usage", err: usageError(errors.New("bad button")), want: ExitUsage},
		{name: "wrapped usage", err: fmt.Errorf("click: %w", usageError(errors.New("bad button"))), want: ExitUsage},
		{name: "unauthorized", err: &client.APIError{StatusCode: http.StatusUnauthorized, Message: "unauthorized"}, want: ExitAuth},
		{name: "read-only token", err: &client.APIError{StatusCode: http.StatusForbidden, Message: "read-only"}, want: ExitAuth},
		{name: "rejected payload", err: &client.APIError{StatusCode: http.StatusBadRequest, Message: "invalid button"}, want: ExitUsage},
		{name: "lock timeout", err: fmt.Errorf("press: %w", &client.APIError{StatusCode: http.StatusServiceUnavailable, Message: "busy"}), want: ExitRetry},
		{name: "server error", err: &client.APIError{StatusCode: http.StatusInternalServerError, Message: "boom"}, want: ExitFailure},
		{name: "unreachable", err: fmt.Errorf("tallyd unreachable: %w", transport.ErrUnreachable), want: ExitRetry},
		{name: "ssh tunnel", err: fmt.Errorf("ssh transport: %w", transport.ErrSSHTunnel), want: ExitRetry},
		{name: "ssh host key", err: fmt.Errorf("ssh transport: %w", transport.ErrSSHHostKey), want: ExitAuth},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExitCode(tc.err); got != tc.want {
				t.Fatalf("ExitCode(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestExitCodeErrorIgnoresNil(t *testing.T) {
	if err := exitCodeError(ExitUsage, nil); err != nil {
		t.Fatalf("exitCodeError(nil) = %v, want nil", err)
	}
	if err := exitCodeError(0, errors.New("boom")); ExitCode(err) != ExitFailure {
		t.Fatalf("expected zero code to leave the error unclassified")
	}
}
