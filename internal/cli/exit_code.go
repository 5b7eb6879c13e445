package cli

import (
	"errors"
	"net/http"

	"github.com/benedict2310/tally/internal/client"
	"github.com/benedict2310/tally/internal/transport"
)

// Exit codes returned by tallyctl. Scripts pressing buttons in a loop can
// retry on ExitRetry and stop on ExitAuth.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
	ExitRetry   = 3
	ExitAuth    = 4
)

type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func exitCodeError(code int, err error) error {
	if code <= 0 || err == nil {
		return err
	}
	return &ExitError{Code: code, Err: err}
}

func usageError(err error) error {
	return exitCodeError(ExitUsage, err)
}

// ExitCode maps a command error to the process exit status. Explicit codes
// win; otherwise server and transport failures are classified.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var coded *ExitError
	if errors.As(err, &coded) && coded.Code > 0 {
		return coded.Code
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized, apiErr.StatusCode == http.StatusForbidden:
			return ExitAuth
		case apiErr.StatusCode == http.StatusBadRequest:
			return ExitUsage
		case apiErr.StatusCode == http.StatusServiceUnavailable:
			return ExitRetry
		}
		return ExitFailure
	}
	switch {
	case transport.IsCredentialError(err):
		return ExitAuth
	case transport.IsRetryable(err):
		return ExitRetry
	}
	return ExitFailure
}
