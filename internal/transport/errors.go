package transport

import "errors"

var (
	// ErrUnreachable means tallyd could not be contacted over HTTP.
	ErrUnreachable = errors.New("tallyd unreachable")
	ErrSSHAuth     = errors.New("ssh authentication failed")
	ErrSSHTunnel   = errors.New("ssh tunnel to tallyd failed")
	ErrSSHHostKey  = errors.New("ssh host key verification failed")
	// ErrSSHUnreachable covers dial failures and handshake timeouts.
	ErrSSHUnreachable = errors.New("ssh host unreachable")
	// ErrSSHAgentUnavailable means neither an agent nor a key file could
	// provide credentials.
	ErrSSHAgentUnavailable = errors.New("ssh agent unavailable")
)

// IsRetryable reports whether err is a connectivity failure where repeating
// the same press later may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnreachable) ||
		errors.Is(err, ErrSSHUnreachable) ||
		errors.Is(err, ErrSSHTunnel)
}

// IsCredentialError reports whether err needs operator action on keys,
// agents or known_hosts before any retry can succeed.
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrSSHAuth) ||
		errors.Is(err, ErrSSHHostKey) ||
		errors.Is(err, ErrSSHAgentUnavailable)
}
