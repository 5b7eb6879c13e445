package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/benedict2310/tally/internal/config"
)

// Transport executes HTTP requests to tallyd over a chosen network transport.
type Transport interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
	Close() error
}

type Options struct {
	Timeout        time.Duration
	KnownHostsPath string
	PrivateKeyPath string
}

// NewFromContext picks the transport by the scheme of the context server URL.
func NewFromContext(ctx context.Context, info config.ContextInfo, opts Options) (Transport, error) {
	u, err := url.Parse(strings.TrimSpace(info.Server))
	if err != nil {
		return nil, fmt.Errorf("parse server URL %q: %w", info.Server, err)
	}
	switch u.Scheme {
	case "http", "https":
		return NewHTTPTransport(info.Server, opts.Timeout)
	case "ssh":
		cfg := SSHConfig{
			ServerURL:      info.Server,
			Timeout:        opts.Timeout,
			KnownHostsPath: opts.KnownHostsPath,
			PrivateKeyPath: opts.PrivateKeyPath,
		}
		if info.RemotePort > 0 {
			cfg.RemoteAddr = fmt.Sprintf("127.0.0.1:%d", info.RemotePort)
		}
		return NewSSHTransport(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported server URL scheme %q (expected http, https or ssh)", u.Scheme)
	}
}
