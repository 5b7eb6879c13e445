package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	DefaultSSHPort = 22
	// Matches the tallyd default listen address.
	DefaultRemoteAddr  = "127.0.0.1:9400"
	DefaultDialTimeout = 10 * time.Second
)

// SSHConfig configures an SSH-backed transport.
type SSHConfig struct {
	ServerURL      string
	RemoteAddr     string
	Timeout        time.Duration
	KnownHostsPath string
	PrivateKeyPath string
	// AuthMethods replaces agent and key file discovery when set.
	AuthMethods []ssh.AuthMethod
	// HostKeyCB replaces known_hosts verification when set.
	HostKeyCB ssh.HostKeyCallback
}

// ServerEndpoint is the parsed ssh:// server target.
type ServerEndpoint struct {
	User string
	Host string
	Port int
}

func (e ServerEndpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// ParseServerURL parses ssh://user@host[:port] server URLs.
func ParseServerURL(raw string) (ServerEndpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ServerEndpoint{}, fmt.Errorf("server URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ServerEndpoint{}, fmt.Errorf("parse server URL %q: %w", raw, err)
	}
	if u.Scheme != "ssh" {
		return ServerEndpoint{}, fmt.Errorf("invalid server URL scheme %q: expected ssh", u.Scheme)
	}
	if u.User == nil || strings.TrimSpace(u.User.Username()) == "" {
		return ServerEndpoint{}, fmt.Errorf("server URL %q must include user (ssh://user@host)", raw)
	}
	host := strings.TrimSpace(u.Hostname())
	if host == "" {
		return ServerEndpoint{}, fmt.Errorf("server URL %q must include host", raw)
	}
	if path := strings.TrimSpace(u.EscapedPath()); path != "" && path != "/" {
		return ServerEndpoint{}, fmt.Errorf("server URL %q must not include path", raw)
	}

	port := DefaultSSHPort
	if p := strings.TrimSpace(u.Port()); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || n > 65535 {
			return ServerEndpoint{}, fmt.Errorf("server URL %q has invalid port %q", raw, p)
		}
		port = n
	}
	return ServerEndpoint{User: u.User.Username(), Host: host, Port: port}, nil
}

// SSHTransport reaches a loopback-bound tallyd by opening a direct-tcpip
// channel per HTTP connection over one SSH session.
type SSHTransport struct {
	remoteAddr string
	sshClient  *ssh.Client
	http       *http.Client

	mu      sync.Mutex
	closed  bool
	closers []io.Closer
}

func NewSSHTransport(ctx context.Context, cfg SSHConfig) (*SSHTransport, error) {
	endpoint, err := ParseServerURL(cfg.ServerURL)
	if err != nil {
		return nil, err
	}
	remoteAddr := strings.TrimSpace(cfg.RemoteAddr)
	if remoteAddr == "" {
		remoteAddr = DefaultRemoteAddr
	}
	if err := validateRemoteAddr(remoteAddr); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	hostKeyCB := cfg.HostKeyCB
	if hostKeyCB == nil {
		hostKeyCB, err = knownHostsCallback(cfg.KnownHostsPath)
		if err != nil {
			return nil, err
		}
	}

	var closers []io.Closer
	attempts := [][]ssh.AuthMethod{cfg.AuthMethods}
	if len(cfg.AuthMethods) == 0 {
		attempts, closers, err = discoverAuthMethods(cfg.PrivateKeyPath)
		if err != nil {
			return nil, err
		}
	}

	var sshClient *ssh.Client
	for _, methods := range attempts {
		sshClient, err = dialSSHClient(dialCtx, endpoint, &ssh.ClientConfig{
			User:            endpoint.User,
			Auth:            methods,
			HostKeyCallback: hostKeyCB,
			Timeout:         timeout,
		})
		// Only an auth rejection is worth retrying with the next credentials.
		if err == nil || !errors.Is(err, ErrSSHAuth) {
			break
		}
	}
	if err != nil {
		closeAll(closers...)
		return nil, err
	}

	t := &SSHTransport{remoteAddr: remoteAddr, sshClient: sshClient, closers: closers}
	t.http = &http.Client{
		Transport: &http.Transport{
			DialContext:       t.dial,
			DisableKeepAlives: true,
		},
	}
	return t, nil
}

func (t *SSHTransport) dial(ctx context.Context, _, _ string) (net.Conn, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("%w: transport closed", ErrSSHTunnel)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.sshClient.Dial("tcp", t.remoteAddr)
}

func (t *SSHTransport) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req == nil || req.URL == nil {
		return nil, fmt.Errorf("request URL is required")
	}
	outReq := req.Clone(ctx)
	urlCopy := *outReq.URL
	urlCopy.Scheme = "http"
	urlCopy.Host = t.remoteAddr
	outReq.URL = &urlCopy
	outReq.Host = t.remoteAddr
	outReq.RequestURI = ""

	resp, err := t.http.Do(outReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSSHTunnel, err)
	}
	return resp, nil
}

func (t *SSHTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	err := t.sshClient.Close()
	for _, c := range t.closers {
		if c != nil {
			err = errors.Join(err, c.Close())
		}
	}
	return err
}

func validateRemoteAddr(addr string) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%w: invalid remote address %q: %v", ErrSSHTunnel, addr, err)
	}
	if strings.TrimSpace(host) == "" {
		return fmt.Errorf("%w: invalid remote address %q: host is required", ErrSSHTunnel, addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("%w: invalid remote address %q: port must be in range 1..65535", ErrSSHTunnel, addr)
	}
	return nil
}

func dialSSHClient(ctx context.Context, endpoint ServerEndpoint, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", endpoint.Address())
	if err != nil {
		return nil, classifySSHConnectError(err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	clientConn, chans, reqs, err := ssh.NewClientConn(conn, endpoint.Address(), cfg)
	if err != nil {
		_ = conn.Close()
		return nil, classifySSHConnectError(err)
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(clientConn, chans, reqs), nil
}

func classifySSHConnectError(err error) error {
	var keyErr *knownhosts.KeyError
	if errors.As(err, &keyErr) {
		return fmt.Errorf("%w: %v", ErrSSHHostKey, err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unable to authenticate"),
		strings.Contains(msg, "no supported methods remain"):
		return fmt.Errorf("%w: %v", ErrSSHAuth, err)
	case strings.Contains(msg, "host key"):
		return fmt.Errorf("%w: %v", ErrSSHHostKey, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrSSHUnreachable, err)
	}
	return fmt.Errorf("%w: %v", ErrSSHTunnel, err)
}

func closeAll(closers ...io.Closer) {
	for _, c := range closers {
		if c != nil {
			_ = c.Close()
		}
	}
}
