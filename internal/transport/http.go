package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultHTTPTimeout = 30 * time.Second

// HTTPTransport talks to tallyd directly at a base URL.
type HTTPTransport struct {
	base   *url.URL
	client *http.Client
}

func NewHTTPTransport(baseURL string, timeout time.Duration) (*HTTPTransport, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse server URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL scheme %q: expected http or https", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("server URL %q must include host", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &HTTPTransport{base: u, client: &http.Client{Timeout: timeout}}, nil
}

func (t *HTTPTransport) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req == nil || req.URL == nil {
		return nil, fmt.Errorf("request URL is required")
	}
	outReq := req.Clone(ctx)
	urlCopy := *outReq.URL
	urlCopy.Scheme = t.base.Scheme
	urlCopy.Host = t.base.Host
	urlCopy.Path = strings.TrimSuffix(t.base.Path, "/") + urlCopy.Path
	urlCopy.RawPath = ""
	outReq.URL = &urlCopy
	outReq.Host = t.base.Host
	outReq.RequestURI = ""

	resp, err := t.client.Do(outReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return resp, nil
}

func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
