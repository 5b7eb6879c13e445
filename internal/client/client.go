package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/benedict2310/tally/internal/transport"
)

const defaultBaseURL = "http://tallyd"

type APIClient struct {
	transport transport.Transport
	baseURL   string
	context   string
	token     string
}

func New(tr transport.Transport) *APIClient {
	return &APIClient{transport: tr, baseURL: defaultBaseURL}
}

// NewWithAuth sends token as a bearer credential on every request and names
// the context as the actor for audit entries.
func NewWithAuth(tr transport.Transport, contextName, token string) *APIClient {
	c := New(tr)
	c.context = strings.TrimSpace(contextName)
	c.token = strings.TrimSpace(token)
	return c
}

func (c *APIClient) RecordClick(ctx context.Context, buttonID int) (ClickResult, error) {
	var out ClickResult
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/clicks", map[string]int{"buttonId": buttonID}, &out)
	return out, err
}

// Presses lists the presses of day, or of the server's today when day is
// empty.
func (c *APIClient) Presses(ctx context.Context, day string) (PressesResponse, error) {
	path := "/api/v1/clicks"
	if day = strings.TrimSpace(day); day != "" {
		path += "?" + url.Values{"day": []string{day}}.Encode()
	}
	var out PressesResponse
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *APIClient) LastPress(ctx context.Context) (Press, error) {
	var out Press
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/clicks/last", nil, &out)
	return out, err
}

func (c *APIClient) Stats(ctx context.Context) (StatsResponse, error) {
	var out StatsResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/stats", nil, &out)
	return out, err
}

func (c *APIClient) Totals(ctx context.Context) (Totals, error) {
	var out Totals
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/stats/totals", nil, &out)
	return out, err
}

func (c *APIClient) ButtonCounts(ctx context.Context) (ButtonCountsResponse, error) {
	var out ButtonCountsResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/stats/buttons", nil, &out)
	return out, err
}

// Days returns per-day counts; lookback <= 0 leaves the window to the server.
func (c *APIClient) Days(ctx context.Context, lookback int) (DaysResponse, error) {
	path := "/api/v1/stats/days"
	if lookback > 0 {
		path += "?" + url.Values{"lookback": []string{strconv.Itoa(lookback)}}.Encode()
	}
	var out DaysResponse
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Hours returns per-hour counts for day, or for the server's today when day
// is empty.
func (c *APIClient) Hours(ctx context.Context, day string) (HoursResponse, error) {
	path := "/api/v1/stats/hours"
	if day = strings.TrimSpace(day); day != "" {
		path += "?" + url.Values{"day": []string{day}}.Encode()
	}
	var out HoursResponse
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *APIClient) ListButtons(ctx context.Context) (ButtonsResponse, error) {
	var out ButtonsResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/buttons", nil, &out)
	return out, err
}

func (c *APIClient) SetButtonLabel(ctx context.Context, buttonID int, label string) (Button, error) {
	var out Button
	err := c.doJSON(ctx, http.MethodPut, buttonPath(buttonID), map[string]string{"label": label}, &out)
	return out, err
}

func (c *APIClient) UploadIcon(ctx context.Context, buttonID int, content []byte) (Button, error) {
	req, err := c.newRequest(ctx, http.MethodPut, buttonPath(buttonID)+"/icon", bytes.NewReader(content))
	if err != nil {
		return Button{}, err
	}
	req.Header.Set("Content-Type", http.DetectContentType(content))
	var out Button
	if err := c.do(req, &out); err != nil {
		return Button{}, err
	}
	return out, nil
}

func (c *APIClient) DownloadIcon(ctx context.Context, buttonID int) ([]byte, string, error) {
	return c.getBinary(ctx, buttonPath(buttonID)+"/icon", "image/*", "icon")
}

// DaysChart renders the per-day counts as a PNG on the server.
func (c *APIClient) DaysChart(ctx context.Context, lookback int) ([]byte, error) {
	path := "/api/v1/stats/days.png"
	if lookback > 0 {
		path += "?" + url.Values{"lookback": []string{strconv.Itoa(lookback)}}.Encode()
	}
	body, _, err := c.getBinary(ctx, path, "image/png", "chart")
	return body, err
}

func (c *APIClient) HoursChart(ctx context.Context, day string) ([]byte, error) {
	path := "/api/v1/stats/hours.png"
	if day = strings.TrimSpace(day); day != "" {
		path += "?" + url.Values{"day": []string{day}}.Encode()
	}
	body, _, err := c.getBinary(ctx, path, "image/png", "chart")
	return body, err
}

func (c *APIClient) getBinary(ctx context.Context, path, accept, what string) ([]byte, string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Accept", accept)
	resp, err := c.transport.Do(req.Context(), req)
	if err != nil {
		return nil, "", mapTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, "", mapAPIError(resp)
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read %s response: %w", what, err)
	}
	return content, resp.Header.Get("Content-Type"), nil
}

func (c *APIClient) DeleteIcon(ctx context.Context, buttonID int) error {
	return c.doJSON(ctx, http.MethodDelete, buttonPath(buttonID)+"/icon", nil, nil)
}

func (c *APIClient) Import(ctx context.Context, records []ImportRecord) (ImportResponse, error) {
	var out ImportResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/import", map[string]any{"records": records}, &out)
	return out, err
}

// Audit lists configuration changes, newest first.
func (c *APIClient) Audit(ctx context.Context, q AuditQuery) (AuditResponse, error) {
	values := url.Values{}
	if q.ButtonID > 0 {
		values.Set("button", strconv.Itoa(q.ButtonID))
	}
	if op := strings.TrimSpace(q.Operation); op != "" {
		values.Set("operation", op)
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		values.Set("offset", strconv.Itoa(q.Offset))
	}
	path := "/api/v1/audit"
	if len(values) > 0 {
		path += "?" + values.Encode()
	}
	var out AuditResponse
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *APIClient) Version(ctx context.Context) (VersionResponse, error) {
	var out VersionResponse
	err := c.doJSON(ctx, http.MethodGet, "/version", nil, &out)
	return out, err
}

func buttonPath(buttonID int) string {
	return "/api/v1/buttons/" + url.PathEscape(strconv.Itoa(buttonID))
}

func (c *APIClient) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *APIClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.context != "" {
		req.Header.Set("X-Actor", c.context)
	}
	return req, nil
}

func (c *APIClient) do(req *http.Request, out any) error {
	resp, err := c.transport.Do(req.Context(), req)
	if err != nil {
		return mapTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return mapAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode api response: %w", err)
	}
	return nil
}

type apiErrorPayload struct {
	Error   string   `json:"error"`
	Details []string `json:"details"`
}

// APIError is a non-2xx response from tallyd.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	var prefix string
	switch e.StatusCode {
	case http.StatusBadRequest:
		prefix = "invalid request"
	case http.StatusUnauthorized:
		prefix = "unauthorized (check the context token)"
	case http.StatusForbidden:
		prefix = "forbidden (the context token is read-only)"
	case http.StatusNotFound:
		prefix = "not found"
	case http.StatusServiceUnavailable:
		prefix = "server busy or unavailable"
	default:
		if e.StatusCode >= 500 {
			prefix = fmt.Sprintf("server error (%d)", e.StatusCode)
		} else {
			prefix = fmt.Sprintf("request failed (%d)", e.StatusCode)
		}
	}
	msg := prefix + ": " + e.Message
	if e.RequestID != "" {
		msg += " (request id " + e.RequestID + ")"
	}
	return msg
}

func mapAPIError(resp *http.Response) error {
	payload := apiErrorPayload{}
	body, _ := io.ReadAll(resp.Body)
	if len(body) > 0 {
		_ = json.Unmarshal(body, &payload)
	}
	msg := strings.TrimSpace(payload.Error)
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = "request failed"
	}
	if len(payload.Details) > 0 {
		msg = msg + ": " + strings.Join(payload.Details, "; ")
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg, RequestID: resp.Header.Get("X-Request-Id")}
}

func mapTransportError(err error) error {
	switch {
	case errors.Is(err, transport.ErrUnreachable):
		return fmt.Errorf("check the context server URL: %w", err)
	case transport.IsCredentialError(err), transport.IsRetryable(err):
		return fmt.Errorf("ssh transport: %w", err)
	default:
		return err
	}
}
