package cli

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/benedict2310/tally/internal/config"
	"github.com/benedict2310/tally/internal/transport"
)

func TestClickCommandRecordsClick(t *testing.T) {
	tr := &scriptedTransport{
		handle: func(call int, req recordedRequest) (*http.Response, error) {
			if req.Method != http.MethodPost || req.Path != "/api/v1/clicks" {
				t.Fatalf("unexpected request %s %s", req.Method, req.Path)
			}
			if string(req.Body) != `{"buttonId":2}` {
				t.Fatalf("unexpected body %s", req.Body)
			}
			if got := req.Headers.Get("Authorization"); got != "Bearer staging-token" {
				t.Fatalf("expected context token, got %q", got)
			}
			return jsonHTTPResponse(http.StatusCreated, `{"buttonId":2,"seq":5,"date":"2024-03-05","time":"14:22","occurredAt":"2024-03-05T14:22:07Z","buttonLabel":"Botão 2"}`), nil
		},
	}

	out, _, err := runCommandWithTransport(t, []string{"click", "2"}, tr)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	for _, want := range []string{"seq", "5", "Botão 2", "2024-03-05", "14:22"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got %s", want, out)
		}
	}
	if !tr.closed {
		t.Fatalf("expected transport to be closed")
	}
}

func TestClickCommandJSONOutput(t *testing.T) {
	tr := &scriptedTransport{
		handle: func(call int, req recordedRequest) (*http.Response, error) {
			return jsonHTTPResponse(http.StatusCreated, `{"buttonId":1,"seq":1,"date":"2024-03-05","time":"09:00","occurredAt":"2024-03-05T09:00:00Z","buttonLabel":"Botão 1"}`), nil
		},
	}
	out, _, err := runCommandWithTransport(t, []string{"click", "1", "-o", "json"}, tr)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out, `"seq": 1`) || !strings.Contains(out, `"buttonLabel": "Botão 1"`) {
		t.Fatalf("unexpected json output %s", out)
	}
}

func TestClickCommandRejectsInvalidButtonWithoutCallingServer(t *testing.T) {
	tr := &scriptedTransport{}
	for _, arg := range []string{"0", "-3", "abc"} {
		_, _, err := runCommandWithTransport(t, []string{"click", "--", arg}, tr)
		if err == nil {
			t.Fatalf("expected error for button %q", arg)
		}
		if ExitCode(err) != 2 {
			t.Fatalf("expected usage exit code for %q, got %d (%v)", arg, ExitCode(err), err)
		}
	}
	if len(tr.requests) != 0 {
		t.Fatalf("expected no requests, got %d", len(tr.requests))
	}
}

func TestClickCommandSurfacesServerErrors(t *testing.T) {
	tr := &scriptedTransport{
		handle: func(call int, req recordedRequest) (*http.Response, error) {
			return jsonHTTPResponse(http.StatusServiceUnavailable, `{"error":"click store is busy; retry"}`), nil
		},
	}
	_, _, err := runCommandWithTransport(t, []string{"click", "1"}, tr)
	if err == nil || !strings.Contains(err.Error(), "busy") {
		t.Fatalf("expected busy error, got %v", err)
	}
}

func TestClickCommandUsesContextOverride(t *testing.T) {
	configPath := writeTestConfigFile(t, "staging")
	t.Setenv(config.EnvConfigPath, configPath)

	var resolved config.ContextInfo
	prevFactory := buildTransportForContext
	buildTransportForContext = func(ctx context.Context, info config.ContextInfo, opts transport.Options) (transport.Transport, error) {
		resolved = info
		return nil, transport.ErrUnreachable
	}
	t.Cleanup(func() { buildTransportForContext = prevFactory })

	cmd := NewRootCmd("test")
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--context", "prod", "click", "1"})

	err := cmd.Execute()
	if !errors.Is(err, transport.ErrUnreachable) {
		t.Fatalf("expected unreachable error, got %v", err)
	}
	if resolved.Name != "prod" || resolved.Server != "https://tally.example.com" {
		t.Fatalf("unexpected resolved context %#v", resolved)
	}
}

func TestPressesCommandListsDay(t *testing.T) {
	tr := &scriptedTransport{
		handle: func(call int, req recordedRequest) (*http.Response, error) {
			if req.Method != http.MethodGet || req.Path != "/api/v1/clicks" || req.Query != "day=2024-03-04" {
				t.Fatalf("unexpected request %s %s?%s", req.Method, req.Path, req.Query)
			}
			return jsonHTTPResponse(http.StatusOK, `{"date":"2024-03-04","presses":[
				{"seq":1,"buttonId":1,"buttonLabel":"Botão 1","date":"2024-03-04","time":"09:10"},
				{"seq":1,"buttonId":3,"buttonLabel":"Botão 3","date":"2024-03-04","time":"11:45"}
			]}`), nil
		},
	}
	out, _, err := runCommandWithTransport(t, []string{"presses", "--day", "2024-03-04"}, tr)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "TIME") {
		t.Fatalf("unexpected presses output %q", out)
	}
	if !strings.Contains(lines[2], "11:45") || !strings.Contains(lines[2], "Botão 3") {
		t.Fatalf("unexpected last row %q", lines[2])
	}
}

func TestPressesCommandLast(t *testing.T) {
	tr := &scriptedTransport{
		handle: func(call int, req recordedRequest) (*http.Response, error) {
			if req.Path != "/api/v1/clicks/last" {
				t.Fatalf("unexpected path %s", req.Path)
			}
			return jsonHTTPResponse(http.StatusNotFound, `{"error":"last click: not found"}`), nil
		},
	}
	_, _, err := runCommandWithTransport(t, []string{"presses", "--last"}, tr)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}

	_, _, err = runCommandWithTransport(t, []string{"presses", "--last", "--day", "2024-03-04"}, &scriptedTransport{})
	if ExitCode(err) != ExitUsage {
		t.Fatalf("expected usage exit code, got %d (%v)", ExitCode(err), err)
	}
}
