package cli

import (
	"bytes"
	"net/http"
	"strings"
	"testing"
)

func TestVersionCommandPrintsVersion(t *testing.T) {
	cmd := NewRootCmd("1.2.3")
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if got := strings.TrimSpace(out.String()); got != "1.2.3" {
		t.Fatalf("version output = %q, want %q", got, "1.2.3")
	}
}

func TestVersionCommandRemotePrintsServerVersion(t *testing.T) {
	tr := &scriptedTransport{
		handle: func(call int, req recordedRequest) (*http.Response, error) {
			if req.Path != "/version" {
				t.Fatalf("unexpected path %s", req.Path)
			}
			return jsonHTTPResponse(http.StatusOK, `{"version":"9.9.9"}`), nil
		},
	}
	out, _, err := runCommandWithTransport(t, []string{"version", "--remote"}, tr)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out, "tallyctl test") || !strings.Contains(out, "tallyd 9.9.9") {
		t.Fatalf("unexpected output %q", out)
	}
}
