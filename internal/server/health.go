package server

import (
	"encoding/json"
	"net/http"
	"runtime"
)

type readyResponse struct {
	Status  string   `json:"status"`
	Missing []string `json:"missing,omitempty"`
}

type versionResponse struct {
	Version   string `json:"version"`
	GoVersion string `json:"goVersion"`
}

// registerHealthRoutes mounts the unauthenticated probes. notReady lists the
// components that still block click traffic; nil means always ready.
func registerHealthRoutes(mux *http.ServeMux, version string, notReady func() []string) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		var missing []string
		if notReady != nil {
			missing = notReady()
		}
		if len(missing) > 0 {
			writeJSON(w, http.StatusServiceUnavailable, readyResponse{Status: "not ready", Missing: missing})
			return
		}
		writeJSON(w, http.StatusOK, readyResponse{Status: "ready"})
	})
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, versionResponse{Version: version, GoVersion: runtime.Version()})
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
