package agent

import (
	"context"
	"encoding/json"
	"net/http"
)

const (
	LaunchPath = "/launch"
	StatusPath = "/status"
)

// Handler serves the control endpoint. Triggered attempts run under ctx, not
// under the request.
func (r *Runner) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(LaunchPath, func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		source := req.URL.Query().Get("source")
		if source == "" {
			source = "http"
		}
		if !r.Trigger(ctx, source) {
			http.Error(w, "launch already in progress", http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc(StatusPath, func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(r.Status()); err != nil {
			r.logger.Warnf("Failed to write status, error: %v", err)
		}
	})

	return mux
}
