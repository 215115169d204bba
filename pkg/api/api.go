// Package api is the HTTP façade collaborator: it translates a handful of
// REST requests into calls on the same executor/backup/control surfaces the
// control loop uses, and serves the health and metrics endpoints. It is not
// part of the core — the core never imports this package.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cuemby/lxcautoscaled/pkg/backup"
	"github.com/cuemby/lxcautoscaled/pkg/controlloop"
	"github.com/cuemby/lxcautoscaled/pkg/executor"
	"github.com/cuemby/lxcautoscaled/pkg/horizontal"
	"github.com/cuemby/lxcautoscaled/pkg/log"
	"github.com/cuemby/lxcautoscaled/pkg/metrics"
	"github.com/cuemby/lxcautoscaled/pkg/probe"
	"github.com/cuemby/lxcautoscaled/pkg/types"
)

// Server serves the daemon's HTTP surface: health, metrics, and a small
// set of manual-override endpoints.
type Server struct {
	exec       executor.Executor
	probe      *probe.Probe
	store      *backup.Store
	horizontal *horizontal.Scaler
	groups     map[string]*types.Group

	mux *http.ServeMux
}

// New builds a Server wired to the given collaborators. groups is shared
// with the control loop; a scale-out issued through the API mutates the
// same *types.Group the next tick's Evaluate call will see.
func New(exec executor.Executor, p *probe.Probe, store *backup.Store, h *horizontal.Scaler, groups map[string]*types.Group) *Server {
	s := &Server{exec: exec, probe: p, store: store, horizontal: h, groups: groups, mux: http.NewServeMux()}

	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/metrics", metrics.Handler())
	s.mux.HandleFunc("/health", metrics.HealthHandler())
	s.mux.HandleFunc("/ready", metrics.ReadyHandler())
	s.mux.HandleFunc("/live", metrics.LivenessHandler())
	s.mux.HandleFunc("/v1/containers/", s.handleScale)
	s.mux.HandleFunc("/v1/groups/", s.handleScaleOut)
	s.mux.HandleFunc("/v1/rollback", s.handleRollback)

	return s
}

// ListenAndServe starts the HTTP server on addr, blocking until it exits.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// scaleRequest requests an explicit core/memory target for one container,
// bypassing the threshold-driven decision for a manual override.
type scaleRequest struct {
	Cores  int `json:"cores"`
	MemMiB int `json:"memory_mib"`
}

func (s *Server) handleScale(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctid := ctidFromPath(r.URL.Path)
	if ctid == "" {
		http.Error(w, "missing container id", http.StatusBadRequest)
		return
	}

	var req scaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if req.Cores > 0 {
		if _, err := s.exec.Run(ctx, []string{"pct", "set", ctid, "-cores", fmt.Sprintf("%d", req.Cores)}, executor.DefaultTimeout); err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
	}
	if req.MemMiB > 0 {
		if _, err := s.exec.Run(ctx, []string{"pct", "set", ctid, "-memory", fmt.Sprintf("%d", req.MemMiB)}, executor.DefaultTimeout); err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

// handleScaleOut forces an immediate scale-out of a named group, bypassing
// Evaluate's usage thresholds and grace period — only MaxInstances still
// applies.
func (s *Server) handleScaleOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := groupNameFromPath(r.URL.Path)
	if name == "" {
		http.Error(w, "missing group name", http.StatusBadRequest)
		return
	}

	group, ok := s.groups[name]
	if !ok {
		http.Error(w, "unknown group", http.StatusNotFound)
		return
	}
	if s.horizontal == nil {
		http.Error(w, "horizontal scaler unavailable", http.StatusServiceUnavailable)
		return
	}

	s.horizontal.ForceScaleOut(r.Context(), group)
	writeJSON(w, http.StatusOK, map[string]string{"status": "scale out requested"})
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := controlloop.Rollback(r.Context(), s.exec, s.probe, s.store, nil); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rolled back"})
}

// ctidFromPath extracts {id} from POST /v1/containers/{id}/scale.
func ctidFromPath(path string) string {
	const prefix = "/v1/containers/"
	const suffix = "/scale"
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return ""
	}
	ctid := path[len(prefix) : len(path)-len(suffix)]
	if ctid == "" || strings.Contains(ctid, "/") {
		return ""
	}
	return ctid
}

// groupNameFromPath extracts {name} from POST /v1/groups/{name}/scale-out.
func groupNameFromPath(path string) string {
	const prefix = "/v1/groups/"
	const suffix = "/scale-out"
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return ""
	}
	name := path[len(prefix) : len(path)-len(suffix)]
	if name == "" || strings.Contains(name, "/") {
		return ""
	}
	return name
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Logger.Error().Err(err).Msg("failed to encode api response")
	}
}
