// Package statusd serves the read-only status panel: runner state
// documents, usage summaries, and log file listings as JSON. It only
// reads the plain files the scheduler and worker write; it never
// touches the record store.
package statusd

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/drudge/internal/config"
	"github.com/phrazzld/drudge/internal/state"
	"github.com/phrazzld/drudge/internal/usage"
)

// Server exposes the status endpoints.
type Server struct {
	cfg    *config.Config
	ledger *usage.Ledger
	log    *slog.Logger
}

// New builds a status server over the configured state and usage files.
func New(cfg *config.Config, ledger *usage.Ledger, log *slog.Logger) *Server {
	return &Server{cfg: cfg, ledger: ledger, log: log}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/status", s.handleStatus)
	r.Get("/api/usage", s.handleUsage)
	r.Get("/api/logs", s.handleLogs)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// runnerStatus is one runner identity's state document plus the
// estimated next timer invocation.
type runnerStatus struct {
	State       state.Doc `json:"state"`
	NextCheckAt string    `json:"next_check_at,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]runnerStatus{
		"scheduler": s.runnerStatus("scheduler", s.cfg.Scheduler.IntervalSeconds),
		"worker":    s.runnerStatus("worker", s.cfg.Worker.IntervalSeconds),
	})
}

func (s *Server) runnerStatus(identity string, intervalSeconds int) runnerStatus {
	doc := state.NewFile(s.cfg.State.Dir, identity).Load()
	rs := runnerStatus{State: doc}
	if next := nextCheck(doc, intervalSeconds); next != "" {
		rs.NextCheckAt = next
	}
	return rs
}

// nextCheck estimates the next timer invocation from the last recorded
// check and the configured interval.
func nextCheck(doc state.Doc, intervalSeconds int) string {
	if intervalSeconds <= 0 {
		return ""
	}
	raw, ok := doc["last_check_at"].(string)
	if !ok || raw == "" {
		return ""
	}
	last, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return ""
	}
	return state.Timestamp(last.Add(time.Duration(intervalSeconds) * time.Second))
}

func (s *Server) handleUsage(w http.ResponseWriter, _ *http.Request) {
	now := time.Now()
	agents := map[string]usage.Summary{}
	for _, identity := range []string{"scheduler", "worker"} {
		sum, err := s.ledger.AgentSummary(identity, now)
		if err != nil {
			s.writeError(w, err)
			return
		}
		agents[identity] = sum
	}
	types, err := s.ledger.TaskTypeSummaries(now)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"agents":     agents,
		"task_types": types,
	})
}

// logEntry describes one file in the log directory.
type logEntry struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	ModifiedAt string `json:"modified_at"`
}

func (s *Server) handleLogs(w http.ResponseWriter, _ *http.Request) {
	entries := []logEntry{}
	dir := s.cfg.State.LogDir
	if dir != "" {
		files, err := os.ReadDir(dir)
		if err != nil && !os.IsNotExist(err) {
			s.writeError(w, err)
			return
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			info, err := os.Stat(filepath.Join(dir, f.Name()))
			if err != nil {
				continue
			}
			entries = append(entries, logEntry{
				Name:       f.Name(),
				Size:       info.Size(),
				ModifiedAt: state.Timestamp(info.ModTime()),
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	s.writeJSON(w, http.StatusOK, map[string]any{"logs": entries})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.log.Error("status request failed", "error", err)
	s.writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "internal error",
	})
}
