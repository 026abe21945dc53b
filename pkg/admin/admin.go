// Package admin exposes a small read-only/trigger-only HTTP surface for
// operating a running hydrant process: liveness, current tip, prometheus
// metrics, and an on-demand snapshot trigger. It is operator tooling, not a
// query interface over indexed chain data.
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/Liqwid-Labs/hydrant/pkg/chain"
	"github.com/Liqwid-Labs/hydrant/pkg/log"
	"github.com/Liqwid-Labs/hydrant/pkg/metrics"
)

// Server serves the admin HTTP surface over a single mux, the way the
// original engine's CLI served metrics and pprof off one listener.
type Server struct {
	db           *chain.Db
	snapshotPath string
	mux          *http.ServeMux
}

// NewServer builds a Server backed by db. snapshotPath is where POST
// /snapshot writes its output; an empty snapshotPath disables the endpoint.
func NewServer(db *chain.Db, snapshotPath string) *Server {
	s := &Server{db: db, snapshotPath: snapshotPath, mux: http.NewServeMux()}
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/tip", s.handleTip)
	s.mux.HandleFunc("/snapshot", s.handleSnapshot)
	s.mux.Handle("/metrics", metrics.Handler())
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleTip(w http.ResponseWriter, _ *http.Request) {
	tip, err := s.db.Tip()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tip)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.snapshotPath == "" {
		http.Error(w, "snapshots disabled", http.StatusNotImplemented)
		return
	}
	if err := s.db.Snapshot(s.snapshotPath, true); err != nil {
		log.WithComponent("admin").Error().Err(err).Msg("snapshot failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
