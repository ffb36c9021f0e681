package api

import (
	"context"
	"net/http"

	"github.com/okian/arena/internal/adapters/live"
)

// handleRankings handles GET /api/v1/competitions/{c}/rankings.
func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	cid, err := pathID(r, "c")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	entries, err := s.deps.Rankings(r.Context(), cid)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleRecalculate handles POST /api/v1/competitions/{c}/rankings/recalculate.
func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	cid, err := pathID(r, "c")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	entries, err := s.deps.Recalculate(r.Context(), principal(r), cid)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleSyncStatus handles GET /api/v1/competitions/{c}/sync-status.
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	cid, err := pathID(r, "c")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	st, err := s.deps.SyncStatus(r.Context(), cid)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleForceSync handles POST /api/v1/competitions/{c}/force-sync.
func (s *Server) handleForceSync(w http.ResponseWriter, r *http.Request) {
	cid, err := pathID(r, "c")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	report, err := s.deps.ForceSync(r.Context(), principal(r), cid)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleWatchRankings handles GET /ws/rankings/{c}.
func (s *Server) handleWatchRankings(w http.ResponseWriter, r *http.Request) {
	cid, err := pathID(r, "c")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.deps.Hub().Serve(w, r, func(ctx context.Context) (*live.Subscriber, error) {
		return s.deps.WatchRankings(ctx, cid)
	})
}

// handleWatchScores handles GET /ws/scores/{c}/{p}.
func (s *Server) handleWatchScores(w http.ResponseWriter, r *http.Request) {
	cid, err := pathID(r, "c")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	pid, err := pathID(r, "p")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.deps.Hub().Serve(w, r, func(ctx context.Context) (*live.Subscriber, error) {
		return s.deps.WatchScores(ctx, cid, pid)
	})
}
