package api

import "net/http"

// handleScorecard handles GET /api/v1/competitions/{c}/participants/{p}/scorecard.
// Admins may pass ?judge= to read another judge's card.
func (s *Server) handleScorecard(w http.ResponseWriter, r *http.Request) {
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
	judgeID, err := queryID(r, "judge")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	card, err := s.deps.Scorecard(r.Context(), principal(r), cid, pid, judgeID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// handleComparison handles GET /api/v1/competitions/{c}/participants/{p}/comparison.
func (s *Server) handleComparison(w http.ResponseWriter, r *http.Request) {
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
	cmp, err := s.deps.CompareJudges(r.Context(), principal(r), cid, pid)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

// handleJudgeStatistics handles GET /api/v1/judges/{j}/statistics.
func (s *Server) handleJudgeStatistics(w http.ResponseWriter, r *http.Request) {
	judgeID, err := pathID(r, "j")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	cid, err := queryID(r, "competition")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	st, err := s.deps.JudgeStatistics(r.Context(), principal(r), judgeID, cid)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
