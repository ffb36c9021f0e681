package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/okian/arena/internal/adapters/identity"
	service "github.com/okian/arena/internal/app"
	"github.com/okian/arena/internal/domain/errs"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/types"
)

// InboundTokenHeader authenticates remote device updates.
const InboundTokenHeader = "X-Inbound-Token"

// scoreRequest mirrors the OpenAPI schema for POST /api/v1/scores.
type scoreRequest struct {
	CompetitionID int64               `json:"competitionId"`
	ParticipantID int64               `json:"participantId"`
	ParameterID   int64               `json:"parameterId"`
	JudgeID       int64               `json:"judgeId,omitempty"`
	Value         decimal.NullDecimal `json:"value"`
	Comments      string              `json:"comments,omitempty"`
	EditReason    string              `json:"editReason,omitempty"`
}

func (req scoreRequest) validate() error {
	const op = "api.score_request"
	switch {
	case req.CompetitionID <= 0:
		return errs.NewKind(op, ErrBadRequest, "missing competitionId")
	case req.ParticipantID <= 0:
		return errs.NewKind(op, ErrBadRequest, "missing participantId")
	case req.ParameterID <= 0:
		return errs.NewKind(op, ErrBadRequest, "missing parameterId")
	case !req.Value.Valid:
		return errs.NewKind(op, ErrBadRequest, "missing value")
	}
	return nil
}

type bulkItem struct {
	ParameterID int64               `json:"parameterId"`
	Value       decimal.NullDecimal `json:"value"`
	Comments    string              `json:"comments,omitempty"`
}

// bulkRequest mirrors the OpenAPI schema for POST /api/v1/scores/bulk.
type bulkRequest struct {
	CompetitionID int64      `json:"competitionId"`
	ParticipantID int64      `json:"participantId"`
	JudgeID       int64      `json:"judgeId,omitempty"`
	EditReason    string     `json:"editReason,omitempty"`
	Scores        []bulkItem `json:"scores"`
}

func (req bulkRequest) validate() error {
	for i, item := range req.Scores {
		if !item.Value.Valid {
			return errs.NewKind("api.bulk_request", ErrBadRequest, "scores[%d]: missing value", i)
		}
	}
	return nil
}

// inboundRequest is a device update relayed from the mirror.
type inboundRequest struct {
	UpdateID      string              `json:"updateId"`
	CompetitionID int64               `json:"competitionId"`
	ParticipantID int64               `json:"participantId"`
	JudgeID       int64               `json:"judgeId"`
	ParameterID   int64               `json:"parameterId"`
	Value         decimal.NullDecimal `json:"value"`
	Comments      string              `json:"comments,omitempty"`
	EditReason    string              `json:"editReason,omitempty"`
}

func (req inboundRequest) validate() error {
	if !req.Value.Valid {
		return errs.NewKind("api.inbound_request", ErrBadRequest, "missing value")
	}
	return nil
}

type scoreResponse struct {
	Score    types.ScoreEntry      `json:"score"`
	Outcome  service.Outcome       `json:"outcome"`
	Revision int64                 `json:"revision"`
	Edit     *types.ScoreEditEntry `json:"edit,omitempty"`
}

func newScoreResponse(res service.SubmitResult) scoreResponse {
	out := scoreResponse{
		Score:    types.NewScoreEntry(res.Score),
		Outcome:  res.Outcome,
		Revision: res.Revision,
	}
	if res.Edit != nil {
		e := types.NewScoreEditEntry(*res.Edit)
		out.Edit = &e
	}
	return out
}

func submitStatus(o service.Outcome) int {
	if o == service.OutcomeCreated {
		return http.StatusCreated
	}
	return http.StatusOK
}

func principal(r *http.Request) model.Principal {
	p, _ := identity.FromContext(r.Context())
	return p
}

// handleSubmitScore handles POST /api/v1/scores.
func (s *Server) handleSubmitScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.deps.SubmitScore(r.Context(), principal(r), service.ScoreInput{
		CompetitionID: req.CompetitionID,
		ParticipantID: req.ParticipantID,
		JudgeID:       req.JudgeID,
		ParameterID:   req.ParameterID,
		Value:         req.Value.Decimal,
		Comments:      req.Comments,
		EditReason:    req.EditReason,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, submitStatus(res.Outcome), newScoreResponse(res))
}

// handleSubmitBulk handles POST /api/v1/scores/bulk.
func (s *Server) handleSubmitBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		s.fail(w, r, err)
		return
	}
	in := service.BulkInput{
		CompetitionID: req.CompetitionID,
		ParticipantID: req.ParticipantID,
		JudgeID:       req.JudgeID,
		EditReason:    req.EditReason,
		Scores:        make([]service.BulkItem, 0, len(req.Scores)),
	}
	for _, item := range req.Scores {
		in.Scores = append(in.Scores, service.BulkItem{ParameterID: item.ParameterID, Value: item.Value.Decimal, Comments: item.Comments})
	}
	results, err := s.deps.SubmitBulk(r.Context(), principal(r), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]scoreResponse, 0, len(results))
	for _, res := range results {
		out = append(out, newScoreResponse(res))
	}
	writeJSON(w, http.StatusOK, map[string]any{"scores": out})
}

// handleDeleteScore handles DELETE /api/v1/scores/{id}.
func (s *Server) handleDeleteScore(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.DeleteScore(r.Context(), principal(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleScoreEdits handles GET /api/v1/scores/{id}/edits.
func (s *Server) handleScoreEdits(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	edits, err := s.deps.ScoreEdits(r.Context(), principal(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, edits)
}

// handleInbound handles POST /api/v1/mirror/inbound.
func (s *Server) handleInbound(w http.ResponseWriter, r *http.Request) {
	const op = "api.inbound"
	if s.inboundToken == "" {
		http.NotFound(w, r)
		return
	}
	got := r.Header.Get(InboundTokenHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.inboundToken)) != 1 {
		s.fail(w, r, errs.WrapKind(op, errs.ErrUnauthenticated, ErrInboundToken))
		return
	}
	var req inboundRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.deps.HandleInbound(r.Context(), service.InboundUpdate{
		UpdateID:      req.UpdateID,
		CompetitionID: req.CompetitionID,
		ParticipantID: req.ParticipantID,
		JudgeID:       req.JudgeID,
		ParameterID:   req.ParameterID,
		Value:         req.Value.Decimal,
		Comments:      req.Comments,
		EditReason:    req.EditReason,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if res.Outcome == service.OutcomeDuplicate {
		writeJSON(w, http.StatusOK, map[string]any{"outcome": res.Outcome, "duplicate": true})
		return
	}
	writeJSON(w, submitStatus(res.Outcome), newScoreResponse(res))
}
