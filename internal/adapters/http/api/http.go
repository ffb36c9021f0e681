// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/arena/internal/adapters/fanout"
	"github.com/okian/arena/internal/adapters/live"
	service "github.com/okian/arena/internal/app"
	"github.com/okian/arena/internal/domain/errs"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/types"
	"github.com/okian/arena/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SubmitScore(ctx context.Context, p model.Principal, in service.ScoreInput) (service.SubmitResult, error)
	SubmitBulk(ctx context.Context, p model.Principal, in service.BulkInput) ([]service.SubmitResult, error)
	DeleteScore(ctx context.Context, p model.Principal, scoreID int64) error
	HandleInbound(ctx context.Context, u service.InboundUpdate) (service.SubmitResult, error)

	Rankings(ctx context.Context, competitionID int64) ([]types.RankingEntry, error)
	Recalculate(ctx context.Context, p model.Principal, competitionID int64) ([]types.RankingEntry, error)
	ScoreEdits(ctx context.Context, p model.Principal, scoreID int64) ([]types.ScoreEditEntry, error)
	Scorecard(ctx context.Context, p model.Principal, competitionID, participantID, judgeID int64) (service.Scorecard, error)
	CompareJudges(ctx context.Context, p model.Principal, competitionID, participantID int64) (service.Comparison, error)
	JudgeStatistics(ctx context.Context, p model.Principal, judgeID, competitionID int64) (service.JudgeStatistics, error)

	SyncStatus(ctx context.Context, competitionID int64) (types.SyncStatusEntry, error)
	ForceSync(ctx context.Context, p model.Principal, competitionID int64) (fanout.Report, error)

	WatchRankings(ctx context.Context, competitionID int64) (*live.Subscriber, error)
	WatchScores(ctx context.Context, competitionID, participantID int64) (*live.Subscriber, error)
	Hub() *live.Hub
}

// Authenticator turns a bearer token into a principal.
type Authenticator interface {
	Authenticate(token string) (model.Principal, error)
}

// Refresher reloads a principal's competition assignments.
type Refresher interface {
	Refresh(ctx context.Context, p model.Principal) (model.Principal, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps         Dependencies
	stats        StatsProvider
	auth         Authenticator
	refresher    Refresher
	inboundToken string
	logger       logger.Logger

	healthHandler *HealthHandler
	statsHandler  *StatsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		deps:          deps,
		stats:         statsProvider,
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", s.healthHandler.MetricsHandler())
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /api/v1/scores", MetricsMiddleware(s.authenticated(s.handleSubmitScore), "scores"))
	mux.HandleFunc("POST /api/v1/scores/bulk", MetricsMiddleware(s.authenticated(s.handleSubmitBulk), "scores_bulk"))
	mux.HandleFunc("DELETE /api/v1/scores/{id}", MetricsMiddleware(s.authenticated(s.handleDeleteScore), "scores_delete"))
	mux.HandleFunc("GET /api/v1/scores/{id}/edits", MetricsMiddleware(s.authenticated(s.handleScoreEdits), "score_edits"))
	mux.HandleFunc("POST /api/v1/mirror/inbound", MetricsMiddleware(s.handleInbound, "mirror_inbound"))

	mux.HandleFunc("GET /api/v1/competitions/{c}/rankings", MetricsMiddleware(s.handleRankings, "rankings"))
	mux.HandleFunc("POST /api/v1/competitions/{c}/rankings/recalculate", MetricsMiddleware(s.authenticated(s.handleRecalculate), "rankings_recalculate"))
	mux.HandleFunc("GET /api/v1/competitions/{c}/participants/{p}/scorecard", MetricsMiddleware(s.authenticated(s.handleScorecard), "scorecard"))
	mux.HandleFunc("GET /api/v1/competitions/{c}/participants/{p}/comparison", MetricsMiddleware(s.authenticated(s.handleComparison), "comparison"))
	mux.HandleFunc("GET /api/v1/judges/{j}/statistics", MetricsMiddleware(s.authenticated(s.handleJudgeStatistics), "judge_statistics"))
	mux.HandleFunc("GET /api/v1/competitions/{c}/sync-status", MetricsMiddleware(s.handleSyncStatus, "sync_status"))
	mux.HandleFunc("POST /api/v1/competitions/{c}/force-sync", MetricsMiddleware(s.authenticated(s.handleForceSync), "force_sync"))

	mux.HandleFunc("GET /ws/rankings/{c}", s.handleWatchRankings)
	mux.HandleFunc("GET /ws/scores/{c}/{p}", s.handleWatchScores)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// statusFor maps an error kind to its HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, errs.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, errs.ErrAuthorization):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, errs.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, errs.ErrSync):
		return http.StatusBadGateway, "sync_error"
	case errors.Is(err, errs.ErrComputation):
		return http.StatusInternalServerError, "computation_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// fail writes err with the status its kind maps to.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.String("request_id", RequestID(r.Context())),
			logger.Error(err))
	}
	writeError(w, status, code, err)
}

// decode reads a JSON body into v and rejects unknown fields.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errs.WrapKind("api.decode", ErrBadRequest, err)
	}
	return nil
}

// pathID parses a positive integer path value.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.NewKind("api.path", ErrBadRequest, "invalid %s %q", name, r.PathValue(name))
	}
	return id, nil
}

// queryID parses an optional positive integer query value. Absent is zero.
func queryID(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.NewKind("api.query", ErrBadRequest, "invalid %s %q", name, raw)
	}
	return id, nil
}
