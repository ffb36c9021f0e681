package scoresim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/okian/arena/internal/adapters/identity"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/types"
	"github.com/okian/arena/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	outputPermission    = 0600
)

// ErrNoParticipants is returned when the competition has nobody to score.
var ErrNoParticipants = errors.New("competition has no active participants")

// panel is what discovery learns about the competition.
type panel struct {
	participants []int64
	judges       []int64
	params       []types.ParameterEntry
}

// comparisonDoc is the subset of the comparison response discovery reads.
type comparisonDoc struct {
	Parameters []types.ParameterEntry `json:"parameters"`
	Judges     []struct {
		JudgeID int64 `json:"judgeId"`
	} `json:"judges"`
}

type bulkItem struct {
	ParameterID int64           `json:"parameterId"`
	Value       decimal.Decimal `json:"value"`
}

type bulkRequest struct {
	CompetitionID int64      `json:"competitionId"`
	ParticipantID int64      `json:"participantId"`
	Scores        []bulkItem `json:"scores"`
}

type inboundRequest struct {
	UpdateID      string          `json:"updateId"`
	CompetitionID int64           `json:"competitionId"`
	ParticipantID int64           `json:"participantId"`
	JudgeID       int64           `json:"judgeId"`
	ParameterID   int64           `json:"parameterId"`
	Value         decimal.Decimal `json:"value"`
	EditReason    string          `json:"editReason,omitempty"`
}

type inboundAck struct {
	Duplicate bool `json:"duplicate"`
}

type scoreRequest struct {
	CompetitionID int64           `json:"competitionId"`
	ParticipantID int64           `json:"participantId"`
	ParameterID   int64           `json:"parameterId"`
	Value         decimal.Decimal `json:"value"`
	EditReason    string          `json:"editReason,omitempty"`
}

// runner carries the state of one simulation.
type runner struct {
	cfg    Config
	client *Client
	auth   *identity.Authenticator
	log    logger.Logger
	stats  *Stats
}

func (c Config) withDefaults() Config {
	if c.AdminID == 0 {
		c.AdminID = DefaultAdminID
	}
	if c.Scale <= 0 {
		c.Scale = DefaultScale
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	return c
}

// Run executes a complete simulation and returns its statistics.
func Run(ctx context.Context, cfg Config) (*Stats, error) {
	cfg = cfg.withDefaults()
	if cfg.CompetitionID <= 0 {
		return nil, errors.New("competition id must be positive")
	}
	auth, err := identity.NewAuthenticator([]byte(cfg.Secret))
	if err != nil {
		return nil, fmt.Errorf("token issuer: %w", err)
	}
	r := &runner{
		cfg:    cfg,
		client: NewClient(cfg.BaseURL, cfg.Timeout),
		auth:   auth,
		log:    logger.Get().Named("scoresim"),
		stats:  &Stats{StartTime: time.Now()},
	}

	r.log.Info(ctx, "starting score simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int64("competition", cfg.CompetitionID),
		logger.Int("workers", cfg.Workers),
		logger.Float64("editRatio", cfg.EditRatio),
		logger.String("timeout", cfg.Timeout.String()),
	)

	// Step 1: Check service health
	if err := r.checkServiceHealth(ctx); err != nil {
		return r.stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Discover participants, judges and parameters
	p, err := r.discover(ctx)
	if err != nil {
		return r.stats, fmt.Errorf("discovery failed: %w", err)
	}

	// Step 3: Generate and submit sheets
	sheets := generateSheets(p.participants, p.judges, p.params)
	r.stats.SheetsGenerated = len(sheets)
	if err := r.submitSheets(ctx, sheets); err != nil {
		return r.stats, fmt.Errorf("sheet submission failed: %w", err)
	}

	// Step 4: Correct a share of the marks
	if err := r.submitEdits(ctx, sheets, p.params); err != nil {
		return r.stats, fmt.Errorf("edit submission failed: %w", err)
	}

	// Step 5: Retrieve and verify rankings
	var entries []types.RankingEntry
	path := fmt.Sprintf("/api/v1/competitions/%d/rankings", cfg.CompetitionID)
	if err := r.client.Do(ctx, http.MethodGet, path, "", nil, &entries); err != nil {
		return r.stats, fmt.Errorf("ranking retrieval failed: %w", err)
	}
	r.stats.RankingsRetrieved = len(entries)

	expected, err := expectedPercentages(sheets, p.judges, p.params, decimal.NewFromInt(cfg.Scale))
	if err != nil {
		return r.stats, fmt.Errorf("expected rankings: %w", err)
	}
	verifyErr := verifyRankings(entries, expected)

	// Step 6: Save sheets to file
	if cfg.OutputFile != "" {
		if err := saveSheets(cfg.OutputFile, sheets); err != nil {
			r.log.Warn(ctx, "failed to save sheets to file", logger.Error(err))
		} else {
			r.log.Info(ctx, "sheets saved to file", logger.String("filename", cfg.OutputFile))
		}
	}

	r.stats.EndTime = time.Now()
	r.stats.Duration = r.stats.EndTime.Sub(r.stats.StartTime)
	r.displayFinalStats(ctx, entries)

	if verifyErr != nil {
		return r.stats, fmt.Errorf("result verification failed: %w", verifyErr)
	}
	r.log.Info(ctx, "simulation completed successfully")
	return r.stats, nil
}

func (r *runner) token(userID int64, role model.Role) (string, error) {
	return r.auth.Issue(model.Principal{UserID: userID, Role: role}, tokenTTL)
}

// checkServiceHealth verifies the service is running.
func (r *runner) checkServiceHealth(ctx context.Context) error {
	if err := r.client.Do(ctx, http.MethodGet, "/healthz", "", nil, nil); err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	r.log.Info(ctx, "service is healthy")
	return nil
}

// discover recalculates rankings to list active participants, then reads the
// comparison of the first one for the judge panel and parameters.
func (r *runner) discover(ctx context.Context) (panel, error) {
	admin, err := r.token(r.cfg.AdminID, model.RoleAdmin)
	if err != nil {
		return panel{}, err
	}
	cid := r.cfg.CompetitionID

	var entries []types.RankingEntry
	if err := r.client.Do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/competitions/%d/rankings/recalculate", cid), admin, nil, &entries); err != nil {
		return panel{}, err
	}
	if len(entries) == 0 {
		return panel{}, ErrNoParticipants
	}
	var p panel
	for _, e := range entries {
		p.participants = append(p.participants, e.ParticipantID)
	}

	var cmp comparisonDoc
	path := fmt.Sprintf("/api/v1/competitions/%d/participants/%d/comparison", cid, p.participants[0])
	if err := r.client.Do(ctx, http.MethodGet, path, admin, nil, &cmp); err != nil {
		return panel{}, err
	}
	for _, j := range cmp.Judges {
		p.judges = append(p.judges, j.JudgeID)
	}
	p.params = cmp.Parameters
	if len(p.judges) == 0 || len(p.params) == 0 {
		return panel{}, fmt.Errorf("competition %d has %d judges and %d parameters", cid, len(p.judges), len(p.params))
	}

	r.log.Info(ctx, "discovered competition",
		logger.Int("participants", len(p.participants)),
		logger.Int("judges", len(p.judges)),
		logger.Int("parameters", len(p.params)),
	)
	return p, nil
}

// submitSheets posts every sheet through the bulk endpoint. Rejected sheets
// are counted and left unsubmitted; transport cancellation aborts the run.
func (r *runner) submitSheets(ctx context.Context, sheets []*Sheet) error {
	tokens, err := r.judgeTokens(sheets)
	if err != nil {
		return err
	}

	var submitted, failed, marks int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for _, sh := range sheets {
		g.Go(func() error {
			req := bulkRequest{CompetitionID: r.cfg.CompetitionID, ParticipantID: sh.ParticipantID}
			for _, m := range sh.Marks {
				req.Scores = append(req.Scores, bulkItem{ParameterID: m.ParameterID, Value: m.Value})
			}
			err := r.client.Do(gctx, http.MethodPost, "/api/v1/scores/bulk", tokens[sh.JudgeID], req, nil)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				atomic.AddInt64(&failed, 1)
				r.log.Warn(gctx, "sheet rejected",
					logger.Int64("judge", sh.JudgeID),
					logger.Int64("participant", sh.ParticipantID),
					logger.Error(err),
				)
				return nil
			}
			sh.Submitted = true
			atomic.AddInt64(&submitted, 1)
			atomic.AddInt64(&marks, int64(len(sh.Marks)))
			if r.cfg.Verbose {
				r.log.Debug(gctx, "sheet submitted",
					logger.Int64("judge", sh.JudgeID),
					logger.Int64("participant", sh.ParticipantID),
				)
			}
			return nil
		})
	}
	err = g.Wait()

	r.stats.SheetsSubmitted = int(submitted)
	r.stats.SheetsFailed = int(failed)
	r.stats.MarksSubmitted = int(marks)
	r.log.Info(ctx, "sheet submission completed",
		logger.Int("submitted", r.stats.SheetsSubmitted),
		logger.Int("failed", r.stats.SheetsFailed),
	)
	return err
}

// submitEdits re-submits a random share of marks with a fresh value. The
// local sheet is updated only when the server accepted the change.
func (r *runner) submitEdits(ctx context.Context, sheets []*Sheet, params []types.ParameterEntry) error {
	if r.cfg.EditRatio <= 0 {
		return nil
	}
	tokens, err := r.judgeTokens(sheets)
	if err != nil {
		return err
	}
	maxByParam := make(map[int64]int64, len(params))
	for _, p := range params {
		maxByParam[p.ID] = p.MaxValue
	}

	var edited, failed, deduplicated int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for _, sh := range sheets {
		if !sh.Submitted {
			continue
		}
		for i := range sh.Marks {
			if !chance(r.cfg.EditRatio) {
				continue
			}
			mark := &sh.Marks[i]
			profile := mark.Value.InexactFloat64() * profileScale / float64(maxByParam[mark.ParameterID])
			value := generateMark(profile, maxByParam[mark.ParameterID])
			g.Go(func() error {
				var err error
				if r.cfg.InboundToken != "" {
					var dup bool
					dup, err = r.relayEdit(gctx, sh, mark.ParameterID, value)
					if dup {
						atomic.AddInt64(&deduplicated, 1)
					}
				} else {
					req := scoreRequest{
						CompetitionID: r.cfg.CompetitionID,
						ParticipantID: sh.ParticipantID,
						ParameterID:   mark.ParameterID,
						Value:         value,
						EditReason:    editReason,
					}
					err = r.client.Do(gctx, http.MethodPost, "/api/v1/scores", tokens[sh.JudgeID], req, nil)
				}
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					atomic.AddInt64(&failed, 1)
					r.log.Warn(gctx, "edit rejected", logger.Int64("judge", sh.JudgeID), logger.Error(err))
					return nil
				}
				mark.Value = value
				atomic.AddInt64(&edited, 1)
				return nil
			})
		}
	}
	err = g.Wait()

	r.stats.EditsSubmitted = int(edited)
	r.stats.EditsFailed = int(failed)
	r.stats.EditsDeduplicated = int(deduplicated)
	r.log.Info(ctx, "edit submission completed",
		logger.Int("edited", r.stats.EditsSubmitted),
		logger.Int("failed", r.stats.EditsFailed),
		logger.Int("deduplicated", r.stats.EditsDeduplicated),
	)
	return err
}

// relayEdit sends a correction as a device update and replays it once, the
// way a flaky device would. It reports whether the replay was recognised as
// a duplicate.
func (r *runner) relayEdit(ctx context.Context, sh *Sheet, parameterID int64, value decimal.Decimal) (bool, error) {
	req := inboundRequest{
		UpdateID:      uuid.NewString(),
		CompetitionID: r.cfg.CompetitionID,
		ParticipantID: sh.ParticipantID,
		JudgeID:       sh.JudgeID,
		ParameterID:   parameterID,
		Value:         value,
		EditReason:    editReason,
	}
	if err := r.client.Relay(ctx, r.cfg.InboundToken, req, nil); err != nil {
		return false, err
	}
	var ack inboundAck
	if err := r.client.Relay(ctx, r.cfg.InboundToken, req, &ack); err != nil {
		return false, fmt.Errorf("replay: %w", err)
	}
	return ack.Duplicate, nil
}

// judgeTokens issues one judge token per distinct judge on the sheets.
func (r *runner) judgeTokens(sheets []*Sheet) (map[int64]string, error) {
	tokens := make(map[int64]string)
	for _, sh := range sheets {
		if _, ok := tokens[sh.JudgeID]; ok {
			continue
		}
		tok, err := r.token(sh.JudgeID, model.RoleJudge)
		if err != nil {
			return nil, err
		}
		tokens[sh.JudgeID] = tok
	}
	return tokens, nil
}

// saveSheets writes the sheets as indented JSON.
func saveSheets(filename string, sheets []*Sheet) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(sheets, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sheets: %w", err)
	}
	if err := os.WriteFile(filename, data, outputPermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// displayFinalStats logs the run statistics and the podium.
func (r *runner) displayFinalStats(ctx context.Context, entries []types.RankingEntry) {
	var successRate, sheetsPerSecond float64
	if r.stats.SheetsGenerated > 0 {
		successRate = float64(r.stats.SheetsSubmitted) / float64(r.stats.SheetsGenerated) * PercentageMultiplier
	}
	if r.stats.Duration > 0 {
		sheetsPerSecond = float64(r.stats.SheetsSubmitted) / r.stats.Duration.Seconds()
	}

	for i, e := range entries {
		if i >= 3 {
			break
		}
		r.log.Info(ctx, "podium",
			logger.Int("position", e.Position),
			logger.Int("number", e.Number),
			logger.String("rider", e.Rider.Name),
			logger.String("horse", e.Horse.Name),
			logger.Float64("percentage", e.Percentage),
		)
	}

	r.log.Info(ctx, "final statistics",
		logger.Int("sheetsGenerated", r.stats.SheetsGenerated),
		logger.Int("sheetsSubmitted", r.stats.SheetsSubmitted),
		logger.Int("sheetsFailed", r.stats.SheetsFailed),
		logger.Int("marksSubmitted", r.stats.MarksSubmitted),
		logger.Int("editsSubmitted", r.stats.EditsSubmitted),
		logger.Int("editsFailed", r.stats.EditsFailed),
		logger.Int("editsDeduplicated", r.stats.EditsDeduplicated),
		logger.Int("rankingsRetrieved", r.stats.RankingsRetrieved),
		logger.String("duration", r.stats.Duration.String()),
		logger.Float64("successRate", successRate),
		logger.Float64("sheetsPerSecond", sheetsPerSecond),
	)
}
