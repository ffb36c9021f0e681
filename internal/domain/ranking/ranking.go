// Package ranking derives competition standings from stored scores.
package ranking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/domain/aggregate"
	"github.com/okian/arena/internal/domain/errs"
	"github.com/okian/arena/internal/domain/gate"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
)

// Standing is a ranking row with what downstream consumers need to render it.
type Standing struct {
	Ranking          model.Ranking
	Participant      model.Participant
	PreviousPosition *int
	Judges           []aggregate.JudgeResult
}

// Notifier is told about every committed recomputation, in commit order per
// competition. It must not block.
type Notifier interface {
	RankingsChanged(ctx context.Context, competitionID, revision int64, standings []Standing)
}

// Input is everything Compute needs for one competition.
type Input struct {
	CompetitionID int64
	Participants  []model.Participant // active only, in fetch order
	Judges        []model.CompetitionJudge
	Scores        []model.Score
	Previous      map[int64]int // participant id -> previous position
	Scale         decimal.Decimal
}

// Compute builds standings without touching storage. Ties keep the order of
// in.Participants.
func Compute(in Input) ([]Standing, error) {
	byParticipant := make(map[int64]map[int64][]model.Score)
	for _, s := range in.Scores {
		m := byParticipant[s.Key.ParticipantID]
		if m == nil {
			m = make(map[int64][]model.Score)
			byParticipant[s.Key.ParticipantID] = m
		}
		m[s.Key.JudgeID] = append(m[s.Key.JudgeID], s)
	}

	out := make([]Standing, 0, len(in.Participants))
	for _, p := range in.Participants {
		scores := byParticipant[p.ID]
		var judges []aggregate.JudgeResult
		if len(scores) > 0 {
			for _, jid := range judgeOrder(in.Judges, scores) {
				jr, err := aggregate.PerJudge(jid, scores[jid], in.Scale)
				if err != nil {
					return nil, fmt.Errorf("participant %d judge %d: %w", p.ID, jid, err)
				}
				judges = append(judges, jr)
			}
		}
		final := aggregate.Final(judges, in.Scale)
		st := Standing{
			Ranking: model.Ranking{
				CompetitionID: in.CompetitionID,
				ParticipantID: p.ID,
				Average:       final.Average,
				Percentage:    final.Percentage,
			},
			Participant: p,
			Judges:      judges,
		}
		if prev, ok := in.Previous[p.ID]; ok {
			st.PreviousPosition = &prev
		}
		out = append(out, st)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Ranking.Percentage.GreaterThan(out[j].Ranking.Percentage)
	})
	for i := range out {
		out[i].Ranking.Position = i + 1
	}
	return out, nil
}

// judgeOrder lists assigned judges first, then judges that scored without a
// current assignment, by id.
func judgeOrder(assigned []model.CompetitionJudge, scores map[int64][]model.Score) []int64 {
	seen := make(map[int64]bool, len(assigned))
	order := make([]int64, 0, len(assigned))
	for _, j := range assigned {
		if !seen[j.JudgeID] {
			seen[j.JudgeID] = true
			order = append(order, j.JudgeID)
		}
	}
	var extra []int64
	for jid := range scores {
		if !seen[jid] {
			extra = append(extra, jid)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(order, extra...)
}

// Engine recomputes and persists standings.
type Engine struct {
	store    repository.Store
	gate     *gate.Gate
	scale    decimal.Decimal
	notifier Notifier
	logger   logger.Logger
}

// NewEngine creates an engine over store. The gate must be the one every
// other competition mutation uses.
func NewEngine(store repository.Store, g *gate.Gate, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		gate:   g,
		scale:  aggregate.DefaultScale,
		logger: logger.Get().Named("ranking"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Gate returns the engine's competition gate.
func (e *Engine) Gate() *gate.Gate { return e.gate }

// Scale returns the mark scale used for percentages.
func (e *Engine) Scale() decimal.Decimal { return e.scale }

// SetNotifier installs the commit listener. Call before serving traffic.
func (e *Engine) SetNotifier(n Notifier) { e.notifier = n }

// Recompute rebuilds a competition's rankings in one transaction and notifies
// the listener with the new revision.
func (e *Engine) Recompute(ctx context.Context, competitionID int64) ([]Standing, error) {
	const op = "ranking.recompute"
	held := e.gate.Lock(competitionID)
	defer held.Unlock()

	var standings []Standing
	err := e.store.Update(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		standings, err = e.RecomputeTx(ctx, tx, competitionID)
		return err
	})
	if err != nil {
		return nil, errs.Wrap(op, err)
	}
	rev := held.Advance()
	e.Notify(ctx, competitionID, rev, standings)
	return standings, nil
}

// RecomputeTx recomputes inside a caller owned transaction. The caller must
// hold the competition in the gate.
func (e *Engine) RecomputeTx(ctx context.Context, tx repository.Tx, competitionID int64) ([]Standing, error) {
	start := time.Now()
	standings, err := e.recompute(ctx, tx, competitionID)
	if err != nil {
		metrics.RecordRecomputeError()
		e.logger.Error(ctx, "ranking recompute aborted",
			logger.Int64("competition_id", competitionID),
			logger.Error(err),
		)
		return nil, err
	}
	metrics.RecordRecompute(float64(time.Since(start).Microseconds()) / 1000)
	e.logger.Debug(ctx, "rankings recomputed",
		logger.Int64("competition_id", competitionID),
		logger.Int("participants", len(standings)),
	)
	return standings, nil
}

func (e *Engine) recompute(ctx context.Context, tx repository.Tx, competitionID int64) ([]Standing, error) {
	if _, err := tx.Competition(ctx, competitionID); err != nil {
		return nil, errs.WrapKind("ranking.competition", errs.ErrNotFound, err)
	}
	participants, err := tx.Participants(ctx, competitionID, false)
	if err != nil {
		return nil, err
	}
	judges, err := tx.Judges(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	scores, err := tx.Scores(ctx, repository.ScoreFilter{CompetitionID: competitionID})
	if err != nil {
		return nil, err
	}
	existing, err := tx.Rankings(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	previous := make(map[int64]int, len(existing))
	for _, r := range existing {
		previous[r.ParticipantID] = r.Position
	}

	standings, err := Compute(Input{
		CompetitionID: competitionID,
		Participants:  participants,
		Judges:        judges,
		Scores:        scores,
		Previous:      previous,
		Scale:         e.scale,
	})
	if err != nil {
		return nil, errs.WrapKind("ranking.compute", errs.ErrComputation, err)
	}

	keep := make([]int64, 0, len(standings))
	for i := range standings {
		if err := tx.SaveRanking(ctx, &standings[i].Ranking); err != nil {
			return nil, fmt.Errorf("save ranking for participant %d: %w", standings[i].Participant.ID, err)
		}
		keep = append(keep, standings[i].Participant.ID)
	}
	if err := tx.PruneRankings(ctx, competitionID, keep); err != nil {
		return nil, err
	}
	return standings, nil
}

// Notify forwards committed standings to the listener, if any.
func (e *Engine) Notify(ctx context.Context, competitionID, revision int64, standings []Standing) {
	if e.notifier != nil {
		e.notifier.RankingsChanged(ctx, competitionID, revision, standings)
	}
}

// Standings reads the stored rankings with their participants, without
// recomputing. Previous positions are not known here.
func (e *Engine) Standings(ctx context.Context, competitionID int64) ([]Standing, error) {
	var out []Standing
	err := e.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = ReadStandings(ctx, tx, competitionID)
		return err
	})
	if err != nil {
		return nil, errs.Wrap("ranking.standings", err)
	}
	return out, nil
}

// ReadStandings joins stored ranking rows with their participants.
func ReadStandings(ctx context.Context, tx repository.Tx, competitionID int64) ([]Standing, error) {
	if _, err := tx.Competition(ctx, competitionID); err != nil {
		return nil, err
	}
	rows, err := tx.Rankings(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	participants, err := tx.Participants(ctx, competitionID, true)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]model.Participant, len(participants))
	for _, p := range participants {
		byID[p.ID] = p
	}
	out := make([]Standing, 0, len(rows))
	for _, r := range rows {
		out = append(out, Standing{Ranking: r, Participant: byID[r.ParticipantID]})
	}
	return out, nil
}
