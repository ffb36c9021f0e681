package service

import (
	"context"
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/okian/arena/internal/adapters/fanout"
	"github.com/okian/arena/internal/adapters/live"
	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/domain/errs"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/ranking"
	"github.com/okian/arena/internal/domain/types"
	"github.com/okian/arena/pkg/logger"
)

const statPlaces = 2

// ScorecardRow is a competition parameter with the judge's mark, if any.
type ScorecardRow struct {
	Parameter types.ParameterEntry `json:"parameter"`
	Score     *types.ScoreEntry    `json:"score"`
}

// Scorecard is what one judge has marked for one participant.
type Scorecard struct {
	CompetitionID   int64                  `json:"competitionId"`
	CompetitionName string                 `json:"competitionName"`
	JudgeID         int64                  `json:"judgeId"`
	Participant     types.ParticipantEntry `json:"participant"`
	Rows            []ScorecardRow         `json:"rows"`
	Completed       int                    `json:"completed"`
	TotalResult     float64                `json:"totalResult"`
}

// ValueStats summarizes a set of marks.
type ValueStats struct {
	Count         int            `json:"count"`
	MinValue      float64        `json:"minValue"`
	MaxValue      float64        `json:"maxValue"`
	AverageValue  float64        `json:"averageValue"`
	AverageResult float64        `json:"averageResult"`
	Distribution  map[string]int `json:"distribution"`
}

// CompetitionStats is ValueStats for one competition.
type CompetitionStats struct {
	CompetitionID   int64  `json:"competitionId"`
	CompetitionName string `json:"competitionName"`
	ValueStats
}

// JudgeStatistics summarizes a judge's marking.
type JudgeStatistics struct {
	JudgeID      int64              `json:"judgeId"`
	Overall      ValueStats         `json:"overall"`
	Competitions []CompetitionStats `json:"competitions,omitempty"`
}

// JudgeColumn is one judge's marks in a comparison, keyed by parameter id.
type JudgeColumn struct {
	JudgeID   int64                      `json:"judgeId"`
	JudgeName string                     `json:"judgeName"`
	Scores    map[int64]types.ScoreEntry `json:"scores"`
}

// Comparison lines up every judge's marks for one participant.
type Comparison struct {
	CompetitionID int64                  `json:"competitionId"`
	Participant   types.ParticipantEntry `json:"participant"`
	Parameters    []types.ParameterEntry `json:"parameters"`
	Judges        []JudgeColumn          `json:"judges"`
	Averages      map[int64]float64      `json:"averages"`
}

// authorizeRead allows admins and judges assigned to the competition.
func authorizeRead(op string, p model.Principal, competitionID int64) error {
	if p.UserID == 0 {
		return errs.NewKind(op, errs.ErrUnauthenticated, "no principal")
	}
	if !p.CanJudge(competitionID) {
		return errs.NewKind(op, errs.ErrAuthorization, "user %d may not access competition %d", p.UserID, competitionID)
	}
	return nil
}

// Rankings returns the stored leaderboard of a competition.
func (s *Service) Rankings(ctx context.Context, competitionID int64) ([]types.RankingEntry, error) {
	const op = "service.rankings"
	standings, err := s.engine.Standings(ctx, competitionID)
	if err != nil {
		return nil, errs.Wrap(op, err)
	}
	return fanout.RankingEntries(standings), nil
}

// Recalculate rebuilds a competition's rankings and pushes them.
func (s *Service) Recalculate(ctx context.Context, p model.Principal, competitionID int64) ([]types.RankingEntry, error) {
	const op = "service.recalculate"
	if err := authorizeRead(op, p, competitionID); err != nil {
		return nil, err
	}
	standings, err := s.engine.Recompute(ctx, competitionID)
	if err != nil {
		return nil, errs.Wrap(op, err)
	}
	s.logger.Info(ctx, "rankings recalculated",
		logger.Int64("competition_id", competitionID),
		logger.Int64("user_id", p.UserID))
	return fanout.RankingEntries(standings), nil
}

// ForceSync recomputes and re-pushes a whole competition.
func (s *Service) ForceSync(ctx context.Context, p model.Principal, competitionID int64) (fanout.Report, error) {
	const op = "service.force_sync"
	if err := authorizeRead(op, p, competitionID); err != nil {
		return fanout.Report{}, err
	}
	report, err := s.syncer.ForceSync(ctx, competitionID)
	if err != nil {
		return report, errs.Wrap(op, err)
	}
	return report, nil
}

// SyncStatus returns the latest mirror push outcome. A competition never
// pushed reports not synced.
func (s *Service) SyncStatus(ctx context.Context, competitionID int64) (types.SyncStatusEntry, error) {
	const op = "service.sync_status"
	var st model.SyncStatus
	err := s.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.Competition(ctx, competitionID); err != nil {
			return err
		}
		var err error
		st, err = tx.SyncStatus(ctx, competitionID)
		if errs.KindOf(err) == errs.ErrNotFound {
			st, err = model.SyncStatus{CompetitionID: competitionID}, nil
		}
		return err
	})
	if err != nil {
		return types.SyncStatusEntry{}, errs.Wrap(op, err)
	}
	return types.NewSyncStatusEntry(st), nil
}

// ScoreEdits returns the audit trail of a score, oldest first.
func (s *Service) ScoreEdits(ctx context.Context, p model.Principal, scoreID int64) ([]types.ScoreEditEntry, error) {
	const op = "service.score_edits"
	var (
		sc    model.Score
		edits []model.ScoreEdit
	)
	deleted := false
	err := s.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		sc, err = tx.ScoreByID(ctx, scoreID)
		switch {
		case errors.Is(err, repository.ErrNotFound) && p.IsAdmin():
			deleted = true
		case err != nil:
			return err
		}
		edits, err = tx.ScoreEdits(ctx, scoreID)
		return err
	})
	if err != nil {
		return nil, errs.Wrap(op, err)
	}
	if deleted {
		// Deleted scores keep their history; only admins can still reach it.
		if len(edits) == 0 {
			return nil, errs.Wrap(op, repository.ErrNotFound)
		}
	} else if err := authorizeRead(op, p, sc.Key.CompetitionID); err != nil {
		return nil, err
	}
	out := make([]types.ScoreEditEntry, 0, len(edits))
	for _, e := range edits {
		out = append(out, types.NewScoreEditEntry(e))
	}
	return out, nil
}

// Scorecard returns the parameters of a competition with one judge's marks
// for a participant. Judges see their own card; admins pick the judge.
func (s *Service) Scorecard(ctx context.Context, p model.Principal, competitionID, participantID, judgeID int64) (Scorecard, error) {
	const op = "service.scorecard"
	if err := authorizeRead(op, p, competitionID); err != nil {
		return Scorecard{}, err
	}
	if judgeID == 0 {
		judgeID = p.UserID
	}
	if judgeID != p.UserID && !p.IsAdmin() {
		return Scorecard{}, errs.NewKind(op, errs.ErrAuthorization, "user %d may not read judge %d", p.UserID, judgeID)
	}

	card := Scorecard{CompetitionID: competitionID, JudgeID: judgeID}
	err := s.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		c, err := tx.Competition(ctx, competitionID)
		if err != nil {
			return err
		}
		card.CompetitionName = c.Name
		part, err := tx.Participant(ctx, competitionID, participantID)
		if err != nil {
			return err
		}
		card.Participant = types.NewParticipantEntry(part)
		params, err := tx.Parameters(ctx, competitionID)
		if err != nil {
			return err
		}
		scores, err := tx.Scores(ctx, repository.ScoreFilter{CompetitionID: competitionID, ParticipantID: participantID, JudgeID: judgeID})
		if err != nil {
			return err
		}
		byParam := make(map[int64]model.Score, len(scores))
		for _, sc := range scores {
			byParam[sc.Key.ParameterID] = sc
		}
		total := decimal.Zero
		card.Rows = make([]ScorecardRow, 0, len(params))
		for _, cp := range params {
			row := ScorecardRow{Parameter: types.NewParameterEntry(cp)}
			if sc, ok := byParam[cp.Parameter.ID]; ok {
				e := types.NewScoreEntry(sc)
				row.Score = &e
				card.Completed++
				total = total.Add(sc.CalculatedResult)
			}
			card.Rows = append(card.Rows, row)
		}
		card.TotalResult = total.InexactFloat64()
		return nil
	})
	if err != nil {
		return Scorecard{}, errs.Wrap(op, err)
	}
	return card, nil
}

// JudgeStatistics summarizes a judge's marks, in one competition or across
// all of the judge's competitions.
func (s *Service) JudgeStatistics(ctx context.Context, p model.Principal, judgeID, competitionID int64) (JudgeStatistics, error) {
	const op = "service.judge_statistics"
	if p.UserID == 0 {
		return JudgeStatistics{}, errs.NewKind(op, errs.ErrUnauthenticated, "no principal")
	}
	if !p.IsAdmin() && (p.Role != model.RoleJudge || p.UserID != judgeID) {
		return JudgeStatistics{}, errs.NewKind(op, errs.ErrAuthorization, "user %d may not read judge %d", p.UserID, judgeID)
	}

	out := JudgeStatistics{JudgeID: judgeID}
	err := s.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		if competitionID != 0 {
			if _, err := tx.Competition(ctx, competitionID); err != nil {
				return err
			}
		}
		scores, err := tx.Scores(ctx, repository.ScoreFilter{CompetitionID: competitionID, JudgeID: judgeID})
		if err != nil {
			return err
		}
		out.Overall = valueStats(scores)
		if competitionID != 0 {
			return nil
		}

		byComp := make(map[int64][]model.Score)
		for _, sc := range scores {
			byComp[sc.Key.CompetitionID] = append(byComp[sc.Key.CompetitionID], sc)
		}
		ids := make([]int64, 0, len(byComp))
		for id := range byComp {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			c, err := tx.Competition(ctx, id)
			if err != nil {
				return err
			}
			out.Competitions = append(out.Competitions, CompetitionStats{
				CompetitionID:   id,
				CompetitionName: c.Name,
				ValueStats:      valueStats(byComp[id]),
			})
		}
		return nil
	})
	if err != nil {
		return JudgeStatistics{}, errs.Wrap(op, err)
	}
	return out, nil
}

// valueStats computes count, range, means and the distribution of marks
// rounded to whole numbers.
func valueStats(scores []model.Score) ValueStats {
	st := ValueStats{Count: len(scores), Distribution: map[string]int{}}
	if len(scores) == 0 {
		return st
	}
	minV, maxV := scores[0].Value, scores[0].Value
	values := decimal.Zero
	results := decimal.Zero
	for _, sc := range scores {
		minV = decimal.Min(minV, sc.Value)
		maxV = decimal.Max(maxV, sc.Value)
		values = values.Add(sc.Value)
		results = results.Add(sc.CalculatedResult)
		st.Distribution[sc.Value.Round(0).String()]++
	}
	n := decimal.NewFromInt(int64(len(scores)))
	st.MinValue = minV.InexactFloat64()
	st.MaxValue = maxV.InexactFloat64()
	st.AverageValue = values.DivRound(n, statPlaces+4).Round(statPlaces).InexactFloat64()
	st.AverageResult = results.DivRound(n, statPlaces+4).Round(statPlaces).InexactFloat64()
	return st
}

// CompareJudges lines up every judge's marks for a participant with the
// per-parameter mean.
func (s *Service) CompareJudges(ctx context.Context, p model.Principal, competitionID, participantID int64) (Comparison, error) {
	const op = "service.compare_judges"
	if err := authorizeRead(op, p, competitionID); err != nil {
		return Comparison{}, err
	}

	out := Comparison{CompetitionID: competitionID, Averages: map[int64]float64{}}
	err := s.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.Competition(ctx, competitionID); err != nil {
			return err
		}
		part, err := tx.Participant(ctx, competitionID, participantID)
		if err != nil {
			return err
		}
		out.Participant = types.NewParticipantEntry(part)
		params, err := tx.Parameters(ctx, competitionID)
		if err != nil {
			return err
		}
		for _, cp := range params {
			out.Parameters = append(out.Parameters, types.NewParameterEntry(cp))
		}
		judges, err := tx.Judges(ctx, competitionID)
		if err != nil {
			return err
		}
		scores, err := tx.Scores(ctx, repository.ScoreFilter{CompetitionID: competitionID, ParticipantID: participantID})
		if err != nil {
			return err
		}

		columns := make(map[int64]*JudgeColumn, len(judges))
		order := make([]int64, 0, len(judges))
		column := func(id int64, name string) *JudgeColumn {
			c, ok := columns[id]
			if !ok {
				c = &JudgeColumn{JudgeID: id, JudgeName: name, Scores: map[int64]types.ScoreEntry{}}
				columns[id] = c
				order = append(order, id)
			}
			return c
		}
		for _, j := range judges {
			column(j.JudgeID, j.Name())
		}
		sums := make(map[int64][]decimal.Decimal)
		for _, sc := range scores {
			column(sc.Key.JudgeID, "").Scores[sc.Key.ParameterID] = types.NewScoreEntry(sc)
			sums[sc.Key.ParameterID] = append(sums[sc.Key.ParameterID], sc.Value)
		}
		for _, id := range order {
			out.Judges = append(out.Judges, *columns[id])
		}
		for pid, values := range sums {
			avg := decimal.Sum(values[0], values[1:]...).
				DivRound(decimal.NewFromInt(int64(len(values))), statPlaces+4).
				Round(statPlaces)
			out.Averages[pid] = avg.InexactFloat64()
		}
		return nil
	})
	if err != nil {
		return Comparison{}, errs.Wrap(op, err)
	}
	return out, nil
}

// WatchRankings subscribes to a competition's leaderboard. The subscriber
// is primed with the current rankings at the current revision.
func (s *Service) WatchRankings(ctx context.Context, competitionID int64) (*live.Subscriber, error) {
	const op = "service.watch_rankings"
	held := s.gate.Lock(competitionID)
	defer held.Unlock()

	var standings []ranking.Standing
	err := s.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		standings, err = ranking.ReadStandings(ctx, tx, competitionID)
		return err
	})
	if err != nil {
		return nil, errs.Wrap(op, err)
	}
	rev := held.Revision()
	sub := s.hub.Join(types.RankingsTopic(competitionID), rev)
	msg := types.Message{
		Type:          types.MessageCurrentRankings,
		CompetitionID: competitionID,
		Revision:      rev,
		Data:          fanout.RankingEntries(standings),
	}
	if err := s.hub.Prime(sub, msg); err != nil {
		s.hub.Leave(sub)
		return nil, errs.Wrap(op, err)
	}
	return sub, nil
}

// WatchScores subscribes to one participant's marks, primed with every
// current mark.
func (s *Service) WatchScores(ctx context.Context, competitionID, participantID int64) (*live.Subscriber, error) {
	const op = "service.watch_scores"
	held := s.gate.Lock(competitionID)
	defer held.Unlock()

	var scores []model.Score
	err := s.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.Participant(ctx, competitionID, participantID); err != nil {
			return err
		}
		var err error
		scores, err = tx.Scores(ctx, repository.ScoreFilter{CompetitionID: competitionID, ParticipantID: participantID})
		return err
	})
	if err != nil {
		return nil, errs.Wrap(op, err)
	}
	rev := held.Revision()
	sub := s.hub.Join(types.ScoresTopic(competitionID, participantID), rev)
	msg := types.Message{
		Type:          types.MessageCurrentScores,
		CompetitionID: competitionID,
		ParticipantID: participantID,
		Revision:      rev,
		Data:          types.NewScoreEntries(scores),
	}
	if err := s.hub.Prime(sub, msg); err != nil {
		s.hub.Leave(sub)
		return nil, errs.Wrap(op, err)
	}
	return sub, nil
}
