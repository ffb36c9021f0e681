package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/domain/errs"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/ranking"
	"github.com/okian/arena/internal/domain/scoring"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
)

// Outcome is what a submission did to the stored score.
type Outcome string

// Submission outcomes.
const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeDuplicate Outcome = "duplicate"
)

// ScoreInput is one mark submitted by a judge. JudgeID defaults to the
// caller for judges; admins must name the judge they submit for.
type ScoreInput struct {
	CompetitionID int64
	ParticipantID int64
	JudgeID       int64
	ParameterID   int64
	Value         decimal.Decimal
	Comments      string
	EditReason    string
}

// BulkItem is one mark of a bulk submission.
type BulkItem struct {
	ParameterID int64
	Value       decimal.Decimal
	Comments    string
}

// BulkInput is a judge's batch for one participant.
type BulkInput struct {
	CompetitionID int64
	ParticipantID int64
	JudgeID       int64
	EditReason    string
	Scores        []BulkItem
}

// SubmitResult reports one stored mark.
type SubmitResult struct {
	Score    model.Score
	Outcome  Outcome
	Edit     *model.ScoreEdit
	Revision int64
}

// InboundUpdate is a mark written by a remote judge device to the mirror.
type InboundUpdate struct {
	UpdateID      string
	CompetitionID int64
	ParticipantID int64
	JudgeID       int64
	ParameterID   int64
	Value         decimal.Decimal
	Comments      string
	EditReason    string
}

// authorizeWrite resolves the judge a write is recorded under.
func authorizeWrite(op string, p model.Principal, competitionID, judgeID int64) (int64, error) {
	if p.UserID == 0 {
		return 0, errs.NewKind(op, errs.ErrUnauthenticated, "no principal")
	}
	if !p.CanJudge(competitionID) {
		return 0, errs.NewKind(op, errs.ErrAuthorization, "user %d may not judge competition %d", p.UserID, competitionID)
	}
	if judgeID == 0 {
		if p.IsAdmin() {
			return 0, errs.NewKind(op, errs.ErrValidation, "judge id is required for admin submissions")
		}
		return p.UserID, nil
	}
	if judgeID == p.UserID {
		return judgeID, nil
	}
	if !p.IsAdmin() {
		return 0, errs.NewKind(op, errs.ErrAuthorization, "user %d may not submit for judge %d", p.UserID, judgeID)
	}
	return judgeID, nil
}

// mark is a validated write request inside a transaction.
type mark struct {
	key      model.ScoreKey
	value    decimal.Decimal
	comments string
	reason   string
	editor   int64
}

type applied struct {
	score   model.Score
	outcome Outcome
	edit    *model.ScoreEdit
	written bool
}

// assignedJudge fails unless judgeID sits on the competition's panel.
func assignedJudge(ctx context.Context, tx repository.Tx, competitionID, judgeID int64) error {
	judges, err := tx.Judges(ctx, competitionID)
	if err != nil {
		return err
	}
	for _, j := range judges {
		if j.JudgeID == judgeID {
			return nil
		}
	}
	return errs.NewKind(fmt.Sprintf("judge %d", judgeID), errs.ErrNotFound, "judge %d is not assigned to competition %d", judgeID, competitionID)
}

// apply runs the per-score state machine: absent becomes created, a changed
// value becomes updated with one audit record, an identical value is
// unchanged and may only refresh the comments.
func apply(ctx context.Context, tx repository.Tx, m mark) (applied, error) {
	if _, err := tx.Competition(ctx, m.key.CompetitionID); err != nil {
		return applied{}, errs.WrapKind("competition", errs.ErrNotFound, err)
	}
	if _, err := tx.Participant(ctx, m.key.CompetitionID, m.key.ParticipantID); err != nil {
		return applied{}, errs.WrapKind(fmt.Sprintf("participant %d", m.key.ParticipantID), errs.ErrNotFound, err)
	}
	if err := assignedJudge(ctx, tx, m.key.CompetitionID, m.key.JudgeID); err != nil {
		return applied{}, err
	}
	param, err := tx.Parameter(ctx, m.key.CompetitionID, m.key.ParameterID)
	if err != nil {
		return applied{}, errs.WrapKind(fmt.Sprintf("parameter %d", m.key.ParameterID), errs.ErrNotFound, err)
	}
	res, err := scoring.Score(scoring.Input{Parameter: param, Value: m.value})
	if err != nil {
		return applied{}, err
	}

	existing, err := tx.Score(ctx, m.key)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		sc := model.Score{Key: m.key, Value: res.Value, CalculatedResult: res.CalculatedResult, Comments: m.comments}
		if err := tx.SaveScore(ctx, &sc); err != nil {
			return applied{}, err
		}
		return applied{score: sc, outcome: OutcomeCreated, written: true}, nil
	case err != nil:
		return applied{}, err
	}

	if existing.Value.Equal(res.Value) {
		if existing.Comments == m.comments {
			return applied{score: existing, outcome: OutcomeUnchanged}, nil
		}
		existing.Comments = m.comments
		if err := tx.SaveScore(ctx, &existing); err != nil {
			return applied{}, err
		}
		return applied{score: existing, outcome: OutcomeUnchanged, written: true}, nil
	}

	reason := m.reason
	if reason == "" {
		reason = fmt.Sprintf("value changed from %s to %s", existing.Value.StringFixed(1), res.Value.StringFixed(1))
	}
	edit := model.ScoreEdit{
		ScoreID:        existing.ID,
		EditorID:       m.editor,
		PreviousValue:  existing.Value,
		PreviousResult: existing.CalculatedResult,
		Reason:         reason,
	}
	existing.Value = res.Value
	existing.CalculatedResult = res.CalculatedResult
	existing.Comments = m.comments
	existing.IsEdited = true
	existing.EditReason = reason
	if err := tx.SaveScore(ctx, &existing); err != nil {
		return applied{}, err
	}
	if err := tx.AddScoreEdit(ctx, &edit); err != nil {
		return applied{}, err
	}
	return applied{score: existing, outcome: OutcomeUpdated, edit: &edit, written: true}, nil
}

// SubmitScore stores one mark and recomputes the competition's rankings in
// the same transaction. Sync jobs are queued after the commit.
func (s *Service) SubmitScore(ctx context.Context, p model.Principal, in ScoreInput) (SubmitResult, error) {
	const op = "service.submit_score"
	judgeID, err := authorizeWrite(op, p, in.CompetitionID, in.JudgeID)
	if err != nil {
		return SubmitResult{}, s.rejected(ctx, op, err)
	}
	m := mark{
		key:      model.ScoreKey{CompetitionID: in.CompetitionID, ParticipantID: in.ParticipantID, JudgeID: judgeID, ParameterID: in.ParameterID},
		value:    in.Value,
		comments: in.Comments,
		reason:   in.EditReason,
		editor:   p.UserID,
	}

	held := s.gate.Lock(in.CompetitionID)
	defer held.Unlock()

	var (
		a         applied
		standings []ranking.Standing
	)
	err = s.store.Update(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		if a, err = apply(ctx, tx, m); err != nil || !a.written {
			return err
		}
		standings, err = s.engine.RecomputeTx(ctx, tx, in.CompetitionID)
		return err
	})
	if err != nil {
		return SubmitResult{}, s.rejected(ctx, op, err)
	}

	res := SubmitResult{Score: a.score, Outcome: a.outcome, Edit: a.edit, Revision: held.Revision()}
	metrics.RecordScoreSubmitted(string(a.outcome))
	if !a.written {
		return res, nil
	}
	res.Revision = held.Advance()
	s.engine.Notify(ctx, in.CompetitionID, res.Revision, standings)
	if err := s.syncer.PushScore(ctx, res.Revision, a.score); err != nil {
		s.logger.Warn(ctx, "score push not queued", logger.Int64("score_id", a.score.ID), logger.Error(err))
	}
	s.logger.Debug(ctx, "score stored",
		logger.Int64("competition_id", in.CompetitionID),
		logger.Int64("participant_id", in.ParticipantID),
		logger.Int64("judge_id", judgeID),
		logger.Int64("parameter_id", in.ParameterID),
		logger.String("outcome", string(a.outcome)),
		logger.Int64("revision", res.Revision),
	)
	return res, nil
}

// SubmitBulk stores a judge's marks for one participant. Any invalid mark
// aborts the whole batch.
func (s *Service) SubmitBulk(ctx context.Context, p model.Principal, in BulkInput) ([]SubmitResult, error) {
	const op = "service.submit_bulk"
	judgeID, err := authorizeWrite(op, p, in.CompetitionID, in.JudgeID)
	if err != nil {
		return nil, s.rejected(ctx, op, err)
	}
	if len(in.Scores) == 0 {
		return nil, s.rejected(ctx, op, errs.NewKind(op, errs.ErrValidation, "no scores"))
	}
	seen := make(map[int64]bool, len(in.Scores))
	for _, item := range in.Scores {
		if seen[item.ParameterID] {
			return nil, s.rejected(ctx, op, errs.NewKind(op, errs.ErrValidation, "parameter %d submitted twice", item.ParameterID))
		}
		seen[item.ParameterID] = true
	}

	held := s.gate.Lock(in.CompetitionID)
	defer held.Unlock()

	results := make([]applied, 0, len(in.Scores))
	var standings []ranking.Standing
	written := false
	err = s.store.Update(ctx, func(ctx context.Context, tx repository.Tx) error {
		results = results[:0]
		written = false
		for i, item := range in.Scores {
			a, err := apply(ctx, tx, mark{
				key:      model.ScoreKey{CompetitionID: in.CompetitionID, ParticipantID: in.ParticipantID, JudgeID: judgeID, ParameterID: item.ParameterID},
				value:    item.Value,
				comments: item.Comments,
				reason:   in.EditReason,
				editor:   p.UserID,
			})
			if err != nil {
				return fmt.Errorf("score %d: %w", i, err)
			}
			written = written || a.written
			results = append(results, a)
		}
		if !written {
			return nil
		}
		var err error
		standings, err = s.engine.RecomputeTx(ctx, tx, in.CompetitionID)
		return err
	})
	if err != nil {
		return nil, s.rejected(ctx, op, err)
	}

	rev := held.Revision()
	if written {
		rev = held.Advance()
		s.engine.Notify(ctx, in.CompetitionID, rev, standings)
		if err := s.syncer.PushParticipantScores(ctx, rev, in.CompetitionID, in.ParticipantID, &judgeID); err != nil {
			s.logger.Warn(ctx, "participant scores push not queued", logger.Int64("participant_id", in.ParticipantID), logger.Error(err))
		}
	}
	out := make([]SubmitResult, 0, len(results))
	for _, a := range results {
		metrics.RecordScoreSubmitted(string(a.outcome))
		out = append(out, SubmitResult{Score: a.score, Outcome: a.outcome, Edit: a.edit, Revision: rev})
	}
	return out, nil
}

// deletedReason marks the audit record written when a score is removed.
const deletedReason = "score deleted"

// DeleteScore removes a mark and leaves its audit trail in place, closed by
// a final record of the deleted value. Admins may delete any mark, judges
// only their own.
func (s *Service) DeleteScore(ctx context.Context, p model.Principal, scoreID int64) error {
	const op = "service.delete_score"
	if p.UserID == 0 {
		return s.rejected(ctx, op, errs.NewKind(op, errs.ErrUnauthenticated, "no principal"))
	}

	var sc model.Score
	err := s.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		sc, err = tx.ScoreByID(ctx, scoreID)
		return err
	})
	if err != nil {
		return s.rejected(ctx, op, errs.WrapKind(op, errs.ErrNotFound, err))
	}
	cid := sc.Key.CompetitionID
	if !p.IsAdmin() && (!p.AssignedTo(cid) || sc.Key.JudgeID != p.UserID) {
		return s.rejected(ctx, op, errs.NewKind(op, errs.ErrAuthorization, "user %d may not delete score %d", p.UserID, scoreID))
	}

	held := s.gate.Lock(cid)
	defer held.Unlock()

	var standings []ranking.Standing
	err = s.store.Update(ctx, func(ctx context.Context, tx repository.Tx) error {
		cur, err := tx.ScoreByID(ctx, scoreID)
		if err != nil {
			return errs.WrapKind(op, errs.ErrNotFound, err)
		}
		if err := tx.AddScoreEdit(ctx, &model.ScoreEdit{
			ScoreID:        cur.ID,
			EditorID:       p.UserID,
			PreviousValue:  cur.Value,
			PreviousResult: cur.CalculatedResult,
			Reason:         deletedReason,
		}); err != nil {
			return err
		}
		if err := tx.DeleteScore(ctx, scoreID); err != nil {
			return errs.WrapKind(op, errs.ErrNotFound, err)
		}
		standings, err = s.engine.RecomputeTx(ctx, tx, cid)
		return err
	})
	if err != nil {
		return s.rejected(ctx, op, err)
	}
	rev := held.Advance()
	metrics.RecordScoreSubmitted("deleted")
	s.engine.Notify(ctx, cid, rev, standings)
	if err := s.syncer.PushScoreDeleted(ctx, rev, sc); err != nil {
		s.logger.Warn(ctx, "score delete push not queued", logger.Int64("score_id", scoreID), logger.Error(err))
	}
	return nil
}

// HandleInbound applies a device update through the same path as a local
// submission, at most once per update id.
func (s *Service) HandleInbound(ctx context.Context, u InboundUpdate) (SubmitResult, error) {
	const op = "service.handle_inbound"
	if u.UpdateID != "" && s.deduper.SeenAndRecord(ctx, u.UpdateID) {
		metrics.RecordInboundUpdate("duplicate")
		s.logger.Debug(ctx, "duplicate inbound update skipped", logger.String("update_id", u.UpdateID))
		return SubmitResult{Outcome: OutcomeDuplicate}, nil
	}

	res, err := s.handleInbound(ctx, u)
	if err != nil {
		if u.UpdateID != "" {
			s.deduper.Unrecord(ctx, u.UpdateID)
		}
		metrics.RecordInboundUpdate("rejected")
		return SubmitResult{}, errs.Wrap(op, err)
	}
	metrics.RecordInboundUpdate(string(res.Outcome))
	return res, nil
}

func (s *Service) handleInbound(ctx context.Context, u InboundUpdate) (SubmitResult, error) {
	if u.CompetitionID == 0 || u.ParticipantID == 0 || u.JudgeID == 0 || u.ParameterID == 0 {
		return SubmitResult{}, errs.NewKind("inbound", errs.ErrValidation, "competition, participant, judge and parameter are required")
	}
	judge, err := s.directory.Judge(ctx, u.JudgeID)
	if err != nil {
		return SubmitResult{}, err
	}
	return s.SubmitScore(ctx, judge, ScoreInput{
		CompetitionID: u.CompetitionID,
		ParticipantID: u.ParticipantID,
		ParameterID:   u.ParameterID,
		Value:         u.Value,
		Comments:      u.Comments,
		EditReason:    u.EditReason,
	})
}

// rejected counts and logs a failed mutation and returns err with op.
func (s *Service) rejected(ctx context.Context, op string, err error) error {
	reason := "internal"
	if kind := errs.KindOf(err); kind != nil {
		reason = kind.Error()
	}
	metrics.RecordScoreRejected(reason)
	s.logger.Debug(ctx, "mutation rejected", logger.String("op", op), logger.String("reason", reason), logger.Error(err))
	return errs.Wrap(op, err)
}
