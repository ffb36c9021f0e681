// Package storetest holds behaviour checks shared by every repository.Store.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/domain/model"
)

// Fixture ids created by Seed.
type Fixture struct {
	Competition  model.Competition
	Participants []model.Participant
	Parameters   []model.CompetitionParameter
	JudgeIDs     []int64
}

// Seed creates a competition with three participants, two judges and two
// parameters (the second with a coefficient override).
func Seed(ctx context.Context, s repository.Store) (Fixture, error) {
	var fx Fixture
	err := s.Update(ctx, func(ctx context.Context, tx repository.Tx) error {
		fx.Competition = model.Competition{Name: "Grand Prix", Status: model.StatusInProgress}
		if err := tx.SaveCompetition(ctx, &fx.Competition); err != nil {
			return err
		}
		for i, name := range []string{"Dalera", "Bella Rose", "Valegro"} {
			p := model.Participant{
				CompetitionID: fx.Competition.ID,
				Rider:         model.Rider{FirstName: "Rider", LastName: name, Nationality: "GER"},
				Horse:         model.Horse{Name: name, Breed: "Trakehner"},
				Number:        100 + i,
				Order:         i + 1,
			}
			if err := tx.SaveParticipant(ctx, &p); err != nil {
				return err
			}
			fx.Participants = append(fx.Participants, p)
		}
		for _, jid := range []int64{9001, 9002} {
			j := model.CompetitionJudge{CompetitionID: fx.Competition.ID, JudgeID: jid, LastName: "Judge"}
			if err := tx.SaveJudge(ctx, j); err != nil {
				return err
			}
			fx.JudgeIDs = append(fx.JudgeIDs, jid)
		}
		two := 2
		for i, cp := range []model.CompetitionParameter{
			{Parameter: model.EvaluationParameter{Name: "Walk", Coefficient: 1, MaxValue: 10}},
			{Parameter: model.EvaluationParameter{Name: "Piaffe", Coefficient: 1, MaxValue: 10}, CustomCoefficient: &two},
		} {
			cp.CompetitionID = fx.Competition.ID
			cp.Order = i + 1
			if err := tx.SaveParameter(ctx, &cp); err != nil {
				return err
			}
			fx.Parameters = append(fx.Parameters, cp)
		}
		return nil
	})
	return fx, err
}

// Run exercises the Store contract against a fresh store from newStore.
func Run(t *testing.T, newStore func(t *testing.T) repository.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("catalog", func(t *testing.T) {
		s := newStore(t)
		fx, err := Seed(ctx, s)
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		err = s.View(ctx, func(ctx context.Context, tx repository.Tx) error {
			ps, err := tx.Participants(ctx, fx.Competition.ID, false)
			if err != nil {
				return err
			}
			if len(ps) != 3 || ps[0].Horse.Name != "Dalera" || ps[2].Rider.LastName != "Valegro" {
				t.Errorf("unexpected participants: %+v", ps)
			}
			params, err := tx.Parameters(ctx, fx.Competition.ID)
			if err != nil {
				return err
			}
			if len(params) != 2 || params[1].EffectiveCoefficient() != 2 {
				t.Errorf("unexpected parameters: %+v", params)
			}
			p, err := tx.Parameter(ctx, fx.Competition.ID, fx.Parameters[0].Parameter.ID)
			if err != nil || p.Parameter.Name != "Walk" {
				t.Errorf("parameter lookup: %+v %v", p, err)
			}
			js, err := tx.Judges(ctx, fx.Competition.ID)
			if err != nil || len(js) != 2 || js[0].JudgeID != 9001 {
				t.Errorf("judges: %+v %v", js, err)
			}
			cs, err := tx.JudgeCompetitions(ctx, 9002)
			if err != nil || len(cs) != 1 || cs[0] != fx.Competition.ID {
				t.Errorf("judge competitions: %v %v", cs, err)
			}
			if _, err := tx.Participant(ctx, fx.Competition.ID+1000, ps[0].ID); !errors.Is(err, repository.ErrNotFound) {
				t.Errorf("expected not found for foreign competition, got %v", err)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("view: %v", err)
		}
	})

	t.Run("withdrawn participants are filtered", func(t *testing.T) {
		s := newStore(t)
		fx, err := Seed(ctx, s)
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		err = s.Update(ctx, func(ctx context.Context, tx repository.Tx) error {
			p := fx.Participants[1]
			p.Withdrawn = true
			return tx.SaveParticipant(ctx, &p)
		})
		if err != nil {
			t.Fatalf("withdraw: %v", err)
		}
		_ = s.View(ctx, func(ctx context.Context, tx repository.Tx) error {
			active, _ := tx.Participants(ctx, fx.Competition.ID, false)
			all, _ := tx.Participants(ctx, fx.Competition.ID, true)
			if len(active) != 2 || len(all) != 3 {
				t.Errorf("active=%d all=%d", len(active), len(all))
			}
			return nil
		})
	})

	t.Run("scores and edits", func(t *testing.T) {
		s := newStore(t)
		fx, err := Seed(ctx, s)
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		key := model.ScoreKey{
			CompetitionID: fx.Competition.ID,
			ParticipantID: fx.Participants[0].ID,
			JudgeID:       fx.JudgeIDs[0],
			ParameterID:   fx.Parameters[0].Parameter.ID,
		}
		var saved model.Score
		err = s.Update(ctx, func(ctx context.Context, tx repository.Tx) error {
			saved = model.Score{Key: key, Value: decimal.RequireFromString("7.5"), CalculatedResult: decimal.NewFromInt(8)}
			if err := tx.SaveScore(ctx, &saved); err != nil {
				return err
			}
			dup := model.Score{Key: key, Value: decimal.NewFromInt(1), CalculatedResult: decimal.NewFromInt(1)}
			if err := tx.SaveScore(ctx, &dup); !errors.Is(err, repository.ErrDuplicate) {
				t.Errorf("expected duplicate, got %v", err)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("save: %v", err)
		}
		if saved.ID == 0 || saved.CreatedAt.IsZero() {
			t.Fatalf("score not assigned id/timestamps: %+v", saved)
		}

		err = s.Update(ctx, func(ctx context.Context, tx repository.Tx) error {
			edit := model.ScoreEdit{
				ScoreID:        saved.ID,
				EditorID:       fx.JudgeIDs[0],
				PreviousValue:  saved.Value,
				PreviousResult: saved.CalculatedResult,
				Reason:         "typo",
			}
			if err := tx.AddScoreEdit(ctx, &edit); err != nil {
				return err
			}
			saved.Value = decimal.RequireFromString("6.0")
			saved.CalculatedResult = decimal.NewFromInt(6)
			saved.IsEdited = true
			return tx.SaveScore(ctx, &saved)
		})
		if err != nil {
			t.Fatalf("edit: %v", err)
		}

		_ = s.View(ctx, func(ctx context.Context, tx repository.Tx) error {
			got, err := tx.Score(ctx, key)
			if err != nil {
				t.Fatalf("score: %v", err)
			}
			if !got.Value.Equal(decimal.RequireFromString("6")) || !got.IsEdited {
				t.Errorf("unexpected score: %+v", got)
			}
			edits, err := tx.ScoreEdits(ctx, got.ID)
			if err != nil || len(edits) != 1 || !edits[0].PreviousValue.Equal(decimal.RequireFromString("7.5")) {
				t.Errorf("edits: %+v %v", edits, err)
			}
			list, err := tx.Scores(ctx, repository.ScoreFilter{CompetitionID: fx.Competition.ID})
			if err != nil || len(list) != 1 {
				t.Errorf("scores: %+v %v", list, err)
			}
			return nil
		})

		err = s.Update(ctx, func(ctx context.Context, tx repository.Tx) error {
			return tx.DeleteScore(ctx, saved.ID)
		})
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		_ = s.View(ctx, func(ctx context.Context, tx repository.Tx) error {
			if _, err := tx.Score(ctx, key); !errors.Is(err, repository.ErrNotFound) {
				t.Errorf("expected not found after delete, got %v", err)
			}
			edits, err := tx.ScoreEdits(ctx, saved.ID)
			if err != nil || len(edits) != 1 || edits[0].Reason != "typo" {
				t.Errorf("edits lost with the score: %+v %v", edits, err)
			}
			return nil
		})
	})

	t.Run("failed update rolls back", func(t *testing.T) {
		s := newStore(t)
		fx, err := Seed(ctx, s)
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		boom := errors.New("boom")
		err = s.Update(ctx, func(ctx context.Context, tx repository.Tx) error {
			r := model.Ranking{CompetitionID: fx.Competition.ID, ParticipantID: fx.Participants[0].ID, Position: 1}
			if err := tx.SaveRanking(ctx, &r); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		_ = s.View(ctx, func(ctx context.Context, tx repository.Tx) error {
			rs, _ := tx.Rankings(ctx, fx.Competition.ID)
			if len(rs) != 0 {
				t.Errorf("ranking leaked from failed transaction: %+v", rs)
			}
			return nil
		})
	})

	t.Run("rankings upsert and prune", func(t *testing.T) {
		s := newStore(t)
		fx, err := Seed(ctx, s)
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		cid := fx.Competition.ID
		err = s.Update(ctx, func(ctx context.Context, tx repository.Tx) error {
			for i, p := range fx.Participants {
				r := model.Ranking{
					CompetitionID: cid,
					ParticipantID: p.ID,
					Average:       decimal.RequireFromString("7.25"),
					Percentage:    decimal.RequireFromString("72.50"),
					Position:      3 - i,
				}
				if err := tx.SaveRanking(ctx, &r); err != nil {
					return err
				}
			}
			r := model.Ranking{CompetitionID: cid, ParticipantID: fx.Participants[0].ID, Position: 1,
				Average: decimal.NewFromInt(9), Percentage: decimal.NewFromInt(90)}
			if err := tx.SaveRanking(ctx, &r); err != nil {
				return err
			}
			return tx.PruneRankings(ctx, cid, []int64{fx.Participants[0].ID, fx.Participants[2].ID})
		})
		if err != nil {
			t.Fatalf("rankings: %v", err)
		}
		_ = s.View(ctx, func(ctx context.Context, tx repository.Tx) error {
			rs, err := tx.Rankings(ctx, cid)
			if err != nil || len(rs) != 2 {
				t.Fatalf("rankings: %+v %v", rs, err)
			}
			if rs[0].ParticipantID != fx.Participants[0].ID || !rs[0].Percentage.Equal(decimal.NewFromInt(90)) {
				t.Errorf("unexpected first row: %+v", rs[0])
			}
			return nil
		})
	})

	t.Run("unchanged rankings keep their timestamp", func(t *testing.T) {
		s := newStore(t)
		fx, err := Seed(ctx, s)
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		save := func(pct string) model.Ranking {
			r := model.Ranking{
				CompetitionID: fx.Competition.ID,
				ParticipantID: fx.Participants[0].ID,
				Average:       decimal.RequireFromString("7.25"),
				Percentage:    decimal.RequireFromString(pct),
				Position:      1,
			}
			if err := s.Update(ctx, func(ctx context.Context, tx repository.Tx) error {
				return tx.SaveRanking(ctx, &r)
			}); err != nil {
				t.Fatalf("save ranking: %v", err)
			}
			return r
		}
		stored := func() model.Ranking {
			var rs []model.Ranking
			_ = s.View(ctx, func(ctx context.Context, tx repository.Tx) error {
				rs, err = tx.Rankings(ctx, fx.Competition.ID)
				return err
			})
			if len(rs) != 1 {
				t.Fatalf("rankings: %+v %v", rs, err)
			}
			return rs[0]
		}

		first := save("72.50")
		before := stored()
		time.Sleep(5 * time.Millisecond)
		again := save("72.5")
		after := stored()
		if again.ID != first.ID || !after.UpdatedAt.Equal(before.UpdatedAt) || !again.UpdatedAt.Equal(before.UpdatedAt) {
			t.Errorf("no-op save touched the row: before=%+v after=%+v", before, after)
		}

		time.Sleep(5 * time.Millisecond)
		save("73.00")
		changed := stored()
		if !changed.UpdatedAt.After(before.UpdatedAt) || !changed.Percentage.Equal(decimal.NewFromInt(73)) {
			t.Errorf("changed ranking not written: %+v", changed)
		}
	})

	t.Run("read-only view rejects writes", func(t *testing.T) {
		s := newStore(t)
		err := s.View(ctx, func(ctx context.Context, tx repository.Tx) error {
			return tx.SaveSyncStatus(ctx, model.SyncStatus{CompetitionID: 1})
		})
		if err == nil {
			t.Errorf("expected write in view to fail")
		}
	})

	t.Run("sync status", func(t *testing.T) {
		s := newStore(t)
		fx, err := Seed(ctx, s)
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		err = s.Update(ctx, func(ctx context.Context, tx repository.Tx) error {
			return tx.SaveSyncStatus(ctx, model.SyncStatus{CompetitionID: fx.Competition.ID, ErrorMessage: "mirror down"})
		})
		if err != nil {
			t.Fatalf("save: %v", err)
		}
		_ = s.View(ctx, func(ctx context.Context, tx repository.Tx) error {
			st, err := tx.SyncStatus(ctx, fx.Competition.ID)
			if err != nil || st.IsSynced || st.ErrorMessage != "mirror down" {
				t.Errorf("sync status: %+v %v", st, err)
			}
			return nil
		})
	})
}
