package ranking_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/adapters/repository/storetest"
	"github.com/okian/arena/internal/domain/gate"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/ranking"
	"github.com/okian/arena/pkg/logger"
)

func init() {
	_ = logger.Init()
}

type recorder struct {
	mu        sync.Mutex
	revisions []int64
}

func (r *recorder) RankingsChanged(_ context.Context, _ int64, revision int64, _ []ranking.Standing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revisions = append(r.revisions, revision)
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func putScore(ctx context.Context, s repository.Store, k model.ScoreKey, result string) {
	err := s.Update(ctx, func(ctx context.Context, tx repository.Tx) error {
		sc := model.Score{Key: k, Value: d(result), CalculatedResult: d(result)}
		if existing, err := tx.Score(ctx, k); err == nil {
			sc.ID = existing.ID
		}
		return tx.SaveScore(ctx, &sc)
	})
	So(err, ShouldBeNil)
}

func TestEngine(t *testing.T) {
	Convey("Given a seeded competition", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		fx, err := storetest.Seed(ctx, store)
		So(err, ShouldBeNil)

		rec := &recorder{}
		engine := ranking.NewEngine(store, gate.New(), ranking.WithNotifier(rec))
		cid := fx.Competition.ID
		p1, p2, p3 := fx.Participants[0], fx.Participants[1], fx.Participants[2]
		j1, j2 := fx.JudgeIDs[0], fx.JudgeIDs[1]
		walk, piaffe := fx.Parameters[0].Parameter.ID, fx.Parameters[1].Parameter.ID
		key := func(p model.Participant, judge, param int64) model.ScoreKey {
			return model.ScoreKey{CompetitionID: cid, ParticipantID: p.ID, JudgeID: judge, ParameterID: param}
		}

		Convey("When nobody has scored", func() {
			standings, err := engine.Recompute(ctx, cid)
			So(err, ShouldBeNil)

			Convey("Then everyone ranks at zero in start order", func() {
				So(len(standings), ShouldEqual, 3)
				for i, st := range standings {
					So(st.Ranking.Position, ShouldEqual, i+1)
					So(st.Ranking.Percentage.IsZero(), ShouldBeTrue)
					So(len(st.Judges), ShouldEqual, 0)
				}
				So(standings[0].Participant.ID, ShouldEqual, p1.ID)
				So(standings[2].Participant.ID, ShouldEqual, p3.ID)
			})
		})

		Convey("When judge A gives 100% and judge B gives 50%", func() {
			putScore(ctx, store, key(p2, j1, walk), "10")
			putScore(ctx, store, key(p2, j2, walk), "4")
			putScore(ctx, store, key(p2, j2, piaffe), "6")
			putScore(ctx, store, key(p1, j1, walk), "7")
			putScore(ctx, store, key(p1, j2, walk), "7")

			standings, err := engine.Recompute(ctx, cid)
			So(err, ShouldBeNil)

			Convey("Then percentages average per judge before combining", func() {
				top := standings[0]
				So(top.Participant.ID, ShouldEqual, p2.ID)
				So(top.Ranking.Percentage.StringFixed(2), ShouldEqual, "75.00")
				So(top.Ranking.Average.StringFixed(2), ShouldEqual, "7.50")
				So(len(top.Judges), ShouldEqual, 2)

				So(standings[1].Participant.ID, ShouldEqual, p1.ID)
				So(standings[1].Ranking.Percentage.StringFixed(2), ShouldEqual, "70.00")
				So(standings[2].Participant.ID, ShouldEqual, p3.ID)
			})

			Convey("Then the rows are persisted by position", func() {
				got, err := engine.Standings(ctx, cid)
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 3)
				So(got[0].Participant.Horse.Name, ShouldEqual, p2.Horse.Name)
				So(got[0].Ranking.Position, ShouldEqual, 1)
			})

			Convey("Then recomputing again leaves the rows untouched and records previous positions", func() {
				again, err := engine.Recompute(ctx, cid)
				So(err, ShouldBeNil)
				for i := range again {
					So(again[i].Participant.ID, ShouldEqual, standings[i].Participant.ID)
					So(again[i].Ranking.Percentage.Equal(standings[i].Ranking.Percentage), ShouldBeTrue)
					So(again[i].Ranking.UpdatedAt.Equal(standings[i].Ranking.UpdatedAt), ShouldBeTrue)
					So(*again[i].PreviousPosition, ShouldEqual, again[i].Ranking.Position)
				}
				So(rec.revisions, ShouldResemble, []int64{1, 2})
			})
		})

		Convey("When only one assigned judge scored", func() {
			putScore(ctx, store, key(p3, j1, walk), "8")
			standings, err := engine.Recompute(ctx, cid)
			So(err, ShouldBeNil)

			Convey("Then the silent judge counts as zero", func() {
				So(standings[0].Participant.ID, ShouldEqual, p3.ID)
				So(standings[0].Ranking.Percentage.StringFixed(2), ShouldEqual, "40.00")
				So(len(standings[0].Judges), ShouldEqual, 2)
			})
		})

		Convey("When two participants tie", func() {
			putScore(ctx, store, key(p3, j1, walk), "6")
			putScore(ctx, store, key(p3, j2, walk), "6")
			putScore(ctx, store, key(p2, j1, walk), "6")
			putScore(ctx, store, key(p2, j2, walk), "6")
			standings, err := engine.Recompute(ctx, cid)
			So(err, ShouldBeNil)

			Convey("Then fetch order breaks the tie and positions stay distinct", func() {
				So(standings[0].Participant.ID, ShouldEqual, p2.ID)
				So(standings[1].Participant.ID, ShouldEqual, p3.ID)
				So(standings[0].Ranking.Position, ShouldEqual, 1)
				So(standings[1].Ranking.Position, ShouldEqual, 2)
			})
		})

		Convey("When a ranked participant withdraws", func() {
			_, err := engine.Recompute(ctx, cid)
			So(err, ShouldBeNil)
			So(store.Update(ctx, func(ctx context.Context, tx repository.Tx) error {
				p := p1
				p.Withdrawn = true
				return tx.SaveParticipant(ctx, &p)
			}), ShouldBeNil)

			standings, err := engine.Recompute(ctx, cid)
			So(err, ShouldBeNil)

			Convey("Then they leave the rankings", func() {
				So(len(standings), ShouldEqual, 2)
				for _, st := range standings {
					So(st.Participant.ID, ShouldNotEqual, p1.ID)
				}
				got, err := engine.Standings(ctx, cid)
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 2)
			})
		})

		Convey("When the competition does not exist", func() {
			_, err := engine.Recompute(ctx, cid+999)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestCompute(t *testing.T) {
	Convey("Given scores and an invalid scale", t, func() {
		in := ranking.Input{
			CompetitionID: 1,
			Participants:  []model.Participant{{ID: 1}},
			Scores: []model.Score{{Key: model.ScoreKey{ParticipantID: 1, JudgeID: 5}, CalculatedResult: d("7")}},
			Scale:         decimal.Zero,
		}

		Convey("Compute fails rather than producing partial rankings", func() {
			_, err := ranking.Compute(in)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given a judge who is no longer assigned", t, func() {
		in := ranking.Input{
			CompetitionID: 1,
			Participants:  []model.Participant{{ID: 1}},
			Judges:        []model.CompetitionJudge{{JudgeID: 2}},
			Scores: []model.Score{
				{Key: model.ScoreKey{ParticipantID: 1, JudgeID: 2}, CalculatedResult: d("10")},
				{Key: model.ScoreKey{ParticipantID: 1, JudgeID: 9}, CalculatedResult: d("5")},
			},
			Scale: decimal.NewFromInt(10),
		}

		Convey("Their scores still count after the assigned judges", func() {
			out, err := ranking.Compute(in)
			So(err, ShouldBeNil)
			So(len(out[0].Judges), ShouldEqual, 2)
			So(out[0].Judges[1].JudgeID, ShouldEqual, int64(9))
			So(out[0].Ranking.Percentage.StringFixed(2), ShouldEqual, "75.00")
		})
	})
}
