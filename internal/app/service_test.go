package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/arena/internal/app"
	"github.com/okian/arena/internal/adapters/live"
	"github.com/okian/arena/internal/adapters/mirror"
	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/adapters/repository/storetest"
	"github.com/okian/arena/internal/domain/errs"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/types"
	"github.com/okian/arena/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

type harness struct {
	svc    *service.Service
	store  repository.Store
	mirror *mirror.Memory
	fx     storetest.Fixture
	admin  model.Principal
	judges []model.Principal
}

func newHarness(ctx context.Context, opts ...service.Option) *harness {
	store := repository.NewMemoryStore()
	fx, err := storetest.Seed(ctx, store)
	So(err, ShouldBeNil)
	m := mirror.NewMemory()
	svc := service.New(store, m, opts...)
	So(svc.Start(ctx), ShouldBeNil)

	h := &harness{
		svc:    svc,
		store:  store,
		mirror: m,
		fx:     fx,
		admin:  model.Principal{UserID: 1, Role: model.RoleAdmin},
	}
	for _, jid := range fx.JudgeIDs {
		h.judges = append(h.judges, model.Principal{UserID: jid, Role: model.RoleJudge, Competitions: []int64{fx.Competition.ID}})
	}
	return h
}

func (h *harness) stop(ctx context.Context) {
	_ = h.svc.Stop(ctx)
	_ = h.store.Close()
}

func (h *harness) input(participant, param int, value string) service.ScoreInput {
	return service.ScoreInput{
		CompetitionID: h.fx.Competition.ID,
		ParticipantID: h.fx.Participants[participant].ID,
		ParameterID:   h.fx.Parameters[param].Parameter.ID,
		Value:         decimal.RequireFromString(value),
	}
}

func (h *harness) syncStatus(ctx context.Context) types.SyncStatusEntry {
	st, err := h.svc.SyncStatus(ctx, h.fx.Competition.ID)
	So(err, ShouldBeNil)
	return st
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func next(sub *live.Subscriber) types.Message {
	select {
	case data := <-sub.C():
		var m types.Message
		_ = json.Unmarshal(data, &m)
		return m
	case <-time.After(2 * time.Second):
		return types.Message{}
	}
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()
		h := newHarness(ctx, service.WithSyncWorkers(2), service.WithDedupeSize(10))

		Convey("Then stats describe it", func() {
			stats := h.svc.GetStats(ctx)
			So(stats["started"], ShouldBeTrue)
			So(stats["syncWorkers"], ShouldEqual, 2)
			So(stats["dedupeSize"], ShouldEqual, int64(0))
			So(stats["scale"], ShouldEqual, 10.0)
		})

		Convey("Then Start and Stop are idempotent", func() {
			So(h.svc.Start(ctx), ShouldBeNil)
			So(h.svc.Stop(ctx), ShouldBeNil)
			So(h.svc.Stop(ctx), ShouldBeNil)
			So(h.svc.GetStats(ctx)["started"], ShouldBeFalse)
		})

		Reset(func() { h.stop(ctx) })
	})
}

func TestService_SubmitScore(t *testing.T) {
	Convey("Given a seeded competition", t, func() {
		ctx := context.Background()
		h := newHarness(ctx)
		cid := h.fx.Competition.ID

		Convey("When every judge gives every participant 8.0 on every parameter", func() {
			for _, j := range h.judges {
				for p := range h.fx.Participants {
					for k := range h.fx.Parameters {
						res, err := h.svc.SubmitScore(ctx, j, h.input(p, k, "8.0"))
						So(err, ShouldBeNil)
						So(res.Outcome, ShouldEqual, service.OutcomeCreated)
					}
				}
			}

			Convey("Then all three tie at 90%", func() {
				entries, err := h.svc.Rankings(ctx, cid)
				So(err, ShouldBeNil)
				So(len(entries), ShouldEqual, 3)
				for i, e := range entries {
					So(e.Position, ShouldEqual, i+1)
					So(e.Percentage, ShouldEqual, 90.0)
					So(e.Average, ShouldEqual, 9.0)
					So(e.ParticipantID, ShouldEqual, h.fx.Participants[i].ID)
				}
			})

			Convey("Then the coefficient override is clamped to the maximum", func() {
				card, err := h.svc.Scorecard(ctx, h.judges[0], cid, h.fx.Participants[0].ID, 0)
				So(err, ShouldBeNil)
				So(card.Completed, ShouldEqual, 2)
				So(card.Rows[1].Score.CalculatedResult, ShouldEqual, 10.0)
				So(card.TotalResult, ShouldEqual, 18.0)
			})

			Convey("Then the mirror eventually holds the rankings and is synced", func() {
				So(eventually(func() bool { return h.syncStatus(ctx).IsSynced }), ShouldBeTrue)
				var doc map[string]types.RankingEntry
				So(eventually(func() bool {
					ok, _ := h.mirror.Read(ctx, types.RankingsPath(cid), &doc)
					return ok && len(doc) == 3
				}), ShouldBeTrue)
			})
		})

		Convey("When a score is resubmitted with the same value", func() {
			first, err := h.svc.SubmitScore(ctx, h.judges[0], h.input(0, 0, "7.5"))
			So(err, ShouldBeNil)
			again, err := h.svc.SubmitScore(ctx, h.judges[0], h.input(0, 0, "7.5"))
			So(err, ShouldBeNil)

			Convey("Then nothing is written or audited", func() {
				So(again.Outcome, ShouldEqual, service.OutcomeUnchanged)
				So(again.Revision, ShouldEqual, first.Revision)
				edits, err := h.svc.ScoreEdits(ctx, h.admin, first.Score.ID)
				So(err, ShouldBeNil)
				So(edits, ShouldBeEmpty)
			})
		})

		Convey("When a score value changes", func() {
			first, err := h.svc.SubmitScore(ctx, h.judges[0], h.input(0, 0, "7.5"))
			So(err, ShouldBeNil)
			changed, err := h.svc.SubmitScore(ctx, h.judges[0], h.input(0, 0, "6.0"))
			So(err, ShouldBeNil)

			Convey("Then exactly one edit records the previous value", func() {
				So(changed.Outcome, ShouldEqual, service.OutcomeUpdated)
				So(changed.Score.ID, ShouldEqual, first.Score.ID)
				So(changed.Score.IsEdited, ShouldBeTrue)
				So(changed.Revision, ShouldEqual, first.Revision+1)
				edits, err := h.svc.ScoreEdits(ctx, h.judges[0], first.Score.ID)
				So(err, ShouldBeNil)
				So(len(edits), ShouldEqual, 1)
				So(edits[0].PreviousValue, ShouldEqual, 7.5)
				So(edits[0].EditorID, ShouldEqual, int64(9001))
				So(edits[0].Reason, ShouldEqual, "value changed from 7.5 to 6.0")
			})

			Convey("Then deleting it keeps the history and records the removal", func() {
				So(h.svc.DeleteScore(ctx, h.judges[0], first.Score.ID), ShouldBeNil)
				edits, err := h.svc.ScoreEdits(ctx, h.admin, first.Score.ID)
				So(err, ShouldBeNil)
				So(len(edits), ShouldEqual, 2)
				So(edits[0].PreviousValue, ShouldEqual, 7.5)
				So(edits[1].PreviousValue, ShouldEqual, 6.0)
				So(edits[1].Reason, ShouldEqual, "score deleted")

				_, err = h.svc.ScoreEdits(ctx, h.judges[0], first.Score.ID)
				So(errors.Is(err, errs.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When only the comment changes", func() {
			in := h.input(0, 0, "7.0")
			_, err := h.svc.SubmitScore(ctx, h.judges[0], in)
			So(err, ShouldBeNil)
			in.Comments = "lost rhythm"
			res, err := h.svc.SubmitScore(ctx, h.judges[0], in)
			So(err, ShouldBeNil)

			Convey("Then the score is unchanged but the comment is stored", func() {
				So(res.Outcome, ShouldEqual, service.OutcomeUnchanged)
				So(res.Score.Comments, ShouldEqual, "lost rhythm")
				So(res.Score.IsEdited, ShouldBeFalse)
			})
		})

		Convey("When the input is invalid", func() {
			_, err := h.svc.SubmitScore(ctx, h.judges[0], h.input(0, 0, "10.5"))
			So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
			_, err = h.svc.SubmitScore(ctx, h.judges[0], h.input(0, 0, "7.25"))
			So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)

			missing := h.input(0, 0, "7.0")
			missing.ParticipantID = 424242
			_, err = h.svc.SubmitScore(ctx, h.judges[0], missing)
			So(errors.Is(err, errs.ErrNotFound), ShouldBeTrue)

			Convey("Then nothing is stored", func() {
				entries, err := h.svc.Rankings(ctx, cid)
				So(err, ShouldBeNil)
				So(entries, ShouldBeEmpty)
			})
		})

		Reset(func() { h.stop(ctx) })
	})
}

func TestService_Authorization(t *testing.T) {
	Convey("Given principals of every kind", t, func() {
		ctx := context.Background()
		h := newHarness(ctx)
		cid := h.fx.Competition.ID
		in := h.input(0, 0, "7.0")

		Convey("Anonymous callers are unauthenticated", func() {
			_, err := h.svc.SubmitScore(ctx, model.Principal{}, in)
			So(errors.Is(err, errs.ErrUnauthenticated), ShouldBeTrue)
		})

		Convey("Viewers and unassigned judges are refused", func() {
			_, err := h.svc.SubmitScore(ctx, model.Principal{UserID: 5, Role: model.RoleViewer, Competitions: []int64{cid}}, in)
			So(errors.Is(err, errs.ErrAuthorization), ShouldBeTrue)
			_, err = h.svc.SubmitScore(ctx, model.Principal{UserID: 9001, Role: model.RoleJudge}, in)
			So(errors.Is(err, errs.ErrAuthorization), ShouldBeTrue)
		})

		Convey("A judge may not submit for another judge", func() {
			other := in
			other.JudgeID = 9002
			_, err := h.svc.SubmitScore(ctx, h.judges[0], other)
			So(errors.Is(err, errs.ErrAuthorization), ShouldBeTrue)
		})

		Convey("An admin may submit on behalf of a judge", func() {
			other := in
			other.JudgeID = 9002
			res, err := h.svc.SubmitScore(ctx, h.admin, other)
			So(err, ShouldBeNil)
			So(res.Score.Key.JudgeID, ShouldEqual, int64(9002))
		})

		Convey("Admin marks must name a judge on the panel", func() {
			for _, jid := range h.fx.JudgeIDs {
				full := h.input(0, 0, "10.0")
				full.JudgeID = jid
				_, err := h.svc.SubmitScore(ctx, h.admin, full)
				So(err, ShouldBeNil)
			}
			before, err := h.svc.Rankings(ctx, cid)
			So(err, ShouldBeNil)

			low := h.input(0, 0, "0.0")
			_, err = h.svc.SubmitScore(ctx, h.admin, low)
			So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)

			low.JudgeID = 424242
			_, err = h.svc.SubmitScore(ctx, h.admin, low)
			So(errors.Is(err, errs.ErrNotFound), ShouldBeTrue)

			_, err = h.svc.SubmitBulk(ctx, h.admin, service.BulkInput{
				CompetitionID: cid,
				ParticipantID: h.fx.Participants[0].ID,
				JudgeID:       424242,
				Scores:        []service.BulkItem{{ParameterID: h.fx.Parameters[0].Parameter.ID, Value: decimal.Zero}},
			})
			So(errors.Is(err, errs.ErrNotFound), ShouldBeTrue)

			after, err := h.svc.Rankings(ctx, cid)
			So(err, ShouldBeNil)
			So(after, ShouldResemble, before)
		})

		Convey("Only the owner or an admin may delete a score", func() {
			res, err := h.svc.SubmitScore(ctx, h.judges[0], in)
			So(err, ShouldBeNil)
			So(errors.Is(h.svc.DeleteScore(ctx, h.judges[1], res.Score.ID), errs.ErrAuthorization), ShouldBeTrue)
			So(h.svc.DeleteScore(ctx, h.judges[0], res.Score.ID), ShouldBeNil)
			So(errors.Is(h.svc.DeleteScore(ctx, h.admin, res.Score.ID), errs.ErrNotFound), ShouldBeTrue)
		})

		Convey("Judges read only their own statistics", func() {
			_, err := h.svc.JudgeStatistics(ctx, h.judges[0], 9002, 0)
			So(errors.Is(err, errs.ErrAuthorization), ShouldBeTrue)
			_, err = h.svc.Scorecard(ctx, h.judges[0], cid, h.fx.Participants[0].ID, 9002)
			So(errors.Is(err, errs.ErrAuthorization), ShouldBeTrue)
		})

		Reset(func() { h.stop(ctx) })
	})
}

func TestService_SubmitBulk(t *testing.T) {
	Convey("Given a judge submitting a batch", t, func() {
		ctx := context.Background()
		h := newHarness(ctx)
		cid := h.fx.Competition.ID
		pid := h.fx.Participants[1].ID
		items := []service.BulkItem{
			{ParameterID: h.fx.Parameters[0].Parameter.ID, Value: decimal.RequireFromString("6.5")},
			{ParameterID: h.fx.Parameters[1].Parameter.ID, Value: decimal.RequireFromString("4.0")},
		}

		Convey("When every mark is valid", func() {
			res, err := h.svc.SubmitBulk(ctx, h.judges[0], service.BulkInput{CompetitionID: cid, ParticipantID: pid, Scores: items})
			So(err, ShouldBeNil)

			Convey("Then all marks share one revision", func() {
				So(len(res), ShouldEqual, 2)
				So(res[0].Revision, ShouldEqual, res[1].Revision)
				So(res[1].Score.CalculatedResult.String(), ShouldEqual, "8")
			})

			Convey("Then the participant is ranked first", func() {
				entries, err := h.svc.Rankings(ctx, cid)
				So(err, ShouldBeNil)
				So(entries[0].ParticipantID, ShouldEqual, pid)
				// 7 and 8 from one judge, nothing yet from the other.
				So(entries[0].Percentage, ShouldEqual, 37.5)
			})
		})

		Convey("When one mark is invalid", func() {
			bad := append([]service.BulkItem{}, items...)
			bad[1].Value = decimal.RequireFromString("11")
			_, err := h.svc.SubmitBulk(ctx, h.judges[0], service.BulkInput{CompetitionID: cid, ParticipantID: pid, Scores: bad})

			Convey("Then nothing is stored", func() {
				So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
				card, err := h.svc.Scorecard(ctx, h.judges[0], cid, pid, 0)
				So(err, ShouldBeNil)
				So(card.Completed, ShouldEqual, 0)
			})
		})

		Convey("When the batch is empty or repeats a parameter", func() {
			_, err := h.svc.SubmitBulk(ctx, h.judges[0], service.BulkInput{CompetitionID: cid, ParticipantID: pid})
			So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
			_, err = h.svc.SubmitBulk(ctx, h.judges[0], service.BulkInput{CompetitionID: cid, ParticipantID: pid, Scores: []service.BulkItem{items[0], items[0]}})
			So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
		})

		Reset(func() { h.stop(ctx) })
	})
}

func TestService_Concurrency(t *testing.T) {
	Convey("Given judges submitting concurrently", t, func() {
		ctx := context.Background()
		h := newHarness(ctx, service.WithSyncWorkers(4))
		cid := h.fx.Competition.ID

		var wg sync.WaitGroup
		errCh := make(chan error, 64)
		for _, j := range h.judges {
			for p := range h.fx.Participants {
				wg.Add(1)
				go func(j model.Principal, p int) {
					defer wg.Done()
					for k := range h.fx.Parameters {
						for _, v := range []string{"5.0", "6.0", "7.0"} {
							if _, err := h.svc.SubmitScore(ctx, j, h.input(p, k, v)); err != nil {
								errCh <- err
							}
						}
					}
				}(j, p)
			}
		}
		wg.Wait()
		close(errCh)

		Convey("Then every submission succeeds and the final state is consistent", func() {
			for err := range errCh {
				So(err, ShouldBeNil)
			}
			entries, err := h.svc.Rankings(ctx, cid)
			So(err, ShouldBeNil)
			So(len(entries), ShouldEqual, 3)
			for _, e := range entries {
				// Walk 7, Piaffe 10 (clamped 14) for both judges.
				So(e.Percentage, ShouldEqual, 85.0)
			}
			// 2 judges x 3 participants x 2 parameters x 3 values committed once each.
			So(h.svc.Engine().Gate().Revision(cid), ShouldEqual, int64(36))
		})

		Reset(func() { h.stop(ctx) })
	})
}

func TestService_Withdrawal(t *testing.T) {
	Convey("Given a ranked competition", t, func() {
		ctx := context.Background()
		h := newHarness(ctx)
		cid := h.fx.Competition.ID
		for p, v := range []string{"6.0", "9.0", "7.0"} {
			_, err := h.svc.SubmitScore(ctx, h.judges[0], h.input(p, 0, v))
			So(err, ShouldBeNil)
		}

		Convey("When the leader withdraws and rankings are recalculated", func() {
			err := h.store.Update(ctx, func(ctx context.Context, tx repository.Tx) error {
				p := h.fx.Participants[1]
				p.Withdrawn = true
				return tx.SaveParticipant(ctx, &p)
			})
			So(err, ShouldBeNil)
			entries, err := h.svc.Recalculate(ctx, h.admin, cid)
			So(err, ShouldBeNil)

			Convey("Then the withdrawn entry is dropped and the rest move up", func() {
				So(len(entries), ShouldEqual, 2)
				So(entries[0].ParticipantID, ShouldEqual, h.fx.Participants[2].ID)
				So(*entries[0].PreviousPosition, ShouldEqual, 2)
				So(entries[1].ParticipantID, ShouldEqual, h.fx.Participants[0].ID)
			})
		})

		Reset(func() { h.stop(ctx) })
	})
}

func TestService_MirrorFailure(t *testing.T) {
	Convey("Given an unreachable mirror", t, func() {
		ctx := context.Background()
		h := newHarness(ctx)
		cid := h.fx.Competition.ID
		h.mirror.FailWith(errors.New("connection refused"))

		Convey("When a score is submitted", func() {
			res, err := h.svc.SubmitScore(ctx, h.judges[0], h.input(0, 0, "8.0"))

			Convey("Then the score is committed and the failure is recorded", func() {
				So(err, ShouldBeNil)
				So(res.Outcome, ShouldEqual, service.OutcomeCreated)
				So(eventually(func() bool {
					st := h.syncStatus(ctx)
					return !st.IsSynced && st.ErrorMessage != ""
				}), ShouldBeTrue)
				entries, err := h.svc.Rankings(ctx, cid)
				So(err, ShouldBeNil)
				So(entries[0].Percentage, ShouldEqual, 40.0)
			})

			Convey("Then a forced sync after recovery restores the mirror", func() {
				h.mirror.FailWith(nil)
				report, err := h.svc.ForceSync(ctx, h.admin, cid)
				So(err, ShouldBeNil)
				So(report.Participants, ShouldEqual, 3)
				So(h.syncStatus(ctx).IsSynced, ShouldBeTrue)
			})
		})

		Reset(func() { h.stop(ctx) })
	})
}

func TestService_HandleInbound(t *testing.T) {
	Convey("Given a device update", t, func() {
		ctx := context.Background()
		h := newHarness(ctx)
		u := service.InboundUpdate{
			UpdateID:      "dev-1-0001",
			CompetitionID: h.fx.Competition.ID,
			ParticipantID: h.fx.Participants[0].ID,
			JudgeID:       9002,
			ParameterID:   h.fx.Parameters[0].Parameter.ID,
			Value:         decimal.RequireFromString("7.5"),
		}

		Convey("When it is delivered twice", func() {
			first, err := h.svc.HandleInbound(ctx, u)
			So(err, ShouldBeNil)
			second, err := h.svc.HandleInbound(ctx, u)
			So(err, ShouldBeNil)

			Convey("Then it is applied once", func() {
				So(first.Outcome, ShouldEqual, service.OutcomeCreated)
				So(first.Score.Key.JudgeID, ShouldEqual, int64(9002))
				So(second.Outcome, ShouldEqual, service.OutcomeDuplicate)
			})
		})

		Convey("When the judge is not assigned anywhere", func() {
			u.JudgeID = 7
			_, err := h.svc.HandleInbound(ctx, u)

			Convey("Then it fails and may be retried", func() {
				So(errors.Is(err, errs.ErrNotFound), ShouldBeTrue)
				So(h.svc.GetStats(ctx)["dedupeSize"], ShouldEqual, int64(0))
			})
		})

		Reset(func() { h.stop(ctx) })
	})
}

func TestService_Queries(t *testing.T) {
	Convey("Given two judges who disagree", t, func() {
		ctx := context.Background()
		h := newHarness(ctx)
		cid := h.fx.Competition.ID
		pid := h.fx.Participants[0].ID
		for i, v := range []string{"6.0", "8.0"} {
			_, err := h.svc.SubmitScore(ctx, h.judges[i], h.input(0, 0, v))
			So(err, ShouldBeNil)
			_, err = h.svc.SubmitScore(ctx, h.judges[i], h.input(0, 1, "4.6"))
			So(err, ShouldBeNil)
		}

		Convey("Comparison shows both judges and per-parameter means", func() {
			cmp, err := h.svc.CompareJudges(ctx, h.judges[0], cid, pid)
			So(err, ShouldBeNil)
			So(len(cmp.Judges), ShouldEqual, 2)
			So(cmp.Judges[0].JudgeName, ShouldEqual, "Judge")
			So(cmp.Averages[h.fx.Parameters[0].Parameter.ID], ShouldEqual, 7.0)
			So(cmp.Averages[h.fx.Parameters[1].Parameter.ID], ShouldEqual, 4.6)
		})

		Convey("Statistics summarize one judge", func() {
			st, err := h.svc.JudgeStatistics(ctx, h.judges[1], 9002, 0)
			So(err, ShouldBeNil)
			So(st.Overall.Count, ShouldEqual, 2)
			So(st.Overall.MinValue, ShouldEqual, 4.6)
			So(st.Overall.MaxValue, ShouldEqual, 8.0)
			So(st.Overall.AverageValue, ShouldEqual, 6.3)
			So(st.Overall.AverageResult, ShouldEqual, 8.5)
			So(st.Overall.Distribution["5"], ShouldEqual, 1)
			So(st.Overall.Distribution["8"], ShouldEqual, 1)
			So(len(st.Competitions), ShouldEqual, 1)
			So(st.Competitions[0].CompetitionName, ShouldEqual, "Grand Prix")
		})

		Convey("Sync status of an unknown competition is not found", func() {
			_, err := h.svc.SyncStatus(ctx, cid+1000)
			So(errors.Is(err, errs.ErrNotFound), ShouldBeTrue)
		})

		Reset(func() { h.stop(ctx) })
	})
}

func TestService_Watch(t *testing.T) {
	Convey("Given a live rankings subscriber", t, func() {
		ctx := context.Background()
		h := newHarness(ctx)
		cid := h.fx.Competition.ID
		_, err := h.svc.SubmitScore(ctx, h.judges[0], h.input(0, 0, "7.0"))
		So(err, ShouldBeNil)

		sub, err := h.svc.WatchRankings(ctx, cid)
		So(err, ShouldBeNil)

		Convey("Then the snapshot arrives first at the current revision", func() {
			snap := next(sub)
			So(snap.Type, ShouldEqual, types.MessageCurrentRankings)
			So(snap.Revision, ShouldEqual, int64(1))

			Convey("And later commits arrive as updates with higher revisions", func() {
				_, err := h.svc.SubmitScore(ctx, h.judges[1], h.input(1, 0, "9.0"))
				So(err, ShouldBeNil)
				upd := next(sub)
				So(upd.Type, ShouldEqual, types.MessageRankingsUpdate)
				So(upd.Revision, ShouldEqual, int64(2))
			})
		})

		Convey("Then a score subscriber is primed with the participant's marks", func() {
			ssub, err := h.svc.WatchScores(ctx, cid, h.fx.Participants[0].ID)
			So(err, ShouldBeNil)
			snap := next(ssub)
			So(snap.Type, ShouldEqual, types.MessageCurrentScores)
			data, ok := snap.Data.([]interface{})
			So(ok, ShouldBeTrue)
			So(len(data), ShouldEqual, 1)
			h.svc.Hub().Leave(ssub)
		})

		Convey("Then unknown topics are refused", func() {
			_, err := h.svc.WatchScores(ctx, cid, 424242)
			So(errors.Is(err, errs.ErrNotFound), ShouldBeTrue)
			_, err = h.svc.WatchRankings(ctx, cid+1000)
			So(errors.Is(err, errs.ErrNotFound), ShouldBeTrue)
		})

		Reset(func() {
			h.svc.Hub().Leave(sub)
			h.stop(ctx)
		})
	})
}
