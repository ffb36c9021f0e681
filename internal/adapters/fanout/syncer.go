// Package fanout propagates committed scores and rankings to the mirror store
// and to live subscribers.
//
// Documents are built when a job is enqueued, right after the commit and
// while the competition is still held, so a job never needs a store
// transaction. Jobs of one competition run on one worker shard in commit
// order. A failed push is logged, counted and recorded in the competition's
// SyncStatus; it never rolls back the change that produced it.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/arena/internal/adapters/mirror"
	"github.com/okian/arena/internal/adapters/mq/queue"
	"github.com/okian/arena/internal/adapters/mq/worker"
	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/domain/errs"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/ranking"
	"github.com/okian/arena/internal/domain/types"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 1024
)

// ErrQueueFull is recorded when a job cannot be queued.
var ErrQueueFull = fmt.Errorf("sync queue full: %w", errs.ErrSync)

// Publisher delivers messages to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg types.Message) (int, error)
}

// Report summarizes a forced sync.
type Report struct {
	CompetitionID int64 `json:"competitionId"`
	Revision      int64 `json:"revision"`
	Rankings      int   `json:"rankings"`
	Participants  int   `json:"participants"`
}

// Syncer queues and performs propagation jobs.
type Syncer struct {
	store  repository.Store
	mirror mirror.Client
	live   Publisher
	engine *ranking.Engine
	pool   *worker.Pool

	workers   int
	queueSize int
	now       func() time.Time
	logger    logger.Logger
}

// New creates a syncer and installs it as the engine's notifier.
func New(store repository.Store, m mirror.Client, live Publisher, engine *ranking.Engine, opts ...Option) *Syncer {
	s := &Syncer{
		store:     store,
		mirror:    m,
		live:      live,
		engine:    engine,
		workers:   defaultWorkers,
		queueSize: defaultQueueSize,
		now:       time.Now,
		logger:    logger.Get().Named("fanout"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pool = worker.NewPool(s.workers, s.queueSize, s, worker.WithLogger(s.logger.Named("worker")))
	if engine != nil {
		engine.SetNotifier(s)
	}
	return s
}

// Start launches the workers.
func (s *Syncer) Start(ctx context.Context) {
	s.pool.Start(ctx)
	s.logger.Info(ctx, "sync fan-out started",
		logger.Int("workers", s.pool.Shards()),
		logger.Int("queue_size", s.queueSize))
}

// Stop drains queued jobs and waits for the workers.
func (s *Syncer) Stop(ctx context.Context) error {
	return s.pool.Shutdown(ctx)
}

// Pending returns the number of queued jobs.
func (s *Syncer) Pending(ctx context.Context) int { return s.pool.Len(ctx) }

// Enqueue queues j on its competition's shard. A rejected job marks the
// competition out of sync.
func (s *Syncer) Enqueue(ctx context.Context, j queue.Job) bool { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if s.pool.Submit(ctx, j) {
		return true
	}
	s.logger.Warn(ctx, "sync job rejected",
		logger.String("kind", string(j.Kind)),
		logger.Int64("competition_id", j.CompetitionID))
	metrics.RecordSyncPush("queue", "rejected", 0)
	s.recordStatus(ctx, j.CompetitionID, ErrQueueFull)
	return false
}

func (s *Syncer) submit(ctx context.Context, j queue.Job, t *tracker) error { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	if t != nil {
		t.add()
		j.Payload = tracked{payload: j.Payload, t: t}
	}
	if !s.Enqueue(ctx, j) {
		if t != nil {
			t.done(ErrQueueFull)
		}
		return ErrQueueFull
	}
	return nil
}

// PushScore queues the mirror write and live update of one stored score.
func (s *Syncer) PushScore(ctx context.Context, revision int64, sc model.Score) error {
	const op = "fanout.push_score"
	var doc ScoreDoc
	err := s.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		p, err := tx.Parameter(ctx, sc.Key.CompetitionID, sc.Key.ParameterID)
		if err != nil {
			return err
		}
		judges, err := tx.Judges(ctx, sc.Key.CompetitionID)
		if err != nil {
			return err
		}
		doc = newScoreDoc(sc, judgeNames(judges)[sc.Key.JudgeID], p)
		return nil
	})
	if err != nil {
		return errs.Wrap(op, err)
	}
	return s.submit(ctx, queue.Job{
		Kind:          queue.KindScore,
		CompetitionID: sc.Key.CompetitionID,
		ParticipantID: sc.Key.ParticipantID,
		JudgeID:       sc.Key.JudgeID,
		Revision:      revision,
		Payload:       scorePayload{Doc: doc, Entry: types.NewScoreEntry(sc)},
	}, nil)
}

// PushScoreDeleted queues removal of a score from the mirror and tells
// live subscribers.
func (s *Syncer) PushScoreDeleted(ctx context.Context, revision int64, sc model.Score) error {
	return s.submit(ctx, queue.Job{
		Kind:          queue.KindScoreDeleted,
		CompetitionID: sc.Key.CompetitionID,
		ParticipantID: sc.Key.ParticipantID,
		JudgeID:       sc.Key.JudgeID,
		Revision:      revision,
		Payload:       types.NewScoreEntry(sc),
	}, nil)
}

// PushParticipantScores queues the per-judge score documents of a
// participant and a current_scores message with all of its scores. A nil
// judgeID syncs every judge's document.
func (s *Syncer) PushParticipantScores(ctx context.Context, revision, competitionID, participantID int64, judgeID *int64) error {
	j, err := s.participantJob(ctx, revision, competitionID, participantID, judgeID)
	if err != nil {
		return errs.Wrap("fanout.push_participant_scores", err)
	}
	return s.submit(ctx, j, nil)
}

func (s *Syncer) participantJob(ctx context.Context, revision, competitionID, participantID int64, judgeID *int64) (queue.Job, error) {
	var only int64
	if judgeID != nil {
		only = *judgeID
	}
	payload := participantPayload{Judges: make(map[int64]JudgeScoresDoc)}
	err := s.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		scores, err := tx.Scores(ctx, repository.ScoreFilter{CompetitionID: competitionID, ParticipantID: participantID})
		if err != nil {
			return err
		}
		payload.Entries = types.NewScoreEntries(scores)
		params, err := tx.Parameters(ctx, competitionID)
		if err != nil {
			return err
		}
		judges, err := tx.Judges(ctx, competitionID)
		if err != nil {
			return err
		}
		byParam := make(map[int64]model.CompetitionParameter, len(params))
		for _, p := range params {
			byParam[p.Parameter.ID] = p
		}
		names := judgeNames(judges)
		for _, sc := range scores {
			if only != 0 && sc.Key.JudgeID != only {
				continue
			}
			doc := payload.Judges[sc.Key.JudgeID]
			if doc == nil {
				doc = make(JudgeScoresDoc)
				payload.Judges[sc.Key.JudgeID] = doc
			}
			doc[strconv.FormatInt(sc.Key.ParameterID, 10)] = newScoreDoc(sc, names[sc.Key.JudgeID], byParam[sc.Key.ParameterID])
		}
		return nil
	})
	if err != nil {
		return queue.Job{}, err
	}
	if judgeID != nil {
		if _, ok := payload.Judges[*judgeID]; !ok {
			payload.Judges[*judgeID] = JudgeScoresDoc{}
		}
	}
	return queue.Job{
		Kind:          queue.KindParticipantScores,
		CompetitionID: competitionID,
		ParticipantID: participantID,
		JudgeID:       only,
		Revision:      revision,
		Payload:       payload,
	}, nil
}

// PushRankings queues the leaderboard document and live update. Nil
// standings are read from the store.
func (s *Syncer) PushRankings(ctx context.Context, revision, competitionID int64, standings []ranking.Standing) error {
	if standings == nil {
		err := s.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
			var err error
			standings, err = ranking.ReadStandings(ctx, tx, competitionID)
			return err
		})
		if err != nil {
			return errs.Wrap("fanout.push_rankings", err)
		}
	}
	return s.submit(ctx, rankingsJob(revision, competitionID, standings), nil)
}

func rankingsJob(revision, competitionID int64, standings []ranking.Standing) queue.Job {
	return queue.Job{
		Kind:          queue.KindRankings,
		CompetitionID: competitionID,
		Revision:      revision,
		Payload:       rankingsPayload{Entries: RankingEntries(standings)},
	}
}

// RankingsChanged implements ranking.Notifier.
func (s *Syncer) RankingsChanged(ctx context.Context, competitionID, revision int64, standings []ranking.Standing) {
	if err := s.PushRankings(ctx, revision, competitionID, standings); err != nil {
		s.logger.Error(ctx, "failed to queue rankings push",
			logger.Int64("competition_id", competitionID),
			logger.Error(err))
	}
}

// ForceSync recomputes a competition and pushes its rankings and every
// participant's scores, waiting for the pushes to finish.
func (s *Syncer) ForceSync(ctx context.Context, competitionID int64) (Report, error) {
	const op = "fanout.force_sync"
	t := &tracker{}
	report, err := s.forceSync(ctx, competitionID, t)
	if err != nil {
		return report, errs.Wrap(op, err)
	}
	if err := t.wait(ctx); err != nil {
		return report, errs.WrapKind(op, errs.ErrSync, err)
	}
	s.logger.Info(ctx, "competition force synced",
		logger.Int64("competition_id", competitionID),
		logger.Int64("revision", report.Revision),
		logger.Int("participants", report.Participants))
	return report, nil
}

func (s *Syncer) forceSync(ctx context.Context, competitionID int64, t *tracker) (Report, error) {
	report := Report{CompetitionID: competitionID}
	held := s.engine.Gate().Lock(competitionID)
	defer held.Unlock()

	var (
		standings    []ranking.Standing
		participants []model.Participant
	)
	err := s.store.Update(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		if standings, err = s.engine.RecomputeTx(ctx, tx, competitionID); err != nil {
			return err
		}
		participants, err = tx.Participants(ctx, competitionID, true)
		return err
	})
	if err != nil {
		return report, err
	}
	report.Revision = held.Advance()
	report.Rankings = len(standings)
	report.Participants = len(participants)

	if err := s.submit(ctx, rankingsJob(report.Revision, competitionID, standings), t); err != nil {
		return report, err
	}
	for _, p := range participants {
		j, err := s.participantJob(ctx, report.Revision, competitionID, p.ID, nil)
		if err != nil {
			return report, err
		}
		if err := s.submit(ctx, j, t); err != nil {
			return report, err
		}
	}
	return report, nil
}

// Handle performs one job. It implements worker.Handler. A panicking job
// is reported as an error so a waiting ForceSync is always released.
func (s *Syncer) Handle(ctx context.Context, j queue.Job) (err error) { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	start := time.Now()
	payload, t := unwrap(j.Payload)
	defer func() {
		if r := recover(); r != nil {
			err = errs.NewKind("fanout.handle", errs.ErrSync, "job %s (%s) panicked: %v", j.ID, j.Kind, r)
		}
		t.done(err)
	}()
	err = s.handle(ctx, j, payload)

	result := "success"
	if err != nil {
		result = "error"
	}
	metrics.RecordSyncPush("mirror", result, float64(time.Since(start).Milliseconds()))
	s.recordStatus(ctx, j.CompetitionID, err)
	return err
}

func (s *Syncer) handle(ctx context.Context, j queue.Job, payload any) error { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	switch j.Kind {
	case queue.KindScore:
		p, ok := payload.(scorePayload)
		if !ok {
			return badPayload(j)
		}
		key := model.ScoreKey{CompetitionID: j.CompetitionID, ParticipantID: j.ParticipantID, JudgeID: j.JudgeID, ParameterID: p.Doc.ParameterID}
		err := s.mirror.Write(ctx, types.ScorePath(key), p.Doc)
		s.publish(ctx, types.ScoresTopic(j.CompetitionID, j.ParticipantID), types.Message{
			Type: types.MessageScoreUpdate, CompetitionID: j.CompetitionID, ParticipantID: j.ParticipantID, Revision: j.Revision, Data: p.Entry,
		})
		return err

	case queue.KindScoreDeleted:
		entry, ok := payload.(types.ScoreEntry)
		if !ok {
			return badPayload(j)
		}
		key := model.ScoreKey{CompetitionID: j.CompetitionID, ParticipantID: j.ParticipantID, JudgeID: j.JudgeID, ParameterID: entry.ParameterID}
		err := s.mirror.Delete(ctx, types.ScorePath(key))
		s.publish(ctx, types.ScoresTopic(j.CompetitionID, j.ParticipantID), types.Message{
			Type: types.MessageScoreDeleted, CompetitionID: j.CompetitionID, ParticipantID: j.ParticipantID, Revision: j.Revision, Data: entry,
		})
		return err

	case queue.KindParticipantScores:
		p, ok := payload.(participantPayload)
		if !ok {
			return badPayload(j)
		}
		judgeIDs := make([]int64, 0, len(p.Judges))
		for id := range p.Judges {
			judgeIDs = append(judgeIDs, id)
		}
		sort.Slice(judgeIDs, func(a, b int) bool { return judgeIDs[a] < judgeIDs[b] })
		var errList []error
		base := types.ParticipantScoresPath(j.CompetitionID, j.ParticipantID)
		for _, id := range judgeIDs {
			path := base + "/" + strconv.FormatInt(id, 10)
			if err := s.mirror.Write(ctx, path, p.Judges[id]); err != nil {
				errList = append(errList, err)
			}
		}
		s.publish(ctx, types.ScoresTopic(j.CompetitionID, j.ParticipantID), types.Message{
			Type: types.MessageCurrentScores, CompetitionID: j.CompetitionID, ParticipantID: j.ParticipantID, Revision: j.Revision, Data: p.Entries,
		})
		return errors.Join(errList...)

	case queue.KindRankings:
		p, ok := payload.(rankingsPayload)
		if !ok {
			return badPayload(j)
		}
		err := s.mirror.Write(ctx, types.RankingsPath(j.CompetitionID), newRankingsDoc(p.Entries))
		s.publish(ctx, types.RankingsTopic(j.CompetitionID), types.Message{
			Type: types.MessageRankingsUpdate, CompetitionID: j.CompetitionID, Revision: j.Revision, Data: p.Entries,
		})
		return err

	default:
		return fmt.Errorf("unknown job kind %q", j.Kind)
	}
}

func (s *Syncer) publish(ctx context.Context, topic string, msg types.Message) {
	if s.live == nil {
		return
	}
	start := time.Now()
	if _, err := s.live.Publish(ctx, topic, msg); err != nil {
		metrics.RecordSyncPush("live", "error", float64(time.Since(start).Milliseconds()))
		s.logger.Error(ctx, "live publish failed", logger.String("topic", topic), logger.Error(err))
		return
	}
	metrics.RecordSyncPush("live", "success", float64(time.Since(start).Milliseconds()))
}

// recordStatus stores the outcome of the latest attempt.
func (s *Syncer) recordStatus(ctx context.Context, competitionID int64, cause error) {
	st := model.SyncStatus{CompetitionID: competitionID, IsSynced: cause == nil, LastSync: s.now()}
	if cause != nil {
		st.ErrorMessage = cause.Error()
	}
	err := s.store.Update(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.SaveSyncStatus(ctx, st)
	})
	if err != nil {
		s.logger.Error(ctx, "failed to record sync status",
			logger.Int64("competition_id", competitionID),
			logger.Error(err))
	}
}

func badPayload(j queue.Job) error { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	return fmt.Errorf("job %s: unexpected payload %T for kind %s", j.ID, j.Payload, j.Kind)
}

func judgeNames(judges []model.CompetitionJudge) map[int64]string {
	out := make(map[int64]string, len(judges))
	for _, j := range judges {
		out[j.JudgeID] = j.Name()
	}
	return out
}

// tracker waits for a group of jobs and keeps the first error.
type tracker struct {
	wg   sync.WaitGroup
	once sync.Once
	err  error
}

type tracked struct {
	payload any
	t       *tracker
}

func unwrap(p any) (any, *tracker) {
	if tp, ok := p.(tracked); ok {
		return tp.payload, tp.t
	}
	return p, nil
}

func (t *tracker) add() { t.wg.Add(1) }

func (t *tracker) done(err error) {
	if t == nil {
		return
	}
	if err != nil {
		t.once.Do(func() { t.err = err })
	}
	t.wg.Done()
}

func (t *tracker) wait(ctx context.Context) error {
	ch := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(ch)
	}()
	select {
	case <-ch:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
