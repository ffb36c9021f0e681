package repository

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/okian/arena/internal/domain/model"
)

type state struct {
	seq          int64
	competitions map[int64]model.Competition
	participants map[int64]model.Participant
	judges       map[int64][]model.CompetitionJudge
	evalParams   map[int64]model.EvaluationParameter
	params       map[int64]model.CompetitionParameter
	scores       map[int64]model.Score
	scoreKeys    map[model.ScoreKey]int64
	edits        map[int64][]model.ScoreEdit
	rankings     map[int64]map[int64]model.Ranking
	syncs        map[int64]model.SyncStatus
}

func newState() *state {
	return &state{
		competitions: make(map[int64]model.Competition),
		participants: make(map[int64]model.Participant),
		judges:       make(map[int64][]model.CompetitionJudge),
		evalParams:   make(map[int64]model.EvaluationParameter),
		params:       make(map[int64]model.CompetitionParameter),
		scores:       make(map[int64]model.Score),
		scoreKeys:    make(map[model.ScoreKey]int64),
		edits:        make(map[int64][]model.ScoreEdit),
		rankings:     make(map[int64]map[int64]model.Ranking),
		syncs:        make(map[int64]model.SyncStatus),
	}
}

// clone copies every table. Slices and inner maps are replaced, never
// mutated in place, so sharing their backing storage is safe.
func (s *state) clone() *state {
	return &state{
		seq:          s.seq,
		competitions: maps.Clone(s.competitions),
		participants: maps.Clone(s.participants),
		judges:       maps.Clone(s.judges),
		evalParams:   maps.Clone(s.evalParams),
		params:       maps.Clone(s.params),
		scores:       maps.Clone(s.scores),
		scoreKeys:    maps.Clone(s.scoreKeys),
		edits:        maps.Clone(s.edits),
		rankings:     maps.Clone(s.rankings),
		syncs:        maps.Clone(s.syncs),
	}
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

// MemoryStore keeps all data in process. Update works on a private copy that
// replaces the live state only when fn succeeds.
type MemoryStore struct {
	mu     sync.RWMutex
	cur    *state
	now    func() time.Time
	closed bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{cur: newState(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Update runs fn in a read-write transaction.
func (m *MemoryStore) Update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{st: m.cur.clone(), now: m.now}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.cur = tx.st
	return nil
}

// View runs fn in a read-only transaction.
func (m *MemoryStore) View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, &memTx{st: m.cur, now: m.now, readOnly: true})
}

// Close marks the store closed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

type memTx struct {
	st       *state
	now      func() time.Time
	readOnly bool
}

func (t *memTx) writable() error {
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (t *memTx) Competition(_ context.Context, id int64) (model.Competition, error) {
	c, ok := t.st.competitions[id]
	if !ok {
		return model.Competition{}, ErrNotFound
	}
	return c, nil
}

func (t *memTx) Participants(_ context.Context, competitionID int64, includeWithdrawn bool) ([]model.Participant, error) {
	var out []model.Participant
	for _, p := range t.st.participants {
		if p.CompetitionID != competitionID || (p.Withdrawn && !includeWithdrawn) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memTx) Participant(_ context.Context, competitionID, participantID int64) (model.Participant, error) {
	p, ok := t.st.participants[participantID]
	if !ok || p.CompetitionID != competitionID {
		return model.Participant{}, ErrNotFound
	}
	return p, nil
}

func (t *memTx) Judges(_ context.Context, competitionID int64) ([]model.CompetitionJudge, error) {
	return slices.Clone(t.st.judges[competitionID]), nil
}

func (t *memTx) JudgeCompetitions(_ context.Context, judgeID int64) ([]int64, error) {
	var out []int64
	for cid, js := range t.st.judges {
		for _, j := range js {
			if j.JudgeID == judgeID {
				out = append(out, cid)
				break
			}
		}
	}
	slices.Sort(out)
	return out, nil
}

func (t *memTx) Parameters(_ context.Context, competitionID int64) ([]model.CompetitionParameter, error) {
	var out []model.CompetitionParameter
	for _, p := range t.st.params {
		if p.CompetitionID == competitionID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memTx) Parameter(_ context.Context, competitionID, parameterID int64) (model.CompetitionParameter, error) {
	for _, p := range t.st.params {
		if p.CompetitionID == competitionID && p.Parameter.ID == parameterID {
			return p, nil
		}
	}
	return model.CompetitionParameter{}, ErrNotFound
}

func (t *memTx) Scores(_ context.Context, f ScoreFilter) ([]model.Score, error) {
	var out []model.Score
	for _, s := range t.st.scores {
		if f.Matches(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key, out[j].Key
		if a.ParticipantID != b.ParticipantID {
			return a.ParticipantID < b.ParticipantID
		}
		if a.JudgeID != b.JudgeID {
			return a.JudgeID < b.JudgeID
		}
		return a.ParameterID < b.ParameterID
	})
	return out, nil
}

func (t *memTx) Score(_ context.Context, key model.ScoreKey) (model.Score, error) {
	id, ok := t.st.scoreKeys[key]
	if !ok {
		return model.Score{}, ErrNotFound
	}
	return t.st.scores[id], nil
}

func (t *memTx) ScoreByID(_ context.Context, id int64) (model.Score, error) {
	s, ok := t.st.scores[id]
	if !ok {
		return model.Score{}, ErrNotFound
	}
	return s, nil
}

func (t *memTx) SaveScore(_ context.Context, s *model.Score) error {
	if err := t.writable(); err != nil {
		return err
	}
	now := t.now()
	if s.ID == 0 {
		if _, dup := t.st.scoreKeys[s.Key]; dup {
			return ErrDuplicate
		}
		s.ID = t.st.nextID()
		s.CreatedAt = now
		s.UpdatedAt = now
		t.st.scores[s.ID] = *s
		t.st.scoreKeys[s.Key] = s.ID
		return nil
	}
	old, ok := t.st.scores[s.ID]
	if !ok {
		return ErrNotFound
	}
	if old.Key != s.Key {
		if _, dup := t.st.scoreKeys[s.Key]; dup {
			return ErrDuplicate
		}
		delete(t.st.scoreKeys, old.Key)
		t.st.scoreKeys[s.Key] = s.ID
	}
	s.CreatedAt = old.CreatedAt
	s.UpdatedAt = now
	t.st.scores[s.ID] = *s
	return nil
}

func (t *memTx) DeleteScore(_ context.Context, id int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	s, ok := t.st.scores[id]
	if !ok {
		return ErrNotFound
	}
	delete(t.st.scores, id)
	delete(t.st.scoreKeys, s.Key)
	return nil
}

func (t *memTx) AddScoreEdit(_ context.Context, e *model.ScoreEdit) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.scores[e.ScoreID]; !ok {
		return ErrNotFound
	}
	e.ID = t.st.nextID()
	e.CreatedAt = t.now()
	t.st.edits[e.ScoreID] = append(slices.Clone(t.st.edits[e.ScoreID]), *e)
	return nil
}

func (t *memTx) ScoreEdits(_ context.Context, scoreID int64) ([]model.ScoreEdit, error) {
	return slices.Clone(t.st.edits[scoreID]), nil
}

func (t *memTx) Rankings(_ context.Context, competitionID int64) ([]model.Ranking, error) {
	out := slices.Collect(maps.Values(t.st.rankings[competitionID]))
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ParticipantID < out[j].ParticipantID
	})
	return out, nil
}

func (t *memTx) SaveRanking(_ context.Context, r *model.Ranking) error {
	if err := t.writable(); err != nil {
		return err
	}
	rows := maps.Clone(t.st.rankings[r.CompetitionID])
	if rows == nil {
		rows = make(map[int64]model.Ranking)
	}
	if old, ok := rows[r.ParticipantID]; ok {
		if old.SameStanding(*r) {
			r.ID, r.UpdatedAt = old.ID, old.UpdatedAt
			return nil
		}
		r.ID = old.ID
	} else {
		r.ID = t.st.nextID()
	}
	r.UpdatedAt = t.now()
	rows[r.ParticipantID] = *r
	t.st.rankings[r.CompetitionID] = rows
	return nil
}

func (t *memTx) PruneRankings(_ context.Context, competitionID int64, keep []int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	rows := maps.Clone(t.st.rankings[competitionID])
	for pid := range rows {
		if !slices.Contains(keep, pid) {
			delete(rows, pid)
		}
	}
	t.st.rankings[competitionID] = rows
	return nil
}

func (t *memTx) SaveCompetition(_ context.Context, c *model.Competition) error {
	if err := t.writable(); err != nil {
		return err
	}
	if c.ID == 0 {
		c.ID = t.st.nextID()
	} else {
		t.bump(c.ID)
	}
	t.st.competitions[c.ID] = *c
	return nil
}

func (t *memTx) SaveParticipant(_ context.Context, p *model.Participant) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.competitions[p.CompetitionID]; !ok {
		return ErrNotFound
	}
	for _, id := range []*int64{&p.Rider.ID, &p.Horse.ID, &p.ID} {
		if *id == 0 {
			*id = t.st.nextID()
		} else {
			t.bump(*id)
		}
	}
	t.st.participants[p.ID] = *p
	return nil
}

func (t *memTx) SaveJudge(_ context.Context, j model.CompetitionJudge) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.competitions[j.CompetitionID]; !ok {
		return ErrNotFound
	}
	js := slices.Clone(t.st.judges[j.CompetitionID])
	for i := range js {
		if js[i].JudgeID == j.JudgeID {
			js[i] = j
			t.st.judges[j.CompetitionID] = js
			return nil
		}
	}
	t.st.judges[j.CompetitionID] = append(js, j)
	return nil
}

func (t *memTx) SaveParameter(_ context.Context, p *model.CompetitionParameter) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.competitions[p.CompetitionID]; !ok {
		return ErrNotFound
	}
	if p.Parameter.ID == 0 {
		p.Parameter.ID = t.st.nextID()
	} else {
		t.bump(p.Parameter.ID)
	}
	for id, existing := range t.st.params {
		if existing.CompetitionID == p.CompetitionID && existing.Parameter.ID == p.Parameter.ID && id != p.ID {
			return ErrDuplicate
		}
	}
	t.st.evalParams[p.Parameter.ID] = p.Parameter
	if p.ID == 0 {
		p.ID = t.st.nextID()
	} else {
		t.bump(p.ID)
	}
	t.st.params[p.ID] = *p
	return nil
}

func (t *memTx) SyncStatus(_ context.Context, competitionID int64) (model.SyncStatus, error) {
	s, ok := t.st.syncs[competitionID]
	if !ok {
		return model.SyncStatus{}, ErrNotFound
	}
	return s, nil
}

func (t *memTx) SaveSyncStatus(_ context.Context, s model.SyncStatus) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.st.syncs[s.CompetitionID] = s
	return nil
}

// bump keeps generated ids above caller supplied ones.
func (t *memTx) bump(id int64) {
	if id > t.st.seq {
		t.st.seq = id
	}
}
