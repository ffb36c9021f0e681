// Package sqlite implements repository.Store on SQLite through bun.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/extra/bundebug"
	_ "modernc.org/sqlite"

	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/domain/model"
)

// Store is a SQLite backed repository.Store.
type Store struct {
	db  *bun.DB
	now func() time.Time
}

// Option configures Open.
type Option func(*options)

type options struct {
	debug bool
	now   func() time.Time
}

// WithQueryDebug logs every query through bundebug.
func WithQueryDebug(enabled bool) Option {
	return func(o *options) { o.debug = enabled }
}

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Open opens the database at path (":memory:" for a private in-memory db) and
// applies embedded migrations.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer; transactions never interleave on the same file.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	db := bun.NewDB(sqlDB, sqlitedialect.New())
	if o.debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db, now: o.now}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Update runs fn inside a SQL transaction.
func (s *Store) Update(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &sqlTx{db: tx, now: s.now})
	})
}

// View runs fn inside a transaction whose Tx rejects writes.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &sqlTx{db: tx, now: s.now, readOnly: true})
	})
}

type sqlTx struct {
	db       bun.Tx
	now      func() time.Time
	readOnly bool
}

func (t *sqlTx) writable() error {
	if t.readOnly {
		return repository.ErrReadOnly
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	return err
}

func conflict(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", repository.ErrDuplicate, err)
	}
	return err
}

func (t *sqlTx) Competition(ctx context.Context, id int64) (model.Competition, error) {
	var row competitionRow
	if err := t.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx); err != nil {
		return model.Competition{}, notFound(err)
	}
	return model.Competition{ID: row.ID, Name: row.Name, Status: row.Status, Date: fromMillis(row.Date)}, nil
}

func (t *sqlTx) participantQuery(rows *[]participantRow) *bun.SelectQuery {
	return t.db.NewSelect().Model(rows).Relation("Rider").Relation("Horse")
}

func (t *sqlTx) Participants(ctx context.Context, competitionID int64, includeWithdrawn bool) ([]model.Participant, error) {
	var rows []participantRow
	q := t.participantQuery(&rows).Where("p.competition_id = ?", competitionID)
	if !includeWithdrawn {
		q = q.Where("p.withdrawn = 0")
	}
	if err := q.Order("p.start_order ASC", "p.id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.Participant, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (t *sqlTx) Participant(ctx context.Context, competitionID, participantID int64) (model.Participant, error) {
	var rows []participantRow
	err := t.participantQuery(&rows).
		Where("p.id = ?", participantID).
		Where("p.competition_id = ?", competitionID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return model.Participant{}, err
	}
	if len(rows) == 0 {
		return model.Participant{}, repository.ErrNotFound
	}
	return rows[0].toModel(), nil
}

func (t *sqlTx) Judges(ctx context.Context, competitionID int64) ([]model.CompetitionJudge, error) {
	var rows []judgeRow
	if err := t.db.NewSelect().Model(&rows).Where("competition_id = ?", competitionID).Order("id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.CompetitionJudge, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.CompetitionJudge{
			CompetitionID: r.CompetitionID,
			JudgeID:       r.JudgeID,
			FirstName:     r.FirstName,
			LastName:      r.LastName,
			IsHead:        r.IsHead,
		})
	}
	return out, nil
}

func (t *sqlTx) JudgeCompetitions(ctx context.Context, judgeID int64) ([]int64, error) {
	var ids []int64
	err := t.db.NewSelect().
		Model((*judgeRow)(nil)).
		Column("competition_id").
		Where("judge_id = ?", judgeID).
		Order("competition_id ASC").
		Scan(ctx, &ids)
	return ids, err
}

func (t *sqlTx) Parameters(ctx context.Context, competitionID int64) ([]model.CompetitionParameter, error) {
	var rows []compParamRow
	err := t.db.NewSelect().Model(&rows).
		Relation("Parameter").
		Where("cp.competition_id = ?", competitionID).
		Order("cp.param_order ASC", "cp.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.CompetitionParameter, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (t *sqlTx) Parameter(ctx context.Context, competitionID, parameterID int64) (model.CompetitionParameter, error) {
	var rows []compParamRow
	err := t.db.NewSelect().Model(&rows).
		Relation("Parameter").
		Where("cp.competition_id = ?", competitionID).
		Where("cp.parameter_id = ?", parameterID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return model.CompetitionParameter{}, err
	}
	if len(rows) == 0 {
		return model.CompetitionParameter{}, repository.ErrNotFound
	}
	return rows[0].toModel(), nil
}

func (t *sqlTx) Scores(ctx context.Context, f repository.ScoreFilter) ([]model.Score, error) {
	var rows []scoreRow
	q := t.db.NewSelect().Model(&rows)
	if f.CompetitionID != 0 {
		q = q.Where("competition_id = ?", f.CompetitionID)
	}
	if f.ParticipantID != 0 {
		q = q.Where("participant_id = ?", f.ParticipantID)
	}
	if f.JudgeID != 0 {
		q = q.Where("judge_id = ?", f.JudgeID)
	}
	if err := q.Order("participant_id ASC", "judge_id ASC", "parameter_id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.Score, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (t *sqlTx) Score(ctx context.Context, key model.ScoreKey) (model.Score, error) {
	var row scoreRow
	err := t.db.NewSelect().Model(&row).
		Where("competition_id = ?", key.CompetitionID).
		Where("participant_id = ?", key.ParticipantID).
		Where("judge_id = ?", key.JudgeID).
		Where("parameter_id = ?", key.ParameterID).
		Scan(ctx)
	if err != nil {
		return model.Score{}, notFound(err)
	}
	return row.toModel(), nil
}

func (t *sqlTx) ScoreByID(ctx context.Context, id int64) (model.Score, error) {
	var row scoreRow
	if err := t.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx); err != nil {
		return model.Score{}, notFound(err)
	}
	return row.toModel(), nil
}

func (t *sqlTx) SaveScore(ctx context.Context, s *model.Score) error {
	if err := t.writable(); err != nil {
		return err
	}
	now := t.now()
	if s.ID == 0 {
		s.CreatedAt, s.UpdatedAt = now, now
		row := newScoreRow(*s)
		res, err := t.db.NewInsert().Model(&row).Exec(ctx)
		if err != nil {
			return conflict(err)
		}
		s.ID = insertedID(row.ID, res)
		return nil
	}
	existing, err := t.ScoreByID(ctx, s.ID)
	if err != nil {
		return err
	}
	s.CreatedAt, s.UpdatedAt = existing.CreatedAt, now
	row := newScoreRow(*s)
	_, err = t.db.NewUpdate().Model(&row).WherePK().Exec(ctx)
	return conflict(err)
}

func (t *sqlTx) DeleteScore(ctx context.Context, id int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	res, err := t.db.NewDelete().Model((*scoreRow)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (t *sqlTx) AddScoreEdit(ctx context.Context, e *model.ScoreEdit) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.ScoreByID(ctx, e.ScoreID); err != nil {
		return err
	}
	e.CreatedAt = t.now()
	row := scoreEditRow{
		ScoreID:        e.ScoreID,
		EditorID:       e.EditorID,
		PreviousValue:  e.PreviousValue,
		PreviousResult: e.PreviousResult,
		Reason:         e.Reason,
		CreatedAt:      toMillis(e.CreatedAt),
	}
	res, err := t.db.NewInsert().Model(&row).Exec(ctx)
	if err != nil {
		return err
	}
	e.ID = insertedID(row.ID, res)
	return nil
}

func (t *sqlTx) ScoreEdits(ctx context.Context, scoreID int64) ([]model.ScoreEdit, error) {
	var rows []scoreEditRow
	if err := t.db.NewSelect().Model(&rows).Where("score_id = ?", scoreID).Order("id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.ScoreEdit, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (t *sqlTx) Rankings(ctx context.Context, competitionID int64) ([]model.Ranking, error) {
	var rows []rankingRow
	err := t.db.NewSelect().Model(&rows).
		Where("competition_id = ?", competitionID).
		Order("position ASC", "participant_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Ranking, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (t *sqlTx) SaveRanking(ctx context.Context, r *model.Ranking) error {
	if err := t.writable(); err != nil {
		return err
	}
	var old rankingRow
	err := t.db.NewSelect().Model(&old).
		Where("competition_id = ?", r.CompetitionID).
		Where("participant_id = ?", r.ParticipantID).
		Scan(ctx)
	switch {
	case err == nil && old.toModel().SameStanding(*r):
		r.ID, r.UpdatedAt = old.ID, fromMillis(old.UpdatedAt)
		return nil
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return err
	}
	r.UpdatedAt = t.now()
	row := rankingRow{
		CompetitionID: r.CompetitionID,
		ParticipantID: r.ParticipantID,
		Average:       r.Average,
		Percentage:    r.Percentage,
		Position:      r.Position,
		UpdatedAt:     toMillis(r.UpdatedAt),
	}
	_, err = t.db.NewInsert().Model(&row).
		On("CONFLICT (competition_id, participant_id) DO UPDATE").
		Set("average = EXCLUDED.average").
		Set("percentage = EXCLUDED.percentage").
		Set("position = EXCLUDED.position").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return err
	}
	var id int64
	err = t.db.NewSelect().Model((*rankingRow)(nil)).Column("id").
		Where("competition_id = ?", r.CompetitionID).
		Where("participant_id = ?", r.ParticipantID).
		Scan(ctx, &id)
	if err != nil {
		return err
	}
	r.ID = id
	return nil
}

func (t *sqlTx) PruneRankings(ctx context.Context, competitionID int64, keep []int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	q := t.db.NewDelete().Model((*rankingRow)(nil)).Where("competition_id = ?", competitionID)
	if len(keep) > 0 {
		q = q.Where("participant_id NOT IN (?)", bun.In(keep))
	}
	_, err := q.Exec(ctx)
	return err
}

func (t *sqlTx) SaveCompetition(ctx context.Context, c *model.Competition) error {
	if err := t.writable(); err != nil {
		return err
	}
	row := competitionRow{ID: c.ID, Name: c.Name, Status: c.Status, Date: toMillis(c.Date)}
	if row.Status == "" {
		row.Status = model.StatusPending
	}
	id, err := t.upsertByPK(ctx, &row, row.ID)
	if err != nil {
		return err
	}
	c.ID, c.Status = id, row.Status
	return nil
}

func (t *sqlTx) SaveParticipant(ctx context.Context, p *model.Participant) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.Competition(ctx, p.CompetitionID); err != nil {
		return err
	}
	rider := riderRow{ID: p.Rider.ID, FirstName: p.Rider.FirstName, LastName: p.Rider.LastName, Nationality: p.Rider.Nationality}
	id, err := t.upsertByPK(ctx, &rider, rider.ID)
	if err != nil {
		return fmt.Errorf("save rider: %w", err)
	}
	p.Rider.ID = id
	horse := horseRow{ID: p.Horse.ID, Name: p.Horse.Name, Breed: p.Horse.Breed}
	if id, err = t.upsertByPK(ctx, &horse, horse.ID); err != nil {
		return fmt.Errorf("save horse: %w", err)
	}
	p.Horse.ID = id
	row := participantRow{
		ID:               p.ID,
		CompetitionID:    p.CompetitionID,
		RiderID:          p.Rider.ID,
		HorseID:          p.Horse.ID,
		Number:           p.Number,
		StartOrder:       p.Order,
		Withdrawn:        p.Withdrawn,
		WithdrawalReason: p.WithdrawalReason,
	}
	if id, err = t.upsertByPK(ctx, &row, row.ID); err != nil {
		return err
	}
	p.ID = id
	return nil
}

func (t *sqlTx) SaveJudge(ctx context.Context, j model.CompetitionJudge) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.Competition(ctx, j.CompetitionID); err != nil {
		return err
	}
	row := judgeRow{
		CompetitionID: j.CompetitionID,
		JudgeID:       j.JudgeID,
		FirstName:     j.FirstName,
		LastName:      j.LastName,
		IsHead:        j.IsHead,
	}
	_, err := t.db.NewInsert().Model(&row).
		On("CONFLICT (competition_id, judge_id) DO UPDATE").
		Set("first_name = EXCLUDED.first_name").
		Set("last_name = EXCLUDED.last_name").
		Set("is_head = EXCLUDED.is_head").
		Exec(ctx)
	return err
}

func (t *sqlTx) SaveParameter(ctx context.Context, p *model.CompetitionParameter) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.Competition(ctx, p.CompetitionID); err != nil {
		return err
	}
	ep := evalParamRow{
		ID:          p.Parameter.ID,
		Name:        p.Parameter.Name,
		Description: p.Parameter.Description,
		Coefficient: p.Parameter.Coefficient,
		MaxValue:    p.Parameter.MaxValue,
	}
	id, err := t.upsertByPK(ctx, &ep, ep.ID)
	if err != nil {
		return fmt.Errorf("save evaluation parameter: %w", err)
	}
	p.Parameter.ID = id
	row := compParamRow{
		ID:                p.ID,
		CompetitionID:     p.CompetitionID,
		ParameterID:       p.Parameter.ID,
		Order:             p.Order,
		CustomCoefficient: p.CustomCoefficient,
		CustomMaxValue:    p.CustomMaxValue,
	}
	if id, err = t.upsertByPK(ctx, &row, row.ID); err != nil {
		return conflict(err)
	}
	p.ID = id
	return nil
}

func (t *sqlTx) SyncStatus(ctx context.Context, competitionID int64) (model.SyncStatus, error) {
	var row syncStatusRow
	if err := t.db.NewSelect().Model(&row).Where("competition_id = ?", competitionID).Scan(ctx); err != nil {
		return model.SyncStatus{}, notFound(err)
	}
	return model.SyncStatus{
		CompetitionID: row.CompetitionID,
		IsSynced:      row.IsSynced,
		ErrorMessage:  row.ErrorMessage,
		LastSync:      fromMillis(row.LastSync),
	}, nil
}

func (t *sqlTx) SaveSyncStatus(ctx context.Context, s model.SyncStatus) error {
	if err := t.writable(); err != nil {
		return err
	}
	row := syncStatusRow{
		CompetitionID: s.CompetitionID,
		IsSynced:      s.IsSynced,
		ErrorMessage:  s.ErrorMessage,
		LastSync:      toMillis(s.LastSync),
	}
	_, err := t.db.NewInsert().Model(&row).
		On("CONFLICT (competition_id) DO UPDATE").
		Set("is_synced = EXCLUDED.is_synced").
		Set("error_message = EXCLUDED.error_message").
		Set("last_sync = EXCLUDED.last_sync").
		Exec(ctx)
	return err
}

// upsertByPK inserts model when id is zero, otherwise inserts or replaces the
// row with that id. It returns the row id.
func (t *sqlTx) upsertByPK(ctx context.Context, row any, id int64) (int64, error) {
	if id == 0 {
		res, err := t.db.NewInsert().Model(row).Exec(ctx)
		if err != nil {
			return 0, conflict(err)
		}
		return insertedID(pkOf(row), res), nil
	}
	res, err := t.db.NewUpdate().Model(row).WherePK().Exec(ctx)
	if err != nil {
		return 0, conflict(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := t.db.NewInsert().Model(row).Exec(ctx); err != nil {
			return 0, conflict(err)
		}
	}
	return id, nil
}

func pkOf(row any) int64 {
	switch r := row.(type) {
	case *competitionRow:
		return r.ID
	case *riderRow:
		return r.ID
	case *horseRow:
		return r.ID
	case *participantRow:
		return r.ID
	case *evalParamRow:
		return r.ID
	case *compParamRow:
		return r.ID
	}
	return 0
}

// insertedID prefers the id bun scanned back and falls back to LastInsertId.
func insertedID(scanned int64, res sql.Result) int64 {
	if scanned != 0 {
		return scanned
	}
	if res == nil {
		return 0
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0
	}
	return id
}
