// Package repository defines the scoring store and its in-memory implementation.
package repository

import (
	"context"

	"github.com/okian/arena/internal/domain/model"
)

// ScoreFilter narrows a score listing. Zero fields match everything.
type ScoreFilter struct {
	CompetitionID int64
	ParticipantID int64
	JudgeID       int64
}

// Matches reports whether s passes the filter.
func (f ScoreFilter) Matches(s model.Score) bool {
	return (f.CompetitionID == 0 || s.Key.CompetitionID == f.CompetitionID) &&
		(f.ParticipantID == 0 || s.Key.ParticipantID == f.ParticipantID) &&
		(f.JudgeID == 0 || s.Key.JudgeID == f.JudgeID)
}

// Tx is a unit of work. Reads observe the transaction's own writes.
// Lookups of missing rows return ErrNotFound.
type Tx interface {
	Competition(ctx context.Context, id int64) (model.Competition, error)
	// Participants lists entries by start order, then id.
	Participants(ctx context.Context, competitionID int64, includeWithdrawn bool) ([]model.Participant, error)
	Participant(ctx context.Context, competitionID, participantID int64) (model.Participant, error)
	// Judges lists assignments in the order they were made.
	Judges(ctx context.Context, competitionID int64) ([]model.CompetitionJudge, error)
	// JudgeCompetitions lists the competitions a judge is assigned to.
	JudgeCompetitions(ctx context.Context, judgeID int64) ([]int64, error)
	// Parameters lists competition parameters by order, then id.
	Parameters(ctx context.Context, competitionID int64) ([]model.CompetitionParameter, error)
	// Parameter finds a competition parameter by its evaluation parameter id.
	Parameter(ctx context.Context, competitionID, parameterID int64) (model.CompetitionParameter, error)

	// Scores lists scores by participant, judge, parameter.
	Scores(ctx context.Context, f ScoreFilter) ([]model.Score, error)
	Score(ctx context.Context, key model.ScoreKey) (model.Score, error)
	ScoreByID(ctx context.Context, id int64) (model.Score, error)
	// SaveScore inserts when s.ID is zero and updates otherwise.
	SaveScore(ctx context.Context, s *model.Score) error
	DeleteScore(ctx context.Context, id int64) error
	AddScoreEdit(ctx context.Context, e *model.ScoreEdit) error
	ScoreEdits(ctx context.Context, scoreID int64) ([]model.ScoreEdit, error)

	// Rankings lists a competition's rows by position.
	Rankings(ctx context.Context, competitionID int64) ([]model.Ranking, error)
	// SaveRanking upserts by competition and participant.
	SaveRanking(ctx context.Context, r *model.Ranking) error
	// PruneRankings deletes rows of participants not listed in keep.
	PruneRankings(ctx context.Context, competitionID int64, keep []int64) error

	SaveCompetition(ctx context.Context, c *model.Competition) error
	// SaveParticipant stores the entry together with its rider and horse.
	SaveParticipant(ctx context.Context, p *model.Participant) error
	SaveJudge(ctx context.Context, j model.CompetitionJudge) error
	// SaveParameter stores the binding together with its evaluation parameter.
	SaveParameter(ctx context.Context, p *model.CompetitionParameter) error

	SyncStatus(ctx context.Context, competitionID int64) (model.SyncStatus, error)
	SaveSyncStatus(ctx context.Context, s model.SyncStatus) error
}

// Store runs transactions. A failed Update leaves no trace.
type Store interface {
	Update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}
