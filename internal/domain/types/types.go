// Package types contains the wire shapes shared by the mirror, the live
// transport and the HTTP API.
package types

import (
	"time"

	"github.com/okian/arena/internal/domain/model"
)

// Live message types.
const (
	MessageCurrentRankings = "current_rankings"
	MessageRankingsUpdate  = "rankings_update"
	MessageCurrentScores   = "current_scores"
	MessageScoreUpdate     = "score_update"
	MessageScoreDeleted    = "score_deleted"
	MessageError           = "error"
)

// RiderRef is the rider as embedded in a ranking entry.
type RiderRef struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Nationality string `json:"nationality"`
}

// HorseRef is the horse as embedded in a ranking entry.
type HorseRef struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Breed string `json:"breed"`
}

// RankingEntry is one leaderboard row.
type RankingEntry struct {
	ID               int64    `json:"id"`
	ParticipantID    int64    `json:"participantId"`
	Number           int      `json:"number"`
	Position         int      `json:"position"`
	PreviousPosition *int     `json:"previousPosition,omitempty"`
	Average          float64  `json:"average"`
	Percentage       float64  `json:"percentage"`
	Rider            RiderRef `json:"rider"`
	Horse            HorseRef `json:"horse"`
}

// NewRankingEntry flattens a ranking row and its participant.
func NewRankingEntry(r model.Ranking, p model.Participant, previous *int) RankingEntry {
	return RankingEntry{
		ID:               r.ID,
		ParticipantID:    r.ParticipantID,
		Number:           p.Number,
		Position:         r.Position,
		PreviousPosition: previous,
		Average:          r.Average.InexactFloat64(),
		Percentage:       r.Percentage.InexactFloat64(),
		Rider:            RiderRef{ID: p.Rider.ID, Name: p.Rider.FullName(), Nationality: p.Rider.Nationality},
		Horse:            HorseRef{ID: p.Horse.ID, Name: p.Horse.Name, Breed: p.Horse.Breed},
	}
}

// ScoreEntry is one judge mark.
type ScoreEntry struct {
	ID               int64     `json:"id"`
	ParticipantID    int64     `json:"participantId"`
	JudgeID          int64     `json:"judgeId"`
	ParameterID      int64     `json:"parameterId"`
	Value            float64   `json:"value"`
	CalculatedResult float64   `json:"calculatedResult"`
	Comments         string    `json:"comments,omitempty"`
	IsEdited         bool      `json:"isEdited"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// NewScoreEntry converts a stored score.
func NewScoreEntry(s model.Score) ScoreEntry {
	return ScoreEntry{
		ID:               s.ID,
		ParticipantID:    s.Key.ParticipantID,
		JudgeID:          s.Key.JudgeID,
		ParameterID:      s.Key.ParameterID,
		Value:            s.Value.InexactFloat64(),
		CalculatedResult: s.CalculatedResult.InexactFloat64(),
		Comments:         s.Comments,
		IsEdited:         s.IsEdited,
		UpdatedAt:        s.UpdatedAt.UTC(),
	}
}

// NewScoreEntries converts a list of scores.
func NewScoreEntries(scores []model.Score) []ScoreEntry {
	out := make([]ScoreEntry, 0, len(scores))
	for _, s := range scores {
		out = append(out, NewScoreEntry(s))
	}
	return out
}

// Message is the envelope sent to live subscribers.
type Message struct {
	Type          string `json:"type"`
	CompetitionID int64  `json:"competitionId"`
	ParticipantID int64  `json:"participantId,omitempty"`
	Revision      int64  `json:"revision"`
	Data          any    `json:"data"`
}

// ScoreEditEntry is an audit row.
type ScoreEditEntry struct {
	ID             int64     `json:"id"`
	ScoreID        int64     `json:"scoreId"`
	EditorID       int64     `json:"editorId"`
	PreviousValue  float64   `json:"previousValue"`
	PreviousResult float64   `json:"previousResult"`
	Reason         string    `json:"reason"`
	CreatedAt      time.Time `json:"createdAt"`
}

// NewScoreEditEntry converts an audit row.
func NewScoreEditEntry(e model.ScoreEdit) ScoreEditEntry {
	return ScoreEditEntry{
		ID:             e.ID,
		ScoreID:        e.ScoreID,
		EditorID:       e.EditorID,
		PreviousValue:  e.PreviousValue.InexactFloat64(),
		PreviousResult: e.PreviousResult.InexactFloat64(),
		Reason:         e.Reason,
		CreatedAt:      e.CreatedAt.UTC(),
	}
}

// RankingsTopic is the live topic of a competition's leaderboard.
func RankingsTopic(competitionID int64) string {
	return "rankings_" + itoa(competitionID)
}

// ScoresTopic is the live topic of one participant's marks.
func ScoresTopic(competitionID, participantID int64) string {
	return "scores_" + itoa(competitionID) + "_" + itoa(participantID)
}

// RankingsPath is the mirror document of a competition's leaderboard.
func RankingsPath(competitionID int64) string {
	return "rankings/" + itoa(competitionID)
}

// ParticipantScoresPath is the mirror node holding one participant's marks.
func ParticipantScoresPath(competitionID, participantID int64) string {
	return "scores/" + itoa(competitionID) + "/" + itoa(participantID)
}

// ScorePath is the mirror document of one mark.
func ScorePath(k model.ScoreKey) string {
	return ParticipantScoresPath(k.CompetitionID, k.ParticipantID) + "/" + itoa(k.JudgeID) + "/" + itoa(k.ParameterID)
}

// ParticipantEntry is an entry as shown on score cards.
type ParticipantEntry struct {
	ID        int64    `json:"id"`
	Number    int      `json:"number"`
	Order     int      `json:"order"`
	Withdrawn bool     `json:"withdrawn"`
	Rider     RiderRef `json:"rider"`
	Horse     HorseRef `json:"horse"`
}

// NewParticipantEntry converts a participant.
func NewParticipantEntry(p model.Participant) ParticipantEntry {
	return ParticipantEntry{
		ID:        p.ID,
		Number:    p.Number,
		Order:     p.Order,
		Withdrawn: p.Withdrawn,
		Rider:     RiderRef{ID: p.Rider.ID, Name: p.Rider.FullName(), Nationality: p.Rider.Nationality},
		Horse:     HorseRef{ID: p.Horse.ID, Name: p.Horse.Name, Breed: p.Horse.Breed},
	}
}

// ParameterEntry is a competition parameter with its effective limits.
type ParameterEntry struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Coefficient int    `json:"coefficient"`
	MaxValue    int64  `json:"maxValue"`
	Order       int    `json:"order"`
}

// NewParameterEntry converts a competition parameter. The id is the
// evaluation parameter id, the one scores refer to.
func NewParameterEntry(p model.CompetitionParameter) ParameterEntry {
	return ParameterEntry{
		ID:          p.Parameter.ID,
		Name:        p.Parameter.Name,
		Description: p.Parameter.Description,
		Coefficient: p.EffectiveCoefficient(),
		MaxValue:    p.EffectiveMaxValue(),
		Order:       p.Order,
	}
}

// SyncStatusEntry reports the latest mirror push of a competition.
type SyncStatusEntry struct {
	CompetitionID int64      `json:"competitionId"`
	IsSynced      bool       `json:"isSynced"`
	ErrorMessage  string     `json:"errorMessage,omitempty"`
	LastSync      *time.Time `json:"lastSync"`
}

// NewSyncStatusEntry converts a sync status. A zero status has no last sync.
func NewSyncStatusEntry(s model.SyncStatus) SyncStatusEntry {
	e := SyncStatusEntry{CompetitionID: s.CompetitionID, IsSynced: s.IsSynced, ErrorMessage: s.ErrorMessage}
	if !s.LastSync.IsZero() {
		t := s.LastSync.UTC()
		e.LastSync = &t
	}
	return e
}
