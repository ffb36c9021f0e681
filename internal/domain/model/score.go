package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EvaluationParameter is a gradable criterion with default weights.
type EvaluationParameter struct {
	ID          int64
	Name        string
	Description string
	Coefficient int   // default multiplier, >= 1
	MaxValue    int64 // default maximum raw score
}

// CompetitionParameter binds a parameter to a competition, optionally
// overriding coefficient and maximum.
type CompetitionParameter struct {
	ID                int64
	CompetitionID     int64
	Parameter         EvaluationParameter
	Order             int
	CustomCoefficient *int
	CustomMaxValue    *int64
}

// EffectiveCoefficient returns the override when present, else the default.
func (p CompetitionParameter) EffectiveCoefficient() int {
	if p.CustomCoefficient != nil {
		return *p.CustomCoefficient
	}
	return p.Parameter.Coefficient
}

// EffectiveMaxValue returns the override when present, else the default.
func (p CompetitionParameter) EffectiveMaxValue() int64 {
	if p.CustomMaxValue != nil {
		return *p.CustomMaxValue
	}
	return p.Parameter.MaxValue
}

// ScoreKey identifies the single score slot a judge fills for a parameter.
type ScoreKey struct {
	CompetitionID int64
	ParticipantID int64
	JudgeID       int64
	ParameterID   int64 // EvaluationParameter id
}

// Score is one judge's mark for one parameter of one participant.
type Score struct {
	ID               int64
	Key              ScoreKey
	Value            decimal.Decimal // raw mark, one decimal place
	CalculatedResult decimal.Decimal // value*coefficient clamped to max, rounded
	Comments         string
	IsEdited         bool
	EditReason       string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ScoreEdit is an immutable audit record of a value change.
type ScoreEdit struct {
	ID             int64
	ScoreID        int64
	EditorID       int64
	PreviousValue  decimal.Decimal
	PreviousResult decimal.Decimal
	Reason         string
	CreatedAt      time.Time
}

// Ranking is the materialized standing of a participant.
type Ranking struct {
	ID            int64
	CompetitionID int64
	ParticipantID int64
	Average       decimal.Decimal
	Percentage    decimal.Decimal
	Position      int
	UpdatedAt     time.Time
}

// SameStanding reports whether r and o hold the same average, percentage
// and position.
func (r Ranking) SameStanding(o Ranking) bool {
	return r.Position == o.Position && r.Average.Equal(o.Average) && r.Percentage.Equal(o.Percentage)
}

// SyncStatus tracks the latest mirror propagation attempt of a competition.
type SyncStatus struct {
	CompetitionID int64
	IsSynced      bool
	ErrorMessage  string
	LastSync      time.Time
}
