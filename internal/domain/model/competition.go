// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
)

// Competition status values.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Competition is the scoring scope. Rankings, locks and sync status are keyed by it.
type Competition struct {
	ID     int64
	Name   string
	Status string
	Date   time.Time
}

// Rider is the person on the horse.
type Rider struct {
	ID          int64
	FirstName   string
	LastName    string
	Nationality string
}

// FullName joins first and last name.
func (r Rider) FullName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// Horse is the animal half of an entry.
type Horse struct {
	ID    int64
	Name  string
	Breed string
}

// Participant is a rider+horse entry in a competition.
type Participant struct {
	ID               int64
	CompetitionID    int64
	Rider            Rider
	Horse            Horse
	Number           int   // bib number
	Order            int   // start order, also the ranking tie order
	Withdrawn        bool  // excluded from rankings, scores kept
	WithdrawalReason string
}

// CompetitionJudge assigns a judge user to a competition.
type CompetitionJudge struct {
	CompetitionID int64
	JudgeID       int64
	FirstName     string
	LastName      string
	IsHead        bool
}

// Name returns the judge display name.
func (j CompetitionJudge) Name() string {
	return strings.TrimSpace(j.FirstName + " " + j.LastName)
}
