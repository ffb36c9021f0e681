// Package scoresim drives a running arena server with simulated judges and
// checks the published rankings against a local recomputation.
package scoresim

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL       string        // Base URL of the service
	CompetitionID int64         // Competition to score
	AdminID       int64         // User id used for discovery and recalculation
	Secret        string        // HS256 secret shared with the server
	Workers       int           // Number of concurrent judges in flight
	Timeout       time.Duration // HTTP request timeout
	EditRatio     float64       // Share of marks corrected after submission, 0..1
	InboundToken  string        // Send corrections through the device relay when set
	Scale         int64         // Mark that counts as 100%
	OutputFile    string        // Optional JSON dump of submitted sheets
	Verbose       bool          // Log every request
}

// Mark is one raw value for a parameter.
type Mark struct {
	ParameterID int64           `json:"parameterId"`
	Value       decimal.Decimal `json:"value"`
}

// Sheet is one judge's marks for one participant.
type Sheet struct {
	JudgeID       int64  `json:"judgeId"`
	ParticipantID int64  `json:"participantId"`
	Marks         []Mark `json:"marks"`
	Submitted     bool   `json:"submitted"`
}

// Stats holds run statistics.
type Stats struct {
	SheetsGenerated   int
	SheetsSubmitted   int
	SheetsFailed      int
	MarksSubmitted    int
	EditsSubmitted    int
	EditsFailed       int
	EditsDeduplicated int
	RankingsRetrieved int
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
}
