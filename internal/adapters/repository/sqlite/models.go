package sqlite

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/okian/arena/internal/domain/model"
)

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v).UTC()
}

type competitionRow struct {
	bun.BaseModel `bun:"table:competitions"`

	ID     int64  `bun:"id,pk,autoincrement"`
	Name   string `bun:"name"`
	Status string `bun:"status"`
	Date   int64  `bun:"date"`
}

type riderRow struct {
	bun.BaseModel `bun:"table:riders"`

	ID          int64  `bun:"id,pk,autoincrement"`
	FirstName   string `bun:"first_name"`
	LastName    string `bun:"last_name"`
	Nationality string `bun:"nationality"`
}

type horseRow struct {
	bun.BaseModel `bun:"table:horses"`

	ID    int64  `bun:"id,pk,autoincrement"`
	Name  string `bun:"name"`
	Breed string `bun:"breed"`
}

type participantRow struct {
	bun.BaseModel `bun:"table:participants,alias:p"`

	ID               int64  `bun:"id,pk,autoincrement"`
	CompetitionID    int64  `bun:"competition_id"`
	RiderID          int64  `bun:"rider_id"`
	HorseID          int64  `bun:"horse_id"`
	Number           int    `bun:"number"`
	StartOrder       int    `bun:"start_order"`
	Withdrawn        bool   `bun:"withdrawn"`
	WithdrawalReason string `bun:"withdrawal_reason"`

	Rider *riderRow `bun:"rel:belongs-to,join:rider_id=id"`
	Horse *horseRow `bun:"rel:belongs-to,join:horse_id=id"`
}

func (r participantRow) toModel() model.Participant {
	p := model.Participant{
		ID:               r.ID,
		CompetitionID:    r.CompetitionID,
		Number:           r.Number,
		Order:            r.StartOrder,
		Withdrawn:        r.Withdrawn,
		WithdrawalReason: r.WithdrawalReason,
	}
	if r.Rider != nil {
		p.Rider = model.Rider{ID: r.Rider.ID, FirstName: r.Rider.FirstName, LastName: r.Rider.LastName, Nationality: r.Rider.Nationality}
	}
	if r.Horse != nil {
		p.Horse = model.Horse{ID: r.Horse.ID, Name: r.Horse.Name, Breed: r.Horse.Breed}
	}
	return p
}

type judgeRow struct {
	bun.BaseModel `bun:"table:competition_judges"`

	ID            int64  `bun:"id,pk,autoincrement"`
	CompetitionID int64  `bun:"competition_id"`
	JudgeID       int64  `bun:"judge_id"`
	FirstName     string `bun:"first_name"`
	LastName      string `bun:"last_name"`
	IsHead        bool   `bun:"is_head"`
}

type evalParamRow struct {
	bun.BaseModel `bun:"table:evaluation_parameters"`

	ID          int64  `bun:"id,pk,autoincrement"`
	Name        string `bun:"name"`
	Description string `bun:"description"`
	Coefficient int    `bun:"coefficient"`
	MaxValue    int64  `bun:"max_value"`
}

type compParamRow struct {
	bun.BaseModel `bun:"table:competition_parameters,alias:cp"`

	ID                int64  `bun:"id,pk,autoincrement"`
	CompetitionID     int64  `bun:"competition_id"`
	ParameterID       int64  `bun:"parameter_id"`
	Order             int    `bun:"param_order"`
	CustomCoefficient *int   `bun:"custom_coefficient"`
	CustomMaxValue    *int64 `bun:"custom_max_value"`

	Parameter *evalParamRow `bun:"rel:belongs-to,join:parameter_id=id"`
}

func (r compParamRow) toModel() model.CompetitionParameter {
	p := model.CompetitionParameter{
		ID:                r.ID,
		CompetitionID:     r.CompetitionID,
		Order:             r.Order,
		CustomCoefficient: r.CustomCoefficient,
		CustomMaxValue:    r.CustomMaxValue,
	}
	if r.Parameter != nil {
		p.Parameter = model.EvaluationParameter{
			ID:          r.Parameter.ID,
			Name:        r.Parameter.Name,
			Description: r.Parameter.Description,
			Coefficient: r.Parameter.Coefficient,
			MaxValue:    r.Parameter.MaxValue,
		}
	}
	return p
}

type scoreRow struct {
	bun.BaseModel `bun:"table:scores"`

	ID               int64           `bun:"id,pk,autoincrement"`
	CompetitionID    int64           `bun:"competition_id"`
	ParticipantID    int64           `bun:"participant_id"`
	JudgeID          int64           `bun:"judge_id"`
	ParameterID      int64           `bun:"parameter_id"`
	Value            decimal.Decimal `bun:"value"`
	CalculatedResult decimal.Decimal `bun:"calculated_result"`
	Comments         string          `bun:"comments"`
	IsEdited         bool            `bun:"is_edited"`
	EditReason       string          `bun:"edit_reason"`
	CreatedAt        int64           `bun:"created_at"`
	UpdatedAt        int64           `bun:"updated_at"`
}

func newScoreRow(s model.Score) scoreRow {
	return scoreRow{
		ID:               s.ID,
		CompetitionID:    s.Key.CompetitionID,
		ParticipantID:    s.Key.ParticipantID,
		JudgeID:          s.Key.JudgeID,
		ParameterID:      s.Key.ParameterID,
		Value:            s.Value,
		CalculatedResult: s.CalculatedResult,
		Comments:         s.Comments,
		IsEdited:         s.IsEdited,
		EditReason:       s.EditReason,
		CreatedAt:        toMillis(s.CreatedAt),
		UpdatedAt:        toMillis(s.UpdatedAt),
	}
}

func (r scoreRow) toModel() model.Score {
	return model.Score{
		ID: r.ID,
		Key: model.ScoreKey{
			CompetitionID: r.CompetitionID,
			ParticipantID: r.ParticipantID,
			JudgeID:       r.JudgeID,
			ParameterID:   r.ParameterID,
		},
		Value:            r.Value,
		CalculatedResult: r.CalculatedResult,
		Comments:         r.Comments,
		IsEdited:         r.IsEdited,
		EditReason:       r.EditReason,
		CreatedAt:        fromMillis(r.CreatedAt),
		UpdatedAt:        fromMillis(r.UpdatedAt),
	}
}

type scoreEditRow struct {
	bun.BaseModel `bun:"table:score_edits"`

	ID             int64           `bun:"id,pk,autoincrement"`
	ScoreID        int64           `bun:"score_id"`
	EditorID       int64           `bun:"editor_id"`
	PreviousValue  decimal.Decimal `bun:"previous_value"`
	PreviousResult decimal.Decimal `bun:"previous_result"`
	Reason         string          `bun:"reason"`
	CreatedAt      int64           `bun:"created_at"`
}

func (r scoreEditRow) toModel() model.ScoreEdit {
	return model.ScoreEdit{
		ID:             r.ID,
		ScoreID:        r.ScoreID,
		EditorID:       r.EditorID,
		PreviousValue:  r.PreviousValue,
		PreviousResult: r.PreviousResult,
		Reason:         r.Reason,
		CreatedAt:      fromMillis(r.CreatedAt),
	}
}

type rankingRow struct {
	bun.BaseModel `bun:"table:rankings"`

	ID            int64           `bun:"id,pk,autoincrement"`
	CompetitionID int64           `bun:"competition_id"`
	ParticipantID int64           `bun:"participant_id"`
	Average       decimal.Decimal `bun:"average"`
	Percentage    decimal.Decimal `bun:"percentage"`
	Position      int             `bun:"position"`
	UpdatedAt     int64           `bun:"updated_at"`
}

func (r rankingRow) toModel() model.Ranking {
	return model.Ranking{
		ID:            r.ID,
		CompetitionID: r.CompetitionID,
		ParticipantID: r.ParticipantID,
		Average:       r.Average,
		Percentage:    r.Percentage,
		Position:      r.Position,
		UpdatedAt:     fromMillis(r.UpdatedAt),
	}
}

type syncStatusRow struct {
	bun.BaseModel `bun:"table:sync_status"`

	CompetitionID int64  `bun:"competition_id,pk"`
	IsSynced      bool   `bun:"is_synced"`
	ErrorMessage  string `bun:"error_message"`
	LastSync      int64  `bun:"last_sync"`
}
