package types_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/types"
)

func TestRankingEntry(t *testing.T) {
	Convey("Given a ranking row and its participant", t, func() {
		prev := 3
		r := model.Ranking{ID: 5, ParticipantID: 12, Position: 1,
			Average: decimal.RequireFromString("7.50"), Percentage: decimal.RequireFromString("75.00")}
		p := model.Participant{ID: 12, Number: 104,
			Rider: model.Rider{ID: 2, FirstName: "Jessica", LastName: "von Bredow-Werndl", Nationality: "GER"},
			Horse: model.Horse{ID: 3, Name: "TSF Dalera BB", Breed: "Trakehner"}}

		Convey("When it is encoded", func() {
			raw, err := json.Marshal(types.NewRankingEntry(r, p, &prev))
			So(err, ShouldBeNil)

			var got map[string]any
			So(json.Unmarshal(raw, &got), ShouldBeNil)

			Convey("Then numbers are JSON numbers and names are flattened", func() {
				So(got["participantId"], ShouldEqual, 12.0)
				So(got["average"], ShouldEqual, 7.5)
				So(got["percentage"], ShouldEqual, 75.0)
				So(got["previousPosition"], ShouldEqual, 3.0)
				So(got["rider"].(map[string]any)["name"], ShouldEqual, "Jessica von Bredow-Werndl")
				So(got["horse"].(map[string]any)["breed"], ShouldEqual, "Trakehner")
			})
		})
	})
}

func TestScoreEntry(t *testing.T) {
	Convey("Given a stored score", t, func() {
		at := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
		s := model.Score{ID: 9,
			Key:   model.ScoreKey{CompetitionID: 1, ParticipantID: 2, JudgeID: 3, ParameterID: 4},
			Value: decimal.RequireFromString("7.5"), CalculatedResult: decimal.NewFromInt(8), IsEdited: true, UpdatedAt: at}

		e := types.NewScoreEntry(s)
		So(e.Value, ShouldEqual, 7.5)
		So(e.CalculatedResult, ShouldEqual, 8.0)
		So(e.JudgeID, ShouldEqual, int64(3))
		So(e.IsEdited, ShouldBeTrue)

		raw, err := json.Marshal(e)
		So(err, ShouldBeNil)
		So(string(raw), ShouldContainSubstring, `"updatedAt":"2026-06-01T12:00:00Z"`)
	})
}

func TestTopicsAndPaths(t *testing.T) {
	Convey("Topic and path names follow the mirror layout", t, func() {
		So(types.RankingsTopic(7), ShouldEqual, "rankings_7")
		So(types.ScoresTopic(7, 21), ShouldEqual, "scores_7_21")
		So(types.RankingsPath(7), ShouldEqual, "rankings/7")
		So(types.ScorePath(model.ScoreKey{CompetitionID: 7, ParticipantID: 21, JudgeID: 3, ParameterID: 4}), ShouldEqual, "scores/7/21/3/4")
	})
}
