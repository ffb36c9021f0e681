package fanout

import (
	"strconv"
	"time"

	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/ranking"
	"github.com/okian/arena/internal/domain/types"
)

// ScoreDoc is the mirror document of one mark at scores/{c}/{p}/{j}/{param}.
type ScoreDoc struct {
	ID               int64     `json:"id"`
	JudgeID          int64     `json:"judgeId"`
	JudgeName        string    `json:"judgeName"`
	ParameterID      int64     `json:"parameterId"`
	ParameterName    string    `json:"parameterName"`
	Coefficient      int       `json:"coefficient"`
	Value            float64   `json:"value"`
	CalculatedResult float64   `json:"calculatedResult"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func newScoreDoc(s model.Score, judgeName string, p model.CompetitionParameter) ScoreDoc {
	return ScoreDoc{
		ID:               s.ID,
		JudgeID:          s.Key.JudgeID,
		JudgeName:        judgeName,
		ParameterID:      s.Key.ParameterID,
		ParameterName:    p.Parameter.Name,
		Coefficient:      p.EffectiveCoefficient(),
		Value:            s.Value.InexactFloat64(),
		CalculatedResult: s.CalculatedResult.InexactFloat64(),
		UpdatedAt:        s.UpdatedAt.UTC(),
	}
}

// JudgeScoresDoc is the mirror document at scores/{c}/{p}/{j}, keyed by
// parameter id.
type JudgeScoresDoc map[string]ScoreDoc

// RankingsDoc is the mirror document at rankings/{c}, keyed by participant id.
type RankingsDoc map[string]types.RankingEntry

func newRankingsDoc(entries []types.RankingEntry) RankingsDoc {
	doc := make(RankingsDoc, len(entries))
	for _, e := range entries {
		doc[strconv.FormatInt(e.ParticipantID, 10)] = e
	}
	return doc
}

// RankingEntries flattens standings into wire rows.
func RankingEntries(standings []ranking.Standing) []types.RankingEntry {
	out := make([]types.RankingEntry, 0, len(standings))
	for _, st := range standings {
		out = append(out, types.NewRankingEntry(st.Ranking, st.Participant, st.PreviousPosition))
	}
	return out
}

type scorePayload struct {
	Doc   ScoreDoc
	Entry types.ScoreEntry
}

type participantPayload struct {
	Judges  map[int64]JudgeScoresDoc
	Entries []types.ScoreEntry // every judge's scores, for live subscribers
}

type rankingsPayload struct {
	Entries []types.RankingEntry
}
