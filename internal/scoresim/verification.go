package scoresim

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/okian/arena/internal/domain/aggregate"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/scoring"
	"github.com/okian/arena/internal/domain/types"
)

// maxReported caps the mismatches listed in a verification error.
const maxReported = 5

// ErrMismatch is returned when published rankings disagree with the sheets.
var ErrMismatch = errors.New("rankings mismatch")

// expectedPercentages recomputes every participant's final percentage from
// the submitted sheets. Judges of the panel without a sheet count as zero.
func expectedPercentages(sheets []*Sheet, judges []int64, params []types.ParameterEntry, scale decimal.Decimal) (map[int64]decimal.Decimal, error) {
	byParam := make(map[int64]types.ParameterEntry, len(params))
	for _, p := range params {
		byParam[p.ID] = p
	}

	scores := make(map[int64]map[int64][]model.Score)
	for _, sh := range sheets {
		if scores[sh.ParticipantID] == nil {
			scores[sh.ParticipantID] = make(map[int64][]model.Score)
		}
		if !sh.Submitted {
			continue
		}
		for _, m := range sh.Marks {
			p, ok := byParam[m.ParameterID]
			if !ok {
				return nil, fmt.Errorf("sheet references unknown parameter %d", m.ParameterID)
			}
			res, err := scoring.CalculateResult(m.Value, p.Coefficient, decimal.NewFromInt(p.MaxValue))
			if err != nil {
				return nil, fmt.Errorf("participant %d judge %d: %w", sh.ParticipantID, sh.JudgeID, err)
			}
			scores[sh.ParticipantID][sh.JudgeID] = append(scores[sh.ParticipantID][sh.JudgeID], model.Score{CalculatedResult: res})
		}
	}

	out := make(map[int64]decimal.Decimal, len(scores))
	for pid, byJudge := range scores {
		results := make([]aggregate.JudgeResult, 0, len(judges))
		for _, jid := range judges {
			jr, err := aggregate.PerJudge(jid, byJudge[jid], scale)
			if err != nil {
				return nil, err
			}
			results = append(results, jr)
		}
		out[pid] = aggregate.Final(results, scale).Percentage
	}
	return out, nil
}

// verifyOrdering checks the published table: positions run 1..n with no
// gaps or repeats, and percentages never increase down the table. Equal
// percentages keep distinct positions.
func verifyOrdering(entries []types.RankingEntry) error {
	for i, e := range entries {
		if e.Position != i+1 {
			return fmt.Errorf("%w: entry %d at position %d, want %d", ErrMismatch, i, e.Position, i+1)
		}
		if i > 0 && e.Percentage > entries[i-1].Percentage {
			return fmt.Errorf("%w: entry %d (%.2f%%) above entry %d (%.2f%%)", ErrMismatch, i, e.Percentage, i-1, entries[i-1].Percentage)
		}
	}
	return nil
}

// verifyRankings compares published entries with the expected percentages.
func verifyRankings(entries []types.RankingEntry, expected map[int64]decimal.Decimal) error {
	if err := verifyOrdering(entries); err != nil {
		return err
	}

	var problems []string
	seen := make(map[int64]bool, len(entries))
	for _, e := range entries {
		seen[e.ParticipantID] = true
		want, ok := expected[e.ParticipantID]
		if !ok {
			problems = append(problems, fmt.Sprintf("participant %d ranked but never scored", e.ParticipantID))
			continue
		}
		if got := decimal.NewFromFloat(e.Percentage); !got.Equal(want) {
			problems = append(problems, fmt.Sprintf("participant %d: got %s%%, want %s%%", e.ParticipantID, got, want))
		}
	}
	for pid := range expected {
		if !seen[pid] {
			problems = append(problems, fmt.Sprintf("participant %d missing from rankings", pid))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	n := len(problems)
	if n > maxReported {
		problems = problems[:maxReported]
	}
	return fmt.Errorf("%w: %d problems, first: %v", ErrMismatch, n, problems)
}
