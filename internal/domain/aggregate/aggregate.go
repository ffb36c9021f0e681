// Package aggregate turns calculated results into per-judge and final standings.
package aggregate

import (
	"github.com/shopspring/decimal"

	"github.com/okian/arena/internal/domain/errs"
	"github.com/okian/arena/internal/domain/model"
)

// Averages and percentages are quantized to two decimal places.
const places = 2

var hundred = decimal.NewFromInt(100)

// DefaultScale is the FEI maximum mark used to express averages as percentages.
var DefaultScale = decimal.NewFromInt(10)

// JudgeResult is one judge's view of a participant.
type JudgeResult struct {
	JudgeID    int64
	Average    decimal.Decimal
	Percentage decimal.Decimal
	Count      int
}

// FinalResult combines all judges.
type FinalResult struct {
	Average    decimal.Decimal
	Percentage decimal.Decimal
	JudgeCount int
}

// AverageOfResults returns the mean of results rounded half up to 2dp.
// An empty slice averages to zero.
func AverageOfResults(results []decimal.Decimal) decimal.Decimal {
	if len(results) == 0 {
		return decimal.Zero.Round(places)
	}
	return decimal.Sum(results[0], results[1:]...).
		DivRound(decimal.NewFromInt(int64(len(results))), places+4).
		Round(places)
}

// ToPercentage expresses average as a percentage of max, 2dp.
func ToPercentage(average, max decimal.Decimal) (decimal.Decimal, error) {
	if !max.IsPositive() {
		return decimal.Zero, errs.NewKind("aggregate.to_percentage", errs.ErrComputation, "max value %s must be positive", max)
	}
	return average.Mul(hundred).DivRound(max, places+4).Round(places), nil
}

// PerJudge averages the calculated results of one judge's scores.
func PerJudge(judgeID int64, scores []model.Score, scale decimal.Decimal) (JudgeResult, error) {
	results := make([]decimal.Decimal, 0, len(scores))
	for _, s := range scores {
		results = append(results, s.CalculatedResult)
	}
	avg := AverageOfResults(results)
	pct, err := ToPercentage(avg, scale)
	if err != nil {
		return JudgeResult{}, err
	}
	return JudgeResult{JudgeID: judgeID, Average: avg, Percentage: pct, Count: len(scores)}, nil
}

// Final averages per-judge percentages and derives the average mark from the
// combined percentage on the given scale.
func Final(judges []JudgeResult, scale decimal.Decimal) FinalResult {
	if len(judges) == 0 {
		zero := decimal.Zero.Round(places)
		return FinalResult{Average: zero, Percentage: zero}
	}
	pcts := make([]decimal.Decimal, 0, len(judges))
	for _, j := range judges {
		pcts = append(pcts, j.Percentage)
	}
	pct := AverageOfResults(pcts)
	avg := pct.Div(hundred).Mul(scale).Round(places)
	return FinalResult{Average: avg, Percentage: pct, JudgeCount: len(judges)}
}
