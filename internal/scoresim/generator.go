package scoresim

import (
	"crypto/rand"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/okian/arena/internal/domain/types"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1000000
	profileDivisor     = 8
)

// Performance profiles on a 0..10 scale.
const (
	avgPerformerMin     = 5.0
	avgPerformerRange   = 2.0
	highPerformerMin    = 7.0
	highPerformerRange  = 1.5
	lowPerformerMin     = 3.0
	lowPerformerRange   = 2.0
	elitePerformerMin   = 8.5
	elitePerformerRange = 1.5
	wideRangeMin        = 1.0
	wideRange           = 9.0
	markJitter          = 1.0
	profileScale        = 10.0
)

// Constants for performance type cases.
const (
	caseAveragePerformer = 0
	caseHighPerformer    = 1
	caseLowPerformer     = 2
	caseElitePerformer   = 3
	caseMidPerformer     = 4
	caseWideRange        = 7
)

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// generateProfile picks the base level of a participant, mostly average.
func generateProfile() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(profileDivisor))
	switch n.Int64() {
	case caseAveragePerformer, caseMidPerformer:
		return avgPerformerMin + getRandomFloat()*avgPerformerRange
	case caseHighPerformer:
		return highPerformerMin + getRandomFloat()*highPerformerRange
	case caseLowPerformer:
		return lowPerformerMin + getRandomFloat()*lowPerformerRange
	case caseElitePerformer:
		return elitePerformerMin + getRandomFloat()*elitePerformerRange
	case caseWideRange:
		return wideRangeMin + getRandomFloat()*wideRange
	default:
		return avgPerformerMin + getRandomFloat()*avgPerformerRange
	}
}

// generateMark jitters profile, scales it to max and rounds to a half mark
// within [0, max].
func generateMark(profile float64, max int64) decimal.Decimal {
	v := profile + (getRandomFloat()*2-1)*markJitter
	v = v * float64(max) / profileScale
	switch {
	case v < 0:
		v = 0
	case v > float64(max):
		v = float64(max)
	}
	two := decimal.NewFromInt(2)
	return decimal.NewFromFloat(v).Mul(two).Round(0).Div(two).Round(1)
}

// generateSheets builds one sheet per judge and participant. All judges see
// the same participant at a similar level.
func generateSheets(participants, judges []int64, params []types.ParameterEntry) []*Sheet {
	sheets := make([]*Sheet, 0, len(participants)*len(judges))
	for _, pid := range participants {
		profile := generateProfile()
		for _, jid := range judges {
			sheet := &Sheet{JudgeID: jid, ParticipantID: pid, Marks: make([]Mark, 0, len(params))}
			for _, p := range params {
				sheet.Marks = append(sheet.Marks, Mark{ParameterID: p.ID, Value: generateMark(profile, p.MaxValue)})
			}
			sheets = append(sheets, sheet)
		}
	}
	return sheets
}

// chance reports true with probability ratio.
func chance(ratio float64) bool {
	return ratio > 0 && getRandomFloat() < ratio
}
