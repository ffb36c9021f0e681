// Package scoring validates raw judge marks and turns them into weighted results.
package scoring

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/okian/arena/internal/domain/errs"
	"github.com/okian/arena/internal/domain/model"
)

// Raw marks carry at most one decimal place.
const valuePlaces = 1

// ErrPrecision is returned for marks with more than one decimal place.
var ErrPrecision = errors.New("score must have at most one decimal place")

// OutOfRangeError reports a mark outside [0, Max].
type OutOfRangeError struct {
	Value decimal.Decimal
	Max   decimal.Decimal
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("score %s outside range [0, %s]", e.Value, e.Max)
}

// Is makes OutOfRangeError a validation failure.
func (e *OutOfRangeError) Is(target error) bool { return target == errs.ErrValidation }

// InvalidCoefficientError reports a non-positive coefficient.
type InvalidCoefficientError struct {
	Coefficient int
}

func (e *InvalidCoefficientError) Error() string {
	return fmt.Sprintf("coefficient %d must be positive", e.Coefficient)
}

// Is makes InvalidCoefficientError a computation failure.
func (e *InvalidCoefficientError) Is(target error) bool { return target == errs.ErrComputation }

// ValidateScore checks that value lies in [0, max] with one decimal place at most.
func ValidateScore(value, max decimal.Decimal) error {
	if value.IsNegative() || value.GreaterThan(max) {
		return &OutOfRangeError{Value: value, Max: max}
	}
	if !value.Equal(value.Truncate(valuePlaces)) {
		return errs.WrapKind("scoring.validate", errs.ErrValidation, ErrPrecision)
	}
	return nil
}

// CalculateResult returns value*coefficient, clamped to max and rounded half up
// to an integer. Clamping happens before rounding.
func CalculateResult(value decimal.Decimal, coefficient int, max decimal.Decimal) (decimal.Decimal, error) {
	if coefficient <= 0 {
		return decimal.Zero, &InvalidCoefficientError{Coefficient: coefficient}
	}
	if err := ValidateScore(value, max); err != nil {
		return decimal.Zero, err
	}
	raw := value.Mul(decimal.NewFromInt(int64(coefficient)))
	if raw.GreaterThan(max) {
		raw = max
	}
	return raw.Round(0), nil
}

// Input is a raw mark for a competition parameter.
type Input struct {
	Parameter model.CompetitionParameter
	Value     decimal.Decimal
}

// Result is the processed mark.
type Result struct {
	Value            decimal.Decimal
	CalculatedResult decimal.Decimal
	Coefficient      int
	MaxValue         decimal.Decimal
}

// Score validates in against the parameter's effective limits and computes the result.
func Score(in Input) (Result, error) {
	coef := in.Parameter.EffectiveCoefficient()
	max := decimal.NewFromInt(in.Parameter.EffectiveMaxValue())
	res, err := CalculateResult(in.Value, coef, max)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Value:            in.Value,
		CalculatedResult: res,
		Coefficient:      coef,
		MaxValue:         max,
	}, nil
}
