package scoring_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/arena/internal/domain/errs"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/scoring"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestValidateScore(t *testing.T) {
	Convey("Given a maximum of 10", t, func() {
		max := d("10")

		Convey("Boundary values are valid", func() {
			So(scoring.ValidateScore(d("0"), max), ShouldBeNil)
			So(scoring.ValidateScore(d("10"), max), ShouldBeNil)
			So(scoring.ValidateScore(d("7.5"), max), ShouldBeNil)
		})

		Convey("Values outside the range are rejected", func() {
			for _, v := range []string{"-0.1", "10.1", "11"} {
				err := scoring.ValidateScore(d(v), max)
				var oor *scoring.OutOfRangeError
				So(errors.As(err, &oor), ShouldBeTrue)
				So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
			}
		})

		Convey("Values with two decimals are rejected", func() {
			err := scoring.ValidateScore(d("7.25"), max)
			So(errors.Is(err, scoring.ErrPrecision), ShouldBeTrue)
			So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
		})
	})
}

func TestCalculateResult(t *testing.T) {
	Convey("Given the FEI examples", t, func() {
		Convey("7.5 with coefficient 1 rounds half up to 8", func() {
			r, err := scoring.CalculateResult(d("7.5"), 1, d("10"))
			So(err, ShouldBeNil)
			So(r.String(), ShouldEqual, "8")
		})

		Convey("6.0 with coefficient 2 clamps to the maximum", func() {
			r, err := scoring.CalculateResult(d("6.0"), 2, d("10"))
			So(err, ShouldBeNil)
			So(r.String(), ShouldEqual, "10")
		})

		Convey("Zero stays zero", func() {
			r, err := scoring.CalculateResult(d("0"), 3, d("10"))
			So(err, ShouldBeNil)
			So(r.IsZero(), ShouldBeTrue)
		})

		Convey("Clamping happens before rounding", func() {
			r, err := scoring.CalculateResult(d("4.9"), 2, d("9"))
			So(err, ShouldBeNil)
			So(r.String(), ShouldEqual, "9")
		})

		Convey("6.2 with coefficient 1 rounds down", func() {
			r, err := scoring.CalculateResult(d("6.2"), 1, d("10"))
			So(err, ShouldBeNil)
			So(r.String(), ShouldEqual, "6")
		})
	})

	Convey("Given an invalid coefficient", t, func() {
		_, err := scoring.CalculateResult(d("5"), 0, d("10"))
		var ice *scoring.InvalidCoefficientError
		So(errors.As(err, &ice), ShouldBeTrue)
		So(errors.Is(err, errs.ErrComputation), ShouldBeTrue)
	})

	Convey("Given an out of range value", t, func() {
		_, err := scoring.CalculateResult(d("12"), 1, d("10"))
		So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
	})

	Convey("Results are always within [0, max]", t, func() {
		for v := 0; v <= 100; v++ {
			value := decimal.New(int64(v), -1)
			for coef := 1; coef <= 4; coef++ {
				r, err := scoring.CalculateResult(value, coef, d("10"))
				So(err, ShouldBeNil)
				So(r.IsNegative(), ShouldBeFalse)
				So(r.LessThanOrEqual(d("10")), ShouldBeTrue)
			}
		}
	})
}

func TestScore(t *testing.T) {
	Convey("Given a competition parameter with an override", t, func() {
		coef := 2
		p := model.CompetitionParameter{
			Parameter:         model.EvaluationParameter{ID: 3, Coefficient: 1, MaxValue: 10},
			CustomCoefficient: &coef,
		}

		Convey("The effective coefficient is applied", func() {
			res, err := scoring.Score(scoring.Input{Parameter: p, Value: d("4.3")})
			So(err, ShouldBeNil)
			So(res.Coefficient, ShouldEqual, 2)
			So(res.CalculatedResult.String(), ShouldEqual, "9")
		})
	})
}
