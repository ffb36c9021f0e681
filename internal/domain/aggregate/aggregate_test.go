package aggregate_test

import (
	"testing"

	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/arena/internal/domain/aggregate"
	"github.com/okian/arena/internal/domain/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func results(vals ...string) []model.Score {
	out := make([]model.Score, 0, len(vals))
	for _, v := range vals {
		out = append(out, model.Score{CalculatedResult: d(v)})
	}
	return out
}

func TestAverageOfResults(t *testing.T) {
	Convey("Given lists of results", t, func() {
		Convey("An empty list averages to 0.00", func() {
			So(aggregate.AverageOfResults(nil).StringFixed(2), ShouldEqual, "0.00")
		})

		Convey("Averages are rounded half up to two places", func() {
			So(aggregate.AverageOfResults([]decimal.Decimal{d("7"), d("8"), d("8")}).StringFixed(2), ShouldEqual, "7.67")
			So(aggregate.AverageOfResults([]decimal.Decimal{d("1"), d("0"), d("0"), d("0"), d("0"), d("0"), d("0"), d("0")}).StringFixed(2), ShouldEqual, "0.13")
		})
	})
}

func TestToPercentage(t *testing.T) {
	Convey("Given an average on a 10 point scale", t, func() {
		p, err := aggregate.ToPercentage(d("7.67"), d("10"))
		So(err, ShouldBeNil)
		So(p.StringFixed(2), ShouldEqual, "76.70")
	})

	Convey("Given a non-positive maximum", t, func() {
		_, err := aggregate.ToPercentage(d("5"), decimal.Zero)
		So(err, ShouldNotBeNil)
	})
}

func TestFinal(t *testing.T) {
	Convey("Given two judges at 100% and 50%", t, func() {
		a, err := aggregate.PerJudge(1, results("10"), aggregate.DefaultScale)
		So(err, ShouldBeNil)
		b, err := aggregate.PerJudge(2, results("4", "6"), aggregate.DefaultScale)
		So(err, ShouldBeNil)

		So(a.Percentage.StringFixed(2), ShouldEqual, "100.00")
		So(b.Average.StringFixed(2), ShouldEqual, "5.00")
		So(b.Percentage.StringFixed(2), ShouldEqual, "50.00")

		Convey("The final percentage averages judge percentages", func() {
			f := aggregate.Final([]aggregate.JudgeResult{a, b}, aggregate.DefaultScale)
			So(f.Percentage.StringFixed(2), ShouldEqual, "75.00")
			So(f.Average.StringFixed(2), ShouldEqual, "7.50")
			So(f.JudgeCount, ShouldEqual, 2)
		})
	})

	Convey("Given no judges", t, func() {
		f := aggregate.Final(nil, aggregate.DefaultScale)
		So(f.Percentage.IsZero(), ShouldBeTrue)
		So(f.Average.IsZero(), ShouldBeTrue)
		So(f.JudgeCount, ShouldEqual, 0)
	})

	Convey("Given a judge without scores", t, func() {
		j, err := aggregate.PerJudge(3, nil, aggregate.DefaultScale)
		So(err, ShouldBeNil)
		So(j.Average.IsZero(), ShouldBeTrue)
		So(j.Percentage.IsZero(), ShouldBeTrue)
		So(j.Count, ShouldEqual, 0)
	})

	Convey("Percentages stay within [0, 100]", t, func() {
		j, err := aggregate.PerJudge(1, results("10", "10", "10"), aggregate.DefaultScale)
		So(err, ShouldBeNil)
		So(j.Percentage.LessThanOrEqual(d("100")), ShouldBeTrue)
	})
}
