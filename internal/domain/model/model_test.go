package model_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/arena/internal/domain/model"
)

func TestCompetitionParameter(t *testing.T) {
	Convey("Given a parameter with defaults", t, func() {
		p := model.CompetitionParameter{
			Parameter: model.EvaluationParameter{ID: 1, Name: "Walk", Coefficient: 2, MaxValue: 10},
		}

		Convey("Effective values fall back to defaults", func() {
			So(p.EffectiveCoefficient(), ShouldEqual, 2)
			So(p.EffectiveMaxValue(), ShouldEqual, int64(10))
		})

		Convey("Overrides win when present", func() {
			c, m := 3, int64(20)
			p.CustomCoefficient = &c
			p.CustomMaxValue = &m
			So(p.EffectiveCoefficient(), ShouldEqual, 3)
			So(p.EffectiveMaxValue(), ShouldEqual, int64(20))
		})
	})
}

func TestPrincipal(t *testing.T) {
	Convey("Given principals of different roles", t, func() {
		admin := model.Principal{UserID: 1, Role: model.RoleAdmin}
		judge := model.Principal{UserID: 2, Role: model.RoleJudge, Competitions: []int64{10, 11}}
		viewer := model.Principal{UserID: 3, Role: model.RoleViewer, Competitions: []int64{10}}

		So(admin.CanJudge(99), ShouldBeTrue)
		So(judge.CanJudge(10), ShouldBeTrue)
		So(judge.CanJudge(12), ShouldBeFalse)
		So(viewer.CanJudge(10), ShouldBeFalse)
	})
}

func TestNames(t *testing.T) {
	Convey("Names are trimmed joins", t, func() {
		So(model.Rider{FirstName: "Isabell", LastName: "Werth"}.FullName(), ShouldEqual, "Isabell Werth")
		So(model.CompetitionJudge{LastName: "Smith"}.Name(), ShouldEqual, "Smith")
	})
}
