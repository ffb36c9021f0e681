package seed_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/domain/errs"
	"github.com/okian/arena/internal/seed"
)

const fixture = `
parameters:
  - key: walk
    name: Walk
    coefficient: 1
    max_value: 10
  - key: piaffe
    name: Piaffe
    description: Collected trot on the spot
    coefficient: 1
    max_value: 10
competitions:
  - id: 100
    name: CDI3* Grand Prix
    status: in_progress
    date: 2025-05-01
    parameters:
      - key: walk
      - key: piaffe
        coefficient: 2
    judges:
      - id: 9001
        first_name: Anne
        last_name: Gribbons
        head: true
      - id: 9002
        last_name: Kyrklund
    participants:
      - number: 101
        rider: {first_name: Isabell, last_name: Werth, nationality: GER}
        horse: {name: Bella Rose, breed: Westphalian}
      - number: 102
        rider: {first_name: Charlotte, last_name: Dujardin, nationality: GBR}
        horse: {name: Valegro, breed: KWPN}
        withdrawn: true
        withdrawal_reason: vet check
  - name: CDI3* Grand Prix Special
    parameters:
      - key: walk
    judges:
      - id: 9001
`

func TestParse(t *testing.T) {
	Convey("Given fixtures", t, func() {
		Convey("A valid fixture parses", func() {
			f, err := seed.Parse(strings.NewReader(fixture))
			So(err, ShouldBeNil)
			So(len(f.Parameters), ShouldEqual, 2)
			So(len(f.Competitions), ShouldEqual, 2)
			So(*f.Competitions[0].Parameters[1].Coefficient, ShouldEqual, 2)
		})

		Convey("Unknown fields are rejected", func() {
			_, err := seed.Parse(strings.NewReader("competitions:\n  - name: x\n    venue: Aachen\n"))
			So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
		})

		Convey("Unknown parameter references are rejected", func() {
			_, err := seed.Parse(strings.NewReader("competitions:\n  - name: x\n    parameters:\n      - key: canter\n"))
			So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, `unknown parameter "canter"`)
		})

		Convey("Bad dates and coefficients are rejected", func() {
			_, err := seed.Parse(strings.NewReader("competitions:\n  - name: x\n    date: May 1st\n"))
			So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
			_, err = seed.Parse(strings.NewReader("parameters:\n  - key: walk\n    coefficient: 0\n    max_value: 10\n"))
			So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
		})

		Convey("Maximums above the percentage scale are rejected", func() {
			f, err := seed.Parse(strings.NewReader(fixture))
			So(err, ShouldBeNil)
			So(f.CheckScale(10), ShouldBeNil)

			over := int64(20)
			f.Competitions[0].Parameters[0].MaxValue = &over
			err = f.CheckScale(10)
			So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, `parameter "walk": max_value 20 exceeds percentage scale 10`)
			So(f.CheckScale(20), ShouldBeNil)

			f.Competitions[0].Parameters[0].MaxValue = nil
			f.Parameters[1].MaxValue = 12
			So(errors.Is(f.CheckScale(10), errs.ErrValidation), ShouldBeTrue)

			_, err = seed.Parse(strings.NewReader("parameters:\n  - key: walk\n    coefficient: 1\n    max_value: 10\ncompetitions:\n  - name: x\n    parameters:\n      - key: walk\n        max_value: 0\n"))
			So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
		})

		Convey("An empty document is an empty fixture", func() {
			f, err := seed.Parse(strings.NewReader(""))
			So(err, ShouldBeNil)
			So(f.Competitions, ShouldBeEmpty)
		})
	})
}

func TestApply(t *testing.T) {
	Convey("Given a fixture and an empty store", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		path := filepath.Join(t.TempDir(), "seed.yaml")
		So(os.WriteFile(path, []byte(fixture), 0o600), ShouldBeNil)
		f, err := seed.LoadFile(path)
		So(err, ShouldBeNil)

		Convey("When it is applied", func() {
			sum, err := seed.Apply(ctx, store, f)
			So(err, ShouldBeNil)

			Convey("Then everything is stored", func() {
				So(sum.Competitions, ShouldEqual, 2)
				So(sum.Participants, ShouldEqual, 2)
				So(sum.Judges, ShouldEqual, 3)
				So(sum.Parameters, ShouldEqual, 3)

				err := store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
					c, err := tx.Competition(ctx, 100)
					So(err, ShouldBeNil)
					So(c.Name, ShouldEqual, "CDI3* Grand Prix")
					So(c.Date.Format("2006-01-02"), ShouldEqual, "2025-05-01")

					params, err := tx.Parameters(ctx, 100)
					So(err, ShouldBeNil)
					So(len(params), ShouldEqual, 2)
					So(params[1].EffectiveCoefficient(), ShouldEqual, 2)

					active, err := tx.Participants(ctx, 100, false)
					So(err, ShouldBeNil)
					So(len(active), ShouldEqual, 1)
					So(active[0].Horse.Name, ShouldEqual, "Bella Rose")

					judges, err := tx.Judges(ctx, 100)
					So(err, ShouldBeNil)
					So(judges[0].IsHead, ShouldBeTrue)

					comps, err := tx.JudgeCompetitions(ctx, 9001)
					So(err, ShouldBeNil)
					So(len(comps), ShouldEqual, 2)
					return nil
				})
				So(err, ShouldBeNil)
			})

			Convey("Then both competitions share the walk parameter", func() {
				err := store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
					first, err := tx.Parameters(ctx, 100)
					So(err, ShouldBeNil)
					comps, err := tx.JudgeCompetitions(ctx, 9001)
					So(err, ShouldBeNil)
					var other int64
					for _, id := range comps {
						if id != 100 {
							other = id
						}
					}
					second, err := tx.Parameters(ctx, other)
					So(err, ShouldBeNil)
					So(second[0].Parameter.ID, ShouldEqual, first[0].Parameter.ID)
					return nil
				})
				So(err, ShouldBeNil)
			})

			Convey("Then applying it again skips the competition with an id", func() {
				again, err := seed.Apply(ctx, store, f)
				So(err, ShouldBeNil)
				So(again.Skipped, ShouldEqual, 1)
				So(again.Competitions, ShouldEqual, 1)
			})
		})

		Reset(func() { _ = store.Close() })
	})
}
