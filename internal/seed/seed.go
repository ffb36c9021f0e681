// Package seed loads competitions, entries, judges and parameters from a
// YAML fixture into a store.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/domain/errs"
	"github.com/okian/arena/internal/domain/model"
)

// File is the fixture layout.
type File struct {
	Parameters   []Parameter   `yaml:"parameters"`
	Competitions []Competition `yaml:"competitions"`
}

// Parameter is an evaluation parameter shared by competitions.
type Parameter struct {
	ID          int64  `yaml:"id"`
	Key         string `yaml:"key"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Coefficient int    `yaml:"coefficient"`
	MaxValue    int64  `yaml:"max_value"`
}

// Competition is one class with its entries, panel and test sheet.
type Competition struct {
	ID           int64          `yaml:"id"`
	Name         string         `yaml:"name"`
	Status       string         `yaml:"status"`
	Date         string         `yaml:"date"`
	Parameters   []ParameterRef `yaml:"parameters"`
	Judges       []Judge        `yaml:"judges"`
	Participants []Participant  `yaml:"participants"`
}

// ParameterRef binds a shared parameter, optionally overriding its limits.
type ParameterRef struct {
	Key         string `yaml:"key"`
	Coefficient *int   `yaml:"coefficient"`
	MaxValue    *int64 `yaml:"max_value"`
}

// Judge is a panel member. ID is the judge's user id.
type Judge struct {
	ID        int64  `yaml:"id"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Head      bool   `yaml:"head"`
}

// Participant is a rider and horse entry.
type Participant struct {
	ID     int64 `yaml:"id"`
	Number int   `yaml:"number"`
	Order  int   `yaml:"order"`
	Rider  struct {
		FirstName   string `yaml:"first_name"`
		LastName    string `yaml:"last_name"`
		Nationality string `yaml:"nationality"`
	} `yaml:"rider"`
	Horse struct {
		Name  string `yaml:"name"`
		Breed string `yaml:"breed"`
	} `yaml:"horse"`
	Withdrawn        bool   `yaml:"withdrawn"`
	WithdrawalReason string `yaml:"withdrawal_reason"`
}

// Summary counts what Apply stored.
type Summary struct {
	Competitions int
	Skipped      int
	Participants int
	Judges       int
	Parameters   int
}

const dateLayout = "2006-01-02"

// Parse decodes and checks a fixture.
func Parse(r io.Reader) (*File, error) {
	const op = "seed.parse"
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, errs.WrapKind(op, errs.ErrValidation, err)
	}
	if err := f.validate(); err != nil {
		return nil, errs.WrapKind(op, errs.ErrValidation, err)
	}
	return &f, nil
}

// LoadFile reads and parses a fixture from disk.
func LoadFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer fh.Close()
	return Parse(fh)
}

func (f *File) validate() error {
	keys := make(map[string]bool, len(f.Parameters))
	for i, p := range f.Parameters {
		switch {
		case p.Key == "":
			return fmt.Errorf("parameter %d: key is required", i)
		case keys[p.Key]:
			return fmt.Errorf("parameter %q defined twice", p.Key)
		case p.Coefficient <= 0:
			return fmt.Errorf("parameter %q: coefficient must be positive", p.Key)
		case p.MaxValue <= 0:
			return fmt.Errorf("parameter %q: max_value must be positive", p.Key)
		}
		keys[p.Key] = true
	}
	for _, c := range f.Competitions {
		if c.Name == "" {
			return errors.New("competition name is required")
		}
		if c.Date != "" {
			if _, err := time.Parse(dateLayout, c.Date); err != nil {
				return fmt.Errorf("competition %q: date: %w", c.Name, err)
			}
		}
		for _, ref := range c.Parameters {
			if !keys[ref.Key] {
				return fmt.Errorf("competition %q: unknown parameter %q", c.Name, ref.Key)
			}
			if ref.Coefficient != nil && *ref.Coefficient <= 0 {
				return fmt.Errorf("competition %q: parameter %q: coefficient must be positive", c.Name, ref.Key)
			}
			if ref.MaxValue != nil && *ref.MaxValue <= 0 {
				return fmt.Errorf("competition %q: parameter %q: max_value must be positive", c.Name, ref.Key)
			}
		}
		for _, j := range c.Judges {
			if j.ID <= 0 {
				return fmt.Errorf("competition %q: judge id must be positive", c.Name)
			}
		}
	}
	return nil
}

// CheckScale rejects parameters whose effective max_value exceeds scale, the
// mark that counts as 100%. A larger maximum would rank above 100%.
func (f *File) CheckScale(scale int64) error {
	const op = "seed.check_scale"
	maxByKey := make(map[string]int64, len(f.Parameters))
	for _, p := range f.Parameters {
		maxByKey[p.Key] = p.MaxValue
	}
	for _, c := range f.Competitions {
		for _, ref := range c.Parameters {
			max := maxByKey[ref.Key]
			if ref.MaxValue != nil {
				max = *ref.MaxValue
			}
			if max > scale {
				return errs.NewKind(op, errs.ErrValidation,
					"competition %q: parameter %q: max_value %d exceeds percentage scale %d", c.Name, ref.Key, max, scale)
			}
		}
	}
	return nil
}

// Apply stores the fixture in one transaction. Competitions with an explicit
// id that already exists are left untouched, so a fixture can be applied on
// every start.
func Apply(ctx context.Context, store repository.Store, f *File) (Summary, error) {
	const op = "seed.apply"
	var sum Summary
	err := store.Update(ctx, func(ctx context.Context, tx repository.Tx) error {
		sum = Summary{}
		params := make(map[string]model.EvaluationParameter, len(f.Parameters))
		for _, p := range f.Parameters {
			params[p.Key] = model.EvaluationParameter{
				ID:          p.ID,
				Name:        p.Name,
				Description: p.Description,
				Coefficient: p.Coefficient,
				MaxValue:    p.MaxValue,
			}
		}

		for _, c := range f.Competitions {
			if c.ID != 0 {
				_, err := tx.Competition(ctx, c.ID)
				if err == nil {
					sum.Skipped++
					continue
				}
				if !errors.Is(err, repository.ErrNotFound) {
					return err
				}
			}
			comp := model.Competition{ID: c.ID, Name: c.Name, Status: c.Status}
			if comp.Status == "" {
				comp.Status = model.StatusPending
			}
			if c.Date != "" {
				comp.Date, _ = time.Parse(dateLayout, c.Date)
			}
			if err := tx.SaveCompetition(ctx, &comp); err != nil {
				return fmt.Errorf("competition %q: %w", c.Name, err)
			}
			sum.Competitions++

			for i, ref := range c.Parameters {
				cp := model.CompetitionParameter{
					CompetitionID:     comp.ID,
					Parameter:         params[ref.Key],
					Order:             i + 1,
					CustomCoefficient: ref.Coefficient,
					CustomMaxValue:    ref.MaxValue,
				}
				if err := tx.SaveParameter(ctx, &cp); err != nil {
					return fmt.Errorf("competition %q: parameter %q: %w", c.Name, ref.Key, err)
				}
				// Later competitions share the evaluation parameter.
				params[ref.Key] = cp.Parameter
				sum.Parameters++
			}

			for _, j := range c.Judges {
				err := tx.SaveJudge(ctx, model.CompetitionJudge{
					CompetitionID: comp.ID,
					JudgeID:       j.ID,
					FirstName:     j.FirstName,
					LastName:      j.LastName,
					IsHead:        j.Head,
				})
				if err != nil {
					return fmt.Errorf("competition %q: judge %d: %w", c.Name, j.ID, err)
				}
				sum.Judges++
			}

			for i, p := range c.Participants {
				order := p.Order
				if order == 0 {
					order = i + 1
				}
				mp := model.Participant{
					ID:            p.ID,
					CompetitionID: comp.ID,
					Rider: model.Rider{
						FirstName:   p.Rider.FirstName,
						LastName:    p.Rider.LastName,
						Nationality: p.Rider.Nationality,
					},
					Horse:            model.Horse{Name: p.Horse.Name, Breed: p.Horse.Breed},
					Number:           p.Number,
					Order:            order,
					Withdrawn:        p.Withdrawn,
					WithdrawalReason: p.WithdrawalReason,
				}
				if err := tx.SaveParticipant(ctx, &mp); err != nil {
					return fmt.Errorf("competition %q: participant %d: %w", c.Name, p.Number, err)
				}
				sum.Participants++
			}
		}
		return nil
	})
	if err != nil {
		return Summary{}, errs.Wrap(op, err)
	}
	return sum, nil
}
