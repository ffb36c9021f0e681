package identity

import (
	"context"

	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/domain/errs"
	"github.com/okian/arena/internal/domain/model"
)

// Directory resolves judge assignments from the store.
type Directory struct {
	store repository.Store
}

// NewDirectory creates a directory over store.
func NewDirectory(store repository.Store) *Directory {
	return &Directory{store: store}
}

// Judge returns the principal of a judge with current assignments. A judge
// without assignments is unknown.
func (d *Directory) Judge(ctx context.Context, judgeID int64) (model.Principal, error) {
	const op = "identity.judge"
	var comps []int64
	err := d.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		comps, err = tx.JudgeCompetitions(ctx, judgeID)
		return err
	})
	if err != nil {
		return model.Principal{}, errs.Wrap(op, err)
	}
	if len(comps) == 0 {
		return model.Principal{}, errs.NewKind(op, errs.ErrNotFound, "judge %d has no assignments", judgeID)
	}
	return model.Principal{UserID: judgeID, Role: model.RoleJudge, Competitions: comps}, nil
}

// Refresh replaces a judge principal's token assignments with the stored
// ones. Other roles are returned unchanged.
func (d *Directory) Refresh(ctx context.Context, p model.Principal) (model.Principal, error) {
	if p.Role != model.RoleJudge {
		return p, nil
	}
	var comps []int64
	err := d.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		comps, err = tx.JudgeCompetitions(ctx, p.UserID)
		return err
	})
	if err != nil {
		return p, errs.Wrap("identity.refresh", err)
	}
	p.Competitions = comps
	return p, nil
}
