package repository

import (
	"fmt"

	"github.com/okian/arena/internal/domain/errs"
)

// Sentinel kinds for store errors.
var (
	ErrNotFound  = fmt.Errorf("record %w", errs.ErrNotFound)
	ErrDuplicate = fmt.Errorf("duplicate record: %w", errs.ErrConflict)
	ErrReadOnly  = fmt.Errorf("write in read-only transaction: %w", errs.ErrConflict)
	ErrClosed    = fmt.Errorf("store closed: %w", errs.ErrConflict)
)
