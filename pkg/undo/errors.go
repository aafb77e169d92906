package undo

import (
	"fmt"

	"github.com/aretw0/rewind/pkg/domain"
)

// Common errors for history operations.
var (
	ErrNothingToUndo = fmt.Errorf("%w: nothing to undo", domain.ErrInvalidState)
	ErrNothingToRedo = fmt.Errorf("%w: nothing to redo", domain.ErrInvalidState)
	ErrDisposed      = fmt.Errorf("%w: entry is disposed", domain.ErrInvalidState)
	ErrReentrant     = fmt.Errorf("%w: history modified from a listener callback", domain.ErrInvalidState)
)
