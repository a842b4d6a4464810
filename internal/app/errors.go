package service

import (
	"errors"
	"fmt"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/types"
)

// Sentinel errors.
var (
	ErrNotStarted = errors.New("service not started")
	ErrQueueFull  = types.ErrQueueFull
	ErrJobUnknown = fmt.Errorf("import job %w", model.ErrNotFound)
)
