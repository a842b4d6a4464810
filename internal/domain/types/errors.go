package types

import "errors"

// ErrQueueFull is returned when an import job cannot be queued.
var ErrQueueFull = errors.New("import queue is full")
