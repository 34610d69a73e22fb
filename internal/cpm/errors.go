package cpm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCycleDetected is returned when no topological order exists.
var ErrCycleDetected = errors.New("cycle detected")

// CycleError reports how far the sort got before stalling, plus one
// witness cycle when the graph can produce it.
type CycleError struct {
	Sorted int
	Total  int
	Path   []string
}

func (e *CycleError) Error() string {
	msg := fmt.Sprintf("%s: %d of %d tasks sorted", ErrCycleDetected, e.Sorted, e.Total)
	if len(e.Path) > 0 {
		msg += " (" + strings.Join(e.Path, " -> ") + ")"
	}
	return msg
}

func (e *CycleError) Unwrap() error { return ErrCycleDetected }
