package worker

import (
	"github.com/rolewatch/rolewatch-api/internal/models"
)

// Dispatcher is the hand-off point between the HTTP layer and the
// initializer pool. Start returns to the client as soon as the run row
// exists; the initializer picks the run up from here.
type Dispatcher struct {
	runs chan *models.Run
}

// NewDispatcher creates a dispatcher with the given buffer. The buffer
// only needs to absorb bursts of concurrent Start calls; one slot per
// expected simultaneous user is plenty.
func NewDispatcher(buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 16
	}
	return &Dispatcher{
		runs: make(chan *models.Run, buffer),
	}
}

// Dispatch hands a run to the initializer pool without blocking.
// Returns false when the buffer is full, which the caller must treat as
// a failed start.
func (d *Dispatcher) Dispatch(run *models.Run) bool {
	select {
	case d.runs <- run:
		return true
	default:
		return false
	}
}

// Runs is the channel the initializer pool consumes.
func (d *Dispatcher) Runs() <-chan *models.Run {
	return d.runs
}

// Pending returns the number of dispatched runs not yet picked up.
func (d *Dispatcher) Pending() int {
	return len(d.runs)
}
