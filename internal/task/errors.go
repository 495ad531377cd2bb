package task

import (
	"fmt"

	"github.com/tOgg1/armada/internal/models"
)

// InvalidStateError indicates an operation that is not legal for the
// run's current status, such as starting a run twice.
type InvalidStateError struct {
	RunID  string
	Status models.RunStatus
	Op     string
}

// Error implements the error interface.
func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s run %s in status %s", e.Op, e.RunID, e.Status)
}
