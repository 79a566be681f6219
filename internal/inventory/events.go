package inventory

import (
	"context"
	"time"
)

// MoveEventKind names the movement transition being broadcast.
type MoveEventKind string

const (
	MoveCancelled MoveEventKind = "cancelled"
	MoveDeleted   MoveEventKind = "deleted"
	MoveDone      MoveEventKind = "done"
)

// MoveEvent is published to observers after a movement transition commits.
// Move carries the state prior to the transition for cancel and delete.
type MoveEvent struct {
	Kind MoveEventKind
	Move Move
	At   time.Time
}

// MoveObserver reacts to movement transitions. Observers run after the
// transition committed; their errors are logged and do not undo it.
type MoveObserver interface {
	OnMoveEvent(ctx context.Context, event MoveEvent) error
}

// MoveObserverFunc adapts a function to MoveObserver.
type MoveObserverFunc func(ctx context.Context, event MoveEvent) error

// OnMoveEvent calls f.
func (f MoveObserverFunc) OnMoveEvent(ctx context.Context, event MoveEvent) error {
	return f(ctx, event)
}
