package procmgr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// State is the observed state of a managed process as reported by the
// external process manager.
type State string

const (
	StateRunning State = "running"
	StateStopped State = "stopped"
	StateUnknown State = "unknown"
)

// Action is a lifecycle command issued to the external process manager.
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
)

// ParseAction maps a config string to an Action.
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionStart:
		return ActionStart, nil
	case ActionStop:
		return ActionStop, nil
	case ActionRestart:
		return ActionRestart, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Target returns the state the action drives the process toward.
func (a Action) Target() State {
	if a == ActionStop {
		return StateStopped
	}
	return StateRunning
}

// Failure taxonomy. Transport errors are recoverable and retried on later
// cycles; unknown-process is a configuration error surfaced at startup
// validation; rejected means the manager refused the command.
var (
	ErrUnreachable    = errors.New("process manager unreachable")
	ErrUnknownProcess = errors.New("unknown process")
	ErrRejected       = errors.New("action rejected by process manager")
)

// Client is a stateless gateway to the external process manager. Both
// methods are bounded by ctx; Apply must be a no-op success when the
// process is already in the action's target state.
type Client interface {
	// Status reports the observed state for name. StateUnknown comes with
	// a non-nil error describing why the state could not be determined.
	Status(ctx context.Context, name string) (State, error)
	// Apply issues the action and blocks until the manager acknowledges it
	// or ctx expires. It does not wait for application-level readiness.
	Apply(ctx context.Context, name string, action Action) error
}

// Validate checks that every name is known to the manager. Unknown names
// are fatal configuration errors at startup, not runtime errors.
func Validate(ctx context.Context, c Client, names []string) error {
	for _, n := range names {
		_, err := c.Status(ctx, n)
		if errors.Is(err, ErrUnknownProcess) {
			return fmt.Errorf("validate process %q: %w", n, err)
		}
		// Transport errors are tolerated here: the manager may simply not
		// be up yet, and the reconciler handles that at runtime.
	}
	return nil
}
