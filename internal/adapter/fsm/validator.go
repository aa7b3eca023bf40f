package fsm

import (
	"context"
	"errors"

	loopfsm "github.com/looplab/fsm"

	"github.com/parkiq/parkiq/internal/domain"
)

// Compile-time check: Validator implements domain.PhaseValidator.
var _ domain.PhaseValidator = (*Validator)(nil)

// events converts domain.PhaseTransitions into looplab/fsm EventDesc format.
// It consolidates transitions with the same event+destination into a single
// EventDesc with multiple source phases (e.g., EventPay lands in
// "paid_within_grace" from every live phase).
var events = buildEvents()

func buildEvents() []loopfsm.EventDesc {
	type key struct {
		event string
		dst   string
	}
	grouped := make(map[key][]string)
	order := make([]key, 0)

	for _, t := range domain.PhaseTransitions {
		k := key{event: string(t.Event), dst: string(t.Dst)}
		if _, exists := grouped[k]; !exists {
			order = append(order, k)
		}
		grouped[k] = append(grouped[k], string(t.Src))
	}

	out := make([]loopfsm.EventDesc, 0, len(order))
	for _, k := range order {
		out = append(out, loopfsm.EventDesc{
			Name: k.event,
			Src:  grouped[k],
			Dst:  k.dst,
		})
	}
	return out
}

// Validator implements domain.PhaseValidator using looplab/fsm. It creates a
// short-lived FSM instance per Apply call, initialized with the ticket's
// current phase. This is necessary because looplab/fsm is stateful (it
// tracks the current state internally).
type Validator struct{}

// New creates a new FSM-backed phase validator.
func New() *Validator {
	return &Validator{}
}

// Apply checks if the given event is valid from the current phase and
// returns the destination phase. Self-transitions (paying again inside the
// grace window) are valid and keep the phase. Returns a
// domain.PhaseTransitionError if the transition is not allowed.
func (v *Validator) Apply(ctx context.Context, current domain.Phase, event domain.PhaseEvent) (domain.Phase, error) {
	machine := loopfsm.NewFSM(string(current), events, nil)

	if err := machine.Event(ctx, string(event)); err != nil {
		// looplab reports a recognized event that lands in the current
		// state as NoTransitionError; for this machine that is the grace
		// window restarting, not a violation.
		var noTransition loopfsm.NoTransitionError
		if errors.As(err, &noTransition) {
			return current, nil
		}

		var invalidEvent loopfsm.InvalidEventError
		if errors.As(err, &invalidEvent) {
			return "", &domain.PhaseTransitionError{
				Event:   event,
				Current: current,
			}
		}
		return "", err
	}

	return domain.Phase(machine.Current()), nil
}
