package statemachine

import (
	"context"
	"fmt"
)

// Guard evaluates whether a transition should be allowed based on runtime conditions.
type Guard[S, E ~string] func(ctx context.Context, from S, event E, data any) bool

// Action executes side effects during a transition. Returning an error prevents the transition.
type Action[S, E ~string] func(ctx context.Context, from, to S, event E, data any) error

// Transition defines a state change triggered by an event.
type Transition[S, E ~string] struct {
	From    S
	To      S
	Event   E
	Guards  []Guard[S, E]  // all must pass
	Actions []Action[S, E] // run in order before the state changes
}

// Machine is an immutable transition table.
type Machine[S, E ~string] struct {
	transitions map[S]map[E][]Transition[S, E]
}

// Fire returns the state reached from current on event. The caller persists it.
func (m *Machine[S, E]) Fire(ctx context.Context, current S, event E, data any) (S, error) {
	candidates := m.transitions[current][event]
	if len(candidates) == 0 {
		return current, NewErrNoTransitionAvailable(string(current), string(event))
	}

	t, ok := m.pick(ctx, candidates, current, event, data)
	if !ok {
		return current, NewErrTransitionRejected(string(current), string(event))
	}

	for _, action := range t.Actions {
		if action == nil {
			continue
		}
		if err := action(ctx, current, t.To, event, data); err != nil {
			return current, fmt.Errorf("action failed: %w", err)
		}
	}
	return t.To, nil
}

// CanFire reports whether event would be accepted in state current.
func (m *Machine[S, E]) CanFire(ctx context.Context, current S, event E, data any) bool {
	_, ok := m.pick(ctx, m.transitions[current][event], current, event, data)
	return ok
}

func (m *Machine[S, E]) pick(ctx context.Context, candidates []Transition[S, E], current S, event E, data any) (Transition[S, E], bool) {
	for _, t := range candidates {
		passed := true
		for _, guard := range t.Guards {
			if guard != nil && !guard(ctx, current, event, data) {
				passed = false
				break
			}
		}
		if passed {
			return t, true
		}
	}
	return Transition[S, E]{}, false
}
