package statemachine

import "errors"

// Builder provides a fluent API for building a Machine.
type Builder[S, E ~string] struct {
	transitions map[S]map[E][]Transition[S, E]
	err         error

	from    []S
	event   E
	to      S
	guards  []Guard[S, E]
	actions []Action[S, E]
}

// NewBuilder creates an empty builder.
func NewBuilder[S, E ~string]() *Builder[S, E] {
	return &Builder[S, E]{transitions: make(map[S]map[E][]Transition[S, E])}
}

// From sets the source states of the next transition.
func (b *Builder[S, E]) From(states ...S) *Builder[S, E] {
	b.reset()
	b.from = states
	return b
}

// When sets the triggering event.
func (b *Builder[S, E]) When(event E) *Builder[S, E] {
	b.event = event
	return b
}

// To sets the target state.
func (b *Builder[S, E]) To(state S) *Builder[S, E] {
	b.to = state
	return b
}

func (b *Builder[S, E]) WithGuard(guard Guard[S, E]) *Builder[S, E] {
	b.guards = append(b.guards, guard)
	return b
}

func (b *Builder[S, E]) WithAction(action Action[S, E]) *Builder[S, E] {
	b.actions = append(b.actions, action)
	return b
}

// Add registers the pending transition for every source state.
func (b *Builder[S, E]) Add() *Builder[S, E] {
	if b.err != nil {
		return b
	}
	if len(b.from) == 0 || b.event == "" || b.to == "" {
		b.err = errors.Join(b.err, ErrInvalidTransition)
		b.reset()
		return b
	}
	for _, from := range b.from {
		if _, ok := b.transitions[from]; !ok {
			b.transitions[from] = make(map[E][]Transition[S, E])
		}
		b.transitions[from][b.event] = append(b.transitions[from][b.event], Transition[S, E]{
			From:    from,
			To:      b.to,
			Event:   b.event,
			Guards:  b.guards,
			Actions: b.actions,
		})
	}
	b.reset()
	return b
}

// Build returns the machine or the first registration error.
func (b *Builder[S, E]) Build() (*Machine[S, E], error) {
	if b.err != nil {
		return nil, b.err
	}
	return &Machine[S, E]{transitions: b.transitions}, nil
}

// MustBuild panics on registration errors. Tables are static, so a bad one is a programming error.
func (b *Builder[S, E]) MustBuild() *Machine[S, E] {
	m, err := b.Build()
	if err != nil {
		panic(err)
	}
	return m
}

func (b *Builder[S, E]) reset() {
	b.from = nil
	b.event = ""
	b.to = ""
	b.guards = nil
	b.actions = nil
}
