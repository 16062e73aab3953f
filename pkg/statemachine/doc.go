// Package statemachine provides an immutable transition table for finite
// state machines whose current state lives outside the machine, for example
// in a database row.
//
// Build the table once at startup, then ask it for the next state:
//
//	m, err := statemachine.NewBuilder[Status, Event]().
//		From(StatusIncomplete, StatusPastDue).When(EventActivate).To(StatusActive).Add().
//		Build()
//
//	next, err := m.Fire(ctx, current, EventActivate, sub)
//
// Fire evaluates guards in registration order; the first transition whose
// guards all pass wins and its actions run before the new state is returned.
// The machine holds no mutable state and is safe for concurrent use.
package statemachine
