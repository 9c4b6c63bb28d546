package statemachine

import "context"

// Guard decides whether a transition may proceed. Guards must be side-effect free.
type Guard[S, E comparable, T any] func(ctx context.Context, from S, event E, data T) bool

// Action executes a side effect during a transition. Returning an error aborts the transition.
type Action[S, E comparable, T any] func(ctx context.Context, from, to S, event E, data T) error

// Transition defines a state change triggered by an event, with optional guards and actions.
type Transition[S, E comparable, T any] struct {
	From    S
	To      S
	Event   E
	Guards  []Guard[S, E, T]  // All must pass for transition to proceed
	Actions []Action[S, E, T] // Executed in order before state change
}

// StateMachine defines the core finite state machine operations.
type StateMachine[S, E comparable, T any] interface {
	Current() S
	Fire(ctx context.Context, event E, data T) error
	CanFire(ctx context.Context, event E, data T) bool
	Reset()
}
