package statemachine

import (
	"context"
	"fmt"
	"slices"
)

// Table is an immutable transition table keyed by [from][event].
// It holds no current state, so a single table can be shared by any number
// of entities evaluated concurrently.
type Table[S, E comparable, T any] struct {
	transitions map[S]map[E][]Transition[S, E, T]
	terminal    map[S]struct{}
}

// NewTable builds a transition table from the given options.
func NewTable[S, E comparable, T any](opts ...TableOption[S, E, T]) (*Table[S, E, T], error) {
	t := &Table[S, E, T]{
		transitions: make(map[S]map[E][]Transition[S, E, T]),
		terminal:    make(map[S]struct{}),
	}

	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}

	for state := range t.terminal {
		if len(t.transitions[state]) > 0 {
			return nil, fmt.Errorf("%w: %v", ErrTerminalStateHasTransitions, state)
		}
	}

	return t, nil
}

// MustNewTable is like NewTable but panics on error, following the fail-fast
// pattern used for static configuration.
func MustNewTable[S, E comparable, T any](opts ...TableOption[S, E, T]) *Table[S, E, T] {
	t, err := NewTable(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create transition table: %v", err))
	}
	return t
}

func (t *Table[S, E, T]) add(tr Transition[S, E, T]) {
	if _, ok := t.transitions[tr.From]; !ok {
		t.transitions[tr.From] = make(map[E][]Transition[S, E, T])
	}
	// Multiple transitions allowed for same from/event to support guard-based branching
	t.transitions[tr.From][tr.Event] = append(t.transitions[tr.From][tr.Event], tr)
}

// find returns the first transition whose guards pass.
func (t *Table[S, E, T]) find(ctx context.Context, from S, event E, data T) (*Transition[S, E, T], error) {
	candidates := t.transitions[from][event]
	if len(candidates) == 0 {
		return nil, NewErrNoTransitionAvailable(from, event)
	}

	for i := range candidates {
		if guardsPass(ctx, candidates[i].Guards, from, event, data) {
			return &candidates[i], nil
		}
	}

	return nil, NewErrTransitionRejected(from, event)
}

// Fire evaluates event against state from and returns the resulting state.
// Actions run after all guards succeed; an action error aborts the transition
// and from is returned unchanged.
func (t *Table[S, E, T]) Fire(ctx context.Context, from S, event E, data T) (S, error) {
	tr, err := t.find(ctx, from, event, data)
	if err != nil {
		return from, err
	}

	for _, action := range tr.Actions {
		if action == nil {
			continue
		}
		if err := action(ctx, from, tr.To, event, data); err != nil {
			return from, fmt.Errorf("action failed: %w", err)
		}
	}

	return tr.To, nil
}

// CanFire reports whether event is allowed from state. Only guards are evaluated.
func (t *Table[S, E, T]) CanFire(ctx context.Context, from S, event E, data T) bool {
	_, err := t.find(ctx, from, event, data)
	return err == nil
}

// Target returns the state event leads to from state, ignoring guards.
func (t *Table[S, E, T]) Target(from S, event E) (S, bool) {
	candidates := t.transitions[from][event]
	if len(candidates) == 0 {
		var zero S
		return zero, false
	}
	return candidates[0].To, true
}

// Events lists the events defined for state, in no particular order.
func (t *Table[S, E, T]) Events(from S) []E {
	events := make([]E, 0, len(t.transitions[from]))
	for e := range t.transitions[from] {
		events = append(events, e)
	}
	return events
}

// IsTerminal reports whether state was declared terminal.
func (t *Table[S, E, T]) IsTerminal(state S) bool {
	_, ok := t.terminal[state]
	return ok
}

// Sources lists every state that has at least one transition for event.
func (t *Table[S, E, T]) Sources(event E) []S {
	var states []S
	for from, byEvent := range t.transitions {
		if _, ok := byEvent[event]; ok && !slices.Contains(states, from) {
			states = append(states, from)
		}
	}
	return states
}

func guardsPass[S, E comparable, T any](ctx context.Context, guards []Guard[S, E, T], from S, event E, data T) bool {
	for _, guard := range guards {
		if guard != nil && !guard(ctx, from, event, data) {
			return false
		}
	}
	return true
}
