package statemachine

// TableOption configures a transition table during construction.
type TableOption[S, E comparable, T any] func(*Table[S, E, T]) error

// TransitionOption configures a single transition with guards and actions.
type TransitionOption[S, E comparable, T any] func(*Transition[S, E, T])

// WithTransition adds a transition from every state in from to the target state.
func WithTransition[S, E comparable, T any](from []S, event E, to S, opts ...TransitionOption[S, E, T]) TableOption[S, E, T] {
	return func(t *Table[S, E, T]) error {
		for _, f := range from {
			tr := Transition[S, E, T]{From: f, To: to, Event: event}
			for _, opt := range opts {
				opt(&tr)
			}
			t.add(tr)
		}
		return nil
	}
}

// WithTransitions adds predefined transitions as-is.
func WithTransitions[S, E comparable, T any](transitions ...Transition[S, E, T]) TableOption[S, E, T] {
	return func(t *Table[S, E, T]) error {
		for _, tr := range transitions {
			t.add(tr)
		}
		return nil
	}
}

// WithTerminal marks states that accept no events. Table construction fails
// if a terminal state has outgoing transitions.
func WithTerminal[S, E comparable, T any](states ...S) TableOption[S, E, T] {
	return func(t *Table[S, E, T]) error {
		for _, s := range states {
			t.terminal[s] = struct{}{}
		}
		return nil
	}
}

// WithGuard adds guards to a transition. Nil guards are ignored.
func WithGuard[S, E comparable, T any](guards ...Guard[S, E, T]) TransitionOption[S, E, T] {
	return func(tr *Transition[S, E, T]) {
		for _, g := range guards {
			if g != nil {
				tr.Guards = append(tr.Guards, g)
			}
		}
	}
}

// WithAction adds actions to a transition. Nil actions are ignored.
func WithAction[S, E comparable, T any](actions ...Action[S, E, T]) TransitionOption[S, E, T] {
	return func(tr *Transition[S, E, T]) {
		for _, a := range actions {
			if a != nil {
				tr.Actions = append(tr.Actions, a)
			}
		}
	}
}
