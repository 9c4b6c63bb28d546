package statemachine

// Builder provides a fluent API for building transition tables.
type Builder[S, E comparable, T any] struct {
	opts    []TableOption[S, E, T]
	from    []S
	event   E
	guards  []Guard[S, E, T]
	actions []Action[S, E, T]
	pending bool
}

// NewBuilder creates a new transition table builder.
func NewBuilder[S, E comparable, T any]() *Builder[S, E, T] {
	return &Builder[S, E, T]{}
}

// From starts a transition definition from one or more states.
func (b *Builder[S, E, T]) From(states ...S) *Builder[S, E, T] {
	b.reset()
	b.from = states
	b.pending = true
	return b
}

// On sets the event that triggers the transition.
func (b *Builder[S, E, T]) On(event E) *Builder[S, E, T] {
	b.event = event
	return b
}

// Guard adds a guard to the current transition.
func (b *Builder[S, E, T]) Guard(g Guard[S, E, T]) *Builder[S, E, T] {
	b.guards = append(b.guards, g)
	return b
}

// Do adds an action to the current transition.
func (b *Builder[S, E, T]) Do(a Action[S, E, T]) *Builder[S, E, T] {
	b.actions = append(b.actions, a)
	return b
}

// To finalizes the current transition with its target state.
func (b *Builder[S, E, T]) To(state S) *Builder[S, E, T] {
	if !b.pending {
		return b
	}
	b.opts = append(b.opts, WithTransition(b.from, b.event, state,
		WithGuard(b.guards...),
		WithAction(b.actions...),
	))
	b.reset()
	return b
}

// Terminal declares terminal states.
func (b *Builder[S, E, T]) Terminal(states ...S) *Builder[S, E, T] {
	b.opts = append(b.opts, WithTerminal[S, E, T](states...))
	return b
}

// Build returns the constructed table.
func (b *Builder[S, E, T]) Build() (*Table[S, E, T], error) {
	return NewTable(b.opts...)
}

func (b *Builder[S, E, T]) reset() {
	var zero E
	b.from = nil
	b.event = zero
	b.guards = nil
	b.actions = nil
	b.pending = false
}
