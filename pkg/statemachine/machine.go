package statemachine

import (
	"context"
	"sync"
)

// Machine is a thread-safe stateful wrapper around a Table.
type Machine[S, E comparable, T any] struct {
	table   *Table[S, E, T]
	initial S
	current S
	mu      sync.RWMutex
}

// New creates a machine positioned at initial that evaluates transitions against table.
func New[S, E comparable, T any](table *Table[S, E, T], initial S) *Machine[S, E, T] {
	return &Machine[S, E, T]{
		table:   table,
		initial: initial,
		current: initial,
	}
}

func (m *Machine[S, E, T]) Current() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *Machine[S, E, T]) Fire(ctx context.Context, event E, data T) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := m.table.Fire(ctx, m.current, event, data)
	if err != nil {
		return err
	}
	m.current = next
	return nil
}

func (m *Machine[S, E, T]) CanFire(ctx context.Context, event E, data T) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.table.CanFire(ctx, m.current, event, data)
}

func (m *Machine[S, E, T]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.initial
}
