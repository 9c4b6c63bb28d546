// Package statemachine implements a generic finite-state machine built
// around an immutable transition table.
//
// States and events are any comparable types, typically string-based enums.
// The data argument passed to guards and actions is a type parameter, so
// callers get compile-time checked context instead of an untyped value.
//
// A Table holds transitions keyed by [from][event]. It carries no current
// state, which lets one table evaluate transitions for many entities whose
// state lives elsewhere (for example in a database row):
//
//	table := statemachine.MustNewTable(
//	    statemachine.WithTransition([]Status{Active}, Cancel, PendingCancellation),
//	    statemachine.WithTransition([]Status{PendingCancellation}, Discard, Active,
//	        statemachine.WithGuard(periodNotElapsed),
//	    ),
//	    statemachine.WithTerminal[Status, Event, *Input](Ended),
//	)
//
//	next, err := table.Fire(ctx, sub.Status, Cancel, input)
//
// For entities that keep their state in memory, Machine wraps a table with a
// RWMutex-protected current state.
//
// # Guards and Actions
//
// Guards veto a transition based on runtime data and must not perform I/O
// that changes anything. When several transitions share the same [from][event]
// pair, the first one whose guards all pass wins. Actions run in order after
// the guards and before the state changes; any action error aborts the
// transition.
//
// # Error Handling
//
//	if statemachine.IsNoTransitionAvailableError(err) { /* event not defined for state */ }
//	if statemachine.IsTransitionRejectedError(err)   { /* a guard said no */ }
package statemachine
