// Package task holds the task domain: the entity, its lifecycle state machine,
// ownership rules, and the list filter engine.
//
// # Lifecycle
//
// Tasks start in "pending" and only move forward:
//
//	pending -> pending | in_progress
//	in_progress -> in_progress | completed
//	completed -> (nothing, not even completed)
//
// Transition replaces title, description, state and deadline together. A
// completed task refuses every write with a ForbiddenError whose reason is
// ReasonTerminal; a write by someone other than the owner is a ForbiddenError
// with ReasonNotOwner. Skipping or regressing a state is an
// InvalidTransitionError naming both states.
//
// # Filters
//
// FilterCriteria is an immutable value with three optional parts: state,
// free-text search, and a deadline ceiling. BuildFilter turns it into an
// owner-scoped Predicate:
//
//	p := task.BuildFilter(userID, task.NewFilterCriteria().
//		WithState("in_progress").
//		WithSearch("milk"))
//
// The deadline ceiling keeps tasks that have no deadline at all, so a filter
// like "due by Friday" still lists unscheduled work.
//
// # Errors
//
// All failures are typed; KindOf maps any error to a Kind the transports turn
// into status codes. Nothing in this package touches storage or performs I/O.
package task
