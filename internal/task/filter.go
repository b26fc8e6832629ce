// ABOUTME: Query/filter engine: immutable FilterCriteria translated to an owner-scoped Predicate
// ABOUTME: Predicates evaluate in memory and expose their parts for SQL translation

package task

import (
	"strings"

	"golang.org/x/text/cases"
)

// FilterCriteria holds the optional list filters. The zero value matches every
// task of the owner. Builder methods return a new value.
type FilterCriteria struct {
	state           string
	search          string
	deadlineCeiling *Date
}

// NewFilterCriteria returns criteria with no constraints.
func NewFilterCriteria() FilterCriteria {
	return FilterCriteria{}
}

// WithState constrains the task state (case-insensitive equality).
// An empty string removes the constraint.
func (c FilterCriteria) WithState(state string) FilterCriteria {
	c.state = strings.TrimSpace(state)
	return c
}

// WithSearch constrains title or description to contain text, ignoring case.
// An empty string removes the constraint.
func (c FilterCriteria) WithSearch(text string) FilterCriteria {
	c.search = strings.TrimSpace(text)
	return c
}

// WithDeadlineCeiling keeps tasks without a deadline or due on or before d.
// A nil d removes the constraint.
func (c FilterCriteria) WithDeadlineCeiling(d *Date) FilterCriteria {
	c.deadlineCeiling = copyDate(d)
	return c
}

// State returns the state constraint, if any.
func (c FilterCriteria) State() (string, bool) { return c.state, c.state != "" }

// Search returns the search constraint, if any.
func (c FilterCriteria) Search() (string, bool) { return c.search, c.search != "" }

// DeadlineCeiling returns the deadline ceiling, if any.
func (c FilterCriteria) DeadlineCeiling() (Date, bool) {
	if c.deadlineCeiling == nil {
		return Date{}, false
	}
	return *c.deadlineCeiling, true
}

// Predicate selects tasks of one owner matching a set of criteria.
type Predicate struct {
	owner    int64
	criteria FilterCriteria
	// folded forms used by Match
	state  string
	search string
}

// BuildFilter combines owner equality with c. All present criteria are ANDed.
// It does not touch storage.
func BuildFilter(owner int64, c FilterCriteria) Predicate {
	p := Predicate{owner: owner, criteria: c}
	if s, ok := c.State(); ok {
		p.state = fold(s)
	}
	if s, ok := c.Search(); ok {
		p.search = fold(s)
	}
	return p
}

// Owner returns the owner every selected task must have.
func (p Predicate) Owner() int64 { return p.owner }

// Criteria returns the optional criteria of p.
func (p Predicate) Criteria() FilterCriteria { return p.criteria }

// Match reports whether t is selected by p.
func (p Predicate) Match(t *Task) bool {
	if t == nil || t.OwnerID != p.owner {
		return false
	}
	if p.state != "" && fold(string(t.State)) != p.state {
		return false
	}
	if p.search != "" &&
		!strings.Contains(fold(t.Title), p.search) &&
		!strings.Contains(fold(t.Description), p.search) {
		return false
	}
	if ceiling, ok := p.criteria.DeadlineCeiling(); ok && t.Deadline != nil {
		if t.Deadline.Compare(ceiling) > 0 {
			return false
		}
	}
	return true
}

// fold applies Unicode case folding. Casers are stateful, so one is built per call.
func fold(s string) string {
	return cases.Fold().String(s)
}
