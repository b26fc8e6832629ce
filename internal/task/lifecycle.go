// ABOUTME: Task lifecycle engine: creation, guarded transitions, and ownership checks
// ABOUTME: Pure functions over Task values; persistence is the caller's job

package task

import (
	"strconv"
	"strings"
)

// MaxTitleLength bounds task titles.
const MaxTitleLength = 255

// transitions is the forward-only edge table. Completed has no outgoing edges.
var transitions = map[State][]State{
	StatePending:    {StatePending, StateInProgress},
	StateInProgress: {StateInProgress, StateCompleted},
	StateCompleted:  nil,
}

// CanTransition reports whether a task in state from may be saved with state to.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Update carries the full replacement values for a transition.
type Update struct {
	Title       string
	Description string
	State       State
	Deadline    *Date

	// Version, when non-zero, is the version the caller based the update on.
	Version int64
}

// NewTask builds a pending task for owner. The id and timestamps are left to the store.
func NewTask(owner int64, title, description string, deadline *Date) (*Task, error) {
	title, err := validateFields(title, deadline)
	if err != nil {
		return nil, err
	}
	return &Task{
		OwnerID:     owner,
		Title:       title,
		Description: description,
		State:       StatePending,
		Deadline:    copyDate(deadline),
	}, nil
}

// Transition validates u against current and returns the replaced task.
// current is not modified; a nil current means the task does not exist.
func Transition(current *Task, taskID, requester int64, u Update) (*Task, error) {
	if err := checkOwner(current, taskID, requester); err != nil {
		return nil, err
	}
	if current.State.IsTerminal() {
		return nil, &ForbiddenError{TaskID: current.ID, Reason: ReasonTerminal}
	}
	if !u.State.Valid() {
		return nil, &ValidationError{Field: "state", Message: "invalid state " + strconv.Quote(string(u.State))}
	}
	title, err := validateFields(u.Title, u.Deadline)
	if err != nil {
		return nil, err
	}
	if !CanTransition(current.State, u.State) {
		return nil, &InvalidTransitionError{From: current.State, To: u.State}
	}

	next := current.Clone()
	next.Title = title
	next.Description = u.Description
	next.State = u.State
	next.Deadline = copyDate(u.Deadline)
	return next, nil
}

// AuthorizeRead checks that requester may read current.
func AuthorizeRead(current *Task, taskID, requester int64) error {
	return checkOwner(current, taskID, requester)
}

// AuthorizeDelete checks that requester may delete current. Deletion is never
// restricted by state.
func AuthorizeDelete(current *Task, taskID, requester int64) error {
	return checkOwner(current, taskID, requester)
}

func checkOwner(current *Task, taskID, requester int64) error {
	if current == nil {
		return &NotFoundError{TaskID: taskID}
	}
	if current.OwnerID != requester {
		return &ForbiddenError{TaskID: current.ID, Reason: ReasonNotOwner}
	}
	return nil
}

func validateFields(title string, deadline *Date) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", &ValidationError{Field: "title", Message: "title is required"}
	}
	if len(title) > MaxTitleLength {
		return "", &ValidationError{Field: "title", Message: "title is too long"}
	}
	if deadline != nil && !deadline.Valid() {
		return "", &ValidationError{Field: "deadline", Message: "invalid date " + strconv.Quote(deadline.String())}
	}
	return title, nil
}

func copyDate(d *Date) *Date {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}
