package models

// StatusFilter selects tasks by completion state.
type StatusFilter string

const (
	StatusAll       StatusFilter = "all"
	StatusActive    StatusFilter = "active"
	StatusCompleted StatusFilter = "completed"
)

// Valid reports whether f is a known status filter. Empty means all.
func (f StatusFilter) Valid() bool {
	switch f {
	case "", StatusAll, StatusActive, StatusCompleted:
		return true
	}
	return false
}

// PriorityAll disables the priority filter.
const PriorityAll Priority = "all"

// Filter is the transient view state a UI applies over the canonical
// sequence. Zero values mean "no filtering".
type Filter struct {
	Search   string
	Priority Priority
	Status   StatusFilter
}
