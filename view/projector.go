// Package view derives what a presentation layer shows from the full task
// collection: the visible subset under a filter and search term, and the
// completion summary. Everything here is a pure function of its inputs.
package view

import (
	"fmt"
	"math"
	"strings"

	"tasklist/domain"
)

// Filter restricts visible tasks by completion state.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterPending   Filter = "pending"
	FilterCompleted Filter = "completed"
)

// Filters lists the modes in display order.
var Filters = []Filter{FilterAll, FilterPending, FilterCompleted}

// ParseFilter maps a mode name onto a Filter. Empty input means all.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterPending, FilterCompleted:
		return f, nil
	}
	return "", &domain.ValidationError{Field: "filter", Reason: "must be one of all, pending, completed"}
}

// Next cycles all -> pending -> completed -> all.
func (f Filter) Next() Filter {
	switch f {
	case FilterAll:
		return FilterPending
	case FilterPending:
		return FilterCompleted
	default:
		return FilterAll
	}
}

func (f Filter) keep(t domain.Task) bool {
	switch f {
	case FilterPending:
		return !t.Done
	case FilterCompleted:
		return t.Done
	default:
		return true
	}
}

// Summary holds completion statistics over the full collection.
type Summary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Percent   int `json:"percent"`
}

// Counter renders "completed/total".
func (s Summary) Counter() string {
	return fmt.Sprintf("%d/%d", s.Completed, s.Total)
}

// Summarize counts completed tasks. Percent is rounded to the nearest
// integer and is 0 for an empty collection.
func Summarize(tasks []domain.Task) Summary {
	s := Summary{Total: len(tasks)}
	for _, t := range tasks {
		if t.Done {
			s.Completed++
		}
	}
	if s.Total > 0 {
		s.Percent = int(math.Round(float64(s.Completed) * 100 / float64(s.Total)))
	}
	return s
}

// Visible returns the tasks matching both the search term and the filter,
// in their original order.
func Visible(tasks []domain.Task, filter Filter, search string) []domain.Task {
	term := strings.ToLower(strings.TrimSpace(search))
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if term != "" && !strings.Contains(strings.ToLower(t.Name), term) {
			continue
		}
		if !filter.keep(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Projection is the read-only view handed to a presentation layer.
type Projection struct {
	Filter  Filter
	Search  string
	Visible []domain.Task
	Summary Summary
}

// Project computes the projection for the given view state.
func Project(tasks []domain.Task, filter Filter, search string) Projection {
	return Projection{
		Filter:  filter,
		Search:  search,
		Visible: Visible(tasks, filter, search),
		Summary: Summarize(tasks),
	}
}

// Source supplies the full ordered task collection.
type Source interface {
	All() []domain.Task
}

// Projector binds a Source to Project. It holds no cached state.
type Projector struct {
	src Source
}

func NewProjector(src Source) Projector {
	return Projector{src: src}
}

// Project reads the current collection and projects it.
func (p Projector) Project(filter Filter, search string) Projection {
	return Project(p.src.All(), filter, search)
}
