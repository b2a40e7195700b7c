package report

import (
	"time"

	"github.com/trezcool/schoolstats/core"
	"github.com/trezcool/schoolstats/core/valuetree"
)

// Status of a child report. done > pending > todo.
type Status string

const (
	StatusTodo    Status = "todo"
	StatusPending Status = "pending"
	StatusDone    Status = "done"
)

var Statuses = []Status{StatusTodo, StatusPending, StatusDone}

func (s Status) Valid() bool {
	for _, st := range Statuses {
		if s == st {
			return true
		}
	}
	return false
}

// Orderings allowed when listing reports.
const (
	OrderByUpdatedAt = "updated_at"
	OrderBySchool    = "school"
	OrderByWard      = "ward"
)

var Orderings = []string{OrderByUpdatedAt, OrderBySchool, OrderByWard}

type (
	// Section is one child report of a report type, in display order.
	Section struct {
		Name       string `json:"name" yaml:"name" validate:"required"`
		SectionKey string `json:"reportKey" yaml:"reportKey" validate:"required,fieldkey"`
	}

	// StatusSets lists the section keys of a report per non-todo status.
	StatusSets struct {
		Pending []string `json:"pending"`
		Done    []string `json:"done"`
	}

	// Report is the submission of one school for one report type.
	Report struct {
		ID         string     `json:"id"`
		Province   string     `json:"province"`
		Ward       string     `json:"ward"`
		School     string     `json:"school"`
		ReportType string     `json:"reportType"`
		Status     StatusSets `json:"status"`
		User       string     `json:"user"`
		CreatedAt  time.Time  `json:"createdAt"`
		UpdatedAt  time.Time  `json:"updatedAt"`
	}

	// ChildReport holds the answers of one section of a report.
	ChildReport struct {
		ID         string         `json:"id"`
		ReportID   string         `json:"reportId"`
		SectionKey string         `json:"reportKey"`
		Status     Status         `json:"status"`
		Data       valuetree.Tree `json:"data"`
		UpdatedAt  time.Time      `json:"updatedAt"`
	}

	NewReport struct {
		Province   string `json:"province" validate:"required,notblank"`
		Ward       string `json:"ward" validate:"required,notblank"`
		School     string `json:"school" validate:"required,notblank"`
		ReportType string `json:"reportType" validate:"required,fieldkey"`
	}

	// CommitChild is a direct write of a child report.
	CommitChild struct {
		ReportID   string         `json:"reportId" validate:"required"`
		SectionKey string         `json:"reportKey" validate:"required,fieldkey"`
		Status     Status         `json:"status" validate:"required,status"`
		Data       valuetree.Tree `json:"data"`
	}

	// QueryFilter applies AND operation on its non-empty fields.
	QueryFilter struct {
		User       string
		ReportType string
		Province   string
		Ward       string
		School     string
		Ordering   []core.DBOrdering
	}

	// ChildCommitted is the payload of the event published after every commit.
	ChildCommitted struct {
		ReportID   string    `json:"reportId"`
		SectionKey string    `json:"reportKey"`
		Status     Status    `json:"status"`
		ReportType string    `json:"reportType"`
		School     string    `json:"school"`
		User       string    `json:"user"`
		At         time.Time `json:"at"`
	}
)

// Has reports whether key is listed under any status.
func (s StatusSets) Has(key string) bool {
	return indexOf(s.Pending, key) >= 0 || indexOf(s.Done, key) >= 0
}

// Of returns the status of the section keyed key.
func (s StatusSets) Of(key string) Status {
	switch {
	case indexOf(s.Done, key) >= 0:
		return StatusDone
	case indexOf(s.Pending, key) >= 0:
		return StatusPending
	}
	return StatusTodo
}

// Move returns a copy of s where key is listed under status only.
func (s StatusSets) Move(key string, status Status) StatusSets {
	moved := StatusSets{Pending: without(s.Pending, key), Done: without(s.Done, key)}
	switch status {
	case StatusPending:
		moved.Pending = append(moved.Pending, key)
	case StatusDone:
		moved.Done = append(moved.Done, key)
	}
	return moved
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func without(list []string, s string) []string {
	kept := make([]string, 0, len(list))
	for _, v := range list {
		if v != s {
			kept = append(kept, v)
		}
	}
	return kept
}

// SectionKeys returns the keys of sections, in order.
func SectionKeys(sections []Section) []string {
	keys := make([]string, len(sections))
	for i, s := range sections {
		keys[i] = s.SectionKey
	}
	return keys
}
