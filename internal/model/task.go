package model

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusOverdue    Status = "overdue"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusOverdue:
		return true
	}
	return false
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type Task struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	OwnerID     uuid.UUID  `json:"owner_id"`
	Version     int        `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type TaskFilter struct {
	Status   *Status
	Priority *Priority
}

// Pagination с нулевым значением = без пагинации (весь отфильтрованный набор)
type Pagination struct {
	Page  int
	Limit int
}

func (p Pagination) Enabled() bool {
	return p.Page >= 1 && p.Limit >= 1
}

func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

// TaskPatch - частичное обновление: nil поле означает "не трогать"
type TaskPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Status      *Status    `json:"status,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil &&
		p.Priority == nil && p.DueDate == nil
}

// CanTransition проверяет пользовательские переходы статуса.
// overdue выставляет только sweeper, поэтому здесь он всегда запрещен как цель.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch {
	case from == StatusPending && to == StatusInProgress:
		return true
	case (from == StatusPending || from == StatusInProgress) && to == StatusCompleted:
		return true
	case from == StatusOverdue && to == StatusCompleted:
		return true
	}
	return false
}
