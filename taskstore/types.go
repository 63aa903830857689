// Package taskstore implements C6: pure data access for Tasks and
// Thoughts. It holds no processing logic of its own -- the state
// processors (package processor) decide what to do with a task; this
// package only stores it and answers queries about it.
package taskstore

import "time"

// TaskStatus mirrors the lifecycle a task moves through from creation to
// terminal completion or failure.
type TaskStatus string

const (
	TaskPending   TaskStatus = "PENDING"
	TaskActive    TaskStatus = "ACTIVE"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskFailed    TaskStatus = "FAILED"
	TaskDeferred  TaskStatus = "DEFERRED"
)

// ThoughtStatus mirrors a single reasoning cycle's lifecycle.
type ThoughtStatus string

const (
	ThoughtPending    ThoughtStatus = "PENDING"
	ThoughtProcessing ThoughtStatus = "PROCESSING"
	ThoughtCompleted  ThoughtStatus = "COMPLETED"
	ThoughtFailed     ThoughtStatus = "FAILED"
	ThoughtDeferred   ThoughtStatus = "DEFERRED"
)

// Task is a unit of work the agent commits to pursuing across one or more
// thoughts. ParentTaskID is empty for root tasks (e.g. WAKEUP_ROOT).
type Task struct {
	ID           string
	ParentTaskID string
	Description  string
	Status       TaskStatus
	Priority     int
	Context      map[string]interface{}
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Thought is one reasoning cycle against a Task: the unit the DMA
// pipeline and conscience engine operate on.
type Thought struct {
	ID         string
	TaskID     string
	ParentID   string // empty for a task's first thought
	Content    string
	Status     ThoughtStatus
	RoundNumber int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// QueueStatus summarizes store state for processor round planning and
// operator visibility.
type QueueStatus struct {
	PendingTasks     int
	ActiveTasks      int
	PendingThoughts  int
	ProcessingThoughts int
}
