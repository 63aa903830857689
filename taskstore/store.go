package taskstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ciris-ai/ciris-core/core"
	"github.com/google/uuid"
)

// Store is C6's contract. All mutations return the stored copy's id so
// callers never need to generate ids themselves. Status-transition calls
// stamp UpdatedAt.
type Store interface {
	InsertTask(ctx context.Context, t *Task) (string, error)
	SetTaskStatus(ctx context.Context, id string, status TaskStatus) error
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasksByStatus(ctx context.Context, status TaskStatus) ([]*Task, error)

	InsertThought(ctx context.Context, th *Thought) (string, error)
	SetThoughtStatus(ctx context.Context, id string, status ThoughtStatus) error
	GetThought(ctx context.Context, id string) (*Thought, error)
	PendingThoughtsForActiveTasks(ctx context.Context) ([]*Thought, error)
	CountThoughtsByStatus(ctx context.Context, status ThoughtStatus) (int, error)
	RecentThoughts(ctx context.Context, limit int) ([]*Thought, error)

	QueueStatus(ctx context.Context) (QueueStatus, error)
}

// InMemoryStore backs tests and --mock-llm runs. Grounded on the same
// RWMutex-guarded-map idiom as core.ServiceRegistry and graph.InMemoryStore.
type InMemoryStore struct {
	mu       sync.RWMutex
	tasks    map[string]*Task
	thoughts map[string]*Thought
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{tasks: make(map[string]*Task), thoughts: make(map[string]*Thought)}
}

func (s *InMemoryStore) InsertTask(_ context.Context, t *Task) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = TaskPending
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tasks[t.ID] = &cp
	return t.ID, nil
}

func (s *InMemoryStore) SetTaskStatus(_ context.Context, id string, status TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return core.NewError("taskstore.SetTaskStatus", "not_found", core.ErrServiceNotFound).WithID(id)
	}
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) GetTask(_ context.Context, id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, core.NewError("taskstore.GetTask", "not_found", core.ErrServiceNotFound).WithID(id)
	}
	cp := *t
	return &cp, nil
}

func (s *InMemoryStore) ListTasksByStatus(_ context.Context, status TaskStatus) ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Task
	for _, t := range s.tasks {
		if t.Status == status {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) InsertThought(_ context.Context, th *Thought) (string, error) {
	if th.ID == "" {
		th.ID = uuid.NewString()
	}
	if th.Status == "" {
		th.Status = ThoughtPending
	}
	now := time.Now().UTC()
	th.CreatedAt, th.UpdatedAt = now, now

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *th
	s.thoughts[th.ID] = &cp
	return th.ID, nil
}

func (s *InMemoryStore) SetThoughtStatus(_ context.Context, id string, status ThoughtStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	th, ok := s.thoughts[id]
	if !ok {
		return core.NewError("taskstore.SetThoughtStatus", "not_found", core.ErrServiceNotFound).WithID(id)
	}
	th.Status = status
	th.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) GetThought(_ context.Context, id string) (*Thought, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	th, ok := s.thoughts[id]
	if !ok {
		return nil, core.NewError("taskstore.GetThought", "not_found", core.ErrServiceNotFound).WithID(id)
	}
	cp := *th
	return &cp, nil
}

// PendingThoughtsForActiveTasks is the work-phase's seed query: thoughts
// still PENDING whose owning task is ACTIVE, oldest first.
func (s *InMemoryStore) PendingThoughtsForActiveTasks(_ context.Context) ([]*Thought, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make(map[string]bool)
	for _, t := range s.tasks {
		if t.Status == TaskActive {
			active[t.ID] = true
		}
	}

	var out []*Thought
	for _, th := range s.thoughts {
		if th.Status == ThoughtPending && active[th.TaskID] {
			cp := *th
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) CountThoughtsByStatus(_ context.Context, status ThoughtStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, th := range s.thoughts {
		if th.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) RecentThoughts(_ context.Context, limit int) ([]*Thought, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Thought
	for _, th := range s.thoughts {
		cp := *th
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) QueueStatus(_ context.Context) (QueueStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var q QueueStatus
	for _, t := range s.tasks {
		switch t.Status {
		case TaskPending:
			q.PendingTasks++
		case TaskActive:
			q.ActiveTasks++
		}
	}
	for _, th := range s.thoughts {
		switch th.Status {
		case ThoughtPending:
			q.PendingThoughts++
		case ThoughtProcessing:
			q.ProcessingThoughts++
		}
	}
	return q, nil
}
