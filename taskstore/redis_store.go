package taskstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/ciris-ai/ciris-core/core"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisStore is the production backing for Store, following the same
// connect-with-retry, namespaced-key, TxPipeline idiom as
// core.RedisProviderDirectory and graph.RedisStore. Tasks and thoughts
// are each a JSON blob under a namespaced key, with status-indexed sets
// for the queries the processors run every round.
type RedisStore struct {
	client    *redis.Client
	namespace string
	logger    core.Logger
}

func NewRedisStore(redisURL, namespace string, logger core.Logger) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, core.NewError("taskstore.NewRedisStore", "configuration", core.ErrInvalidConfiguration)
	}
	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 5 * time.Second
	opt.WriteTimeout = 5 * time.Second
	client := redis.NewClient(opt)

	var pingErr error
	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		pingErr = client.Ping(ctx).Err()
		cancel()
		if pingErr == nil {
			break
		}
		time.Sleep(time.Duration(i+1) * 200 * time.Millisecond)
	}
	if pingErr != nil {
		return nil, core.NewError("taskstore.NewRedisStore", "registry", fmt.Errorf("connect to redis: %w", pingErr))
	}
	if namespace == "" {
		namespace = "ciris"
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &RedisStore{client: client, namespace: namespace, logger: logger}, nil
}

func (s *RedisStore) taskKey(id string) string       { return fmt.Sprintf("%s:task:%s", s.namespace, id) }
func (s *RedisStore) thoughtKey(id string) string     { return fmt.Sprintf("%s:thought:%s", s.namespace, id) }
func (s *RedisStore) taskStatusSet(st TaskStatus) string {
	return fmt.Sprintf("%s:tasks-by-status:%s", s.namespace, st)
}
func (s *RedisStore) thoughtStatusSet(st ThoughtStatus) string {
	return fmt.Sprintf("%s:thoughts-by-status:%s", s.namespace, st)
}
func (s *RedisStore) thoughtsByTaskSet(taskID string) string {
	return fmt.Sprintf("%s:thoughts-by-task:%s", s.namespace, taskID)
}

func (s *RedisStore) InsertTask(ctx context.Context, t *Task) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = TaskPending
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	data, err := json.Marshal(t)
	if err != nil {
		return "", core.NewError("taskstore.InsertTask", "registry", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.taskKey(t.ID), data, 0)
	pipe.SAdd(ctx, s.taskStatusSet(t.Status), t.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", core.NewError("taskstore.InsertTask", "registry", fmt.Errorf("%w", core.ErrPersistenceFailure))
	}
	return t.ID, nil
}

func (s *RedisStore) SetTaskStatus(ctx context.Context, id string, status TaskStatus) error {
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}
	old := t.Status
	t.Status = status
	t.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(t)
	if err != nil {
		return core.NewError("taskstore.SetTaskStatus", "registry", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.taskKey(id), data, 0)
	pipe.SRem(ctx, s.taskStatusSet(old), id)
	pipe.SAdd(ctx, s.taskStatusSet(status), id)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) GetTask(ctx context.Context, id string) (*Task, error) {
	data, err := s.client.Get(ctx, s.taskKey(id)).Result()
	if err == redis.Nil {
		return nil, core.NewError("taskstore.GetTask", "not_found", core.ErrServiceNotFound).WithID(id)
	}
	if err != nil {
		return nil, core.NewError("taskstore.GetTask", "registry", err)
	}
	var t Task
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, core.NewError("taskstore.GetTask", "registry", err)
	}
	return &t, nil
}

func (s *RedisStore) ListTasksByStatus(ctx context.Context, status TaskStatus) ([]*Task, error) {
	ids, err := s.client.SMembers(ctx, s.taskStatusSet(status)).Result()
	if err != nil {
		return nil, core.NewError("taskstore.ListTasksByStatus", "registry", err)
	}
	out := make([]*Task, 0, len(ids))
	for _, id := range ids {
		t, err := s.GetTask(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *RedisStore) InsertThought(ctx context.Context, th *Thought) (string, error) {
	if th.ID == "" {
		th.ID = uuid.NewString()
	}
	if th.Status == "" {
		th.Status = ThoughtPending
	}
	now := time.Now().UTC()
	th.CreatedAt, th.UpdatedAt = now, now

	data, err := json.Marshal(th)
	if err != nil {
		return "", core.NewError("taskstore.InsertThought", "registry", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.thoughtKey(th.ID), data, 0)
	pipe.SAdd(ctx, s.thoughtStatusSet(th.Status), th.ID)
	pipe.SAdd(ctx, s.thoughtsByTaskSet(th.TaskID), th.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", core.NewError("taskstore.InsertThought", "registry", fmt.Errorf("%w", core.ErrPersistenceFailure))
	}
	return th.ID, nil
}

func (s *RedisStore) SetThoughtStatus(ctx context.Context, id string, status ThoughtStatus) error {
	th, err := s.GetThought(ctx, id)
	if err != nil {
		return err
	}
	old := th.Status
	th.Status = status
	th.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(th)
	if err != nil {
		return core.NewError("taskstore.SetThoughtStatus", "registry", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.thoughtKey(id), data, 0)
	pipe.SRem(ctx, s.thoughtStatusSet(old), id)
	pipe.SAdd(ctx, s.thoughtStatusSet(status), id)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) GetThought(ctx context.Context, id string) (*Thought, error) {
	data, err := s.client.Get(ctx, s.thoughtKey(id)).Result()
	if err == redis.Nil {
		return nil, core.NewError("taskstore.GetThought", "not_found", core.ErrServiceNotFound).WithID(id)
	}
	if err != nil {
		return nil, core.NewError("taskstore.GetThought", "registry", err)
	}
	var th Thought
	if err := json.Unmarshal([]byte(data), &th); err != nil {
		return nil, core.NewError("taskstore.GetThought", "registry", err)
	}
	return &th, nil
}

func (s *RedisStore) PendingThoughtsForActiveTasks(ctx context.Context) ([]*Thought, error) {
	activeTasks, err := s.ListTasksByStatus(ctx, TaskActive)
	if err != nil {
		return nil, err
	}
	pendingIDs, err := s.client.SMembers(ctx, s.thoughtStatusSet(ThoughtPending)).Result()
	if err != nil {
		return nil, core.NewError("taskstore.PendingThoughtsForActiveTasks", "registry", err)
	}
	active := make(map[string]bool, len(activeTasks))
	for _, t := range activeTasks {
		active[t.ID] = true
	}

	out := make([]*Thought, 0, len(pendingIDs))
	for _, id := range pendingIDs {
		th, err := s.GetThought(ctx, id)
		if err != nil || !active[th.TaskID] {
			continue
		}
		out = append(out, th)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *RedisStore) CountThoughtsByStatus(ctx context.Context, status ThoughtStatus) (int, error) {
	n, err := s.client.SCard(ctx, s.thoughtStatusSet(status)).Result()
	if err != nil {
		return 0, core.NewError("taskstore.CountThoughtsByStatus", "registry", err)
	}
	return int(n), nil
}

func (s *RedisStore) RecentThoughts(ctx context.Context, limit int) ([]*Thought, error) {
	var out []*Thought
	for _, status := range []ThoughtStatus{ThoughtPending, ThoughtProcessing, ThoughtCompleted, ThoughtFailed, ThoughtDeferred} {
		ids, err := s.client.SMembers(ctx, s.thoughtStatusSet(status)).Result()
		if err != nil {
			continue
		}
		for _, id := range ids {
			if th, err := s.GetThought(ctx, id); err == nil {
				out = append(out, th)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *RedisStore) QueueStatus(ctx context.Context) (QueueStatus, error) {
	var q QueueStatus
	pending, err := s.client.SCard(ctx, s.taskStatusSet(TaskPending)).Result()
	if err == nil {
		q.PendingTasks = int(pending)
	}
	active, err := s.client.SCard(ctx, s.taskStatusSet(TaskActive)).Result()
	if err == nil {
		q.ActiveTasks = int(active)
	}
	pendingThoughts, err := s.client.SCard(ctx, s.thoughtStatusSet(ThoughtPending)).Result()
	if err == nil {
		q.PendingThoughts = int(pendingThoughts)
	}
	processingThoughts, err := s.client.SCard(ctx, s.thoughtStatusSet(ThoughtProcessing)).Result()
	if err == nil {
		q.ProcessingThoughts = int(processingThoughts)
	}
	return q, nil
}

// Close releases the underlying Redis connection pool.
func (s *RedisStore) Close() error { return s.client.Close() }

var _ Store = (*RedisStore)(nil)
var _ Store = (*InMemoryStore)(nil)
