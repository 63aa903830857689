package telemetry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CorrelationType classifies what a Correlation entry represents.
type CorrelationType string

const (
	CorrelationServiceInteraction CorrelationType = "SERVICE_INTERACTION"
	CorrelationTraceSpan          CorrelationType = "TRACE_SPAN"
	CorrelationMetric             CorrelationType = "METRIC"
	CorrelationLogLine            CorrelationType = "LOG"
)

// CorrelationStatus tracks a correlation entry through its lifecycle.
type CorrelationStatus string

const (
	CorrelationPending   CorrelationStatus = "PENDING"
	CorrelationCompleted CorrelationStatus = "COMPLETED"
	CorrelationFailed    CorrelationStatus = "FAILED"
)

// Correlation is C4's unit of record: one entry per service interaction,
// trace span, metric emission, or log line worth correlating back to the
// thought that triggered it. Correlations form a tree rooted at the
// triggering thought via ParentID.
type Correlation struct {
	ID          string
	ParentID    string
	Type        CorrelationType
	ServiceName string
	HandlerName string
	ActionType  string
	Request     map[string]interface{}
	Response    map[string]interface{}
	Status      CorrelationStatus
	StartedAt   time.Time
	EndedAt     time.Time
	Tags        map[string]string

	TraceID string
	SpanID  string
}

// CorrelationLog is an append-only record of Correlations, grounded on
// the same RWMutex-guarded map idiom the core service registry uses.
// Entries are never deleted, only appended and closed (PENDING ->
// COMPLETED/FAILED); callers needing history walk ByParent from the root.
type CorrelationLog struct {
	mu      sync.RWMutex
	entries map[string]*Correlation
	order   []string
}

func NewCorrelationLog() *CorrelationLog {
	return &CorrelationLog{entries: make(map[string]*Correlation)}
}

// Start opens a new correlation entry in PENDING status and tags it with
// whatever OTel trace context is present on ctx, so logs, metrics, and
// traces for the same operation can be joined later.
func (l *CorrelationLog) Start(ctx context.Context, c Correlation) *Correlation {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = CorrelationPending
	}
	if c.StartedAt.IsZero() {
		c.StartedAt = time.Now().UTC()
	}
	tc := GetTraceContext(ctx)
	c.TraceID = tc.TraceID
	c.SpanID = tc.SpanID

	cp := c
	l.mu.Lock()
	l.entries[cp.ID] = &cp
	l.order = append(l.order, cp.ID)
	l.mu.Unlock()
	return &cp
}

// Complete closes a correlation entry as COMPLETED with the given response.
func (l *CorrelationLog) Complete(id string, response map[string]interface{}) {
	l.close(id, CorrelationCompleted, response)
}

// Fail closes a correlation entry as FAILED, recording the error in the
// response payload under "error".
func (l *CorrelationLog) Fail(id string, err error) {
	resp := map[string]interface{}{}
	if err != nil {
		resp["error"] = err.Error()
	}
	l.close(id, CorrelationFailed, resp)
}

func (l *CorrelationLog) close(id string, status CorrelationStatus, response map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.entries[id]
	if !ok {
		return
	}
	c.Status = status
	c.Response = response
	c.EndedAt = time.Now().UTC()
}

// Get returns a single correlation entry by id.
func (l *CorrelationLog) Get(id string) (*Correlation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.entries[id]
	if !ok {
		return nil, false
	}
	cp := *c
	return &cp, true
}

// ByParent returns every correlation whose ParentID matches, in start
// order, for walking the tree rooted at a triggering thought.
func (l *CorrelationLog) ByParent(parentID string) []*Correlation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*Correlation
	for _, id := range l.order {
		c := l.entries[id]
		if c.ParentID == parentID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out
}

// Since returns every correlation started at or after t, oldest first.
func (l *CorrelationLog) Since(t time.Time) []*Correlation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*Correlation
	for _, id := range l.order {
		c := l.entries[id]
		if !c.StartedAt.Before(t) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}
