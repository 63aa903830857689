package adapters

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ciris-ai/ciris-core/core"
	"github.com/ciris-ai/ciris-core/graph"
)

// auditNodeType distinguishes audit trail entries from the incident
// package's IncidentNode: an audit entry records who did what and why,
// not an operational severity to mine in dream time.
const auditNodeType = "audit_event"

// GraphAudit is the Audit capability, grounded on the same
// graph-store-as-append-log idiom incident.Capture uses for
// IncidentNode -- one Memorize call per event, scoped LOCAL, never
// updated after creation.
type GraphAudit struct {
	store graph.Store
}

func NewGraphAudit(store graph.Store) *GraphAudit {
	return &GraphAudit{store: store}
}

func (a *GraphAudit) LogEvent(ctx context.Context, entry AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	attrs := map[string]interface{}{
		"actor":      entry.Actor,
		"action":     entry.Action,
		"thought_id": entry.ThoughtID,
		"task_id":    entry.TaskID,
		"timestamp":  entry.Timestamp.Format(time.RFC3339),
	}
	for k, v := range entry.Detail {
		attrs[fmt.Sprintf("detail_%s", k)] = v
	}
	n := graph.NewNode(entry.ID, auditNodeType, graph.ScopeLocal, attrs, entry.Actor)
	if err := a.store.Memorize(ctx, n); err != nil {
		return core.NewError("adapters.GraphAudit.LogEvent", "persistence", err).WithID(entry.ID)
	}
	return nil
}
