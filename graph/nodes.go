package graph

import "time"

// Each typed node below implements TypedNode and registers a constructor
// for its class tag so FromNode can rebuild it. ToNode/the constructor
// pair must round-trip: FromNode(n.ToNode()) == n, ignoring fields absent
// from the wire form (e.g. a zero-value optional pointer).

const (
	classConfig      = "ConfigNode"
	classAuditEntry  = "AuditEntry"
	classIncident    = "IncidentNode"
	classProblem     = "ProblemNode"
	classInsight     = "InsightNode"
	classCorrelation = "CorrelationNode"
	classTSDBSummary = "TSDBSummary"
	classIdentity    = "IdentitySnapshot"
)

func init() {
	Register(classConfig, func(n *Node) (TypedNode, error) { return configNodeFromNode(n) })
	Register(classAuditEntry, func(n *Node) (TypedNode, error) { return auditEntryFromNode(n) })
	Register(classIncident, func(n *Node) (TypedNode, error) { return incidentNodeFromNode(n) })
	Register(classProblem, func(n *Node) (TypedNode, error) { return problemNodeFromNode(n) })
	Register(classInsight, func(n *Node) (TypedNode, error) { return insightNodeFromNode(n) })
	Register(classCorrelation, func(n *Node) (TypedNode, error) { return correlationNodeFromNode(n) })
	Register(classTSDBSummary, func(n *Node) (TypedNode, error) { return tsdbSummaryFromNode(n) })
	Register(classIdentity, func(n *Node) (TypedNode, error) { return identitySnapshotFromNode(n) })
}

func getString(attrs map[string]interface{}, key string) string {
	s, _ := attrs[key].(string)
	return s
}

func getStringSlice(attrs map[string]interface{}, key string) []string {
	raw, ok := attrs[key].([]interface{})
	if !ok {
		if ss, ok := attrs[key].([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func getTime(attrs map[string]interface{}, key string) time.Time {
	switch v := attrs[key].(type) {
	case time.Time:
		return v
	case string:
		t, _ := time.Parse(time.RFC3339, v)
		return t
	default:
		return time.Time{}
	}
}

// ConfigNode is the versioned config key/value entity C3 reads and writes
// through the Graph Store. PreviousVersion links a history chain.
type ConfigNode struct {
	Key             string
	Value           Value
	PreviousVersion string
	UpdatedBy       string
	Base            *Node
}

func (c *ConfigNode) ToNode() *Node {
	attrs := map[string]interface{}{
		NodeClassKey:      classConfig,
		"key":             c.Key,
		"value":           c.Value.toAttr(),
		"previous_version": c.PreviousVersion,
	}
	n := baseOrNew(c.Base, c.Key, "config", ScopeLocal, attrs, c.UpdatedBy)
	return n
}

func configNodeFromNode(n *Node) (TypedNode, error) {
	return &ConfigNode{
		Key:             getString(n.Attributes, "key"),
		Value:           valueFromAttr(n.Attributes["value"]),
		PreviousVersion: getString(n.Attributes, "previous_version"),
		UpdatedBy:       n.UpdatedBy,
		Base:            n,
	}, nil
}

// AuditEntry records a single auditable event: an action taken by a
// handler against a task/thought, for the append-only audit trail.
type AuditEntry struct {
	ActorType string // "handler", "dma", "conscience", "operator"
	ActorName string
	Action    string
	TaskID    string
	ThoughtID string
	Outcome   string
	Base      *Node
}

func (a *AuditEntry) ToNode() *Node {
	attrs := map[string]interface{}{
		NodeClassKey: classAuditEntry,
		"actor_type": a.ActorType,
		"actor_name": a.ActorName,
		"action":     a.Action,
		"task_id":    a.TaskID,
		"thought_id": a.ThoughtID,
		"outcome":    a.Outcome,
	}
	return baseOrNew(a.Base, "", "audit_entry", ScopeLocal, attrs, a.ActorName)
}

func auditEntryFromNode(n *Node) (TypedNode, error) {
	return &AuditEntry{
		ActorType: getString(n.Attributes, "actor_type"),
		ActorName: getString(n.Attributes, "actor_name"),
		Action:    getString(n.Attributes, "action"),
		TaskID:    getString(n.Attributes, "task_id"),
		ThoughtID: getString(n.Attributes, "thought_id"),
		Outcome:   getString(n.Attributes, "outcome"),
		Base:      n,
	}, nil
}

// Incident severities, mirroring the log levels that trigger capture.
type IncidentSeverity string

const (
	SeverityMedium   IncidentSeverity = "MEDIUM"
	SeverityHigh     IncidentSeverity = "HIGH"
	SeverityCritical IncidentSeverity = "CRITICAL"
)

// IncidentStatus tracks an incident through the dream-time triage cycle.
type IncidentStatus string

const (
	IncidentOpen         IncidentStatus = "OPEN"
	IncidentRecurring    IncidentStatus = "RECURRING"
	IncidentInvestigating IncidentStatus = "INVESTIGATING"
	IncidentResolved     IncidentStatus = "RESOLVED"
)

// IncidentNode is C5's capture of a single WARNING+ log line.
type IncidentNode struct {
	Severity      IncidentSeverity
	Status        IncidentStatus
	Description   string
	SourceComponent string
	CorrelationID string
	TaskID        string
	ThoughtID     string
	HandlerName   string
	OccurredAt    time.Time
	Base          *Node
}

func (i *IncidentNode) ToNode() *Node {
	attrs := map[string]interface{}{
		NodeClassKey:      classIncident,
		"severity":        string(i.Severity),
		"status":          string(i.Status),
		"description":     i.Description,
		"source_component": i.SourceComponent,
		"correlation_id":  i.CorrelationID,
		"task_id":         i.TaskID,
		"thought_id":      i.ThoughtID,
		"handler_name":    i.HandlerName,
		"occurred_at":     i.OccurredAt.Format(time.RFC3339),
	}
	return baseOrNew(i.Base, "", "incident", ScopeLocal, attrs, i.SourceComponent)
}

func incidentNodeFromNode(n *Node) (TypedNode, error) {
	return &IncidentNode{
		Severity:        IncidentSeverity(getString(n.Attributes, "severity")),
		Status:          IncidentStatus(getString(n.Attributes, "status")),
		Description:     getString(n.Attributes, "description"),
		SourceComponent: getString(n.Attributes, "source_component"),
		CorrelationID:   getString(n.Attributes, "correlation_id"),
		TaskID:          getString(n.Attributes, "task_id"),
		ThoughtID:       getString(n.Attributes, "thought_id"),
		HandlerName:     getString(n.Attributes, "handler_name"),
		OccurredAt:      getTime(n.Attributes, "occurred_at"),
		Base:            n,
	}, nil
}

// ProblemNode is dream-time's pattern-mined grouping of related incidents.
type ProblemNode struct {
	Description   string
	RootCause     string
	IncidentIDs   []string
	Status        IncidentStatus
	Base          *Node
}

func (p *ProblemNode) ToNode() *Node {
	attrs := map[string]interface{}{
		NodeClassKey:  classProblem,
		"description": p.Description,
		"root_cause":  p.RootCause,
		"incident_ids": p.IncidentIDs,
		"status":      string(p.Status),
	}
	return baseOrNew(p.Base, "", "problem", ScopeIdentity, attrs, "dream_analyzer")
}

func problemNodeFromNode(n *Node) (TypedNode, error) {
	return &ProblemNode{
		Description: getString(n.Attributes, "description"),
		RootCause:   getString(n.Attributes, "root_cause"),
		IncidentIDs: getStringSlice(n.Attributes, "incident_ids"),
		Status:      IncidentStatus(getString(n.Attributes, "status")),
		Base:        n,
	}, nil
}

// InsightNode is a dream-time summarization of one or more problems.
type InsightNode struct {
	Summary    string
	ProblemIDs []string
	Base       *Node
}

func (i *InsightNode) ToNode() *Node {
	attrs := map[string]interface{}{
		NodeClassKey: classInsight,
		"summary":    i.Summary,
		"problem_ids": i.ProblemIDs,
	}
	return baseOrNew(i.Base, "", "insight", ScopeIdentity, attrs, "dream_analyzer")
}

func insightNodeFromNode(n *Node) (TypedNode, error) {
	return &InsightNode{
		Summary:    getString(n.Attributes, "summary"),
		ProblemIDs: getStringSlice(n.Attributes, "problem_ids"),
		Base:       n,
	}, nil
}

// CorrelationNode is a durable, searchable projection of a telemetry
// Correlation (see the telemetry package's append-only log) into the
// graph, used by memory recall and audit queries -- not the correlation
// log's own write path.
type CorrelationNode struct {
	CorrelationID string
	ParentID      string
	CorrelationType string
	ServiceName   string
	HandlerName   string
	Status        string
	Base          *Node
}

func (c *CorrelationNode) ToNode() *Node {
	attrs := map[string]interface{}{
		NodeClassKey:      classCorrelation,
		"correlation_id":  c.CorrelationID,
		"parent_id":       c.ParentID,
		"correlation_type": c.CorrelationType,
		"service_name":    c.ServiceName,
		"handler_name":    c.HandlerName,
		"status":          c.Status,
	}
	return baseOrNew(c.Base, c.CorrelationID, "correlation", ScopeLocal, attrs, c.ServiceName)
}

func correlationNodeFromNode(n *Node) (TypedNode, error) {
	return &CorrelationNode{
		CorrelationID:   getString(n.Attributes, "correlation_id"),
		ParentID:        getString(n.Attributes, "parent_id"),
		CorrelationType: getString(n.Attributes, "correlation_type"),
		ServiceName:     getString(n.Attributes, "service_name"),
		HandlerName:     getString(n.Attributes, "handler_name"),
		Status:          getString(n.Attributes, "status"),
		Base:            n,
	}, nil
}

// TSDBSummary rolls up a window of metric emissions for compact long-term
// storage, replacing the raw metric stream after consolidation.
type TSDBSummary struct {
	MetricName string
	WindowStart time.Time
	WindowEnd   time.Time
	Count       int
	Sum         float64
	Min         float64
	Max         float64
	Base        *Node
}

func (t *TSDBSummary) ToNode() *Node {
	attrs := map[string]interface{}{
		NodeClassKey: classTSDBSummary,
		"metric_name":  t.MetricName,
		"window_start": t.WindowStart.Format(time.RFC3339),
		"window_end":   t.WindowEnd.Format(time.RFC3339),
		"count":        t.Count,
		"sum":          t.Sum,
		"min":          t.Min,
		"max":          t.Max,
	}
	return baseOrNew(t.Base, "", "tsdb_summary", ScopeLocal, attrs, "telemetry")
}

func tsdbSummaryFromNode(n *Node) (TypedNode, error) {
	count, _ := n.Attributes["count"].(int)
	if count == 0 {
		if f, ok := n.Attributes["count"].(float64); ok {
			count = int(f)
		}
	}
	sum, _ := n.Attributes["sum"].(float64)
	min, _ := n.Attributes["min"].(float64)
	max, _ := n.Attributes["max"].(float64)
	return &TSDBSummary{
		MetricName:  getString(n.Attributes, "metric_name"),
		WindowStart: getTime(n.Attributes, "window_start"),
		WindowEnd:   getTime(n.Attributes, "window_end"),
		Count:       count,
		Sum:         sum,
		Min:         min,
		Max:         max,
		Base:        n,
	}, nil
}

// IdentitySnapshot captures the agent's self-description at a wakeup,
// stored in the IDENTITY scope so it survives independent of deployment.
type IdentitySnapshot struct {
	ProfileName string
	Description string
	Capabilities []string
	TakenAt     time.Time
	Base        *Node
}

func (i *IdentitySnapshot) ToNode() *Node {
	attrs := map[string]interface{}{
		NodeClassKey:  classIdentity,
		"profile_name": i.ProfileName,
		"description":  i.Description,
		"capabilities": i.Capabilities,
		"taken_at":     i.TakenAt.Format(time.RFC3339),
	}
	return baseOrNew(i.Base, "", "identity_snapshot", ScopeIdentity, attrs, "wakeup_processor")
}

func identitySnapshotFromNode(n *Node) (TypedNode, error) {
	return &IdentitySnapshot{
		ProfileName:  getString(n.Attributes, "profile_name"),
		Description:  getString(n.Attributes, "description"),
		Capabilities: getStringSlice(n.Attributes, "capabilities"),
		TakenAt:      getTime(n.Attributes, "taken_at"),
		Base:         n,
	}, nil
}

// baseOrNew reuses an existing Base node's identity/version (for re-saving
// an object recalled from the store) or mints a new one.
func baseOrNew(base *Node, id, nodeType string, scope Scope, attrs map[string]interface{}, updatedBy string) *Node {
	if base != nil {
		n := NewNode(base.ID, nodeType, scope, attrs, updatedBy)
		n.Version = base.Version
		return n
	}
	return NewNode(id, nodeType, scope, attrs, updatedBy)
}
