// Package incident implements C5: Incident Capture. A logging hook
// filters WARNING+ records, writes them to a rotating incident log file,
// and asynchronously mints an IncidentNode in the graph store for every
// one, so dream-time pattern mining (the dream package) has material to
// work with without re-parsing log files.
package incident

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ciris-ai/ciris-core/core"
	"github.com/ciris-ai/ciris-core/graph"
)

// LogContext carries the correlation fields an incident needs to be
// traceable back to the task/thought/handler that produced it. Any field
// may be empty; a log line emitted outside the agent loop (e.g. during
// startup) still gets captured with an empty context.
type LogContext struct {
	CorrelationID string
	TaskID        string
	ThoughtID     string
	HandlerName   string
}

// severityFor maps a log level to the incident severity the spec's
// Design Notes specify: WARNING -> MEDIUM, ERROR -> HIGH, CRITICAL ->
// CRITICAL. Any other level is not captured.
func severityFor(level string) (graph.IncidentSeverity, bool) {
	switch level {
	case "WARN", "WARNING":
		return graph.SeverityMedium, true
	case "ERROR":
		return graph.SeverityHigh, true
	case "CRITICAL", "FATAL":
		return graph.SeverityCritical, true
	default:
		return "", false
	}
}

// Capture is the sink: it owns the rotating log file and the graph store
// writer. Its Hook method is suitable for registration wherever the
// ambient logger supports log hooks (mirrors core.ProductionLogger's rate
// limiter, which is a comparable "observe every record" seam).
type Capture struct {
	mu       sync.Mutex
	store    graph.Store
	logDir   string
	file     *os.File
	source   string
	logger   core.Logger
}

// NewCapture opens (creating if needed) the rotating incident log under
// logDir and points the `incidents_latest` symlink at it.
func NewCapture(store graph.Store, logDir, source string, logger core.Logger) (*Capture, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, core.NewError("incident.NewCapture", "configuration", err)
	}

	c := &Capture{store: store, logDir: logDir, source: source, logger: logger}
	if err := c.rotate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Capture) rotate() error {
	name := fmt.Sprintf("incidents_%s.log", time.Now().UTC().Format("20060102_150405"))
	path := filepath.Join(c.logDir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return core.NewError("incident.rotate", "configuration", err)
	}

	c.mu.Lock()
	if c.file != nil {
		c.file.Close()
	}
	c.file = f
	c.mu.Unlock()

	link := filepath.Join(c.logDir, "incidents_latest")
	os.Remove(link) // ignore: may not exist yet
	return os.Symlink(name, link)
}

// Hook filters WARNING+, writes a line to the rotating log, and launches
// the async IncidentNode write. Safe to call from any logger goroutine.
func (c *Capture) Hook(level, message string, lctx LogContext) {
	severity, ok := severityFor(level)
	if !ok {
		return
	}

	occurredAt := time.Now().UTC()
	line := fmt.Sprintf("%s\t%s\t%s\t%s\n", occurredAt.Format(time.RFC3339), level, c.source, message)

	c.mu.Lock()
	if c.file != nil {
		if _, err := c.file.WriteString(line); err != nil {
			c.logger.Error("failed to write incident log line", map[string]interface{}{"error": err.Error()})
		}
	}
	c.mu.Unlock()

	go c.persist(severity, message, occurredAt, lctx)
}

func (c *Capture) persist(severity graph.IncidentSeverity, message string, occurredAt time.Time, lctx LogContext) {
	n := &graph.IncidentNode{
		Severity:        severity,
		Status:          graph.IncidentOpen,
		Description:     message,
		SourceComponent: c.source,
		CorrelationID:   lctx.CorrelationID,
		TaskID:          lctx.TaskID,
		ThoughtID:       lctx.ThoughtID,
		HandlerName:     lctx.HandlerName,
		OccurredAt:      occurredAt,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.store.Memorize(ctx, n.ToNode()); err != nil {
		c.logger.Error("failed to persist incident node", map[string]interface{}{"error": err.Error()})
	}
}

// Close flushes and closes the current log file.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file == nil {
		return nil
	}
	return c.file.Close()
}

// Recent returns incidents captured since t, for the dream analyzer's
// 24-hour pattern-mining window.
func Recent(ctx context.Context, store graph.Store, since time.Time) ([]*graph.IncidentNode, error) {
	nodes, err := store.Search(ctx, "incident", graph.ScopeLocal, func(n *graph.Node) bool {
		occurred, _ := n.Attributes["occurred_at"].(string)
		t, err := time.Parse(time.RFC3339, occurred)
		return err == nil && !t.Before(since)
	})
	if err != nil {
		return nil, err
	}

	out := make([]*graph.IncidentNode, 0, len(nodes))
	for _, n := range nodes {
		typed, err := graph.FromNode(n)
		if err != nil {
			continue
		}
		if inc, ok := typed.(*graph.IncidentNode); ok {
			out = append(out, inc)
		}
	}
	return out, nil
}
