package processor

import (
	"context"
	"time"

	"github.com/ciris-ai/ciris-core/core"
	"github.com/ciris-ai/ciris-core/graph"
)

// DreamPhase is one stage of the dream cycle, advancing one per round.
type DreamPhase string

const (
	PhaseEntering     DreamPhase = "ENTERING"
	PhaseConsolidating DreamPhase = "CONSOLIDATING"
	PhaseAnalyzing    DreamPhase = "ANALYZING"
	PhaseConfiguring  DreamPhase = "CONFIGURING"
	PhasePlanning     DreamPhase = "PLANNING"
	PhaseExiting      DreamPhase = "EXITING"
)

var dreamPhaseOrder = []DreamPhase{
	PhaseEntering, PhaseConsolidating, PhaseAnalyzing, PhaseConfiguring, PhasePlanning, PhaseExiting,
}

// Consolidate merges recent memories into summary nodes during
// CONSOLIDATING. Analyze mines incidents into problems/insights during
// ANALYZING (dream.Analyze). Configure applies safe self-tuning
// recommendations during CONFIGURING. Plan schedules future tasks
// during PLANNING. Each is optional; a nil hook is a no-op for that
// phase.
type DreamHooks struct {
	Consolidate func(ctx context.Context) error
	Analyze     func(ctx context.Context, now time.Time) error
	Configure   func(ctx context.Context) error
	Plan        func(ctx context.Context) error
}

// DreamProcessor advances one phase per round and respects
// min/max dream duration bounds.
type DreamProcessor struct {
	baseProcessor
	hooks    DreamHooks
	logger   core.Logger
	minDur   time.Duration
	maxDur   time.Duration

	phaseIdx  int
	startedAt time.Time
}

func NewDreamProcessor(hooks DreamHooks, minDuration, maxDuration time.Duration, logger core.Logger) *DreamProcessor {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if minDuration <= 0 {
		minDuration = 5 * time.Minute
	}
	if maxDuration <= 0 {
		maxDuration = 30 * time.Minute
	}
	return &DreamProcessor{
		baseProcessor: baseProcessor{states: []State{StateDream}},
		hooks:         hooks,
		logger:        logger,
		minDur:        minDuration,
		maxDur:        maxDuration,
	}
}

func (p *DreamProcessor) Initialize(context.Context) error {
	p.phaseIdx = 0
	p.startedAt = time.Now().UTC()
	return nil
}

func (p *DreamProcessor) Cleanup(context.Context) error { return nil }

func (p *DreamProcessor) Process(ctx context.Context, round int) (StateResult, error) {
	start := time.Now()
	phase := dreamPhaseOrder[p.phaseIdx]
	res := StateResult{State: StateDream, DreamPhase: phase}

	var err error
	switch phase {
	case PhaseConsolidating:
		if p.hooks.Consolidate != nil {
			err = p.hooks.Consolidate(ctx)
		}
	case PhaseAnalyzing:
		if p.hooks.Analyze != nil {
			err = p.hooks.Analyze(ctx, time.Now().UTC())
		}
	case PhaseConfiguring:
		if p.hooks.Configure != nil {
			err = p.hooks.Configure(ctx)
		}
	case PhasePlanning:
		if p.hooks.Plan != nil {
			err = p.hooks.Plan(ctx)
		}
	}
	if err != nil {
		res.Errors++
		p.logger.Warn("dream phase failed", map[string]interface{}{"phase": string(phase), "error": err.Error()})
	}

	elapsed := time.Since(p.startedAt)
	if phase == PhaseExiting && elapsed < p.minDur {
		// min_dream_duration not yet satisfied: hold in EXITING rather
		// than transitioning back to WORK early.
		res.DreamDone = false
		res.Duration = time.Since(start)
		return res, nil
	}

	if phase != PhaseExiting && elapsed >= p.maxDur {
		// max_dream_duration exceeded: jump straight to EXITING.
		p.phaseIdx = len(dreamPhaseOrder) - 1
		res.DreamPhase = PhaseExiting
		res.DreamDone = true
		res.Duration = time.Since(start)
		return res, nil
	}

	if p.phaseIdx < len(dreamPhaseOrder)-1 {
		p.phaseIdx++
	} else {
		res.DreamDone = true
	}
	res.Duration = time.Since(start)
	return res, nil
}

// ScheduleDream memorizes a concept node marking a future dream, which
// agent.Processor checks each round to decide when to transition.
// Grounded in the spec's "memorise a concept node with task_type =
// scheduled_dream" mechanism.
func ScheduleDream(ctx context.Context, store graph.Store, at time.Time, deferWindow time.Duration) error {
	n := graph.NewNode("", "concept", graph.ScopeLocal, map[string]interface{}{
		"task_type":    "scheduled_dream",
		"scheduled_at": at.Format(time.RFC3339),
		"defer_window": deferWindow.String(),
	}, "agent_processor")
	return store.Memorize(ctx, n)
}

// DueDream reports whether a scheduled dream concept node's time has
// arrived, for agent.Processor to check each round.
func DueDream(ctx context.Context, store graph.Store, now time.Time) (bool, error) {
	nodes, err := store.Search(ctx, "concept", graph.ScopeLocal, func(n *graph.Node) bool {
		return n.Attributes["task_type"] == "scheduled_dream"
	})
	if err != nil {
		return false, err
	}
	for _, n := range nodes {
		scheduled, _ := n.Attributes["scheduled_at"].(string)
		t, err := time.Parse(time.RFC3339, scheduled)
		if err == nil && !now.Before(t) {
			return true, nil
		}
	}
	return false, nil
}
