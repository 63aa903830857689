// Package dream implements C12: the Dream Analyzer's pattern mining over
// recent incidents. It is invoked by the DREAM state processor's
// ANALYZING phase; this package holds the pure analysis, independent of
// round/phase bookkeeping.
package dream

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ciris-ai/ciris-core/graph"
	"github.com/ciris-ai/ciris-core/incident"
)

// Window is how far back the analyzer looks for incidents to mine.
const Window = 24 * time.Hour

const (
	minDescriptionGroup = 3
	minSourceGroup      = 5
	minTimeCluster      = 5
	timeClusterGap      = 5 * time.Minute
	minPatternForProblem = 3
)

// pattern is an internal grouping of incidents sharing some dimension,
// before being promoted to a ProblemNode.
type pattern struct {
	kind      string
	incidents []*graph.IncidentNode
}

// Analyze fetches the last Window of incidents, mines patterns, writes a
// ProblemNode for every pattern with at least minPatternForProblem
// members, marks their incidents RECURRING, and finally writes a single
// InsightNode summarizing the run. Analyzed incidents move to
// INVESTIGATING once covered.
func Analyze(ctx context.Context, store graph.Store, now time.Time) (*graph.InsightNode, []*graph.ProblemNode, error) {
	incidents, err := incident.Recent(ctx, store, now.Add(-Window))
	if err != nil {
		return nil, nil, err
	}

	patterns := append(append(
		groupByDescription(incidents),
		groupBySource(incidents)...),
		groupByTimeCluster(incidents)...)

	var problems []*graph.ProblemNode
	for _, p := range patterns {
		if len(p.incidents) < minPatternForProblem {
			continue
		}
		problem := buildProblem(p)
		problem.Base = problem.ToNode()
		if err := store.Memorize(ctx, problem.Base); err != nil {
			return nil, nil, err
		}
		problems = append(problems, problem)

		for _, inc := range p.incidents {
			inc.Status = graph.IncidentRecurring
			if err := store.Memorize(ctx, inc.ToNode()); err != nil {
				return nil, nil, err
			}
		}
	}

	for _, inc := range incidents {
		if inc.Status == graph.IncidentOpen {
			inc.Status = graph.IncidentInvestigating
			if err := store.Memorize(ctx, inc.ToNode()); err != nil {
				return nil, nil, err
			}
		}
	}

	insight := &graph.InsightNode{
		Summary:    summarize(len(incidents), len(patterns), len(problems)),
		ProblemIDs: problemIDs(problems),
	}
	if err := store.Memorize(ctx, insight.ToNode()); err != nil {
		return nil, nil, err
	}
	return insight, problems, nil
}

func groupByDescription(incidents []*graph.IncidentNode) []pattern {
	groups := make(map[string][]*graph.IncidentNode)
	for _, inc := range incidents {
		key := firstWords(inc.Description, 3)
		groups[key] = append(groups[key], inc)
	}
	var out []pattern
	for _, members := range groups {
		if len(members) >= minDescriptionGroup {
			out = append(out, pattern{kind: "description", incidents: members})
		}
	}
	return out
}

func groupBySource(incidents []*graph.IncidentNode) []pattern {
	groups := make(map[string][]*graph.IncidentNode)
	for _, inc := range incidents {
		groups[inc.SourceComponent] = append(groups[inc.SourceComponent], inc)
	}
	var out []pattern
	for _, members := range groups {
		if len(members) >= minSourceGroup {
			out = append(out, pattern{kind: "source", incidents: members})
		}
	}
	return out
}

func groupByTimeCluster(incidents []*graph.IncidentNode) []pattern {
	sorted := make([]*graph.IncidentNode, len(incidents))
	copy(sorted, incidents)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OccurredAt.Before(sorted[j].OccurredAt) })

	var out []pattern
	var cluster []*graph.IncidentNode
	flush := func() {
		if len(cluster) >= minTimeCluster {
			out = append(out, pattern{kind: "time", incidents: append([]*graph.IncidentNode{}, cluster...)})
		}
		cluster = nil
	}
	for i, inc := range sorted {
		if i == 0 {
			cluster = append(cluster, inc)
			continue
		}
		if inc.OccurredAt.Sub(sorted[i-1].OccurredAt) <= timeClusterGap {
			cluster = append(cluster, inc)
		} else {
			flush()
			cluster = append(cluster, inc)
		}
	}
	flush()
	return out
}

func firstWords(s string, n int) string {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}

// rootCauseHeuristics scans incident descriptions for known failure
// vocabulary, the spec's named heuristics.
var rootCauseHeuristics = []string{"timeout", "memory", "connection", "permission"}

func buildProblem(p pattern) *graph.ProblemNode {
	rootCause := "unknown"
	for _, h := range rootCauseHeuristics {
		for _, inc := range p.incidents {
			if strings.Contains(strings.ToLower(inc.Description), h) {
				rootCause = h
				break
			}
		}
		if rootCause != "unknown" {
			break
		}
	}

	ids := make([]string, 0, len(p.incidents))
	for _, inc := range p.incidents {
		if inc.Base != nil {
			ids = append(ids, inc.Base.ID)
		}
	}

	return &graph.ProblemNode{
		Description: fmt.Sprintf("%d incidents grouped by %s: %s", len(p.incidents), p.kind, p.incidents[0].Description),
		RootCause:   rootCause,
		IncidentIDs: ids,
		Status:      graph.IncidentInvestigating,
	}
}

func problemIDs(problems []*graph.ProblemNode) []string {
	ids := make([]string, 0, len(problems))
	for _, p := range problems {
		if p.Base != nil {
			ids = append(ids, p.Base.ID)
		}
	}
	return ids
}

func summarize(incidentCount, patternCount, problemCount int) string {
	return fmt.Sprintf("analyzed %d incidents into %d patterns, promoted %d to problems",
		incidentCount, patternCount, problemCount)
}
