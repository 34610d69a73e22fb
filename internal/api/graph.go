package api

import (
	"time"

	"github.com/joshharrison/critpath/internal/reporter"
)

// --- Graph types (nodes and edges for a front end to draw) ---

type GraphNode struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	DurationDays int    `json:"durationDays"`
	Status       string `json:"status"`
	IsCritical   bool   `json:"isCritical"`
	WaveIndex    int    `json:"waveIndex"`
	Slack        int    `json:"slack"`
}

type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type GraphMetadata struct {
	GeneratedAt string `json:"generatedAt"`
	TotalTasks  int    `json:"totalTasks"`
	TotalWaves  int    `json:"totalWaves"`
	TotalDays   int    `json:"totalDays"`
}

type Graph struct {
	Nodes        []GraphNode   `json:"nodes"`
	Edges        []GraphEdge   `json:"edges"`
	CriticalPath []string      `json:"criticalPath"`
	Metadata     GraphMetadata `json:"metadata"`
}

// toGraph converts an analyzed task set into the normalised Graph. Nodes
// and edges follow task insertion order.
func toGraph(rpt *reporter.Reporter, now time.Time) *Graph {
	g := rpt.Result.Graph

	nodes := make([]GraphNode, 0, len(g.Nodes))
	for i := range rpt.Tasks {
		t := &rpt.Tasks[i]
		ts := rpt.Result.Tasks[t.ID]
		nodes = append(nodes, GraphNode{
			ID:           t.ID,
			Title:        t.Title,
			DurationDays: ts.Duration,
			Status:       rpt.Status(t),
			IsCritical:   ts.IsCritical,
			WaveIndex:    ts.Wave,
			Slack:        ts.Slack,
		})
	}

	edges := []GraphEdge{}
	for _, from := range g.Nodes {
		for _, to := range g.Adj[from] {
			edges = append(edges, GraphEdge{From: from, To: to})
		}
	}

	critical := rpt.Result.CriticalPath
	if critical == nil {
		critical = []string{}
	}

	return &Graph{
		Nodes:        nodes,
		Edges:        edges,
		CriticalPath: critical,
		Metadata: GraphMetadata{
			GeneratedAt: now.Format(time.RFC3339),
			TotalTasks:  g.TaskCount(),
			TotalWaves:  len(rpt.Result.Waves),
			TotalDays:   rpt.Result.TotalDuration,
		},
	}
}
