// Package model defines the workflow graph: nodes, edges, workflows, and
// the execution records produced by running one.
package model

import (
	"fmt"
	"strings"
	"time"
)

// HandleMain is the default source/target handle name used by all edges
// that are not gated by a coordination node's branch logic.
const HandleMain = "main"

// Node is a typed unit of work inside a Workflow.
type Node struct {
	ID          string
	Type        string
	Name        string
	PositionX   float64
	PositionY   float64
	Parameters  map[string]any
	CredentialRef string
	Disabled    bool
	Notes       string
}

// IsTrigger reports whether the node's type tag marks it as a trigger node.
func (n Node) IsTrigger() bool {
	return strings.HasSuffix(n.Type, "Trigger")
}

// Edge connects one node's output handle to another node's input handle.
type Edge struct {
	ID           string
	SourceNodeID string
	SourceHandle string
	TargetNodeID string
	TargetHandle string
}

// NormalizedSourceHandle returns the edge's source handle, defaulting to "main".
func (e Edge) NormalizedSourceHandle() string {
	if e.SourceHandle == "" {
		return HandleMain
	}
	return e.SourceHandle
}

// NormalizedTargetHandle returns the edge's target handle, defaulting to "main".
func (e Edge) NormalizedTargetHandle() string {
	if e.TargetHandle == "" {
		return HandleMain
	}
	return e.TargetHandle
}

// Workflow is an immutable, validated description of a directed graph of
// nodes and edges plus workflow-scoped settings.
type Workflow struct {
	ID          string
	Name        string
	Description string
	Nodes       []Node
	Edges       []Edge
	Settings    map[string]any
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NodeByID returns the node with the given id, or false if none exists.
func (w Workflow) NodeByID(id string) (Node, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// OutEdges returns every edge whose SourceNodeID equals nodeID.
func (w Workflow) OutEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range w.Edges {
		if e.SourceNodeID == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// InEdges returns every edge whose TargetNodeID equals nodeID.
func (w Workflow) InEdges(nodeID string) []Edge {
	var in []Edge
	for _, e := range w.Edges {
		if e.TargetNodeID == nodeID {
			in = append(in, e)
		}
	}
	return in
}

// TriggerFrontier returns the set of nodes that seed traversal: trigger
// nodes with no incoming edges.
func (w Workflow) TriggerFrontier() []Node {
	var frontier []Node
	for _, n := range w.Nodes {
		if !n.IsTrigger() {
			continue
		}
		if len(w.InEdges(n.ID)) == 0 {
			frontier = append(frontier, n)
		}
	}
	return frontier
}

// Validate checks the structural invariants from the data model: unique
// node ids, edge endpoints referencing existing nodes, no self-edges,
// trigger nodes never targeted by an edge, and that plain edges form a DAG.
func (w Workflow) Validate() error {
	seen := make(map[string]bool, len(w.Nodes))
	for _, n := range w.Nodes {
		if strings.TrimSpace(n.ID) == "" {
			return NewInvalidWorkflowError("node id must not be blank")
		}
		if strings.TrimSpace(n.Type) == "" {
			return NewInvalidWorkflowError(fmt.Sprintf("node %q: type must not be blank", n.ID))
		}
		if seen[n.ID] {
			return NewInvalidWorkflowError(fmt.Sprintf("duplicate node id %q", n.ID))
		}
		seen[n.ID] = true
	}

	for _, e := range w.Edges {
		if e.SourceNodeID == e.TargetNodeID {
			return NewInvalidWorkflowError(fmt.Sprintf("edge %q: self-edge on node %q", e.ID, e.SourceNodeID))
		}
		src, ok := w.NodeByID(e.SourceNodeID)
		if !ok {
			return NewInvalidWorkflowError(fmt.Sprintf("edge %q: unknown source node %q", e.ID, e.SourceNodeID))
		}
		_ = src
		target, ok := w.NodeByID(e.TargetNodeID)
		if !ok {
			return NewInvalidWorkflowError(fmt.Sprintf("edge %q: unknown target node %q", e.ID, e.TargetNodeID))
		}
		if target.IsTrigger() {
			return NewInvalidWorkflowError(fmt.Sprintf("edge %q: trigger node %q may not be an edge target", e.ID, e.TargetNodeID))
		}
	}

	return w.checkAcyclic()
}

// checkAcyclic rejects cycles among plain edges via DFS coloring; the
// only legal re-entry is the implicit iteration inside a loop handler,
// which never appears as a plain edge.
func (w Workflow) checkAcyclic() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(w.Nodes))
	for _, n := range w.Nodes {
		color[n.ID] = white
	}

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		for _, e := range w.OutEdges(id) {
			switch color[e.TargetNodeID] {
			case gray:
				return NewInvalidWorkflowError(fmt.Sprintf("cycle detected through node %q", id))
			case white:
				if err := visit(e.TargetNodeID); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}

	for _, n := range w.Nodes {
		if color[n.ID] == white {
			if err := visit(n.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
