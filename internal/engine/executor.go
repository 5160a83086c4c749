package engine

import (
	"time"

	"github.com/flowbase/workflow-engine/internal/coordination"
	"github.com/flowbase/workflow-engine/internal/dynvalue"
	"github.com/flowbase/workflow-engine/internal/execctx"
	"github.com/flowbase/workflow-engine/internal/logpipeline"
	"github.com/flowbase/workflow-engine/internal/model"
)

// edgeSignal is one edge's resolution, fed into the run's synchronous
// bookkeeping queue: either a real delivery or a gated-off skip.
type edgeSignal struct {
	targetID string
	skipped  bool
	payload  map[string]any
}

// nodeDone is a completed (or skipped) node's result, delivered back to
// the run's main loop from the goroutine that executed its handler.
type nodeDone struct {
	node    model.Node
	output  map[string]any
	err     error
	started time.Time
}

// run holds all mutable per-execution traversal state. A single
// goroutine (run.run) owns it; handler invocations happen in their own
// goroutines and report back over asyncDone, so no locking is needed
// here beyond what execctx.Context already provides for its own state.
type run struct {
	engine *Engine
	wf     model.Workflow
	ec     *execctx.Context
	exec   *model.Execution

	totalIn    map[string]int
	satisfied  map[string]int
	deliveries map[string][]map[string]any
	started    map[string]bool
	resolved   map[string]bool

	mergeChans map[string]chan coordination.MergeDelivery

	pending   int
	inFlight  int
	queue     []edgeSignal
	asyncDone chan nodeDone

	failure error
}

func newRun(e *Engine, wf model.Workflow, ec *execctx.Context, exec *model.Execution) *run {
	r := &run{
		engine:     e,
		wf:         wf,
		ec:         ec,
		exec:       exec,
		totalIn:    make(map[string]int, len(wf.Nodes)),
		satisfied:  make(map[string]int, len(wf.Nodes)),
		deliveries: make(map[string][]map[string]any, len(wf.Nodes)),
		started:    make(map[string]bool, len(wf.Nodes)),
		resolved:   make(map[string]bool, len(wf.Nodes)),
		mergeChans: make(map[string]chan coordination.MergeDelivery),
		asyncDone:  make(chan nodeDone, len(wf.Nodes)+1),
	}
	for _, n := range wf.Nodes {
		r.totalIn[n.ID] = len(wf.InEdges(n.ID))
	}
	return r
}

// isMerge reports whether nodeID names a merge-type node in the workflow.
func (r *run) isMerge(nodeID string) bool {
	n, ok := r.wf.NodeByID(nodeID)
	return ok && n.Type == "merge"
}

// run drives the traversal to completion: seeds the trigger frontier,
// then alternates draining the synchronous edge-signal queue with
// waiting for asynchronous handler completions, until every node has
// resolved (completed, skipped, or failed).
func (r *run) run() {
	r.pending = len(r.wf.Nodes)

	for nodeID := range r.mergeChansNeeded() {
		r.mergeChans[nodeID] = make(chan coordination.MergeDelivery, r.totalIn[nodeID]+1)
		r.spawnMerge(nodeID)
		if r.totalIn[nodeID] == 0 {
			close(r.mergeChans[nodeID])
		}
	}

	for _, n := range r.wf.TriggerFrontier() {
		r.startNode(n, r.ec.InitialInput())
	}

	for r.pending > 0 {
		r.drainQueue()
		if r.pending == 0 {
			break
		}
		if r.inFlight == 0 {
			// Nothing running and nothing queued: an unreachable remainder
			// (disconnected nodes, or nodes downstream of a failed node)
			// that will never resolve. Mark the rest skipped so the run
			// terminates.
			r.skipUnreachable()
			continue
		}
		d := <-r.asyncDone
		r.inFlight--
		r.handleNodeDone(d)
	}
}

func (r *run) mergeChansNeeded() map[string]bool {
	out := make(map[string]bool)
	for _, n := range r.wf.Nodes {
		if n.Type == "merge" {
			out[n.ID] = true
		}
	}
	return out
}

func (r *run) spawnMerge(nodeID string) {
	node, _ := r.wf.NodeByID(nodeID)
	params := coordination.ParseMergeParams(node.Parameters)
	ch := r.mergeChans[nodeID]
	r.inFlight++
	started := time.Now()
	go func() {
		out := coordination.RunMerge(params, ch, r.ec.Done())
		r.asyncDone <- nodeDone{node: node, output: out, started: started}
	}()
}

// drainQueue processes queued edge signals synchronously until empty;
// processing a signal may enqueue more (skip cascades) or start a node
// (spawning a goroutine and incrementing inFlight), but never blocks.
func (r *run) drainQueue() {
	for len(r.queue) > 0 {
		sig := r.queue[0]
		r.queue = r.queue[1:]
		r.deliverEdge(sig)
	}
}

func (r *run) deliverEdge(sig edgeSignal) {
	if r.isMerge(sig.targetID) {
		ch, ok := r.mergeChans[sig.targetID]
		if ok {
			ch <- coordination.MergeDelivery{Skipped: sig.skipped, Payload: sig.payload}
		}
		r.satisfied[sig.targetID]++
		if r.satisfied[sig.targetID] == r.totalIn[sig.targetID] && ch != nil {
			close(ch)
			delete(r.mergeChans, sig.targetID)
		}
		return
	}

	r.satisfied[sig.targetID]++
	if !sig.skipped {
		r.deliveries[sig.targetID] = append(r.deliveries[sig.targetID], sig.payload)
	}

	if r.satisfied[sig.targetID] != r.totalIn[sig.targetID] || r.started[sig.targetID] {
		return
	}
	r.started[sig.targetID] = true

	node, ok := r.wf.NodeByID(sig.targetID)
	if !ok {
		return
	}

	if len(r.deliveries[sig.targetID]) == 0 {
		r.markSkipped(node)
		return
	}

	merged := map[string]any{}
	for _, d := range r.deliveries[sig.targetID] {
		dynvalue.MergeShallow(merged, d)
	}
	r.startNode(node, merged)
}

func (r *run) startNode(node model.Node, input map[string]any) {
	if node.Disabled {
		r.resolveNode(node, input, time.Now())
		return
	}

	r.inFlight++
	started := time.Now()
	go func() {
		r.ec.EmitLog(logpipeline.LevelDebug, logpipeline.CategoryNodeStart, "node started", map[string]any{"nodeId": node.ID, "nodeType": node.Type})
		h, err := r.engine.registry.Lookup(node.Type)
		if err != nil {
			r.asyncDone <- nodeDone{node: node, err: err, started: started}
			return
		}
		out, err := h.Execute(r.ec.Ctx(), node, input, r.ec)
		r.asyncDone <- nodeDone{node: node, output: out, err: err, started: started}
	}()
}

func (r *run) handleNodeDone(d nodeDone) {
	if d.err != nil {
		if r.failure == nil {
			r.failure = d.err
		}
		r.finishNode(d.node, model.StatusFailed, nil, d.err.Error(), d.started)
		return
	}
	r.resolveNode(d.node, d.output, d.started)
}

// resolveNode records a completed node's output, publishes it, gates its
// out-edges per the node type's branch policy, and propagates signals to
// targets.
func (r *run) resolveNode(node model.Node, output map[string]any, started time.Time) {
	r.ec.PublishNodeOutput(node.ID, output)
	r.ec.EmitLog(logpipeline.LevelDebug, logpipeline.CategoryNodeEnd, "node finished", map[string]any{"nodeId": node.ID})
	r.finishNode(node, model.StatusSuccess, output, "", started)
	r.propagate(node, output, false)
}

func (r *run) markSkipped(node model.Node) {
	r.finishNode(node, model.StatusSkipped, nil, "", time.Now())
	r.propagate(node, nil, true)
}

func (r *run) finishNode(node model.Node, status model.Status, output map[string]any, errMsg string, started time.Time) {
	if r.resolved[node.ID] {
		return
	}
	r.resolved[node.ID] = true
	r.pending--
	r.exec.AppendNodeExecution(model.NodeExecution{
		NodeID:       node.ID,
		NodeName:     node.Name,
		NodeType:     node.Type,
		Status:       status,
		StartedAt:    started,
		FinishedAt:   time.Now(),
		Output:       output,
		ErrorMessage: errMsg,
	})
}

// propagate computes the node's active out-edges per its branch policy
// and queues an edgeSignal to every out-edge's target: a delivery for
// active edges, a skip for gated-off ones.
func (r *run) propagate(node model.Node, output map[string]any, nodeSkipped bool) {
	edges := r.wf.OutEdges(node.ID)
	if nodeSkipped {
		for _, e := range edges {
			r.queue = append(r.queue, edgeSignal{targetID: e.TargetNodeID, skipped: true})
		}
		return
	}

	active := activeHandles(node, output)
	for _, e := range edges {
		if active[e.NormalizedSourceHandle()] {
			r.queue = append(r.queue, edgeSignal{targetID: e.TargetNodeID, payload: output})
		} else {
			r.queue = append(r.queue, edgeSignal{targetID: e.TargetNodeID, skipped: true})
		}
	}
}

// activeHandles returns the set of source handles considered active for
// a completed node, per §4.4 step 4.
func activeHandles(node model.Node, output map[string]any) map[string]bool {
	switch node.Type {
	case "if":
		branch, _ := output["branch"].(string)
		if branch == "" {
			branch = "false"
		}
		return map[string]bool{branch: true}
	case "switch":
		branch, _ := output["_branch"].(string)
		return map[string]bool{branch: true}
	default:
		return map[string]bool{model.HandleMain: true}
	}
}

// skipUnreachable marks every still-unresolved node as SKIPPED. This is
// reached for nodes structurally disconnected from the trigger frontier
// and for nodes downstream of a failed node, since a failed node signals
// none of its out-edges.
func (r *run) skipUnreachable() {
	for _, n := range r.wf.Nodes {
		if !r.resolved[n.ID] {
			r.finishNode(n, model.StatusSkipped, nil, "", time.Now())
		}
	}
}

// terminalOutputs collects the outputs of nodes with no outgoing edges,
// as the execution's overall Output.
func (r *run) terminalOutputs() map[string]any {
	out := map[string]any{}
	for _, n := range r.wf.Nodes {
		if len(r.wf.OutEdges(n.ID)) != 0 {
			continue
		}
		if o, ok := r.ec.NodeOutput(n.ID); ok {
			out[n.ID] = o
		}
	}
	return out
}
