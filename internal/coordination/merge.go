// Package coordination implements the coordination node handlers whose
// semantics are the engine's hard part: if, switch, merge, loop, tryCatch,
// retry, rateLimit, subworkflow.
package coordination

import (
	"time"

	"github.com/flowbase/workflow-engine/internal/dynvalue"
)

// MergeDelivery is one event pushed onto a merge node's live channel: a
// delivered upstream payload, or a skip marker (the upstream edge was
// gated off and will never deliver).
type MergeDelivery struct {
	Skipped bool
	Payload map[string]any
}

// MergeParams are the merge node's parameters, per §4.5.3.
type MergeParams struct {
	Mode       string // waitAll | waitAny | append | merge
	InputCount int
	TimeoutSec int
	OutputKey  string
}

// ParseMergeParams reads MergeParams out of a node's parameters map, applying defaults.
func ParseMergeParams(parameters map[string]any) MergeParams {
	return MergeParams{
		Mode:       dynvalue.GetString(parameters, "mode", "waitAll"),
		InputCount: dynvalue.GetInt(parameters, "inputCount", 2),
		TimeoutSec: dynvalue.GetInt(parameters, "timeout", 300),
		OutputKey:  dynvalue.GetString(parameters, "outputKey", "merged"),
	}
}

// RunMerge consumes deliveries from ch until the mode's wait condition is
// satisfied, the channel is closed (no more upstream edges will deliver),
// the configured timeout elapses, or cancelled fires. It implements
// waitAny (first delivery wins), waitAll/append/merge (collect
// InputCount deliveries, each producing output shaped per mode), with a
// `_timedOut` / `_interrupted` flag when the wait ends early.
func RunMerge(params MergeParams, ch <-chan MergeDelivery, cancelled <-chan struct{}) map[string]any {
	var received []map[string]any
	timeout := time.After(time.Duration(params.TimeoutSec) * time.Second)

	for {
		if params.Mode == "waitAny" && len(received) >= 1 {
			return mergeOutput(params, received, false, false)
		}
		if params.Mode != "waitAny" && len(received) >= params.InputCount {
			return mergeOutput(params, received, false, false)
		}

		select {
		case d, ok := <-ch:
			if !ok {
				// Upstream is exhausted with fewer deliveries than expected;
				// report what we have without treating it as a timeout.
				return mergeOutput(params, received, false, false)
			}
			if !d.Skipped {
				received = append(received, d.Payload)
			}
		case <-timeout:
			return mergeOutput(params, received, true, false)
		case <-cancelled:
			return mergeOutput(params, received, false, true)
		}
	}
}

func mergeOutput(params MergeParams, received []map[string]any, timedOut, interrupted bool) map[string]any {
	out := map[string]any{
		"_inputsReceived": len(received),
		"_inputsExpected": params.InputCount,
	}
	if timedOut {
		out["_timedOut"] = true
	}
	if interrupted {
		out["_interrupted"] = true
	}

	switch params.Mode {
	case "append":
		items := make([]any, len(received))
		for i, r := range received {
			items[i] = r
		}
		out[params.OutputKey] = items
	case "merge":
		merged := map[string]any{}
		for _, r := range received {
			dynvalue.MergeShallow(merged, r)
		}
		out[params.OutputKey] = merged
	default: // waitAll, waitAny
		if len(received) > 0 {
			dynvalue.MergeShallow(out, received[len(received)-1])
		}
	}
	return out
}
