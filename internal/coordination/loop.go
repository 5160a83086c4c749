package coordination

import (
	"context"
	"sync"

	"github.com/flowbase/workflow-engine/internal/dynvalue"
	"github.com/flowbase/workflow-engine/internal/handler"
	"github.com/flowbase/workflow-engine/internal/model"
)

// LoopHandler iterates `items`, running the embedded body once per item,
// sequentially or (batched) in parallel, per §4.5.4.
type LoopHandler struct {
	Registry *handler.Registry
}

func (h LoopHandler) NodeType() string { return "loop" }

func (h LoopHandler) Execute(ctx context.Context, node model.Node, input map[string]any, ec handler.ExecutionContext) (map[string]any, error) {
	items := resolveItems(node.Parameters, input)
	parallel := dynvalue.GetBool(node.Parameters, "parallel", false)
	batchSize := dynvalue.GetInt(node.Parameters, "batchSize", 10)
	if batchSize <= 0 {
		batchSize = 10
	}
	body := ParseOperations(dynvalue.GetSlice(node.Parameters, "body"))

	if len(items) == 0 {
		return map[string]any{"results": []any{}, "count": 0}, nil
	}

	var results []any
	var err error
	if parallel {
		results, err = h.runParallel(ctx, body, items, batchSize, input, ec)
	} else {
		results, err = h.runSequential(ctx, body, items, input, ec)
	}
	if err != nil {
		return nil, err
	}

	return map[string]any{"results": results, "count": len(results)}, nil
}

func (h LoopHandler) runSequential(ctx context.Context, body []Operation, items []any, input map[string]any, ec handler.ExecutionContext) ([]any, error) {
	results := make([]any, 0, len(items))
	for i, item := range items {
		select {
		case <-ctx.Done():
			return nil, model.NewCancelledError("loop cancelled")
		default:
		}
		itemInput := dynvalue.Copy(input)
		itemInput["item"] = item
		itemInput["index"] = i
		itemInput["total"] = len(items)
		itemInput["batchIndex"] = 0
		itemInput["isFirst"] = i == 0
		itemInput["isLast"] = i == len(items)-1

		out, err := RunOperations(ctx, h.Registry, body, itemInput, ec)
		if err != nil {
			return nil, err
		}
		results = append(results, out)
	}
	return results, nil
}

// runParallel partitions items into batches of batchSize; within a batch,
// bodies run concurrently with structured concurrency: the first error
// cancels the batch's siblings, discards already-collected batch results,
// and fails the loop. Batches run sequentially.
func (h LoopHandler) runParallel(ctx context.Context, body []Operation, items []any, batchSize int, input map[string]any, ec handler.ExecutionContext) ([]any, error) {
	var results []any

	for batchStart := 0; batchStart < len(items); batchStart += batchSize {
		batchEnd := batchStart + batchSize
		if batchEnd > len(items) {
			batchEnd = len(items)
		}
		batch := items[batchStart:batchEnd]

		batchCtx, cancelBatch := context.WithCancel(ctx)
		var wg sync.WaitGroup
		var mu sync.Mutex
		batchResults := make([]any, len(batch))
		var firstErr error

		for offset, item := range batch {
			wg.Add(1)
			go func(offset int, item any, globalIndex int) {
				defer wg.Done()
				itemInput := dynvalue.Copy(input)
				itemInput["item"] = item
				itemInput["index"] = globalIndex
				itemInput["total"] = len(items)
				itemInput["batchIndex"] = batchStart / batchSize
				itemInput["isFirst"] = globalIndex == 0
				itemInput["isLast"] = globalIndex == len(items)-1

				out, err := RunOperations(batchCtx, h.Registry, body, itemInput, ec)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
						cancelBatch()
					}
					mu.Unlock()
					return
				}
				mu.Lock()
				batchResults[offset] = out
				mu.Unlock()
			}(offset, item, batchStart+offset)
		}

		wg.Wait()
		cancelBatch()

		if firstErr != nil {
			return nil, firstErr
		}
		results = append(results, batchResults...)
	}

	return results, nil
}

func resolveItems(parameters map[string]any, input map[string]any) []any {
	raw, ok := parameters["items"]
	if !ok {
		return nil
	}
	if path, ok := raw.(string); ok {
		val, found := dynvalue.ByPath(map[string]any(input), path)
		if !found {
			return nil
		}
		return dynvalue.ToSlice(val)
	}
	return dynvalue.ToSlice(raw)
}

var _ handler.Handler = LoopHandler{}
