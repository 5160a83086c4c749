package coordination

import (
	"context"
	"sync"
	"time"

	"github.com/flowbase/workflow-engine/internal/dynvalue"
	"github.com/flowbase/workflow-engine/internal/handler"
	"github.com/flowbase/workflow-engine/internal/model"
)

// tokenBucket is a continuously-refilling token bucket, one per bucketId.
type tokenBucket struct {
	mu              sync.Mutex
	tokens          float64
	maxTokens       float64
	tokensPerSecond float64
	lastRefill      time.Time
}

func (b *tokenBucket) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.tokensPerSecond
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now
}

func (b *tokenBucket) tryAcquire(requested float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	if b.tokens >= requested {
		b.tokens -= requested
		return true
	}
	return false
}

func (b *tokenBucket) remaining() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return b.tokens
}

// slidingWindow retains timestamps of granted requests within windowSize.
type slidingWindow struct {
	mu         sync.Mutex
	timestamps []time.Time
	windowSize time.Duration
	maxPerWin  int
}

func (w *slidingWindow) evictLocked(now time.Time) {
	cutoff := now.Add(-w.windowSize)
	i := 0
	for ; i < len(w.timestamps); i++ {
		if w.timestamps[i].After(cutoff) {
			break
		}
	}
	w.timestamps = w.timestamps[i:]
}

func (w *slidingWindow) tryAcquire() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	w.evictLocked(now)
	if len(w.timestamps) < w.maxPerWin {
		w.timestamps = append(w.timestamps, now)
		return true
	}
	return false
}

func (w *slidingWindow) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evictLocked(time.Now())
	return len(w.timestamps)
}

func (w *slidingWindow) oldestExpiry() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.timestamps) == 0 {
		return time.Now()
	}
	return w.timestamps[0].Add(w.windowSize)
}

// Buckets is the process-wide, per-bucketId registry of rate-limit state,
// a deliberate shared mutation surface keyed so each bucket is locked
// independently rather than behind one global lock.
type Buckets struct {
	mu       sync.Mutex
	tokens   map[string]*tokenBucket
	windows  map[string]*slidingWindow
	OnThrottle func(bucketID string)
}

// NewBuckets returns an empty process-wide bucket registry.
func NewBuckets() *Buckets {
	return &Buckets{tokens: make(map[string]*tokenBucket), windows: make(map[string]*slidingWindow)}
}

func (b *Buckets) tokenBucketFor(id string, maxTokens, tokensPerSecond float64) *tokenBucket {
	b.mu.Lock()
	defer b.mu.Unlock()
	tb, ok := b.tokens[id]
	if !ok {
		tb = &tokenBucket{tokens: maxTokens, maxTokens: maxTokens, tokensPerSecond: tokensPerSecond, lastRefill: time.Now()}
		b.tokens[id] = tb
	}
	return tb
}

func (b *Buckets) slidingWindowFor(id string, windowSize time.Duration, maxPerWin int) *slidingWindow {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.windows[id]
	if !ok {
		w = &slidingWindow{windowSize: windowSize, maxPerWin: maxPerWin}
		b.windows[id] = w
	}
	return w
}

// RateLimitHandler gates `operations` behind a token-bucket or
// sliding-window acquire, per §4.5.7.
type RateLimitHandler struct {
	Registry *handler.Registry
	Buckets  *Buckets
}

func (h RateLimitHandler) NodeType() string { return "rate_limit" }

func (h RateLimitHandler) Execute(ctx context.Context, node model.Node, input map[string]any, ec handler.ExecutionContext) (map[string]any, error) {
	p := node.Parameters
	bucketID := dynvalue.GetString(p, "bucketId", "default")
	strategy := dynvalue.GetString(p, "strategy", "token_bucket")
	waitForTokens := dynvalue.GetBool(p, "waitForTokens", true)
	maxWaitMs := dynvalue.GetInt(p, "maxWaitMs", 60000)
	deadline := time.Now().Add(time.Duration(maxWaitMs) * time.Millisecond)

	var acquired bool
	var waited time.Duration
	out := map[string]any{"bucketId": bucketID, "strategy": strategy}
	startWait := time.Now()

	switch strategy {
	case "sliding_window":
		windowSizeMs := dynvalue.GetInt(p, "windowSizeMs", 1000)
		maxReq := dynvalue.GetInt(p, "maxRequestsPerWindow", 10)
		w := h.Buckets.slidingWindowFor(bucketID, time.Duration(windowSizeMs)*time.Millisecond, maxReq)

		acquired = w.tryAcquire()
		for !acquired && waitForTokens && time.Now().Before(deadline) {
			sleepFor := time.Until(w.oldestExpiry())
			if remaining := time.Until(deadline); remaining < sleepFor {
				sleepFor = remaining
			}
			if sleepFor > 0 {
				if !sleepOrCancel(ctx, sleepFor) {
					return h.throttledOutput(out, waited, false), model.NewCancelledError("rateLimit cancelled")
				}
			}
			acquired = w.tryAcquire()
		}
		out["requestsInWindow"] = w.count()
	default: // token_bucket
		tokensPerSecond := dynvalue.GetFloat(p, "tokensPerSecond", 10)
		maxTokens := dynvalue.GetFloat(p, "maxTokens", 100)
		tokensPerRequest := dynvalue.GetFloat(p, "tokensPerRequest", 1)
		tb := h.Buckets.tokenBucketFor(bucketID, maxTokens, tokensPerSecond)

		acquired = tb.tryAcquire(tokensPerRequest)
		for !acquired && waitForTokens && time.Now().Before(deadline) {
			need := tokensPerRequest - tb.remaining()
			var sleepFor time.Duration
			if need > 0 && tokensPerSecond > 0 {
				sleepFor = time.Duration(need/tokensPerSecond*1000) * time.Millisecond
			}
			if remaining := time.Until(deadline); remaining < sleepFor {
				sleepFor = remaining
			}
			if sleepFor > 0 {
				if !sleepOrCancel(ctx, sleepFor) {
					return h.throttledOutput(out, waited, false), model.NewCancelledError("rateLimit cancelled")
				}
			}
			acquired = tb.tryAcquire(tokensPerRequest)
		}
		out["tokensRemaining"] = tb.remaining()
	}

	waited = time.Since(startWait)
	out["waitedMs"] = waited.Milliseconds()
	out["throttled"] = !acquired
	out["success"] = acquired

	if !acquired {
		if h.Buckets.OnThrottle != nil {
			h.Buckets.OnThrottle(bucketID)
		}
		return out, nil
	}

	ops := ParseOperations(dynvalue.GetSlice(p, "operations"))
	opOut, err := RunOperations(ctx, h.Registry, ops, input, ec)
	if err != nil {
		return out, err
	}
	dynvalue.MergeShallow(out, opOut)
	return out, nil
}

func (h RateLimitHandler) throttledOutput(out map[string]any, waited time.Duration, acquired bool) map[string]any {
	out["waitedMs"] = waited.Milliseconds()
	out["throttled"] = !acquired
	out["success"] = acquired
	return out
}

func sleepOrCancel(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

var _ handler.Handler = RateLimitHandler{}
