package coordination

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/flowbase/workflow-engine/internal/dynvalue"
	"github.com/flowbase/workflow-engine/internal/handler"
	"github.com/flowbase/workflow-engine/internal/model"
	"github.com/flowbase/workflow-engine/internal/settings"
)

// RetryHandler runs `operations` with backoff-governed retries, per §4.5.6.
type RetryHandler struct {
	Registry *handler.Registry
	// OnAttempt, if set, is called once per attempt made (for the retry
	// attempt counter metric); nil is safe to call through.
	OnAttempt func()
}

func (h RetryHandler) NodeType() string { return "retry" }

type retryParams struct {
	maxRetries         int
	backoffStrategy    string
	initialDelayMs     int
	maxDelayMs         int
	multiplier         float64
	jitter             bool
	jitterFactor       float64
	retryableErrors    map[string]bool
	nonRetryableErrors map[string]bool
}

// parseRetryParams reads the node's explicit parameters, falling back to
// the workflow settings store (retry.attempts/retry.delay_ms, per
// §6's known-settings table) before the handler's own hardcoded
// defaults, so an operator can retune retry behavior process-wide
// without editing every workflow that uses it.
func parseRetryParams(parameters map[string]any, ec handler.ExecutionContext) retryParams {
	defaultMaxRetries := 3
	defaultInitialDelayMs := 1000
	if ec != nil {
		defaultMaxRetries = ec.SettingInt(settings.KeyRetryAttempts, defaultMaxRetries)
		defaultInitialDelayMs = ec.SettingInt(settings.KeyRetryDelayMs, defaultInitialDelayMs)
	}

	p := retryParams{
		maxRetries:      dynvalue.GetInt(parameters, "maxRetries", defaultMaxRetries),
		backoffStrategy: dynvalue.GetString(parameters, "backoffStrategy", "exponential"),
		initialDelayMs:  dynvalue.GetInt(parameters, "initialDelayMs", defaultInitialDelayMs),
		maxDelayMs:      dynvalue.GetInt(parameters, "maxDelayMs", 30000),
		multiplier:      dynvalue.GetFloat(parameters, "multiplier", 2.0),
		jitter:          dynvalue.GetBool(parameters, "jitter", true),
		jitterFactor:    dynvalue.GetFloat(parameters, "jitterFactor", 0.1),
	}
	p.retryableErrors = toStringSet(dynvalue.GetSlice(parameters, "retryableErrors"))
	p.nonRetryableErrors = toStringSet(dynvalue.GetSlice(parameters, "nonRetryableErrors"))
	return p
}

func toStringSet(items []any) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			set[s] = true
		}
	}
	return set
}

// delayForAttempt computes the un-jittered delay for attempt index a
// (0-based), capped at maxDelayMs, per the formulas in §4.5.6.
func delayForAttempt(p retryParams, a int) time.Duration {
	var ms float64
	switch p.backoffStrategy {
	case "fixed":
		ms = float64(p.initialDelayMs)
	case "linear":
		ms = float64(p.initialDelayMs) * (1 + float64(a)*p.multiplier)
	case "fibonacci":
		ms = float64(p.initialDelayMs) * float64(fibonacci(a+1))
	default: // exponential
		ms = float64(p.initialDelayMs) * math.Pow(p.multiplier, float64(a))
	}
	if ms > float64(p.maxDelayMs) {
		ms = float64(p.maxDelayMs)
	}
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms) * time.Millisecond
}

func fibonacci(n int) int {
	if n <= 2 {
		return 1
	}
	a, b := 1, 1
	for i := 3; i <= n; i++ {
		a, b = b, a+b
	}
	return b
}

func applyJitter(base time.Duration, p retryParams) time.Duration {
	if !p.jitter || base <= 0 {
		return base
	}
	delta := float64(base) * p.jitterFactor * rand.Float64()
	if rand.Intn(2) == 0 {
		delta = -delta
	}
	result := time.Duration(float64(base) + delta)
	if result < 0 {
		return 0
	}
	return result
}

func isRetryable(p retryParams, err error) bool {
	kind := string(model.KindOf(err))
	if p.nonRetryableErrors[kind] {
		return false
	}
	if len(p.retryableErrors) == 0 {
		return true
	}
	return p.retryableErrors[kind]
}

func (h RetryHandler) Execute(ctx context.Context, node model.Node, input map[string]any, ec handler.ExecutionContext) (map[string]any, error) {
	params := parseRetryParams(node.Parameters, ec)
	ops := ParseOperations(dynvalue.GetSlice(node.Parameters, "operations"))

	start := time.Now()
	var totalDelay time.Duration
	var lastErr error
	var result map[string]any
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return h.output(params, attempt, totalDelay, start, false, nil, lastErr), model.NewCancelledError("retry cancelled")
		default:
		}

		if h.OnAttempt != nil {
			h.OnAttempt()
		}
		attempt++
		out, err := RunOperations(ctx, h.Registry, ops, input, ec)
		if err == nil {
			result = out
			return h.output(params, attempt, totalDelay, start, true, result, nil), nil
		}
		lastErr = err

		if attempt > params.maxRetries || !isRetryable(params, err) {
			return h.output(params, attempt, totalDelay, start, false, nil, lastErr), nil
		}

		delay := applyJitter(delayForAttempt(params, attempt-1), params)
		totalDelay += delay

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return h.output(params, attempt, totalDelay, start, false, nil, lastErr), model.NewCancelledError("retry cancelled")
		case <-timer.C:
		}
	}
}

func (h RetryHandler) output(p retryParams, attemptCount int, totalDelay time.Duration, start time.Time, success bool, result map[string]any, lastErr error) map[string]any {
	out := map[string]any{
		"success":         success,
		"attemptCount":    attemptCount,
		"totalDelayMs":    totalDelay.Milliseconds(),
		"totalTimeMs":     time.Since(start).Milliseconds(),
		"backoffStrategy": p.backoffStrategy,
	}
	if success {
		out["result"] = result
	} else if lastErr != nil {
		out["lastError"] = lastErr.Error()
	}
	return out
}

var _ handler.Handler = RetryHandler{}
