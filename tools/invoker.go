// Tool Invoker.
//
// Information Hiding:
// - Argument validation against compiled schemas hidden
// - Timeout, panic recovery and cancellation handling hidden
// - Bounded fan-out of a round's calls hidden

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/richinex/toolthread/internal/observability"
	"github.com/richinex/toolthread/model"
)

// Invoker executes tool calls against a registry. Every failure mode of a
// single call becomes a failed ToolResult; only caller cancellation of a
// whole round surfaces as an error.
type Invoker struct {
	registry *Registry
	config   InvokerConfig
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewInvoker creates an invoker over registry.
func NewInvoker(registry *Registry, config InvokerConfig) *Invoker {
	return &Invoker{
		registry: registry,
		config:   config,
		logger:   observability.NopLogger(),
	}
}

// WithLogger sets the logger.
func (i *Invoker) WithLogger(logger *slog.Logger) *Invoker {
	if logger != nil {
		i.logger = logger
	}
	return i
}

// WithMetrics sets the metrics sink.
func (i *Invoker) WithMetrics(metrics *observability.Metrics) *Invoker {
	i.metrics = metrics
	return i
}

// Registry returns the registry the invoker dispatches to.
func (i *Invoker) Registry() *Registry {
	return i.registry
}

type outcome struct {
	result ToolResult
	err    error
}

// Invoke runs one call. It never returns an error: unknown tools, invalid
// arguments, handler errors, timeouts and panics all become failed results.
func (i *Invoker) Invoke(ctx context.Context, call model.ToolCall, values model.Values) (result ToolResult) {
	start := time.Now()
	defer func() {
		result.CallID = call.ID
		result.Name = call.Name
		result.Duration = time.Since(start)
		i.record(result)
	}()

	e, err := i.registry.lookup(call.Name)
	if err != nil {
		return failure(KindUnknownTool, err.Error())
	}

	args := normalizeArgs(call.Arguments)
	if err := e.schema.Validate(args); err != nil {
		return failure(KindInvalidArguments, err.Error())
	}
	if v, ok := e.tool.(Validator); ok {
		if err := v.Validate(args); err != nil {
			return failure(KindInvalidArguments, err.Error())
		}
	}

	timeout := i.config.Timeout()
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Buffered so the handler goroutine can always finish its send, even
	// after Invoke has given up on it.
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		res, err := e.tool.Execute(callCtx, args, values.Clone())
		done <- outcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return failure(KindExecution, out.err.Error())
		}
		if out.result.Error != nil && out.result.Error.Kind == "" {
			out.result.Error.Kind = KindExecution
		}
		return out.result
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return failure(KindExecution, fmt.Sprintf("cancelled: %v", ctx.Err()))
		}
		return failure(KindExecution, fmt.Sprintf("timed out after %s", timeout))
	}
}

// InvokeAll runs a round's calls concurrently, at most Workers() at a time,
// and returns their results in request order. If ctx is cancelled before
// every result is collected it returns ctx.Err() and no results.
func (i *Invoker) InvokeAll(ctx context.Context, calls []model.ToolCall, values model.Values) ([]ToolResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]ToolResult, len(calls))
	sem := make(chan struct{}, i.config.Workers())
	var wg sync.WaitGroup

	for idx, call := range calls {
		wg.Add(1)
		go func(idx int, call model.ToolCall) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			results[idx] = i.Invoke(ctx, call, values)
		}(idx, call)
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// A cancellation racing the last result still discards the round.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (i *Invoker) record(result ToolResult) {
	status := "success"
	if result.Error != nil {
		status = string(result.Error.Kind)
	}
	i.metrics.ToolInvoked(result.Name, status, result.Duration)

	attrs := []any{
		"tool", result.Name,
		"call_id", result.CallID,
		"status", status,
		"duration_ms", result.Duration.Milliseconds(),
	}
	if result.Error != nil {
		attrs = append(attrs, "detail", result.Error.Detail)
	}
	i.logger.Debug("tool invoked", attrs...)
}

// normalizeArgs treats an absent payload as an empty object.
func normalizeArgs(raw json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return json.RawMessage("{}")
	}
	return json.RawMessage(trimmed)
}
