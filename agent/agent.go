// Tool-using agent loop over per-session transcripts.
//
// All agent execution goes through this module.
//
// Information Hiding:
// - Round loop internals hidden
// - Staging and commit of session state hidden
// - Model communication hidden behind llm.ModelClient
// - Tool execution coordination hidden behind tools.Invoker

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/richinex/toolthread/internal/observability"
	"github.com/richinex/toolthread/llm"
	"github.com/richinex/toolthread/model"
	"github.com/richinex/toolthread/schema"
	"github.com/richinex/toolthread/storage"
	"github.com/richinex/toolthread/tools"
)

// Turn outcomes recorded in metrics.
const (
	outcomeSuccess    = "success"
	outcomeRoundLimit = "round_limit"
	outcomeModelError = "model_error"
	outcomeCancelled  = "cancelled"
	outcomeError      = "error"
)

// Agent answers user turns by alternating model calls and tool rounds.
// Turns on one session run one at a time; different sessions run in parallel.
type Agent struct {
	config   Config
	client   llm.ModelClient
	registry *tools.Registry
	invoker  *tools.Invoker
	store    *storage.SessionStore
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// Option configures an Agent at construction.
type Option func(*Agent)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(a *Agent) {
		a.metrics = metrics
	}
}

// WithInvoker replaces the default invoker. The agent then uses the
// invoker's registry.
func WithInvoker(invoker *tools.Invoker) Option {
	return func(a *Agent) {
		a.invoker = invoker
	}
}

// New creates an agent. A nil registry or store gets an empty default.
func New(config Config, client llm.ModelClient, registry *tools.Registry, store *storage.SessionStore, opts ...Option) *Agent {
	if registry == nil {
		registry = tools.NewRegistry()
	}
	if store == nil {
		store = storage.NewSessionStore(nil)
	}

	a := &Agent{
		config:   config,
		client:   client,
		registry: registry,
		store:    store,
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.invoker == nil {
		a.invoker = tools.NewInvoker(registry, tools.DefaultInvokerConfig()).
			WithLogger(a.logger).
			WithMetrics(a.metrics)
	} else {
		a.registry = a.invoker.Registry()
	}
	return a
}

// Name returns the agent's name.
func (a *Agent) Name() string {
	return a.config.Name
}

// Description returns the agent's description.
func (a *Agent) Description() string {
	return a.config.Description
}

// Registry returns the tools offered to the model.
func (a *Agent) Registry() *tools.Registry {
	return a.registry
}

// RegisterTool adds a tool for subsequent model calls.
func (a *Agent) RegisterTool(tool tools.Tool) error {
	return a.registry.Register(tool)
}

// TurnOption adjusts a single SubmitTurn call.
type TurnOption func(*turnOptions)

type turnOptions struct {
	values    model.Values
	setValues bool
	schema    *schema.Descriptor
}

// WithSessionContext replaces the session's context bag for this turn and
// the turns after it. Tools see the bag; the model never does.
func WithSessionContext(values model.Values) TurnOption {
	return func(o *turnOptions) {
		o.values = values.Clone()
		o.setValues = true
	}
}

// WithResponseSchema requests a structured answer for this turn, overriding
// the configured schema.
func WithResponseSchema(desc *schema.Descriptor) TurnOption {
	return func(o *turnOptions) {
		o.schema = desc
	}
}

// turn is the state staged by one SubmitTurn call.
type turn struct {
	sessionID  string
	transcript *model.Transcript
	values     model.Values
	schema     *schema.Descriptor
	meta       Metadata
}

// SubmitTurn appends userText to the session and runs model and tool rounds
// until the model answers.
//
// Everything is staged on a copy of the session. A final answer commits it.
// A model error, cancellation or failed commit leaves the session exactly as
// it was. Exceeding the round limit commits the user turn and every complete
// round, then returns a *RoundLimitError.
func (a *Agent) SubmitTurn(ctx context.Context, sessionID, userText string, opts ...TurnOption) (Result, error) {
	start := time.Now()

	options := turnOptions{schema: a.config.ResponseSchema}
	for _, opt := range opts {
		opt(&options)
	}

	lease, err := a.store.Acquire(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	defer lease.Release()

	t := &turn{
		sessionID:  sessionID,
		transcript: lease.Transcript(),
		values:     lease.Values(),
		schema:     options.schema,
		meta:       Metadata{AgentName: a.config.Name, SessionID: sessionID},
	}
	if options.setValues {
		t.values = options.values
	}

	logger := a.logger.With("session_id", sessionID, "agent", a.config.Name)
	logger.Info("turn started", "history", t.transcript.Len())

	if err := t.transcript.Append(model.UserTurn(userText)); err != nil {
		return Result{}, fmt.Errorf("stage user turn: %w", err)
	}

	res, err := a.run(ctx, logger, t)
	t.meta.ExecutionTimeMs = uint64(time.Since(start).Milliseconds())
	res.Metadata = t.meta

	var limitErr *RoundLimitError
	switch {
	case err == nil:
		if cerr := lease.Commit(ctx, t.transcript, t.values); cerr != nil {
			a.finish(logger, outcomeError, t, cerr)
			return Result{}, cerr
		}
	case errors.As(err, &limitErr):
		if cerr := lease.Commit(ctx, t.transcript, t.values); cerr != nil {
			a.finish(logger, outcomeError, t, cerr)
			return Result{}, cerr
		}
		a.finish(logger, outcomeRoundLimit, t, err)
		return res, err
	default:
		a.finish(logger, classify(err), t, err)
		return Result{}, err
	}

	a.finish(logger, outcomeSuccess, t, nil)
	return res, nil
}

// run drives the round loop on staged state. It never commits.
func (a *Agent) run(ctx context.Context, logger *slog.Logger, t *turn) (Result, error) {
	limit := a.config.Rounds()

	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		decision, err := a.client.Complete(ctx, llm.Request{
			System: a.config.SystemPrompt,
			Turns:  t.transcript.Turns(),
			Tools:  a.registry.Definitions(),
			Schema: t.schema,
		})
		if err != nil {
			return Result{}, err
		}
		t.meta.ModelCalls++
		t.meta.TokenUsage.Add(llm.UsageOf(decision))

		switch d := decision.(type) {
		case *llm.ToolRequest:
			if err := a.checkCalls(t, d.Calls); err != nil {
				return Result{}, err
			}
			if t.meta.Rounds >= limit {
				logger.Warn("round limit reached", "limit", limit)
				return Result{}, &RoundLimitError{SessionID: t.sessionID, Limit: limit}
			}
			if err := a.round(ctx, logger, t, d); err != nil {
				return Result{}, err
			}

		case *llm.FinalText:
			if t.schema != nil {
				return Result{}, llm.NewModelError(llm.KindSchemaViolation,
					fmt.Sprintf("expected a structured %s record, got free text", t.schema.Name), nil)
			}
			if err := t.transcript.Append(model.AssistantText(d.Text)); err != nil {
				return Result{}, fmt.Errorf("stage answer: %w", err)
			}
			return Result{Text: d.Text}, nil

		case *llm.FinalStructured:
			if t.schema == nil {
				return Result{}, llm.NewModelError(llm.KindMalformed, "structured answer without a requested schema", nil)
			}
			if err := t.schema.Validate(d.Record); err != nil {
				return Result{}, llm.NewModelError(llm.KindSchemaViolation, "structured answer rejected", err)
			}
			if err := t.transcript.Append(model.AssistantStructured(d.Record)); err != nil {
				return Result{}, fmt.Errorf("stage answer: %w", err)
			}
			return Result{Text: string(d.Record), Structured: d.Record}, nil

		default:
			return Result{}, llm.NewModelError(llm.KindMalformed, fmt.Sprintf("unexpected decision %T", decision), nil)
		}
	}
}

// checkCalls rejects a request the transcript could not record.
func (a *Agent) checkCalls(t *turn, calls []model.ToolCall) error {
	if len(calls) == 0 {
		return llm.NewModelError(llm.KindEmptyToolRequest, "tool request named no calls", nil)
	}

	seen := make(map[string]struct{}, len(calls))
	for _, call := range calls {
		if call.ID == "" {
			return llm.NewModelError(llm.KindMalformed, fmt.Sprintf("call to %s has no id", call.Name), nil)
		}
		if _, dup := seen[call.ID]; dup || t.transcript.Issued(call.ID) {
			return llm.NewModelError(llm.KindDuplicateToolCallID, fmt.Sprintf("call id %q already used", call.ID), nil)
		}
		seen[call.ID] = struct{}{}
	}
	return nil
}

// round executes one tool request and stages it with its results as a
// single batch.
func (a *Agent) round(ctx context.Context, logger *slog.Logger, t *turn, req *llm.ToolRequest) error {
	roundNo := t.meta.Rounds + 1
	logger.Debug("tool round", "round", roundNo, "calls", len(req.Calls))

	results, err := a.invoker.InvokeAll(ctx, req.Calls, t.values)
	if err != nil {
		return err
	}

	batch := make([]model.Turn, 0, len(results)+1)
	batch = append(batch, model.AssistantToolCalls(req.Text, req.Calls))
	stats := make([]ToolStat, 0, len(results))
	for i, res := range results {
		content := res.Content()
		batch = append(batch, model.ToolResultTurn(req.Calls[i].ID, req.Calls[i].Name, content, !res.Success()))
		stats = append(stats, ToolStat{
			Name:       req.Calls[i].Name,
			CallID:     req.Calls[i].ID,
			InputSize:  len(req.Calls[i].Arguments),
			OutputSize: len(content),
			DurationMs: uint64(res.Duration.Milliseconds()),
			Success:    res.Success(),
		})
	}

	if err := t.transcript.Append(batch...); err != nil {
		if errors.Is(err, model.ErrDuplicateToolCallID) {
			return llm.NewModelError(llm.KindDuplicateToolCallID, "tool round rejected", err)
		}
		return fmt.Errorf("stage round %d: %w", roundNo, err)
	}

	t.meta.Rounds = roundNo
	t.meta.ToolCalls = append(t.meta.ToolCalls, stats...)
	return nil
}

func (a *Agent) finish(logger *slog.Logger, outcome string, t *turn, err error) {
	a.metrics.TurnFinished(outcome, t.meta.Rounds)

	attrs := []any{
		"outcome", outcome,
		"round", t.meta.Rounds,
		"model_calls", t.meta.ModelCalls,
		"tokens", t.meta.TokenUsage.TotalTokens,
		"duration_ms", t.meta.ExecutionTimeMs,
	}
	if err != nil {
		logger.Warn("turn failed", append(attrs, "error", err)...)
		return
	}
	logger.Info("turn finished", attrs...)
}

func classify(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return outcomeCancelled
	case errors.Is(err, llm.ErrModel):
		return outcomeModelError
	default:
		return outcomeError
	}
}

// ResetSession clears the session transcript and replaces its context bag.
// It waits for a turn in flight on the same session.
func (a *Agent) ResetSession(ctx context.Context, sessionID string, values model.Values) error {
	if err := a.store.Reset(ctx, sessionID, values); err != nil {
		return err
	}
	a.logger.Info("session reset", "session_id", sessionID)
	return nil
}

// Transcript returns a copy of the committed turns of a session, waiting for
// a turn in flight. An unknown session has no turns and is not created.
func (a *Agent) Transcript(ctx context.Context, sessionID string) ([]model.Turn, error) {
	snapshot, err := a.store.Read(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return snapshot.Turns, nil
}

// Sessions returns the ids of sessions known to the store.
func (a *Agent) Sessions() []string {
	return a.store.Sessions()
}
