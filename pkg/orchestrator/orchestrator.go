// Package orchestrator implements the core pipeline: one natural-language
// prompt becomes a validated multi-step plan, each step becomes a compiled
// and sandbox-executed snippet with bounded retry, and the accumulated
// results become a final answer. All collaborators (LLM, knowledge graph,
// snippet runtime, progress emitter) are injected so tests run the whole
// pipeline against fakes.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/restpilot/restpilot/pkg/graph"
	"github.com/restpilot/restpilot/pkg/llm"
	"github.com/restpilot/restpilot/pkg/memory"
	"github.com/restpilot/restpilot/pkg/models"
	"github.com/restpilot/restpilot/pkg/progress"
	"github.com/restpilot/restpilot/pkg/prompt"
	"github.com/restpilot/restpilot/pkg/snippet"
)

// DefaultSnippetNamespace is the base package assigned to snippets that
// declare none. A request-scoped suffix is appended per request.
const DefaultSnippetNamespace = "core.request.snippets"

// Config wires an Orchestrator. LLM, Graph, and Runtime are required.
type Config struct {
	LLM     llm.Client
	Graph   graph.KnowledgeGraph
	Runtime snippet.Runtime

	Logger *slog.Logger

	// Clock drives wall-time measurement and progress rate limiting.
	// Defaults to time.Now.
	Clock progress.Clock

	// Defaults resolve zero-valued request options. Zero value means
	// models.StandardOptionDefaults.
	Defaults models.OptionDefaults

	// SnippetMaxBytes caps snippet size. Zero means snippet.DefaultMaxBytes.
	SnippetMaxBytes int

	// SnippetNamespace is the base default package for snippets. Empty
	// means DefaultSnippetNamespace.
	SnippetNamespace string

	// ServiceEndpoints are passed to the snippet runtime per run.
	ServiceEndpoints map[string]string

	// Tracer defaults to the global tracer provider.
	Tracer trace.Tracer
}

// Orchestrator is the top-level request handler.
type Orchestrator struct {
	cfg    Config
	logger *slog.Logger
	clock  progress.Clock
	tracer trace.Tracer
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("orchestrator requires an LLM client")
	}
	if cfg.Graph == nil {
		return nil, fmt.Errorf("orchestrator requires a knowledge graph")
	}
	if cfg.Runtime == nil {
		return nil, fmt.Errorf("orchestrator requires a snippet runtime")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if (cfg.Defaults == models.OptionDefaults{}) {
		cfg.Defaults = models.StandardOptionDefaults()
	}
	if cfg.SnippetNamespace == "" {
		cfg.SnippetNamespace = DefaultSnippetNamespace
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("restpilot/orchestrator")
	}
	return &Orchestrator{cfg: cfg, logger: cfg.Logger, clock: cfg.Clock, tracer: cfg.Tracer}, nil
}

// Handle executes one request end to end. On failure the returned result, if
// non-nil, carries the summaries of steps that completed before the failure
// under Partial=true; the error is always a *RequestError.
func (o *Orchestrator) Handle(ctx context.Context, req models.ExecutionRequest, emitter progress.Emitter) (*models.ExecutionResult, error) {
	start := o.clock()

	if err := req.Validate(); err != nil {
		return nil, wrapError(KindInvalidRequest, err, "%s", err.Error())
	}
	opts := req.Options.WithDefaults(o.cfg.Defaults)

	ctx, span := o.tracer.Start(ctx, "orchestrator.handle",
		trace.WithAttributes(attribute.String("request.id", req.RequestID)))
	defer span.End()
	traceID := ""
	if sc := span.SpanContext(); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	for key, value := range req.Options.Unknown {
		span.SetAttributes(attribute.String("option.unknown."+key, fmt.Sprintf("%v", value)))
	}

	ctx, cancel := context.WithTimeout(ctx, opts.RequestTimeout)
	defer cancel()

	stats := &callStats{}
	client := &meteredClient{inner: o.cfg.LLM, stats: stats}

	isCancelled := func() bool { return ctx.Err() != nil }
	var sink progress.Sink
	if emitter != nil && opts.ProgressEnabled() && req.ProgressToken != "" {
		sink = progress.NewSink(emitter, progress.SinkOptions{
			MinInterval: *opts.ProgressMinInterval,
			MinDelta:    *opts.ProgressMinDelta,
			Clock:       o.clock,
			IsCancelled: isCancelled,
		})
	} else {
		sink = progress.NewNoopSink(isCancelled)
	}

	logger := o.logger.With("request_id", req.RequestID)
	logger.Info("Handling execution request", "prompt_len", len(req.Prompt), "max_attempts", opts.MaxAttempts)

	requestGraph := graph.NewCachedGraph(o.cfg.Graph)
	mem := memory.New()
	builder := prompt.NewBuilder()
	normalizer := &snippet.Normalizer{
		MaxBytes:         o.cfg.SnippetMaxBytes,
		DefaultNamespace: requestNamespace(o.cfg.SnippetNamespace, req.RequestID),
	}

	fail := func(steps []models.StepSummary, ops []string, reqErr *RequestError) (*models.ExecutionResult, error) {
		span.SetAttributes(attribute.String("error.kind", string(reqErr.Kind)))
		logger.Error("Request failed", "kind", reqErr.Kind, "error", reqErr)
		if len(steps) == 0 {
			return nil, reqErr
		}
		return o.buildResult("", "", steps, ops, stats, start, traceID, true), reqErr
	}

	// Stage 1: extract catalog context.
	sink.BeginStage(progress.StageExtract, "extract catalog context", 0)
	ordered, bundles, known, reqErr := o.extract(ctx, requestGraph, req.Prompt, sink)
	if reqErr != nil {
		endStageFailed(sink, progress.StageExtract, reqErr)
		return fail(nil, nil, reqErr)
	}
	sink.EndStageOk(progress.StageExtract, map[string]any{"operations": len(known)})

	// Stage 2: design the plan.
	sink.BeginStage(progress.StagePlan, "design execution plan", 0)
	if reqErr := checkCancelled(ctx, sink); reqErr != nil {
		endStageFailed(sink, progress.StagePlan, reqErr)
		return fail(nil, nil, reqErr)
	}
	designer := NewPlanDesigner(client, builder, logger)
	plan, reqErr := designer.Design(ctx, DesignInput{
		Prompt:      req.Prompt,
		Bundles:     ordered,
		Known:       known,
		Temperature: opts.LLMTemperature,
		MaxTokens:   opts.LLMMaxTokens,
		OnAttempt: func(attempt int, reasons []string) {
			// A straight-through plan emits no step events; a re-plan
			// surfaces both the rejection and the accepted retry.
			if len(reasons) > 0 {
				sink.Step(progress.StagePlan, attempt, "plan rejected, re-planning", map[string]any{"reasons": reasons})
			} else if attempt > 1 {
				sink.Step(progress.StagePlan, attempt, "plan accepted after re-plan", nil)
			}
		},
	})
	if reqErr != nil {
		endStageFailed(sink, progress.StagePlan, reqErr)
		return fail(nil, nil, reqErr)
	}
	sink.EndStageOk(progress.StagePlan, map[string]any{"steps": len(plan.Steps)})

	// Stage 3: execute the plan.
	sink.BeginStage(progress.StageExec, "execute plan", len(plan.Steps))
	implementer := NewStepImplementer(client, builder, logger)
	executor := NewPlanExecutor(implementer, o.cfg.Runtime, logger)
	execOut, reqErr := executor.Execute(ctx, ExecuteInput{
		Request:          req,
		Options:          opts,
		Plan:             plan,
		Bundles:          bundles,
		Memory:           mem,
		Sink:             sink,
		Normalizer:       normalizer,
		ServiceEndpoints: o.cfg.ServiceEndpoints,
	})
	if reqErr != nil {
		endStageFailed(sink, progress.StageExec, reqErr)
		return fail(execOut.Steps, execOut.Operations, reqErr)
	}
	sink.EndStageOk(progress.StageExec, nil)

	// Stage 4: compose the final answer.
	sink.BeginStage(progress.StageFinalize, "compose summary", 0)
	if reqErr := checkCancelled(ctx, sink); reqErr != nil {
		endStageFailed(sink, progress.StageFinalize, reqErr)
		return fail(execOut.Steps, execOut.Operations, reqErr)
	}
	composer := NewSummaryComposer(client, builder, logger)
	answer, reasoning, reqErr := composer.Compose(ctx, ComposeInput{
		Prompt:      req.Prompt,
		Steps:       execOut.Steps,
		Memory:      mem,
		Temperature: opts.LLMTemperature,
		MaxTokens:   opts.LLMMaxTokens,
	})
	if reqErr != nil {
		endStageFailed(sink, progress.StageFinalize, reqErr)
		return fail(execOut.Steps, execOut.Operations, reqErr)
	}
	sink.EndStageOk(progress.StageFinalize, nil)

	result := o.buildResult(answer, reasoning, execOut.Steps, execOut.Operations, stats, start, traceID, false)
	logger.Info("Request completed",
		"steps", len(result.Steps), "total_tokens", result.Stats.TotalTokens, "wall_ms", result.Stats.WallMillis)
	return result, nil
}

// extract resolves the catalog context for the prompt: ranked candidates,
// their prompt bundles, and the set of resolvable operation keys.
func (o *Orchestrator) extract(ctx context.Context, g graph.KnowledgeGraph, userPrompt string, sink progress.Sink) ([]*graph.OperationBundle, map[string]*graph.OperationBundle, map[string]bool, *RequestError) {
	if reqErr := checkCancelled(ctx, sink); reqErr != nil {
		return nil, nil, nil, reqErr
	}

	candidates, err := g.QueryContext(ctx, userPrompt)
	if err != nil {
		return nil, nil, nil, classifyCollaboratorError(ctx, "graph", err)
	}
	if len(candidates) == 0 {
		return nil, nil, nil, newError(KindNoCatalogContext, "no catalog operations matched the prompt")
	}

	var ordered []*graph.OperationBundle
	bundles := make(map[string]*graph.OperationBundle)
	known := make(map[string]bool)
	for _, candidate := range candidates {
		for _, key := range candidate.OperationKeys {
			if known[key] {
				continue
			}
			if reqErr := checkCancelled(ctx, sink); reqErr != nil {
				return nil, nil, nil, reqErr
			}
			bundle, err := g.QueryOperationForPrompt(ctx, key)
			if err != nil {
				return nil, nil, nil, classifyCollaboratorError(ctx, "graph", err)
			}
			if bundle == nil {
				continue
			}
			known[key] = true
			bundles[key] = bundle
			ordered = append(ordered, bundle)
		}
	}
	if len(known) == 0 {
		return nil, nil, nil, newError(KindNoCatalogContext, "no candidate operation resolved to a catalog entry")
	}
	return ordered, bundles, known, nil
}

// endStageFailed closes a stage with the status matching the failure kind.
func endStageFailed(sink progress.Sink, stage progress.StageID, reqErr *RequestError) {
	switch reqErr.Kind {
	case KindCancelled, KindDeadlineExceeded:
		sink.EndStageCancelled(stage, string(reqErr.Kind), nil)
	default:
		sink.EndStageError(stage, string(reqErr.Kind)+": "+reqErr.Message, nil)
	}
}

func (o *Orchestrator) buildResult(answer, reasoning string, steps []models.StepSummary, ops []string, stats *callStats, start time.Time, traceID string, partial bool) *models.ExecutionResult {
	usage := stats.snapshot()
	return &models.ExecutionResult{
		Answer:    answer,
		Reasoning: reasoning,
		Steps:     steps,
		Stats: models.Statistics{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			TotalTokens:      usage.TotalTokens,
			WallMillis:       o.clock().Sub(start).Milliseconds(),
			Operations:       ops,
		},
		TraceID: traceID,
		Partial: partial,
	}
}

// requestNamespace derives the request-scoped default snippet package so
// concurrent requests never collide inside an in-process runtime.
func requestNamespace(base, requestID string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(requestID) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
		if b.Len() == 8 {
			break
		}
	}
	suffix := b.String()
	if suffix == "" {
		suffix = "anon"
	}
	return base + ".r" + suffix
}
