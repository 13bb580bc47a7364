// Package temporal is a durable engine.Engine backend built on
// go.temporal.io/sdk, grounded on the prior codebase's runtime/agent/engine/temporal
// package: one worker per task queue, flows/activities registered by name,
// a workflow.Context wrapped behind engine.FlowContext so runtime/flow never
// imports the Temporal SDK directly. The teacher's OTEL contrib
// instrumentation (a separate go.temporal.io/sdk/contrib/opentelemetry
// module) is dropped — see DESIGN.md — since runtime/telemetry already
// wires OTEL at the engine.FlowContext boundary instead.
package temporal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/streetrace-ai/streetrace/runtime/engine"
	"github.com/streetrace-ai/streetrace/runtime/telemetry"
)

// Options configures the Temporal engine adapter.
type Options struct {
	// Client is a pre-configured Temporal client. If nil, ClientOptions is
	// used to lazily dial one.
	Client client.Client
	// ClientOptions configures a lazily dialed client when Client is nil.
	ClientOptions *client.Options
	// TaskQueue is the default queue used when a FlowDefinition/
	// ActivityDefinition doesn't name one explicitly.
	TaskQueue string
	// WorkerOptions is forwarded to worker.New.
	WorkerOptions worker.Options

	Logger telemetry.Logger
	Metrics telemetry.Metrics
	Tracer telemetry.Tracer
}

// Engine implements engine.Engine using Temporal as the durable execution
// backend.
type Engine struct {
	client client.Client
	closeClient bool

	defaultQueue string
	workerOpts worker.Options

	logger telemetry.Logger
	metrics telemetry.Metrics
	tracer telemetry.Tracer

	mu sync.Mutex
	workers map[string]worker.Worker
}

// New constructs a Temporal engine adapter.
func New(opts Options) (*Engine, error) {
	if opts.TaskQueue == "" {
		return nil, fmt.Errorf("temporal engine: a default task queue is required")
	}
	cli := opts.Client
	closeClient := false
	if cli == nil {
		if opts.ClientOptions == nil {
			return nil, fmt.Errorf("temporal engine: client options required when Client is nil")
		}
		var err error
		cli, err = client.NewLazyClient(*opts.ClientOptions)
		if err != nil {
			return nil, fmt.Errorf("temporal engine: dial client: %w", err)
		}
		closeClient = true
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	return &Engine{
		client: cli,
		closeClient: closeClient,
		defaultQueue: opts.TaskQueue,
		workerOpts: opts.WorkerOptions,
		logger: logger,
		metrics: metrics,
		tracer: tracer,
		workers: map[string]worker.Worker{},
	}, nil
}

// Close shuts down every worker and, if this Engine dialed its own client,
// closes it too.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, w := range e.workers {
		w.Stop()
	}
	if e.closeClient {
		e.client.Close()
	}
}

// Run starts every registered worker's event loop; blocks until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	workers := make([]worker.Worker, 0, len(e.workers))
	for _, w := range e.workers {
		workers = append(workers, w)
	}
	e.mu.Unlock()
	for _, w := range workers {
		if err := w.Start(); err != nil {
			return fmt.Errorf("temporal engine: start worker: %w", err)
		}
	}
	<-ctx.Done()
	for _, w := range workers {
		w.Stop()
	}
	return nil
}

func (e *Engine) workerForQueue(queue string) worker.Worker {
	e.mu.Lock()
	defer e.mu.Unlock()
	if w, ok := e.workers[queue]; ok {
		return w
	}
	w := worker.New(e.client, queue, e.workerOpts)
	e.workers[queue] = w
	return w
}

func (e *Engine) RegisterFlow(ctx context.Context, def engine.FlowDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return fmt.Errorf("temporal engine: invalid flow definition")
	}
	queue := def.TaskQueue
	if queue == "" {
		queue = e.defaultQueue
	}
	w := e.workerForQueue(queue)
	w.RegisterWorkflowWithOptions(func(tctx workflow.Context, input any) (any, error) {
		fctx := newFlowContext(e, tctx)
		return def.Handler(fctx, input)
	}, workflow.RegisterOptions{Name: def.Name})
	return nil
}

func (e *Engine) RegisterActivity(ctx context.Context, def engine.ActivityDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return fmt.Errorf("temporal engine: invalid activity definition")
	}
	w := e.workerForQueue(e.defaultQueue)
	w.RegisterActivityWithOptions(def.Handler, activity.RegisterOptions{Name: def.Name})
	return nil
}

func (e *Engine) StartFlow(ctx context.Context, req engine.FlowStartRequest) (engine.FlowHandle, error) {
	queue := req.TaskQueue
	if queue == "" {
		queue = e.defaultQueue
	}
	run, err := e.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID: req.ID,
		TaskQueue: queue,
	}, req.Flow, req.Input)
	if err != nil {
		return nil, fmt.Errorf("temporal engine: start flow: %w", err)
	}
	return &flowHandle{client: e.client, run: run}, nil
}

type flowHandle struct {
	client client.Client
	run client.WorkflowRun
}

func (h *flowHandle) Wait(ctx context.Context, result any) error {
	return h.run.Get(ctx, result)
}

func (h *flowHandle) Cancel(ctx context.Context) error {
	return h.client.CancelWorkflow(ctx, h.run.GetID(), h.run.GetRunID())
}

type flowCtx struct {
	engine *Engine
	ctx workflow.Context
}

func newFlowContext(e *Engine, ctx workflow.Context) *flowCtx {
	return &flowCtx{engine: e, ctx: ctx}
}

func (f *flowCtx) Context() context.Context {
	// Temporal workflow code must stay deterministic; callers that need a
	// stdlib context.Context (e.g. for Tracer.Start) get context.Background(),
	// which is not cancelled when the workflow ends.
	return context.Background()
}

func (f *flowCtx) FlowID() string { return workflow.GetInfo(f.ctx).WorkflowExecution.ID }
func (f *flowCtx) RunID() string { return workflow.GetInfo(f.ctx).WorkflowExecution.RunID }

func (f *flowCtx) Logger() telemetry.Logger { return f.engine.logger }
func (f *flowCtx) Metrics() telemetry.Metrics { return f.engine.metrics }
func (f *flowCtx) Tracer() telemetry.Tracer { return f.engine.tracer }
func (f *flowCtx) Now() time.Time { return workflow.Now(f.ctx) }

func (f *flowCtx) ExecuteActivity(ctx context.Context, req engine.ActivityRequest, result any) error {
	actx := withActivityOptions(f.ctx, req)
	return workflow.ExecuteActivity(actx, req.Name, req.Input).Get(actx, result)
}

func (f *flowCtx) ExecuteActivityAsync(ctx context.Context, req engine.ActivityRequest) (engine.Future, error) {
	actx := withActivityOptions(f.ctx, req)
	fut := workflow.ExecuteActivity(actx, req.Name, req.Input)
	return &future{ctx: actx, future: fut}, nil
}

func withActivityOptions(ctx workflow.Context, req engine.ActivityRequest) workflow.Context {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	var retry *temporal.RetryPolicy
	if req.RetryPolicy.MaxAttempts > 0 || req.RetryPolicy.InitialInterval > 0 {
		coeff := req.RetryPolicy.BackoffCoefficient
		if coeff < 1 {
			coeff = 2
		}
		initial := req.RetryPolicy.InitialInterval
		if initial <= 0 {
			initial = time.Second
		}
		retry = &temporal.RetryPolicy{
			InitialInterval: initial,
			BackoffCoefficient: coeff,
			MaximumAttempts: int32(req.RetryPolicy.MaxAttempts),
		}
	}
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: retry,
	})
}

type future struct {
	ctx workflow.Context
	future workflow.Future
}

func (fut *future) Get(ctx context.Context, result any) error {
	return fut.future.Get(fut.ctx, result)
}

func (fut *future) IsReady() bool {
	return fut.future.IsReady()
}
