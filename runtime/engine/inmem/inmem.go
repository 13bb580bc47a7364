// Package inmem is an in-memory engine.Engine implementation for local
// development, the CLI, and tests. Grounded on the prior codebase's
// runtime/agent/engine/inmem package: activities and flows run as plain
// goroutines, with no replay-safety or durability guarantee.
package inmem

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/streetrace-ai/streetrace/runtime/engine"
	"github.com/streetrace-ai/streetrace/runtime/telemetry"
)

type eng struct {
	mu sync.RWMutex
	flows map[string]engine.FlowDefinition
	activities map[string]activityEntry
}

type activityEntry struct {
	handler engine.ActivityFunc
	opts engine.ActivityOptions
}

// New returns an in-memory Engine. Not replay-safe; suitable for tests, the
// CLI, and single-process runs.
func New() engine.Engine {
	return &eng{
		flows: map[string]engine.FlowDefinition{},
		activities: map[string]activityEntry{},
	}
}

func (e *eng) RegisterFlow(ctx context.Context, def engine.FlowDefinition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if def.Name == "" || def.Handler == nil {
		return errors.New("inmem: invalid flow definition")
	}
	if _, dup := e.flows[def.Name]; dup {
		return fmt.Errorf("inmem: flow %q already registered", def.Name)
	}
	e.flows[def.Name] = def
	return nil
}

func (e *eng) RegisterActivity(ctx context.Context, def engine.ActivityDefinition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if def.Name == "" || def.Handler == nil {
		return errors.New("inmem: invalid activity definition")
	}
	if _, dup := e.activities[def.Name]; dup {
		return fmt.Errorf("inmem: activity %q already registered", def.Name)
	}
	e.activities[def.Name] = activityEntry{handler: def.Handler, opts: def.Options}
	return nil
}

func (e *eng) StartFlow(ctx context.Context, req engine.FlowStartRequest) (engine.FlowHandle, error) {
	e.mu.RLock()
	def, ok := e.flows[req.Flow]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("inmem: flow %q not registered", req.Flow)
	}
	if req.ID == "" {
		return nil, errors.New("inmem: flow id is required")
	}

	fctx := &flowCtx{
		ctx: ctx,
		id: req.ID,
		runID: req.ID,
		logger: telemetry.NewNoopLogger(),
		metrics: telemetry.NewNoopMetrics(),
		tracer: telemetry.NewNoopTracer(),
		eng: e,
	}
	h := &handle{done: make(chan struct{})}

	go func() {
		defer close(h.done)
		res, err := def.Handler(fctx, req.Input)
		h.mu.Lock()
		h.result, h.err = res, err
		h.mu.Unlock()
	}()
	return h, nil
}

type flowCtx struct {
	ctx context.Context
	id string
	runID string
	logger telemetry.Logger
	metrics telemetry.Metrics
	tracer telemetry.Tracer
	eng *eng
}

func (f *flowCtx) Context() context.Context { return f.ctx }
func (f *flowCtx) FlowID() string { return f.id }
func (f *flowCtx) RunID() string { return f.runID }
func (f *flowCtx) Logger() telemetry.Logger { return f.logger }
func (f *flowCtx) Metrics() telemetry.Metrics { return f.metrics }
func (f *flowCtx) Tracer() telemetry.Tracer { return f.tracer }
func (f *flowCtx) Now() time.Time { return time.Now() }

func (f *flowCtx) ExecuteActivity(ctx context.Context, req engine.ActivityRequest, result any) error {
	fut, err := f.ExecuteActivityAsync(ctx, req)
	if err != nil {
		return err
	}
	return fut.Get(ctx, result)
}

func (f *flowCtx) ExecuteActivityAsync(ctx context.Context, req engine.ActivityRequest) (engine.Future, error) {
	f.eng.mu.RLock()
	entry, ok := f.eng.activities[req.Name]
	f.eng.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("inmem: activity %q not registered", req.Name)
	}
	fut := &future{ready: make(chan struct{})}
	go func() {
		defer close(fut.ready)
		res, err := entry.handler(ctx, req.Input)
		fut.mu.Lock()
		fut.result, fut.err = res, err
		fut.mu.Unlock()
	}()
	return fut, nil
}

type handle struct {
	mu sync.Mutex
	done chan struct{}
	result any
	err error
}

func (h *handle) Wait(ctx context.Context, result any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		assignResult(result, h.result)
		return h.err
	}
}

func (h *handle) Cancel(ctx context.Context) error { return nil }

type future struct {
	mu sync.Mutex
	ready chan struct{}
	result any
	err error
}

func (fut *future) Get(ctx context.Context, result any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-fut.ready:
		fut.mu.Lock()
		defer fut.mu.Unlock()
		assignResult(result, fut.result)
		return fut.err
	}
}

func (fut *future) IsReady() bool {
	select {
	case <-fut.ready:
		return true
	default:
		return false
	}
}

func assignResult(dst, src any) {
	if dst == nil || src == nil {
		return
	}
	dv := reflect.ValueOf(dst)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return
	}
	sv := reflect.ValueOf(src)
	if sv.IsValid() && sv.Type().AssignableTo(dv.Elem().Type()) {
		dv.Elem().Set(sv)
		return
	}
	if dv.Elem().Kind() == reflect.Interface && sv.Type().Implements(dv.Elem().Type()) {
		dv.Elem().Set(sv)
	}
}
