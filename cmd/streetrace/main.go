// Command streetrace compiles and runs a single .sr workflow source file.
// It mirrors the prior codebase's cmd/demo: a plain main with no CLI framework,
// wiring concrete backends (an in-memory session store, an in-process tool
// registry, a scripted LLM client) behind the narrow interfaces the runtime
// consumes.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"

	"github.com/streetrace-ai/streetrace/compiler/codegen"
	"github.com/streetrace-ai/streetrace/lang/diag"
	"github.com/streetrace-ai/streetrace/lang/parser"
	"github.com/streetrace-ai/streetrace/lang/sema"
	"github.com/streetrace-ai/streetrace/runtime/events"
	"github.com/streetrace-ai/streetrace/runtime/flow"
	"github.com/streetrace-ai/streetrace/runtime/llm/testllm"
	"github.com/streetrace-ai/streetrace/runtime/telemetry"
	"github.com/streetrace-ai/streetrace/runtime/tool/registry"
	"github.com/streetrace-ai/streetrace/store/memory"
)

func main() {
	if len(os.Args) < 3 || os.Args[1] != "run" {
		fmt.Fprintln(os.Stderr, "usage: streetrace run <workflow.sr> [--prompt TEXT]")
		os.Exit(2)
	}
	path := os.Args[2]
	prompt := ""
	for i := 3; i < len(os.Args); i++ {
		if os.Args[i] == "--prompt" && i+1 < len(os.Args) {
			prompt = os.Args[i+1]
			i++
		}
	}

	in, err := compile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx := context.Background()
	if prompt != "" {
		runOnce(ctx, in, prompt)
		return
	}
	repl(ctx, in)
}

// compile loads, lexes, parses, analyzes, and lowers a .sr source file into
// a ready-to-run Interpreter, printing rustc-style diagnostics on failure.
func compile(path string) (*flow.Interpreter, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("streetrace: %w", err)
	}

	astFile, diags := parser.Parse(path, src)
	if diags.HasErrors() {
		printDiags(string(src), diags)
		return nil, fmt.Errorf("streetrace: %s: parse failed", path)
	}

	res, semaDiags := sema.Analyze(path, astFile)
	if semaDiags.HasErrors() {
		printDiags(string(src), semaDiags)
		return nil, fmt.Errorf("streetrace: %s: analysis failed", path)
	}

	wf := codegen.Generate(path, astFile, res)

	bus := events.NewBus()
	bus.Register(events.SubscriberFunc(func(ctx context.Context, ev events.Event) error {
		fmt.Fprintf(os.Stderr, "[%s] %T\n", ev.RunID(), ev)
		return nil
	}))

	interp := flow.New(wf, flow.Options{
		LLM: testllm.New(testllm.Script{}),
		Tools: registry.New(),
		Sessions: memory.New(),
		Bus: bus,
		Tracer: telemetry.NewOTelTracer(otel.Tracer("streetrace")),
		Metrics: telemetry.NewOTelMetrics(otel.Meter("streetrace")),
	})
	return interp, nil
}

func printDiags(src string, batch *diag.Batch) {
	fmt.Fprint(os.Stderr, diag.Render(src, batch.Diags))
}

func runOnce(ctx context.Context, in *flow.Interpreter, prompt string) {
	result, err := in.Run(ctx, prompt)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	fmt.Println(result)
}

// repl reads one line at a time from stdin, running each as a fresh
// workflow invocation; there is no REPL-persisted top-level scope, so each
// line is an independent $input_prompt.
func repl(ctx context.Context, in *flow.Interpreter) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("streetrace> ")
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			fmt.Print("streetrace> ")
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}
		result, err := in.Run(ctx, line)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		} else {
			fmt.Println(result)
		}
		fmt.Print("streetrace> ")
	}
}
