package flow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/streetrace-ai/streetrace/runtime/engine/inmem"
)

func TestDurableRunThroughInmemEngine(t *testing.T) {
	wf := compile(t, "flow main:\n return 42\n")
	in := New(wf, Options{})

	eng := inmem.New()
	ctx := context.Background()
	require.NoError(t, in.RegisterDurable(ctx, eng, "streetrace-tasks"))

	handle, err := in.StartDurable(ctx, eng, "run-1", "streetrace-tasks", "")
	require.NoError(t, err)

	var result any
	require.NoError(t, handle.Wait(ctx, &result))
	require.Equal(t, int64(42), result)
}

func TestDurableRunPropagatesInterpreterError(t *testing.T) {
	wf := compile(t, "flow main:\n $x = 1 / 0\n return $x\n")
	in := New(wf, Options{})

	eng := inmem.New()
	ctx := context.Background()
	require.NoError(t, in.RegisterDurable(ctx, eng, "q"))

	handle, err := in.StartDurable(ctx, eng, "run-1", "q", "")
	require.NoError(t, err)

	var result any
	require.Error(t, handle.Wait(ctx, &result))
}

func TestDurableRunRejectsDuplicateRegistration(t *testing.T) {
	wf := compile(t, "flow main:\n return 1\n")
	in := New(wf, Options{})
	eng := inmem.New()
	ctx := context.Background()
	require.NoError(t, in.RegisterDurable(ctx, eng, "q"))
	require.Error(t, in.RegisterDurable(ctx, eng, "q"))
}
