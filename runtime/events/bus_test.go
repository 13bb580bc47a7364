package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToAllSubscribersInRegistrationOrder(t *testing.T) {
	bus := NewBus()
	var order []int
	bus.Register(SubscriberFunc(func(_ context.Context, _ Event) error {
		order = append(order, 1)
		return nil
	}))
	bus.Register(SubscriberFunc(func(_ context.Context, _ Event) error {
		order = append(order, 2)
		return nil
	}))
	err := bus.Publish(context.Background(), NewFlowStartedEvent("run1", "main"))
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, order)
}

func TestPublishStopsAtFirstSubscriberError(t *testing.T) {
	bus := NewBus()
	boom := errors.New("boom")
	var secondCalled bool
	bus.Register(SubscriberFunc(func(_ context.Context, _ Event) error {
		return boom
	}))
	bus.Register(SubscriberFunc(func(_ context.Context, _ Event) error {
		secondCalled = true
		return nil
	}))
	err := bus.Publish(context.Background(), NewFlowStartedEvent("run1", "main"))
	require.ErrorIs(t, err, boom)
	require.False(t, secondCalled, "a later subscriber must not run after an earlier one errors")
}

func TestCloseUnregistersSubscriber(t *testing.T) {
	bus := NewBus()
	calls := 0
	sub := bus.Register(SubscriberFunc(func(_ context.Context, _ Event) error {
		calls++
		return nil
	}))
	sub.Close()
	err := bus.Publish(context.Background(), NewFlowStartedEvent("run1", "main"))
	require.NoError(t, err)
	require.Equal(t, 0, calls)
}

func TestRegisterNilSubscriberIsNoop(t *testing.T) {
	bus := NewBus()
	sub := bus.Register(nil)
	require.NotPanics(t, func() { sub.Close() })
	err := bus.Publish(context.Background(), NewFlowStartedEvent("run1", "main"))
	require.NoError(t, err)
}

func TestPublishedEventCarriesRunIDAndType(t *testing.T) {
	bus := NewBus()
	var got Event
	bus.Register(SubscriberFunc(func(_ context.Context, e Event) error {
		got = e
		return nil
	}))
	require.NoError(t, bus.Publish(context.Background(), NewAgentCallStartedEvent("run42", "researcher", "turn1")))
	require.Equal(t, "run42", got.RunID())
	require.Equal(t, AgentCallStarted, got.Type())
}
