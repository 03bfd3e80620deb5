package bus_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ktrader-tech/broker-facade/internal/bus"
	"github.com/ktrader-tech/broker-facade/internal/schema"
)

func TestPostDeliversToSubscribersOfType(t *testing.T) {
	b := bus.New()
	var got []schema.EventType
	b.Subscribe([]schema.EventType{schema.EventTick, schema.EventBar}, "tag-a", func(e schema.BrokerEvent) {
		got = append(got, e.Type)
	})

	b.Post(schema.BrokerEvent{Type: schema.EventTick})
	b.Post(schema.BrokerEvent{Type: schema.EventOrderStatus})
	b.Post(schema.BrokerEvent{Type: schema.EventBar})

	require.Equal(t, []schema.EventType{schema.EventTick, schema.EventBar}, got)
}

func TestPostIsFIFOPerEmitter(t *testing.T) {
	b := bus.New()
	var order []int
	b.Subscribe([]schema.EventType{schema.EventTick}, "first", func(e schema.BrokerEvent) {
		order = append(order, 1)
	})
	b.Subscribe([]schema.EventType{schema.EventTick}, "second", func(e schema.BrokerEvent) {
		order = append(order, 2)
	})

	b.Post(schema.BrokerEvent{Type: schema.EventTick})

	require.Equal(t, []int{1, 2}, order)
}

func TestRemoveSubscribersByTag(t *testing.T) {
	b := bus.New()
	calls := 0
	b.Subscribe([]schema.EventType{schema.EventTick}, "owner", func(e schema.BrokerEvent) {
		calls++
	})
	b.RemoveSubscribersByTag("owner")
	b.Post(schema.BrokerEvent{Type: schema.EventTick})

	require.Equal(t, 0, calls)
}

func TestReleaseWaitsForInFlightAndRejectsFurtherPosts(t *testing.T) {
	b := bus.New()
	calls := 0
	b.Subscribe([]schema.EventType{schema.EventTick}, "owner", func(e schema.BrokerEvent) {
		calls++
	})
	b.Post(schema.BrokerEvent{Type: schema.EventTick})
	b.Release()
	b.Post(schema.BrokerEvent{Type: schema.EventTick})

	require.Equal(t, 1, calls)
}

func TestSubscribeUnsubscribeSymmetry(t *testing.T) {
	b := bus.New()
	calls := 0
	handler := func(e schema.BrokerEvent) { calls++ }
	b.Subscribe([]schema.EventType{schema.EventTick}, "owner", handler)
	b.RemoveSubscribersByTag("owner")
	b.Subscribe([]schema.EventType{schema.EventTick}, "owner", handler)

	b.Post(schema.BrokerEvent{Type: schema.EventTick})
	require.Equal(t, 1, calls)
}
