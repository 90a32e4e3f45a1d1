package grevent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishDeliversInSubscriptionOrder(t *testing.T) {
	b := NewBus()
	var order []int
	b.Subscribe("iface.status", func(ctx context.Context, ev Event) { order = append(order, 1) })
	b.Subscribe("iface.status", func(ctx context.Context, ev Event) { order = append(order, 2) })
	b.Subscribe("iface.status", func(ctx context.Context, ev Event) { order = append(order, 3) })

	b.Publish(context.Background(), "iface.status", nil)
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestPublishExactTopicMatchOnly(t *testing.T) {
	b := NewBus()
	var called bool
	b.Subscribe("iface.status", func(ctx context.Context, ev Event) { called = true })

	b.Publish(context.Background(), "iface.status.up", nil)
	assert.False(t, called)
}

func TestPublishNoSubscribersIsNoop(t *testing.T) {
	b := NewBus()
	assert.NotPanics(t, func() {
		b.Publish(context.Background(), "nobody.listens", nil)
	})
}

func TestPublishCarriesPayloadAndID(t *testing.T) {
	b := NewBus()
	var got Event
	b.Subscribe("bond.member.added", func(ctx context.Context, ev Event) { got = ev })

	ev := b.Publish(context.Background(), "bond.member.added", "port0")
	assert.Equal(t, "port0", got.Payload)
	assert.Equal(t, ev.ID, got.ID)
	assert.NotEqual(t, "", got.ID.String())
}

func TestHandlerPanicDoesNotStopOthers(t *testing.T) {
	b := NewBus()
	var secondCalled bool
	b.Subscribe("x", func(ctx context.Context, ev Event) { panic("boom") })
	b.Subscribe("x", func(ctx context.Context, ev Event) { secondCalled = true })

	assert.NotPanics(t, func() { b.Publish(context.Background(), "x", nil) })
	assert.True(t, secondCalled)
}

func TestSubscriberCount(t *testing.T) {
	b := NewBus()
	assert.Equal(t, 0, b.SubscriberCount("y"))
	b.Subscribe("y", func(ctx context.Context, ev Event) {})
	assert.Equal(t, 1, b.SubscriberCount("y"))
}
