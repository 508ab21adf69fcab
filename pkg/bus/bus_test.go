package bus

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishReachesOnlyMatchingKey(t *testing.T) {
	b := New(zerolog.Nop())

	var gotT1, gotT2, gotOther []Event
	b.Subscribe("sms.sent", "tenant-1", func(e Event) { gotT1 = append(gotT1, e) })
	b.Subscribe("sms.sent", "tenant-2", func(e Event) { gotT2 = append(gotT2, e) })
	b.Subscribe("report.ready", "tenant-1", func(e Event) { gotOther = append(gotOther, e) })

	delivered := b.Publish("sms.sent", "tenant-1", map[string]any{"to": "+123"})

	assert.Equal(t, 1, delivered)
	require.Len(t, gotT1, 1)
	assert.Equal(t, "sms.sent", gotT1[0].Topic)
	assert.Equal(t, "tenant-1", gotT1[0].TenantID)
	assert.Equal(t, "+123", gotT1[0].Payload["to"])
	assert.Empty(t, gotT2, "handler under another tenant must never fire")
	assert.Empty(t, gotOther, "handler under another topic must never fire")
}

func TestBus_PublishOrderWithinKey(t *testing.T) {
	b := New(zerolog.Nop())

	var order []string
	b.Subscribe("t", "ten", func(e Event) { order = append(order, "first:"+e.Payload["n"].(string)) })
	b.Subscribe("t", "ten", func(e Event) { order = append(order, "second:"+e.Payload["n"].(string)) })

	b.Publish("t", "ten", map[string]any{"n": "a"})
	b.Publish("t", "ten", map[string]any{"n": "b"})

	assert.Equal(t, []string{"first:a", "second:a", "first:b", "second:b"}, order)
}

func TestBus_PanickingSubscriberIsIsolated(t *testing.T) {
	b := New(zerolog.Nop())

	fired := false
	b.Subscribe("t", "ten", func(Event) { panic("boom") })
	b.Subscribe("t", "ten", func(Event) { fired = true })

	assert.NotPanics(t, func() {
		b.Publish("t", "ten", nil)
	})
	assert.True(t, fired, "subscriber after the panicking one must still run")
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New(zerolog.Nop())

	count := 0
	b.Subscribe("t", "ten", func(Event) { count++ })
	b.Subscribe("t", "ten", func(Event) { count++ })
	b.Subscribe("t", "other", func(Event) { count++ })

	b.Unsubscribe("t", "ten")

	assert.Equal(t, 0, b.SubscriberCount("t", "ten"))
	assert.Equal(t, 1, b.SubscriberCount("t", "other"))

	b.Publish("t", "ten", nil)
	assert.Equal(t, 0, count)
}

func TestBus_SubscriptionCancel(t *testing.T) {
	b := New(zerolog.Nop())

	var first, second int
	sub := b.Subscribe("t", "ten", func(Event) { first++ })
	b.Subscribe("t", "ten", func(Event) { second++ })

	sub.Cancel()
	sub.Cancel() // idempotent

	b.Publish("t", "ten", nil)

	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second, "cancelling one subscription must not affect the rest")
}

func TestBus_ConcurrentPublishAndSubscribe(t *testing.T) {
	b := New(zerolog.Nop())

	var mu sync.Mutex
	received := 0
	b.Subscribe("t", "ten", func(Event) {
		mu.Lock()
		received++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			b.Publish("t", "ten", nil)
		}()
		go func() {
			defer wg.Done()
			sub := b.Subscribe("t", "other", func(Event) {})
			sub.Cancel()
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 50, received)
}
