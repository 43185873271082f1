// ABOUTME: Tests for broadcaster fan-out, unsubscribe semantics, and the never-block guarantee.
package pipeline

import (
	"fmt"
	"sync"
	"testing"
)

func TestBroadcasterFansOutToAllSubscribers(t *testing.T) {
	b := NewBroadcaster(nil)
	subs := make([]*Subscriber, 3)
	for i := range subs {
		subs[i] = b.Subscribe()
	}

	b.Publish(NewEvent(EventStageStarted, map[string]any{"stage": "generate"}))

	for i, sub := range subs {
		select {
		case evt := <-sub.Events():
			if evt.Type != EventStageStarted {
				t.Errorf("subscriber %d got type %q, want %q", i, evt.Type, EventStageStarted)
			}
			if evt.Data["stage"] != "generate" {
				t.Errorf("subscriber %d got data %v", i, evt.Data)
			}
		default:
			t.Errorf("subscriber %d received nothing", i)
		}
	}
}

func TestBroadcasterUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster(nil)
	sub := b.Subscribe()
	if b.SubscriberCount() != 1 {
		t.Fatalf("subscriber count = %d, want 1", b.SubscriberCount())
	}

	b.Unsubscribe(sub)
	if b.SubscriberCount() != 0 {
		t.Fatalf("subscriber count after unsubscribe = %d, want 0", b.SubscriberCount())
	}

	if _, open := <-sub.Events(); open {
		t.Error("channel still open after unsubscribe")
	}

	// A second unsubscribe must be a no-op, not a double close.
	b.Unsubscribe(sub)
}

func TestBroadcasterUnsubscribedReceivesNothing(t *testing.T) {
	b := NewBroadcaster(nil)
	gone := b.Subscribe()
	stay := b.Subscribe()
	b.Unsubscribe(gone)

	b.Publish(NewEvent(EventMetricsUpdate, nil))

	select {
	case <-stay.Events():
	default:
		t.Error("remaining subscriber received nothing")
	}
}

func TestBroadcasterPublishNeverBlocksOnFullQueue(t *testing.T) {
	b := NewBroadcaster(nil)
	sub := b.Subscribe()

	// Nobody drains sub, so overfill its queue well past capacity. Publish
	// must return every time; the oldest events get dropped.
	total := subscriberQueueSize + 50
	for i := 0; i < total; i++ {
		b.Publish(NewEvent(EventMetricsUpdate, map[string]any{"seq": i}))
	}

	received := 0
	var first Event
	for {
		select {
		case evt := <-sub.Events():
			if received == 0 {
				first = evt
			}
			received++
			continue
		default:
		}
		break
	}

	if received != subscriberQueueSize {
		t.Errorf("queued events = %d, want %d", received, subscriberQueueSize)
	}
	if seq, ok := first.Data["seq"].(int); !ok || seq != total-subscriberQueueSize {
		t.Errorf("oldest surviving seq = %v, want %d (earlier events dropped)", first.Data["seq"], total-subscriberQueueSize)
	}
}

func TestBroadcasterConcurrentPublishAndChurn(t *testing.T) {
	b := NewBroadcaster(nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				sub := b.Subscribe()
				b.Publish(NewEvent(EventMetricsUpdate, map[string]any{"from": fmt.Sprintf("g%d", n)}))
				b.Unsubscribe(sub)
			}
		}(i)
	}
	wg.Wait()

	if b.SubscriberCount() != 0 {
		t.Errorf("subscriber count = %d after churn, want 0", b.SubscriberCount())
	}
}
