package api

import (
	"testing"
	"time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	runID := "run1"
	ch := b.Subscribe(runID)

	evt := ProgressEvent{Type: "run.started", Data: map[string]any{"component": "assignment"}}
	b.Publish(runID, evt)

	select {
	case got := <-ch:
		if got.Type != evt.Type {
			t.Fatalf("got type %s, want %s", got.Type, evt.Type)
		}
		if got.Data["component"] != "assignment" {
			t.Fatalf("bad payload: %+v", got.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(runID, ch)
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("channel should be closed after unsubscribe")
		}
	case <-time.After(50 * time.Millisecond):
		// acceptable if already drained and closed
	}
}

func TestBrokerIsolatesRuns(t *testing.T) {
	b := NewBroker()
	ch1 := b.Subscribe("run1")
	ch2 := b.Subscribe("run2")
	defer b.Unsubscribe("run1", ch1)
	defer b.Unsubscribe("run2", ch2)

	b.Publish("run1", ProgressEvent{Type: "run.finished"})

	select {
	case <-ch1:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("run1 subscriber missed its event")
	}
	select {
	case evt := <-ch2:
		t.Fatalf("run2 subscriber received foreign event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}
