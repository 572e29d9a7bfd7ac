package api

import (
	"sync"
)

// ProgressEvent is one step of a run's progress stream.
type ProgressEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan ProgressEvent]struct{} // runId -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan ProgressEvent]struct{}{}}
}

func (b *Broker) Subscribe(runID string) chan ProgressEvent {
	ch := make(chan ProgressEvent, 8)
	b.mu.Lock()
	if b.subs[runID] == nil {
		b.subs[runID] = map[chan ProgressEvent]struct{}{}
	}
	b.subs[runID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(runID string, ch chan ProgressEvent) {
	b.mu.Lock()
	if m := b.subs[runID]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, runID)
		}
	}
	b.mu.Unlock()
	close(ch)
}

func (b *Broker) Publish(runID string, evt ProgressEvent) {
	b.mu.Lock()
	m := b.subs[runID]
	for ch := range m {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
