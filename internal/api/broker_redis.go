package api

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type EventBroker interface {
	Subscribe(runID string) chan ProgressEvent
	Unsubscribe(runID string, ch chan ProgressEvent)
	Publish(runID string, evt ProgressEvent)
}

// In-memory broker already implemented in broker.go and satisfies EventBroker

// RedisBroker implements EventBroker over Redis Pub/Sub so progress streams
// survive running more than one API replica.
type RedisBroker struct {
	rdb  *redis.Client
	mu   sync.Mutex
	subs map[chan ProgressEvent]*redis.PubSub
}

func NewRedisBroker() (*RedisBroker, error) {
	url := os.Getenv("REDIS_URL")
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	return &RedisBroker{rdb: rdb, subs: map[chan ProgressEvent]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Subscribe(runID string) chan ProgressEvent {
	ch := make(chan ProgressEvent, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.chanName(runID))
	// initial consume to ensure subscription
	_, _ = ps.Receive(ctx)
	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()
	// the pump is the only closer of ch; it exits when the PubSub closes
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt ProgressEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
				select {
				case ch <- evt:
				default:
				}
			}
		}
	}()
	return ch
}

func (b *RedisBroker) Unsubscribe(runID string, ch chan ProgressEvent) {
	b.mu.Lock()
	ps := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ps != nil {
		// closes ps.Channel, which stops the pump, which closes ch
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(runID string, evt ProgressEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, _ := json.Marshal(evt)
	_ = b.rdb.Publish(ctx, b.chanName(runID), data).Err()
}

func (b *RedisBroker) chanName(runID string) string { return "run:" + runID }
