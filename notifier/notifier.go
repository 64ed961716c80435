// Package notifier fans sync and reconciliation events out to
// interested sinks. Publishing is fire-and-forget over a bounded
// queue: when the queue is full the event is dropped and counted, and
// the producing sync never blocks.
package notifier

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/recon_backend/config"
)

const moduleName = "notifier"

type Event struct {
	Type       string          `json:"type"`
	Source     string          `json:"source,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Sink receives events in publish order. A slow sink delays the other
// sinks but never the producer.
type Sink interface {
	Deliver(ctx context.Context, evt Event)
}

type Notifier struct {
	sinks   []Sink
	queue   chan Event
	dropped atomic.Int64
	wg      sync.WaitGroup
	once    sync.Once
}

func New(queueSize int, sinks ...Sink) *Notifier {
	if queueSize <= 0 {
		queueSize = 256
	}
	n := &Notifier{
		sinks: sinks,
		queue: make(chan Event, queueSize),
	}
	n.wg.Add(1)
	go n.run()
	return n
}

func (n *Notifier) run() {
	defer n.wg.Done()
	ctx := context.Background()
	for evt := range n.queue {
		for _, sink := range n.sinks {
			sink.Deliver(ctx, evt)
		}
	}
}

// Publish enqueues the event, dropping it when the queue is full.
func (n *Notifier) Publish(evtType, source string, payload interface{}) {
	evt := Event{
		Type:       evtType,
		Source:     source,
		OccurredAt: time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			config.LogError(config.GetLogger(), moduleName, "Publish", "marshal payload", evtType, err)
			return
		}
		evt.Payload = raw
	}

	select {
	case n.queue <- evt:
	default:
		dropped := n.dropped.Add(1)
		config.GetLogger().WithFields(logrus.Fields{
			"module":  moduleName,
			"type":    evtType,
			"dropped": dropped,
		}).Warn("event queue full, dropping event")
	}
}

// Dropped reports how many events were discarded since start.
func (n *Notifier) Dropped() int64 {
	return n.dropped.Load()
}

// Close drains outstanding events and stops the worker. Publish must
// not be called after Close.
func (n *Notifier) Close() {
	n.once.Do(func() {
		close(n.queue)
	})
	n.wg.Wait()
}
