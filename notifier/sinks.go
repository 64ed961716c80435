package notifier

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/recon_backend/config"
)

// LogSink writes every event to the structured log.
type LogSink struct{}

func (LogSink) Deliver(_ context.Context, evt Event) {
	config.GetLogger().WithFields(logrus.Fields{
		"module":  moduleName,
		"type":    evt.Type,
		"source":  evt.Source,
		"payload": json.RawMessage(evt.Payload),
	}).Info("sync event")
}

// PubSubSink publishes events to a Cloud Pub/Sub topic so dashboards
// and downstream consumers can follow sync progress. The topic is
// resolved lazily; failures are logged and the event dropped.
type PubSubSink struct {
	topicName string

	mu    sync.Mutex
	topic *pubsub.Topic
}

func NewPubSubSink(topicName string) *PubSubSink {
	return &PubSubSink{topicName: topicName}
}

func (s *PubSubSink) getTopic(ctx context.Context) (*pubsub.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.topic != nil {
		return s.topic, nil
	}
	client, err := config.GetClient(ctx)
	if err != nil {
		return nil, err
	}
	topic, err := config.CreateTopicIfNotExists(client, s.topicName)
	if err != nil {
		return nil, err
	}
	s.topic = topic
	return topic, nil
}

func (s *PubSubSink) Deliver(ctx context.Context, evt Event) {
	topic, err := s.getTopic(ctx)
	if err != nil {
		config.LogError(config.GetLogger(), moduleName, "Deliver", "resolve topic", evt.Type, err)
		return
	}

	data, err := json.Marshal(evt)
	if err != nil {
		config.LogError(config.GetLogger(), moduleName, "Deliver", "marshal event", evt.Type, err)
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	result := topic.Publish(pubCtx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"type":   evt.Type,
			"source": evt.Source,
		},
	})
	if _, err := result.Get(pubCtx); err != nil {
		config.LogError(config.GetLogger(), moduleName, "Deliver", "publish event", evt.Type, err)
	}
}
