package main

import (
	"context"
	"errors"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

var errNoPublisher = errors.New("no publisher for topic")

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type stopper interface {
	Stop()
}

type resumer interface {
	ResumePublish(orderingKey string)
}

// topicPublishers keeps one publisher per topic for the life of a run so
// batching and ordering state carry across batches.
type topicPublishers struct {
	factory publisherFactory

	mu      sync.Mutex
	byTopic map[string]publisher
}

func newTopicPublishers(factory publisherFactory) *topicPublishers {
	return &topicPublishers{factory: factory, byTopic: map[string]publisher{}}
}

func (t *topicPublishers) get(topic string) publisher {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pub, ok := t.byTopic[topic]; ok {
		return pub
	}
	pub := t.factory(topic)
	if pub != nil {
		t.byTopic[topic] = pub
	}
	return pub
}

// stopAll flushes pending messages and forgets every publisher.
func (t *topicPublishers) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for topic, pub := range t.byTopic {
		if st, ok := pub.(stopper); ok {
			st.Stop()
		}
		delete(t.byTopic, topic)
	}
}

func gcpPublisherFactory(client pubSubClient) publisherFactory {
	return func(topic string) publisher {
		p := client.Publisher(topic)
		if p == nil {
			return nil
		}
		return gcpPublisher{p}
	}
}

// gcpPublisher adapts the Pub/Sub publisher to the narrower interfaces the
// relay uses. Stop and ResumePublish are promoted from the embedded type.
type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
