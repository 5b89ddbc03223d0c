package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ride-hailing/internal/models"
)

// Publisher ships committed state changes to downstream consumers. Calls are
// made after the store commit, never while entity locks are held.
type Publisher interface {
	PublishLocation(ctx context.Context, loc models.DriverLocation) error
	PublishTrip(ctx context.Context, ev models.TripEvent) error
}

type KafkaPublisher struct {
	locations *kafka.Writer
	trips     *kafka.Writer
	timeout   time.Duration
}

func NewKafkaPublisher(brokers []string, locationTopic, tripTopic string) *KafkaPublisher {
	// Both topics are keyed, by driver id and trip id, so each entity's
	// messages stay ordered within one partition.
	return &KafkaPublisher{
		locations: kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: locationTopic, Balancer: &kafka.Hash{}}),
		trips:     kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: tripTopic, Balancer: &kafka.Hash{}}),
		timeout:   2 * time.Second,
	}
}

func (k *KafkaPublisher) PublishLocation(ctx context.Context, loc models.DriverLocation) error {
	return k.write(ctx, k.locations, loc.DriverID, loc)
}

func (k *KafkaPublisher) PublishTrip(ctx context.Context, ev models.TripEvent) error {
	return k.write(ctx, k.trips, ev.TripID, ev)
}

func (k *KafkaPublisher) write(ctx context.Context, w *kafka.Writer, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	return w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: b})
}

func (k *KafkaPublisher) Close() error {
	var first error
	for _, w := range []*kafka.Writer{k.locations, k.trips} {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Discard drops every event. Used when no broker is configured.
type Discard struct{}

func (Discard) PublishLocation(context.Context, models.DriverLocation) error { return nil }
func (Discard) PublishTrip(context.Context, models.TripEvent) error          { return nil }
