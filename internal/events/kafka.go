package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// KafkaPublisherConfig configures the optional out-of-process mirror of the
// Bus, for deployments where more than one process needs to observe a
// conversation's events; the Bus itself stays in-process, this is purely an
// opt-in extension for multi-process observers.
type KafkaPublisherConfig struct {
	Brokers []string
	Topic   string
}

// KafkaPublisher subscribes to a Bus and mirrors every Event onto a Kafka
// topic, grounded on manifold/internal/orchestrator's kafka.Writer usage
// (kafka.LeastBytes balancer, one Writer per topic).
type KafkaPublisher struct {
	writer *kafka.Writer
	cancel context.CancelFunc
	done   chan struct{}
}

// NewKafkaPublisher dials no brokers eagerly (kafka-go's Writer connects
// lazily on first write) and starts forwarding Bus events in a background
// goroutine. Call Close to stop forwarding and flush the writer.
func NewKafkaPublisher(cfg KafkaPublisherConfig, bus *Bus) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka publisher requires a topic")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	incoming, unsubscribe := bus.Subscribe()
	p := &KafkaPublisher{writer: writer, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(p.done)
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-incoming:
				if !ok {
					return
				}
				p.forward(ctx, ev)
			}
		}
	}()

	return p, nil
}

func (p *KafkaPublisher) forward(ctx context.Context, ev Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("kind", string(ev.Kind)).Msg("marshal broadcast event for kafka failed")
		return
	}
	msg := kafka.Message{Key: []byte(ev.ConversationID), Value: raw}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("publish broadcast event to kafka failed")
	}
}

// Close stops the forwarding goroutine and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	p.cancel()
	<-p.done
	return p.writer.Close()
}
