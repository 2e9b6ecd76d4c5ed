package analytics

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
)

const (
	EventModelRequested = "model_requested"
	EventModelSucceeded = "model_succeeded"
)

type Event struct {
	Name    string    `json:"name"`
	TaskID  string    `json:"task_id"`
	OwnerID string    `json:"owner_id"`
	Mode    string    `json:"mode"`
	TraceID string    `json:"trace_id,omitempty"`
	At      time.Time `json:"at"`
}

// Producer emits analytics events. Emission is best effort everywhere it is
// called; a failed emit never fails the surrounding operation.
type Producer interface {
	Emit(ctx context.Context, event *Event) error
	Close() error
}

type kafkaProducer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewProducer(brokers []string, topic string) (Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return &kafkaProducer{producer: p, topic: topic}, nil
}

func (p *kafkaProducer) Emit(ctx context.Context, event *Event) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.TaskID),
		Value: sarama.ByteEncoder(data),
	}

	_, _, err = p.producer.SendMessage(msg)
	return err
}

func (p *kafkaProducer) Close() error {
	return p.producer.Close()
}

// Nop discards events, for deployments without a broker.
type Nop struct{}

func (Nop) Emit(ctx context.Context, event *Event) error { return nil }
func (Nop) Close() error                                 { return nil }
