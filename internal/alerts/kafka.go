package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafka "github.com/segmentio/kafka-go"
)

// MessageWriter is satisfied by *kafka.Writer
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// AlertEvent is the JSON value published for every alert
type AlertEvent struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Destination string    `json:"destination"`
	ContractID  string    `json:"contract_id"`
	Text        string    `json:"text"`
	Multiplier  int64     `json:"multiplier,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// KafkaSender publishes alerts to a topic, keyed by contract so all events
// of one contract land on the same partition.
type KafkaSender struct {
	writer MessageWriter
}

// NewKafkaSender creates a sender writing to topic on the given brokers
func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaSender{writer: w}
}

// NewKafkaSenderWithWriter wraps an existing writer
func NewKafkaSenderWithWriter(w MessageWriter) *KafkaSender {
	return &KafkaSender{writer: w}
}

func (s *KafkaSender) Name() string { return "kafka" }

// Send publishes the alert event
func (s *KafkaSender) Send(ctx context.Context, alert *Alert) error {
	data, err := json.Marshal(AlertEvent{
		ID:          alert.ID,
		Kind:        alert.Kind,
		Destination: alert.Destination,
		ContractID:  alert.ContractID,
		Text:        alert.Text,
		Multiplier:  alert.Multiplier,
		CreatedAt:   alert.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal kafka event: %w", err)
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(alert.ContractID),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

// Close shuts down the underlying writer
func (s *KafkaSender) Close() error {
	return s.writer.Close()
}
