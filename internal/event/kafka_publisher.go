package event

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/holidayvote/bridge/internal/model"
)

type KafkaPublisher struct {
	writer *kafka.Writer
}

// The Hash balancer keyed by candidate id keeps each candidate's votes on a
// single partition, so downstream consumers see per-candidate order.
// RequireAll trades latency for durability: a vote mirrored to Kafka should
// survive a leader failure just like the local audit log survives a crash.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  5,
		Compression:  kafka.Snappy,
	}
	return &KafkaPublisher{writer: w}
}

type voteMessage struct {
	Candidate  model.CandidateID `json:"candidate"`
	Count      int               `json:"count"`
	ReceivedAt time.Time         `json:"received_at"`
}

func (kp *KafkaPublisher) Publish(ctx context.Context, event model.VoteEvent, count int) error {
	payload, err := json.Marshal(voteMessage{
		Candidate:  event.Candidate,
		Count:      count,
		ReceivedAt: event.ReceivedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal vote: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.Itoa(int(event.Candidate))),
		Value: payload,
	}

	if err := kp.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

func (kp *KafkaPublisher) Close() error {
	if err := kp.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	return nil
}
