package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/cx-tal-miterani/flight-reservation/internal/logger"
	"github.com/cx-tal-miterani/flight-reservation/internal/models"
)

// Envelope is the JSON value written to the notifications topic.
type Envelope struct {
	Recipient    string              `json:"recipient"`
	Notification models.Notification `json:"notification"`
}

// KafkaNotifier publishes notifications to a topic, keyed by booking id so
// all messages for one booking land on the same partition.
type KafkaNotifier struct {
	producer sarama.SyncProducer
	topic    string
	log      logger.Logger
}

// NewKafkaNotifier connects a sync producer to brokers.
func NewKafkaNotifier(brokers []string, topic string, log logger.Logger) (*KafkaNotifier, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewKafkaNotifierWithProducer(producer, topic, log), nil
}

func NewKafkaNotifierWithProducer(producer sarama.SyncProducer, topic string, log logger.Logger) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic, log: log}
}

func (n *KafkaNotifier) Notify(ctx context.Context, recipient string, msg models.Notification) error {
	b, err := json.Marshal(Envelope{Recipient: recipient, Notification: msg})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	partition, offset, err := n.producer.SendMessage(&sarama.ProducerMessage{
		Topic: n.topic,
		Key:   sarama.StringEncoder(msg.BookingID),
		Value: sarama.ByteEncoder(b),
	})
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	n.log.Debug("Notification published", "bookingID", msg.BookingID, "partition", partition, "offset", offset)
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.producer.Close()
}
