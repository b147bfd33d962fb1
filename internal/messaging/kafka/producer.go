package kafka

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordertracker/internal/domain"
)

const (
	producerClientID   = "order-tracker"
	producerMaxRetries = 5
	producerTimeout    = 5 * time.Second
	headerEventType    = "event_type"
)

// Producer публикует события заказов трекера в один topic Kafka.
// Ключ сообщения - ID заказа, поэтому события одного заказа попадают
// в одну партицию и читаются по порядку.
type Producer struct {
	sync   sarama.SyncProducer
	topic  string
	logger *log.Entry
}

// NewProducer подключается к брокерам. Пустой topic заменяется на TopicOrderEvents.
func NewProducer(brokers []string, topic string) (*Producer, error) {
	sync, err := sarama.NewSyncProducer(brokers, newSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return newProducer(sync, topic), nil
}

func newSaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = producerClientID
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = producerMaxRetries
	cfg.Producer.Return.Successes = true
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Idempotent = true
	cfg.Producer.Timeout = producerTimeout
	// Идемпотентный producer требует одного запроса в полёте.
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

func newProducer(sync sarama.SyncProducer, topic string) *Producer {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &Producer{
		sync:   sync,
		topic:  topic,
		logger: log.WithField("component", "kafka-producer").WithField("topic", topic),
	}
}

// Topic возвращает topic, в который пишет producer.
func (p *Producer) Topic() string {
	return p.topic
}

// PublishOrderEvent реализует domain.EventPublisher.
func (p *Producer) PublishOrderEvent(eventType string, order domain.Order) error {
	event := NewOrderEvent(EventType(eventType), order)
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.Itoa(order.ID)),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte(headerEventType), Value: []byte(eventType)},
		},
		Timestamp: event.Timestamp,
	}

	fields := log.Fields{"order_id": order.ID, "event_type": eventType}
	partition, offset, err := p.sync.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithFields(fields).Error("kafka rejected order event")
		return fmt.Errorf("send order event %d: %w", order.ID, err)
	}

	fields["partition"] = partition
	fields["offset"] = offset
	p.logger.WithFields(fields).Debug("order event sent")
	return nil
}

// Close сбрасывает буферы и закрывает соединения с брокерами.
func (p *Producer) Close() error {
	if err := p.sync.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

var _ domain.EventPublisher = (*Producer)(nil)
