package app

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordertracker/internal/messaging/kafka"
)

// initKafkaProducer подключает публикацию событий заказов, если в конфиге
// заданы брокеры. Без брокеров возвращает nil, nil: трекер работает без Kafka.
func initKafkaProducer(cfg Config, logger *log.Entry) (*kafka.Producer, error) {
	brokers := splitBrokers(cfg.KafkaBrokers)
	if len(brokers) == 0 {
		logger.Debug("kafka brokers not configured, order events stay local")
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers, cfg.KafkaTopic)
	if err != nil {
		logger.WithError(err).WithField("brokers", brokers).Warn("kafka is unavailable, order events stay local")
		return nil, fmt.Errorf("init kafka producer: %w", err)
	}

	logger.WithFields(log.Fields{
		"brokers": brokers,
		"topic":   producer.Topic(),
	}).Info("order events will be published to kafka")
	return producer, nil
}

// splitBrokers разбирает список "host:port" через запятую, пропуская пустые элементы.
func splitBrokers(raw string) []string {
	var brokers []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			brokers = append(brokers, part)
		}
	}
	return brokers
}

func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("kafka producer closed with error")
		return
	}
	logger.Info("kafka producer closed")
}
