package app

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitKafkaProducer_EmptyBrokers(t *testing.T) {
	producer, err := initKafkaProducer(Config{KafkaBrokers: " , "}, log.WithField("test", "kafka"))
	assert.NoError(t, err)
	assert.Nil(t, producer)
}

func TestInitKafkaProducer_UnreachableBrokers(t *testing.T) {
	producer, err := initKafkaProducer(Config{
		KafkaBrokers: "127.0.0.1:1, 127.0.0.1:2",
		KafkaTopic:   "orders.test",
	}, log.WithField("test", "kafka"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init kafka producer")
	assert.Nil(t, producer)
}

func TestCloseKafka_NilProducer(_ *testing.T) {
	closeKafka(nil, log.WithField("test", "kafka"))
}
