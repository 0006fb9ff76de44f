package events

import (
	"context"
	"time"

	"github.com/Astemirdum/circulation-service/circulation/internal/model"
	"github.com/Astemirdum/circulation-service/pkg/circuit_breaker"
	"github.com/Astemirdum/circulation-service/pkg/kafka"
	"github.com/IBM/sarama"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// KafkaPublisher sends book availability events keyed by book id, so that
// events of one book keep their order within a partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	cb       circuit_breaker.CircuitBreaker
	log      *zap.Logger
}

func NewKafkaPublisher(producer sarama.SyncProducer, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		producer: producer,
		topic:    kafka.BookAvailableTopic,
		cb:       circuit_breaker.New(10, 5*time.Second, 0.5, 3),
		log:      log.Named("publisher"),
	}
}

func (p *KafkaPublisher) PublishBookAvailable(_ context.Context, event model.BookAvailableEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.BookID),
		Value: sarama.ByteEncoder(data),
	}
	return p.cb.Call(func() error {
		partition, offset, err := p.producer.SendMessage(msg)
		if err != nil {
			return errors.Wrap(err, "send book available")
		}
		p.log.Debug("book available sent",
			zap.String("bookID", event.BookID),
			zap.Int32("partition", partition),
			zap.Int64("offset", offset))
		return nil
	})
}

// LogPublisher only writes the event to the log, for runs without a broker.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log.Named("publisher")}
}

func (p *LogPublisher) PublishBookAvailable(_ context.Context, event model.BookAvailableEvent) error {
	p.log.Info("book available",
		zap.String("bookID", event.BookID),
		zap.Int("available", event.AvailableCopies),
		zap.Int("total", event.TotalCopies),
		zap.Time("at", event.OccurredAt))
	return nil
}
