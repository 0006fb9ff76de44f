package handler

import (
	"context"
	"sync"

	"github.com/Astemirdum/circulation-service/circulation/internal/model"
	"github.com/IBM/sarama"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

type expirePastDue func(ctx context.Context) (int, error)

// SweepConsumer runs the reservation expiry sweep for every message on the sweep topic.
type SweepConsumer struct {
	expire expirePastDue
	log    *zap.Logger
	ready  chan struct{}
	once   sync.Once
}

func NewSweepConsumer(expire expirePastDue, log *zap.Logger) *SweepConsumer {
	return &SweepConsumer{
		expire: expire,
		log:    log.Named("consumer"),
		ready:  make(chan struct{}),
	}
}

// Ready is closed once the first session is set up.
func (consumer *SweepConsumer) Ready() <-chan struct{} {
	return consumer.ready
}

func (consumer *SweepConsumer) Setup(sarama.ConsumerGroupSession) error {
	consumer.once.Do(func() { close(consumer.ready) })
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (consumer *SweepConsumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (consumer *SweepConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				consumer.log.Warn("message channel was closed")
				return nil
			}
			consumer.handle(session.Context(), message)
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// handle sweeps regardless of the payload; a malformed body is only logged.
func (consumer *SweepConsumer) handle(ctx context.Context, message *sarama.ConsumerMessage) {
	var msg model.SweepMsg
	if len(message.Value) > 0 {
		if err := jsoniter.Unmarshal(message.Value, &msg); err != nil {
			consumer.log.Warn("sweep message", zap.Error(err))
		}
	}
	n, err := consumer.expire(ctx)
	if err != nil {
		consumer.log.Error("expire reservations", zap.Error(err))
		return
	}
	consumer.log.Debug("sweep done",
		zap.Int("expired", n),
		zap.Time("requestedAt", msg.RequestedAt),
		zap.String("topic", message.Topic),
		zap.Int64("offset", message.Offset))
}
