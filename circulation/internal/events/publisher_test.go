package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/Astemirdum/circulation-service/circulation/internal/events"
	"github.com/Astemirdum/circulation-service/circulation/internal/model"
	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newProducer(t *testing.T) *mocks.SyncProducer {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	return mocks.NewSyncProducer(t, cfg)
}

func TestKafkaPublisher_PublishBookAvailable(t *testing.T) {
	producer := newProducer(t)
	defer func() { require.NoError(t, producer.Close()) }()

	event := model.BookAvailableEvent{
		BookID:          "9b1f0c3e-5d3a-4b9e-8f3c-1c1f5e0b7a10",
		AvailableCopies: 1,
		TotalCopies:     3,
		OccurredAt:      time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
	}
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != event.BookID {
			return errors.Errorf("key %q", key)
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var got model.BookAvailableEvent
		if err := jsoniter.Unmarshal(value, &got); err != nil {
			return err
		}
		if got.BookID != event.BookID || got.AvailableCopies != 1 || got.TotalCopies != 3 || !got.OccurredAt.Equal(event.OccurredAt) {
			return errors.Errorf("event %+v", got)
		}
		return nil
	})

	pub := events.NewKafkaPublisher(producer, zap.NewNop())
	require.NoError(t, pub.PublishBookAvailable(context.Background(), event))
}

func TestKafkaPublisher_Failure(t *testing.T) {
	producer := newProducer(t)
	defer func() { require.NoError(t, producer.Close()) }()

	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub := events.NewKafkaPublisher(producer, zap.NewNop())
	err := pub.PublishBookAvailable(context.Background(), model.BookAvailableEvent{BookID: "b"})
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

func TestLogPublisher(t *testing.T) {
	pub := events.NewLogPublisher(zap.NewNop())
	require.NoError(t, pub.PublishBookAvailable(context.Background(), model.BookAvailableEvent{BookID: "b"}))
}
