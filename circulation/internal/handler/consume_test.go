package handler_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Astemirdum/circulation-service/circulation/internal/handler"
	"github.com/IBM/sarama"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	marked int32
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(*sarama.ConsumerMessage, string) { atomic.AddInt32(&s.marked, 1) }

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	messages chan *sarama.ConsumerMessage
}

func (c fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func TestSweepConsumer_ConsumeClaim(t *testing.T) {
	t.Parallel()
	var sweeps int32
	consumer := handler.NewSweepConsumer(func(ctx context.Context) (int, error) {
		if atomic.AddInt32(&sweeps, 1) == 2 {
			return 0, errors.New("db down")
		}
		return 1, nil
	}, zap.NewNop())

	require.NoError(t, consumer.Setup(nil))
	select {
	case <-consumer.Ready():
	case <-time.After(time.Second):
		t.Fatal("consumer not ready")
	}
	// a second session must not close ready again
	require.NoError(t, consumer.Setup(nil))

	claim := fakeClaim{messages: make(chan *sarama.ConsumerMessage, 3)}
	claim.messages <- &sarama.ConsumerMessage{Topic: "circulation.sweep", Value: []byte(`{"requestedAt":"2024-01-01T00:00:00Z"}`)}
	claim.messages <- &sarama.ConsumerMessage{Topic: "circulation.sweep", Value: []byte(`not json`)}
	claim.messages <- &sarama.ConsumerMessage{Topic: "circulation.sweep"}
	close(claim.messages)

	session := &fakeSession{ctx: context.Background()}
	require.NoError(t, consumer.ConsumeClaim(session, claim))
	require.EqualValues(t, 3, atomic.LoadInt32(&sweeps))
	require.EqualValues(t, 3, atomic.LoadInt32(&session.marked))
	require.NoError(t, consumer.Cleanup(session))
}

func TestSweepConsumer_StopsWithSession(t *testing.T) {
	t.Parallel()
	consumer := handler.NewSweepConsumer(func(ctx context.Context) (int, error) { return 0, nil }, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	claim := fakeClaim{messages: make(chan *sarama.ConsumerMessage)}
	require.NoError(t, consumer.ConsumeClaim(&fakeSession{ctx: ctx}, claim))
}
