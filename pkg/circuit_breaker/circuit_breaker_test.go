package circuit_breaker_test

import (
	"errors"
	"testing"
	"time"

	"github.com/Astemirdum/circulation-service/pkg/circuit_breaker"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Add(d time.Duration) { c.t = c.t.Add(d) }

func Test_circuitBreaker_Call(t *testing.T) {
	errBroker := errors.New("broker down")
	ok := func() error { return nil }
	fail := func() error { return errBroker }

	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := circuit_breaker.New(10, 2*time.Second, 0.3, 3, circuit_breaker.WithClock(clock.Now))

	for i := 0; i < 20; i++ {
		require.NoError(t, cb.Call(ok))
	}
	require.Equal(t, circuit_breaker.Closed, cb.State())

	// 3 failures out of a window of 10 reach the threshold
	for i := 0; i < 3; i++ {
		require.ErrorIs(t, cb.Call(fail), errBroker)
	}
	require.Equal(t, circuit_breaker.Open, cb.State())

	called := false
	err := cb.Call(func() error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, circuit_breaker.ErrOpenCB)
	require.False(t, called)

	clock.Add(3 * time.Second)
	require.NoError(t, cb.Call(ok))
	require.Equal(t, circuit_breaker.HalfOpen, cb.State())

	require.ErrorIs(t, cb.Call(fail), errBroker)
	require.Equal(t, circuit_breaker.Open, cb.State())

	clock.Add(3 * time.Second)
	for i := 0; i < 3; i++ {
		require.NoError(t, cb.Call(ok))
	}
	require.Equal(t, circuit_breaker.Closed, cb.State())
}

func Test_circuitBreaker_Reset(t *testing.T) {
	cb := circuit_breaker.New(2, time.Hour, 0.5, 1)
	require.Error(t, cb.Call(func() error { return errors.New("x") }))
	require.Equal(t, circuit_breaker.Open, cb.State())

	cb.Reset()
	require.Equal(t, circuit_breaker.Closed, cb.State())
	require.NoError(t, cb.Call(func() error { return nil }))
}
