package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{-1, 1 * time.Second},
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
		{70, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			assert.Equal(t, tt.expected, exponentialBackoff(tt.attempt))
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("connection refused"), true},
		{"unexpected EOF", errors.New("unexpected EOF"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"closed network connection", errors.New("use of closed network connection"), true},
		{"amqp closed", fmt.Errorf("publish: %w", amqp091.ErrClosed), true},
		{"not connected", ErrNotConnected, true},
		{"other error", errors.New("invalid input"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isConnectionError(tt.err))
		})
	}
}

func TestClientCircuitBreaker(t *testing.T) {
	client := &Client{url: "amqp://127.0.0.1:1/", exchangeName: "saldo", queueName: "saldo.changes"}

	t.Run("initial state is closed", func(t *testing.T) {
		assert.False(t, client.isCircuitOpen())
	})

	t.Run("success resets state", func(t *testing.T) {
		atomic.StoreInt64(&client.failureCount, 3)
		atomic.StoreInt32(&client.state, StateOpen)
		client.recordSuccess()

		assert.False(t, client.isCircuitOpen())
		assert.EqualValues(t, 0, atomic.LoadInt64(&client.failureCount))
		assert.Equal(t, StateClosed, atomic.LoadInt32(&client.state))
	})

	t.Run("max failures open the circuit", func(t *testing.T) {
		client.recordSuccess()
		for i := 0; i < maxFailures-1; i++ {
			client.recordFailure()
		}
		assert.False(t, client.isCircuitOpen())
		client.recordFailure()
		assert.True(t, client.isCircuitOpen())
	})

	t.Run("half-open after timeout", func(t *testing.T) {
		atomic.StoreInt32(&client.state, StateOpen)
		client.lastFailure = time.Now().Add(-openTimeout - time.Second)

		assert.False(t, client.isCircuitOpen())
		assert.Equal(t, StateHalfOpen, atomic.LoadInt32(&client.state))
	})

	t.Run("half-open failure reopens", func(t *testing.T) {
		atomic.StoreInt64(&client.failureCount, 0)
		atomic.StoreInt32(&client.state, StateHalfOpen)
		client.recordFailure()
		assert.Equal(t, StateOpen, atomic.LoadInt32(&client.state))
	})
}

func TestPublishDataChanged(t *testing.T) {
	client := &Client{url: "amqp://127.0.0.1:1/", exchangeName: "saldo", queueName: "saldo.changes"}
	msg := NewDataChangedMessage([]string{"Checking"}, []int{2024})

	t.Run("refused while circuit is open", func(t *testing.T) {
		atomic.StoreInt32(&client.state, StateOpen)
		client.lastFailure = time.Now()

		err := client.PublishDataChanged(context.Background(), msg)
		assert.ErrorIs(t, err, ErrCircuitOpen)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		client.recordSuccess()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := client.PublishDataChanged(ctx, msg)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("fails without a connection", func(t *testing.T) {
		client.recordSuccess()

		err := client.PublishDataChanged(context.Background(), msg)
		require.ErrorIs(t, err, ErrNotConnected)
		assert.EqualValues(t, 1, atomic.LoadInt64(&client.failureCount))
	})
}

// fakeAck records what happened to a delivery.
type fakeAck struct {
	acked, nacked, requeued bool
}

func (f *fakeAck) Ack(uint64, bool) error { f.acked = true; return nil }
func (f *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacked, f.requeued = true, requeue
	return nil
}
func (f *fakeAck) Reject(_ uint64, requeue bool) error {
	f.nacked, f.requeued = true, requeue
	return nil
}

func TestHandleDelivery(t *testing.T) {
	client := &Client{}
	body, err := NewDataChangedMessage([]string{"Checking"}, []int{2024}).ToJSON()
	require.NoError(t, err)

	t.Run("ack on success", func(t *testing.T) {
		ack := &fakeAck{}
		var got *DataChangedMessage
		client.handleDelivery(context.Background(), amqp091.Delivery{Acknowledger: ack, Body: body},
			func(_ context.Context, msg *DataChangedMessage) error {
				got = msg
				return nil
			})

		assert.True(t, ack.acked)
		assert.False(t, ack.nacked)
		require.NotNil(t, got)
		assert.Equal(t, []string{"Checking"}, got.Accounts)
		assert.Equal(t, []int{2024}, got.Years)
	})

	t.Run("requeue on handler failure", func(t *testing.T) {
		ack := &fakeAck{}
		client.handleDelivery(context.Background(), amqp091.Delivery{Acknowledger: ack, Body: body},
			func(context.Context, *DataChangedMessage) error { return errors.New("busy") })

		assert.False(t, ack.acked)
		assert.True(t, ack.nacked)
		assert.True(t, ack.requeued)
	})

	t.Run("drop undecodable", func(t *testing.T) {
		ack := &fakeAck{}
		called := false
		client.handleDelivery(context.Background(), amqp091.Delivery{Acknowledger: ack, Body: []byte(`{"years":"x"}`)},
			func(context.Context, *DataChangedMessage) error { called = true; return nil })

		assert.False(t, called)
		assert.True(t, ack.nacked)
		assert.False(t, ack.requeued)
	})
}

func TestConsumeStopsOnCancel(t *testing.T) {
	client := &Client{url: "amqp://127.0.0.1:1/", queueName: "q"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.ConsumeDataChanged(ctx, func(context.Context, *DataChangedMessage) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewDataChangedMessage(t *testing.T) {
	msg := NewDataChangedMessage([]string{"Savings", "", "Checking", "Savings"}, []int{2024, 2023, 2024})

	assert.Equal(t, []string{"Checking", "Savings"}, msg.Accounts)
	assert.Equal(t, []int{2023, 2024}, msg.Years)
	assert.WithinDuration(t, time.Now(), msg.Timestamp, time.Second)
}

func TestDataChangedMessageJSON(t *testing.T) {
	msg := &DataChangedMessage{
		Accounts:  []string{"Checking"},
		Years:     []int{2024},
		Timestamp: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	data, err := msg.ToJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"accounts":["Checking"],"years":[2024],"timestamp":"2024-01-01T12:00:00Z"}`, string(data))

	parsed, err := DataChangedMessageFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, msg.Accounts, parsed.Accounts)
	assert.True(t, parsed.Timestamp.Equal(msg.Timestamp))

	_, err = DataChangedMessageFromJSON([]byte(`{"years": "not a list"}`))
	assert.Error(t, err)
}
