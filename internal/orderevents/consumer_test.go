package orderevents

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/dinecart/pkg/logger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type forgetCall struct {
	userID, restaurantID string
}

type MockForgetter struct {
	mu    sync.Mutex
	users map[string]bool
	calls []forgetCall
}

func (m *MockForgetter) ForgetCart(_ context.Context, userID, restaurantID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, forgetCall{userID, restaurantID})
	return m.users[userID]
}

func (m *MockForgetter) forgotten() []forgetCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]forgetCall(nil), m.calls...)
}

// MockReader replays messages, then blocks until ctx is done.
type MockReader struct {
	messages chan kafka.Message
	closed   bool
}

func (m *MockReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case msg := <-m.messages:
		return msg, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (m *MockReader) Close() error {
	m.closed = true
	return nil
}

func message(t *testing.T, event OrderPlacedEvent, headers ...kafka.Header) kafka.Message {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(event.OrderID), Value: payload, Headers: headers}
}

func TestHandle_OrderPlacedForgetsCart(t *testing.T) {
	target := &MockForgetter{users: map[string]bool{"u1": true}}
	c := &Consumer{target: target, log: logger.Nop()}

	err := c.handle(context.Background(), message(t, OrderPlacedEvent{
		Type: EventOrderPlaced, OrderID: "o1", UserID: "u1", RestaurantID: "R1",
	}))

	require.NoError(t, err)
	assert.Equal(t, []forgetCall{{"u1", "R1"}}, target.forgotten())
}

func TestHandle_TypeFromHeader(t *testing.T) {
	target := &MockForgetter{}
	c := &Consumer{target: target, log: logger.Nop()}

	err := c.handle(context.Background(), message(t,
		OrderPlacedEvent{OrderID: "o1", UserID: "u1", RestaurantID: "R1"},
		kafka.Header{Key: "event_type", Value: []byte(EventOrderPlaced)},
	))

	require.NoError(t, err)
	assert.Len(t, target.forgotten(), 1)
}

func TestHandle_IgnoresOtherEvents(t *testing.T) {
	target := &MockForgetter{}
	c := &Consumer{target: target, log: logger.Nop()}

	err := c.handle(context.Background(), message(t, OrderPlacedEvent{Type: "order_cancelled", UserID: "u1", RestaurantID: "R1"}))

	require.NoError(t, err)
	assert.Empty(t, target.forgotten())
}

func TestHandle_BadPayload(t *testing.T) {
	c := &Consumer{target: &MockForgetter{}, log: logger.Nop()}

	assert.Error(t, c.handle(context.Background(), kafka.Message{Value: []byte("{nope")}))
	assert.Error(t, c.handle(context.Background(), message(t, OrderPlacedEvent{Type: EventOrderPlaced, OrderID: "o1"})))
}

func TestRun_StopsOnCancel(t *testing.T) {
	target := &MockForgetter{users: map[string]bool{"u1": true}}
	reader := &MockReader{messages: make(chan kafka.Message, 1)}
	c := &Consumer{target: target, reader: reader, log: logger.Nop()}

	reader.messages <- message(t, OrderPlacedEvent{Type: EventOrderPlaced, OrderID: "o1", UserID: "u1", RestaurantID: "R1"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(target.forgotten()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}

	c.Close()
	assert.True(t, reader.closed)
}

func TestProcessMessage_ReadError(t *testing.T) {
	c := &Consumer{target: &MockForgetter{}, reader: &errReader{}, log: logger.Nop()}
	assert.False(t, c.processMessage(context.Background()))
}

func TestRun_BacksOffOnReadErrors(t *testing.T) {
	reader := &errReader{}
	c := &Consumer{
		target:   &MockForgetter{},
		reader:   reader,
		log:      logger.Nop(),
		retryMin: 40 * time.Millisecond,
		retryMax: 40 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	c.Run(ctx)

	assert.GreaterOrEqual(t, reader.reads.Load(), int32(2))
	assert.LessOrEqual(t, reader.reads.Load(), int32(5))
}

type errReader struct {
	reads atomic.Int32
}

func (r *errReader) ReadMessage(context.Context) (kafka.Message, error) {
	r.reads.Add(1)
	return kafka.Message{}, errors.New("broker down")
}

func (r *errReader) Close() error { return nil }
