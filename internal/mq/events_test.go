package mq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/usercore/apiserver/config"
	"github.com/usercore/apiserver/types"
	"go.uber.org/zap"
)

type memoryBackend struct {
	mu        sync.Mutex
	published []Message
	channel   string
	err       error
}

func (m *memoryBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channel = channel
	m.published = append(m.published, Message{ID: "m1", Data: data, Attributes: attrs})
	return "m1", nil
}

func (m *memoryBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	m.mu.Lock()
	msgs := append([]Message(nil), m.published...)
	m.mu.Unlock()
	for _, msg := range msgs {
		if err := handler(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (m *memoryBackend) Close() error { return nil }

func sampleEvent() types.AccountEvent {
	return types.AccountEvent{
		Type:   types.EventRegistered,
		UserID: "64b7f0c2a1b2c3d4e5f60718",
		Email:  "ann@example.com",
		Role:   types.RoleUser,
		At:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestNotifyPublishesJSON(t *testing.T) {
	backend := &memoryBackend{}
	p := NewEventPublisher(backend, "account-events", zap.NewNop())

	p.Notify(context.Background(), sampleEvent())

	require.Len(t, backend.published, 1)
	assert.Equal(t, "account-events", backend.channel)
	assert.Equal(t, "user.registered", backend.published[0].Attributes["type"])

	var got types.AccountEvent
	require.NoError(t, json.Unmarshal(backend.published[0].Data, &got))
	assert.Equal(t, sampleEvent(), got)
}

func TestNotifySwallowsBackendErrors(t *testing.T) {
	backend := &memoryBackend{err: errors.New("broker down")}
	p := NewEventPublisher(backend, "account-events", zap.NewNop())

	assert.NotPanics(t, func() { p.Notify(context.Background(), sampleEvent()) })
}

func TestNotifyWithoutBackendIsNoop(t *testing.T) {
	var p *EventPublisher
	assert.NotPanics(t, func() { p.Notify(context.Background(), sampleEvent()) })

	p = NewEventPublisher(nil, "account-events", nil)
	assert.NotPanics(t, func() { p.Notify(context.Background(), sampleEvent()) })
}

func TestNotifyOutlivesCanceledRequest(t *testing.T) {
	backend := &memoryBackend{}
	p := NewEventPublisher(backend, "account-events", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Notify(ctx, sampleEvent())

	assert.Len(t, backend.published, 1)
}

func TestWatchEventsSkipsMalformed(t *testing.T) {
	backend := &memoryBackend{}
	p := NewEventPublisher(backend, "account-events", zap.NewNop())
	backend.published = append(backend.published, Message{ID: "bad", Data: []byte("{")})
	p.Notify(context.Background(), sampleEvent())

	var seen []types.AccountEvent
	err := WatchEvents(context.Background(), backend, "account-events", zap.NewNop(), func(ctx context.Context, ev types.AccountEvent) error {
		seen = append(seen, ev)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, types.EventRegistered, seen[0].Type)
}

func TestDecodeEventRequiresTypeAndUser(t *testing.T) {
	_, err := DecodeEvent(Message{Data: []byte(`{"email":"x@y.z"}`)})
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestOpenDisabledBackend(t *testing.T) {
	backend, err := Open(context.Background(), config.Config{MQ: config.MQConfig{Backend: config.MQBackendNone}})
	require.NoError(t, err)
	assert.Nil(t, backend)

	_, err = Open(context.Background(), config.Config{MQ: config.MQConfig{Backend: "kafka"}})
	assert.Error(t, err)
}
