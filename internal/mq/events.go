package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/usercore/apiserver/types"
	"go.uber.org/zap"
)

const (
	attrEventType   = "type"
	publishTimeout  = 5 * time.Second
	contentTypeJSON = "application/json"
)

// EventPublisher sends account events to a channel. Publishing is best
// effort: failures are logged and never returned to the caller.
type EventPublisher struct {
	backend Backend
	channel string
	log     *zap.Logger
}

// NewEventPublisher returns a publisher for channel. A nil backend yields a
// publisher that drops every event.
func NewEventPublisher(backend Backend, channel string, log *zap.Logger) *EventPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventPublisher{backend: backend, channel: channel, log: log}
}

// Notify publishes ev. The request context only contributes its values, so
// a client hanging up does not drop the event.
func (p *EventPublisher) Notify(ctx context.Context, ev types.AccountEvent) {
	if p == nil || p.backend == nil {
		return
	}
	if err := p.publish(ctx, ev); err != nil {
		p.log.Warn("account event not published",
			zap.String("type", string(ev.Type)),
			zap.String("user_id", ev.UserID),
			zap.Error(err),
		)
	}
}

func (p *EventPublisher) publish(ctx context.Context, ev types.AccountEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	id, err := p.backend.Publish(ctx, p.channel, data, map[string]string{attrEventType: string(ev.Type)})
	if err != nil {
		return err
	}
	p.log.Debug("account event published", zap.String("type", string(ev.Type)), zap.String("message_id", id))
	return nil
}

// ErrMalformedEvent is returned by DecodeEvent for payloads that are not
// account events.
var ErrMalformedEvent = errors.New("malformed account event")

// DecodeEvent parses an account event from msg.
func DecodeEvent(msg Message) (types.AccountEvent, error) {
	var ev types.AccountEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		return ev, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.Type == "" || ev.UserID == "" {
		return ev, ErrMalformedEvent
	}
	return ev, nil
}

// WatchEvents consumes channel until ctx is done, passing every decoded
// event to fn. Malformed messages are logged and acknowledged so they are
// not redelivered forever.
func WatchEvents(ctx context.Context, backend Backend, channel string, log *zap.Logger, fn func(context.Context, types.AccountEvent) error) error {
	if backend == nil {
		return errors.New("mq backend is disabled")
	}
	return backend.Subscribe(ctx, channel, func(ctx context.Context, msg Message) error {
		ev, err := DecodeEvent(msg)
		if err != nil {
			log.Warn("dropping message", zap.String("message_id", msg.ID), zap.Error(err))
			return nil
		}
		return fn(ctx, ev)
	})
}
