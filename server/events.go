package server

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"boardsync/domain"
)

const eventChannelPrefix = "board-events:"

func eventChannel(boardID string) string {
	return eventChannelPrefix + boardID
}

// EventBus fans board events out to SSE subscribers through Redis pub/sub,
// so every server instance sees every mutation.
type EventBus struct {
	client *redis.Client
	log    *log.Logger
}

// NewEventBus creates a bus on the given Redis client.
func NewEventBus(client *redis.Client, logger *log.Logger) *EventBus {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &EventBus{client: client, log: logger}
}

// Publish broadcasts a board event. Failures are logged, not returned: the
// mutation already succeeded and must not be failed retroactively because
// the fan-out hiccuped.
func (b *EventBus) Publish(ctx context.Context, ev domain.Event) {
	if ev.Time == 0 {
		ev.Time = time.Now().UnixMilli()
	}
	payload, err := sonic.Marshal(ev)
	if err != nil {
		b.log.WithError(err).Error("marshal board event")
		return
	}
	if err := b.client.Publish(ctx, eventChannel(ev.BoardID), payload).Err(); err != nil {
		b.log.WithError(err).WithField("board_id", ev.BoardID).Error("publish board event")
	}
}

// Subscribe opens a subscription for one board's events. The returned
// channel delivers raw event payloads; close is the caller's responsibility
// via the returned PubSub.
func (b *EventBus) Subscribe(ctx context.Context, boardID string) (*redis.PubSub, <-chan *redis.Message) {
	sub := b.client.Subscribe(ctx, eventChannel(boardID))
	return sub, sub.Channel()
}
