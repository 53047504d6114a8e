package realtime

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"boardsync/domain"
)

// Streamer opens a server-sent event stream for one board. The API client
// satisfies this.
type Streamer interface {
	OpenEventStream(ctx context.Context, boardID string) (io.ReadCloser, error)
}

const (
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 5 * time.Second

	// Single events stay small, but reorder payloads carry a full batch.
	maxEventLine = 1 << 20
)

// Option customizes a Bridge.
type Option func(*Bridge)

// WithLogger replaces the default logger.
func WithLogger(l *log.Logger) Option {
	return func(b *Bridge) { b.log = l }
}

// WithBackoff overrides the reconnect backoff bounds.
func WithBackoff(initial, max time.Duration) Option {
	return func(b *Bridge) {
		if initial > 0 {
			b.initialBackoff = initial
		}
		if max > 0 {
			b.maxBackoff = max
		}
	}
}

// Bridge maintains a subscription to a board's event stream and delivers
// foreign events to the handler. Events produced by the bridge's own viewer
// are dropped: the viewer already applied those changes optimistically, so
// replaying them would cause flicker and duplicate notices.
type Bridge struct {
	streamer Streamer
	viewerID string
	handler  func(context.Context, domain.Event)
	log      *log.Logger

	initialBackoff time.Duration
	maxBackoff     time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewBridge creates a bridge for the given viewer. The handler runs on the
// bridge's goroutine; it must not block indefinitely.
func NewBridge(streamer Streamer, viewerID string, handler func(context.Context, domain.Event), opts ...Option) *Bridge {
	b := &Bridge{
		streamer:       streamer,
		viewerID:       viewerID,
		handler:        handler,
		log:            log.StandardLogger(),
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Join subscribes to the board's stream. A previous subscription, if any, is
// torn down first.
func (b *Bridge) Join(ctx context.Context, boardID string) {
	b.Leave()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	b.mu.Lock()
	b.cancel = cancel
	b.done = done
	b.mu.Unlock()

	go func() {
		defer close(done)
		b.run(runCtx, boardID)
	}()
}

// Leave tears down the current subscription and waits for the reader
// goroutine to stop.
func (b *Bridge) Leave() {
	b.mu.Lock()
	cancel := b.cancel
	done := b.done
	b.cancel = nil
	b.done = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (b *Bridge) run(ctx context.Context, boardID string) {
	backoff := b.initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		stream, err := b.streamer.OpenEventStream(ctx, boardID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.log.WithError(err).WithField("board_id", boardID).Warn("event stream connect failed")
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, b.maxBackoff)
			continue
		}
		backoff = b.initialBackoff

		b.consume(ctx, boardID, stream)
		stream.Close()
		if ctx.Err() != nil {
			return
		}
		b.log.WithField("board_id", boardID).Info("event stream disconnected, reconnecting")
		if !sleep(ctx, backoff) {
			return
		}
		backoff = min(backoff*2, b.maxBackoff)
	}
}

func (b *Bridge) consume(ctx context.Context, boardID string, stream io.Reader) {
	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 64*1024), maxEventLine)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		var ev domain.Event
		if err := sonic.UnmarshalString(payload, &ev); err != nil {
			b.log.WithError(err).Debug("dropping malformed stream event")
			continue
		}
		if !domain.KnownEventType(ev.Type) {
			b.log.WithField("type", ev.Type).Debug("dropping unknown stream event")
			continue
		}
		if ev.BoardID == "" {
			ev.BoardID = boardID
		}
		if ev.ActorID == b.viewerID {
			// Echo of our own mutation coming back through the fan-out.
			continue
		}
		b.handler(ctx, ev)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		b.log.WithError(err).Warn("event stream read failed")
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
