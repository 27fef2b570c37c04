package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/movieon/internal/platform/logging"
	"github.com/example/movieon/services/watch/internal/progress"
)

var errInvalidEvent = errors.New("invalid progress event")

// StoreFunc returns the progress store of a profile.
type StoreFunc func(profileID string) *progress.Store

type ConsumerConfig struct {
	BatchSize     int
	BatchInterval time.Duration
}

// ProgressConsumer pulls progress events and saves them.
type ProgressConsumer struct {
	stores StoreFunc
	cfg    ConsumerConfig
	log    *zap.Logger
}

func NewProgressConsumer(stores StoreFunc, cfg ConsumerConfig, log *zap.Logger) *ProgressConsumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchInterval <= 0 {
		cfg.BatchInterval = 2 * time.Second
	}
	return &ProgressConsumer{stores: stores, cfg: cfg, log: logging.OrNop(log)}
}

// Start subscribes to SubjectProgress and processes batches until ctx ends.
func (c *ProgressConsumer) Start(ctx context.Context, js nats.JetStreamContext) error {
	sub, err := js.PullSubscribe(SubjectProgress, ConsumerName)
	if err != nil {
		return fmt.Errorf("progress_consumer: subscribe: %w", err)
	}
	go c.loop(ctx, sub)
	return nil
}

func (c *ProgressConsumer) loop(ctx context.Context, sub *nats.Subscription) {
	for {
		if ctx.Err() != nil {
			return
		}

		fctx, cancel := context.WithTimeout(ctx, c.cfg.BatchInterval)
		msgs, err := sub.Fetch(c.cfg.BatchSize, nats.Context(fctx))
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) || ctx.Err() != nil {
				continue
			}
			c.log.Warn("progress_consumer: fetch error", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, m := range msgs {
			c.settle(m, c.Handle(ctx, m.Data))
		}
	}
}

func (c *ProgressConsumer) settle(m *nats.Msg, err error) {
	var ackErr error
	switch {
	case err == nil:
		ackErr = m.Ack()
	case errors.Is(err, errInvalidEvent):
		c.log.Warn("progress_consumer: dropping event", zap.Error(err))
		ackErr = m.Term()
	default:
		c.log.Warn("progress_consumer: apply failed", zap.Error(err))
		ackErr = m.Nak()
	}
	if ackErr != nil {
		c.log.Warn("progress_consumer: ack error", zap.Error(ackErr))
	}
}

// Handle decodes one event and applies it to the profile's store.
func (c *ProgressConsumer) Handle(ctx context.Context, data []byte) error {
	var ev ProgressEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("%w: %v", errInvalidEvent, err)
	}
	if strings.TrimSpace(ev.ProfileID) == "" || strings.TrimSpace(ev.MovieID) == "" {
		return fmt.Errorf("%w: profile_id and movie_id are required", errInvalidEvent)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	wrote := c.stores(ev.ProfileID).Save(ctx, ev.MovieID, ev.CurrentTime, ev.Duration)
	c.log.Debug("progress_consumer: applied",
		zap.String("event_id", ev.EventID),
		zap.String("movie_id", ev.MovieID),
		zap.Bool("written", wrote),
	)
	return nil
}
