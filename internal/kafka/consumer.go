package kafka

import (
	"context"
	"time"

	"github.com/ariefcatur/go-fresh-orders/internal/logger"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"
)

// Handler returns nil only when the message is done and its offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r       messageReader
	workers int
	backoff time.Duration
	log     *logger.Logger
}

func NewConsumer(brokers []string, group, topic string, workers int, log *logger.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // commits are explicit
	})
	return newConsumer(r, workers, log)
}

func newConsumer(r messageReader, workers int, log *logger.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Consumer{r: r, workers: workers, backoff: 200 * time.Millisecond, log: log}
}

// Start fetches until ctx is done, fanning messages out to the worker pool.
// It returns nil on shutdown and the fetch error otherwise.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message, c.workers*2)
	var g errgroup.Group
	for i := 0; i < c.workers; i++ {
		g.Go(func() error {
			for m := range jobs {
				c.handle(ctx, h, m)
			}
			return nil
		})
	}

	var fetchErr error
fetch:
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				fetchErr = err
			}
			break
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			break fetch
		}
	}
	close(jobs)
	_ = g.Wait()
	return fetchErr
}

func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) {
	mctx := c.log.WithFields(ctx, map[string]any{
		"topic":     m.Topic,
		"partition": m.Partition,
		"offset":    m.Offset,
	})
	if err := h(mctx, m); err != nil {
		c.log.Warn(mctx, "kafka.handle.failed", err)
		select {
		case <-time.After(c.backoff):
		case <-ctx.Done():
		}
		return
	}
	if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		c.log.Error(mctx, "kafka.commit.failed", err)
	}
}
