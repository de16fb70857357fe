package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ariefcatur/go-fresh-orders/internal/logger"
	"github.com/segmentio/kafka-go"
)

var (
	// ErrBufferFull is returned by Publish instead of blocking the caller.
	ErrBufferFull = errors.New("kafka: producer buffer full")
	ErrClosed     = errors.New("kafka: producer closed")
)

const flushTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer buffers messages in memory and writes them from a single goroutine,
// so Publish never waits on the broker.
type Producer struct {
	w     messageWriter
	inbox chan kafka.Message
	done  chan struct{}
	log   *logger.Logger

	mu     sync.RWMutex
	closed bool
}

func NewProducer(brokers []string, topic string, buf int, log *logger.Logger) *Producer {
	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}, buf, log)
}

func newProducer(w messageWriter, buf int, log *logger.Logger) *Producer {
	if buf <= 0 {
		buf = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Producer{
		w:     w,
		inbox: make(chan kafka.Message, buf),
		done:  make(chan struct{}),
		log:   log,
	}
}

// Start runs the write loop until ctx is done or Close is called, then flushes what is buffered.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.done)
		for {
			select {
			case <-ctx.Done():
				p.Close()
				p.flush()
				return
			case m, ok := <-p.inbox:
				if !ok {
					p.closeWriter()
					return
				}
				p.write(ctx, m)
			}
		}
	}()
}

func (p *Producer) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	for m := range p.inbox {
		p.write(ctx, m)
	}
	p.closeWriter()
}

func (p *Producer) write(ctx context.Context, m kafka.Message) {
	if err := p.w.WriteMessages(ctx, m); err != nil {
		p.log.Error(p.log.WithField(ctx, "key", string(m.Key)), "kafka.write.failed", err)
	}
}

func (p *Producer) closeWriter() {
	if err := p.w.Close(); err != nil {
		p.log.Warn(context.Background(), "kafka.writer.close_failed", err)
	}
}

// Publish enqueues without blocking.
func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.inbox <- kafka.Message{Key: key, Value: value, Time: time.Now(), Headers: headers}:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops accepting messages. The write loop flushes the rest and exits.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.inbox)
}

// WaitClosed blocks until the write loop has exited.
func (p *Producer) WaitClosed() { <-p.done }
