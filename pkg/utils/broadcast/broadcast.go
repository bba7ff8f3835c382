// Package broadcast fans out the messages of one channel to many subscribers.
package broadcast

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/trackside/log"
)

const DefaultSendTimeout = 50 * time.Millisecond

type BroadcastServer[T any] interface {
	Subscribe() <-chan T
	CancelSubscription(<-chan T)
	Close()
}

type broadcastServer[T any] struct {
	name           string
	eventKey       string
	source         <-chan T
	listeners      []chan T
	addListener    chan chan T
	removeListener chan (<-chan T)
	ctx            context.Context
	cancel         context.CancelFunc
	sendTimeout    time.Duration
	log            *log.Logger
	numRcv         int
	numSnd         int
	numSkip        int
}

type Option[T any] func(*broadcastServer[T])

// WithSendTimeout sets how long a slow listener may block a message before
// the message is skipped for that listener.
func WithSendTimeout[T any](d time.Duration) Option[T] {
	return func(b *broadcastServer[T]) {
		b.sendTimeout = d
	}
}

func WithLogger[T any](l *log.Logger) Option[T] {
	return func(b *broadcastServer[T]) {
		b.log = l
	}
}

// Subscribe returns a new listener channel. It is closed on Close or
// CancelSubscription.
func (b *broadcastServer[T]) Subscribe() <-chan T {
	ch := make(chan T)
	select {
	case b.addListener <- ch:
	case <-b.ctx.Done():
		close(ch)
	}
	return ch
}

func (b *broadcastServer[T]) CancelSubscription(ch <-chan T) {
	select {
	case b.removeListener <- ch:
	case <-b.ctx.Done():
	}
}

func (b *broadcastServer[T]) Close() {
	b.log.Info("closing broadcast server",
		log.Int("rcv", b.numRcv), log.Int("snd", b.numSnd), log.Int("skip", b.numSkip))
	b.cancel()
}

// NewBroadcastServer distributes every message of source to all listeners.
// The server stops when source is closed or Close is called.
//
//nolint:whitespace // can't make the linters happy
func NewBroadcastServer[T any](
	eventKey, name string,
	source <-chan T,
	opts ...Option[T],
) BroadcastServer[T] {
	ctx, cancel := context.WithCancel(context.Background())
	b := &broadcastServer[T]{
		eventKey:       eventKey,
		name:           name,
		source:         source,
		addListener:    make(chan chan T),
		removeListener: make(chan (<-chan T)),
		ctx:            ctx,
		cancel:         cancel,
		sendTimeout:    DefaultSendTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = log.Default().Named("broadcast")
	}
	b.log = b.log.With(log.String("name", name))
	b.setupMetrics()
	go b.serve()
	return b
}

func (b *broadcastServer[T]) setupMetrics() {
	meter := otel.GetMeterProvider().Meter(fmt.Sprintf("trackside.broadcast.%s", b.name))
	register := func(metricName, desc string, valueProvider func() int64) {
		if _, err := meter.Int64ObservableGauge(
			metricName,
			metric.WithDescription(desc),
			metric.WithUnit("{count}"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(valueProvider(),
					metric.WithAttributes(
						attribute.String("name", b.name),
						attribute.String("event", b.eventKey),
					),
				)
				return nil
			})); err != nil {
			b.log.Error("failed to register metric",
				log.String("metric", metricName),
				log.ErrorField(err))
		}
	}
	register("trackside.broadcast.rcv", "Number of received messages",
		func() int64 { return int64(b.numRcv) })
	register("trackside.broadcast.snd", "Number of sent messages",
		func() int64 { return int64(b.numSnd) })
	register("trackside.broadcast.skip", "Number of skipped messages",
		func() int64 { return int64(b.numSkip) })
	register("trackside.broadcast.listener", "Number of listeners",
		func() int64 { return int64(len(b.listeners)) })
}

//nolint:gocognit // by design
func (b *broadcastServer[T]) serve() {
	defer func() {
		b.log.Debug("closing listeners", log.Int("len", len(b.listeners)))
		for _, listener := range b.listeners {
			close(listener)
		}
		b.listeners = nil
	}()
	for {
		select {
		case <-b.ctx.Done():
			return
		case ch := <-b.addListener:
			b.listeners = append(b.listeners, ch)
		case ch := <-b.removeListener:
			idx := slices.IndexFunc(b.listeners, func(l chan T) bool { return l == ch })
			if idx >= 0 {
				close(b.listeners[idx])
				b.listeners = slices.Delete(b.listeners, idx, idx+1)
				b.log.Debug("removed listener", log.Int("len", len(b.listeners)))
			}
		case msg, ok := <-b.source:
			if !ok {
				b.log.Debug("source closed")
				b.cancel()
				return
			}
			b.numRcv++
			for _, listener := range b.listeners {
				select {
				case listener <- msg:
					b.numSnd++
				case <-time.After(b.sendTimeout):
					b.numSkip++
				}
			}
		}
	}
}
