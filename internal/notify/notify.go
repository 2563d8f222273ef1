// Package notify turns characteristic value-changed events into typed callbacks.
//
// Subscribe registers a listener, enables notifications and returns a Stopper.
// Values are queued and handed to the parser and callback by one goroutine per
// subscription, so callbacks for a characteristic never overlap and keep arrival
// order. A value whose parser fails or panics is dropped and logged; the
// subscription continues.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/healthlink/internal/codec"
	"github.com/srg/healthlink/internal/device"
	"github.com/srg/healthlink/internal/groutine"
)

// Parser decodes one raw characteristic value.
type Parser[T any] func(raw []byte) (T, error)

// Stopper ends a subscription: it removes the listener and disables notifications.
// Only the first call has an effect. Errors from the peripheral are logged, not
// returned, so a Stopper is safe to call after the link is gone.
type Stopper func(ctx context.Context) error

// Options configures a subscription.
type Options struct {
	Logger *logrus.Logger
	// QueueSize bounds values waiting for dispatch; the oldest is dropped on overflow.
	QueueSize int `default:"256"`
	// Name labels the dispatch goroutine and log entries. Defaults to notify-<uuid>.
	Name string
}

type Option func(*Options)

func WithLogger(logger *logrus.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

func WithQueueSize(n int) Option {
	return func(o *Options) { o.QueueSize = n }
}

func WithName(name string) Option {
	return func(o *Options) { o.Name = name }
}

// Infallible adapts a parser that cannot fail.
func Infallible[T any](fn func(raw []byte) T) Parser[T] {
	return func(raw []byte) (T, error) { return fn(raw), nil }
}

var (
	ErrNilCharacteristic = errors.New("characteristic is nil")
	ErrNilHandler        = errors.New("parser and callback are required")
)

type subscription[T any] struct {
	char     device.Characteristic
	parse    Parser[T]
	callback func(T)
	name     string
	logger   *logrus.Logger

	id      device.ListenerID
	queue   *RingChannel[[]byte]
	stopped atomic.Bool
	once    sync.Once
	cancel  context.CancelFunc
}

// Subscribe registers a listener on char, then enables notifications. When enabling
// fails the listener is removed and the error returned.
func Subscribe[T any](ctx context.Context, char device.Characteristic, parse Parser[T], callback func(T), opts ...Option) (Stopper, error) {
	if char == nil {
		return nil, ErrNilCharacteristic
	}
	if parse == nil || callback == nil {
		return nil, ErrNilHandler
	}

	o := Options{}
	defaults.SetDefaults(&o)
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = logrus.New()
		o.Logger.SetOutput(io.Discard)
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 1
	}
	if o.Name == "" {
		o.Name = "notify-" + char.UUID()
	}

	s := &subscription[T]{
		char:     char,
		parse:    parse,
		callback: callback,
		name:     o.Name,
		logger:   o.Logger,
		queue:    NewRingChannel[[]byte](o.QueueSize),
	}

	s.id = char.AddListener(s.enqueue)
	if err := char.StartNotifications(ctx); err != nil {
		char.RemoveListener(s.id)
		s.logger.WithFields(logrus.Fields{
			"char_uuid": char.UUID(),
			"error":     err,
		}).Warn("Failed to start notifications")
		return nil, fmt.Errorf("failed to start notifications on %s: %w", char.UUID(), err)
	}

	dispatchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	groutine.Go(dispatchCtx, s.name, s.dispatch)

	s.logger.WithFields(logrus.Fields{
		"char_uuid": char.UUID(),
		"name":      s.name,
	}).Debug("Subscribed to notifications")

	return s.stop, nil
}

func (s *subscription[T]) enqueue(value []byte) {
	if s.stopped.Load() {
		return
	}
	if s.queue.Send(append([]byte(nil), value...)) {
		s.logger.WithField("char_uuid", s.char.UUID()).Debug("Notification queue full, dropped oldest value")
	}
}

func (s *subscription[T]) dispatch(ctx context.Context) {
	for {
		raw, err := s.queue.Receive(ctx)
		if err != nil {
			return
		}
		s.handle(raw)
	}
}

func (s *subscription[T]) handle(raw []byte) {
	var parseErr error
	err := groutine.Recover(s.name, func() {
		v, err := s.parse(raw)
		if err != nil {
			parseErr = err
			return
		}
		s.callback(v)
	})

	switch {
	case err != nil:
		s.queue.MarkError()
		s.logger.WithFields(logrus.Fields{
			"char_uuid": s.char.UUID(),
			"raw_hex":   codec.HexString(raw),
			"error":     err,
		}).Warn("Notification handler panicked, value dropped")
	case parseErr != nil:
		s.queue.MarkError()
		s.logger.WithFields(logrus.Fields{
			"char_uuid": s.char.UUID(),
			"raw_hex":   codec.HexString(raw),
			"error":     parseErr,
		}).Debug("Failed to parse notification, value dropped")
	}
}

func (s *subscription[T]) stop(ctx context.Context) error {
	s.once.Do(func() {
		if ctx == nil {
			ctx = context.Background()
		}
		s.stopped.Store(true)
		s.char.RemoveListener(s.id)

		if err := s.char.StopNotifications(ctx); err != nil {
			s.logger.WithFields(logrus.Fields{
				"char_uuid": s.char.UUID(),
				"error":     err,
			}).Warn("Failed to stop notifications")
		}
		s.cancel()

		m := s.queue.GetMetrics()
		s.logger.WithFields(logrus.Fields{
			"char_uuid":   s.char.UUID(),
			"received":    m.Written,
			"processed":   m.Processed,
			"overwritten": m.Overwritten,
			"errors":      m.Errors,
		}).Debug("Unsubscribed from notifications")
	})
	return nil
}
