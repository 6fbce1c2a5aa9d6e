// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldcheck/internal/config"
	"github.com/tomtom215/fieldcheck/internal/logging"
	"github.com/tomtom215/fieldcheck/internal/metrics"
	"github.com/tomtom215/fieldcheck/internal/models"
)

// Message metadata keys.
const (
	MetadataEventType = "event_type"
	MetadataResource  = "resource"
)

// ErrBusClosed is returned by Publish after Close.
var ErrBusClosed = errors.New("event bus closed")

// Config tunes the bus. Zero values fall back to DefaultConfig.
type Config struct {
	BufferSize          int
	RetryCount          int
	RetryInitialBackoff time.Duration
	CloseTimeout        time.Duration
}

// DefaultConfig returns the bus defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:          256,
		RetryCount:          3,
		RetryInitialBackoff: 500 * time.Millisecond,
		CloseTimeout:        10 * time.Second,
	}
}

// ConfigFromEvents maps the loaded configuration onto Config.
func ConfigFromEvents(c *config.EventsConfig) Config {
	return Config{
		BufferSize:          c.BufferSize,
		RetryCount:          c.RouterRetryCount,
		RetryInitialBackoff: c.RouterRetryInitialInterval,
		CloseTimeout:        c.RouterCloseTimeout,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BufferSize <= 0 {
		c.BufferSize = d.BufferSize
	}
	if c.RetryCount < 0 {
		c.RetryCount = 0
	}
	if c.RetryInitialBackoff <= 0 {
		c.RetryInitialBackoff = d.RetryInitialBackoff
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = d.CloseTimeout
	}
	return c
}

// Bus publishes domain events to in-process subscribers and, optionally, to an
// external forwarder.
type Bus struct {
	pubsub  *gochannel.GoChannel
	router  *message.Router
	logger  watermill.LoggerAdapter
	forward message.Publisher

	mu     sync.RWMutex
	closed bool
}

// New builds a bus. Handlers must be registered before Serve is called.
func New(cfg Config) (*Bus, error) {
	cfg = cfg.withDefaults()
	logger := logging.NewWatermillLogger()

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: int64(cfg.BufferSize),
	}, logger)

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("create event router: %w", err)
	}
	router.AddMiddleware(
		dropExhausted(logger),
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      cfg.RetryCount,
			InitialInterval: cfg.RetryInitialBackoff,
			MaxInterval:     cfg.RetryInitialBackoff * 16,
			Multiplier:      2,
			Logger:          logger,
		}.Middleware,
	)

	return &Bus{pubsub: pubsub, router: router, logger: logger}, nil
}

// dropExhausted acks a message whose handler still fails after the retry middleware
// gave up. The GoChannel pub/sub redelivers nacked messages immediately.
func dropExhausted(logger watermill.LoggerAdapter) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			out, err := h(msg)
			if err != nil {
				topic := msg.Metadata.Get(MetadataEventType)
				metrics.EventsPublished.WithLabelValues(topic, "dropped").Inc()
				logger.Error("event handler failed, message dropped", err, watermill.LogFields{
					"message_id": msg.UUID,
					"handler":    message.HandlerNameFromCtx(msg.Context()),
				})
				return nil, nil
			}
			return out, nil
		}
	}
}

// SetForwarder sends a copy of every published event to pub. A forwarder failure is
// logged and counted but never fails the local publish.
func (b *Bus) SetForwarder(pub message.Publisher) {
	b.mu.Lock()
	b.forward = pub
	b.mu.Unlock()
}

// PublishSyncCompleted implements the sync engines' event publisher.
func (b *Bus) PublishSyncCompleted(ctx context.Context, ev *models.SyncCompletedEvent) error {
	return b.publish(ctx, models.TopicSyncCompleted, ev.EventID, string(ev.Resource), ev)
}

// PublishFlagRaised implements the sync engines' event publisher.
func (b *Bus) PublishFlagRaised(ctx context.Context, ev *models.FlagRaisedEvent) error {
	return b.publish(ctx, models.TopicFlagRaised, ev.EventID, string(models.ResourceJobs), ev)
}

func (b *Bus) publish(ctx context.Context, topic, id, resource string, payload any) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		metrics.EventsPublished.WithLabelValues(topic, "closed").Inc()
		return ErrBusClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		metrics.EventsPublished.WithLabelValues(topic, "error").Inc()
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}
	if id == "" {
		id = watermill.NewUUID()
	}
	msg := message.NewMessage(id, data)
	msg.Metadata.Set(MetadataEventType, topic)
	msg.Metadata.Set(MetadataResource, resource)
	if cid := logging.CorrelationIDFromContext(ctx); cid != "" {
		middleware.SetCorrelationID(cid, msg)
	}

	if err := b.pubsub.Publish(topic, msg); err != nil {
		metrics.EventsPublished.WithLabelValues(topic, "error").Inc()
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	metrics.EventsPublished.WithLabelValues(topic, "ok").Inc()

	if b.forward != nil {
		if err := b.forward.Publish(topic, msg.Copy()); err != nil {
			metrics.EventsPublished.WithLabelValues(topic, "forward_error").Inc()
			logging.Ctx(ctx).Warn().Err(err).Str("topic", topic).Msg("event forward failed")
		} else {
			metrics.EventsPublished.WithLabelValues(topic, "forwarded").Inc()
		}
	}
	return nil
}

// OnFlagRaised registers a consumer for flag.raised events. Returning an error makes
// the router retry the delivery.
func (b *Bus) OnFlagRaised(name string, fn func(context.Context, *models.FlagRaisedEvent) error) {
	subscribe(b, name, models.TopicFlagRaised, fn)
}

// OnSyncCompleted registers a consumer for sync.completed events.
func (b *Bus) OnSyncCompleted(name string, fn func(context.Context, *models.SyncCompletedEvent) error) {
	subscribe(b, name, models.TopicSyncCompleted, fn)
}

func subscribe[T any](b *Bus, name, topic string, fn func(context.Context, *T) error) {
	b.router.AddConsumerHandler(name, topic, b.pubsub, func(msg *message.Message) error {
		var ev T
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			// A payload that cannot be decoded will never succeed; ack and drop it.
			logging.Error().Err(err).Str("handler", name).Str("message_id", msg.UUID).
				Msg("undecodable event dropped")
			return nil
		}
		ctx := msg.Context()
		if cid := middleware.MessageCorrelationID(msg); cid != "" {
			ctx = logging.ContextWithCorrelationID(ctx, cid)
		}
		return fn(ctx, &ev)
	})
}

// Running is closed once the router has started its handlers.
func (b *Bus) Running() chan struct{} {
	return b.router.Running()
}

// Serve runs the router until ctx is canceled.
func (b *Bus) Serve(ctx context.Context) error {
	err := b.router.Run(ctx)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("event router: %w", err)
	}
	return ctx.Err()
}

// String names the service for the supervisor.
func (b *Bus) String() string { return "event-bus" }

// Close stops the router and the pub/sub. Further publishes return ErrBusClosed.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	fwd := b.forward
	b.mu.Unlock()

	var errs []error
	if err := b.router.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := b.pubsub.Close(); err != nil {
		errs = append(errs, err)
	}
	if fwd != nil {
		if err := fwd.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
