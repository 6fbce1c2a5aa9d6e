// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

//go:build nats

package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/fieldcheck/internal/config"
	"github.com/tomtom215/fieldcheck/internal/logging"
)

// NATSAvailable reports whether this binary was built with NATS support.
const NATSAvailable = true

// NewNATSForwarder ensures the JetStream stream exists and returns a publisher that
// writes each event to "<prefix>.<topic>".
func NewNATSForwarder(ctx context.Context, cfg *config.NATSConfig) (message.Publisher, error) {
	logger := logging.NewWatermillLogger()

	if err := ensureStream(ctx, cfg); err != nil {
		return nil, err
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL: cfg.URL,
		NatsOptions: []natsgo.Option{
			natsgo.Name("fieldcheck"),
			natsgo.RetryOnFailedConnect(true),
			natsgo.MaxReconnects(-1),
			natsgo.ReconnectWait(2 * time.Second),
			natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
				if err != nil {
					logger.Error("NATS disconnected", err, nil)
				}
			}),
			natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
				logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
			}),
		},
		Marshaler: &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			TrackMsgId:    true,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create NATS publisher: %w", err)
	}
	return &prefixedPublisher{pub: pub, prefix: cfg.SubjectPrefix}, nil
}

func ensureStream(ctx context.Context, cfg *config.NATSConfig) error {
	nc, err := natsgo.Connect(cfg.URL, natsgo.Name("fieldcheck-stream-init"))
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}

	streamCfg := jetstream.StreamConfig{
		Name:       cfg.Stream,
		Subjects:   []string{cfg.SubjectPrefix + ".>"},
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     7 * 24 * time.Hour,
		Duplicates: 2 * time.Minute,
		Storage:    jetstream.FileStorage,
		Discard:    jetstream.DiscardOld,
	}

	_, err = js.Stream(ctx, cfg.Stream)
	switch {
	case errors.Is(err, jetstream.ErrStreamNotFound):
		_, err = js.CreateStream(ctx, streamCfg)
	case err == nil:
		_, err = js.UpdateStream(ctx, streamCfg)
	}
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", cfg.Stream, err)
	}
	logging.Info().Str("stream", cfg.Stream).Str("subjects", cfg.SubjectPrefix+".>").Msg("JetStream stream ready")
	return nil
}

type prefixedPublisher struct {
	pub    message.Publisher
	prefix string
}

func (p *prefixedPublisher) Publish(topic string, msgs ...*message.Message) error {
	for _, m := range msgs {
		m.Metadata.Set(natsgo.MsgIdHdr, m.UUID)
	}
	return p.pub.Publish(p.prefix+"."+topic, msgs...)
}

func (p *prefixedPublisher) Close() error { return p.pub.Close() }
