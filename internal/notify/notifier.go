// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

// Package notify posts a webhook message when a completed job is flagged for a
// missing billing reference.
//
// Slack incoming-webhook URLs (hooks.slack.com) get a Block Kit message; any other URL
// (Zapier, a custom receiver) gets a flat JSON object that is easy to map field by
// field. Each job is notified at most once per channel: delivery outcomes are kept in
// the notification_log table and a recorded success suppresses later sends.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldcheck/internal/config"
	"github.com/tomtom215/fieldcheck/internal/extract"
	"github.com/tomtom215/fieldcheck/internal/logging"
	"github.com/tomtom215/fieldcheck/internal/metrics"
	"github.com/tomtom215/fieldcheck/internal/models"
)

// Delivery channels recorded in notification_log.
const (
	ChannelSlack   = "slack"
	ChannelWebhook = "webhook"
)

// NotificationType is the notification_log type for missing billing references.
const NotificationType = "missing_billing_reference"

const completedLayout = "Jan 02, 2006 at 03:04 PM"

// ErrDelivery is wrapped by every failed send.
var ErrDelivery = errors.New("notification delivery failed")

// DeliveryError carries the receiver's response for a rejected send.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("webhook returned %d: %s", e.StatusCode, e.Body)
}

func (e *DeliveryError) Unwrap() error { return ErrDelivery }

// Transient reports whether a retry might succeed.
func (e *DeliveryError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Store records delivery outcomes. Implemented by *database.DB.
type Store interface {
	NotificationSent(ctx context.Context, jobUID, notificationType, channel string) (bool, error)
	RecordNotification(ctx context.Context, jobUID, notificationType, channel string, sendErr error) error
}

// Notifier delivers flag notifications to one webhook.
type Notifier struct {
	url      string
	webURL   string
	channel  string
	maxItems int
	client   *http.Client
	store    Store
	now      func() time.Time
}

// New returns a notifier for cfg.WebhookURL. webURL is the base for job links.
func New(cfg *config.NotifyConfig, webURL string, store Store) *Notifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxItems := cfg.MaxLineItems
	if maxItems <= 0 {
		maxItems = 5
	}
	channel := ChannelWebhook
	if IsSlackURL(cfg.WebhookURL) {
		channel = ChannelSlack
	}
	return &Notifier{
		url:      cfg.WebhookURL,
		webURL:   webURL,
		channel:  channel,
		maxItems: maxItems,
		client:   &http.Client{Timeout: timeout},
		store:    store,
		now:      time.Now,
	}
}

// IsSlackURL reports whether url is a Slack incoming webhook.
func IsSlackURL(url string) bool {
	return strings.Contains(url, "hooks.slack.com/")
}

// Channel is "slack" or "webhook".
func (n *Notifier) Channel() string { return n.channel }

// HandleFlagRaised sends the notification for ev unless one already went out. Only
// transient failures are returned, so the event router retries those and drops the
// rest after recording them.
func (n *Notifier) HandleFlagRaised(ctx context.Context, ev *models.FlagRaisedEvent) error {
	if ev.FlagType != models.FlagMissingBillingReference || ev.CompletedAt == nil {
		return nil
	}
	log := logging.Ctx(ctx).With().Str("job_uid", ev.JobUID).Str("job_number", ev.JobNumber).
		Str("channel", n.channel).Logger()

	sent, err := n.store.NotificationSent(ctx, ev.JobUID, NotificationType, n.channel)
	if err != nil {
		return fmt.Errorf("check notification log: %w", err)
	}
	if sent {
		metrics.NotificationsSent.WithLabelValues(n.channel, "duplicate").Inc()
		log.Debug().Msg("notification already sent")
		return nil
	}

	sendErr := n.Send(ctx, ev)
	if err := n.store.RecordNotification(ctx, ev.JobUID, NotificationType, n.channel, sendErr); err != nil {
		log.Warn().Err(err).Msg("record notification failed")
	}
	if sendErr != nil {
		metrics.NotificationsSent.WithLabelValues(n.channel, "failed").Inc()
		log.Warn().Err(sendErr).Msg("notification failed")
		var de *DeliveryError
		if errors.As(sendErr, &de) && !de.Transient() {
			return nil
		}
		return sendErr
	}
	metrics.NotificationsSent.WithLabelValues(n.channel, "sent").Inc()
	log.Info().Msg("notification sent")
	return nil
}

// Send posts ev without consulting the notification log.
func (n *Notifier) Send(ctx context.Context, ev *models.FlagRaisedEvent) error {
	var payload any
	if n.channel == ChannelSlack {
		payload = n.slackPayload(ev)
	} else {
		payload = n.flatPayload(ev)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal payload: %w", ErrDelivery, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %w", ErrDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DeliveryError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return nil
}

func (n *Notifier) jobURL(uid string) string {
	return extract.JobURL(n.webURL, uid)
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func formatCompleted(t *time.Time) string {
	if t == nil {
		return "Unknown"
	}
	return t.UTC().Format(completedLayout)
}

// lineItemLabel renders one line item as "Name (code) SN serial".
func lineItemLabel(li *models.LineItemSummary) string {
	var b strings.Builder
	b.WriteString(orNA(li.Name))
	if li.Code != "" && li.Code != li.Name {
		b.WriteString(" (" + li.Code + ")")
	}
	if li.Serial != "" {
		b.WriteString(" SN " + li.Serial)
	}
	return b.String()
}

func lineItemCount(ev *models.FlagRaisedEvent) int {
	return max(ev.LineItemCount, len(ev.LineItems))
}
