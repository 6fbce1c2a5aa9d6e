// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldcheck/internal/config"
	"github.com/tomtom215/fieldcheck/internal/models"
)

type memStore struct {
	mu   sync.Mutex
	sent map[string]bool
	log  []error
}

func newMemStore() *memStore { return &memStore{sent: map[string]bool{}} }

func (s *memStore) NotificationSent(_ context.Context, uid, typ, ch string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[uid+"/"+typ+"/"+ch], nil
}

func (s *memStore) RecordNotification(_ context.Context, uid, typ, ch string, sendErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, sendErr)
	if sendErr == nil {
		s.sent[uid+"/"+typ+"/"+ch] = true
	}
	return nil
}

type receiver struct {
	*httptest.Server
	mu     sync.Mutex
	bodies [][]byte
	status int
}

func newReceiver(t *testing.T) *receiver {
	t.Helper()
	r := &receiver{status: http.StatusOK}
	r.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		b, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		r.bodies = append(r.bodies, b)
		status := r.status
		r.mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(r.Close)
	return r
}

func (r *receiver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bodies)
}

func (r *receiver) last() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bodies[len(r.bodies)-1]
}

func testEvent() *models.FlagRaisedEvent {
	done := time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)
	items := make([]models.LineItemSummary, 7)
	for i := range items {
		items[i] = models.LineItemSummary{Name: "Part " + string(rune('A'+i)), Quantity: 1}
	}
	items[0].Serial = "C-1000"
	return &models.FlagRaisedEvent{
		EventID:       "ev-1",
		FlagType:      models.FlagMissingBillingReference,
		JobUID:        "uid-1",
		JobNumber:     "WO-7",
		JobTitle:      "Laser weeder repair",
		Organization:  "Acme Farms",
		ServiceTeam:   "West",
		CompletedAt:   &done,
		LineItems:     items,
		LineItemCount: 7,
	}
}

func newNotifier(url string, store Store) *Notifier {
	n := New(&config.NotifyConfig{WebhookURL: url, Timeout: time.Second, MaxLineItems: 5},
		"https://web.zuperpro.com", store)
	n.now = func() time.Time { return time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC) }
	return n
}

func TestSlackPayload(t *testing.T) {
	recv := newReceiver(t)
	n := newNotifier(recv.URL+"/hooks.slack.com/services/T/B/X", newMemStore())
	if n.Channel() != ChannelSlack {
		t.Fatalf("channel = %s", n.Channel())
	}

	if err := n.HandleFlagRaised(context.Background(), testEvent()); err != nil {
		t.Fatalf("HandleFlagRaised: %v", err)
	}
	var p SlackPayload
	if err := json.Unmarshal(recv.last(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(p.Blocks) != 7 || p.Blocks[0].Type != "header" || p.Blocks[6].Type != "actions" {
		t.Fatalf("blocks = %+v", p.Blocks)
	}
	if got := p.Blocks[1].Fields[0].Text; !strings.Contains(got, "<https://web.zuperpro.com/jobs/uid-1/details|WO-7>") {
		t.Errorf("job number field = %q", got)
	}
	if got := p.Blocks[1].Fields[2].Text; got != "*Asset:*\nN/A" {
		t.Errorf("asset field = %q", got)
	}
	if got := p.Blocks[3].Text.Text; got != "*Completed:* Mar 04, 2026 at 03:30 PM" {
		t.Errorf("completed = %q", got)
	}
	items := p.Blocks[5].Text.Text
	if strings.Count(items, "• Part") != 5 || !strings.Contains(items, "... and 2 more") || !strings.Contains(items, "SN C-1000") {
		t.Errorf("items = %q", items)
	}
	if btn := p.Blocks[6].Elements[0]; btn.URL != "https://web.zuperpro.com/jobs/uid-1/details" || btn.Text.Text != "Open in Zuper" {
		t.Errorf("button = %+v", btn)
	}
}

func TestFlatPayload(t *testing.T) {
	recv := newReceiver(t)
	n := newNotifier(recv.URL+"/hooks/catch/1", newMemStore())
	if n.Channel() != ChannelWebhook {
		t.Fatalf("channel = %s", n.Channel())
	}
	if err := n.HandleFlagRaised(context.Background(), testEvent()); err != nil {
		t.Fatal(err)
	}
	var p FlatPayload
	if err := json.Unmarshal(recv.last(), &p); err != nil {
		t.Fatal(err)
	}
	if p.EventType != flatEventType || p.JobNumber != "WO-7" || p.Asset != "N/A" || p.LineItemsCount != 7 {
		t.Errorf("payload = %+v", p)
	}
	if !strings.HasPrefix(p.LineItems, "Part A SN C-1000, Part B") {
		t.Errorf("line_items = %q", p.LineItems)
	}
	if p.ZuperURL != "https://web.zuperpro.com/jobs/uid-1/details" || p.Timestamp != "2026-03-05T00:00:00Z" {
		t.Errorf("url/timestamp = %s %s", p.ZuperURL, p.Timestamp)
	}
}

func TestHandleFlagRaised_Dedup(t *testing.T) {
	recv := newReceiver(t)
	store := newMemStore()
	n := newNotifier(recv.URL, store)

	for i := 0; i < 3; i++ {
		if err := n.HandleFlagRaised(context.Background(), testEvent()); err != nil {
			t.Fatal(err)
		}
	}
	if recv.count() != 1 {
		t.Errorf("posts = %d, want 1", recv.count())
	}
}

func TestHandleFlagRaised_Skips(t *testing.T) {
	recv := newReceiver(t)
	n := newNotifier(recv.URL, newMemStore())

	open := testEvent()
	open.CompletedAt = nil
	parts := testEvent()
	parts.FlagType = models.FlagPartsReplacedNoLineItems

	for _, ev := range []*models.FlagRaisedEvent{open, parts} {
		if err := n.HandleFlagRaised(context.Background(), ev); err != nil {
			t.Fatal(err)
		}
	}
	if recv.count() != 0 {
		t.Errorf("posts = %d, want 0", recv.count())
	}
}

func TestHandleFlagRaised_Failures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantRetry bool
	}{
		{"server error retried", http.StatusBadGateway, true},
		{"rate limited retried", http.StatusTooManyRequests, true},
		{"client error dropped", http.StatusNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recv := newReceiver(t)
			recv.status = tt.status
			store := newMemStore()
			n := newNotifier(recv.URL, store)

			err := n.HandleFlagRaised(context.Background(), testEvent())
			if (err != nil) != tt.wantRetry {
				t.Fatalf("err = %v, wantRetry %v", err, tt.wantRetry)
			}
			if err != nil && !errors.Is(err, ErrDelivery) {
				t.Errorf("err = %v, want ErrDelivery", err)
			}
			if len(store.log) != 1 || store.log[0] == nil {
				t.Errorf("recorded = %v, want one failure", store.log)
			}

			// A failure leaves the job eligible; the next success is sent.
			recv.mu.Lock()
			recv.status = http.StatusOK
			recv.mu.Unlock()
			if err := n.HandleFlagRaised(context.Background(), testEvent()); err != nil {
				t.Fatal(err)
			}
			if recv.count() != 2 {
				t.Errorf("posts = %d, want 2", recv.count())
			}
		})
	}
}

func TestIsSlackURL(t *testing.T) {
	if !IsSlackURL("https://hooks.slack.com/services/T/B/X") {
		t.Error("slack url not detected")
	}
	if IsSlackURL("https://hooks.zapier.com/hooks/catch/1/abc") {
		t.Error("zapier url detected as slack")
	}
}
