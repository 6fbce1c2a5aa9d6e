// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package sync

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldcheck/internal/config"
	"github.com/tomtom215/fieldcheck/internal/database"
	"github.com/tomtom215/fieldcheck/internal/extract"
	"github.com/tomtom215/fieldcheck/internal/models"
	"github.com/tomtom215/fieldcheck/internal/quality"
	"github.com/tomtom215/fieldcheck/internal/upstream"
)

const (
	inField  = "WM Service - In Field"
	reaperPM = "Reaper PM"
)

// testDBSemaphore serializes DuckDB use across tests.
var testDBSemaphore = make(chan struct{}, 1)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "512MB", Threads: 1})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	db.SetConflictRetry(0, time.Millisecond)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close test database: %v", err)
		}
	})
	return db
}

func testRules() *config.RulesConfig {
	return &config.RulesConfig{
		AllowedCategories:  []string{inField, "WM Repair - In Shop", reaperPM},
		SkipCategories:     []string{"reaper pm"},
		ConsumableTerms:    []string{"consumable", "supplies"},
		JobBillingKeywords: []string{"netsuite", "sales order"},
		OrgBillingKeywords: []string{"netsuite", "customer id"},
		PartDescriptionMax: 200,
	}
}

func newTestEngine(api upstream.API, store JobStore, opts Options) *Engine {
	rules := testRules()
	if opts.AllowedCategories == nil {
		opts.AllowedCategories = rules.AllowedCategories
	}
	return NewEngine(api, store, quality.New(rules), extract.NewRules(rules), opts)
}

// job describes an upstream job record for the fake API.
type job struct {
	uid       string
	category  string
	updatedAt string
	billing   string
	products  []string
	completed bool
}

func (j job) raw() json.RawMessage {
	doc := map[string]any{
		"job_uid":       j.uid,
		"job_title":     "Repair " + j.uid,
		"job_number":    "WO-" + j.uid,
		"job_category":  map[string]any{"category_name": j.category},
		"customer_name": "Acme Farms",
		"customer": map[string]any{
			"customer_organization": map[string]any{"organization_uid": "org-1", "organization_name": "Acme Farms"},
		},
		"created_at": "2026-02-01T08:00:00Z",
		"updated_at": j.updatedAt,
	}
	if j.completed {
		doc["job_status"] = []any{map[string]any{
			"status_name": "Completed", "status_type": "COMPLETED", "updated_at": "2026-02-03T16:00:00Z",
		}}
	}
	products := make([]any, 0, len(j.products))
	for i, name := range j.products {
		products = append(products, map[string]any{
			"product_name": name, "product_id": fmt.Sprintf("P-%d", i+1), "quantity": 1, "price": "12.50",
		})
	}
	doc["products"] = products
	if j.billing != "" {
		doc["custom_fields"] = []any{map[string]any{"label": "NetSuite Sales Order", "value": j.billing}}
	}
	b, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return b
}

func org(uid, name, updatedAt string) json.RawMessage {
	b, err := json.Marshal(map[string]any{
		"organization_uid":  uid,
		"organization_name": name,
		"is_active":         true,
		"updated_at":        updatedAt,
		"custom_fields":     []any{map[string]any{"label": "NetSuite Customer ID", "value": "C-" + uid}},
	})
	if err != nil {
		panic(err)
	}
	return b
}

// fakeAPI serves pages and details from memory.
type fakeAPI struct {
	mu        sync.Mutex
	pages     map[models.SyncResource][][]json.RawMessage
	details   map[string]json.RawMessage
	pageErr   map[int]error
	detailErr map[string]error
	// beforePage runs before a page is served, outside the lock.
	beforePage func(ctx context.Context, page int)

	detailCalls int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		pages:     make(map[models.SyncResource][][]json.RawMessage),
		details:   make(map[string]json.RawMessage),
		pageErr:   make(map[int]error),
		detailErr: make(map[string]error),
	}
}

// setJobs replaces the job listing, perPage records per page.
func (f *fakeAPI) setJobs(perPage int, jobs ...job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pages [][]json.RawMessage
	for i, j := range jobs {
		if i%perPage == 0 {
			pages = append(pages, nil)
		}
		raw := j.raw()
		pages[len(pages)-1] = append(pages[len(pages)-1], raw)
		f.details[j.uid] = raw
	}
	f.pages[models.ResourceJobs] = pages
}

func (f *fakeAPI) setOrganizations(records ...json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range records {
		stamp, err := upstream.DecodeStamp(r)
		if err != nil {
			panic(err)
		}
		f.details[stamp.UID] = r
	}
	f.pages[models.ResourceOrganizations] = [][]json.RawMessage{records}
}

func (f *fakeAPI) FetchPage(ctx context.Context, resource models.SyncResource, page, _ int) (*upstream.Page, error) {
	if f.beforePage != nil {
		f.beforePage(ctx, page)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.pageErr[page]; err != nil {
		return nil, err
	}
	pages := f.pages[resource]
	p := &upstream.Page{Number: page, TotalPages: len(pages)}
	for _, recs := range pages {
		p.TotalRecords += len(recs)
	}
	if page <= len(pages) {
		p.Records = pages[page-1]
	}
	return p, nil
}

func (f *fakeAPI) FetchDetail(ctx context.Context, _ models.SyncResource, uid string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls++
	if err := f.detailErr[uid]; err != nil {
		return nil, err
	}
	raw, ok := f.details[uid]
	if !ok {
		return nil, &upstream.RequestError{Kind: upstream.ErrUpstream, StatusCode: 404}
	}
	return raw, nil
}

func (f *fakeAPI) Ping(context.Context) error { return nil }

func (f *fakeAPI) detailCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detailCalls
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu        sync.Mutex
	completed []*models.SyncCompletedEvent
	raised    []*models.FlagRaisedEvent
}

func (p *recordingPublisher) PublishSyncCompleted(_ context.Context, e *models.SyncCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = append(p.completed, e)
	return nil
}

func (p *recordingPublisher) PublishFlagRaised(_ context.Context, e *models.FlagRaisedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.raised = append(p.raised, e)
	return nil
}

func mustRun(t *testing.T, e *Engine, mode models.SyncMode) *SyncStats {
	t.Helper()
	stats, err := e.RunSync(context.Background(), mode, nil)
	if err != nil {
		t.Fatalf("RunSync(%s): %v", mode, err)
	}
	return stats
}
