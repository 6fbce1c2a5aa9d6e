// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package extract

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldcheck/internal/config"
	"github.com/tomtom215/fieldcheck/internal/models"
	"github.com/tomtom215/fieldcheck/internal/upstream"
)

const fullJob = `{
  "job_uid": "job-1",
  "job_title": " Replace scanner ",
  "job_number": 4411,
  "work_order_number": "WO-889",
  "job_category": {"category_uid": "c1", "category_name": "LaserWeeder Service Call"},
  "customer_name": null,
  "customer": {"customer_uid": "cu1", "customer_organization": {"organization_uid": "org-9", "organization_name": "Acme Farms"}},
  "assets": [{"asset": {"asset_uid": "a1", "asset_code": "", "asset_name": "LW-S38"}}],
  "products": [
    {"product_name": "Scanner Board", "product_id": "P-100", "serial_nos": ["CR-SM-12345", " ", "CR-SM-12346"], "quantity": "2", "price": "149.95", "product_type": "PARTS"},
    {"product_name": "Filter (consumable)", "product_id": 7, "quantity": null, "price": "n/a"}
  ],
  "custom_fields": [
    {"label": "NetSuite Sales Order", "value": "  ", "type": "SINGLE_LINE"},
    {"label": "SO ID", "value": " SO-5521 ", "type": "SINGLE_LINE"},
    {"label": "SO ID", "value": "SO-dup", "type": "SINGLE_LINE"},
    {"label": "Jira Ticket", "value": "https://jira.example.com/browse/FS-1", "type": "URL"},
    {"label": "", "value": "ignored"}
  ],
  "assigned_to": [
    {"user": {"user_uid": "u1", "first_name": "Ana"}, "team": {"team_uid": "t1", "team_name": "West Field"}},
    {"user": {"user_uid": "u2", "first_name": "Bo"}, "team": {"team_uid": "t2", "team_name": "East Field"}}
  ],
  "assigned_to_team": [{"team": {"team_uid": "t9", "team_name": "Fallback Team"}}],
  "job_status": [
    {"status_name": "Completed", "status_type": "COMPLETED", "done_by": {"user_uid": "u2"}, "updated_at": "2026-02-03T16:20:00Z",
     "checklist": [
       {"question": "Parts replaced?", "answer": "Replaced cr-sm-000123 and CR-SM-000123, old unit CR-MPC-12345", "updated_at": "2026-02-03T16:00:00Z"},
       {"question": "Notes", "answer": "none"}
     ]},
    {"status_name": "Started", "status_type": "STARTED", "done_by": {"user_uid": "u1"}, "updated_at": "2026-02-03T09:00:00Z"},
    {"status_name": "New", "status_type": "NEW", "done_by": {"user_uid": "u1"}}
  ],
  "created_at": "2026-02-01T08:00:00.000Z",
  "updated_at": "2026-02-03 16:20:00"
}`

func testRules() *Rules {
	return NewRules(&config.RulesConfig{
		JobBillingKeywords: config.DefaultJobBillingKeywords,
		OrgBillingKeywords: config.DefaultOrgBillingKeywords,
		PartDescriptionMax: 200,
	})
}

func decode(t *testing.T, payload string) *upstream.RawJob {
	t.Helper()
	raw, err := DecodeJob(json.RawMessage(payload))
	if err != nil {
		t.Fatalf("DecodeJob: %v", err)
	}
	return raw
}

func TestJob_Full(t *testing.T) {
	synced := time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC)
	rec, err := Job(decode(t, fullJob), testRules(), synced)
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	j := rec.Job

	checks := []struct {
		name, got, want string
	}{
		{"uid", j.JobUID, "job-1"},
		{"number", j.JobNumber, "WO-889"},
		{"title", j.JobTitle, "Replace scanner"},
		{"status", j.JobStatus, "Completed"},
		{"category", j.JobCategory, "LaserWeeder Service Call"},
		{"customer", j.CustomerName, "Acme Farms"},
		{"team", j.ServiceTeam, "East Field"},
		{"asset", j.AssetName, "LW-S38"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}

	if j.OrganizationUID == nil || *j.OrganizationUID != "org-9" {
		t.Errorf("OrganizationUID = %v", j.OrganizationUID)
	}
	if j.NetsuiteSalesOrderID == nil || *j.NetsuiteSalesOrderID != "SO-5521" {
		t.Errorf("billing reference = %v, want SO-5521", j.NetsuiteSalesOrderID)
	}
	if j.JiraLink == nil || !strings.HasSuffix(*j.JiraLink, "FS-1") {
		t.Errorf("JiraLink = %v", j.JiraLink)
	}
	if j.SlackLink != nil {
		t.Errorf("SlackLink = %v, want nil", *j.SlackLink)
	}
	wantCompleted := time.Date(2026, 2, 3, 16, 20, 0, 0, time.UTC)
	if j.CompletedAt == nil || !j.CompletedAt.Equal(wantCompleted) {
		t.Errorf("CompletedAt = %v", j.CompletedAt)
	}
	if j.UpdatedAt == nil || !j.UpdatedAt.Equal(wantCompleted) {
		t.Errorf("UpdatedAt = %v", j.UpdatedAt)
	}
	if !j.SyncedAt.Equal(synced) {
		t.Errorf("SyncedAt = %v", j.SyncedAt)
	}
	if !j.HasLineItems || !j.HasChecklistParts || !j.HasNetsuiteID {
		t.Errorf("derived flags = %v %v %v", j.HasLineItems, j.HasChecklistParts, j.HasNetsuiteID)
	}

	if len(rec.LineItems) != 2 {
		t.Fatalf("line items = %d, want 2", len(rec.LineItems))
	}
	board, filter := rec.LineItems[0], rec.LineItems[1]
	if board.ItemSerial != "CR-SM-12345, CR-SM-12346" || board.Quantity != 2 || board.Price.Decimal.String() != "149.95" {
		t.Errorf("board = %+v", board)
	}
	if filter.ItemCode != "7" || filter.Quantity != 1 || filter.Price.Valid || filter.Position != 2 {
		t.Errorf("filter = %+v", filter)
	}

	if len(rec.CustomFields) != 3 {
		t.Errorf("custom fields = %d, want 3 (dup and blank label dropped)", len(rec.CustomFields))
	}
	for _, f := range rec.CustomFields {
		if f.ParentKind != models.ParentJob || f.ParentUID != "job-1" {
			t.Errorf("custom field parent = %s/%s", f.ParentKind, f.ParentUID)
		}
	}

	if len(rec.ChecklistParts) != 2 {
		t.Fatalf("checklist parts = %+v, want 2", rec.ChecklistParts)
	}
	p := rec.ChecklistParts[0]
	if p.PartSerial != "CR-SM-000123" || p.StatusName != "Completed" || p.Position != 1 || p.ChecklistQuestion != "Parts replaced?" {
		t.Errorf("part = %+v", p)
	}
	if rec.ChecklistParts[1].PartSerial != "CR-MPC-12345" {
		t.Errorf("second part = %+v", rec.ChecklistParts[1])
	}
}

func TestJob_MissingUID(t *testing.T) {
	_, err := Job(decode(t, `{"job_title": "x"}`), testRules(), time.Now())
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("err = %v, want ErrExtraction", err)
	}
}

func TestDecodeJob_BadShape(t *testing.T) {
	_, err := DecodeJob(json.RawMessage(`{"job_uid": "j-7", "job_status": "oops"}`))
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("err = %v, want ErrExtraction", err)
	}
	var xe *Error
	if !errors.As(err, &xe) || xe.UID != "j-7" {
		t.Errorf("Error = %+v, want uid j-7", xe)
	}
}

func TestAsset(t *testing.T) {
	tests := []struct {
		name, payload, want string
	}{
		{"code preferred", `{"assets":[{"asset":{"asset_code":"S38","asset_name":"Scanner 38"}}]}`, "S38"},
		{"name fallback", `{"assets":[{"asset":{"asset_name":"Scanner 38"}}]}`, "Scanner 38"},
		{"single object", `{"assets":{"asset":{"asset_code":"S40"}}}`, "S40"},
		{"none", `{"assets":[]}`, ""},
		{"null", `{"assets":null}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Asset(decode(t, tt.payload)); got != tt.want {
				t.Errorf("Asset = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCategory_ListOrObject(t *testing.T) {
	if got := Category(decode(t, `{"job_category":[{"category_name":"WM Repair - In Shop"}]}`)); got != "WM Repair - In Shop" {
		t.Errorf("list form = %q", got)
	}
	if got := Category(decode(t, `{"job_category":{"category_name":"WM Service - In Field"}}`)); got != "WM Service - In Field" {
		t.Errorf("object form = %q", got)
	}
	if got := Category(decode(t, `{"job_category":""}`)); got != "" {
		t.Errorf("scalar form = %q", got)
	}
}

func TestJobNumber_Fallback(t *testing.T) {
	if got := JobNumber(decode(t, `{"job_number": 1201}`)); got != "1201" {
		t.Errorf("JobNumber = %q, want 1201", got)
	}
}

func TestBillingReference(t *testing.T) {
	fields := func(pairs ...string) []models.CustomField {
		var out []models.CustomField
		for i := 0; i < len(pairs); i += 2 {
			out = append(out, models.CustomField{Label: pairs[i], Value: pairs[i+1]})
		}
		return out
	}
	tests := []struct {
		name   string
		fields []models.CustomField
		want   string
	}{
		{"netsuite label", fields("NETSUITE ID", "12345"), "12345"},
		{"salesorder", fields("SalesOrder #", " SO9 "), "SO9"},
		{"blank skipped", fields("Sales Order", "", "so id", "SO-2"), "SO-2"},
		{"no keyword", fields("PO Number", "PO-1"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BillingReference(tt.fields, config.DefaultJobBillingKeywords)
			if (got == nil) != (tt.want == "") || (got != nil && *got != tt.want) {
				t.Errorf("BillingReference = %v, want %q", got, tt.want)
			}
		})
	}
}

func TestFindSerials(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"rework suffix kept", "swapped CR-SM-12345-rw today", []string{"CR-SM-12345-RW"}},
		{"six digits", "CR-SM-000123", []string{"CR-SM-000123"}},
		{"y150", "unit cr-y150-123456-r", []string{"CR-Y150-123456-R"}},
		{"assemblies", "SM-123456-001 and WM-654321-002", []string{"SM-123456-001", "WM-654321-002"}},
		{"duplicates collapse", "CR-MPC-12345 CR-MPC-12345", []string{"CR-MPC-12345"}},
		{"no match", "replaced the belt", nil},
		{"too short", "CR-SM-1234", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindSerials(tt.text, SerialPatterns)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("FindSerials(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestFindSerials_OverlapKeepsLongest(t *testing.T) {
	// Both the scanner-module and the SM assembly pattern match here.
	got := FindSerials("CR-SM-123456-001", SerialPatterns)
	if len(got) != 1 || got[0] != "CR-SM-123456" {
		t.Errorf("FindSerials = %v, want [CR-SM-123456]", got)
	}
}

func TestChecklistParts_TruncatesDescription(t *testing.T) {
	answer := strings.Repeat("é", 250) + " CR-SM-12345"
	statuses := []upstream.RawJobStatus{{
		StatusName: "Done",
		Checklist:  []upstream.RawChecklistItem{{Question: "q", Answer: upstream.FlexString(answer)}},
	}}
	parts := ChecklistParts("j", statuses, testRules())
	if len(parts) != 1 {
		t.Fatalf("parts = %d, want 1", len(parts))
	}
	if n := len([]rune(parts[0].PartDescription)); n != 200 {
		t.Errorf("description runes = %d, want 200", n)
	}
}

func TestServiceTeam(t *testing.T) {
	tests := []struct {
		name, payload, want string
	}{
		{
			"done_by cross reference",
			`{"job_status":[{"status_type":"STARTED","done_by":{"user_uid":"u1"}}],
			  "assigned_to":[{"user":{"user_uid":"u1"},"team":{"team_name":"North"}}]}`,
			"North",
		},
		{
			"NEW ignored, fallback team",
			`{"job_status":[{"status_type":"NEW","done_by":{"user_uid":"u1"}}],
			  "assigned_to":[{"user":{"user_uid":"u1"},"team":{"team_name":"North"}}],
			  "assigned_to_team":[{"team":{"team_name":"Central"}}]}`,
			"Central",
		},
		{
			"unmatched user passes to older status",
			`{"job_status":[{"status_type":"COMPLETED","done_by":{"user_uid":"zz"}},{"status_type":"STARTED","done_by":{"user_uid":"u1"}}],
			  "assigned_to":[{"user":{"user_uid":"u1"},"team":{"team_name":"North"}}]}`,
			"North",
		},
		{"nothing", `{}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ServiceTeam(decode(t, tt.payload)); got != tt.want {
				t.Errorf("ServiceTeam = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCompletionTimestamp(t *testing.T) {
	raw := decode(t, `{"job_status":[
		{"status_name":"Invoiced","status_type":"CUSTOM","updated_at":"2026-03-05T10:00:00Z"},
		{"status_name":"Closed","status_type":"CUSTOM","updated_at":"2026-03-04T10:00:00Z"},
		{"status_name":"Done","status_type":"COMPLETED","updated_at":"2026-03-03T10:00:00Z"}]}`)
	got := CompletionTimestamp(raw)
	if got == nil || !got.Equal(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("CompletionTimestamp = %v, want 2026-03-04T10:00:00Z", got)
	}
	if CompletionTimestamp(decode(t, `{"job_status":[{"status_type":"STARTED"}]}`)) != nil {
		t.Error("expected nil for a job that never completed")
	}
}

func TestParseTimestamp(t *testing.T) {
	for _, in := range []string{"2026-01-02T03:04:05Z", "2026-01-02T03:04:05.123Z", "2026-01-02T05:04:05+02:00", "2026-01-02 03:04:05", "2026-01-02T03:04:05"} {
		got := ParseTimestamp(in)
		if got == nil || !got.Truncate(time.Second).Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
			t.Errorf("ParseTimestamp(%q) = %v", in, got)
		}
	}
	if ParseTimestamp("yesterday") != nil || ParseTimestamp(" ") != nil {
		t.Error("expected nil for unparsable input")
	}
}

func TestOrganizationRecord(t *testing.T) {
	raw, err := DecodeOrganization(json.RawMessage(`{
		"organization_uid": "org-1", "organization_name": "Acme", "no_of_customers": "12",
		"is_active": true, "is_portal_enabled": "false", "is_deleted": 0,
		"custom_fields": [{"label": "NS Customer", "value": "C-77"}],
		"updated_at": "2026-01-01T00:00:00Z"}`))
	if err != nil {
		t.Fatalf("DecodeOrganization: %v", err)
	}
	rec, err := OrganizationRecord(raw, testRules(), time.Now())
	if err != nil {
		t.Fatalf("OrganizationRecord: %v", err)
	}
	o := rec.Organization
	if o.NoOfCustomers != 12 || !o.IsActive || o.IsPortalEnabled || o.IsDeleted {
		t.Errorf("organization = %+v", o)
	}
	if !o.HasBillingReference || *o.BillingReference != "C-77" {
		t.Errorf("billing reference = %v", o.BillingReference)
	}
	if len(rec.CustomFields) != 1 || rec.CustomFields[0].ParentKind != models.ParentOrganization {
		t.Errorf("custom fields = %+v", rec.CustomFields)
	}

	if _, err := OrganizationRecord(&upstream.RawOrganization{}, testRules(), time.Now()); !errors.Is(err, ErrExtraction) {
		t.Errorf("missing uid err = %v", err)
	}
}

func TestJobURL(t *testing.T) {
	if got := JobURL("https://web.zuperpro.com/", "abc"); got != "https://web.zuperpro.com/jobs/abc/details" {
		t.Errorf("JobURL = %q", got)
	}
}
