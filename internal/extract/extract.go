// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

// Package extract maps raw upstream job and organization records into the flat
// entities stored locally.
//
// Every function is pure: no I/O, no clock reads except where a sync time is passed
// in. Loosely typed upstream fields are already normalised by the upstream.Flex*
// decoders, so extraction only has to deal with absent data, never with wrong types.
package extract

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/text/cases"

	"github.com/tomtom215/fieldcheck/internal/config"
	"github.com/tomtom215/fieldcheck/internal/models"
	"github.com/tomtom215/fieldcheck/internal/upstream"
)

// ErrExtraction marks a record whose shape could not be mapped. The sync engine counts
// it against the record and moves on.
var ErrExtraction = errors.New("extraction failed")

// Error is an extraction failure for one record.
type Error struct {
	UID string
	Err error
}

func (e *Error) Error() string {
	if e.UID == "" {
		return fmt.Sprintf("extract record: %v", e.Err)
	}
	return fmt.Sprintf("extract record %s: %v", e.UID, e.Err)
}

func (e *Error) Unwrap() []error { return []error{ErrExtraction, e.Err} }

// Rules are the keyword tables extraction matches against, pre-folded for
// case-insensitive comparison.
type Rules struct {
	jobBilling []string
	orgBilling []string
	descMax    int
	patterns   []SerialPattern
}

// NewRules builds Rules from configuration with the default serial pattern table.
func NewRules(cfg *config.RulesConfig) *Rules {
	descMax := cfg.PartDescriptionMax
	if descMax <= 0 {
		descMax = 200
	}
	return &Rules{
		jobBilling: foldAll(cfg.JobBillingKeywords),
		orgBilling: foldAll(cfg.OrgBillingKeywords),
		descMax:    descMax,
		patterns:   SerialPatterns,
	}
}

// Fold returns s case-folded for comparison. A cases.Caser is stateful, so a fresh
// one is taken per call.
func Fold(s string) string {
	return cases.Fold().String(s)
}

func foldAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, Fold(s))
		}
	}
	return out
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// DecodeJob decodes a job detail payload. Decoding failures are extraction errors
// carrying whatever uid could be recovered.
func DecodeJob(raw json.RawMessage) (*upstream.RawJob, error) {
	var job upstream.RawJob
	if err := json.Unmarshal(raw, &job); err != nil {
		stamp, _ := upstream.DecodeStamp(raw)
		return nil, &Error{UID: stamp.UID, Err: fmt.Errorf("decode job: %w", err)}
	}
	return &job, nil
}

// DecodeOrganization decodes an organization payload.
func DecodeOrganization(raw json.RawMessage) (*upstream.RawOrganization, error) {
	var org upstream.RawOrganization
	if err := json.Unmarshal(raw, &org); err != nil {
		stamp, _ := upstream.DecodeStamp(raw)
		return nil, &Error{UID: stamp.UID, Err: fmt.Errorf("decode organization: %w", err)}
	}
	return &org, nil
}

// Job maps a raw job into the record the sync engine persists. Flags are left for
// the validator.
func Job(raw *upstream.RawJob, rules *Rules, syncedAt time.Time) (*models.JobRecord, error) {
	uid := strings.TrimSpace(raw.JobUID)
	if uid == "" {
		return nil, &Error{Err: errors.New("missing job_uid")}
	}

	job := models.Job{
		JobUID:       uid,
		JobNumber:    JobNumber(raw),
		JobTitle:     raw.JobTitle.Trimmed(),
		JobStatus:    Status(raw),
		JobCategory:  Category(raw),
		CustomerName: raw.CustomerName.Trimmed(),
		ServiceTeam:  ServiceTeam(raw),
		AssetName:    Asset(raw),
		CreatedAt:    ParseTimestamp(raw.CreatedAt.String()),
		UpdatedAt:    ParseTimestamp(raw.UpdatedAt.String()),
		CompletedAt:  CompletionTimestamp(raw),
		SyncedAt:     syncedAt.UTC(),
	}
	if ref, ok := OrganizationRef(raw); ok {
		job.OrganizationUID = &ref.UID
		if ref.Name != "" {
			job.OrganizationName = &ref.Name
		}
	}
	if job.CustomerName == "" && job.OrganizationName != nil {
		job.CustomerName = *job.OrganizationName
	}

	fields := CustomFields(models.ParentJob, uid, raw.CustomFields)
	job.NetsuiteSalesOrderID = BillingReference(fields, rules.jobBilling)
	job.JiraLink = Link(fields, "jira")
	job.SlackLink = Link(fields, "slack")

	rec := &models.JobRecord{
		Job:            job,
		LineItems:      LineItems(uid, raw.Products),
		ChecklistParts: ChecklistParts(uid, raw.JobStatus, rules),
		CustomFields:   fields,
	}
	rec.DeriveFlags()
	return rec, nil
}

// JobURL is the human-facing link to a job in the upstream web app.
func JobURL(webURL, jobUID string) string {
	return strings.TrimRight(webURL, "/") + "/jobs/" + jobUID + "/details"
}
