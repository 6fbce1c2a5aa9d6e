// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

// Package quality applies the billing data-quality rules to extracted jobs.
//
// A Validator owns the category allow-list and skip-list and a fixed set of rules.
// Rules are evaluated independently and return unsaved flags; persistence and
// de-duplication happen in the database layer.
package quality

import (
	"strings"

	"github.com/tomtom215/fieldcheck/internal/config"
	"github.com/tomtom215/fieldcheck/internal/extract"
	"github.com/tomtom215/fieldcheck/internal/models"
)

// Rule is one data-quality check.
type Rule interface {
	// Type returns the flag type the rule produces.
	Type() models.FlagType
	// Check returns a flag when the rule fires, nil otherwise.
	Check(in *Input) *models.ValidationFlag
}

// Input is what rules evaluate.
type Input struct {
	Job            *models.Job
	LineItems      []models.LineItem
	ChecklistParts []models.ChecklistPart
	// InScope is true when the job's category is allow-listed.
	InScope bool
}

// Validator evaluates rules against jobs.
type Validator struct {
	allowed map[string]struct{}
	skip    []string
	rules   []Rule
}

// New builds a validator from the rules configuration.
func New(cfg *config.RulesConfig) *Validator {
	allowed := make(map[string]struct{}, len(cfg.AllowedCategories))
	for _, c := range cfg.AllowedCategories {
		if c = strings.TrimSpace(c); c != "" {
			allowed[extract.Fold(c)] = struct{}{}
		}
	}
	consumable := foldAll(cfg.ConsumableTerms)
	return &Validator{
		allowed: allowed,
		skip:    foldAll(cfg.SkipCategories),
		rules: []Rule{
			&MissingBillingRule{consumableTerms: consumable},
			&PartsNoLineItemsRule{},
		},
	}
}

func foldAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, extract.Fold(s))
		}
	}
	return out
}

// InScope reports whether category is on the allow-list (exact, case-insensitive).
// Jobs outside it are never synced.
func (v *Validator) InScope(category string) bool {
	_, ok := v.allowed[extract.Fold(strings.TrimSpace(category))]
	return ok
}

// Skipped reports whether category contains a skip-list entry. Skipped jobs are
// synced but never validated.
func (v *Validator) Skipped(category string) bool {
	c := extract.Fold(category)
	for _, s := range v.skip {
		if strings.Contains(c, s) {
			return true
		}
	}
	return false
}

// Validate returns the flags raised for a job. Jobs that are skip-listed or outside
// the allow-list produce none.
func (v *Validator) Validate(job *models.Job, items []models.LineItem, parts []models.ChecklistPart) []models.ValidationFlag {
	if v.Skipped(job.JobCategory) || !v.InScope(job.JobCategory) {
		return nil
	}
	in := &Input{Job: job, LineItems: items, ChecklistParts: parts, InScope: true}
	var flags []models.ValidationFlag
	for _, r := range v.rules {
		if f := r.Check(in); f != nil {
			f.JobUID = job.JobUID
			f.Type = r.Type()
			flags = append(flags, *f)
		}
	}
	return flags
}

// Apply validates rec in place: it sets Flags, or marks the record SkipValidation
// when its category is skip-listed so existing flags stay untouched.
func (v *Validator) Apply(rec *models.JobRecord) {
	if v.Skipped(rec.Job.JobCategory) {
		rec.SkipValidation = true
		rec.Flags = nil
		return
	}
	rec.SkipValidation = false
	rec.Flags = v.Validate(&rec.Job, rec.LineItems, rec.ChecklistParts)
}
