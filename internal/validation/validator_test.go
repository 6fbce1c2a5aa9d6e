// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package validation

import (
	"strings"
	"testing"
)

type searchRequest struct {
	Serials []string `json:"serials" validate:"required,min=1,max=3,dive,max=10"`
	Mode    string   `json:"mode" validate:"omitempty,oneof=full differential"`
}

type webhookSettings struct {
	URL   string `koanf:"webhook_url" validate:"omitempty,httpurl"`
	Month string `validate:"omitempty,datetime=2006-01"`
}

func TestValidateStruct_Valid(t *testing.T) {
	t.Parallel()

	if err := ValidateStruct(&searchRequest{Serials: []string{"CR-SM-12345"}, Mode: "full"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateStruct_FieldNamesFromTags(t *testing.T) {
	t.Parallel()

	err := ValidateStruct(&searchRequest{Mode: "sometimes"})
	if err == nil {
		t.Fatal("expected validation error")
	}

	fields := map[string]string{}
	for _, e := range err.Errors() {
		fields[e.Field()] = e.Tag()
	}
	if fields["serials"] != "required" {
		t.Errorf("expected serials/required, got %v", fields)
	}
	if fields["mode"] != "oneof" {
		t.Errorf("expected mode/oneof, got %v", fields)
	}
}

func TestValidateStruct_Dive(t *testing.T) {
	t.Parallel()

	err := ValidateStruct(&searchRequest{Serials: []string{"ok", "this-one-is-too-long"}})
	if err == nil {
		t.Fatal("expected validation error for long serial")
	}
	if got := err.Errors()[0].Field(); got != "serials[1]" {
		t.Errorf("field = %q, want serials[1]", got)
	}
}

func TestValidateStruct_HTTPURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url   string
		valid bool
	}{
		{"", true},
		{"https://hooks.slack.com/services/T/B/X", true},
		{"http://localhost:8080/hook", true},
		{"ftp://example.com", false},
		{"hooks.slack.com/services", false},
	}
	for _, tt := range tests {
		err := ValidateStruct(&webhookSettings{URL: tt.url})
		if (err == nil) != tt.valid {
			t.Errorf("url %q: valid=%v, err=%v", tt.url, tt.valid, err)
		}
	}
}

func TestValidateStruct_Datetime(t *testing.T) {
	t.Parallel()

	if err := ValidateStruct(&webhookSettings{Month: "2026-03"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := ValidateStruct(&webhookSettings{Month: "03/2026"})
	if err == nil {
		t.Fatal("expected error for bad month")
	}
	if !strings.Contains(err.Error(), "2006-01") {
		t.Errorf("message should name the layout, got %q", err.Error())
	}
}

func TestToAPIError(t *testing.T) {
	t.Parallel()

	single := ValidateStruct(&searchRequest{Serials: []string{"a"}, Mode: "bad"}).ToAPIError()
	if single.Code != "VALIDATION_ERROR" {
		t.Errorf("code = %q", single.Code)
	}
	if single.Details["field"] != "mode" {
		t.Errorf("details = %v", single.Details)
	}

	multi := ValidateStruct(&searchRequest{Mode: "bad"}).ToAPIError()
	fields, ok := multi.Details["fields"].([]map[string]interface{})
	if !ok || len(fields) != 2 {
		t.Errorf("expected two field entries, got %v", multi.Details)
	}
}

func TestGetValidator_Singleton(t *testing.T) {
	t.Parallel()

	if GetValidator() != GetValidator() {
		t.Error("expected the same validator instance")
	}
}
