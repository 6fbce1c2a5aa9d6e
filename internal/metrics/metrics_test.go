// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{context.Canceled, "canceled"},
		{fmt.Errorf("wrap: %w", context.DeadlineExceeded), "timeout"},
		{errors.New("TransactionContext Error: Conflict on tuple"), "conflict"},
		{errors.New("Constraint Error: duplicate key"), "constraint"},
		{errors.New("disk full"), "other"},
	}
	for _, tt := range tests {
		if got := classifyError(tt.err); got != tt.want {
			t.Errorf("classifyError(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestRecordDBQuery(t *testing.T) {
	before := testutil.ToFloat64(DBQueryErrors.WithLabelValues("test_op", "other"))

	RecordDBQuery("test_op", 5*time.Millisecond, nil)
	RecordDBQuery("test_op", 5*time.Millisecond, errors.New("boom"))

	if got := testutil.ToFloat64(DBQueryErrors.WithLabelValues("test_op", "other")); got != before+1 {
		t.Errorf("errors = %v, want %v", got, before+1)
	}
}

func TestRecordUpstreamCall(t *testing.T) {
	okBefore := testutil.ToFloat64(UpstreamRequests.WithLabelValues("jobs", "page", "success"))
	errBefore := testutil.ToFloat64(UpstreamRequests.WithLabelValues("jobs", "page", "error"))

	RecordUpstreamCall("jobs", "page", 10*time.Millisecond, nil)
	RecordUpstreamCall("jobs", "page", 10*time.Millisecond, errors.New("503"))

	if got := testutil.ToFloat64(UpstreamRequests.WithLabelValues("jobs", "page", "success")); got != okBefore+1 {
		t.Errorf("success = %v, want %v", got, okBefore+1)
	}
	if got := testutil.ToFloat64(UpstreamRequests.WithLabelValues("jobs", "page", "error")); got != errBefore+1 {
		t.Errorf("error = %v, want %v", got, errBefore+1)
	}
}

func TestRecordSyncRun(t *testing.T) {
	createdBefore := testutil.ToFloat64(SyncRecords.WithLabelValues("metrics_test", "created"))

	RecordSyncRun(SyncOutcome{
		Resource: "metrics_test",
		Mode:     "full",
		Status:   "completed",
		Duration: 3 * time.Second,
		Created:  4,
		Updated:  2,
	})

	if got := testutil.ToFloat64(SyncRecords.WithLabelValues("metrics_test", "created")); got != createdBefore+4 {
		t.Errorf("created = %v, want %v", got, createdBefore+4)
	}
	if got := testutil.ToFloat64(SyncRuns.WithLabelValues("metrics_test", "full", "completed")); got < 1 {
		t.Errorf("runs = %v, want >= 1", got)
	}
	if got := testutil.ToFloat64(SyncLastSuccess.WithLabelValues("metrics_test")); got <= 0 {
		t.Error("last success timestamp should be set for completed runs")
	}
}

func TestRecordSyncRun_FailedDoesNotTouchLastSuccess(t *testing.T) {
	RecordSyncRun(SyncOutcome{Resource: "metrics_failed", Mode: "differential", Status: "failed"})

	if got := testutil.ToFloat64(SyncLastSuccess.WithLabelValues("metrics_failed")); got != 0 {
		t.Errorf("last success = %v, want 0", got)
	}
}

func TestRecordAPIRequest_Histogram(t *testing.T) {
	RecordAPIRequest("GET", "/api/v1/metrics_test", 200, 20*time.Millisecond)

	m := &dto.Metric{}
	obs, ok := APIRequestDuration.WithLabelValues("GET", "/api/v1/metrics_test").(interface {
		Write(*dto.Metric) error
	})
	if !ok {
		t.Fatal("histogram does not expose Write")
	}
	if err := obs.Write(m); err != nil {
		t.Fatal(err)
	}
	if got := m.GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests); got != before+1 {
		t.Errorf("active = %v, want %v", got, before+1)
	}
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != before {
		t.Errorf("active = %v, want %v", got, before)
	}
}
