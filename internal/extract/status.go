// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package extract

import (
	"strings"
	"time"

	"github.com/tomtom215/fieldcheck/internal/upstream"
)

// job_status arrives newest first.

// ServiceTeam returns the team of the technician who last moved the job past NEW.
//
// Statuses are walked newest first; for each non-NEW status with a done_by user,
// that user is looked up in assigned_to and the team they were assigned through is
// returned. Statuses whose user has no team are passed over. When nothing matches the
// first assigned_to_team entry is used.
func ServiceTeam(raw *upstream.RawJob) string {
	for i := range raw.JobStatus {
		st := &raw.JobStatus[i]
		if strings.EqualFold(st.StatusType.Trimmed(), "NEW") || st.DoneBy == nil || st.DoneBy.UserUID == "" {
			continue
		}
		for _, a := range raw.AssignedTo {
			if a.User.UserUID != st.DoneBy.UserUID {
				continue
			}
			if team := a.Team.TeamName.Trimmed(); team != "" {
				return team
			}
			break
		}
	}
	for _, t := range raw.AssignedToTeam {
		if team := t.Team.TeamName.Trimmed(); team != "" {
			return team
		}
	}
	return ""
}

// CompletionTimestamp returns when the job was completed: the timestamp of the first
// status entry whose type or name is COMPLETED or CLOSED, or nil.
func CompletionTimestamp(raw *upstream.RawJob) *time.Time {
	for i := range raw.JobStatus {
		st := &raw.JobStatus[i]
		if !isTerminal(st.StatusType.Trimmed()) && !isTerminal(st.StatusName.Trimmed()) {
			continue
		}
		if t := ParseTimestamp(st.UpdatedAt.String()); t != nil {
			return t
		}
		return ParseTimestamp(st.CreatedAt.String())
	}
	return nil
}

func isTerminal(s string) bool {
	return strings.EqualFold(s, "COMPLETED") || strings.EqualFold(s, "CLOSED")
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses the timestamp formats the upstream API emits. Values without
// a zone are taken as UTC. Blank or unparsable input yields nil.
func ParseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
