// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/fieldcheck/internal/models"
)

const flatEventType = "job_missing_billing_reference"

// SlackPayload is an incoming-webhook message.
type SlackPayload struct {
	Text   string       `json:"text"`
	Blocks []SlackBlock `json:"blocks"`
}

// SlackBlock is one Block Kit block. Only the fields used here are modelled.
type SlackBlock struct {
	Type     string         `json:"type"`
	Text     *SlackText     `json:"text,omitempty"`
	Fields   []SlackText    `json:"fields,omitempty"`
	Elements []SlackElement `json:"elements,omitempty"`
}

// SlackText is a plain_text or mrkdwn text object.
type SlackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// SlackElement is an interactive element; only buttons are sent.
type SlackElement struct {
	Type  string     `json:"type"`
	Text  *SlackText `json:"text,omitempty"`
	URL   string     `json:"url,omitempty"`
	Style string     `json:"style,omitempty"`
}

// FlatPayload is the generic webhook body.
type FlatPayload struct {
	EventType      string `json:"event_type"`
	JobNumber      string `json:"job_number"`
	JobTitle       string `json:"job_title"`
	Organization   string `json:"organization"`
	Asset          string `json:"asset"`
	ServiceTeam    string `json:"service_team"`
	CompletedAt    string `json:"completed_at"`
	LineItems      string `json:"line_items"`
	LineItemsCount int    `json:"line_items_count"`
	ZuperURL       string `json:"zuper_url"`
	JobUID         string `json:"job_uid"`
	Timestamp      string `json:"timestamp"`
}

func mrkdwn(s string) SlackText { return SlackText{Type: "mrkdwn", Text: s} }

func (n *Notifier) slackPayload(ev *models.FlagRaisedEvent) SlackPayload {
	url := n.jobURL(ev.JobUID)
	total := lineItemCount(ev)

	shown := ev.LineItems
	if len(shown) > n.maxItems {
		shown = shown[:n.maxItems]
	}
	var items strings.Builder
	for i := range shown {
		if i > 0 {
			items.WriteByte('\n')
		}
		items.WriteString("• " + lineItemLabel(&shown[i]))
	}
	if rest := total - len(shown); rest > 0 {
		fmt.Fprintf(&items, "\n• ... and %d more", rest)
	}
	if total == 0 {
		items.WriteString("None")
	}

	header := &SlackText{Type: "plain_text", Text: "Job Needs Billing Reference", Emoji: true}
	jobText := mrkdwn(fmt.Sprintf("*Completed:* %s", formatCompleted(ev.CompletedAt)))
	itemsText := mrkdwn(fmt.Sprintf("*Line Items Needing Billing Reference (%d):*\n%s", total, items.String()))
	titleText := mrkdwn("*Job Title:*\n" + orNA(ev.JobTitle))

	return SlackPayload{
		Text: fmt.Sprintf("Job %s completed without a billing reference - %d line items need one",
			orNA(ev.JobNumber), total),
		Blocks: []SlackBlock{
			{Type: "header", Text: header},
			{Type: "section", Fields: []SlackText{
				mrkdwn(fmt.Sprintf("*Job Number:*\n<%s|%s>", url, orNA(ev.JobNumber))),
				mrkdwn("*Organization:*\n" + orNA(ev.Organization)),
				mrkdwn("*Asset:*\n" + orNA(ev.AssetName)),
				mrkdwn("*Service Team:*\n" + orNA(ev.ServiceTeam)),
			}},
			{Type: "section", Text: &titleText},
			{Type: "section", Text: &jobText},
			{Type: "divider"},
			{Type: "section", Text: &itemsText},
			{Type: "actions", Elements: []SlackElement{{
				Type:  "button",
				Text:  &SlackText{Type: "plain_text", Text: "Open in Zuper", Emoji: true},
				URL:   url,
				Style: "primary",
			}}},
		},
	}
}

// flatLineItemLimit bounds the joined line_items string in the flat payload.
const flatLineItemLimit = 10

func (n *Notifier) flatPayload(ev *models.FlagRaisedEvent) FlatPayload {
	labels := make([]string, 0, min(len(ev.LineItems), flatLineItemLimit))
	for i := range ev.LineItems {
		if i == flatLineItemLimit {
			break
		}
		labels = append(labels, lineItemLabel(&ev.LineItems[i]))
	}
	items := "None"
	if len(labels) > 0 {
		items = strings.Join(labels, ", ")
	}
	return FlatPayload{
		EventType:      flatEventType,
		JobNumber:      orNA(ev.JobNumber),
		JobTitle:       orNA(ev.JobTitle),
		Organization:   orNA(ev.Organization),
		Asset:          orNA(ev.AssetName),
		ServiceTeam:    orNA(ev.ServiceTeam),
		CompletedAt:    formatCompleted(ev.CompletedAt),
		LineItems:      items,
		LineItemsCount: lineItemCount(ev),
		ZuperURL:       n.jobURL(ev.JobUID),
		JobUID:         ev.JobUID,
		Timestamp:      n.now().UTC().Format(time.RFC3339),
	}
}
