// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package quality

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldcheck/internal/extract"
	"github.com/tomtom215/fieldcheck/internal/models"
)

// MissingBillingRule fires when an allow-listed job has billable (non-consumable)
// line items but no billing reference.
type MissingBillingRule struct {
	consumableTerms []string
}

// MissingBillingDetails is the details payload of a missing_billing_reference flag.
type MissingBillingDetails struct {
	LineItemsCount      int      `json:"line_items_count"`
	LineItems           []string `json:"line_items"`
	ConsumablesExcluded int      `json:"consumables_excluded"`
}

// Type implements Rule.
func (r *MissingBillingRule) Type() models.FlagType { return models.FlagMissingBillingReference }

// Check implements Rule.
func (r *MissingBillingRule) Check(in *Input) *models.ValidationFlag {
	if !in.InScope || len(in.LineItems) == 0 || in.Job.NetsuiteSalesOrderID != nil {
		return nil
	}
	var billable []string
	for i := range in.LineItems {
		if !r.IsConsumable(&in.LineItems[i]) {
			billable = append(billable, in.LineItems[i].ItemName)
		}
	}
	if len(billable) == 0 {
		return nil
	}
	details := MissingBillingDetails{
		LineItemsCount:      len(billable),
		LineItems:           billable,
		ConsumablesExcluded: len(in.LineItems) - len(billable),
	}
	return &models.ValidationFlag{
		Severity:        models.SeverityError,
		Message:         fmt.Sprintf("Job has %d non-consumable line item(s) but no billing reference", len(billable)),
		Details:         mustJSON(details),
		ConditionActive: true,
	}
}

// IsConsumable reports whether the item's name, code, serial or type contains a
// consumable term.
func (r *MissingBillingRule) IsConsumable(li *models.LineItem) bool {
	for _, field := range []string{li.ItemName, li.ItemCode, li.ItemSerial, li.LineItemType} {
		f := extract.Fold(field)
		for _, term := range r.consumableTerms {
			if strings.Contains(f, term) {
				return true
			}
		}
	}
	return false
}

// PartsNoLineItemsRule fires when checklist answers name replaced parts but the job
// has no line items at all.
type PartsNoLineItemsRule struct{}

// PartsNoLineItemsDetails is the details payload of a parts_replaced_no_line_items flag.
type PartsNoLineItemsDetails struct {
	PartsCount    int      `json:"parts_count"`
	PartsReplaced []string `json:"parts_replaced"`
}

// Type implements Rule.
func (r *PartsNoLineItemsRule) Type() models.FlagType { return models.FlagPartsReplacedNoLineItems }

// Check implements Rule.
func (r *PartsNoLineItemsRule) Check(in *Input) *models.ValidationFlag {
	if len(in.ChecklistParts) == 0 || len(in.LineItems) > 0 {
		return nil
	}
	serials := make([]string, 0, len(in.ChecklistParts))
	for i := range in.ChecklistParts {
		serials = append(serials, in.ChecklistParts[i].PartSerial)
	}
	return &models.ValidationFlag{
		Severity: models.SeverityError,
		Message:  fmt.Sprintf("Checklist shows %d part(s) replaced but no line items added", len(serials)),
		Details: mustJSON(PartsNoLineItemsDetails{
			PartsCount:    len(serials),
			PartsReplaced: serials,
		}),
		ConditionActive: true,
	}
}

// mustJSON marshals plain structs of strings and ints, which cannot fail.
func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
