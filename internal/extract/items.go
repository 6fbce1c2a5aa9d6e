// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package extract

import (
	"regexp"
	"sort"
	"strings"

	"github.com/tomtom215/fieldcheck/internal/models"
	"github.com/tomtom215/fieldcheck/internal/upstream"
)

// SerialPattern maps a part family to the regular expression its serials match.
type SerialPattern struct {
	Family string
	Regexp *regexp.Regexp
}

// SerialPatterns is the table applied to checklist answers. Add a row to recognise a
// new part family.
var SerialPatterns = []SerialPattern{
	{Family: "scanner_module", Regexp: regexp.MustCompile(`(?i)CR-SM-\d{5,6}(?:-RW)?`)},
	{Family: "y150", Regexp: regexp.MustCompile(`(?i)CR-Y150-\d{6}-R`)},
	{Family: "mpc", Regexp: regexp.MustCompile(`(?i)CR-MPC-\d{5}`)},
	{Family: "sm_assembly", Regexp: regexp.MustCompile(`(?i)SM-\d{6}-\d{3}`)},
	{Family: "wm_assembly", Regexp: regexp.MustCompile(`(?i)WM-\d{6}-\d{3}`)},
}

// LineItems maps the job's products. Quantity defaults to 1 and price to null when
// missing or unparsable.
func LineItems(jobUID string, products []upstream.RawProduct) []models.LineItem {
	if len(products) == 0 {
		return nil
	}
	out := make([]models.LineItem, 0, len(products))
	for i := range products {
		p := &products[i]
		qty, ok := p.Quantity.Float64()
		if !ok {
			qty = 1
		}
		out = append(out, models.LineItem{
			JobUID:       jobUID,
			Position:     i + 1,
			ItemName:     p.ProductName.Trimmed(),
			ItemCode:     p.ProductID.Trimmed(),
			ItemSerial:   joinSerials(p.SerialNos),
			Quantity:     qty,
			Price:        p.Price.Decimal(),
			LineItemType: p.ProductType.Trimmed(),
		})
	}
	return out
}

func joinSerials(serials []upstream.FlexString) string {
	parts := make([]string, 0, len(serials))
	for _, s := range serials {
		if v := s.Trimmed(); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}

// ChecklistParts scans every checklist answer of every status for serial numbers.
// Each distinct serial in an answer yields one part.
func ChecklistParts(jobUID string, statuses []upstream.RawJobStatus, rules *Rules) []models.ChecklistPart {
	var out []models.ChecklistPart
	for si := range statuses {
		st := &statuses[si]
		statusName := st.StatusName.Trimmed()
		for ci, item := range st.Checklist {
			answer := item.Answer.String()
			serials := FindSerials(answer, rules.patterns)
			if len(serials) == 0 {
				continue
			}
			desc := truncateRunes(strings.TrimSpace(answer), rules.descMax)
			updated := ParseTimestamp(item.UpdatedAt.String())
			for _, serial := range serials {
				out = append(out, models.ChecklistPart{
					JobUID:            jobUID,
					ChecklistQuestion: item.Question.Trimmed(),
					PartSerial:        serial,
					PartDescription:   desc,
					StatusName:        statusName,
					Position:          ci + 1,
					UpdatedAt:         updated,
				})
			}
		}
	}
	return out
}

type span struct{ start, end int }

// FindSerials returns the distinct upper-cased serials in text, in order of
// appearance. Where matches from different patterns overlap, the leftmost wins and,
// at the same start, the longest.
func FindSerials(text string, patterns []SerialPattern) []string {
	if text == "" {
		return nil
	}
	var spans []span
	for _, p := range patterns {
		for _, loc := range p.Regexp.FindAllStringIndex(text, -1) {
			spans = append(spans, span{loc[0], loc[1]})
		}
	}
	if len(spans) == 0 {
		return nil
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	var out []string
	seen := make(map[string]struct{}, len(spans))
	lastEnd := -1
	for _, sp := range spans {
		if sp.start < lastEnd {
			continue
		}
		lastEnd = sp.end
		serial := strings.ToUpper(text[sp.start:sp.end])
		if _, dup := seen[serial]; dup {
			continue
		}
		seen[serial] = struct{}{}
		out = append(out, serial)
	}
	return out
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
