// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package upstream

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// The upstream API is loosely typed: the same field arrives as a string on one record
// and a number or null on the next. The Flex types below decode any of those shapes
// without failing the whole record.

// FlexString decodes a string, number, bool or null. Objects and arrays keep their
// JSON text.
type FlexString string

func (s *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")):
		*s = ""
	case b[0] == '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = FlexString(v)
	default:
		*s = FlexString(b)
	}
	return nil
}

// String returns the value.
func (s FlexString) String() string { return string(s) }

// Trimmed returns the value without surrounding whitespace.
func (s FlexString) Trimmed() string { return strings.TrimSpace(string(s)) }

// FlexNumber decodes a JSON number or a numeric string. Anything else decodes as
// not valid rather than failing.
type FlexNumber struct {
	Raw   string
	Valid bool
}

func (n *FlexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*n = FlexNumber{}
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	raw := string(b)
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return nil
		}
		raw = strings.TrimSpace(v)
	}
	if _, err := decimal.NewFromString(raw); err != nil {
		return nil
	}
	*n = FlexNumber{Raw: raw, Valid: true}
	return nil
}

// Float64 returns the value and whether it was a usable number.
func (n FlexNumber) Float64() (float64, bool) {
	if !n.Valid {
		return 0, false
	}
	f, err := strconv.ParseFloat(n.Raw, 64)
	return f, err == nil
}

// Int returns the value truncated to an int, or 0.
func (n FlexNumber) Int() int {
	f, ok := n.Float64()
	if !ok {
		return 0
	}
	return int(f)
}

// Decimal returns the exact value, null when not valid.
func (n FlexNumber) Decimal() decimal.NullDecimal {
	if !n.Valid {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(n.Raw)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// FlexBool decodes true/false, 0/1 or their string forms. Anything else is false.
type FlexBool bool

func (f *FlexBool) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	v, err := strconv.ParseBool(s)
	*f = FlexBool(err == nil && v)
	return nil
}

// OneOrMany decodes either a single object or a list of objects into a slice.
// Null decodes to an empty slice.
type OneOrMany[T any] []T

func (m *OneOrMany[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")):
		*m = nil
		return nil
	case b[0] == '[':
		var list []T
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		*m = list
		return nil
	case b[0] == '{':
		var one T
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		*m = OneOrMany[T]{one}
		return nil
	default:
		// Scalars (e.g. an empty string) carry no usable structure.
		*m = nil
		return nil
	}
}

// First returns the first element, if any.
func (m OneOrMany[T]) First() (T, bool) {
	if len(m) == 0 {
		var zero T
		return zero, false
	}
	return m[0], true
}

// RawJob is the subset of an upstream job record that Fieldcheck reads.
type RawJob struct {
	JobUID          string                 `json:"job_uid"`
	JobTitle        FlexString             `json:"job_title"`
	JobNumber       FlexString             `json:"job_number"`
	WorkOrderNumber FlexString             `json:"work_order_number"`
	JobCategory     OneOrMany[RawCategory] `json:"job_category"`
	JobStatus       []RawJobStatus         `json:"job_status"`
	CustomerName    FlexString             `json:"customer_name"`
	Customer        *RawCustomer           `json:"customer"`
	Assets          OneOrMany[RawAssetRef] `json:"assets"`
	Products        []RawProduct           `json:"products"`
	CustomFields    []RawCustomField       `json:"custom_fields"`
	AssignedTo      []RawAssignment        `json:"assigned_to"`
	AssignedToTeam  []RawTeamAssignment    `json:"assigned_to_team"`
	CreatedAt       FlexString             `json:"created_at"`
	UpdatedAt       FlexString             `json:"updated_at"`
}

// RawCategory is a job category reference.
type RawCategory struct {
	CategoryUID  string     `json:"category_uid"`
	CategoryName FlexString `json:"category_name"`
}

// RawJobStatus is one entry of a job's status history.
type RawJobStatus struct {
	StatusUID  string             `json:"status_uid"`
	StatusName FlexString         `json:"status_name"`
	StatusType FlexString         `json:"status_type"`
	DoneBy     *RawUser           `json:"done_by"`
	Checklist  []RawChecklistItem `json:"checklist"`
	CreatedAt  FlexString         `json:"created_at"`
	UpdatedAt  FlexString         `json:"updated_at"`
}

// RawChecklistItem is one answered checklist question.
type RawChecklistItem struct {
	Question  FlexString `json:"question"`
	Answer    FlexString `json:"answer"`
	UpdatedAt FlexString `json:"updated_at"`
}

// RawUser identifies a technician.
type RawUser struct {
	UserUID   string     `json:"user_uid"`
	FirstName FlexString `json:"first_name"`
	LastName  FlexString `json:"last_name"`
}

// RawTeam identifies a service team.
type RawTeam struct {
	TeamUID  string     `json:"team_uid"`
	TeamName FlexString `json:"team_name"`
}

// RawAssignment links an assigned user to the team they were assigned through.
type RawAssignment struct {
	User RawUser `json:"user"`
	Team RawTeam `json:"team"`
}

// RawTeamAssignment is an entry of assigned_to_team.
type RawTeamAssignment struct {
	Team RawTeam `json:"team"`
}

// RawCustomer carries the organization reference of a job's customer.
type RawCustomer struct {
	CustomerUID          string     `json:"customer_uid"`
	CustomerOrganization *RawOrgRef `json:"customer_organization"`
}

// RawOrgRef is an organization reference embedded in a job.
type RawOrgRef struct {
	OrganizationUID  string     `json:"organization_uid"`
	OrganizationName FlexString `json:"organization_name"`
}

// RawAssetRef wraps the serviced asset.
type RawAssetRef struct {
	Asset RawAsset `json:"asset"`
}

// RawAsset is a serviced machine.
type RawAsset struct {
	AssetUID  string     `json:"asset_uid"`
	AssetCode FlexString `json:"asset_code"`
	AssetName FlexString `json:"asset_name"`
}

// RawProduct is a product line on a job.
type RawProduct struct {
	ProductName FlexString   `json:"product_name"`
	ProductID   FlexString   `json:"product_id"`
	SerialNos   []FlexString `json:"serial_nos"`
	Quantity    FlexNumber   `json:"quantity"`
	Price       FlexNumber   `json:"price"`
	ProductType FlexString   `json:"product_type"`
}

// RawCustomField is a label/value pair on a job or organization.
type RawCustomField struct {
	Label FlexString `json:"label"`
	Value FlexString `json:"value"`
	Type  FlexString `json:"type"`
}

// RawOrganization is the subset of an upstream organization record that Fieldcheck
// reads.
type RawOrganization struct {
	OrganizationUID         string           `json:"organization_uid"`
	OrganizationName        FlexString       `json:"organization_name"`
	OrganizationEmail       FlexString       `json:"organization_email"`
	OrganizationDescription FlexString       `json:"organization_description"`
	NoOfCustomers           FlexNumber       `json:"no_of_customers"`
	IsActive                FlexBool         `json:"is_active"`
	IsPortalEnabled         FlexBool         `json:"is_portal_enabled"`
	IsDeleted               FlexBool         `json:"is_deleted"`
	CustomFields            []RawCustomField `json:"custom_fields"`
	CreatedAt               FlexString       `json:"created_at"`
	UpdatedAt               FlexString       `json:"updated_at"`
}

// ListStamp is the minimal projection of a list-page record used to decide whether a
// detail fetch is needed.
type ListStamp struct {
	UID       string
	UpdatedAt string
}

type stampFields struct {
	JobUID          string     `json:"job_uid"`
	OrganizationUID string     `json:"organization_uid"`
	UpdatedAt       FlexString `json:"updated_at"`
}

// DecodeStamp reads the uid and updated_at of a list record without decoding the rest.
func DecodeStamp(raw json.RawMessage) (ListStamp, error) {
	var f stampFields
	if err := json.Unmarshal(raw, &f); err != nil {
		return ListStamp{}, err
	}
	uid := f.JobUID
	if uid == "" {
		uid = f.OrganizationUID
	}
	return ListStamp{UID: uid, UpdatedAt: f.UpdatedAt.Trimmed()}, nil
}
