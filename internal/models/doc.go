// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

/*
Package models defines the flat, strongly typed entities shared by the extractor,
validator, sync engine, store and API.

Upstream payloads never leave the upstream and extract packages in raw form. Everything
downstream of extraction works on the types in this package:

  - Job, LineItem, ChecklistPart, CustomField: a field-service job and its child
    collections. JobRecord bundles them with the flags the validator produced.
  - ValidationFlag: a persisted data-quality issue on a job.
  - Organization, OrganizationRecord: customer accounts and their custom fields.
  - SyncLog: one row per sync run.
  - JobFilter, JobPage, Metrics: reporting queries used by the API.
  - APIResponse, APIError, Metadata: the JSON envelope returned by every endpoint.
*/
package models
