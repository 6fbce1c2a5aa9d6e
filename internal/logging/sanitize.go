// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package logging

import (
	"net/url"
	"strings"
)

// SanitizeToken masks a secret for logging, keeping the last four characters of
// long values so operators can tell keys apart.
func SanitizeToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "****"
	}
	return "****" + token[len(token)-4:]
}

// SanitizeURL strips credentials, query and path from a URL, leaving scheme and host.
// Webhook URLs carry their secret in the path.
func SanitizeURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "[invalid-url]"
	}
	out := u.Scheme + "://" + u.Host
	if strings.Trim(u.Path, "/") != "" {
		out += "/****"
	}
	return out
}
