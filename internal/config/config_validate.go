// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tomtom215/fieldcheck/internal/logging"
	"github.com/tomtom215/fieldcheck/internal/validation"
)

// Validate checks field ranges with struct tags, then the cross-field rules tags
// cannot express.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}

	if err := validateHTTPURL(c.Upstream.BaseURL, "upstream.base_url"); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateRules(); err != nil {
		return err
	}
	if err := c.validateEvents(); err != nil {
		return err
	}
	if c.API.DefaultPageSize > c.API.MaxPageSize {
		return fmt.Errorf("api.default_page_size (%d) exceeds api.max_page_size (%d)",
			c.API.DefaultPageSize, c.API.MaxPageSize)
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level %q is not a known level", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateSync() error {
	if !c.Sync.Enabled {
		return nil
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive when sync is enabled")
	}
	if c.Sync.FullInterval > 0 && c.Sync.FullInterval < c.Sync.Interval {
		return fmt.Errorf("sync.full_interval (%s) must not be shorter than sync.interval (%s)",
			c.Sync.FullInterval, c.Sync.Interval)
	}
	if c.Sync.LockTTL > 0 && c.Sync.LockTTL < c.Upstream.Timeout {
		return fmt.Errorf("sync.lock_ttl (%s) must be at least upstream.timeout (%s)",
			c.Sync.LockTTL, c.Upstream.Timeout)
	}
	return nil
}

// validateRules rejects a skip entry that would swallow a whole allowed category.
func (c *Config) validateRules() error {
	for _, allowed := range c.Rules.AllowedCategories {
		a := strings.ToLower(strings.TrimSpace(allowed))
		for _, skip := range c.Rules.SkipCategories {
			s := strings.ToLower(strings.TrimSpace(skip))
			if s != "" && s == a {
				return fmt.Errorf("rules.skip_categories entry %q equals an allowed category", skip)
			}
		}
	}
	return nil
}

func (c *Config) validateEvents() error {
	if !c.Events.NATS.Enabled {
		return nil
	}
	if err := validateNATSURL(c.Events.NATS.URL); err != nil {
		return err
	}
	if c.Events.NATS.Stream == "" || c.Events.NATS.SubjectPrefix == "" {
		return fmt.Errorf("events.nats.stream and events.nats.subject_prefix are required when NATS is enabled")
	}
	return nil
}

// validateHTTPURL requires an http(s) base URL without path or query.
func validateHTTPURL(rawURL, fieldName string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %s", fieldName, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}
	if u.Path != "" && u.Path != "/" {
		return fmt.Errorf("%s should be base URL only, remove path: %s", fieldName, u.Path)
	}
	if u.RawQuery != "" {
		return fmt.Errorf("%s should not contain query parameters, remove: ?%s", fieldName, u.RawQuery)
	}
	return nil
}

func validateNATSURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("events.nats.url failed to parse URL: %w", err)
	}
	switch u.Scheme {
	case "nats", "tls", "ws", "wss":
	default:
		return fmt.Errorf("events.nats.url scheme must be nats, tls, ws or wss, got: %s", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("events.nats.url host is required")
	}
	return nil
}
