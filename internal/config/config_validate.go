// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/sentinel/internal/logging"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags first, then the cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return formatValidationErrors(verrs)
		}
		return err
	}

	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level: invalid level %q", c.Logging.Level)
	}

	if err := validatePattern("monitor.rollback_pattern", c.Monitor.RollbackPattern); err != nil {
		return err
	}
	if err := validatePattern("monitor.undo_pattern", c.Monitor.UndoPattern); err != nil {
		return err
	}

	if c.Reputation.CachePath != "" && c.Reputation.CacheTTL <= 0 {
		return errors.New("reputation.cache_path requires a positive reputation.cache_ttl")
	}

	if c.Monitor.WatchdogTimeout > 0 && c.Monitor.WatchdogTimeout < c.Monitor.PollInterval {
		return fmt.Errorf("monitor.watchdog_timeout (%s) must not be shorter than monitor.poll_interval (%s)",
			c.Monitor.WatchdogTimeout, c.Monitor.PollInterval)
	}

	return nil
}

// validatePattern requires a compilable regex with exactly one capture group.
func validatePattern(field, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if re.NumSubexp() != 1 {
		return fmt.Errorf("%s: want exactly one capture group, got %d", field, re.NumSubexp())
	}
	return nil
}

// formatValidationErrors turns validator errors into one readable message.
func formatValidationErrors(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
