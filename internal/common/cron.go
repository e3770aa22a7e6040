package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// quartzParser parses Quartz-style expressions with a mandatory seconds
// field. The optional 7th (year) field is stripped before parsing.
var quartzParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// normalizeQuartzExpression validates field count and drops the optional
// year field. Five-field POSIX crons are rejected so a job authored for a
// Quartz scheduler never silently shifts its cadence by one field.
func normalizeQuartzExpression(expr string) (string, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return "", fmt.Errorf("cron expression is empty")
	}
	if strings.HasPrefix(trimmed, "@") {
		return trimmed, nil
	}

	fields := strings.Fields(trimmed)
	switch len(fields) {
	case 6:
		return strings.Join(fields, " "), nil
	case 7:
		// Quartz optional year field; the trigger engine ignores it.
		return strings.Join(fields[:6], " "), nil
	default:
		return "", fmt.Errorf("expected 6 or 7 fields (Quartz dialect), got %d", len(fields))
	}
}

// ValidateCronExpression checks a Quartz-style 6/7-field cron expression.
func ValidateCronExpression(expr string) error {
	normalized, err := normalizeQuartzExpression(expr)
	if err != nil {
		return ConfigurationError("invalid cron expression %q: %v", expr, err)
	}
	if _, err := quartzParser.Parse(normalized); err != nil {
		return ConfigurationError("invalid cron expression %q: %v", expr, err)
	}
	return nil
}

// ParseCronSchedule parses a Quartz-style expression into a schedule.
func ParseCronSchedule(expr string) (cron.Schedule, error) {
	normalized, err := normalizeQuartzExpression(expr)
	if err != nil {
		return nil, ConfigurationError("invalid cron expression %q: %v", expr, err)
	}
	schedule, err := quartzParser.Parse(normalized)
	if err != nil {
		return nil, ConfigurationError("invalid cron expression %q: %v", expr, err)
	}
	return schedule, nil
}

// NextCronFire computes the next fire time strictly after from.
func NextCronFire(expr string, from time.Time) (time.Time, error) {
	schedule, err := ParseCronSchedule(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(from), nil
}

// QuartzParser exposes the shared parser for the cron runner so scheduled
// jobs and ad-hoc validation agree on the dialect.
func QuartzParser() cron.Parser {
	return quartzParser
}
