package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
	"time"
)

// Validation range constants.
const (
	minCallTimeout       = 10 * time.Millisecond
	maxCallTimeout       = time.Minute
	minReconnectInterval = 100 * time.Millisecond
	minPollInterval      = 50 * time.Millisecond
	minJournalRetention  = time.Hour
)

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json"}
	validColors     = []string{"auto", "always", "never"}
	validSchemes    = []string{"ws", "wss"}
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateBus(&cfg.Bus)...)
	errs = append(errs, validatePresence(&cfg.Presence)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateJournal(&cfg.Journal)...)
	errs = append(errs, validateMetrics(&cfg.Metrics)...)
	errs = append(errs, validateView(&cfg.View)...)

	return errors.Join(errs...)
}

func validateBus(b *BusConfig) []error {
	var errs []error

	u, err := url.Parse(b.URL)

	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("bus.url: %w", err))
	case !slices.Contains(validSchemes, u.Scheme):
		errs = append(errs, fmt.Errorf("bus.url: scheme must be ws or wss, got %q", u.Scheme))
	case u.Host == "":
		errs = append(errs, fmt.Errorf("bus.url: missing host in %q", b.URL))
	}

	if err := validateDurationRange("bus.call_timeout", b.CallTimeout, minCallTimeout, maxCallTimeout); err != nil {
		errs = append(errs, err)
	}

	if err := validateDurationRange("bus.reconnect_interval", b.ReconnectInterval, minReconnectInterval, 0); err != nil {
		errs = append(errs, err)
	}

	return errs
}

func validatePresence(p *PresenceConfig) []error {
	if err := validateDurationRange("presence.poll_interval", p.PollInterval, minPollInterval, 0); err != nil {
		return []error{err}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !slices.Contains(validLogLevels, strings.ToLower(l.LogLevel)) {
		errs = append(errs, fmt.Errorf("logging.log_level: must be one of %s, got %q",
			strings.Join(validLogLevels, ", "), l.LogLevel))
	}

	if !slices.Contains(validLogFormats, l.LogFormat) {
		errs = append(errs, fmt.Errorf("logging.log_format: must be one of %s, got %q",
			strings.Join(validLogFormats, ", "), l.LogFormat))
	}

	return errs
}

func validateJournal(j *JournalConfig) []error {
	if err := validateDurationRange("journal.retention", j.Retention, minJournalRetention, 0); err != nil {
		return []error{err}
	}

	return nil
}

func validateMetrics(m *MetricsConfig) []error {
	if m.Listen == "" {
		return nil
	}

	if _, _, err := net.SplitHostPort(m.Listen); err != nil {
		return []error{fmt.Errorf("metrics.listen: %w", err)}
	}

	return nil
}

func validateView(v *ViewConfig) []error {
	var errs []error

	if !slices.Contains(validColors, v.Color) {
		errs = append(errs, fmt.Errorf("view.color: must be one of %s, got %q",
			strings.Join(validColors, ", "), v.Color))
	}

	for i, pattern := range v.Hide {
		if strings.TrimSpace(pattern) == "" {
			errs = append(errs, fmt.Errorf("view.hide[%d]: empty pattern", i))
		}
	}

	return errs
}

// validateDurationRange parses a Go duration string and checks it against
// the bounds. A zero max means unbounded.
func validateDurationRange(field, value string, minDur, maxDur time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	if d < minDur {
		return fmt.Errorf("%s: must be >= %s, got %s", field, minDur, d)
	}

	if maxDur > 0 && d > maxDur {
		return fmt.Errorf("%s: must be <= %s, got %s", field, maxDur, d)
	}

	return nil
}
