package config

import (
	"fmt"
	"io"
	"strings"
)

// RenderEffective writes the resolved configuration as a human-readable
// annotated summary to w. This powers the "config" command, showing the
// effective values after all four override layers have been applied.
func RenderEffective(cfg *Config, path string, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", path)

	renderBusSection(ew, &cfg.Bus)
	renderPresenceSection(ew, &cfg.Presence)
	renderLoggingSection(ew, &cfg.Logging)
	renderJournalSection(ew, cfg)
	renderMetricsSection(ew, &cfg.Metrics)
	renderViewSection(ew, &cfg.View)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderBusSection(ew *errWriter, b *BusConfig) {
	ew.printf("[bus]\n")
	ew.printf("  url                = %q\n", b.URL)
	ew.printf("  call_timeout       = %q\n", b.CallTimeout)
	ew.printf("  reconnect_interval = %q\n", b.ReconnectInterval)
	ew.printf("\n")
}

func renderPresenceSection(ew *errWriter, p *PresenceConfig) {
	ew.printf("[presence]\n")
	ew.printf("  poll_interval = %q\n", p.PollInterval)
	ew.printf("\n")
}

func renderLoggingSection(ew *errWriter, l *LoggingConfig) {
	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", l.LogLevel)
	ew.printf("  log_format = %q\n", l.LogFormat)
	ew.printf("\n")
}

func renderJournalSection(ew *errWriter, cfg *Config) {
	ew.printf("[journal]\n")
	ew.printf("  enabled   = %t\n", cfg.Journal.Enabled)
	ew.printf("  path      = %q\n", cfg.JournalPath())
	ew.printf("  retention = %q\n", cfg.Journal.Retention)
	ew.printf("\n")
}

func renderMetricsSection(ew *errWriter, m *MetricsConfig) {
	ew.printf("[metrics]\n")

	if m.Listen == "" {
		ew.printf("  # disabled\n")
	} else {
		ew.printf("  listen = %q\n", m.Listen)
	}

	ew.printf("\n")
}

func renderViewSection(ew *errWriter, v *ViewConfig) {
	ew.printf("[view]\n")
	ew.printf("  color = %q\n", v.Color)

	if len(v.Hide) > 0 {
		ew.printf("  hide  = [%s]\n", joinQuoted(v.Hide))
	}
}

// joinQuoted formats a string slice as comma-separated quoted values.
func joinQuoted(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}

	return strings.Join(quoted, ", ")
}
