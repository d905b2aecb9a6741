// Package audit provides structured JSON audit logging for scanner events.
package audit

import (
	"io"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/luckyPipewrench/mcpscan/internal/finding"
	"github.com/luckyPipewrench/mcpscan/internal/suppress"
)

// sanitizeString strips control characters and ANSI escape sequences from a
// string before logging. Prevents terminal escape injection via crafted file
// paths or tool descriptions (e.g., \x1b[2J to clear screen when tailing
// audit logs).
func sanitizeString(s string) string {
	// Fast path: most strings have no control characters.
	clean := true
	for _, r := range s {
		if r != '\t' && r != '\n' && (unicode.IsControl(r) || r == '\x1b') {
			clean = false
			break
		}
	}
	if clean {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	inEscape := false
	for _, r := range s {
		if inEscape {
			// ANSI escape sequences end with a letter (A-Z, a-z).
			if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') {
				inEscape = false
			}
			continue
		}
		if r == '\x1b' {
			inEscape = true
			continue
		}
		// Allow tabs and newlines but strip other control chars.
		if r != '\t' && r != '\n' && unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EventType describes the kind of audit event.
type EventType string

// Event type constants for structured audit log entries.
const (
	EventScanComplete EventType = "scan_complete"
	EventSuppressed   EventType = "suppressed"
	EventProxyScan    EventType = "proxy_scan"
	EventProxyBlocked EventType = "proxy_blocked"
	EventConfigReload EventType = "config_reload"
	EventError        EventType = "error"
)

// Logger handles structured audit logging using zerolog.
type Logger struct {
	zl         zerolog.Logger
	fileHandle *os.File // non-nil if logging to file
}

// New creates a new audit logger. The caller should call Close when done.
func New(format, output, filePath string) (*Logger, error) {
	var writers []io.Writer

	if output == "stderr" || output == "both" {
		if format == "text" {
			writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		} else {
			writers = append(writers, os.Stderr)
		}
	}

	var fileHandle *os.File
	if output == "file" || output == "both" {
		f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) //nolint:gosec // G304: path validated by config layer
		if err != nil {
			return nil, err
		}
		writers = append(writers, f)
		fileHandle = f
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	var w io.Writer
	if len(writers) == 1 {
		w = writers[0]
	} else {
		w = zerolog.MultiLevelWriter(writers...)
	}

	zl := zerolog.New(w).With().
		Timestamp().
		Str("component", "mcpscan").
		Logger()

	return &Logger{zl: zl, fileHandle: fileHandle}, nil
}

// NewNop returns a no-op logger that discards all events.
func NewNop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// Writer returns a logger writing JSON events to w. Used in tests.
func Writer(w io.Writer) *Logger {
	return &Logger{zl: zerolog.New(w).With().Timestamp().Str("component", "mcpscan").Logger()}
}

// LogScanComplete records a finished scan with its summary counts.
func (l *Logger) LogScanComplete(result *finding.ScanResult) {
	if l == nil {
		return
	}
	l.zl.Info().
		Str("event", string(EventScanComplete)).
		Str("scan_id", result.ScanID).
		Str("target", sanitizeString(result.Target)).
		Int("total_issues", result.Summary.TotalIssues).
		Int("critical", result.Summary.Critical).
		Int("high", result.Summary.High).
		Int("risk_score", result.Summary.RiskScore).
		Int64("duration_ms", result.Metadata.ScanDurationMS).
		Msg("scan complete")
}

// LogSuppressed records one finding removed by a suppression rule.
func (l *Logger) LogSuppressed(f finding.Finding, r suppress.Rule) {
	if l == nil {
		return
	}
	ev := l.zl.Info().
		Str("event", string(EventSuppressed)).
		Str("finding_id", sanitizeString(f.ID)).
		Str("vuln_type", string(f.Type)).
		Str("severity", f.Severity.String()).
		Str("rule_id", sanitizeString(r.ID)).
		Str("reason", sanitizeString(r.Reason))
	if f.Location != nil {
		ev = ev.Str("file", sanitizeString(f.Location.File)).Int("line", f.Location.Line)
	}
	ev.Msg("finding suppressed")
}

// LogProxyScan records a proxied tool call that was scanned.
func (l *Logger) LogProxyScan(path string, findings int, blocked bool) {
	if l == nil {
		return
	}
	event := EventProxyScan
	if blocked {
		event = EventProxyBlocked
	}
	l.zl.Info().
		Str("event", string(event)).
		Str("path", sanitizeString(path)).
		Int("findings", findings).
		Bool("blocked", blocked).
		Msg("proxy scan")
}

// LogConfigReload records a configuration reload attempt.
func (l *Logger) LogConfigReload(path string, err error) {
	if l == nil {
		return
	}
	ev := l.zl.Info().
		Str("event", string(EventConfigReload)).
		Str("path", sanitizeString(path))
	if err != nil {
		ev = l.zl.Error().
			Str("event", string(EventConfigReload)).
			Str("path", sanitizeString(path)).
			Err(err)
	}
	ev.Msg("config reload")
}

// LogError records a non-fatal scanner error.
func (l *Logger) LogError(context string, err error) {
	if l == nil {
		return
	}
	l.zl.Error().
		Str("event", string(EventError)).
		Str("context", sanitizeString(context)).
		Err(err).
		Msg("scanner error")
}

// Close releases the log file handle, if any.
func (l *Logger) Close() error {
	if l == nil || l.fileHandle == nil {
		return nil
	}
	return l.fileHandle.Close()
}
