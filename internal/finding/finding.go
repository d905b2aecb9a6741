// Package finding defines the vocabulary shared by all detectors and
// consumers: severities, vulnerability types, findings, and the summary
// scoring that turns a finding list into a risk score.
package finding

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Version is the scanner version stamped into every ScanResult.
// Overridden at build time via ldflags.
var Version = "0.1.0-dev"

// Severity orders findings from Low to Critical. The ordering is total and
// drives both threshold filtering and risk scoring.
type Severity int

// Severity levels, lowest to highest.
const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityHigh:
		return "high"
	case SeverityMedium:
		return "medium"
	default:
		return "low"
	}
}

// ParseSeverity converts a case-insensitive severity name to a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical, nil
	case "high":
		return SeverityHigh, nil
	case "medium":
		return SeverityMedium, nil
	case "low":
		return SeverityLow, nil
	}
	return SeverityLow, fmt.Errorf("unknown severity %q (want critical, high, medium, or low)", s)
}

// MarshalJSON renders severities as lowercase strings.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON parses severities from lowercase strings.
func (s *Severity) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	parsed, err := ParseSeverity(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// VulnType identifies the class of a finding. The set is closed: detectors
// only emit the constants below.
type VulnType string

// Vulnerability type constants.
const (
	TypeSecretsLeakage        VulnType = "secrets_leakage"
	TypeCommandInjection      VulnType = "command_injection"
	TypeSQLInjection          VulnType = "sql_injection"
	TypePathTraversal         VulnType = "path_traversal"
	TypeUnsafeDeserialization VulnType = "unsafe_deserialization"
	TypeToolPoisoning         VulnType = "tool_poisoning"
	TypePromptInjection       VulnType = "prompt_injection"
	TypeXSS                   VulnType = "xss"
	TypeSensitiveFileAccess   VulnType = "sensitive_file_access"
	TypeTaintedDataFlow       VulnType = "tainted_data_flow"
)

// Location pins a finding to a file and, when known, a 1-based line/column.
type Location struct {
	File   string `json:"file"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// Evidence carries a redacted snippet plus structured context for a finding.
// Snippets must never contain an unredacted secret.
type Evidence struct {
	Snippet string         `json:"snippet,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// Finding is one reported security issue.
//
// IDs are assigned from a per-call counter inside each detector and are NOT
// globally unique: a multi-file scan can emit the same ID from two files.
// Callers needing stable identity should key on (file, line, type, title).
type Finding struct {
	ID          string    `json:"id"`
	Type        VulnType  `json:"type"`
	Severity    Severity  `json:"severity"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    *Location `json:"location,omitempty"`
	Impact      string    `json:"impact,omitempty"`
	Remediation string    `json:"remediation,omitempty"`
	Evidence    *Evidence `json:"evidence,omitempty"`
	Confidence  float64   `json:"confidence"`
	CWE         int       `json:"cwe,omitempty"`
}

// Summary aggregates finding counts per severity and the derived risk score.
type Summary struct {
	TotalIssues int `json:"total_issues"`
	Critical    int `json:"critical"`
	High        int `json:"high"`
	Medium      int `json:"medium"`
	Low         int `json:"low"`
	RiskScore   int `json:"risk_score"`
}

// Summarize computes a Summary from a finding list.
// Risk score = min(100, critical*40 + high*20 + medium*10 + low*5).
func Summarize(findings []Finding) Summary {
	var s Summary
	s.TotalIssues = len(findings)
	for _, f := range findings {
		switch f.Severity {
		case SeverityCritical:
			s.Critical++
		case SeverityHigh:
			s.High++
		case SeverityMedium:
			s.Medium++
		default:
			s.Low++
		}
	}
	score := s.Critical*40 + s.High*20 + s.Medium*10 + s.Low*5
	if score > 100 {
		score = 100
	}
	s.RiskScore = score
	return s
}

// RiskLevel buckets the risk score: 0-20 Low, 21-40 Medium, 41-70 High,
// 71-100 Critical.
func (s Summary) RiskLevel() string {
	switch {
	case s.RiskScore <= 20:
		return "Low"
	case s.RiskScore <= 40:
		return "Medium"
	case s.RiskScore <= 70:
		return "High"
	default:
		return "Critical"
	}
}

// CountAtOrAbove returns how many findings sit at or above min.
func (s Summary) CountAtOrAbove(min Severity) int {
	switch min {
	case SeverityCritical:
		return s.Critical
	case SeverityHigh:
		return s.Critical + s.High
	case SeverityMedium:
		return s.Critical + s.High + s.Medium
	default:
		return s.TotalIssues
	}
}

// HasAtOrAbove reports whether any finding sits at or above min.
func (s Summary) HasAtOrAbove(min Severity) bool {
	switch min {
	case SeverityCritical:
		return s.Critical > 0
	case SeverityHigh:
		return s.Critical > 0 || s.High > 0
	case SeverityMedium:
		return s.Critical > 0 || s.High > 0 || s.Medium > 0
	default:
		return s.TotalIssues > 0
	}
}

// Metadata records how a scan ran.
type Metadata struct {
	ScanDurationMS int64    `json:"scan_duration_ms"`
	FilesScanned   int      `json:"files_scanned"`
	EnginesUsed    []string `json:"engines_used"`
}

// ScanResult is the complete outcome of one scan invocation. It is created
// once by the orchestrator and immutable afterwards, except for
// FilterBySeverity which removes findings and re-derives the summary.
type ScanResult struct {
	Version   string    `json:"version"`
	ScanID    string    `json:"scan_id"`
	Timestamp time.Time `json:"timestamp"`
	Target    string    `json:"target"`
	Engines   []string  `json:"engines"`
	Summary   Summary   `json:"summary"`
	Findings  []Finding `json:"findings"`
	Metadata  Metadata  `json:"metadata"`
}

// NewScanResult builds a ScanResult, deriving the summary from findings.
func NewScanResult(target string, engines []string, findings []Finding, meta Metadata) *ScanResult {
	return &ScanResult{
		Version:   Version,
		ScanID:    uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Target:    target,
		Engines:   engines,
		Summary:   Summarize(findings),
		Findings:  findings,
		Metadata:  meta,
	}
}

// FilterBySeverity drops findings below min and re-derives the summary.
func (r *ScanResult) FilterBySeverity(min Severity) {
	kept := r.Findings[:0]
	for _, f := range r.Findings {
		if f.Severity >= min {
			kept = append(kept, f)
		}
	}
	r.Findings = kept
	r.Summary = Summarize(r.Findings)
}

// HighestSeverity returns the highest severity present, and false when the
// result has no findings.
func (r *ScanResult) HighestSeverity() (Severity, bool) {
	if len(r.Findings) == 0 {
		return SeverityLow, false
	}
	max := SeverityLow
	for _, f := range r.Findings {
		if f.Severity > max {
			max = f.Severity
		}
	}
	return max, true
}
