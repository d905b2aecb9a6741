package detect

import (
	"regexp"
	"strings"

	"github.com/luckyPipewrench/mcpscan/internal/finding"
)

type vulnPattern struct {
	name     string
	re       *regexp.Regexp
	severity finding.Severity
	vulnType finding.VulnType
	cwe      int
}

// CodeVulnsDetector flags generic code-level vulnerabilities with cheap
// line-oriented heuristics: command injection, path traversal, SQL
// injection, and unsafe deserialization. The semantic engine covers the
// same classes with structural queries; this detector is the high-recall
// first pass.
type CodeVulnsDetector struct {
	patterns []vulnPattern
}

// NewCodeVulnsDetector compiles the vulnerability pattern table.
func NewCodeVulnsDetector() *CodeVulnsDetector {
	entries := []struct {
		pattern  string
		name     string
		severity finding.Severity
		vulnType finding.VulnType
		cwe      int
	}{
		{`(?i)(os\.system|subprocess\.call|exec|eval|__import__)\s*\(`, "Command Injection Risk", finding.SeverityCritical, finding.TypeCommandInjection, 78},
		{`(?i)subprocess\.(run|Popen|call).*shell\s*=\s*True`, "Shell Injection with shell=True", finding.SeverityCritical, finding.TypeCommandInjection, 78},
		{`(?i)(open|read|write|file)\s*\([^)]*\+[^)]*\)`, "Path Traversal Risk", finding.SeverityHigh, finding.TypePathTraversal, 22},
		{`(?i)(execute|cursor\.execute|db\.query)\s*\([^)]*\+[^)]*\)`, "SQL Injection Risk", finding.SeverityCritical, finding.TypeSQLInjection, 89},
		{`(?i)(execute|query).*f["'].*\{.*\}.*["']`, "SQL Injection via f-string", finding.SeverityCritical, finding.TypeSQLInjection, 89},
		// RE2 has no negative lookahead; \b keeps yaml.load( matching while
		// yaml.load_all and safe_load variants pass through other rules.
		{`(?i)(pickle\.loads|yaml\.load\b|marshal\.loads)`, "Unsafe Deserialization", finding.SeverityHigh, finding.TypeUnsafeDeserialization, 502},
	}

	patterns := make([]vulnPattern, 0, len(entries))
	for _, e := range entries {
		patterns = append(patterns, vulnPattern{
			name:     e.name,
			re:       regexp.MustCompile(e.pattern),
			severity: e.severity,
			vulnType: e.vulnType,
			cwe:      e.cwe,
		})
	}
	return &CodeVulnsDetector{patterns: patterns}
}

// Name implements Detector.
func (d *CodeVulnsDetector) Name() string { return "code_vulns" }

// Scan tests every table entry against every line. A line can satisfy
// multiple entries, each producing one finding.
func (d *CodeVulnsDetector) Scan(content, filePath string) ([]finding.Finding, error) {
	var findings []finding.Finding
	ids := &idGen{prefix: "CV"}

	lines := strings.Split(content, "\n")
	for _, p := range d.patterns {
		for i, line := range lines {
			match := p.re.FindString(line)
			if match == "" {
				continue
			}
			lineNum := i + 1
			f := finding.Finding{
				ID:          ids.next(),
				Type:        p.vulnType,
				Severity:    p.severity,
				Title:       p.name,
				Description: p.name + " detected",
				Impact:      "May allow attackers to execute arbitrary code or access sensitive data.",
				Remediation: "Use safe alternatives and proper input validation.",
				Evidence: &finding.Evidence{
					Snippet: strings.TrimSpace(line),
					Context: map[string]any{
						"line_number":  lineNum,
						"matched_text": match,
					},
				},
				Confidence: 0.6,
				CWE:        p.cwe,
			}
			findings = append(findings, locate(f, filePath, lineNum))
		}
	}
	return findings, nil
}
