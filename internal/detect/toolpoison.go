package detect

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/luckyPipewrench/mcpscan/internal/finding"
	"github.com/luckyPipewrench/mcpscan/internal/normalize"
)

type poisonPattern struct {
	name     string
	re       *regexp.Regexp
	severity finding.Severity
	// raw patterns match the description before Unicode scrubbing, so that
	// invisible characters the scrub would remove are still observable.
	raw bool
}

// ToolPoisoningDetector inspects MCP tool definitions for hidden
// instructions embedded in descriptions, plus a name/description mismatch
// heuristic for common utility tools.
type ToolPoisoningDetector struct {
	patterns []poisonPattern
}

// toolDef is the subset of an MCP tool definition the detector reads.
type toolDef struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type toolList struct {
	Tools []toolDef `json:"tools"`
}

// NewToolPoisoningDetector compiles the poisoning pattern table.
func NewToolPoisoningDetector() *ToolPoisoningDetector {
	entries := []struct {
		pattern  string
		name     string
		severity finding.Severity
		raw      bool
	}{
		{`(?i)\[hidden:.*?\]`, "Hidden bracket instruction", finding.SeverityCritical, false},
		{`(?i)\(secret:.*?\)`, "Secret parenthetical instruction", finding.SeverityCritical, false},
		{`(?i)<!--.*?(instruction|ignore|system|execute).*?-->`, "Suspicious HTML comment", finding.SeverityHigh, false},
		{`(?i)(silently|secretly|covertly|without\s+(telling|informing|alerting))\s+\w+`, "Covert action directive", finding.SeverityCritical, false},
		{`(?i)(ignore|override|bypass)\s+(the\s+)?(user|instructions|safety|restrictions)`, "Instruction override", finding.SeverityCritical, false},
		{`(?i)(system|admin|root)\s+(override|command|instruction)`, "System-level override", finding.SeverityCritical, false},
		{`(?i)(pretend|act\s+as\s+if|behave\s+like)\s+(you\s+are|this\s+is)`, "Impersonation directive", finding.SeverityHigh, false},
		{`(?i)do\s+not\s+(mention|reveal|tell|show|display)`, "Concealment directive", finding.SeverityHigh, false},
		{"[\u200b\u200c\u200d\u2060\ufeff]", "Zero-width characters", finding.SeverityMedium, true},
		{`(?i)(first|before\s+(anything|responding|answering)),?\s+(read|fetch|access|open)\s+[^\n]*?(file|url|http|/etc/|~/)`, "Pre-action file access", finding.SeverityCritical, false},
	}

	patterns := make([]poisonPattern, 0, len(entries))
	for _, e := range entries {
		patterns = append(patterns, poisonPattern{
			name:     e.name,
			re:       regexp.MustCompile(e.pattern),
			severity: e.severity,
			raw:      e.raw,
		})
	}
	return &ToolPoisoningDetector{patterns: patterns}
}

// Name implements Detector.
func (d *ToolPoisoningDetector) Name() string { return "tool_poisoning" }

// Scan parses the content as an MCP tool list (or a single tool definition)
// and checks each description. Content that is not valid JSON produces no
// findings and no error.
func (d *ToolPoisoningDetector) Scan(content, filePath string) ([]finding.Finding, error) {
	tools, ok := parseTools(content)
	if !ok {
		return nil, nil
	}

	var findings []finding.Finding
	ids := &idGen{prefix: "TP"}
	for _, tool := range tools {
		if tool.Name == "" {
			tool.Name = "unknown_tool"
		}
		findings = append(findings, d.scanTool(tool, filePath, ids)...)
	}
	return findings, nil
}

func parseTools(content string) ([]toolDef, bool) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || trimmed[0] != '{' {
		return nil, false
	}
	var list toolList
	if err := json.Unmarshal([]byte(trimmed), &list); err == nil && len(list.Tools) > 0 {
		return list.Tools, true
	}
	var single toolDef
	if err := json.Unmarshal([]byte(trimmed), &single); err == nil && single.Description != "" {
		return []toolDef{single}, true
	}
	return nil, false
}

func (d *ToolPoisoningDetector) scanTool(tool toolDef, filePath string, ids *idGen) []finding.Finding {
	var findings []finding.Finding
	scrubbed := normalize.Scrub(tool.Description)

	for _, p := range d.patterns {
		text := scrubbed
		if p.raw {
			text = tool.Description
		}
		match := p.re.FindString(text)
		if match == "" {
			continue
		}
		findings = append(findings, finding.Finding{
			ID:          ids.next(),
			Type:        finding.TypeToolPoisoning,
			Severity:    p.severity,
			Title:       "Tool Poisoning: " + p.name,
			Description: "Tool '" + tool.Name + "' contains a " + strings.ToLower(p.name) + " in its description",
			Location:    &finding.Location{File: filePath},
			Impact:      "Poisoned tool descriptions are read by the model on every call and can redirect it to exfiltrate data or take hidden actions.",
			Remediation: "Remove the offending directive from the tool description and review the tool's provenance.",
			Evidence: &finding.Evidence{
				Snippet: truncate(match, 120),
				Context: map[string]any{
					"tool_name":       tool.Name,
					"pattern_matched": p.name,
				},
			},
			Confidence: 0.85,
			CWE:        1427,
		})
	}

	if f, ok := d.checkMismatch(tool, filePath); ok {
		findings = append(findings, f)
	}
	return findings
}

// mismatchVocab maps a tool-name keyword to terms its description should not
// be dominated by. A calculator that talks about reading files is suspect.
var mismatchVocab = map[string][]string{
	"calculator": {"file", "directory", "network", "http", "password", "credential"},
	"timer":      {"file", "execute", "shell", "credential", "network"},
	"date":       {"file", "execute", "shell", "password", "upload"},
	"weather":    {"file", "execute", "credential", "ssh", "shell"},
}

func (d *ToolPoisoningDetector) checkMismatch(tool toolDef, filePath string) (finding.Finding, bool) {
	name := strings.ToLower(tool.Name)
	desc := strings.ToLower(tool.Description)
	for keyword, forbidden := range mismatchVocab {
		if !strings.Contains(name, keyword) {
			continue
		}
		for _, term := range forbidden {
			if !strings.Contains(desc, term) {
				continue
			}
			return finding.Finding{
				ID:          "TP-MISMATCH",
				Type:        finding.TypeToolPoisoning,
				Severity:    finding.SeverityHigh,
				Title:       "Tool name/description mismatch",
				Description: "Tool '" + tool.Name + "' is named like a " + keyword + " but its description mentions '" + term + "'",
				Location:    &finding.Location{File: filePath},
				Impact:      "A benign-sounding tool whose description grants unrelated capabilities is a common poisoning disguise.",
				Remediation: "Verify the tool does what its name claims, or rename it to reflect its actual behavior.",
				Evidence: &finding.Evidence{
					Snippet: truncate(tool.Description, 120),
					Context: map[string]any{
						"tool_name":      tool.Name,
						"expected_topic": keyword,
						"found_term":     term,
					},
				},
				Confidence: 0.6,
			}, true
		}
	}
	return finding.Finding{}, false
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
