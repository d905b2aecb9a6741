package detect

import (
	"regexp"
	"strings"

	"github.com/luckyPipewrench/mcpscan/internal/finding"
	"github.com/luckyPipewrench/mcpscan/internal/normalize"
)

// Risk score weights per severity; the total is capped at 1.0.
const (
	riskWeightCritical = 0.4
	riskWeightHigh     = 0.3
	riskWeightMedium   = 0.15
	riskWeightLow      = 0.05
)

// specialChars is the fixed set counted by the density heuristic.
const specialChars = "[]{}()<>|\\"

// specialCharDensityLimit flags text where more than 15% of characters come
// from specialChars. Legitimate prose stays far below this.
const specialCharDensityLimit = 0.15

// roleMarkerRe matches a block that opens with an LLM conversation role.
var roleMarkerRe = regexp.MustCompile(`(?i)^\s*(system|assistant|user)\s*:`)

type injectionPattern struct {
	name     string
	re       *regexp.Regexp
	severity finding.Severity
}

// PromptInjectionDetector finds prompt injection attempts in text: pattern
// table hits plus two structural heuristics that run independently of the
// table.
type PromptInjectionDetector struct {
	patterns []injectionPattern
}

// NewPromptInjectionDetector compiles the injection pattern table.
func NewPromptInjectionDetector() *PromptInjectionDetector {
	entries := []struct {
		pattern  string
		name     string
		severity finding.Severity
	}{
		{`(?i)ignore\s+(all\s+)?(previous|prior|above|earlier)\s+(instructions|prompts|commands|rules|directives)`, "Ignore previous instructions", finding.SeverityHigh},
		{`(?i)disregard\s+(all\s+)?(previous|prior|above|earlier)\s+(instructions|prompts|commands)`, "Disregard previous instructions", finding.SeverityHigh},
		{`(?i)forget\s+(everything|all\s+previous|what\s+you\s+were\s+told)`, "Forget previous context", finding.SeverityHigh},
		{`(?i)(you\s+are\s+now|act\s+as|pretend\s+to\s+be|you\s+must\s+be)\s+(a\s+)?(developer|admin|root|system|hacker|god)`, "Role manipulation", finding.SeverityHigh},
		{`(?i)system:\s*[^\n]{10,}`, "System role injection", finding.SeverityCritical},
		{`(?i)assistant:\s*(ignore|disregard|forget)`, "Assistant role injection", finding.SeverityHigh},
		{"(?i)(\\]\\]\\]|\\}\\}\\}|```\\s*end)", "Delimiter manipulation", finding.SeverityMedium},
		{`(?i)(reveal|output|print)\s+(your\s+)?(system\s+prompt|instructions)`, "System prompt extraction", finding.SeverityMedium},
	}

	patterns := make([]injectionPattern, 0, len(entries))
	for _, e := range entries {
		patterns = append(patterns, injectionPattern{
			name:     e.name,
			re:       regexp.MustCompile(e.pattern),
			severity: e.severity,
		})
	}
	return &PromptInjectionDetector{patterns: patterns}
}

// Name implements Detector.
func (d *PromptInjectionDetector) Name() string { return "prompt_injection" }

// Scan runs the pattern table line by line over scrubbed text, then the
// density and role-marker heuristics over the whole content.
func (d *PromptInjectionDetector) Scan(content, filePath string) ([]finding.Finding, error) {
	var findings []finding.Finding
	ids := &idGen{prefix: "PI"}

	scrubbed := normalize.Scrub(content)
	lines := strings.Split(scrubbed, "\n")
	for _, p := range d.patterns {
		for i, line := range lines {
			match := p.re.FindString(line)
			if match == "" {
				continue
			}
			lineNum := i + 1
			f := finding.Finding{
				ID:          ids.next(),
				Type:        finding.TypePromptInjection,
				Severity:    p.severity,
				Title:       "Potential Prompt Injection: " + p.name,
				Description: p.name + " pattern found in content",
				Impact:      "Prompt injection can lead to data exfiltration, unauthorized actions, and bypassing of safety layers.",
				Remediation: "Validate and sanitize any text passed to a language model. Strip or escape instruction-like phrasing.",
				Evidence: &finding.Evidence{
					Snippet: strings.TrimSpace(line),
					Context: map[string]any{
						"line_number":     lineNum,
						"pattern_matched": p.name,
					},
				},
				Confidence: 0.75,
			}
			findings = append(findings, locate(f, filePath, lineNum))
		}
	}

	if f, ok := d.checkSpecialCharDensity(scrubbed, filePath); ok {
		f.ID = ids.next()
		findings = append(findings, f)
	}
	if f, ok := d.checkRoleMarkerBlocks(scrubbed, filePath); ok {
		f.ID = ids.next()
		findings = append(findings, f)
	}

	return findings, nil
}

// RiskScore sums severity-weighted contributions of each matching pattern
// over arbitrary text and caps the result at 1.0.
func (d *PromptInjectionDetector) RiskScore(text string) float64 {
	scrubbed := normalize.Scrub(text)
	score := 0.0
	for _, p := range d.patterns {
		if !p.re.MatchString(scrubbed) {
			continue
		}
		switch p.severity {
		case finding.SeverityCritical:
			score += riskWeightCritical
		case finding.SeverityHigh:
			score += riskWeightHigh
		case finding.SeverityMedium:
			score += riskWeightMedium
		default:
			score += riskWeightLow
		}
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}

// checkSpecialCharDensity flags text where bracket/pipe/backslash characters
// exceed 15% of the total. Very short text is skipped to avoid noise.
func (d *PromptInjectionDetector) checkSpecialCharDensity(content, filePath string) (finding.Finding, bool) {
	runes := []rune(content)
	if len(runes) < 20 {
		return finding.Finding{}, false
	}
	special := 0
	for _, r := range runes {
		if strings.ContainsRune(specialChars, r) {
			special++
		}
	}
	density := float64(special) / float64(len(runes))
	if density <= specialCharDensityLimit {
		return finding.Finding{}, false
	}
	f := finding.Finding{
		Type:        finding.TypePromptInjection,
		Severity:    finding.SeverityMedium,
		Title:       "Excessive special character density",
		Description: "Content contains an unusually high share of bracket, pipe, and backslash characters, a common obfuscation technique for injected instructions.",
		Impact:      "Obfuscated delimiters can smuggle instructions past keyword filters.",
		Remediation: "Review the content manually; strip structural delimiters from text shown to a model.",
		Evidence: &finding.Evidence{
			Context: map[string]any{
				"density":       density,
				"special_chars": special,
				"total_chars":   len(runes),
			},
		},
		Confidence: 0.5,
	}
	if filePath != "" {
		f.Location = &finding.Location{File: filePath}
	}
	return f, true
}

// checkRoleMarkerBlocks flags multi-newline separated blocks that open with
// a conversation role marker, which mimics a chat transcript injected into
// otherwise flat text.
func (d *PromptInjectionDetector) checkRoleMarkerBlocks(content, filePath string) (finding.Finding, bool) {
	blocks := strings.Split(content, "\n\n")
	if len(blocks) < 2 {
		return finding.Finding{}, false
	}
	// The first block is the legitimate opening; only injected later blocks
	// are suspicious.
	for _, block := range blocks[1:] {
		if !roleMarkerRe.MatchString(block) {
			continue
		}
		f := finding.Finding{
			Type:        finding.TypePromptInjection,
			Severity:    finding.SeverityHigh,
			Title:       "Suspicious role-marker block",
			Description: "A paragraph separated by blank lines opens with a conversation role marker (system:/assistant:/user:), mimicking an injected chat transcript.",
			Impact:      "Fake transcript turns can steer a model into treating attacker text as prior conversation.",
			Remediation: "Strip or escape role markers from untrusted text before it reaches a model.",
			Evidence: &finding.Evidence{
				Snippet: strings.TrimSpace(firstLine(block)),
			},
			Confidence: 0.6,
		}
		if filePath != "" {
			f.Location = &finding.Location{File: filePath}
		}
		return f, true
	}
	return finding.Finding{}, false
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
