// Package suppress filters accepted findings out of scan results. Rules come
// from a YAML file, carry one or more patterns that must all match, and can
// carry an expiry so an acceptance does not outlive its review.
package suppress

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/luckyPipewrench/mcpscan/internal/finding"
)

// ErrInvalidFormat reports a suppression file that is not valid YAML or does
// not follow the rules schema.
var ErrInvalidFormat = errors.New("invalid suppression file format")

// PatternType selects how a pattern value is interpreted.
type PatternType string

const (
	PatternGlob     PatternType = "glob"      // doublestar glob over the file path
	PatternFile     PatternType = "file"      // exact file path
	PatternLine     PatternType = "line"      // "path:line"
	PatternVulnType PatternType = "vuln_type" // finding type name
)

// Pattern is one match condition inside a rule.
type Pattern struct {
	Type  PatternType `yaml:"type"`
	Value string      `yaml:"value"`
}

// Rule is one suppression entry. A rule suppresses a finding only when every
// one of its patterns matches.
type Rule struct {
	ID       string    `yaml:"id"`
	Reason   string    `yaml:"reason"`
	Author   string    `yaml:"author,omitempty"`
	Date     string    `yaml:"date,omitempty"`
	Expires  string    `yaml:"expires,omitempty"`
	Patterns []Pattern `yaml:"patterns"`
}

type rulesFile struct {
	Version      string `yaml:"version"`
	Suppressions []Rule `yaml:"suppressions"`
}

// Stats summarizes the loaded rule set.
type Stats struct {
	Total   int
	Active  int
	Expired int
}

// Manager holds a loaded rule set and applies it to findings.
type Manager struct {
	rules []Rule
	// now is replaceable in tests.
	now func() time.Time

	onSuppress func(f finding.Finding, r Rule)
}

// New builds a Manager from already-parsed rules.
func New(rules []Rule) (*Manager, error) {
	for i, r := range rules {
		if err := validateRule(r); err != nil {
			return nil, fmt.Errorf("%w: rule %d: %v", ErrInvalidFormat, i+1, err)
		}
	}
	return &Manager{rules: rules, now: time.Now}, nil
}

// Load reads a suppression file. A missing file yields an empty manager, so
// running without suppressions needs no configuration.
func Load(path string) (*Manager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manager{now: time.Now}, nil
		}
		return nil, fmt.Errorf("read suppressions: %w", err)
	}
	return Parse(data)
}

// Parse decodes rules from YAML.
func Parse(data []byte) (*Manager, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return New(f.Suppressions)
}

func validateRule(r Rule) error {
	if r.ID == "" {
		return errors.New("missing rule id")
	}
	if len(r.Patterns) == 0 {
		return errors.New("rule has no patterns")
	}
	for _, p := range r.Patterns {
		if err := validatePattern(p); err != nil {
			return err
		}
	}
	if r.Expires != "" {
		if _, err := parseExpiry(r.Expires); err != nil {
			return err
		}
	}
	return nil
}

func validatePattern(p Pattern) error {
	if p.Value == "" {
		return errors.New("empty pattern value")
	}
	switch p.Type {
	case PatternGlob:
		if !doublestar.ValidatePattern(p.Value) {
			return fmt.Errorf("bad glob %q", p.Value)
		}
	case PatternFile, PatternVulnType:
	case PatternLine:
		if _, _, err := splitLinePattern(p.Value); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown pattern type %q", p.Type)
	}
	return nil
}

// OnSuppress registers a callback invoked for each suppressed finding. Used
// for audit logging; failures there never block filtering.
func (m *Manager) OnSuppress(fn func(f finding.Finding, r Rule)) {
	m.onSuppress = fn
}

// ShouldSuppress reports whether any active rule fully matches the finding.
// The first matching rule wins. Expired rules simply stop matching; they are
// never removed from the set.
func (m *Manager) ShouldSuppress(f finding.Finding) (Rule, bool) {
	for _, r := range m.rules {
		if m.expired(r) {
			continue
		}
		if ruleMatches(r, f) {
			if m.onSuppress != nil {
				m.onSuppress(f, r)
			}
			return r, true
		}
	}
	return Rule{}, false
}

// Filter splits findings into kept and suppressed.
func (m *Manager) Filter(findings []finding.Finding) (kept, suppressed []finding.Finding) {
	for _, f := range findings {
		if _, ok := m.ShouldSuppress(f); ok {
			suppressed = append(suppressed, f)
		} else {
			kept = append(kept, f)
		}
	}
	return kept, suppressed
}

// Stats counts total, active, and expired rules.
func (m *Manager) Stats() Stats {
	s := Stats{Total: len(m.rules)}
	for _, r := range m.rules {
		if m.expired(r) {
			s.Expired++
		} else {
			s.Active++
		}
	}
	return s
}

func (m *Manager) expired(r Rule) bool {
	if r.Expires == "" {
		return false
	}
	t, err := parseExpiry(r.Expires)
	if err != nil {
		return false
	}
	return m.now().After(t)
}

func parseExpiry(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.Add(24*time.Hour - time.Nanosecond), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("bad expiry %q (want YYYY-MM-DD or RFC3339)", s)
}

// ruleMatches requires every pattern in the rule to match.
func ruleMatches(r Rule, f finding.Finding) bool {
	for _, p := range r.Patterns {
		if !patternMatches(p, f) {
			return false
		}
	}
	return true
}

func patternMatches(p Pattern, f finding.Finding) bool {
	file := ""
	line := 0
	if f.Location != nil {
		file = filepath.ToSlash(f.Location.File)
		line = f.Location.Line
	}

	switch p.Type {
	case PatternGlob:
		ok, err := doublestar.Match(p.Value, file)
		return err == nil && ok
	case PatternFile:
		return file != "" && file == filepath.ToSlash(p.Value)
	case PatternLine:
		pFile, pLine, err := splitLinePattern(p.Value)
		if err != nil {
			return false
		}
		return file == filepath.ToSlash(pFile) && line == pLine
	case PatternVulnType:
		return string(f.Type) == p.Value
	}
	return false
}

func splitLinePattern(pattern string) (string, int, error) {
	i := strings.LastIndex(pattern, ":")
	if i <= 0 || i == len(pattern)-1 {
		return "", 0, fmt.Errorf("bad line pattern %q (want path:line)", pattern)
	}
	n, err := strconv.Atoi(pattern[i+1:])
	if err != nil || n < 1 {
		return "", 0, fmt.Errorf("bad line number in %q", pattern)
	}
	return pattern[:i], n, nil
}
