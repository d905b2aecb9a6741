package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/luckyPipewrench/mcpscan/internal/finding"
)

// terminalRenderer prints a human-readable report. Styling is driven by an
// explicit color flag rather than global terminal detection, so output is
// reproducible in CI and in tests.
type terminalRenderer struct {
	header   lipgloss.Style
	critical lipgloss.Style
	high     lipgloss.Style
	medium   lipgloss.Style
	low      lipgloss.Style
	dim      lipgloss.Style
	ok       lipgloss.Style
}

func newTerminalRenderer(color bool) *terminalRenderer {
	r := lipgloss.NewRenderer(io.Discard)
	if color {
		r.SetColorProfile(termenv.ANSI256)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}
	return &terminalRenderer{
		header:   r.NewStyle().Bold(true),
		critical: r.NewStyle().Bold(true).Foreground(lipgloss.Color("201")),
		high:     r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		medium:   r.NewStyle().Foreground(lipgloss.Color("214")),
		low:      r.NewStyle().Foreground(lipgloss.Color("245")),
		dim:      r.NewStyle().Faint(true),
		ok:       r.NewStyle().Foreground(lipgloss.Color("42")),
	}
}

func (t *terminalRenderer) severityStyle(s finding.Severity) lipgloss.Style {
	switch s {
	case finding.SeverityCritical:
		return t.critical
	case finding.SeverityHigh:
		return t.high
	case finding.SeverityMedium:
		return t.medium
	default:
		return t.low
	}
}

func (t *terminalRenderer) Render(result *finding.ScanResult) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", t.header.Render("mcpscan "+result.Version))
	fmt.Fprintf(&b, "Target:  %s\n", result.Target)
	fmt.Fprintf(&b, "Engines: %s\n", strings.Join(result.Engines, ", "))
	fmt.Fprintf(&b, "Scan ID: %s\n\n", t.dim.Render(result.ScanID))

	if len(result.Findings) == 0 {
		b.WriteString(t.ok.Render("No issues found.") + "\n")
		return b.String(), nil
	}

	// Group by file for readability; findings within a file keep scan order.
	byFile := make(map[string][]finding.Finding)
	var files []string
	for _, f := range result.Findings {
		file := "(no file)"
		if f.Location != nil && f.Location.File != "" {
			file = f.Location.File
		}
		if _, seen := byFile[file]; !seen {
			files = append(files, file)
		}
		byFile[file] = append(byFile[file], f)
	}
	sort.Strings(files)

	for _, file := range files {
		fmt.Fprintf(&b, "%s\n", t.header.Render(file))
		for _, f := range byFile[file] {
			sev := t.severityStyle(f.Severity).Render(strings.ToUpper(f.Severity.String()))
			loc := ""
			if f.Location != nil && f.Location.Line > 0 {
				loc = fmt.Sprintf(":%d", f.Location.Line)
			}
			fmt.Fprintf(&b, "  %s %s %s%s\n", sev, f.Title, t.dim.Render(f.ID), loc)
			if f.Evidence != nil && f.Evidence.Snippet != "" {
				fmt.Fprintf(&b, "    %s\n", t.dim.Render(f.Evidence.Snippet))
			}
			if f.Remediation != "" {
				fmt.Fprintf(&b, "    fix: %s\n", f.Remediation)
			}
		}
		b.WriteString("\n")
	}

	s := result.Summary
	fmt.Fprintf(&b, "%s %d issues (%d critical, %d high, %d medium, %d low)\n",
		t.header.Render("Summary:"), s.TotalIssues, s.Critical, s.High, s.Medium, s.Low)
	risk := result.Summary.RiskLevel()
	fmt.Fprintf(&b, "Risk: %s (%d/100)\n", t.severityForRisk(risk).Render(risk), s.RiskScore)

	return b.String(), nil
}

func (t *terminalRenderer) severityForRisk(level string) lipgloss.Style {
	switch level {
	case "Critical":
		return t.critical
	case "High":
		return t.high
	case "Medium":
		return t.medium
	default:
		return t.ok
	}
}
