package output

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/luckyPipewrench/mcpscan/internal/finding"
)

func sampleResult() *finding.ScanResult {
	return finding.NewScanResult("/repo", []string{"secrets", "semantic"}, []finding.Finding{
		{
			ID:       "SEC-001",
			Type:     finding.TypeSecretsLeakage,
			Severity: finding.SeverityCritical,
			Title:    "Hardcoded API key",
			Location: &finding.Location{File: "src/config.py", Line: 12},
			Evidence: &finding.Evidence{Snippet: "key = sk-ab...yz123"},
			CWE:      798,
		},
		{
			ID:       "CV-001",
			Type:     finding.TypeCommandInjection,
			Severity: finding.SeverityMedium,
			Title:    "Possible command injection",
			Location: &finding.Location{File: "src/run.py", Line: 4},
		},
	}, finding.Metadata{ScanDurationMS: 5})
}

func TestNewUnsupportedFormat(t *testing.T) {
	_, err := New("xml", Options{})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestTerminalRender(t *testing.T) {
	r, err := New("terminal", Options{Color: false})
	if err != nil {
		t.Fatal(err)
	}
	out, err := r.Render(sampleResult())
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	for _, want := range []string{"src/config.py", "CRITICAL", "Hardcoded API key", "SEC-001", "2 issues", "1 critical"} {
		if !strings.Contains(out, want) {
			t.Errorf("terminal output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("color disabled but ANSI escapes present")
	}
}

func TestTerminalRenderColor(t *testing.T) {
	r, err := New("terminal", Options{Color: true})
	if err != nil {
		t.Fatal(err)
	}
	out, err := r.Render(sampleResult())
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if !strings.Contains(out, "\x1b[") {
		t.Error("color enabled but no ANSI escapes in output")
	}
}

func TestTerminalRenderClean(t *testing.T) {
	r, _ := New("terminal", Options{})
	out, err := r.Render(finding.NewScanResult("/repo", []string{"secrets"}, nil, finding.Metadata{}))
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if !strings.Contains(out, "No issues found") {
		t.Errorf("clean result output missing all-clear line:\n%s", out)
	}
}

func TestJSONRenderRoundTrips(t *testing.T) {
	r, _ := New("json", Options{})
	out, err := r.Render(sampleResult())
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	var decoded finding.ScanResult
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Summary.TotalIssues != 2 || len(decoded.Findings) != 2 {
		t.Errorf("decoded %d findings, summary %+v", len(decoded.Findings), decoded.Summary)
	}
}

func TestSARIFRender(t *testing.T) {
	r, _ := New("sarif", Options{})
	out, err := r.Render(sampleResult())
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}

	var log map[string]any
	if err := json.Unmarshal([]byte(out), &log); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if log["version"] != "2.1.0" {
		t.Errorf("version = %v, want 2.1.0", log["version"])
	}

	runs := log["runs"].([]any)
	run := runs[0].(map[string]any)
	results := run["results"].([]any)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	first := results[0].(map[string]any)
	if first["level"] != "error" {
		t.Errorf("critical finding level = %v, want error", first["level"])
	}
	second := results[1].(map[string]any)
	if second["level"] != "warning" {
		t.Errorf("medium finding level = %v, want warning", second["level"])
	}

	driver := run["tool"].(map[string]any)["driver"].(map[string]any)
	if driver["name"] != "mcpscan" {
		t.Errorf("driver name = %v, want mcpscan", driver["name"])
	}
	rules := driver["rules"].([]any)
	if len(rules) != 2 {
		t.Errorf("got %d rules, want 2 distinct vuln types", len(rules))
	}
}

func TestSARIFLevelMapping(t *testing.T) {
	tests := []struct {
		sev  finding.Severity
		want string
	}{
		{finding.SeverityCritical, "error"},
		{finding.SeverityHigh, "error"},
		{finding.SeverityMedium, "warning"},
		{finding.SeverityLow, "note"},
	}
	for _, tt := range tests {
		if got := sarifLevel(tt.sev); got != tt.want {
			t.Errorf("sarifLevel(%v) = %q, want %q", tt.sev, got, tt.want)
		}
	}
}
