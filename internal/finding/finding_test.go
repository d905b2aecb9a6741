package finding

import (
	"encoding/json"
	"testing"
)

func mk(sev Severity) Finding {
	return Finding{
		ID:       "TEST-001",
		Type:     TypeToolPoisoning,
		Severity: sev,
		Title:    "test",
	}
}

func TestSeverityOrdering(t *testing.T) {
	order := []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
	for i := 0; i < len(order)-1; i++ {
		if order[i] >= order[i+1] {
			t.Errorf("expected %s < %s", order[i], order[i+1])
		}
	}
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in      string
		want    Severity
		wantErr bool
	}{
		{"critical", SeverityCritical, false},
		{"HIGH", SeverityHigh, false},
		{" Medium ", SeverityMedium, false},
		{"low", SeverityLow, false},
		{"bogus", SeverityLow, true},
		{"", SeverityLow, true},
	}
	for _, tt := range tests {
		got, err := ParseSeverity(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSeverity(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseSeverity(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestSeverityJSONRoundTrip(t *testing.T) {
	b, err := json.Marshal(SeverityHigh)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"high"` {
		t.Errorf("marshal = %s, want %q", b, "high")
	}
	var s Severity
	if err := json.Unmarshal([]byte(`"critical"`), &s); err != nil {
		t.Fatal(err)
	}
	if s != SeverityCritical {
		t.Errorf("unmarshal = %s, want critical", s)
	}
}

func TestSummarize_RiskScoreClamped(t *testing.T) {
	// 2 critical + 1 high + 1 medium + 1 low = 115 raw, clamped to 100.
	findings := []Finding{
		mk(SeverityCritical), mk(SeverityCritical),
		mk(SeverityHigh), mk(SeverityMedium), mk(SeverityLow),
	}
	s := Summarize(findings)
	if s.TotalIssues != 5 || s.Critical != 2 || s.High != 1 || s.Medium != 1 || s.Low != 1 {
		t.Errorf("unexpected counts: %+v", s)
	}
	if s.RiskScore != 100 {
		t.Errorf("risk score = %d, want 100", s.RiskScore)
	}
}

func TestSummarize_Monotonic(t *testing.T) {
	base := Summarize([]Finding{mk(SeverityMedium)})
	more := Summarize([]Finding{mk(SeverityMedium), mk(SeverityLow)})
	if more.RiskScore < base.RiskScore {
		t.Errorf("risk score decreased when adding a finding: %d -> %d", base.RiskScore, more.RiskScore)
	}
	if Summarize(nil).RiskScore != 0 {
		t.Error("empty finding list should score 0")
	}
}

func TestRiskLevelBuckets(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{0, "Low"}, {20, "Low"},
		{21, "Medium"}, {40, "Medium"},
		{41, "High"}, {70, "High"},
		{71, "Critical"}, {100, "Critical"},
	}
	for _, tt := range tests {
		s := Summary{RiskScore: tt.score}
		if got := s.RiskLevel(); got != tt.want {
			t.Errorf("RiskLevel(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestHasAtOrAbove(t *testing.T) {
	s := Summarize([]Finding{mk(SeverityHigh), mk(SeverityMedium), mk(SeverityLow)})
	if !s.HasAtOrAbove(SeverityLow) || !s.HasAtOrAbove(SeverityMedium) || !s.HasAtOrAbove(SeverityHigh) {
		t.Error("expected issues at low, medium, and high")
	}
	if s.HasAtOrAbove(SeverityCritical) {
		t.Error("no critical findings expected")
	}
}

func TestFilterBySeverity(t *testing.T) {
	r := NewScanResult("target", []string{"secrets"}, []Finding{
		mk(SeverityCritical), mk(SeverityHigh), mk(SeverityLow),
	}, Metadata{})

	r.FilterBySeverity(SeverityHigh)
	if len(r.Findings) != 2 {
		t.Fatalf("got %d findings after filter, want 2", len(r.Findings))
	}
	// A finding above the threshold survives; one below is excluded.
	for _, f := range r.Findings {
		if f.Severity < SeverityHigh {
			t.Errorf("finding with severity %s survived a high filter", f.Severity)
		}
	}
	// Summary re-derived after the filter.
	if r.Summary.TotalIssues != 2 || r.Summary.Low != 0 {
		t.Errorf("summary not re-derived: %+v", r.Summary)
	}
}

func TestHighestSeverity(t *testing.T) {
	r := NewScanResult("t", nil, nil, Metadata{})
	if _, ok := r.HighestSeverity(); ok {
		t.Error("empty result should have no highest severity")
	}
	r2 := NewScanResult("t", nil, []Finding{mk(SeverityMedium), mk(SeverityHigh)}, Metadata{})
	if got, ok := r2.HighestSeverity(); !ok || got != SeverityHigh {
		t.Errorf("highest = %v/%v, want high/true", got, ok)
	}
}

func TestNewScanResult_Identity(t *testing.T) {
	a := NewScanResult("x", nil, nil, Metadata{})
	b := NewScanResult("x", nil, nil, Metadata{})
	if a.ScanID == "" || a.ScanID == b.ScanID {
		t.Error("scan IDs should be non-empty and unique per invocation")
	}
}

func TestCountAtOrAbove(t *testing.T) {
	s := Summarize([]Finding{mk(SeverityCritical), mk(SeverityHigh), mk(SeverityHigh), mk(SeverityLow)})
	tests := []struct {
		min  Severity
		want int
	}{
		{SeverityCritical, 1},
		{SeverityHigh, 3},
		{SeverityMedium, 3},
		{SeverityLow, 4},
	}
	for _, tt := range tests {
		if got := s.CountAtOrAbove(tt.min); got != tt.want {
			t.Errorf("CountAtOrAbove(%v) = %d, want %d", tt.min, got, tt.want)
		}
	}
}
