package scan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/luckyPipewrench/mcpscan/internal/detect"
	"github.com/luckyPipewrench/mcpscan/internal/finding"
)

// stubDetector returns canned findings, or an error, for every file.
type stubDetector struct {
	name     string
	findings []finding.Finding
	err      error
}

func (d *stubDetector) Name() string { return d.name }

func (d *stubDetector) Scan(_, filePath string) ([]finding.Finding, error) {
	if d.err != nil {
		return nil, d.err
	}
	out := make([]finding.Finding, len(d.findings))
	copy(out, d.findings)
	for i := range out {
		out[i].Location = &finding.Location{File: filePath, Line: 1}
	}
	return out, nil
}

func oneFinding(id string) []finding.Finding {
	return []finding.Finding{{
		ID:       id,
		Type:     finding.TypeSecretsLeakage,
		Severity: finding.SeverityHigh,
		Title:    "stub",
	}}
}

func writeTree(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("file%03d.py", i))
		if err := os.WriteFile(path, []byte("x = 1\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestNewRequiresDetectors(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrNoDetectors) {
		t.Fatalf("err = %v, want ErrNoDetectors", err)
	}
}

func TestScanMissingTarget(t *testing.T) {
	o, err := New([]detect.Detector{&stubDetector{name: "stub"}})
	if err != nil {
		t.Fatal(err)
	}
	_, err = o.Scan(filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("err = %v, want ErrTargetNotFound", err)
	}
}

func TestScanAggregatesAcrossFiles(t *testing.T) {
	const n = 20
	dir := writeTree(t, n)

	for _, workers := range []int{1, runtime.NumCPU()} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			o, err := New(
				[]detect.Detector{&stubDetector{name: "stub", findings: oneFinding("S-001")}},
				WithWorkers(workers),
			)
			if err != nil {
				t.Fatal(err)
			}
			result, err := o.Scan(dir)
			if err != nil {
				t.Fatalf("Scan error: %v", err)
			}
			if len(result.Findings) != n {
				t.Errorf("got %d findings, want %d", len(result.Findings), n)
			}
			if result.Summary.TotalIssues != n || result.Summary.High != n {
				t.Errorf("Summary = %+v, want %d high", result.Summary, n)
			}
			if result.Metadata.FilesScanned != n {
				t.Errorf("FilesScanned = %d, want %d", result.Metadata.FilesScanned, n)
			}
		})
	}
}

func TestScanDeterministicOrder(t *testing.T) {
	dir := writeTree(t, 10)
	o, err := New(
		[]detect.Detector{&stubDetector{name: "stub", findings: oneFinding("S-001")}},
		WithWorkers(4),
	)
	if err != nil {
		t.Fatal(err)
	}
	first, err := o.Scan(dir)
	if err != nil {
		t.Fatal(err)
	}
	second, err := o.Scan(dir)
	if err != nil {
		t.Fatal(err)
	}
	for i := range first.Findings {
		if first.Findings[i].Location.File != second.Findings[i].Location.File {
			t.Fatalf("finding order differs between runs at index %d", i)
		}
	}
}

func TestScanAbsorbsDetectorErrors(t *testing.T) {
	dir := writeTree(t, 3)
	o, err := New([]detect.Detector{
		&stubDetector{name: "broken", err: errors.New("engine exploded")},
		&stubDetector{name: "working", findings: oneFinding("W-001")},
	})
	if err != nil {
		t.Fatal(err)
	}
	result, err := o.Scan(dir)
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if len(result.Findings) != 3 {
		t.Errorf("got %d findings, want 3 from the working detector", len(result.Findings))
	}
}

func TestScanExcludePatterns(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"app.py", "app_test.py", "fixtures.py"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x = 1\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	o, err := New(
		[]detect.Detector{&stubDetector{name: "stub", findings: oneFinding("S-001")}},
		WithExcludePatterns([]string{"_test", "fixtures"}),
	)
	if err != nil {
		t.Fatal(err)
	}
	result, err := o.Scan(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Findings) != 1 {
		t.Fatalf("got %d findings, want 1 (only app.py)", len(result.Findings))
	}
	if result.Findings[0].Location.File != filepath.Join(dir, "app.py") {
		t.Errorf("finding from %s, want app.py", result.Findings[0].Location.File)
	}
}

func TestScanSkipsUnreadableContent(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ok.py"), []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Invalid UTF-8 but no null byte, so discovery keeps it.
	if err := os.WriteFile(filepath.Join(dir, "latin1.py"), []byte{0x78, 0x20, 0xff, 0xfe, 0x0a}, 0o644); err != nil {
		t.Fatal(err)
	}
	o, err := New([]detect.Detector{&stubDetector{name: "stub", findings: oneFinding("S-001")}})
	if err != nil {
		t.Fatal(err)
	}
	result, err := o.Scan(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Findings) != 1 {
		t.Errorf("got %d findings, want 1 (non-utf8 file skipped)", len(result.Findings))
	}
}

func TestScanSingleFileTarget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tool.py")
	if err := os.WriteFile(path, []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	o, err := New([]detect.Detector{&stubDetector{name: "stub", findings: oneFinding("S-001")}})
	if err != nil {
		t.Fatal(err)
	}
	result, err := o.Scan(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Findings) != 1 || result.Target != path {
		t.Errorf("result = %d findings target %q, want 1 finding for %q", len(result.Findings), result.Target, path)
	}
}

func TestScanEnginesSorted(t *testing.T) {
	dir := writeTree(t, 1)
	o, err := New([]detect.Detector{
		&stubDetector{name: "zeta"},
		&stubDetector{name: "alpha"},
	})
	if err != nil {
		t.Fatal(err)
	}
	result, err := o.Scan(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Engines) != 2 || result.Engines[0] != "alpha" || result.Engines[1] != "zeta" {
		t.Errorf("Engines = %v, want sorted [alpha zeta]", result.Engines)
	}
}
