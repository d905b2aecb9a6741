// Package scan runs the configured detectors over a target. It enumerates
// files, fans them out to a bounded worker pool, and aggregates the per-file
// findings into a single result.
package scan

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/luckyPipewrench/mcpscan/internal/detect"
	"github.com/luckyPipewrench/mcpscan/internal/discover"
	"github.com/luckyPipewrench/mcpscan/internal/finding"
)

// FileLister enumerates the files a scan will read.
type FileLister interface {
	List(target string) ([]discover.File, error)
}

// Orchestrator coordinates a scan: discovery, worker pool, aggregation.
type Orchestrator struct {
	detectors       []detect.Detector
	lister          FileLister
	excludePatterns []string
	workers         int
	log             zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLister replaces the default file lister.
func WithLister(l FileLister) Option {
	return func(o *Orchestrator) { o.lister = l }
}

// WithWorkers sets the worker pool size. Values below 1 keep the default.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n >= 1 {
			o.workers = n
		}
	}
}

// WithExcludePatterns skips files whose path contains any of the given
// substrings.
func WithExcludePatterns(patterns []string) Option {
	return func(o *Orchestrator) { o.excludePatterns = patterns }
}

// WithLogger sets the structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// New builds an Orchestrator over the given detectors.
func New(detectors []detect.Detector, opts ...Option) (*Orchestrator, error) {
	if len(detectors) == 0 {
		return nil, ErrNoDetectors
	}
	o := &Orchestrator{
		detectors: detectors,
		lister:    discover.NewLister(),
		workers:   runtime.NumCPU(),
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

type fileResult struct {
	index    int
	findings []finding.Finding
}

// Scan runs every detector over every discovered file under target.
// Individual detector failures are logged and absorbed; only discovery
// failures abort the scan.
func (o *Orchestrator) Scan(target string) (*finding.ScanResult, error) {
	start := time.Now()

	files, err := o.lister.List(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, target)
		}
		return nil, fmt.Errorf("enumerate %s: %w", target, err)
	}
	files = o.applyExcludes(files)

	o.log.Debug().
		Str("target", target).
		Int("files", len(files)).
		Int("workers", o.workers).
		Msg("scan started")

	jobs := make(chan int)
	results := make(chan fileResult, len(files))
	var wg sync.WaitGroup
	for w := 0; w < o.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results <- fileResult{index: i, findings: o.scanFile(files[i].Path)}
			}
		}()
	}
	for i := range files {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	close(results)

	// Reassemble in file order so output is deterministic regardless of
	// worker scheduling.
	perFile := make([][]finding.Finding, len(files))
	for r := range results {
		perFile[r.index] = r.findings
	}
	var all []finding.Finding
	for _, fs := range perFile {
		all = append(all, fs...)
	}

	engines := make([]string, 0, len(o.detectors))
	for _, d := range o.detectors {
		engines = append(engines, d.Name())
	}
	sort.Strings(engines)

	result := finding.NewScanResult(target, engines, all, finding.Metadata{
		ScanDurationMS: time.Since(start).Milliseconds(),
		FilesScanned:   len(files),
		EnginesUsed:    engines,
	})

	o.log.Info().
		Str("target", target).
		Int("files", len(files)).
		Int("findings", len(all)).
		Int64("duration_ms", result.Metadata.ScanDurationMS).
		Msg("scan complete")
	return result, nil
}

func (o *Orchestrator) applyExcludes(files []discover.File) []discover.File {
	if len(o.excludePatterns) == 0 {
		return files
	}
	kept := files[:0]
	for _, f := range files {
		if o.excluded(f.Path) {
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

func (o *Orchestrator) excluded(path string) bool {
	for _, p := range o.excludePatterns {
		if p != "" && strings.Contains(path, p) {
			return true
		}
	}
	return false
}

// scanFile reads one file and runs every detector over it. Unreadable or
// non-UTF-8 files are skipped, and a failing detector never takes down the
// scan or hides the other detectors' findings.
func (o *Orchestrator) scanFile(path string) []finding.Finding {
	data, err := os.ReadFile(path)
	if err != nil {
		o.log.Warn().Err(err).Str("file", path).Msg("unreadable file skipped")
		return nil
	}
	if !utf8.Valid(data) {
		o.log.Debug().Str("file", path).Msg("non-utf8 file skipped")
		return nil
	}
	content := string(data)

	var findings []finding.Finding
	for _, d := range o.detectors {
		fs, err := d.Scan(content, path)
		if err != nil {
			o.log.Warn().
				Err(&detect.Error{Detector: d.Name(), Err: err}).
				Str("file", path).
				Msg("detector failed")
			continue
		}
		findings = append(findings, fs...)
	}
	return findings
}
