// Package detect implements the pattern-based vulnerability detectors for
// AI tool-server source code. Every detector compiles its pattern tables
// once at construction and holds no mutable state afterwards, so a single
// instance is safe to share across scan workers.
package detect

import (
	"fmt"
	"math"

	"github.com/luckyPipewrench/mcpscan/internal/finding"
)

// Detector scans text content and reports findings. Implementations must be
// safe for concurrent use; an error is local to one call and never aborts
// the surrounding scan.
type Detector interface {
	Name() string
	// Scan inspects content. filePath is optional location context; pass ""
	// when scanning content that has no file (proxy payloads, stdin).
	Scan(content, filePath string) ([]finding.Finding, error)
}

// Error wraps a failure from one detector call so the orchestrator can log
// which detector misbehaved without losing the cause.
type Error struct {
	Detector string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("detector %s: %v", e.Detector, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// idGen hands out detector-local finding IDs like "SEC-001". A fresh idGen
// is created per Scan call, which is why IDs repeat across files.
type idGen struct {
	prefix string
	n      int
}

func (g *idGen) next() string {
	g.n++
	return fmt.Sprintf("%s-%03d", g.prefix, g.n)
}

// ShannonEntropy returns the entropy of s in bits per character.
// English text: ~3.5-4.0, base64: ~5.5-6.0, hex: ~4.0.
func ShannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	freq := make(map[rune]int)
	total := 0
	for _, ch := range s {
		freq[ch]++
		total++
	}
	entropy := 0.0
	length := float64(total)
	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// locate attaches a Location when a file path is known.
func locate(f finding.Finding, filePath string, line int) finding.Finding {
	if filePath != "" {
		f.Location = &finding.Location{File: filePath, Line: line}
	}
	return f
}
