// Package output renders scan results for humans and machines: a styled
// terminal report, plain JSON, and SARIF 2.1.0 for code-scanning uploads.
package output

import (
	"errors"
	"fmt"
	"os"

	"github.com/luckyPipewrench/mcpscan/internal/finding"
)

// ErrUnsupportedFormat reports an unknown output format name.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// Renderer turns a scan result into a byte stream for one format.
type Renderer interface {
	Render(result *finding.ScanResult) (string, error)
}

// Options tune rendering. Color only affects the terminal renderer.
type Options struct {
	Color bool
}

// New returns the renderer for a format name.
func New(format string, opts Options) (Renderer, error) {
	switch format {
	case "terminal", "":
		return newTerminalRenderer(opts.Color), nil
	case "json":
		return jsonRenderer{}, nil
	case "sarif":
		return sarifRenderer{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// Write renders the result and writes it to path, or to stdout when path is
// empty.
func Write(r Renderer, result *finding.ScanResult, path string) error {
	out, err := r.Render(result)
	if err != nil {
		return err
	}
	if path == "" {
		_, err = fmt.Print(out)
		return err
	}
	return os.WriteFile(path, []byte(out), 0o600)
}
