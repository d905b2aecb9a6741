// Package discover enumerates the files a scan will read. It walks a target
// directory, honors .gitignore when asked to, and filters out binaries,
// oversized files, and build artifacts.
package discover

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"
)

// DefaultMaxFileSize bounds how large a file the scanner will read.
const DefaultMaxFileSize = 10 << 20 // 10 MiB

// skipDirs are directories that never hold first-party source worth scanning.
var skipDirs = map[string]bool{
	"node_modules":  true,
	"venv":          true,
	".venv":         true,
	".git":          true,
	"__pycache__":   true,
	"target":        true,
	"vendor":        true,
	"dist":          true,
	"build":         true,
	".next":         true,
	".nuxt":         true,
	".tox":          true,
	".mypy_cache":   true,
	".pytest_cache": true,
}

// File is one enumerated scan candidate.
type File struct {
	Path string
	Size int64
}

// Lister walks a target and yields the files to scan.
type Lister struct {
	MaxFileSize      int64
	RespectGitignore bool
	FollowSymlinks   bool
	MaxDepth         int
	// ExcludeGlobs are doublestar patterns matched against the path
	// relative to the target.
	ExcludeGlobs []string
}

// NewLister returns a Lister with default limits: 10 MiB per file,
// .gitignore honored, symlinks not followed, unlimited depth.
func NewLister() *Lister {
	return &Lister{
		MaxFileSize:      DefaultMaxFileSize,
		RespectGitignore: true,
	}
}

// List enumerates scannable files under target. A target that is itself a
// regular file yields that single file regardless of filters. A missing
// target is an error.
func (l *Lister) List(target string) ([]File, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("stat target: %w", err)
	}
	if !info.IsDir() {
		return []File{{Path: target, Size: info.Size()}}, nil
	}

	var matcher *ignore.GitIgnore
	if l.RespectGitignore {
		// A missing or unreadable .gitignore just means nothing is ignored.
		matcher, _ = ignore.CompileIgnoreFile(filepath.Join(target, ".gitignore"))
	}

	maxSize := l.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	var files []File
	err = filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(target, path)
		if relErr != nil {
			rel = path
		}

		if d.IsDir() {
			if path != target && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			if l.MaxDepth > 0 && depthOf(rel) > l.MaxDepth {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 && !l.FollowSymlinks {
			return nil
		}
		if matcher != nil && matcher.MatchesPath(rel) {
			return nil
		}
		if l.excluded(rel) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return nil
		}
		if fi.Size() == 0 || fi.Size() > maxSize {
			return nil
		}
		if isBinary(path) {
			return nil
		}

		files = append(files, File{Path: path, Size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", target, err)
	}
	return files, nil
}

func (l *Lister) excluded(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, g := range l.ExcludeGlobs {
		if ok, err := doublestar.Match(g, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func depthOf(rel string) int {
	if rel == "." {
		return 0
	}
	return strings.Count(rel, string(os.PathSeparator)) + 1
}

// isBinary sniffs the first 512 bytes for a null byte, the same heuristic
// git uses.
func isBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if n == 0 && err != nil {
		return false
	}
	return bytes.IndexByte(buf[:n], 0) >= 0
}
