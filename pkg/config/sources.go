package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultSourceGlobs select C and C++ sources and headers.
var DefaultSourceGlobs = []string{"**/*.cpp", "**/*.c", "**/*.h", "**/*.hpp"}

// skippedDirs are never descended into while enumerating sources.
var skippedDirs = map[string]bool{".git": true, ".svn": true, "node_modules": true}

// EnumerateSources walks root once and returns the absolute paths of every
// regular file matching one of patterns, sorted. Patterns use forward
// slashes relative to root; "**" crosses directories and a leading "**/"
// also matches files directly under root. A missing root yields no files.
func EnumerateSources(root string, patterns []string) ([]string, error) {
	if len(patterns) == 0 || root == "" {
		return nil, nil
	}

	matchers := make([]glob.Glob, 0, len(patterns)*2)
	for _, p := range patterns {
		p = filepath.ToSlash(p)
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid source glob %q: %w", p, err)
		}
		matchers = append(matchers, g)
		if rest := strings.TrimPrefix(p, "**/"); rest != p {
			g, err := glob.Compile(rest, '/')
			if err != nil {
				return nil, fmt.Errorf("invalid source glob %q: %w", p, err)
			}
			matchers = append(matchers, g)
		}
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			if path != root && skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		for _, m := range matchers {
			if m.Match(rel) {
				files = append(files, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate sources under %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}
