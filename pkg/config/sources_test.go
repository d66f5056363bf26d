package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func touch(t *testing.T, root string, rel ...string) {
	t.Helper()
	for _, r := range rel {
		path := filepath.Join(root, filepath.FromSlash(r))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func relAll(t *testing.T, root string, files []string) string {
	t.Helper()
	out := make([]string, len(files))
	for i, f := range files {
		rel, err := filepath.Rel(root, f)
		if err != nil {
			t.Fatal(err)
		}
		out[i] = filepath.ToSlash(rel)
	}
	return strings.Join(out, ",")
}

func TestEnumerateSources(t *testing.T) {
	root := t.TempDir()
	touch(t, root,
		"main.cpp",
		"util.h",
		"README.md",
		"render/d3d12.cpp",
		"render/d3d12.hpp",
		"render/shaders/blit.hlsl",
		"third_party/zlib/inflate.c",
		".git/objects/x.cpp",
		"node_modules/pkg/a.c",
	)

	tests := []struct {
		name     string
		patterns []string
		want     string
	}{
		{
			name:     "defaults",
			patterns: DefaultSourceGlobs,
			want:     "main.cpp,render/d3d12.cpp,render/d3d12.hpp,third_party/zlib/inflate.c,util.h",
		},
		{
			name:     "top level only",
			patterns: []string{"*.cpp"},
			want:     "main.cpp",
		},
		{
			name:     "subdirectory",
			patterns: []string{"render/**"},
			want:     "render/d3d12.cpp,render/d3d12.hpp,render/shaders/blit.hlsl",
		},
		{
			name:     "alternatives",
			patterns: []string{"**/*.{hlsl,md}"},
			want:     "README.md,render/shaders/blit.hlsl",
		},
		{
			name:     "empty list disables enumeration",
			patterns: []string{},
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := EnumerateSources(root, tt.patterns)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if got := relAll(t, root, files); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestEnumerateSources_MissingRoot(t *testing.T) {
	files, err := EnumerateSources(filepath.Join(t.TempDir(), "missing"), DefaultSourceGlobs)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(files) != 0 {
		t.Errorf("Expected no files, got %v", files)
	}
}

func TestEnumerateSources_BadPattern(t *testing.T) {
	if _, err := EnumerateSources(t.TempDir(), []string{"[a-"}); err == nil {
		t.Error("Expected error for malformed glob")
	}
}
