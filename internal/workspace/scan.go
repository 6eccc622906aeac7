// Package workspace scans the repository the agent works on: the
// gitignore-aware file tree, its invalidation on change and the file
// attachments that seed the task message.
package workspace

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"lowvibe/internal/logging"
)

const (
	DefaultMaxFiles = 2000
	DefaultMaxDepth = 12
)

// Tree is a snapshot of the repository's visible files.
type Tree struct {
	Root      string
	Files     []string // slash-separated, relative to Root, sorted
	Truncated bool
}

// Contains reports whether rel is a file in the tree.
func (t Tree) Contains(rel string) bool {
	rel = filepath.ToSlash(filepath.Clean(rel))
	i := sort.SearchStrings(t.Files, rel)
	return i < len(t.Files) && t.Files[i] == rel
}

// Render draws the tree as an indented listing, directories first
// encountered in path order.
func (t Tree) Render() string {
	var b strings.Builder
	b.WriteString(filepath.Base(t.Root) + "/\n")
	seen := make(map[string]bool)
	for _, f := range t.Files {
		parts := strings.Split(f, "/")
		for i := 0; i < len(parts)-1; i++ {
			dir := strings.Join(parts[:i+1], "/")
			if seen[dir] {
				continue
			}
			seen[dir] = true
			b.WriteString(strings.Repeat("  ", i+1) + parts[i] + "/\n")
		}
		b.WriteString(strings.Repeat("  ", len(parts)) + parts[len(parts)-1] + "\n")
	}
	if t.Truncated {
		fmt.Fprintf(&b, "... (listing truncated at %d files)\n", len(t.Files))
	}
	return b.String()
}

// Scanner walks the repository honoring .gitignore.
type Scanner struct {
	Root     string
	Ignore   *Ignore
	MaxFiles int
	MaxDepth int
}

// NewScanner loads the ignore rules under root.
func NewScanner(root string) (*Scanner, error) {
	ig, err := LoadIgnore(root)
	if err != nil {
		return nil, fmt.Errorf("failed to load .gitignore: %w", err)
	}
	return &Scanner{Root: root, Ignore: ig, MaxFiles: DefaultMaxFiles, MaxDepth: DefaultMaxDepth}, nil
}

// Scan walks the tree.
func (s *Scanner) Scan() (Tree, error) {
	tree := Tree{Root: s.Root}
	maxFiles := s.MaxFiles
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}

	err := filepath.WalkDir(s.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.Debug("scan: skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if path == s.Root {
			return nil
		}
		rel, err := filepath.Rel(s.Root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if s.Ignore != nil && s.Ignore.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if s.MaxDepth > 0 && strings.Count(rel, "/")+1 >= s.MaxDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if len(tree.Files) >= maxFiles {
			tree.Truncated = true
			return filepath.SkipAll
		}
		tree.Files = append(tree.Files, rel)
		return nil
	})
	if err != nil {
		return tree, fmt.Errorf("failed to scan %s: %w", s.Root, err)
	}

	sort.Strings(tree.Files)
	return tree, nil
}
