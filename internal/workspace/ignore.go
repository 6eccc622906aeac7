package workspace

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// Directories never shown to the agent, regardless of .gitignore.
var alwaysSkip = map[string]bool{
	".git":         true,
	".lowvibe":     true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
	".idea":        true,
	".vscode":      true,
}

// pattern is one parsed .gitignore line.
type pattern struct {
	glob     string
	negation bool
	dirOnly  bool
	anchored bool
	baseRel  string // directory of the .gitignore, relative to the root
}

// Ignore matches repository-relative paths against every .gitignore in
// the tree. The last matching pattern wins.
type Ignore struct {
	root string

	mu       sync.RWMutex
	patterns []pattern
}

// LoadIgnore parses the root .gitignore and every nested one.
func LoadIgnore(root string) (*Ignore, error) {
	ig := &Ignore{root: root}
	return ig, ig.Reload()
}

// Reload re-reads all .gitignore files.
func (ig *Ignore) Reload() error {
	var patterns []pattern
	err := filepath.WalkDir(ig.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && path != ig.root && alwaysSkip[d.Name()] {
			return filepath.SkipDir
		}
		if d.IsDir() || d.Name() != ".gitignore" {
			return nil
		}
		rel, err := filepath.Rel(ig.root, filepath.Dir(path))
		if err != nil {
			return nil
		}
		if rel == "." {
			rel = ""
		}
		parsed, err := parseIgnoreFile(path, filepath.ToSlash(rel))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		patterns = append(patterns, parsed...)
		return nil
	})

	ig.mu.Lock()
	ig.patterns = patterns
	ig.mu.Unlock()
	return err
}

// Add appends a pattern rooted at the repository root.
func (ig *Ignore) Add(line string) {
	if p, ok := parsePattern(line, ""); ok {
		ig.mu.Lock()
		ig.patterns = append(ig.patterns, p)
		ig.mu.Unlock()
	}
}

func parseIgnoreFile(path, baseRel string) ([]pattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []pattern
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if p, ok := parsePattern(sc.Text(), baseRel); ok {
			out = append(out, p)
		}
	}
	return out, sc.Err()
}

func parsePattern(line, baseRel string) (pattern, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return pattern{}, false
	}
	p := pattern{baseRel: baseRel}
	if strings.HasPrefix(line, "!") {
		p.negation = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.Contains(line, "/") {
		p.anchored = true
		line = strings.TrimPrefix(line, "/")
	}
	if line == "" {
		return pattern{}, false
	}
	p.glob = line
	return p, true
}

// Match reports whether rel (slash-separated, relative to the root) is
// ignored.
func (ig *Ignore) Match(rel string, isDir bool) bool {
	rel = filepath.ToSlash(rel)
	for _, part := range strings.Split(rel, "/") {
		if alwaysSkip[part] {
			return true
		}
	}

	ig.mu.RLock()
	defer ig.mu.RUnlock()
	ignored := false
	for _, p := range ig.patterns {
		if p.match(rel, isDir) {
			ignored = !p.negation
		}
	}
	return ignored
}

func (p pattern) match(rel string, isDir bool) bool {
	if p.baseRel != "" {
		if !strings.HasPrefix(rel, p.baseRel+"/") {
			return false
		}
		rel = strings.TrimPrefix(rel, p.baseRel+"/")
	}

	if p.anchored {
		if globMatch(p.glob+"/**", rel) {
			return true
		}
		return (!p.dirOnly || isDir) && globMatch(p.glob, rel)
	}

	// A pattern naming a directory also hides everything beneath it.
	if globMatch("**/"+p.glob+"/**", rel) {
		return true
	}
	if p.dirOnly && !isDir {
		return false
	}
	return globMatch("**/"+p.glob, rel) || globMatch(p.glob, rel)
}

func globMatch(pattern, path string) bool {
	ok, err := doublestar.Match(pattern, path)
	return err == nil && ok
}
