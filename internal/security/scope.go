package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Scope confines paths and commands to a repository root.
type Scope struct {
	root string
}

// NewScope returns a Scope for root, which is made absolute.
func NewScope(root string) (*Scope, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return &Scope{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute repository root.
func (s *Scope) Root() string { return s.root }

// Resolve maps a repo-relative (or absolute in-repo) path to an absolute
// path and rejects anything that lands outside the root, including via
// symlinks in existing parents.
func (s *Scope) Resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path")
	}
	if strings.Contains(path, "\x00") {
		return "", fmt.Errorf("null byte in path")
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(s.root, path)
	}
	abs = filepath.Clean(abs)

	// Resolve the deepest existing ancestor so a symlinked directory
	// cannot smuggle a write outside the root.
	resolved := abs
	rest := ""
	for {
		if r, err := filepath.EvalSymlinks(resolved); err == nil {
			resolved = filepath.Join(r, rest)
			break
		} else if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		parent := filepath.Dir(resolved)
		if parent == resolved {
			break
		}
		rest = filepath.Join(filepath.Base(resolved), rest)
		resolved = parent
	}

	if !Within(s.root, resolved) {
		return "", fmt.Errorf("path '%s' is outside the repository", path)
	}
	return resolved, nil
}

// Rel returns abs relative to the root, with forward slashes.
func (s *Scope) Rel(abs string) string {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

// Within reports whether target is base or below it.
func Within(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Device files commands may legitimately name.
var allowedAbsolute = map[string]bool{
	"/dev/null":   true,
	"/dev/stdin":  true,
	"/dev/stdout": true,
	"/dev/stderr": true,
}

// CheckCommand rejects a command whose cwd or path-like arguments reach
// outside the root: absolute paths, home-relative paths and parent
// traversal. It is deterministic and runs before any oracle or human
// judgement, so "rm -rf .." never gets through.
func (s *Scope) CheckCommand(command, cwd string) error {
	if cwd == "" {
		cwd = "."
	}
	if filepath.IsAbs(cwd) || !Within(s.root, filepath.Join(s.root, cwd)) {
		return fmt.Errorf("working directory %q is outside the repository", cwd)
	}
	base := filepath.Join(s.root, cwd)

	for _, tok := range shellWords(command) {
		for _, p := range pathCandidates(tok) {
			switch {
			case strings.HasPrefix(p, "~"):
				return fmt.Errorf("argument %q refers to the home directory", tok)
			case filepath.IsAbs(p):
				if !allowedAbsolute[p] && !Within(s.root, filepath.Clean(p)) {
					return fmt.Errorf("argument %q is an absolute path outside the repository", tok)
				}
			case hasParentRef(p):
				if !Within(s.root, filepath.Join(base, p)) {
					return fmt.Errorf("argument %q escapes the repository", tok)
				}
			}
		}
	}
	return nil
}

func hasParentRef(p string) bool {
	for _, part := range strings.Split(filepath.ToSlash(p), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

// pathCandidates extracts the parts of a shell word that may name a path:
// the word itself, the value of --flag=value, and redirect targets.
func pathCandidates(tok string) []string {
	tok = strings.TrimLeft(tok, "0123456789&")
	tok = strings.TrimLeft(tok, "<>|")
	if tok == "" {
		return nil
	}
	if strings.HasPrefix(tok, "-") {
		if i := strings.IndexByte(tok, '='); i >= 0 {
			return []string{tok[i+1:]}
		}
		return nil
	}
	if i := strings.IndexByte(tok, '='); i > 0 && !strings.ContainsAny(tok[:i], "/.") {
		// VAR=value assignment
		return []string{tok[i+1:]}
	}
	return []string{tok}
}

// shellWords splits a command line on whitespace and shell operators,
// honouring single and double quotes. It is not a full shell parser; it
// only needs to surface every word a path could hide in.
func shellWords(s string) []string {
	var words []string
	var cur strings.Builder
	inWord := false
	var quote rune

	flush := func() {
		if inWord {
			words = append(words, cur.String())
			cur.Reset()
			inWord = false
		}
	}

	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t' || r == '\n' || r == ';' || r == '|' || r == '&' || r == '(' || r == ')':
			flush()
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	flush()
	return words
}
