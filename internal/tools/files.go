package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"lowvibe/internal/chat"
	"lowvibe/internal/fileutil"
	"lowvibe/internal/logging"
	"lowvibe/internal/security"
	"lowvibe/internal/undo"
	"lowvibe/internal/workspace"
)

// ErrSearchNotFound prefixes the replace_in_file failure that triggers
// edit recovery.
const ErrSearchNotFound = "search string not found"

const defaultMaxRead = 100 * 1024

// SearchNotFound reports whether r is a replace_in_file miss.
func SearchNotFound(r Result) bool {
	return strings.HasPrefix(r.Error, ErrSearchNotFound)
}

// Env is what the file tools operate on.
type Env struct {
	Scope   *security.Scope
	Backups *undo.Store
	Tree    *workspace.Cache
	MaxRead int
}

func (e *Env) resolve(p string) (string, string, error) {
	abs, err := e.Scope.Resolve(p)
	if err != nil {
		return "", "", err
	}
	return abs, e.Scope.Rel(abs), nil
}

// write backs up the current content, then writes atomically.
func (e *Env) write(abs string, content string) error {
	if e.Backups != nil {
		if _, _, err := e.Backups.Snapshot(abs); err != nil {
			return fmt.Errorf("backup failed, file left unchanged: %w", err)
		}
	}
	if err := fileutil.AtomicWrite(abs, []byte(content), fileutil.FileMode(abs, 0o644)); err != nil {
		return err
	}
	e.changed()
	return nil
}

func (e *Env) changed() {
	if e.Tree != nil {
		e.Tree.Invalidate()
	}
}

// readExisting returns the file content, or "" with existed=false.
func readExisting(abs string) (string, bool, error) {
	data, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

// Owned tracks files a role created so later calls can be limited to them.
type Owned struct {
	mu    sync.Mutex
	files map[string]bool
}

// NewOwned returns an empty set.
func NewOwned() *Owned { return &Owned{files: make(map[string]bool)} }

func (o *Owned) add(abs string) {
	o.mu.Lock()
	o.files[abs] = true
	o.mu.Unlock()
}

// Has reports whether abs was created through this set.
func (o *Owned) Has(abs string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.files[abs]
}

// Files returns the owned paths.
func (o *Owned) Files() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.files))
	for f := range o.files {
		out = append(out, f)
	}
	return out
}

// FileTools returns read_file, write_file, create_file, delete_file,
// replace_in_file and list_files.
func FileTools(env *Env) []Spec {
	return []Spec{
		ReadFile(env),
		WriteFile(env),
		CreateFile(env, nil),
		DeleteFile(env),
		ReplaceInFile(env),
		ListFiles(env),
	}
}

func ReadFile(env *Env) Spec {
	return Spec{
		Name:        "read_file",
		Description: "Read a file. Optional 1-based start_line/end_line select a range.",
		Params: map[string]any{
			"path":       str("file path relative to the repository root"),
			"start_line": integer("first line to return"),
			"end_line":   integer("last line to return"),
		},
		Required: []string{"path"},
		Handler: func(ctx context.Context, args Args) Result {
			abs, rel, err := env.resolve(args.String("path"))
			if err != nil {
				return Failure("%v", err)
			}
			data, err := os.ReadFile(abs)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return Failure("file not found: %s", rel)
				}
				return Failure("failed to read %s: %v", rel, err)
			}
			content := string(data)
			lines := strings.Split(content, "\n")
			start, end := args.Int("start_line", 1), args.Int("end_line", len(lines))
			if start > 1 || end < len(lines) {
				if start < 1 {
					start = 1
				}
				if end > len(lines) {
					end = len(lines)
				}
				if start > end {
					return Failure("empty line range %d-%d (file has %d lines)", start, end, len(lines))
				}
				content = strings.Join(lines[start-1:end], "\n")
			}
			max := env.MaxRead
			if max <= 0 {
				max = defaultMaxRead
			}
			return Result{
				Content: chat.Truncate(content, max),
				Data:    map[string]any{"path": rel, "lines": len(lines)},
			}
		},
	}
}

func WriteFile(env *Env) Spec {
	return Spec{
		Name:        "write_file",
		Description: "Write the full content of a file, creating or overwriting it.",
		Params: map[string]any{
			"path":    str("file path relative to the repository root"),
			"content": str("complete new file content"),
		},
		Required: []string{"path", "content"},
		Handler: func(ctx context.Context, args Args) Result {
			abs, rel, err := env.resolve(args.String("path"))
			if err != nil {
				return Failure("%v", err)
			}
			before, existed, err := readExisting(abs)
			if err != nil {
				return Failure("failed to read %s: %v", rel, err)
			}
			after := args.String("content")
			if err := env.write(abs, after); err != nil {
				return Failure("failed to write %s: %v", rel, err)
			}
			logging.Debug("file written", "path", rel, "bytes", len(after))
			verb := "updated"
			if !existed {
				verb = "created"
			}
			return Result{
				Content: fmt.Sprintf("%s %s", verb, rel),
				Data:    map[string]any{"path": rel, "diff": lineDiff(rel, before, after)},
			}
		},
	}
}

// CreateFile creates new files only. With a non-nil owned set it may also
// overwrite files it created earlier, and records what it creates.
func CreateFile(env *Env, owned *Owned) Spec {
	return Spec{
		Name:        "create_file",
		Description: "Create a new file. Fails if the file already exists.",
		Params: map[string]any{
			"path":    str("file path relative to the repository root"),
			"content": str("file content"),
		},
		Required: []string{"path", "content"},
		Handler: func(ctx context.Context, args Args) Result {
			abs, rel, err := env.resolve(args.String("path"))
			if err != nil {
				return Failure("%v", err)
			}
			if fileutil.Exists(abs) && (owned == nil || !owned.Has(abs)) {
				return Failure("file already exists: %s", rel)
			}
			if err := env.write(abs, args.String("content")); err != nil {
				return Failure("failed to create %s: %v", rel, err)
			}
			if owned != nil {
				owned.add(abs)
			}
			return Result{Content: "created " + rel, Data: map[string]any{"path": rel}}
		},
	}
}

func DeleteFile(env *Env) Spec {
	return Spec{
		Name:        "delete_file",
		Description: "Delete a file. A backup is kept.",
		Params: map[string]any{
			"path": str("file path relative to the repository root"),
		},
		Required: []string{"path"},
		Handler: func(ctx context.Context, args Args) Result {
			abs, rel, err := env.resolve(args.String("path"))
			if err != nil {
				return Failure("%v", err)
			}
			info, err := os.Stat(abs)
			if err != nil {
				return Failure("file not found: %s", rel)
			}
			if info.IsDir() {
				return Failure("%s is a directory", rel)
			}
			if env.Backups != nil {
				if _, _, err := env.Backups.Snapshot(abs); err != nil {
					return Failure("backup failed, file left in place: %v", err)
				}
			}
			if err := os.Remove(abs); err != nil {
				return Failure("failed to delete %s: %v", rel, err)
			}
			env.changed()
			return Success("deleted " + rel)
		},
	}
}

func ReplaceInFile(env *Env) Spec {
	return Spec{
		Name: "replace_in_file",
		Description: "Replace an exact block of text in a file. The search text must match verbatim, " +
			"including whitespace, and be unique unless replace_all is true.",
		Params: map[string]any{
			"path":        str("file path relative to the repository root"),
			"search":      str("exact text to find"),
			"replace":     str("replacement text"),
			"replace_all": boolean("replace every occurrence"),
		},
		Required: []string{"path", "search", "replace"},
		Handler: func(ctx context.Context, args Args) Result {
			abs, rel, err := env.resolve(args.String("path"))
			if err != nil {
				return Failure("%v", err)
			}
			before, existed, err := readExisting(abs)
			if err != nil {
				return Failure("failed to read %s: %v", rel, err)
			}
			if !existed {
				return Failure("file not found: %s", rel)
			}
			search := args.String("search")
			if search == "" {
				return Failure("search text is empty")
			}
			n := strings.Count(before, search)
			switch {
			case n == 0:
				return Failure("%s in %s", ErrSearchNotFound, rel)
			case n > 1 && !args.Bool("replace_all"):
				return Failure("search text matches %d times in %s; include more context or set replace_all", n, rel)
			}
			after := strings.ReplaceAll(before, search, args.String("replace"))
			if err := env.write(abs, after); err != nil {
				return Failure("failed to write %s: %v", rel, err)
			}
			return Result{
				Content: fmt.Sprintf("replaced %d occurrence(s) in %s", n, rel),
				Data:    map[string]any{"path": rel, "diff": lineDiff(rel, before, after)},
			}
		},
	}
}

func ListFiles(env *Env) Spec {
	return Spec{
		Name:        "list_files",
		Description: "List repository files, optionally under a directory and filtered by a glob such as **/*.go.",
		Params: map[string]any{
			"path":    str("directory relative to the repository root"),
			"pattern": str("doublestar glob matched against the relative path"),
		},
		Handler: func(ctx context.Context, args Args) Result {
			if env.Tree == nil {
				return Failure("file listing is unavailable")
			}
			tree, err := env.Tree.Tree()
			if err != nil {
				return Failure("failed to scan repository: %v", err)
			}
			dir := strings.Trim(path.Clean("/"+args.String("path")), "/")
			pattern := args.String("pattern")
			if pattern != "" && !doublestar.ValidatePattern(pattern) {
				return Failure("invalid pattern %q", pattern)
			}

			var out []string
			for _, f := range tree.Files {
				if dir != "" && !strings.HasPrefix(f, dir+"/") {
					continue
				}
				if pattern != "" {
					if ok, _ := doublestar.Match(pattern, f); !ok {
						continue
					}
				}
				out = append(out, f)
			}
			if len(out) == 0 {
				return Result{Content: "no matching files", Data: map[string]any{"count": 0}}
			}
			return Result{Content: strings.Join(out, "\n"), Data: map[string]any{"count": len(out)}}
		},
	}
}
