// Package undo keeps per-file backups taken before every modification so
// any agent edit can be rolled back by path.
package undo

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"lowvibe/internal/fileutil"
	"lowvibe/internal/logging"
)

// ErrNoBackup is returned by Restore when a file has no backups.
var ErrNoBackup = errors.New("no backup found")

// Backup is one stored snapshot of a file.
type Backup struct {
	Original string // absolute path of the backed-up file
	Path     string // absolute path of the snapshot
	Time     time.Time
	Hash     string
	Size     int64
}

// Store writes snapshots to <dir>/<escaped-relative-dir>/<nanos>-<hash>-<base>
// and keeps the newest Keep per file.
type Store struct {
	root string
	dir  string
	keep int
	now  func() time.Time

	mu sync.Mutex
}

// NewStore creates a store for files under repoRoot. A relative dir is
// resolved against repoRoot.
func NewStore(repoRoot, dir string, keep int) *Store {
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(repoRoot, dir)
	}
	if keep <= 0 {
		keep = 10
	}
	return &Store{root: repoRoot, dir: dir, keep: keep, now: time.Now}
}

// Dir returns the backup directory.
func (s *Store) Dir() string { return s.dir }

// Snapshot backs up path. A file that does not exist yet has nothing to
// back up and returns ok=false. An identical copy of the newest backup is
// not stored twice.
func (s *Store) Snapshot(path string) (b Backup, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Backup{}, false, nil
	}
	if err != nil {
		return Backup{}, false, fmt.Errorf("failed to read %s for backup: %w", path, err)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])[:12]

	existing, err := s.list(path)
	if err != nil {
		return Backup{}, false, err
	}
	if len(existing) > 0 && existing[0].Hash == hash {
		return existing[0], true, nil
	}

	dir, err := s.dirFor(path)
	if err != nil {
		return Backup{}, false, err
	}
	now := s.now()
	name := fmt.Sprintf("%d-%s-%s", now.UnixNano(), hash, filepath.Base(path))
	target := filepath.Join(dir, name)
	if err := fileutil.AtomicWrite(target, data, 0o644); err != nil {
		return Backup{}, false, fmt.Errorf("failed to write backup: %w", err)
	}
	b = Backup{Original: path, Path: target, Time: now, Hash: hash, Size: int64(len(data))}
	logging.Debug("backup written", "file", path, "backup", target)

	s.prune(append([]Backup{b}, existing...))
	return b, true, nil
}

// List returns the backups of path, newest first.
func (s *Store) List(path string) ([]Backup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(path)
}

// Restore replaces path with its newest backup. The current content is
// itself snapshotted first so a restore can be undone.
func (s *Store) Restore(path string) (Backup, error) {
	s.mu.Lock()
	backups, err := s.list(path)
	s.mu.Unlock()
	if err != nil {
		return Backup{}, err
	}
	if len(backups) == 0 {
		return Backup{}, fmt.Errorf("%w for %s", ErrNoBackup, path)
	}
	newest := backups[0]

	data, err := os.ReadFile(newest.Path)
	if err != nil {
		return Backup{}, fmt.Errorf("failed to read backup: %w", err)
	}
	if _, _, err := s.Snapshot(path); err != nil {
		return Backup{}, err
	}
	if err := fileutil.AtomicWrite(path, data, fileutil.FileMode(path, 0o644)); err != nil {
		return Backup{}, fmt.Errorf("failed to restore %s: %w", path, err)
	}
	logging.Info("file restored", "file", path, "backup", newest.Path)
	return newest, nil
}

func (s *Store) list(path string) ([]Backup, error) {
	dir, err := s.dirFor(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	base := filepath.Base(path)
	var out []Backup
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		parts := strings.SplitN(e.Name(), "-", 3)
		if len(parts) != 3 || parts[2] != base {
			continue
		}
		nanos, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			continue
		}
		var size int64
		if info, err := e.Info(); err == nil {
			size = info.Size()
		}
		out = append(out, Backup{
			Original: path,
			Path:     filepath.Join(dir, e.Name()),
			Time:     time.Unix(0, nanos),
			Hash:     parts[1],
			Size:     size,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.After(out[j].Time) })
	return out, nil
}

func (s *Store) prune(backups []Backup) {
	for _, old := range backups[min(len(backups), s.keep):] {
		if err := os.Remove(old.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.Warn("failed to prune backup", "backup", old.Path, "error", err)
		}
	}
}

// dirFor maps the directory of path to one flat directory name.
func (s *Store) dirFor(path string) (string, error) {
	rel, err := filepath.Rel(s.root, filepath.Dir(path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside the repository", path)
	}
	if rel == "." {
		rel = "_root"
	}
	return filepath.Join(s.dir, url.PathEscape(filepath.ToSlash(rel))), nil
}
