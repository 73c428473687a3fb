package project

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

var ErrNotFound = errors.New("no saved project")

// PersistenceError is returned for every failed save or load.
type PersistenceError struct {
	Op   string
	User string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s project for %s: %v", e.Op, e.User, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Revision identifies one saved version of a user's project.
type Revision struct {
	User string
	Time time.Time
}

// Store keeps the project revisions of each user.
type Store interface {
	Save(ctx context.Context, user string, s Snapshot) (Revision, error)
	// Load returns the latest revision.
	Load(ctx context.Context, user string) (Snapshot, error)
	List(ctx context.Context, user string) ([]Revision, error)
}

const (
	revisionLayout = "20060102T150405.000000000Z"
	revisionExt    = ".yml"
)

var validUser = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// FileStore writes revisions as YAML files under <dir>/<user>/<timestamp>.yml.
type FileStore struct {
	dir string
	log *log.Logger
}

func NewFileStore(dir string, logger *log.Logger) *FileStore {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &FileStore{dir: dir, log: logger}
}

func (fs *FileStore) userDir(user string) (string, error) {
	if !validUser.MatchString(user) || strings.Trim(user, ".") == "" {
		return "", fmt.Errorf("invalid user name %q", user)
	}
	return filepath.Join(fs.dir, user), nil
}

func (fs *FileStore) Save(ctx context.Context, user string, s Snapshot) (Revision, error) {
	rev, err := fs.save(ctx, user, s)
	if err != nil {
		return Revision{}, &PersistenceError{Op: "save", User: user, Err: err}
	}
	return rev, nil
}

func (fs *FileStore) save(ctx context.Context, user string, s Snapshot) (Revision, error) {
	if err := ctx.Err(); err != nil {
		return Revision{}, err
	}
	if err := s.Validate(); err != nil {
		return Revision{}, err
	}
	dir, err := fs.userDir(user)
	if err != nil {
		return Revision{}, err
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	s.UpdatedAt = s.UpdatedAt.UTC()

	data, err := yaml.Marshal(s)
	if err != nil {
		return Revision{}, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Revision{}, err
	}
	path := filepath.Join(dir, s.UpdatedAt.Format(revisionLayout)+revisionExt)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return Revision{}, err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return Revision{}, err
	}
	fs.log.Info("project saved", "user", user, "file", path)
	return Revision{User: user, Time: s.UpdatedAt}, nil
}

func (fs *FileStore) Load(ctx context.Context, user string) (Snapshot, error) {
	s, err := fs.load(ctx, user)
	if err != nil {
		return Snapshot{}, &PersistenceError{Op: "load", User: user, Err: err}
	}
	return s, nil
}

func (fs *FileStore) load(ctx context.Context, user string) (Snapshot, error) {
	revs, err := fs.list(ctx, user)
	if err != nil {
		return Snapshot{}, err
	}
	if len(revs) == 0 {
		return Snapshot{}, ErrNotFound
	}
	dir, _ := fs.userDir(user)
	latest := revs[len(revs)-1]
	path := filepath.Join(dir, latest.Time.Format(revisionLayout)+revisionExt)
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var s Snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return Snapshot{}, fmt.Errorf("%s: %w", path, err)
	}
	fs.log.Debug("project loaded", "user", user, "file", path)
	return s, nil
}

// List returns the revisions of a user, oldest first.
func (fs *FileStore) List(ctx context.Context, user string) ([]Revision, error) {
	revs, err := fs.list(ctx, user)
	if err != nil {
		return nil, &PersistenceError{Op: "list", User: user, Err: err}
	}
	return revs, nil
}

func (fs *FileStore) list(ctx context.Context, user string) ([]Revision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := fs.userDir(user)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var revs []Revision
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, revisionExt) {
			continue
		}
		ts, err := time.Parse(revisionLayout, strings.TrimSuffix(name, revisionExt))
		if err != nil {
			fs.log.Warn("skipping unknown file in project dir", "file", name)
			continue
		}
		revs = append(revs, Revision{User: user, Time: ts})
	}
	sort.Slice(revs, func(i, j int) bool { return revs[i].Time.Before(revs[j].Time) })
	return revs, nil
}
