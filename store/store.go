// Package store writes artifact archives to the output directory.
//
// A Store owns one run's output. It creates parent directories, claims each
// destination path once, and closes every file it opens even when the copy
// fails. Each successful write reports the byte count and a blake3 digest.
package store

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
	"github.com/zeebo/blake3"
	"go.uber.org/multierr"
)

// Default permissions for created directories and files.
const (
	DefaultDirMode  os.FileMode = 0o755
	DefaultFileMode os.FileMode = 0o644
)

// ErrPathCollision is returned when a path is written twice by one Store.
var ErrPathCollision = errors.New("destination path already written in this run")

// WriteError is a filesystem failure while writing one artifact.
type WriteError struct {
	Path string
	Op   string // claim, mkdir, open, write, sync, close
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// WriteResult describes a completed write.
type WriteResult struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Digest string `json:"digest"`
}

// Options configures a Store.
type Options struct {
	// Fs is the filesystem to write to. Defaults to the OS filesystem.
	Fs afero.Fs

	DirMode  os.FileMode
	FileMode os.FileMode
}

// Store writes artifacts and remembers every path it has claimed.
// It is safe for concurrent use.
type Store struct {
	fs       afero.Fs
	dirMode  os.FileMode
	fileMode os.FileMode

	mu      sync.Mutex
	claimed map[string]bool
	bundles map[string]bool
}

// New creates a Store.
func New(opts Options) *Store {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.DirMode == 0 {
		opts.DirMode = DefaultDirMode
	}
	if opts.FileMode == 0 {
		opts.FileMode = DefaultFileMode
	}
	return &Store{
		fs:       opts.Fs,
		dirMode:  opts.DirMode,
		fileMode: opts.FileMode,
		claimed:  make(map[string]bool),
		bundles:  make(map[string]bool),
	}
}

// Fs returns the filesystem the Store writes to.
func (s *Store) Fs() afero.Fs {
	return s.fs
}

// Write copies r to path, creating parent directories. A partial file may
// remain when the copy fails; the failure is still returned.
func (s *Store) Write(path string, r io.Reader) (result WriteResult, err error) {
	path = filepath.Clean(path)
	if err := s.claim(path); err != nil {
		return WriteResult{}, &WriteError{Path: path, Op: "claim", Err: err}
	}

	if err := s.fs.MkdirAll(filepath.Dir(path), s.dirMode); err != nil {
		return WriteResult{}, &WriteError{Path: path, Op: "mkdir", Err: err}
	}

	f, err := s.fs.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, s.fileMode)
	if err != nil {
		return WriteResult{}, &WriteError{Path: path, Op: "open", Err: err}
	}

	op := "write"
	defer func() {
		if cerr := f.Close(); cerr != nil {
			if err == nil {
				op = "close"
			}
			err = &WriteError{Path: path, Op: op, Err: multierr.Append(unwrapWrite(err), cerr)}
			result = WriteResult{}
		}
	}()

	hasher := blake3.New()
	n, err := io.Copy(io.MultiWriter(f, hasher), r)
	if err != nil {
		return WriteResult{}, &WriteError{Path: path, Op: op, Err: err}
	}

	if err := f.Sync(); err != nil {
		op = "sync"
		return WriteResult{}, &WriteError{Path: path, Op: op, Err: err}
	}

	return WriteResult{
		Path:   path,
		Size:   n,
		Digest: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Claimed reports whether path was claimed by a Write.
func (s *Store) Claimed(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claimed[filepath.Clean(path)]
}

func (s *Store) claim(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimed[path] {
		return ErrPathCollision
	}
	s.claimed[path] = true
	return nil
}

// Clean removes the entries directly under dir whose names match one of
// patterns (filepath.Match syntax) and returns how many were removed.
// Nothing else in dir is touched. A missing dir is not an error.
func (s *Store) Clean(dir string, patterns ...string) (int, error) {
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("clean %s: %w", dir, err)
	}

	removed := 0
	var errs error
	for _, entry := range entries {
		if !matchesAny(entry.Name(), patterns) {
			continue
		}
		p := filepath.Join(dir, entry.Name())
		if err := s.fs.RemoveAll(p); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("clean %s: %w", p, err))
			continue
		}
		removed++
	}
	return removed, errs
}

func matchesAny(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// unwrapWrite strips a WriteError so close failures combine with its cause.
func unwrapWrite(err error) error {
	var we *WriteError
	if errors.As(err, &we) {
		return we.Err
	}
	return err
}
