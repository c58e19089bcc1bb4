package store

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
)

// DefaultBundleName and DefaultBundlePattern describe the reports bundle.
const (
	DefaultBundleName    = "reports.zip"
	DefaultBundlePattern = "*.pdf"
)

// IsZip reports whether path names a zip archive.
func IsZip(p string) bool {
	return strings.EqualFold(filepath.Ext(p), ".zip")
}

// Extract unpacks the zip archive at archivePath into dir and returns the
// number of files written. Entries that would land outside dir are refused.
func (s *Store) Extract(archivePath, dir string) (int, error) {
	f, err := s.fs.Open(archivePath)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat archive: %w", err)
	}

	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return 0, fmt.Errorf("read archive %s: %w", archivePath, err)
	}

	root := filepath.Clean(dir)
	if err := s.fs.MkdirAll(root, s.dirMode); err != nil {
		return 0, fmt.Errorf("create %s: %w", root, err)
	}

	count := 0
	for _, entry := range zr.File {
		target, err := entryPath(root, entry.Name)
		if err != nil {
			return count, err
		}

		if entry.FileInfo().IsDir() {
			if err := s.fs.MkdirAll(target, s.dirMode); err != nil {
				return count, fmt.Errorf("create %s: %w", target, err)
			}
			continue
		}

		if err := s.extractFile(entry, target); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (s *Store) extractFile(entry *zip.File, target string) (err error) {
	if err := s.fs.MkdirAll(filepath.Dir(target), s.dirMode); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(target), err)
	}

	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", entry.Name, err)
	}
	defer src.Close()

	dst, err := s.fs.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, s.fileMode)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	defer func() {
		err = multierr.Append(err, dst.Close())
	}()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("extract %s: %w", entry.Name, err)
	}
	return nil
}

// entryPath resolves a zip entry name under root, refusing escapes.
func entryPath(root, name string) (string, error) {
	slashed := strings.ReplaceAll(name, "\\", "/")
	clean := path.Clean(slashed)
	if path.IsAbs(slashed) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("archive entry %q escapes %s", name, root)
	}
	return filepath.Join(root, filepath.FromSlash(clean)), nil
}

// Bundle zips every file under dir whose base name matches pattern into
// dir/<prefix><name>. Entries are flattened to their base name and given
// the same prefix. It returns the zero result when nothing matched.
func (s *Store) Bundle(dir, name, prefix, pattern string) (WriteResult, int, error) {
	if name == "" {
		name = DefaultBundleName
	}
	bundlePath := filepath.Join(dir, prefix+name)

	files, err := s.MatchFiles(pattern, dir)
	if err != nil {
		return WriteResult{}, 0, err
	}
	return s.BundleFiles(bundlePath, prefix, files)
}

// MatchFiles walks each root (a file or a directory) and returns the files
// whose base name matches pattern, case-insensitively, sorted. Files this
// Store claimed as bundles are skipped.
func (s *Store) MatchFiles(pattern string, roots ...string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultBundlePattern
	}
	pattern = strings.ToLower(pattern)
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}

	seen := make(map[string]bool)
	var files []string
	for _, root := range roots {
		err := afero.Walk(s.fs, root, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() || seen[p] || s.isBundle(p) {
				return nil
			}
			if ok, _ := filepath.Match(pattern, strings.ToLower(info.Name())); ok {
				seen[p] = true
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", root, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

// BundleFiles zips files into bundlePath, flattening each entry to
// prefix + base name; base names that already start with prefix are kept.
// Clashing names get a numeric suffix. Nothing is written when files is
// empty.
func (s *Store) BundleFiles(bundlePath, prefix string, files []string) (WriteResult, int, error) {
	if len(files) == 0 {
		return WriteResult{}, 0, nil
	}

	s.mu.Lock()
	s.bundles[filepath.Clean(bundlePath)] = true
	s.mu.Unlock()

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(s.writeBundle(pw, files, prefix))
	}()

	result, err := s.Write(bundlePath, pr)
	// unblock the writer if Write gave up early
	pr.CloseWithError(io.ErrClosedPipe)
	if err != nil {
		return WriteResult{}, 0, err
	}
	return result, len(files), nil
}

func (s *Store) isBundle(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bundles[filepath.Clean(p)]
}

func (s *Store) writeBundle(w io.Writer, files []string, prefix string) error {
	zw := zip.NewWriter(w)
	used := make(map[string]bool, len(files))

	for _, p := range files {
		entry := filepath.Base(p)
		if !strings.HasPrefix(entry, prefix) {
			entry = prefix + entry
		}
		ext := filepath.Ext(entry)
		stem := strings.TrimSuffix(entry, ext)
		for n := 1; used[strings.ToLower(entry)]; n++ {
			entry = fmt.Sprintf("%s_%d%s", stem, n, ext)
		}
		used[strings.ToLower(entry)] = true

		if err := s.addToBundle(zw, p, entry); err != nil {
			return multierr.Append(err, zw.Close())
		}
	}
	return zw.Close()
}

func (s *Store) addToBundle(zw *zip.Writer, src, entry string) error {
	f, err := s.fs.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: entry, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("add %s: %w", entry, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("add %s: %w", entry, err)
	}
	return nil
}
