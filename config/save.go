package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Saver writes settings to the global or local file.
type Saver struct {
	// Fs defaults to the OS filesystem.
	Fs afero.Fs

	GlobalPath string
	LocalPath  string
}

// NewSaver returns a Saver for the files a Resolver reads.
func NewSaver(r *Resolver) Saver {
	return Saver{Fs: r.fs, GlobalPath: r.globalPath, LocalPath: r.localPath}
}

func (s Saver) fs() afero.Fs {
	if s.Fs == nil {
		return afero.NewOsFs()
	}
	return s.Fs
}

// Set stores key=value in the local file when local is true, otherwise
// in the global file. The global file may hold a token and is private.
func (s Saver) Set(key, value string, local bool) error {
	path, allowed, mode, err := s.target(local)
	if err != nil {
		return err
	}
	if !contains(allowed, key) {
		return fmt.Errorf("unknown %s config key: %s\n\nValid keys: %s",
			scope(local), key, strings.Join(allowed, ", "))
	}

	existing, err := s.load(path)
	if err != nil {
		return err
	}
	existing[key] = parseValue(value)

	return s.store(path, existing, mode)
}

// Unset removes key from the chosen file. A missing file is not an error.
func (s Saver) Unset(key string, local bool) error {
	path, _, mode, err := s.target(local)
	if err != nil {
		return err
	}
	if ok, _ := afero.Exists(s.fs(), path); !ok {
		return nil
	}

	existing, err := s.load(path)
	if err != nil {
		return err
	}
	if _, ok := existing[key]; !ok {
		return nil
	}
	delete(existing, key)

	return s.store(path, existing, mode)
}

func (s Saver) target(local bool) (path string, allowed []string, mode os.FileMode, err error) {
	if local {
		if s.LocalPath == "" {
			return "", nil, 0, fmt.Errorf("git root not found; run inside a repository to use --local")
		}
		return s.LocalPath, LocalKeys, 0o644, nil
	}
	if s.GlobalPath == "" {
		return "", nil, 0, fmt.Errorf("global config path not known")
	}
	return s.GlobalPath, Keys, 0o600, nil
}

// load reads path as a YAML mapping. A missing file is empty. A malformed
// file is an error so Set never silently drops its contents.
func (s Saver) load(path string) (map[string]interface{}, error) {
	existing := make(map[string]interface{})

	data, err := afero.ReadFile(s.fs(), path)
	if err != nil {
		if os.IsNotExist(err) {
			return existing, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &existing); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if existing == nil {
		existing = make(map[string]interface{})
	}
	return existing, nil
}

func (s Saver) store(path string, values map[string]interface{}, mode os.FileMode) error {
	data, err := yaml.Marshal(values)
	if err != nil {
		return err
	}
	if err := s.fs().MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return afero.WriteFile(s.fs(), path, data, mode)
}

func scope(local bool) string {
	if local {
		return "local"
	}
	return "global"
}

// parseValue stores "true" and "false" as YAML booleans.
func parseValue(value string) interface{} {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	return value
}
