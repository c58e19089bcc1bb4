package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Settings keys.
const (
	KeyToken      = "token"
	KeyBaseURL    = "base_url"
	KeyTokenType  = "token_type"
	KeyOutputDir  = "output_dir"
	KeyWorkers    = "workers"
	KeyTimeout    = "timeout"
	KeyRetries    = "retries"
	KeyWebhookURL = "webhook_url"
	KeySlackURL   = "slack_webhook_url"
	KeyLogLevel   = "log_level"
)

// File locations and environment naming.
const (
	EnvPrefix        = "ARTIFETCH_"
	GlobalConfigDir  = "artifetch"
	GlobalConfigFile = "config.yaml"
	LocalConfigName  = ".artifetch.yaml"
)

// MaxWorkers bounds concurrent downloads per target.
const MaxWorkers = 8

// Defaults holds the built-in value of every key that has one.
var Defaults = map[string]string{
	KeyBaseURL:   "https://gitlab.com/api/v4",
	KeyTokenType: "private",
	KeyOutputDir: "artifacts",
	KeyWorkers:   "1",
	KeyTimeout:   "30s",
	KeyRetries:   "3",
	KeyLogLevel:  "warn",
}

// Keys lists every settings key.
var Keys = []string{
	KeyToken, KeyBaseURL, KeyTokenType, KeyOutputDir, KeyWorkers,
	KeyTimeout, KeyRetries, KeyWebhookURL, KeySlackURL, KeyLogLevel,
}

// LocalKeys are the keys allowed in the local file, which is usually
// committed. Tokens belong in the environment or the global file.
var LocalKeys = []string{
	KeyBaseURL, KeyTokenType, KeyOutputDir, KeyWorkers,
	KeyTimeout, KeyRetries, KeyLogLevel,
}

// envAliases are checked when the prefixed variable is unset.
var envAliases = map[string][]string{
	KeyToken:   {"GITLAB_TOKEN", "CI_JOB_TOKEN"},
	KeyBaseURL: {"GITLAB_BASE_URL", "CI_API_V4_URL"},
}

// ResolverConfig configures where settings are read from.
type ResolverConfig struct {
	// Fs is where config files are read. Defaults to the OS filesystem.
	Fs afero.Fs

	// GlobalPath overrides ~/.config/artifetch/config.yaml.
	GlobalPath string

	// LocalPath overrides .artifetch.yaml in the git root.
	LocalPath string

	// StartDir is where git root detection begins. Defaults to ".".
	StartDir string

	// Getenv defaults to os.Getenv.
	Getenv func(string) string

	// Logger receives warnings about unreadable files.
	Logger *slog.Logger
}

// Resolver merges settings from every source.
type Resolver struct {
	fs         afero.Fs
	getenv     func(string) string
	logger     *slog.Logger
	globalPath string
	localPath  string
	gitRoot    string

	// Warnings collects non-fatal issues during resolution.
	Warnings []string
}

// NewResolver creates a resolver, locating the global and local files.
func NewResolver(cfg ResolverConfig) *Resolver {
	r := &Resolver{
		fs:         cfg.Fs,
		getenv:     cfg.Getenv,
		logger:     cfg.Logger,
		globalPath: cfg.GlobalPath,
		localPath:  cfg.LocalPath,
	}
	if r.fs == nil {
		r.fs = afero.NewOsFs()
	}
	if r.getenv == nil {
		r.getenv = os.Getenv
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}

	start := cfg.StartDir
	if start == "" {
		start = "."
	}
	r.gitRoot = findGitRoot(r.fs, start)
	if r.localPath == "" && r.gitRoot != "" {
		r.localPath = filepath.Join(r.gitRoot, LocalConfigName)
	}

	if r.globalPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			r.globalPath = filepath.Join(home, ".config", GlobalConfigDir, GlobalConfigFile)
		}
	}

	return r
}

func (r *Resolver) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
	r.logger.Warn(msg)
}

// Resolved holds merged values and where each came from.
type Resolved struct {
	values  map[string]string
	sources map[string]Source
}

// Get returns the value for a key, or "" if unset.
func (c *Resolved) Get(key string) string {
	return c.values[key]
}

// Source returns where a key's value came from.
func (c *Resolved) Source(key string) Source {
	return c.sources[key]
}

// All returns a copy of every key-value pair.
func (c *Resolved) All() map[string]string {
	result := make(map[string]string, len(c.values))
	for k, v := range c.values {
		result[k] = v
	}
	return result
}

// Keys returns the set keys, sorted.
func (c *Resolved) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Resolve merges every source. Priority, highest first:
// flags > env > local > global > defaults. Empty flag values are ignored.
func (r *Resolver) Resolve(flags map[string]string) *Resolved {
	cfg := &Resolved{
		values:  make(map[string]string),
		sources: make(map[string]Source),
	}

	for key, value := range Defaults {
		cfg.set(key, value, SourceDefault)
	}
	r.applyFile(cfg, r.globalPath, Keys, SourceGlobal)
	r.applyFile(cfg, r.localPath, LocalKeys, SourceLocal)
	r.applyEnv(cfg)

	for key, value := range flags {
		if value != "" {
			cfg.set(key, value, SourceFlag)
		}
	}
	return cfg
}

func (c *Resolved) set(key, value string, source Source) {
	c.values[key] = value
	c.sources[key] = source
}

func (r *Resolver) applyFile(cfg *Resolved, path string, allowed []string, source Source) {
	if path == "" {
		return
	}

	data, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return
	}

	var parsed map[string]interface{}
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		r.warn(fmt.Sprintf("could not parse %s: %v", path, err))
		return
	}

	for key, value := range parsed {
		if !contains(allowed, key) {
			r.warn(fmt.Sprintf("ignoring key %q in %s", key, path))
			continue
		}
		if s := toString(value); s != "" {
			cfg.set(key, s, source)
		}
	}
}

func (r *Resolver) applyEnv(cfg *Resolved) {
	for _, key := range Keys {
		if value := r.getenv(EnvPrefix + strings.ToUpper(key)); value != "" {
			cfg.set(key, value, SourceEnv)
			continue
		}
		for _, alias := range envAliases[key] {
			if value := r.getenv(alias); value != "" {
				cfg.set(key, value, SourceEnv)
				break
			}
		}
	}
}

// GitRoot returns the detected git root, if any.
func (r *Resolver) GitRoot() string {
	return r.gitRoot
}

// GlobalPath returns the global config file path.
func (r *Resolver) GlobalPath() string {
	return r.globalPath
}

// LocalPath returns the local config file path.
func (r *Resolver) LocalPath() string {
	return r.localPath
}

// Settings is the typed form of a Resolved configuration.
type Settings struct {
	Token      string
	BaseURL    string
	TokenType  string
	OutputDir  string
	Workers    int
	Timeout    time.Duration
	Retries    int
	WebhookURL string
	SlackURL   string
	LogLevel   slog.Level
}

// Settings parses and validates the resolved values. The token is not
// checked here; a missing token is an authentication failure.
func (c *Resolved) Settings() (Settings, error) {
	s := Settings{
		Token:      c.Get(KeyToken),
		BaseURL:    strings.TrimRight(c.Get(KeyBaseURL), "/"),
		TokenType:  c.Get(KeyTokenType),
		OutputDir:  c.Get(KeyOutputDir),
		WebhookURL: c.Get(KeyWebhookURL),
		SlackURL:   c.Get(KeySlackURL),
	}

	var err error
	if s.Workers, err = strconv.Atoi(c.Get(KeyWorkers)); err != nil {
		return s, fmt.Errorf("%s: %q is not a number", KeyWorkers, c.Get(KeyWorkers))
	}
	if s.Retries, err = strconv.Atoi(c.Get(KeyRetries)); err != nil {
		return s, fmt.Errorf("%s: %q is not a number", KeyRetries, c.Get(KeyRetries))
	}
	if s.Timeout, err = time.ParseDuration(c.Get(KeyTimeout)); err != nil {
		return s, fmt.Errorf("%s: %v", KeyTimeout, err)
	}
	if err := s.LogLevel.UnmarshalText([]byte(c.Get(KeyLogLevel))); err != nil {
		return s, fmt.Errorf("%s: %v", KeyLogLevel, err)
	}

	return s, s.Validate()
}

// Validate checks ranges and formats.
func (s *Settings) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.BaseURL, is.URL),
		validation.Field(&s.TokenType, validation.In("private", "oauth", "job")),
		validation.Field(&s.OutputDir, validation.Required),
		validation.Field(&s.Workers, validation.Required, validation.Min(1), validation.Max(MaxWorkers)),
		validation.Field(&s.Retries, validation.Required, validation.Min(1)),
		validation.Field(&s.Timeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&s.WebhookURL, is.URL),
		validation.Field(&s.SlackURL, is.URL),
	)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int, int64, float64:
		return fmt.Sprintf("%v", val)
	default:
		return ""
	}
}

// findGitRoot walks up from startDir looking for a .git directory.
func findGitRoot(fs afero.Fs, startDir string) string {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return ""
	}

	for {
		if ok, _ := afero.DirExists(fs, filepath.Join(dir, ".git")); ok {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
