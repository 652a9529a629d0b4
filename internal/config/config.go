// Package config loads the azwait configuration file.
//
// The file is CUE (JSON is valid CUE) and is unified with an embedded
// schema that supplies defaults and rejects unknown fields, so every
// Config returned by Load is complete and validated.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/Azure/azure-cli-sub020/internal/engine"
)

//go:embed schema.cue
var schemaCUE []byte

// EnvConfigPath names the environment variable holding the default
// configuration file path.
const EnvConfigPath = "AZWAIT_CONFIG"

// AuthMode selects the credential source.
type AuthMode string

const (
	AuthNone    AuthMode = "none"
	AuthDefault AuthMode = "default"
	AuthCLI     AuthMode = "cli"
)

// Config is the validated configuration. It is built once per process and
// passed explicitly; nothing reads it from package state.
type Config struct {
	Endpoint   string
	APIVersion string
	Database   string
	Auth       AuthMode
	Wait       WaitConfig
	Status     StatusConfig
}

// WaitConfig holds the wait defaults.
type WaitConfig struct {
	Timeout      time.Duration
	Interval     time.Duration
	MaxInterval  time.Duration
	Multiplier   float64
	Jitter       float64
	MaxPolls     int
	FetchTimeout time.Duration
	MaxRetries   int
}

// StatusConfig holds the provisioning-state conventions.
type StatusConfig struct {
	Paths      []string
	Succeeded  []string
	InProgress []string
	Failed     []string
}

// fileConfig mirrors the schema field names for decoding.
type fileConfig struct {
	Endpoint   string `json:"endpoint"`
	APIVersion string `json:"api_version"`
	Database   string `json:"database"`
	Auth       string `json:"auth"`
	Wait       struct {
		Timeout      float64 `json:"timeout"`
		Interval     float64 `json:"interval"`
		MaxInterval  float64 `json:"max_interval"`
		Multiplier   float64 `json:"multiplier"`
		Jitter       float64 `json:"jitter"`
		MaxPolls     int     `json:"max_polls"`
		FetchTimeout float64 `json:"fetch_timeout"`
		MaxRetries   int     `json:"max_retries"`
	} `json:"wait"`
	Status struct {
		Paths      []string `json:"paths"`
		Succeeded  []string `json:"succeeded"`
		InProgress []string `json:"in_progress"`
		Failed     []string `json:"failed"`
	} `json:"status"`
}

// ConfigError represents a configuration error with source position.
type ConfigError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *ConfigError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Default returns the configuration of an empty file.
func Default() Config {
	cfg, err := Parse("", nil)
	if err != nil {
		// The embedded schema always has complete defaults.
		panic(err)
	}
	return cfg
}

// Load reads and validates the file at path. An empty path returns Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &ConfigError{Field: "file", Message: err.Error()}
	}
	return Parse(path, data)
}

// Parse validates data (CUE or JSON) against the schema. filename is used
// in error positions.
func Parse(filename string, data []byte) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, formatCUEError(err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	if filename == "" {
		filename = "config.cue"
	}
	user := ctx.CompileBytes(data, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return Config{}, formatCUEError(err)
	}

	v := def.Unify(user)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, fieldError(err, user)
	}

	var fc fileConfig
	if err := v.Decode(&fc); err != nil {
		return Config{}, fieldError(err, user)
	}
	return fc.toConfig(), nil
}

func (fc fileConfig) toConfig() Config {
	return Config{
		Endpoint:   fc.Endpoint,
		APIVersion: fc.APIVersion,
		Database:   fc.Database,
		Auth:       AuthMode(fc.Auth),
		Wait: WaitConfig{
			Timeout:      seconds(fc.Wait.Timeout),
			Interval:     seconds(fc.Wait.Interval),
			MaxInterval:  seconds(fc.Wait.MaxInterval),
			Multiplier:   fc.Wait.Multiplier,
			Jitter:       fc.Wait.Jitter,
			MaxPolls:     fc.Wait.MaxPolls,
			FetchTimeout: seconds(fc.Wait.FetchTimeout),
			MaxRetries:   fc.Wait.MaxRetries,
		},
		Status: StatusConfig{
			Paths:      fc.Status.Paths,
			Succeeded:  fc.Status.Succeeded,
			InProgress: fc.Status.InProgress,
			Failed:     fc.Status.Failed,
		},
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// EngineOptions converts the wait and status sections into Waiter options.
func (c Config) EngineOptions() (engine.Options, error) {
	conv, err := engine.NewConventions(c.Status.Paths, c.Status.Succeeded, c.Status.InProgress, c.Status.Failed)
	if err != nil {
		return engine.Options{}, &ConfigError{Field: "status", Message: err.Error()}
	}
	return engine.Options{
		Timeout: c.Wait.Timeout,
		Backoff: engine.BackoffPolicy{
			Interval:    c.Wait.Interval,
			MaxInterval: c.Wait.MaxInterval,
			Multiplier:  c.Wait.Multiplier,
			Jitter:      c.Wait.Jitter,
		},
		MaxPolls:     c.Wait.MaxPolls,
		FetchTimeout: c.Wait.FetchTimeout,
		Conventions:  conv,
	}, nil
}

// DatabasePath returns the journal path, falling back to
// <user config dir>/azwait/journal.db.
func (c Config) DatabasePath() (string, error) {
	if c.Database != "" {
		return c.Database, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate user config dir: %w", err)
	}
	return filepath.Join(dir, "azwait", "journal.db"), nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &ConfigError{Field: "cue", Message: err.Error()}
	}

	first := errs[0]
	msg := first.Error()
	if path := first.Path(); len(path) > 0 {
		return &ConfigError{Field: strings.Join(path, "."), Message: msg, Pos: firstPos(first)}
	}
	return &ConfigError{Field: "cue", Message: msg, Pos: firstPos(first)}
}

// fieldError is formatCUEError with the position moved onto the offending
// field of the user's file, so an unknown or mistyped key points at its own
// line rather than at the enclosing struct.
func fieldError(err error, user cue.Value) error {
	formatted := formatCUEError(err)
	ce, ok := formatted.(*ConfigError)
	if !ok || ce.Field == "cue" {
		return formatted
	}
	if pos := fieldPos(user, strings.Split(ce.Field, ".")); pos.IsValid() {
		ce.Pos = pos
	}
	return ce
}

func fieldPos(user cue.Value, path []string) token.Pos {
	sels := make([]cue.Selector, 0, len(path))
	for _, elem := range path {
		if i, err := strconv.Atoi(elem); err == nil {
			sels = append(sels, cue.Index(i))
			continue
		}
		sels = append(sels, cue.Str(elem))
	}
	field := user.LookupPath(cue.MakePath(sels...))
	if !field.Exists() {
		return token.NoPos
	}
	return field.Pos()
}

// firstPos picks the most specific position in the user's file, falling
// back to the schema when the error only points there.
func firstPos(err errors.Error) token.Pos {
	positions := errors.Positions(err)
	best := token.NoPos
	for _, p := range positions {
		if p.Filename() == "schema.cue" {
			continue
		}
		if !best.IsValid() || p.Offset() > best.Offset() {
			best = p
		}
	}
	if best.IsValid() {
		return best
	}
	if len(positions) > 0 {
		return positions[0]
	}
	return token.NoPos
}
