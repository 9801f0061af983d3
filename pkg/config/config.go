// Package config loads the editor configuration.
//
// Configuration comes from a single YAML file named by the --config flag or
// the WORKCELL_CONFIG environment variable. Fields the file leaves out keep
// the values from Default.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/chazu/workcell/pkg/geom"
	"github.com/chazu/workcell/pkg/workcell"
)

// EnvVar names the environment variable Load reads.
const EnvVar = "WORKCELL_CONFIG"

// ErrNoConfig is returned by Load when no file is named.
var ErrNoConfig = errors.New("no configuration file: set " + EnvVar + " or pass --config")

// Config is the full editor configuration.
type Config struct {
	Document DocumentConfig `yaml:"document"`
	Editor   EditorConfig   `yaml:"editor"`
	Import   ImportConfig   `yaml:"import"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Log      LogConfig      `yaml:"log"`
	Script   ScriptConfig   `yaml:"script"`
}

// DocumentConfig sets the conventions of new documents.
type DocumentConfig struct {
	Name   string      `yaml:"name"`
	Unit   geom.Unit   `yaml:"unit"`
	UpAxis geom.UpAxis `yaml:"up_axis"`
}

// EditorConfig tunes the editing session.
type EditorConfig struct {
	// Cascade is the policy for removing a link that has children:
	// "reparent" or "subtree".
	Cascade string `yaml:"cascade" validate:"oneof=reparent subtree"`
	// JournalLimit caps undo history. -1 means unlimited.
	JournalLimit int `yaml:"journal_limit" validate:"gte=-1"`
}

// ImportConfig controls robot description imports.
type ImportConfig struct {
	ValidateSchema bool `yaml:"validate_schema"`
	// Packages maps package:// names to directories.
	Packages map[string]string `yaml:"packages" validate:"dive,keys,required,endkeys,required"`
}

// JobsConfig bounds background work.
type JobsConfig struct {
	// Concurrency is the number of jobs that may run at once. Zero means
	// one per CPU.
	Concurrency int `yaml:"concurrency" validate:"gte=0,lte=256"`
}

// LogConfig selects the log output.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// ScriptConfig bounds script evaluation.
type ScriptConfig struct {
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// Default returns the configuration used for fields a file leaves unset.
func Default() *Config {
	return &Config{
		Document: DocumentConfig{Unit: geom.Meter, UpAxis: geom.UpZ},
		Editor:   EditorConfig{Cascade: "reparent", JournalLimit: 256},
		Import:   ImportConfig{ValidateSchema: true},
		Log:      LogConfig{Level: "info", Format: "text"},
		Script:   ScriptConfig{Timeout: 5 * time.Second},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the file named by WORKCELL_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil, ErrNoConfig
	}
	return LoadFile(path)
}

// LoadFile reads and validates a configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) expandVariables() {
	for name, dir := range c.Import.Packages {
		c.Import.Packages[name] = os.ExpandEnv(dir)
	}
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// CascadePolicy returns the configured link removal policy.
func (c *Config) CascadePolicy() workcell.CascadePolicy {
	if c.Editor.Cascade == "subtree" {
		return workcell.CascadeSubtree
	}
	return workcell.CascadeReparent
}

// Metadata returns the metadata for a new document.
func (c *Config) Metadata() workcell.Metadata {
	return workcell.Metadata{Name: c.Document.Name, Unit: c.Document.Unit, UpAxis: c.Document.UpAxis}
}
