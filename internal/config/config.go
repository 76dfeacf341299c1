// Package config loads blocky settings from the `[preprocessor.blocky]` table
// of a book's configuration, with BLOCKY_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Name is the preprocessor table name.
const Name = "blocky"

// BookFile is the name of an mdBook configuration file.
const BookFile = "book.toml"

// ErrorPolicy determines what happens when a chapter has malformed markers.
type ErrorPolicy string

// ErrorPolicy values.
const (
	// Skip logs the error and leaves the chapter unchanged.
	Skip ErrorPolicy = "skip"
	// Abort fails the whole book.
	Abort ErrorPolicy = "abort"
)

// Config holds blocky settings.
type Config struct {
	OnError   ErrorPolicy `mapstructure:"on-error" validate:"oneof=skip abort"`
	Renderers []string    `mapstructure:"renderers" validate:"dive,required"`
	LogLevel  string      `mapstructure:"log-level" validate:"oneof=debug info warn error"`
	LogFormat string      `mapstructure:"log-format" validate:"oneof=text json"`
}

// Defaults returns the default settings.
func Defaults() Config {
	return Config{
		OnError:   Skip,
		Renderers: []string{"html"},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// SupportsRenderer returns true if the named renderer is enabled.
func (cfg Config) SupportsRenderer(renderer string) bool {
	for _, name := range cfg.Renderers {
		if name == renderer {
			return true
		}
	}
	return false
}

var validate = validator.New()

func newViper() *viper.Viper {
	v := viper.New()
	def := Defaults()
	v.SetDefault("on-error", string(def.OnError))
	v.SetDefault("renderers", def.Renderers)
	v.SetDefault("log-level", def.LogLevel)
	v.SetDefault("log-format", def.LogFormat)
	v.SetEnvPrefix(Name)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// FromTable builds settings from a decoded preprocessor table, which may be
// nil.
func FromTable(table map[string]interface{}) (Config, error) {
	v := newViper()
	if table != nil {
		if err := v.MergeConfigMap(table); err != nil {
			return Config{}, fmt.Errorf("invalid %v config: %w", Name, err)
		}
	}
	return unmarshal(v)
}

// FromBookFile builds settings from the given book.toml file.
func FromBookFile(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("failed to read %v: %w", path, err)
	}
	return FromTable(v.GetStringMap("preprocessor." + Name))
}

// Load builds settings from the nearest book.toml, if any, otherwise from
// defaults; environment overrides apply either way.
func Load() (Config, error) {
	path, err := FindBookFile()
	if err != nil {
		return Config{}, err
	}
	if path == "" {
		return FromTable(nil)
	}
	return FromBookFile(path)
}

func unmarshal(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid %v config: %w", Name, err)
	}
	cfg.OnError = ErrorPolicy(strings.ToLower(string(cfg.OnError)))
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid %v config: %w", Name, err)
	}
	return cfg, nil
}

// FindBookFile looks for a book.toml in the current working directory and
// every parent directory, returning the absolute path of the first found, or
// "" if there is none.
func FindBookFile() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return findFileFrom(wd, BookFile)
}

func findFileFrom(dir, name string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}
