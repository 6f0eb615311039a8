// Package config loads libpack settings from defaults, a YAML file, the
// environment and command-line flags using Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mouse-blink/libpack/internal/adapter"
	"github.com/mouse-blink/libpack/internal/domain"
)

const (
	// AppName is the application name.
	AppName = "libpack"
	// ConfigFileName is the config file looked up in the working directory.
	ConfigFileName = "libpack.yaml"
	// EnvPrefix prefixes every environment override, e.g. LIBPACK_STRICT.
	EnvPrefix = "LIBPACK"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds every setting a relocation run can take.
type Config struct {
	BundleDir      string   `mapstructure:"bundle_dir" yaml:"bundle_dir"`
	SystemPrefixes []string `mapstructure:"system_prefixes" yaml:"system_prefixes"`
	Strict         bool     `mapstructure:"strict" yaml:"strict"`
	Parallel       int      `mapstructure:"parallel" yaml:"parallel"`
	Signer         string   `mapstructure:"signer" yaml:"signer"`
	ExecutablePath string   `mapstructure:"executable_path" yaml:"executable_path"`
	SanitizeRpaths bool     `mapstructure:"sanitize_rpaths" yaml:"sanitize_rpaths"`
	Extensions     []string `mapstructure:"extensions" yaml:"extensions"`
	Exclude        []string `mapstructure:"exclude" yaml:"exclude"`
	PackageDirs    bool     `mapstructure:"package_dirs" yaml:"package_dirs"`
	Reports        string   `mapstructure:"reports" yaml:"reports"`
	CacheSize      int      `mapstructure:"cache_size" yaml:"cache_size"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() *Config {
	opts := domain.DefaultOptions()

	return &Config{
		BundleDir:      opts.BundleDir,
		SystemPrefixes: opts.SystemPrefixes,
		Parallel:       opts.Parallel,
		Signer:         adapter.SignerBuiltin,
		SanitizeRpaths: opts.SanitizeRpaths,
		Extensions:     []string{},
		Exclude:        []string{},
		CacheSize:      4096,
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"bundle-dir":      "bundle_dir",
	"system-prefix":   "system_prefixes",
	"strict":          "strict",
	"parallel":        "parallel",
	"signer":          "signer",
	"executable-path": "executable_path",
	"sanitize-rpaths": "sanitize_rpaths",
	"extension":       "extensions",
	"exclude":         "exclude",
	"package-dirs":    "package_dirs",
	"reports":         "reports",
}

// LoadOptions selects where configuration comes from.
type LoadOptions struct {
	// ConfigFile is used exclusively when set and must exist.
	ConfigFile string
	// Dir is searched for libpack.yaml when ConfigFile is empty.
	Dir string
	// Flags overrides file and environment values for flags the user set.
	Flags *pflag.FlagSet
}

// Load resolves the configuration and returns it with the path of the file it
// was read from, which is empty when no file was found.
func Load(opts LoadOptions) (*Config, string, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("bundle_dir", defaults.BundleDir)
	v.SetDefault("system_prefixes", defaults.SystemPrefixes)
	v.SetDefault("strict", defaults.Strict)
	v.SetDefault("parallel", defaults.Parallel)
	v.SetDefault("signer", defaults.Signer)
	v.SetDefault("executable_path", defaults.ExecutablePath)
	v.SetDefault("sanitize_rpaths", defaults.SanitizeRpaths)
	v.SetDefault("extensions", defaults.Extensions)
	v.SetDefault("exclude", defaults.Exclude)
	v.SetDefault("package_dirs", defaults.PackageDirs)
	v.SetDefault("reports", defaults.Reports)
	v.SetDefault("cache_size", defaults.CacheSize)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	resolved, err := readConfigFile(v, opts)
	if err != nil {
		return nil, "", err
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			flag := opts.Flags.Lookup(name)
			if flag == nil || !flag.Changed {
				continue
			}

			if err := v.BindPFlag(key, flag); err != nil {
				return nil, "", fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	return &cfg, resolved, nil
}

func readConfigFile(v *viper.Viper, opts LoadOptions) (string, error) {
	path := opts.ConfigFile

	if path == "" {
		dir := opts.Dir
		if dir == "" {
			dir = "."
		}

		path = filepath.Join(dir, ConfigFileName)
		if !fileExists(path) {
			return "", nil
		}
	} else if !fileExists(path) {
		return "", fmt.Errorf("config file not found: %s", path)
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config %s: %w", path, err)
	}

	return path, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Validate reports every setting that cannot be used.
func (c *Config) Validate() error {
	var errs []error

	if c.Parallel < 0 {
		errs = append(errs, fmt.Errorf("parallel must not be negative, got %d", c.Parallel))
	}

	if c.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("cache_size must not be negative, got %d", c.CacheSize))
	}

	if _, err := adapter.NewSigner(c.Signer); err != nil {
		errs = append(errs, err)
	}

	if err := c.Options().Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// Options converts the configuration into engine options.
func (c *Config) Options() domain.Options {
	return domain.Options{
		BundleDir:      c.BundleDir,
		SystemPrefixes: c.SystemPrefixes,
		Strict:         c.Strict,
		Parallel:       c.Parallel,
		ExecutablePath: c.ExecutablePath,
		SanitizeRpaths: c.SanitizeRpaths,
		Extensions:     c.Extensions,
		Exclude:        c.Exclude,
		PackageDirs:    c.PackageDirs,
	}
}

// YAML renders the configuration in the config file format.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
