package scene

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// ConfigName is the file FindConfig looks for.
const ConfigName = "shadekit.toml"

var (
	ErrUnknownBackend = errors.New("unknown backend")
	ErrBadStackSize   = errors.New("stack_size must be between 1 and 255")
)

// Config is the contents of shadekit.toml.
type Config struct {
	// Path is the file the config was read from; empty for defaults.
	Path string `toml:"-"`

	Render struct {
		Backend string `toml:"backend"`
		Jobs    int    `toml:"jobs"`
	} `toml:"render"`

	SVM struct {
		StackSize int `toml:"stack_size"`
	} `toml:"svm"`

	OSL struct {
		SearchPath []string `toml:"search_path"`
		Compiler   string   `toml:"compiler"`
		CacheDir   string   `toml:"cache_dir"`
	} `toml:"osl"`
}

// DefaultConfig is used when no shadekit.toml exists.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Render.Backend = "svm"
	cfg.SVM.StackSize = 255
	cfg.OSL.Compiler = "oslc"
	return cfg
}

// FindConfig walks up from startDir to locate shadekit.toml.
func FindConfig(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, ConfigName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// LoadConfig reads path over the defaults. Relative OSL paths are resolved
// against the directory of the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}
	cfg.Path = path
	cfg.Render.Backend = strings.ToLower(strings.TrimSpace(cfg.Render.Backend))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if meta.IsDefined("svm", "stack_size") && cfg.SVM.StackSize == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrBadStackSize)
	}

	base := filepath.Dir(path)
	for i, dir := range cfg.OSL.SearchPath {
		if !filepath.IsAbs(dir) {
			cfg.OSL.SearchPath[i] = filepath.Join(base, dir)
		}
	}
	if cfg.OSL.CacheDir != "" && !filepath.IsAbs(cfg.OSL.CacheDir) {
		cfg.OSL.CacheDir = filepath.Join(base, cfg.OSL.CacheDir)
	}
	return cfg, nil
}

// LoadNearestConfig finds and loads the nearest shadekit.toml, falling back
// to defaults.
func LoadNearestConfig(startDir string) (*Config, error) {
	path, ok, err := FindConfig(startDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return DefaultConfig(), nil
	}
	return LoadConfig(path)
}

func (c *Config) Validate() error {
	switch c.Render.Backend {
	case "svm", "osl":
	default:
		return fmt.Errorf("%w %q", ErrUnknownBackend, c.Render.Backend)
	}
	if c.Render.Jobs < 0 {
		return fmt.Errorf("jobs must not be negative, got %d", c.Render.Jobs)
	}
	if c.SVM.StackSize < 0 || c.SVM.StackSize > 255 {
		return fmt.Errorf("%w, got %d", ErrBadStackSize, c.SVM.StackSize)
	}
	return nil
}
