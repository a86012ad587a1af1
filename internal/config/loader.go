package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "CONTEXTCORE_"
)

// nestedSections lists the sub-sections whose names may follow a section in
// an environment variable. Keys not listed keep their underscores.
var nestedSections = map[string][]string{
	"vectorstore": {"chromem", "qdrant"},
	"logging":     {"output", "sampling", "caller", "stacktrace", "redaction"},
	"telemetry":   {"sampling", "metrics", "shutdown"},
}

// Load loads configuration from a YAML file, then overrides it with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (CONTEXTCORE_SERVER_HTTP_PORT, ...)
//  2. YAML config file (~/.config/contextcore/config.yaml)
//  3. Default()
//
// An empty configPath uses the default path. A missing file is not an error.
//
// # Security Considerations
//
// The file must live under ~/.config/contextcore/ or /etc/contextcore/, be
// readable by its owner only (0600 or 0400) and be at most 1MB.
//
// # Environment Variable Mapping
//
// The prefix is stripped, the name is lowercased and the first underscore
// separates the section from the field. Known sub-sections are split too:
//
//	CONTEXTCORE_SEARCH_OVERFETCH_FACTOR     -> search.overfetch_factor
//	CONTEXTCORE_VECTORSTORE_QDRANT_USE_TLS  -> vectorstore.qdrant.use_tls
//	CONTEXTCORE_TELEMETRY_SAMPLING_RATE     -> telemetry.sampling.rate
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		path, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		configPath = path
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		// Validate through the open descriptor to avoid a TOCTOU race.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envKey maps CONTEXTCORE_SECTION_FIELD to section.field.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))

	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}

	for _, sub := range nestedSections[section] {
		if rest, found := strings.CutPrefix(field, sub+"_"); found {
			return section + "." + sub + "." + rest
		}
	}
	return section + "." + field
}

// DefaultConfigPath returns ~/.config/contextcore/config.yaml.
func DefaultConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// EnsureConfigDir creates the contextcore config directory with 0700
// permissions if it does not exist.
func EnsureConfigDir() error {
	dir, err := configDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	return nil
}

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "contextcore"), nil
}

// validateConfigPath checks the path is inside an allowed directory. It runs
// even when the file does not exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Follow symlinks so they cannot escape the allowed directories.
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	userDir, err := configDir()
	if err != nil {
		return err
	}

	for _, dir := range []string{userDir, "/etc/contextcore"} {
		if isWithin(resolvedPath, dir) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/contextcore/ or /etc/contextcore/")
}

func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// validateConfigFileProperties checks permissions and size of an opened file.
func validateConfigFileProperties(info os.FileInfo) error {
	// Windows has a different permission model.
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}
