package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrConfigNotFound is returned by Load when an explicit path does not exist.
var ErrConfigNotFound = errors.New("config file not found")

// Load reads settings from a YAML file, then applies environment overrides.
// An empty path skips the file. Precedence, lowest first: built-in defaults,
// file, environment. A non-empty provider wins over the file's llm.provider.
func Load(path, provider string) (Settings, error) {
	settings := defaults()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(expandUserPath(path))
		if err != nil {
			if os.IsNotExist(err) {
				return Settings{}, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
			}
			return Settings{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return Settings{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	return resolve(settings, provider)
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil && strings.TrimSpace(home) != "" {
			return filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return path
}
