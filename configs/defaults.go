package configs

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

var (
	//go:embed config.example.yaml
	exampleYAML string

	defaultsOnce sync.Once
	defaults     Config
	defaultsErr  error
)

// DefaultConfig returns the embedded example configuration. It is validated
// once, so flag defaults derived from it always form a usable config.
func DefaultConfig() (Config, error) {
	defaultsOnce.Do(func() {
		defaults, defaultsErr = decodeYAML(exampleYAML)
		if defaultsErr != nil {
			defaultsErr = fmt.Errorf("embedded config.example.yaml: %w", defaultsErr)
			return
		}
		if err := defaults.Validate(); err != nil {
			defaultsErr = fmt.Errorf("embedded config.example.yaml is invalid: %w", err)
		}
	})

	if defaultsErr != nil {
		return Config{}, defaultsErr
	}

	cfg := defaults
	cfg.Deployments = slices.Clone(defaults.Deployments)
	return cfg, nil
}

// MustDefaultConfig returns embedded defaults or panics if they cannot be loaded.
func MustDefaultConfig() Config {
	cfg, err := DefaultConfig()
	if err != nil {
		panic(err)
	}
	return cfg
}

func decodeYAML(data string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(data)); err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}
