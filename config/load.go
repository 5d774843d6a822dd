// Package config loads liftcord settings from YAML files and LIFTCORD_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. LIFTCORD_BACKOFF_BASE.
const EnvPrefix = "LIFTCORD"

// LoadConfig reads path/filename.yaml into T. Keys present in defaults can be
// overridden from the environment even when the file does not set them.
func LoadConfig[T any](path string, filename string, defaults map[string]any) (*T, error) {
	return load[T](path, filename, defaults, false)
}

// LoadOptionalConfig is LoadConfig for a file that may be absent, in which
// case only the defaults and the environment apply.
func LoadOptionalConfig[T any](path string, filename string, defaults map[string]any) (*T, error) {
	return load[T](path, filename, defaults, true)
}

func load[T any](path string, filename string, defaults map[string]any, optional bool) (*T, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName(filename)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !optional || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s/%s: %w", path, filename, err)
		}
	}

	var cfg T
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	return &cfg, nil
}
