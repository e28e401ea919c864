// Package config loads service configuration from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/viper"
)

// Load fills out (a struct with mapstructure tags) from environment variables
// and the .env file in the working directory. Every key in defaults is bound
// to the environment; use an empty string default for keys without one.
func Load(out any, defaults map[string]any) error {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v.SetDefault(k, defaults[k])
		if err := v.BindEnv(k); err != nil {
			return fmt.Errorf("bind %s: %w", k, err)
		}
	}

	// A missing .env file is fine.
	_ = v.ReadInConfig()

	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

// Required returns an error naming key when value is empty.
func Required(key, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", key)
	}
	return nil
}

// Port validates a TCP port value.
func Port(key, value string) error {
	p, err := strconv.Atoi(value)
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("%s must be a valid TCP port (got %q)", key, value)
	}
	return nil
}
