// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gigalabs/hashmap"
	"github.com/spf13/viper"
)

type config struct {
	// Inserts is the number of distinct keys inserted by every backend.
	Inserts int `mapstructure:"inserts"`
	// Capacity of the arena-backed maps. 0 means 4*Inserts.
	Capacity      int      `mapstructure:"capacity"`
	MaxLoadFactor float64  `mapstructure:"max_load_factor"`
	Hash          string   `mapstructure:"hash"`
	Backends      []string `mapstructure:"backends"`
	// Clone also times cloning the populated arena-backed maps.
	Clone    bool   `mapstructure:"clone"`
	LogLevel string `mapstructure:"log_level"`
}

var knownBackends = map[string]bool{
	backendArena:     true,
	backendMmap:      true,
	backendHeap:      true,
	backendRuntime:   true,
	backendFreecache: true,
}

func loadConfig() (*config, error) {
	v := viper.New()
	v.SetDefault("inserts", 1_000_000)
	v.SetDefault("capacity", 0)
	v.SetDefault("max_load_factor", hashmap.DefaultMaxLoadFactor)
	v.SetDefault("hash", "fnv1a")
	v.SetDefault("backends", []string{backendArena, backendMmap, backendHeap, backendRuntime, backendFreecache})
	v.SetDefault("clone", true)
	v.SetDefault("log_level", "INFO")
	bindEnvVars(v)

	v.SetConfigName("hashmapbench")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	v.BindEnv("inserts", "HASHMAPBENCH_INSERTS")
	v.BindEnv("capacity", "HASHMAPBENCH_CAPACITY")
	v.BindEnv("max_load_factor", "HASHMAPBENCH_MAX_LOAD_FACTOR")
	v.BindEnv("hash", "HASHMAPBENCH_HASH")
	v.BindEnv("backends", "HASHMAPBENCH_BACKENDS")
	v.BindEnv("clone", "HASHMAPBENCH_CLONE")
	v.BindEnv("log_level", "HASHMAPBENCH_LOG_LEVEL")
}

func (c *config) validate() error {
	if c.Inserts <= 0 {
		return fmt.Errorf("inserts must be positive, got %d", c.Inserts)
	}
	if c.Capacity == 0 {
		c.Capacity = 4 * c.Inserts
	}
	if c.Capacity < 0 {
		return fmt.Errorf("capacity must not be negative, got %d", c.Capacity)
	}
	if _, err := hashFunc(c.Hash); err != nil {
		return err
	}
	for i, b := range c.Backends {
		b = strings.ToLower(strings.TrimSpace(b))
		if !knownBackends[b] {
			return fmt.Errorf("unknown backend %q", b)
		}
		c.Backends[i] = b
	}
	return nil
}
