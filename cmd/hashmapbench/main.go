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


// Command hashmapbench measures insert throughput of arena-backed hash maps
// against heap-backed ones, Go's builtin map and freecache.
//
// It is configured through environment variables (HASHMAPBENCH_INSERTS,
// HASHMAPBENCH_CAPACITY, HASHMAPBENCH_MAX_LOAD_FACTOR, HASHMAPBENCH_HASH,
// HASHMAPBENCH_BACKENDS, HASHMAPBENCH_CLONE, HASHMAPBENCH_LOG_LEVEL) or an
// optional hashmapbench.{yaml,json,toml} in the working directory.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "hashmapbench: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := initLogger(cfg.LogLevel); err != nil {
		return err
	}

	w, err := newWorkload(cfg)
	if err != nil {
		return err
	}
	log.Info().
		Int("inserts", cfg.Inserts).
		Int("capacity", cfg.Capacity).
		Float64("max-load-factor", cfg.MaxLoadFactor).
		Str("hash", cfg.Hash).
		Strs("backends", cfg.Backends).
		Msg("starting")

	for _, backend := range cfg.Backends {
		// Start every backend from a clean heap so that earlier runs do not
		// bill their garbage to later ones.
		runtime.GC()
		r, err := w.run(backend)
		if err != nil {
			return fmt.Errorf("%s: %w", backend, err)
		}
		r.log()
	}
	return nil
}
