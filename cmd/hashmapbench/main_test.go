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
	"testing"

	"github.com/gigalabs/hashmap"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig()
	require.NoError(t, err)
	require.Equal(t, 1_000_000, cfg.Inserts)
	require.Equal(t, 4_000_000, cfg.Capacity)
	require.Equal(t, hashmap.DefaultMaxLoadFactor, cfg.MaxLoadFactor)
	require.Equal(t, "fnv1a", cfg.Hash)
	require.Equal(t, []string{"arena", "mmap", "heap", "runtime", "freecache"}, cfg.Backends)
	require.True(t, cfg.Clone)
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("HASHMAPBENCH_INSERTS", "1000")
	t.Setenv("HASHMAPBENCH_CAPACITY", "2048")
	t.Setenv("HASHMAPBENCH_HASH", "xxhash")
	t.Setenv("HASHMAPBENCH_BACKENDS", "arena,runtime")
	t.Setenv("HASHMAPBENCH_CLONE", "false")

	cfg, err := loadConfig()
	require.NoError(t, err)
	require.Equal(t, 1000, cfg.Inserts)
	require.Equal(t, 2048, cfg.Capacity)
	require.Equal(t, "xxhash", cfg.Hash)
	require.Equal(t, []string{"arena", "runtime"}, cfg.Backends)
	require.False(t, cfg.Clone)
}

func TestLoadConfigInvalid(t *testing.T) {
	testCases := []struct {
		name, env, value string
	}{
		{"inserts", "HASHMAPBENCH_INSERTS", "0"},
		{"capacity", "HASHMAPBENCH_CAPACITY", "-1"},
		{"hash", "HASHMAPBENCH_HASH", "md5"},
		{"backend", "HASHMAPBENCH_BACKENDS", "arena,btree"},
	}
	for _, c := range testCases {
		t.Run(c.name, func(t *testing.T) {
			t.Setenv(c.env, c.value)
			_, err := loadConfig()
			require.Error(t, err)
		})
	}
}

func TestRunBackends(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	defer zerolog.SetGlobalLevel(zerolog.DebugLevel)

	cfg := &config{
		Inserts:       2000,
		MaxLoadFactor: hashmap.DefaultMaxLoadFactor,
		Hash:          "xxhash",
		Backends:      []string{backendArena, backendHeap, backendRuntime, backendFreecache},
		Clone:         true,
	}
	require.NoError(t, cfg.validate())

	w, err := newWorkload(cfg)
	require.NoError(t, err)
	for _, backend := range cfg.Backends {
		t.Run(backend, func(t *testing.T) {
			r, err := w.run(backend)
			require.NoError(t, err)
			require.Equal(t, cfg.Inserts, r.inserted)
			require.Zero(t, r.rejected)
		})
	}
}

func TestRunRejectsOverLoad(t *testing.T) {
	// 100 inserts into 64 slots: 44 are accepted, the rest are rejected.
	cfg := &config{
		Inserts:       100,
		Capacity:      64,
		MaxLoadFactor: hashmap.DefaultMaxLoadFactor,
		Hash:          "fnv1a",
		Backends:      []string{backendArena},
	}
	require.NoError(t, cfg.validate())

	w, err := newWorkload(cfg)
	require.NoError(t, err)
	r, err := w.run(backendArena)
	require.NoError(t, err)
	require.Equal(t, 44, r.inserted)
	require.Equal(t, 56, r.rejected)
}
