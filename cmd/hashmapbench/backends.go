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
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/coocood/freecache"
	"github.com/gigalabs/hashmap"
	"github.com/gigalabs/hashmap/arena"
	"github.com/rs/zerolog/log"
)

const (
	backendArena     = "arena"
	backendMmap      = "mmap"
	backendHeap      = "heap"
	backendRuntime   = "runtime"
	backendFreecache = "freecache"
)

func hashFunc(name string) (func(string) uint64, error) {
	switch name {
	case "fnv1a":
		return hashmap.FNV1a, nil
	case "xxhash":
		return xxhash.Sum64String, nil
	default:
		return nil, fmt.Errorf("unknown hash %q", name)
	}
}

// workload is the data shared by every backend. Keys and values stay
// reachable for the whole run, as the arena-backed maps require.
type workload struct {
	cfg    *config
	hash   func(string) uint64
	keys   []string
	values []uint64
}

func newWorkload(cfg *config) (*workload, error) {
	hash, err := hashFunc(cfg.Hash)
	if err != nil {
		return nil, err
	}
	w := &workload{
		cfg:    cfg,
		hash:   hash,
		keys:   make([]string, cfg.Inserts),
		values: make([]uint64, cfg.Inserts),
	}
	for i := range w.keys {
		w.keys[i] = fmt.Sprintf("key-%d", i)
		w.values[i] = uint64(i) * 2
	}
	return w, nil
}

type result struct {
	backend  string
	inserted int
	rejected int
	elapsed  time.Duration
	clone    time.Duration
}

func (r result) log() {
	ev := log.Info().
		Str("backend", r.backend).
		Int("inserted", r.inserted).
		Int("rejected", r.rejected).
		Dur("elapsed", r.elapsed).
		Float64("inserts-per-sec", float64(r.inserted)/r.elapsed.Seconds())
	if r.clone > 0 {
		ev = ev.Dur("clone", r.clone)
	}
	ev.Msg("benchmark done")
}

func (w *workload) run(backend string) (result, error) {
	switch backend {
	case backendArena:
		a := arena.New(w.arenaSize())
		defer a.Release()
		return w.runMap(backend, a)
	case backendMmap:
		a, err := arena.NewMmap(w.arenaSize())
		if err != nil {
			return result{}, err
		}
		defer a.Release()
		return w.runMap(backend, a)
	case backendHeap:
		return w.runMap(backend, heapAllocator{})
	case backendRuntime:
		return w.runRuntime(), nil
	case backendFreecache:
		return w.runFreecache()
	default:
		return result{}, fmt.Errorf("unknown backend %q", backend)
	}
}

// arenaSize is large enough for the map and, when cloning, its clone.
func (w *workload) arenaSize() int {
	capacity := 1
	for capacity < w.cfg.Capacity {
		capacity <<= 1
	}
	n := capacity*hashmap.SlotSize() + arena.Align
	if w.cfg.Clone {
		n *= 2
	}
	return n
}

func (w *workload) runMap(backend string, allocator hashmap.Allocator) (result, error) {
	m, err := hashmap.New[uint64](allocator, w.cfg.Capacity,
		hashmap.WithHash[uint64](w.hash),
		hashmap.WithMaxLoadFactor[uint64](w.cfg.MaxLoadFactor),
		hashmap.WithLogger[uint64](log.Logger))
	if err != nil {
		return result{}, err
	}

	r := result{backend: backend}
	start := time.Now()
	for i := range w.keys {
		switch err := m.Put(w.keys[i], &w.values[i]); {
		case err == nil:
			r.inserted++
		case errors.Is(err, hashmap.ErrRejected), errors.Is(err, hashmap.ErrTableFull):
			r.rejected++
		default:
			return result{}, err
		}
	}
	r.elapsed = time.Since(start)

	if w.cfg.Clone {
		start = time.Now()
		c, err := m.Clone(allocator)
		if err != nil {
			return result{}, err
		}
		r.clone = time.Since(start)
		if c.Len() != m.Len() {
			return result{}, fmt.Errorf("clone has %d entries, want %d", c.Len(), m.Len())
		}
	}

	if err := w.verify(m); err != nil {
		return result{}, err
	}
	return r, nil
}

// verify checks that every accepted insert is visible.
func (w *workload) verify(m *hashmap.Map[uint64]) error {
	found := 0
	for i := range w.keys {
		v, ok := m.Get(w.keys[i])
		if !ok {
			continue
		}
		if *v != w.values[i] {
			return fmt.Errorf("key %q: got %d, want %d", w.keys[i], *v, w.values[i])
		}
		found++
	}
	if found != m.Len() {
		return fmt.Errorf("found %d entries, map holds %d", found, m.Len())
	}
	return nil
}

func (w *workload) runRuntime() result {
	m := make(map[string]*uint64, w.cfg.Capacity)
	start := time.Now()
	for i := range w.keys {
		m[w.keys[i]] = &w.values[i]
	}
	return result{backend: backendRuntime, inserted: len(m), elapsed: time.Since(start)}
}

func (w *workload) runFreecache() (result, error) {
	// freecache copies keys and values into its own segments; size it so
	// that nothing is evicted.
	size := w.cfg.Inserts * 128
	if size < 512*1024 {
		size = 512 * 1024
	}
	c := freecache.NewCache(size)
	var buf [8]byte

	r := result{backend: backendFreecache}
	start := time.Now()
	for i := range w.keys {
		binary.LittleEndian.PutUint64(buf[:], w.values[i])
		if err := c.Set([]byte(w.keys[i]), buf[:], 0); err != nil {
			r.rejected++
			continue
		}
		r.inserted++
	}
	r.elapsed = time.Since(start)
	if evicted := c.EvacuateCount(); evicted > 0 {
		log.Warn().Int64("evacuated", evicted).Msg("freecache evicted entries")
	}
	return r, nil
}

// heapAllocator allocates every block from the Go heap, the counterpart of
// a malloc-backed table.
type heapAllocator struct{}

func (heapAllocator) Alloc(size int) []byte {
	words := make([]uint64, (size+7)/8)
	if len(words) == 0 {
		return nil
	}
	return unsafeBytes(words)[:size]
}
