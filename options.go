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


package hashmap

import (
	"github.com/rs/zerolog"
)

// Option provides an interface to do work on Map while it is being created.
type Option[V any] interface {
	apply(m *Map[V])
}

type hashOption[V any] struct {
	hash func(key string) uint64
}

func (op hashOption[V]) apply(m *Map[V]) {
	m.hash = op.hash
}

// WithHash is an option to specify the hash function to use for a Map[V].
// The function must be deterministic: cached hashes are compared on every
// probe and are copied verbatim by Clone. A nil hash leaves FNV1a in place.
func WithHash[V any](hash func(key string) uint64) Option[V] {
	return hashOption[V]{hash}
}

type maxLoadOption[V any] struct {
	maxLoad float64
}

func (op maxLoadOption[V]) apply(m *Map[V]) {
	m.maxLoad = op.maxLoad
}

// WithMaxLoadFactor is an option to specify the load factor above which Put
// refuses new keys with ErrRejected. It must be in (0, 1]. The default is
// DefaultMaxLoadFactor.
func WithMaxLoadFactor[V any](maxLoad float64) Option[V] {
	return maxLoadOption[V]{maxLoad}
}

type loggerOption[V any] struct {
	logger zerolog.Logger
}

func (op loggerOption[V]) apply(m *Map[V]) {
	m.logger = op.logger
}

// WithLogger is an option to specify the logger used to report rejected
// inserts, allocation failures and, when built with debug tracing, probe
// steps. The default logger discards everything.
func WithLogger[V any](logger zerolog.Logger) Option[V] {
	return loggerOption[V]{logger}
}

// Allocator specifies the interface a Map draws its slot memory from. It is
// modeled on a bump (arena) allocator: the Map requests exactly one block
// when it is created or cloned and never frees it. The memory is released
// only when the allocator itself is torn down, which must not happen while
// the Map is in use.
//
// The slots hold key and value references. Memory returned by an Allocator
// may be invisible to the garbage collector (e.g. an mmap region), so callers
// must keep every key and value passed to Put reachable for as long as the
// Map is used.
type Allocator interface {
	// Alloc returns a block of at least size bytes whose first byte is
	// aligned to 8 bytes, or nil if the request cannot be satisfied. The
	// contents of the block are unspecified.
	Alloc(size int) []byte
}
