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


// Package arena implements a bump allocator: memory is carved sequentially
// out of one large block and released all at once.
//
// An Arena never frees individual allocations. Reset makes the whole block
// available again and Release tears it down; in both cases everything
// previously returned by Alloc becomes invalid. An Arena is the intended
// hashmap.Allocator: a map created on it lives exactly as long as the arena.
//
// The backing block is either a Go heap slice (New) or an anonymous memory
// mapping (NewMmap). In neither case does the garbage collector look for
// pointers inside the block, so anything referenced from arena memory must be
// kept reachable by other means.
//
// An Arena is NOT goroutine-safe.
package arena

import (
	"fmt"
	"unsafe"

	"github.com/rs/zerolog/log"
)

// Align is the alignment of every block returned by Alloc.
const Align = 8

// Arena is a bump allocator over a fixed block of memory.
type Arena struct {
	buf  []byte
	used int
	// release returns buf to the system. Nil for heap-backed arenas, which
	// are left to the garbage collector.
	release func(b []byte) error
}

// New returns an Arena backed by a Go heap block of size bytes.
func New(size int) *Arena {
	if size < 0 {
		size = 0
	}
	return &Arena{buf: make([]byte, size)}
}

// Alloc returns a block of size bytes aligned to Align, or nil if the arena
// does not have room for it. The contents of the block are unspecified: a
// block handed out after Reset holds whatever was written there before.
func (a *Arena) Alloc(size int) []byte {
	if size < 0 || a.buf == nil {
		return nil
	}
	// Align the address rather than the offset so that alignment does not
	// depend on the alignment of the backing block.
	base := uintptr(unsafe.Pointer(unsafe.SliceData(a.buf)))
	start := int(alignUp(base+uintptr(a.used)) - base)
	if start > len(a.buf) || size > len(a.buf)-start {
		log.Debug().Int("size", size).Int("used", a.used).Int("cap", len(a.buf)).
			Msg("arena: exhausted")
		return nil
	}
	a.used = start + size
	return a.buf[start : start+size : start+size]
}

// Used returns the number of bytes consumed, alignment padding included.
func (a *Arena) Used() int {
	return a.used
}

// Cap returns the size of the backing block in bytes.
func (a *Arena) Cap() int {
	return len(a.buf)
}

// Remaining returns the number of bytes that have not been handed out yet.
// An allocation of Remaining() bytes may still fail because of alignment.
func (a *Arena) Remaining() int {
	return len(a.buf) - a.used
}

// Reset makes the whole block available again. Everything allocated before
// becomes invalid.
func (a *Arena) Reset() {
	a.used = 0
}

// Release tears the arena down, returning its memory to the system. The
// arena cannot be used afterwards: Alloc returns nil. Release is idempotent.
func (a *Arena) Release() error {
	buf := a.buf
	a.buf = nil
	a.used = 0
	if buf == nil || a.release == nil {
		return nil
	}
	if err := a.release(buf); err != nil {
		return fmt.Errorf("arena: release %d bytes: %w", len(buf), err)
	}
	log.Debug().Int("cap", len(buf)).Msg("arena: released")
	return nil
}

func alignUp(p uintptr) uintptr {
	return (p + Align - 1) &^ (Align - 1)
}
