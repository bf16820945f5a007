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


// Package hashmap is a fixed-capacity, open-addressing hash map from string
// keys to borrowed value references, built for long-lived systems code that
// wants full control over where its memory comes from.
//
// # Memory
//
// A Map never allocates slot memory from the Go heap on its own. The slot
// array is requested with a single Allocator.Alloc call when the map is
// created (New) or cloned (Clone) and is never freed by the map. The
// Allocator is expected to behave like a bump allocator (see package arena):
// memory goes away only when the whole arena is torn down, which must not
// happen while any Map built on it is still in use.
//
// Keys and values are referenced, never copied. Put stores the key string
// header and the value pointer in the slot. Slot memory may be invisible to
// the garbage collector, so the caller must keep every key and value it
// hands to the map reachable for as long as the map is used.
//
// # Probing
//
// The slot array holds capacity slots, where capacity is a power of two.
// The home slot of a key is hash(key) & (capacity-1). Collisions are resolved
// with triangular probing: the i'th probe adds i to the previous offset, so
// the offsets from the home slot h are h, h+1, h+3, h+6, ... (mod capacity).
// For power of two capacities this sequence visits every slot exactly once
// in capacity steps (see probeSeq), which bounds every operation.
//
// Each slot is in exactly one of three states: empty, live or tombstone. A
// lookup stops at the first empty slot. Removal turns a live slot into a
// tombstone which keeps its key and cached hash so that probe chains passing
// through it stay intact. Tombstones never match a lookup. Put reuses the
// first tombstone on the probe chain of the key it inserts.
//
// # Capacity
//
// A Map never grows. New rounds the requested capacity up to a power of two
// (0 means 16) and Put refuses to insert a new key with ErrRejected once
// the insert would push Len()/Capacity() past the configured maximum load
// factor (DefaultMaxLoadFactor unless WithMaxLoadFactor is given). Callers
// that need more room create a larger Map and migrate.
package hashmap

import (
	"fmt"
	"math"
	"math/bits"
	"strings"
	"unsafe"

	"github.com/rs/zerolog"
)

const (
	debug = false

	// DefaultMaxLoadFactor is the highest ratio of live entries to capacity a
	// Map accepts unless configured otherwise with WithMaxLoadFactor.
	DefaultMaxLoadFactor = 0.7

	defaultCapacity = 16

	slotSize  = int(unsafe.Sizeof(slot[struct{}]{}))
	slotAlign = uintptr(unsafe.Alignof(slot[struct{}]{}))

	// maxCapacity keeps capacity*slotSize within an int.
	maxCapacity = math.MaxInt / slotSize
)

// Each slot has a state which is one of empty, live or tombstone. An empty
// slot has never held an entry and terminates probing. A tombstone held an
// entry which was removed; it keeps the key and hash of that entry.
type state uint8

const (
	stateEmpty state = iota
	stateLive
	stateTombstone
)

func (s state) String() string {
	switch s {
	case stateEmpty:
		return "empty"
	case stateLive:
		return "live"
	case stateTombstone:
		return "tombstone"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// slot holds a borrowed key and value along with the cached hash of the key.
// Its size does not depend on V.
type slot[V any] struct {
	key   string
	value *V
	hash  uint64
	state state
}

// Map is an unordered, fixed-capacity map from string keys to *V with Put,
// Get, Remove, Clone and All operations. The zero value is not usable; use
// New.
//
// A Map is NOT goroutine-safe.
type Map[V any] struct {
	// slots is capacity in length and lives in memory obtained from
	// allocator.
	slots []slot[V]
	// The number of live slots (i.e. the number of elements in the map).
	used int
	// The allocator the slots were obtained from. Borrowed.
	allocator Allocator
	// The hash function applied to keys. Cached slot hashes were produced by
	// it, so it is inherited by clones.
	hash    func(key string) uint64
	maxLoad float64
	logger  zerolog.Logger
}

// New constructs a new Map whose slot array is obtained from allocator. The
// capacity is initialCapacity rounded up to the next power of two, or 16 if
// initialCapacity is 0.
//
// New returns ErrInvalidArgument for a nil allocator, a negative or
// oversized initialCapacity, or an invalid option, and ErrAllocationFailure
// if the allocator cannot provide the slot array.
func New[V any](allocator Allocator, initialCapacity int, options ...Option[V]) (*Map[V], error) {
	if allocator == nil {
		return nil, fmt.Errorf("%w: nil allocator", ErrInvalidArgument)
	}
	capacity, err := roundCapacity(initialCapacity)
	if err != nil {
		return nil, err
	}

	m := &Map[V]{
		allocator: allocator,
		hash:      FNV1a,
		maxLoad:   DefaultMaxLoadFactor,
		logger:    zerolog.Nop(),
	}
	for _, op := range options {
		op.apply(m)
	}
	if m.hash == nil {
		m.hash = FNV1a
	}
	// Written so that NaN is rejected as well.
	if !(m.maxLoad > 0 && m.maxLoad <= 1) {
		return nil, fmt.Errorf("%w: max load factor %v not in (0, 1]", ErrInvalidArgument, m.maxLoad)
	}

	m.slots, err = allocSlots[V](allocator, capacity)
	if err != nil {
		m.logger.Debug().Err(err).Int("capacity", capacity).Msg("hashmap: create failed")
		return nil, err
	}

	m.checkInvariants()
	return m, nil
}

// Clone returns a new Map with the same capacity, entries and options as m
// whose slot array is obtained from allocator. The slots are copied verbatim,
// tombstones included; nothing is rehashed. Keys and values are shared with
// m, so the clone is only valid while the references stored in m are.
//
// Clone returns ErrInvalidArgument if m or allocator is nil and
// ErrAllocationFailure if allocator cannot provide the slot array, in which
// case no Map is returned.
func (m *Map[V]) Clone(allocator Allocator) (*Map[V], error) {
	if !m.valid() {
		return nil, fmt.Errorf("%w: nil map", ErrInvalidArgument)
	}
	if allocator == nil {
		return nil, fmt.Errorf("%w: nil allocator", ErrInvalidArgument)
	}

	slots, err := allocSlots[V](allocator, len(m.slots))
	if err != nil {
		m.logger.Debug().Err(err).Int("capacity", len(m.slots)).Msg("hashmap: clone failed")
		return nil, err
	}
	copy(slots, m.slots)

	c := &Map[V]{
		slots:     slots,
		used:      m.used,
		allocator: allocator,
		hash:      m.hash,
		maxLoad:   m.maxLoad,
		logger:    m.logger,
	}
	c.logger.Debug().Int("capacity", len(slots)).Int("len", c.used).Msg("hashmap: cloned")
	c.checkInvariants()
	return c, nil
}

// Put inserts an entry into the map, overwriting the value of an existing
// entry with the same key. Neither key nor value is copied; both must remain
// valid for as long as the map is used.
//
// Inserting a new key fails with ErrRejected if it would push the load factor
// past the maximum, and with ErrTableFull if no slot is available. In both
// cases the map is unchanged.
func (m *Map[V]) Put(key string, value *V) error {
	if !m.valid() {
		return fmt.Errorf("%w: nil map", ErrInvalidArgument)
	}

	h := m.hash(key)
	seq := makeProbeSeq(h, m.mask())
	if debug {
		m.logger.Trace().Str("key", key).Stringer("seq", seq).Msg("put")
	}

	// The first tombstone on the probe chain. If the key turns out to be
	// absent the entry goes there, which keeps the chain no longer than it
	// was before the tombstone was created.
	tombstone := -1
	for n := 0; n < len(m.slots); n, seq = n+1, seq.next() {
		i := int(seq.offset)
		s := &m.slots[i]
		if debug {
			m.logger.Trace().Int("index", i).Stringer("state", s.state).Str("slot-key", s.key).Msg("put(probing)")
		}

		switch s.state {
		case stateEmpty:
			if tombstone >= 0 {
				i = tombstone
			}
			return m.insert(i, h, key, value)
		case stateTombstone:
			if tombstone < 0 {
				tombstone = i
			}
		case stateLive:
			if s.hash == h && s.key == key {
				if debug {
					m.logger.Trace().Int("index", i).Str("key", key).Msg("put(updating)")
				}
				s.value = value
				m.checkInvariants()
				return nil
			}
		}
	}

	// Every slot was probed. The table has no empty slot left, but a
	// tombstone can still take the entry.
	if tombstone >= 0 {
		return m.insert(tombstone, h, key, value)
	}
	m.logger.Debug().Str("key", key).Int("capacity", len(m.slots)).Msg("hashmap: no free slot")
	return ErrTableFull
}

// insert places a new entry in slot i, which is empty or a tombstone, unless
// doing so would exceed the maximum load factor.
func (m *Map[V]) insert(i int, h uint64, key string, value *V) error {
	if float64(m.used+1) > m.maxLoad*float64(len(m.slots)) {
		m.logger.Debug().Str("key", key).Int("len", m.used).Int("capacity", len(m.slots)).
			Float64("max-load", m.maxLoad).Msg("hashmap: insert rejected")
		return ErrRejected
	}
	m.slots[i] = slot[V]{
		key:   key,
		value: value,
		hash:  h,
		state: stateLive,
	}
	m.used++
	if debug {
		m.logger.Trace().Int("index", i).Int("used", m.used).Msg("put(inserting)")
	}
	m.checkInvariants()
	return nil
}

// Get retrieves the value from the map for the specified key, returning
// ok=false if the key is not present.
func (m *Map[V]) Get(key string) (value *V, ok bool) {
	if !m.valid() {
		return nil, false
	}

	// To find the location of a key in the table, we compute hash(key) and
	// walk its probe sequence. An empty slot ends the chain: the key would
	// have been placed there (or earlier) had it been inserted. Tombstones
	// behave like live slots that never match the key we're looking for.
	h := m.hash(key)
	seq := makeProbeSeq(h, m.mask())
	if debug {
		m.logger.Trace().Str("key", key).Stringer("seq", seq).Msg("get")
	}

	for n := 0; n < len(m.slots); n, seq = n+1, seq.next() {
		s := &m.slots[seq.offset]
		if debug {
			m.logger.Trace().Uint64("index", uint64(seq.offset)).Stringer("state", s.state).Msg("get(probing)")
		}
		switch s.state {
		case stateEmpty:
			return nil, false
		case stateLive:
			// Comparing the cached hash first avoids most string
			// comparisons against colliding keys.
			if s.hash == h && s.key == key {
				return s.value, true
			}
		}
	}
	return nil, false
}

// Remove removes the entry corresponding to the specified key from the map,
// reporting whether it was present. The slot becomes a tombstone; its memory
// is not reclaimed.
func (m *Map[V]) Remove(key string) bool {
	if !m.valid() {
		return false
	}

	h := m.hash(key)
	seq := makeProbeSeq(h, m.mask())
	if debug {
		m.logger.Trace().Str("key", key).Stringer("seq", seq).Msg("remove")
	}

	for n := 0; n < len(m.slots); n, seq = n+1, seq.next() {
		s := &m.slots[seq.offset]
		switch s.state {
		case stateEmpty:
			m.checkInvariants()
			return false
		case stateLive:
			if s.hash == h && s.key == key {
				// The key and hash stay behind so that the slot keeps
				// taking part in the probe chains that pass through it.
				s.state = stateTombstone
				m.used--
				if debug {
					m.logger.Trace().Uint64("index", uint64(seq.offset)).Int("used", m.used).Msg("remove(tombstone)")
				}
				m.checkInvariants()
				return true
			}
		}
	}
	return false
}

// All calls yield sequentially for each key and value present in the map, in
// slot order. If yield returns false, iteration stops. The map may be mutated
// during iteration; an entry inserted into a slot that was already passed is
// not visited.
func (m *Map[V]) All(yield func(key string, value *V) bool) {
	if !m.valid() {
		return
	}
	for i := range m.slots {
		s := &m.slots[i]
		if s.state != stateLive {
			continue
		}
		if !yield(s.key, s.value) {
			return
		}
	}
}

// Len returns the number of entries in the map.
func (m *Map[V]) Len() int {
	if m == nil {
		return 0
	}
	return m.used
}

// Capacity returns the number of slots in the map. It is always a power of
// two.
func (m *Map[V]) Capacity() int {
	if m == nil {
		return 0
	}
	return len(m.slots)
}

// SlotSize returns the number of bytes a Map requests from its Allocator per
// slot. A Map of capacity c needs an Allocator able to provide c*SlotSize()
// bytes.
func SlotSize() int {
	return slotSize
}

func (m *Map[V]) valid() bool {
	return m != nil && m.slots != nil
}

func (m *Map[V]) mask() uintptr {
	return uintptr(len(m.slots) - 1)
}

// roundCapacity returns the smallest power of two >= n, or defaultCapacity if
// n is 0.
func roundCapacity(n int) (int, error) {
	switch {
	case n < 0 || n > maxCapacity:
		return 0, fmt.Errorf("%w: capacity %d", ErrInvalidArgument, n)
	case n == 0:
		return defaultCapacity, nil
	}
	c := 1 << bits.Len(uint(n-1))
	if c > maxCapacity {
		return 0, fmt.Errorf("%w: capacity %d", ErrInvalidArgument, n)
	}
	return c, nil
}

// allocSlots obtains an array of capacity empty slots from allocator. The
// block is zeroed as raw bytes before it is viewed as slots: the allocator
// makes no promise about its contents and stale bytes must never be seen as
// key or value pointers.
func allocSlots[V any](allocator Allocator, capacity int) ([]slot[V], error) {
	size := capacity * slotSize
	block := allocator.Alloc(size)
	if len(block) < size {
		return nil, fmt.Errorf("%w: %d bytes for %d slots", ErrAllocationFailure, size, capacity)
	}
	p := unsafe.Pointer(unsafe.SliceData(block))
	if uintptr(p)%slotAlign != 0 {
		return nil, fmt.Errorf("%w: block at %p is not %d-byte aligned", ErrAllocationFailure, p, slotAlign)
	}
	clear(block[:size])
	return unsafe.Slice((*slot[V])(p), capacity), nil
}

func (m *Map[V]) checkInvariants() {
	if invariants {
		capacity := len(m.slots)
		if capacity == 0 || capacity&(capacity-1) != 0 {
			panic(fmt.Sprintf("invariant failed: capacity %d is not a power of two", capacity))
		}

		// For every live slot, verify we can retrieve the value using Get.
		// Count the live slots.
		var used int
		for i := range m.slots {
			s := &m.slots[i]
			switch s.state {
			case stateEmpty, stateTombstone:
			case stateLive:
				if h := m.hash(s.key); h != s.hash {
					panic(fmt.Sprintf("invariant failed: slot(%d): %q cached hash %016x != %016x\n%s",
						i, s.key, s.hash, h, m.debugString()))
				}
				if v, ok := m.Get(s.key); !ok || v != s.value {
					panic(fmt.Sprintf("invariant failed: slot(%d): %q not found\n%s",
						i, s.key, m.debugString()))
				}
				used++
			default:
				panic(fmt.Sprintf("invariant failed: slot(%d): unexpected %s\n%s", i, s.state, m.debugString()))
			}
		}

		if used != m.used {
			panic(fmt.Sprintf("invariant failed: found %d live slots, but used count is %d\n%s",
				used, m.used, m.debugString()))
		}
		if float64(m.used) > m.maxLoad*float64(capacity) {
			panic(fmt.Sprintf("invariant failed: %d live slots exceed max load %v\n%s",
				m.used, m.maxLoad, m.debugString()))
		}
	}
}

func (m *Map[V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  used=%d  max-load=%v\n", len(m.slots), m.used, m.maxLoad)
	for i := range m.slots {
		switch s := &m.slots[i]; s.state {
		case stateEmpty:
			fmt.Fprintf(&buf, "  %4d: empty\n", i)
		case stateTombstone:
			fmt.Fprintf(&buf, "  %4d: tombstone %q [hash=%016x]\n", i, s.key, s.hash)
		default:
			fmt.Fprintf(&buf, "  %4d: %q [hash=%016x]\n", i, s.key, s.hash)
		}
	}
	return buf.String()
}

// probeSeq maintains the state for a probe sequence. The sequence is a
// triangular progression of the form
//
//	p(i) := (i^2 + i)/2 + hash (mod mask+1)
//
// It turns out that this probe sequence visits every slot exactly once if the
// number of slots is a power of two, since (i^2+i)/2 is a bijection in
// Z/(2^m). See https://en.wikipedia.org/wiki/Quadratic_probing
type probeSeq struct {
	mask   uintptr
	offset uintptr
	index  uintptr
}

func makeProbeSeq(hash uint64, mask uintptr) probeSeq {
	return probeSeq{
		mask:   mask,
		offset: uintptr(hash) & mask,
		index:  0,
	}
}

func (s probeSeq) next() probeSeq {
	s.index++
	s.offset = (s.offset + s.index) & s.mask
	return s
}

func (s probeSeq) String() string {
	return fmt.Sprintf("mask=%d offset=%d index=%d", s.mask, s.offset, s.index)
}
