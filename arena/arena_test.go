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


package arena

import (
	"runtime"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func addr(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

func testArena(t *testing.T, a *Arena) {
	require.EqualValues(t, 0, a.Used())
	require.EqualValues(t, 1024, a.Cap())

	// Odd sizes force padding before the next block.
	sizes := []int{1, 3, 8, 13, 64, 100}
	var prevEnd uintptr
	for _, n := range sizes {
		b := a.Alloc(n)
		require.NotNil(t, b)
		require.Len(t, b, n)
		require.EqualValues(t, n, cap(b))
		require.Zero(t, addr(b)%Align)
		require.GreaterOrEqual(t, addr(b), prevEnd)
		prevEnd = addr(b) + uintptr(n)
		for i := range b {
			b[i] = 0xff
		}
	}
	require.LessOrEqual(t, a.Used(), a.Cap())
	require.EqualValues(t, a.Cap()-a.Used(), a.Remaining())

	// Exhaustion leaves the arena untouched.
	used := a.Used()
	require.Nil(t, a.Alloc(a.Cap()))
	require.Nil(t, a.Alloc(-1))
	require.EqualValues(t, used, a.Used())

	a.Reset()
	require.EqualValues(t, 0, a.Used())
	b := a.Alloc(a.Cap())
	require.NotNil(t, b)
	require.EqualValues(t, a.Cap(), a.Used())
	require.Nil(t, a.Alloc(1))

	require.NoError(t, a.Release())
	require.Nil(t, a.Alloc(1))
	require.EqualValues(t, 0, a.Cap())
	require.NoError(t, a.Release())
}

func TestHeapArena(t *testing.T) {
	testArena(t, New(1024))
}

func TestMmapArena(t *testing.T) {
	switch runtime.GOOS {
	case "linux", "darwin", "freebsd":
	default:
		_, err := NewMmap(1024)
		require.Error(t, err)
		t.Skipf("mmap arenas are not supported on %s", runtime.GOOS)
	}

	a, err := NewMmap(1024)
	require.NoError(t, err)
	testArena(t, a)

	_, err = NewMmap(0)
	require.Error(t, err)
}

func TestZeroSizeArena(t *testing.T) {
	a := New(0)
	require.Nil(t, a.Alloc(1))
	require.NotNil(t, a.Alloc(0))

	a = New(-5)
	require.EqualValues(t, 0, a.Cap())
}

func TestAllocFitsExactly(t *testing.T) {
	a := New(64)
	require.NotNil(t, a.Alloc(32))
	require.NotNil(t, a.Alloc(32))
	require.EqualValues(t, 64, a.Used())
	require.EqualValues(t, 0, a.Remaining())
	require.Nil(t, a.Alloc(1))
}
