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

import "errors"

var (
	// ErrAllocationFailure is returned by New and Clone when the allocator
	// cannot provide the slot array. No Map is returned alongside it.
	ErrAllocationFailure = errors.New("hashmap: allocation failure")
	// ErrInvalidArgument is returned when a nil Map or Allocator, a negative
	// or oversized capacity, or an out of range load factor is supplied.
	ErrInvalidArgument = errors.New("hashmap: invalid argument")
	// ErrRejected is returned by Put when inserting a new key would push the
	// load factor past the configured maximum. The Map is unchanged. The
	// Map never grows, so the caller has to migrate to a larger Map.
	ErrRejected = errors.New("hashmap: insert rejected by load factor guard")
	// ErrTableFull is returned by Put when a complete probe cycle found
	// neither the key nor a reusable slot.
	ErrTableFull = errors.New("hashmap: no free slot")
)
