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

const (
	fnvOffsetBasis = 14695981039346656037
	fnvPrime       = 1099511628211
)

// FNV1a returns the 64-bit FNV-1a hash of key. It is the default hash
// function of a Map. It is unseeded and offers no protection against
// adversarial keys.
func FNV1a(key string) uint64 {
	h := uint64(fnvOffsetBasis)
	for i := 0; i < len(key); i++ {
		h ^= uint64(key[i])
		h *= fnvPrime
	}
	return h
}
