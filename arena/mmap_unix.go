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


//go:build linux || darwin || freebsd

package arena

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// NewMmap returns an Arena backed by a private anonymous memory mapping of
// size bytes. The mapping is page aligned and zero filled, and lives outside
// the Go heap until Release unmaps it.
func NewMmap(size int) (*Arena, error) {
	if size <= 0 {
		return nil, fmt.Errorf("arena: invalid mmap size %d", size)
	}
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("arena: mmap %d bytes: %w", size, err)
	}
	log.Debug().Int("cap", size).Msg("arena: mapped")
	return &Arena{buf: b, release: unix.Munmap}, nil
}
