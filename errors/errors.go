// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package errors

import (
	"errors"
	"syscall"
)

var (
	ErrInvalidSubvolCount = errors.New("invalid subvolume count")
	ErrNotEnoughSubvols   = errors.New("not enough subvolumes for mds and ds roles")
	ErrDuplicateSubvol    = errors.New("duplicate subvolume")
	ErrUnknownLayoutType  = errors.New("unknown layout type")
	ErrUnknownStoreType   = errors.New("unknown metadata store type")

	ErrLayoutNotBuilt = errors.New("layout not built")
	ErrNoSubvolume    = errors.New("no subvolume for gfid")
	ErrSubvolNotFound = errors.New("subvolume not found")

	ErrGenerateGFID     = errors.New("generate gfid failed")
	ErrChecksumMismatch = errors.New("record checksum mismatch")
	ErrInvalidRecord    = errors.New("invalid record")
)

// Errno converts err to an errno carried in fop responses.
func Errno(err error) int32 {
	if err == nil {
		return 0
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int32(errno)
	}
	return int32(syscall.EIO)
}

