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

package proto

// MergeIatt folds the observation from into to. Identity fields follow the
// latest observation, size and blocks accumulate, owners and times keep the
// greater value. Merging a snapshot with an identical one leaves it as is.
func MergeIatt(to, from *Iatt) {
	if to == nil || from == nil || *to == *from {
		return
	}

	to.Dev = from.Dev
	to.GFID = from.GFID
	to.Ino = from.Ino
	to.Type = from.Type
	to.Prot = from.Prot
	to.Nlink = from.Nlink
	to.Rdev = from.Rdev
	to.Blksize = from.Blksize

	to.Size += from.Size
	to.Blocks += from.Blocks

	if from.UID > to.UID {
		to.UID = from.UID
	}
	if from.GID > to.GID {
		to.GID = from.GID
	}

	if laterTime(from.Atime, from.AtimeNsec, to.Atime, to.AtimeNsec) {
		to.Atime, to.AtimeNsec = from.Atime, from.AtimeNsec
	}
	if laterTime(from.Mtime, from.MtimeNsec, to.Mtime, to.MtimeNsec) {
		to.Mtime, to.MtimeNsec = from.Mtime, from.MtimeNsec
	}
	if laterTime(from.Ctime, from.CtimeNsec, to.Ctime, to.CtimeNsec) {
		to.Ctime, to.CtimeNsec = from.Ctime, from.CtimeNsec
	}
}

func laterTime(sec int64, nsec uint32, thanSec int64, thanNsec uint32) bool {
	if sec != thanSec {
		return sec > thanSec
	}
	return nsec > thanNsec
}

// MergeStatfs sums the capacity counters of from into to.
func MergeStatfs(to, from *Statfs) {
	if to == nil || from == nil {
		return
	}
	if to.Bsize == 0 {
		to.Bsize = from.Bsize
		to.Frsize = from.Frsize
	}
	if from.Namemax > to.Namemax {
		to.Namemax = from.Namemax
	}
	// block counters are kept in units of the first fragment size
	scale := func(n uint64) uint64 {
		if from.Frsize == 0 || to.Frsize == 0 || from.Frsize == to.Frsize {
			return n
		}
		return n * from.Frsize / to.Frsize
	}
	to.Blocks += scale(from.Blocks)
	to.Bfree += scale(from.Bfree)
	to.Bavail += scale(from.Bavail)
	to.Files += from.Files
	to.Ffree += from.Ffree
}
