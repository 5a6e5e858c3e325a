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

const (
	ReqIdKey = "req-id"
	// SubvolKey addresses a hosted subvolume in grpc metadata
	SubvolKey = "subvol"

	// GFIDReqKey carries the caller chosen gfid of a new inode
	GFIDReqKey = "gfid-req"
	// EremoteReasonSuffix is appended to the xattr base name to form the
	// key that carries the reason of an EREMOTE reply
	EremoteReasonSuffix = ".eremote-reason"

	ReasonInodeRemote = "inode-remote"
	ReasonRebalance   = "rebalance"

	// key of an EEXIST create reply whose requested gfid, not its name,
	// is taken. It holds that gfid.
	GFIDInUseSuffix = ".gfid-in-use"

	DefaultXattrBaseName = "trusted.metadht"
)

type Role uint8

const (
	RoleMDS Role = iota + 1
	RoleDS
)

func (r Role) String() string {
	switch r {
	case RoleMDS:
		return "mds"
	case RoleDS:
		return "ds"
	default:
		return "unknown"
	}
}

// EremoteReasonKey returns the xdata key of the EREMOTE reason under base.
func EremoteReasonKey(base string) string {
	if base == "" {
		base = DefaultXattrBaseName
	}
	return base + EremoteReasonSuffix
}

// GFIDInUseKey returns the xdata key flagging a taken gfid under base.
func GFIDInUseKey(base string) string {
	if base == "" {
		base = DefaultXattrBaseName
	}
	return base + GFIDInUseSuffix
}

// Setattr valid bits
const (
	SetattrMode uint32 = 1 << iota
	SetattrUID
	SetattrGID
	SetattrSize
	SetattrAtime
	SetattrMtime
)
