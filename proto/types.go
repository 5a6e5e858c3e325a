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

import (
	"github.com/google/uuid"
)

// GFID is the global identifier of a filesystem object.
type GFID [16]byte

var (
	NullGFID GFID
	RootGFID = GFID{15: 1}
)

func ParseGFID(s string) (GFID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return NullGFID, err
	}
	return GFID(id), nil
}

func (g GFID) IsNull() bool {
	return g == NullGFID
}

func (g GFID) IsRoot() bool {
	return g == RootGFID
}

func (g GFID) String() string {
	return uuid.UUID(g).String()
}

func (g GFID) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

func (g *GFID) UnmarshalText(b []byte) error {
	id, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*g = GFID(id)
	return nil
}

type IAType uint8

const (
	IATypeInvalid IAType = iota
	IATypeReg
	IATypeDir
	IATypeLnk
	IATypeBlk
	IATypeChr
	IATypeFifo
	IATypeSock
)

func (t IAType) String() string {
	switch t {
	case IATypeReg:
		return "reg"
	case IATypeDir:
		return "dir"
	case IATypeLnk:
		return "lnk"
	case IATypeBlk:
		return "blk"
	case IATypeChr:
		return "chr"
	case IATypeFifo:
		return "fifo"
	case IATypeSock:
		return "sock"
	default:
		return "invalid"
	}
}

// Iatt is an attribute snapshot of one object.
type Iatt struct {
	GFID      GFID   `json:"gfid"`
	Ino       uint64 `json:"ino"`
	Dev       uint64 `json:"dev"`
	Type      IAType `json:"type"`
	Prot      uint32 `json:"prot"`
	Nlink     uint32 `json:"nlink"`
	UID       uint32 `json:"uid"`
	GID       uint32 `json:"gid"`
	Rdev      uint64 `json:"rdev"`
	Size      uint64 `json:"size"`
	Blksize   uint32 `json:"blksize"`
	Blocks    uint64 `json:"blocks"`
	Atime     int64  `json:"atime"`
	AtimeNsec uint32 `json:"atime_nsec"`
	Mtime     int64  `json:"mtime"`
	MtimeNsec uint32 `json:"mtime_nsec"`
	Ctime     int64  `json:"ctime"`
	CtimeNsec uint32 `json:"ctime_nsec"`
}

// Inode references an object already known to the caller.
type Inode struct {
	GFID GFID `json:"gfid"`
}

// Loc is the resolution context of a fop: either a pure identifier
// (nameless) or a parent identifier plus a name.
type Loc struct {
	Path       string `json:"path,omitempty"`
	Name       string `json:"name,omitempty"`
	GFID       GFID   `json:"gfid"`
	ParentGFID GFID   `json:"pargfid"`
	Inode      *Inode `json:"inode,omitempty"`
	Parent     *Inode `json:"parent,omitempty"`
}

func NamelessLoc(gfid GFID) Loc {
	return Loc{GFID: gfid, Inode: &Inode{GFID: gfid}}
}

// InodeGFID returns the identifier of the target inode, preferring the
// inode reference over the plain gfid.
func (l *Loc) InodeGFID() GFID {
	if l.Inode != nil && !l.Inode.GFID.IsNull() {
		return l.Inode.GFID
	}
	return l.GFID
}

// ParentID returns the parent identifier, from the explicit parent gfid
// or from the parent reference.
func (l *Loc) ParentID() (GFID, bool) {
	if !l.ParentGFID.IsNull() {
		return l.ParentGFID, true
	}
	if l.Parent != nil && !l.Parent.GFID.IsNull() {
		return l.Parent.GFID, true
	}
	return NullGFID, false
}

// Dict is the opaque key/value payload attached to fops.
type Dict map[string][]byte

func (d Dict) Get(key string) ([]byte, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d[key]
	return v, ok
}

func (d Dict) GetString(key string) (string, bool) {
	v, ok := d.Get(key)
	return string(v), ok
}

func (d Dict) SetString(key, value string) {
	d[key] = []byte(value)
}

func (d Dict) GetGFID(key string) (GFID, bool) {
	v, ok := d.Get(key)
	if !ok || len(v) != len(GFID{}) {
		return NullGFID, false
	}
	var g GFID
	copy(g[:], v)
	return g, true
}

func (d Dict) SetGFID(key string, g GFID) {
	d[key] = append([]byte(nil), g[:]...)
}

func (d Dict) Clone() Dict {
	if d == nil {
		return nil
	}
	ret := make(Dict, len(d))
	for k, v := range d {
		ret[k] = append([]byte(nil), v...)
	}
	return ret
}

// Fd is an anonymous handle that addresses an open object by gfid.
type Fd struct {
	GFID  GFID  `json:"gfid"`
	Flags int32 `json:"flags"`
}

type Statfs struct {
	Bsize   uint64 `json:"bsize"`
	Frsize  uint64 `json:"frsize"`
	Blocks  uint64 `json:"blocks"`
	Bfree   uint64 `json:"bfree"`
	Bavail  uint64 `json:"bavail"`
	Files   uint64 `json:"files"`
	Ffree   uint64 `json:"ffree"`
	Namemax uint64 `json:"namemax"`
}
