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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleIatt() Iatt {
	return Iatt{
		GFID:      GFID{0, 3, 9},
		Ino:       7,
		Dev:       11,
		Type:      IATypeDir,
		Prot:      0o755,
		Nlink:     2,
		UID:       10,
		GID:       20,
		Size:      4096,
		Blksize:   4096,
		Blocks:    8,
		Atime:     100,
		AtimeNsec: 5,
		Mtime:     200,
		MtimeNsec: 6,
		Ctime:     300,
		CtimeNsec: 7,
	}
}

func TestMergeIattIdentical(t *testing.T) {
	a := sampleIatt()
	b := sampleIatt()
	MergeIatt(&a, &b)
	require.Equal(t, sampleIatt(), a)
}

func TestMergeIattIntoZero(t *testing.T) {
	var stash Iatt
	from := sampleIatt()
	MergeIatt(&stash, &from)
	require.Equal(t, from, stash)
}

func TestMergeIattRules(t *testing.T) {
	to := sampleIatt()
	from := sampleIatt()
	from.GFID = GFID{1}
	from.Nlink = 1
	from.Type = IATypeReg
	from.Size = 100
	from.Blocks = 1
	from.UID = 5
	from.GID = 30
	from.Atime = 99
	from.Mtime = 200
	from.MtimeNsec = 9
	from.Ctime = 300
	from.CtimeNsec = 1

	MergeIatt(&to, &from)
	require.Equal(t, GFID{1}, to.GFID)
	require.Equal(t, uint32(1), to.Nlink)
	require.Equal(t, IATypeReg, to.Type)
	require.Equal(t, uint64(4196), to.Size)
	require.Equal(t, uint64(9), to.Blocks)
	require.Equal(t, uint32(10), to.UID)
	require.Equal(t, uint32(30), to.GID)
	require.Equal(t, int64(100), to.Atime)
	require.Equal(t, uint32(5), to.AtimeNsec)
	require.Equal(t, int64(200), to.Mtime)
	require.Equal(t, uint32(9), to.MtimeNsec)
	require.Equal(t, int64(300), to.Ctime)
	require.Equal(t, uint32(7), to.CtimeNsec)

	MergeIatt(nil, &from)
	MergeIatt(&to, nil)
}

func TestMergeStatfs(t *testing.T) {
	var total Statfs
	MergeStatfs(&total, &Statfs{Bsize: 4096, Blocks: 10, Bfree: 5, Files: 3, Namemax: 255})
	MergeStatfs(&total, &Statfs{Bsize: 4096, Blocks: 20, Bfree: 1, Files: 4, Namemax: 128})
	require.Equal(t, uint64(4096), total.Bsize)
	require.Equal(t, uint64(30), total.Blocks)
	require.Equal(t, uint64(6), total.Bfree)
	require.Equal(t, uint64(7), total.Files)
	require.Equal(t, uint64(255), total.Namemax)

	total = Statfs{}
	MergeStatfs(&total, &Statfs{Bsize: 4096, Frsize: 4096, Blocks: 16})
	MergeStatfs(&total, &Statfs{Bsize: 65536, Frsize: 65536, Blocks: 2, Bfree: 1})
	require.Equal(t, uint64(4096), total.Frsize)
	require.Equal(t, uint64(48), total.Blocks)
	require.Equal(t, uint64(16), total.Bfree)
}

func TestGFIDText(t *testing.T) {
	require.Equal(t, "00000000-0000-0000-0000-000000000001", RootGFID.String())
	require.True(t, RootGFID.IsRoot())
	require.True(t, NullGFID.IsNull())

	g, err := ParseGFID("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	require.NoError(t, err)
	_, err = ParseGFID("not-a-gfid")
	require.Error(t, err)

	data, err := json.Marshal(&Loc{GFID: g, Name: "a"})
	require.NoError(t, err)
	var loc Loc
	require.NoError(t, json.Unmarshal(data, &loc))
	require.Equal(t, g, loc.GFID)
	require.True(t, loc.ParentGFID.IsNull())
}

func TestLocResolution(t *testing.T) {
	g := GFID{1, 2}
	p := GFID{3, 4}

	loc := Loc{GFID: g, Inode: &Inode{GFID: RootGFID}}
	require.Equal(t, RootGFID, loc.InodeGFID())
	loc.Inode = nil
	require.Equal(t, g, loc.InodeGFID())

	_, ok := loc.ParentID()
	require.False(t, ok)
	loc.Parent = &Inode{GFID: p}
	parent, ok := loc.ParentID()
	require.True(t, ok)
	require.Equal(t, p, parent)
	loc.ParentGFID = g
	parent, _ = loc.ParentID()
	require.Equal(t, g, parent)

	nameless := NamelessLoc(g)
	require.Equal(t, g, nameless.InodeGFID())
	require.Empty(t, nameless.Name)
}

func TestDict(t *testing.T) {
	d := Dict{}
	d.SetGFID(GFIDReqKey, RootGFID)
	g, ok := d.GetGFID(GFIDReqKey)
	require.True(t, ok)
	require.Equal(t, RootGFID, g)

	d.SetString(EremoteReasonKey(""), ReasonInodeRemote)
	reason, ok := d.GetString(DefaultXattrBaseName + EremoteReasonSuffix)
	require.True(t, ok)
	require.Equal(t, ReasonInodeRemote, reason)

	c := d.Clone()
	c[GFIDReqKey][0] = 9
	g, _ = d.GetGFID(GFIDReqKey)
	require.Equal(t, RootGFID, g)

	var nilDict Dict
	_, ok = nilDict.GetGFID(GFIDReqKey)
	require.False(t, ok)
	require.Nil(t, nilDict.Clone())
}
