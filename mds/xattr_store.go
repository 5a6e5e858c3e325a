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

package mds

import (
	"bytes"
	"context"
	"strconv"

	"github.com/cubefs/metadht/common/kvstore"
	"github.com/cubefs/metadht/errors"
	"github.com/cubefs/metadht/proto"
)

const typeAttr = "type"

// xattrStore keeps every inode attribute under its own key
// "<gfid>\x00<attr>" with a decimal value.
type xattrStore struct {
	kv kvstore.Store
}

func attrKey(gfid proto.GFID, attr string) []byte {
	key := make([]byte, 0, len(gfid)+1+len(attr))
	key = append(key, gfid[:]...)
	key = append(key, 0)
	return append(key, attr...)
}

func (s *xattrStore) GetInode(ctx context.Context, gfid proto.GFID) (*proto.Iatt, error) {
	prefix := attrKey(gfid, "")
	iatt := &proto.Iatt{GFID: gfid}
	found := false
	err := s.kv.List(ctx, inodeCF, prefix, func(key, value []byte) error {
		found = true
		return setAttr(iatt, string(key[len(prefix):]), string(value))
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, kvstore.ErrNotFound
	}
	return iatt, nil
}

func (s *xattrStore) GetDentry(ctx context.Context, parent proto.GFID, name string) (*Dentry, error) {
	value, err := s.kv.Get(ctx, dentryCF, dentryKey(parent, name))
	if err != nil {
		return nil, err
	}
	if len(value) != len(proto.GFID{})+1 {
		return nil, errors.ErrInvalidRecord
	}
	d := &Dentry{Type: proto.IAType(value[len(value)-1])}
	copy(d.GFID[:], value)
	return d, nil
}

func (s *xattrStore) PutInode(batch *kvstore.WriteBatch, iatt *proto.Iatt) {
	for _, a := range getAttrs(iatt) {
		batch.Put(inodeCF, attrKey(iatt.GFID, a[0]), []byte(a[1]))
	}
}

func (s *xattrStore) PutDentry(batch *kvstore.WriteBatch, parent proto.GFID, name string, d *Dentry) {
	value := make([]byte, 0, len(d.GFID)+1)
	value = append(value, d.GFID[:]...)
	value = append(value, byte(d.Type))
	batch.Put(dentryCF, dentryKey(parent, name), value)
}

func (s *xattrStore) Commit(ctx context.Context, batch *kvstore.WriteBatch) error {
	return s.kv.Write(ctx, batch)
}

func (s *xattrStore) CountInodes(ctx context.Context) (count uint64, err error) {
	suffix := append([]byte{0}, typeAttr...)
	err = s.kv.List(ctx, inodeCF, nil, func(key, value []byte) error {
		if bytes.HasSuffix(key, suffix) && len(key) == len(proto.GFID{})+len(suffix) {
			count++
		}
		return nil
	})
	return
}

func getAttrs(a *proto.Iatt) [][2]string {
	u := func(v uint64) string { return strconv.FormatUint(v, 10) }
	i := func(v int64) string { return strconv.FormatInt(v, 10) }
	return [][2]string{
		{"ino", u(a.Ino)},
		{"dev", u(a.Dev)},
		{typeAttr, u(uint64(a.Type))},
		{"prot", u(uint64(a.Prot))},
		{"nlink", u(uint64(a.Nlink))},
		{"uid", u(uint64(a.UID))},
		{"gid", u(uint64(a.GID))},
		{"rdev", u(a.Rdev)},
		{"size", u(a.Size)},
		{"blksize", u(uint64(a.Blksize))},
		{"blocks", u(a.Blocks)},
		{"atime", i(a.Atime)},
		{"atime_nsec", u(uint64(a.AtimeNsec))},
		{"mtime", i(a.Mtime)},
		{"mtime_nsec", u(uint64(a.MtimeNsec))},
		{"ctime", i(a.Ctime)},
		{"ctime_nsec", u(uint64(a.CtimeNsec))},
	}
}

func setAttr(a *proto.Iatt, name, value string) (err error) {
	var (
		u uint64
		i int64
	)
	switch name {
	case "atime", "mtime", "ctime":
		i, err = strconv.ParseInt(value, 10, 64)
	default:
		u, err = strconv.ParseUint(value, 10, 64)
	}
	if err != nil {
		return errors.ErrInvalidRecord
	}

	switch name {
	case "ino":
		a.Ino = u
	case "dev":
		a.Dev = u
	case typeAttr:
		a.Type = proto.IAType(u)
	case "prot":
		a.Prot = uint32(u)
	case "nlink":
		a.Nlink = uint32(u)
	case "uid":
		a.UID = uint32(u)
	case "gid":
		a.GID = uint32(u)
	case "rdev":
		a.Rdev = u
	case "size":
		a.Size = u
	case "blksize":
		a.Blksize = uint32(u)
	case "blocks":
		a.Blocks = u
	case "atime":
		a.Atime = i
	case "atime_nsec":
		a.AtimeNsec = uint32(u)
	case "mtime":
		a.Mtime = i
	case "mtime_nsec":
		a.MtimeNsec = uint32(u)
	case "ctime":
		a.Ctime = i
	case "ctime_nsec":
		a.CtimeNsec = uint32(u)
	}
	// unknown attributes belong to newer versions and are skipped
	return nil
}
