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
	"context"

	"github.com/cubefs/metadht/common/kvstore"
	"github.com/cubefs/metadht/errors"
	"github.com/cubefs/metadht/proto"
)

const (
	XattrStoreType  = "xattr"
	RecordStoreType = "record"

	inodeCF  = kvstore.CF("inode")
	dentryCF = kvstore.CF("dentry")
)

// Dentry is the target of one name in a directory.
type Dentry struct {
	GFID proto.GFID
	Type proto.IAType
}

// MetaStore persists the inodes and dentries of one mds. Reads of a
// missing record return kvstore.ErrNotFound. Writes are staged into a
// batch and applied together by Commit.
type MetaStore interface {
	GetInode(ctx context.Context, gfid proto.GFID) (*proto.Iatt, error)
	GetDentry(ctx context.Context, parent proto.GFID, name string) (*Dentry, error)
	PutInode(batch *kvstore.WriteBatch, iatt *proto.Iatt)
	PutDentry(batch *kvstore.WriteBatch, parent proto.GFID, name string, d *Dentry)
	Commit(ctx context.Context, batch *kvstore.WriteBatch) error
	CountInodes(ctx context.Context) (uint64, error)
}

func newMetaStore(storeType string, kv kvstore.Store, subvol string) (MetaStore, error) {
	switch storeType {
	case XattrStoreType, "":
		return &xattrStore{kv: kv}, nil
	case RecordStoreType:
		return &recordStore{kv: kv, subvol: subvol}, nil
	default:
		return nil, errors.ErrUnknownStoreType
	}
}

func dentryKey(parent proto.GFID, name string) []byte {
	key := make([]byte, 0, len(parent)+len(name))
	key = append(key, parent[:]...)
	return append(key, name...)
}
