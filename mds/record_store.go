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
	"encoding/binary"
	"hash/crc32"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/cubefs/metadht/common/kvstore"
	"github.com/cubefs/metadht/errors"
	"github.com/cubefs/metadht/metrics"
	"github.com/cubefs/metadht/proto"
)

const checksumSize = 4

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// iatt record field numbers
const (
	fieldGFID protowire.Number = iota + 1
	fieldIno
	fieldDev
	fieldType
	fieldProt
	fieldNlink
	fieldUID
	fieldGID
	fieldRdev
	fieldSize
	fieldBlksize
	fieldBlocks
	fieldAtime
	fieldAtimeNsec
	fieldMtime
	fieldMtimeNsec
	fieldCtime
	fieldCtimeNsec
)

// dentry record carries fieldGFID and fieldDentryType
const fieldDentryType protowire.Number = 2

// recordStore keeps one protowire encoded record per inode and dentry,
// each followed by a big endian crc32c of the record.
type recordStore struct {
	kv     kvstore.Store
	subvol string
}

func (s *recordStore) GetInode(ctx context.Context, gfid proto.GFID) (*proto.Iatt, error) {
	raw, err := s.kv.Get(ctx, inodeCF, gfid[:])
	if err != nil {
		return nil, err
	}
	payload, err := s.verify(raw)
	if err != nil {
		return nil, err
	}
	iatt := &proto.Iatt{}
	if err = decodeIatt(payload, iatt); err != nil {
		return nil, err
	}
	return iatt, nil
}

func (s *recordStore) GetDentry(ctx context.Context, parent proto.GFID, name string) (*Dentry, error) {
	raw, err := s.kv.Get(ctx, dentryCF, dentryKey(parent, name))
	if err != nil {
		return nil, err
	}
	payload, err := s.verify(raw)
	if err != nil {
		return nil, err
	}
	d := &Dentry{}
	err = consumeFields(payload, func(num protowire.Number, v uint64, b []byte) error {
		switch num {
		case fieldGFID:
			return copyGFID(&d.GFID, b)
		case fieldDentryType:
			d.Type = proto.IAType(v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *recordStore) PutInode(batch *kvstore.WriteBatch, iatt *proto.Iatt) {
	key := append([]byte(nil), iatt.GFID[:]...)
	batch.Put(inodeCF, key, seal(encodeIatt(iatt)))
}

func (s *recordStore) PutDentry(batch *kvstore.WriteBatch, parent proto.GFID, name string, d *Dentry) {
	b := protowire.AppendTag(nil, fieldGFID, protowire.BytesType)
	b = protowire.AppendBytes(b, d.GFID[:])
	b = protowire.AppendTag(b, fieldDentryType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.Type))
	batch.Put(dentryCF, dentryKey(parent, name), seal(b))
}

func (s *recordStore) Commit(ctx context.Context, batch *kvstore.WriteBatch) error {
	return s.kv.Write(ctx, batch)
}

func (s *recordStore) CountInodes(ctx context.Context) (count uint64, err error) {
	err = s.kv.List(ctx, inodeCF, nil, func(key, value []byte) error {
		count++
		return nil
	})
	return
}

func (s *recordStore) verify(raw []byte) ([]byte, error) {
	if len(raw) < checksumSize {
		return nil, errors.ErrInvalidRecord
	}
	payload := raw[:len(raw)-checksumSize]
	if crc32.Checksum(payload, castagnoli) != binary.BigEndian.Uint32(raw[len(payload):]) {
		metrics.StoreChecksumErrors.WithLabelValues(s.subvol).Inc()
		return nil, errors.ErrChecksumMismatch
	}
	return payload, nil
}

func seal(payload []byte) []byte {
	return binary.BigEndian.AppendUint32(payload, crc32.Checksum(payload, castagnoli))
}

func encodeIatt(a *proto.Iatt) []byte {
	b := make([]byte, 0, 128)
	b = protowire.AppendTag(b, fieldGFID, protowire.BytesType)
	b = protowire.AppendBytes(b, a.GFID[:])
	for _, f := range []struct {
		num protowire.Number
		v   uint64
	}{
		{fieldIno, a.Ino},
		{fieldDev, a.Dev},
		{fieldType, uint64(a.Type)},
		{fieldProt, uint64(a.Prot)},
		{fieldNlink, uint64(a.Nlink)},
		{fieldUID, uint64(a.UID)},
		{fieldGID, uint64(a.GID)},
		{fieldRdev, a.Rdev},
		{fieldSize, a.Size},
		{fieldBlksize, uint64(a.Blksize)},
		{fieldBlocks, a.Blocks},
		{fieldAtime, protowire.EncodeZigZag(a.Atime)},
		{fieldAtimeNsec, uint64(a.AtimeNsec)},
		{fieldMtime, protowire.EncodeZigZag(a.Mtime)},
		{fieldMtimeNsec, uint64(a.MtimeNsec)},
		{fieldCtime, protowire.EncodeZigZag(a.Ctime)},
		{fieldCtimeNsec, uint64(a.CtimeNsec)},
	} {
		if f.v == 0 {
			continue
		}
		b = protowire.AppendTag(b, f.num, protowire.VarintType)
		b = protowire.AppendVarint(b, f.v)
	}
	return b
}

func decodeIatt(b []byte, a *proto.Iatt) error {
	return consumeFields(b, func(num protowire.Number, v uint64, raw []byte) error {
		switch num {
		case fieldGFID:
			return copyGFID(&a.GFID, raw)
		case fieldIno:
			a.Ino = v
		case fieldDev:
			a.Dev = v
		case fieldType:
			a.Type = proto.IAType(v)
		case fieldProt:
			a.Prot = uint32(v)
		case fieldNlink:
			a.Nlink = uint32(v)
		case fieldUID:
			a.UID = uint32(v)
		case fieldGID:
			a.GID = uint32(v)
		case fieldRdev:
			a.Rdev = v
		case fieldSize:
			a.Size = v
		case fieldBlksize:
			a.Blksize = uint32(v)
		case fieldBlocks:
			a.Blocks = v
		case fieldAtime:
			a.Atime = protowire.DecodeZigZag(v)
		case fieldAtimeNsec:
			a.AtimeNsec = uint32(v)
		case fieldMtime:
			a.Mtime = protowire.DecodeZigZag(v)
		case fieldMtimeNsec:
			a.MtimeNsec = uint32(v)
		case fieldCtime:
			a.Ctime = protowire.DecodeZigZag(v)
		case fieldCtimeNsec:
			a.CtimeNsec = uint32(v)
		}
		return nil
	})
}

// consumeFields walks the varint and bytes fields of b, fields of any
// other wire type are skipped.
func consumeFields(b []byte, fn func(num protowire.Number, v uint64, raw []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.ErrInvalidRecord
		}
		b = b[n:]

		var (
			v   uint64
			raw []byte
		)
		switch typ {
		case protowire.VarintType:
			v, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			raw, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return errors.ErrInvalidRecord
			}
			b = b[n:]
			continue
		}
		if n < 0 {
			return errors.ErrInvalidRecord
		}
		b = b[n:]
		if err := fn(num, v, raw); err != nil {
			return err
		}
	}
	return nil
}

func copyGFID(dst *proto.GFID, b []byte) error {
	if len(b) != len(dst) {
		return errors.ErrInvalidRecord
	}
	copy(dst[:], b)
	return nil
}
