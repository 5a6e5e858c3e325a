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

package ds

import (
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"syscall"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/cubefs/metadht/common/kvstore"
	apierrors "github.com/cubefs/metadht/errors"
	"github.com/cubefs/metadht/proto"
	"github.com/cubefs/metadht/util"
)

const (
	DefaultBlockSize = 64 << 10

	dataCF = kvstore.CF("data")
	metaCF = kvstore.CF("meta")

	// size(8) mtime(8) mtime nsec(4)
	metaSize = 20

	// blocks of one write are committed in batches of at most this many
	// bytes, the file meta goes with the last one
	maxBatchBytes = 4 << 20
)

type Config struct {
	Name      string         `json:"name" validate:"required"`
	BlockSize int            `json:"block_size" validate:"omitempty,min=512"`
	KV        kvstore.Config `json:"kv"`
}

// DS is a data server subvolume. Data of a gfid is kept as fixed size
// blocks, holes read as zero.
type DS struct {
	name      string
	dev       uint64
	blockSize uint64
	kv        kvstore.Store

	keyLocks util.KeyLocks
}

type fileMeta struct {
	size      uint64
	mtime     int64
	mtimeNsec uint32
}

func New(ctx context.Context, cfg *Config) (*DS, error) {
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	kv, err := kvstore.Open(ctx, &cfg.KV, dataCF, metaCF)
	if err != nil {
		return nil, err
	}
	return &DS{
		name:      cfg.Name,
		dev:       uint64(crc32.ChecksumIEEE([]byte(cfg.Name))),
		blockSize: uint64(cfg.BlockSize),
		kv:        kv,
	}, nil
}

func (d *DS) Name() string {
	return d.name
}

func (d *DS) Close() {
	d.kv.Close()
}

func (d *DS) Write(ctx context.Context, req *proto.WriteRequest) (*proto.WriteResponse, error) {
	gfid := req.Fd.GFID
	if gfid.IsNull() {
		return &proto.WriteResponse{Errno: int32(syscall.EINVAL)}, nil
	}

	lock := d.keyLocks.Get(gfid[:])
	lock.Lock()
	defer lock.Unlock()

	meta, err := d.getMeta(ctx, gfid)
	if err != nil {
		return &proto.WriteResponse{Errno: d.errno(ctx, err)}, nil
	}
	prestat := d.iatt(gfid, meta)

	batch := kvstore.NewWriteBatch()
	var bufs [][]byte
	release := func() {
		for _, b := range bufs {
			util.PutBuffer(b)
		}
		bufs = bufs[:0]
	}
	defer release()

	data, off := req.Data, req.Offset
	for len(data) > 0 {
		index, inner := off/d.blockSize, off%d.blockSize
		n := d.blockSize - inner
		if n > uint64(len(data)) {
			n = uint64(len(data))
		}

		block := util.GetBuffer(int(d.blockSize))
		bufs = append(bufs, block)
		if n < d.blockSize {
			if err = d.readBlock(ctx, gfid, index, block); err != nil {
				return &proto.WriteResponse{Errno: d.errno(ctx, err)}, nil
			}
		}
		copy(block[inner:], data[:n])
		batch.Put(dataCF, blockKey(gfid, index), block)

		data, off = data[n:], off+n
		if len(data) > 0 && uint64(batch.Count()+1)*d.blockSize > maxBatchBytes {
			if err = d.kv.Write(ctx, batch); err != nil {
				return &proto.WriteResponse{Errno: d.errno(ctx, err)}, nil
			}
			batch = kvstore.NewWriteBatch()
			release()
		}
	}

	if off > meta.size {
		meta.size = off
	}
	now := time.Now()
	meta.mtime, meta.mtimeNsec = now.Unix(), uint32(now.Nanosecond())
	batch.Put(metaCF, append([]byte(nil), gfid[:]...), encodeMeta(meta))
	if err = d.kv.Write(ctx, batch); err != nil {
		return &proto.WriteResponse{Errno: d.errno(ctx, err)}, nil
	}

	return &proto.WriteResponse{
		Written:  uint64(len(req.Data)),
		Prestat:  prestat,
		Poststat: d.iatt(gfid, meta),
	}, nil
}

func (d *DS) Read(ctx context.Context, req *proto.ReadRequest) (*proto.ReadResponse, error) {
	gfid := req.Fd.GFID
	if gfid.IsNull() {
		return &proto.ReadResponse{Errno: int32(syscall.EINVAL)}, nil
	}
	meta, err := d.getMeta(ctx, gfid)
	if err != nil {
		return &proto.ReadResponse{Errno: d.errno(ctx, err)}, nil
	}
	stbuf := d.iatt(gfid, meta)
	if req.Offset >= meta.size {
		return &proto.ReadResponse{Stbuf: stbuf, EOF: true}, nil
	}

	size := meta.size - req.Offset
	if size > uint64(req.Size) {
		size = uint64(req.Size)
	}
	ret := make([]byte, size)
	block := util.GetBuffer(int(d.blockSize))
	defer util.PutBuffer(block)

	for read := uint64(0); read < size; {
		off := req.Offset + read
		index, inner := off/d.blockSize, off%d.blockSize
		if err = d.readBlock(ctx, gfid, index, block); err != nil {
			return &proto.ReadResponse{Errno: d.errno(ctx, err)}, nil
		}
		read += uint64(copy(ret[read:], block[inner:]))
	}
	return &proto.ReadResponse{
		Data:  ret,
		Stbuf: stbuf,
		EOF:   req.Offset+size >= meta.size,
	}, nil
}

// Stat answers any gfid, data of a file is created on first write.
func (d *DS) Stat(ctx context.Context, req *proto.StatRequest) (*proto.StatResponse, error) {
	gfid := req.Loc.InodeGFID()
	if gfid.IsNull() {
		return &proto.StatResponse{Errno: int32(syscall.EINVAL)}, nil
	}
	meta, err := d.getMeta(ctx, gfid)
	if err != nil {
		return &proto.StatResponse{Errno: d.errno(ctx, err)}, nil
	}
	return &proto.StatResponse{Buf: d.iatt(gfid, meta)}, nil
}

func (d *DS) Open(ctx context.Context, req *proto.OpenRequest) (*proto.OpenResponse, error) {
	gfid := req.Loc.InodeGFID()
	if gfid.IsNull() {
		return &proto.OpenResponse{Errno: int32(syscall.EINVAL)}, nil
	}
	return &proto.OpenResponse{Fd: &proto.Fd{GFID: gfid, Flags: req.Flags}}, nil
}

func (d *DS) Flush(ctx context.Context, req *proto.FlushRequest) (*proto.FlushResponse, error) {
	return &proto.FlushResponse{}, nil
}

func (d *DS) Statfs(ctx context.Context, req *proto.StatfsRequest) (*proto.StatfsResponse, error) {
	stats, err := d.kv.Stats(ctx)
	if err != nil {
		return &proto.StatfsResponse{Errno: d.errno(ctx, err)}, nil
	}
	var files uint64
	err = d.kv.List(ctx, metaCF, nil, func(key, value []byte) error {
		files++
		return nil
	})
	if err != nil {
		return &proto.StatfsResponse{Errno: d.errno(ctx, err)}, nil
	}
	return &proto.StatfsResponse{Statfs: &proto.Statfs{
		Bsize:  d.blockSize,
		Frsize: d.blockSize,
		Blocks: stats.Used / d.blockSize,
		Files:  files,
	}}, nil
}

func (d *DS) Lookup(ctx context.Context, req *proto.LookupRequest) (*proto.LookupResponse, error) {
	return &proto.LookupResponse{Errno: int32(syscall.EOPNOTSUPP)}, nil
}

func (d *DS) Create(ctx context.Context, req *proto.CreateRequest) (*proto.CreateResponse, error) {
	return &proto.CreateResponse{Errno: int32(syscall.EOPNOTSUPP)}, nil
}

func (d *DS) Mkdir(ctx context.Context, req *proto.MkdirRequest) (*proto.MkdirResponse, error) {
	return &proto.MkdirResponse{Errno: int32(syscall.EOPNOTSUPP)}, nil
}

func (d *DS) Mkinode(ctx context.Context, req *proto.MkinodeRequest) (*proto.MkinodeResponse, error) {
	return &proto.MkinodeResponse{Errno: int32(syscall.EOPNOTSUPP)}, nil
}

func (d *DS) Namelink(ctx context.Context, req *proto.NamelinkRequest) (*proto.NamelinkResponse, error) {
	return &proto.NamelinkResponse{Errno: int32(syscall.EOPNOTSUPP)}, nil
}

func (d *DS) Setattr(ctx context.Context, req *proto.SetattrRequest) (*proto.SetattrResponse, error) {
	return &proto.SetattrResponse{Errno: int32(syscall.EOPNOTSUPP)}, nil
}

// readBlock fills block with the stored block index, zero when absent.
func (d *DS) readBlock(ctx context.Context, gfid proto.GFID, index uint64, block []byte) error {
	value, err := d.kv.Get(ctx, dataCF, blockKey(gfid, index))
	if errors.Is(err, kvstore.ErrNotFound) {
		clear(block)
		return nil
	}
	if err != nil {
		return err
	}
	n := copy(block, value)
	clear(block[n:])
	return nil
}

func (d *DS) getMeta(ctx context.Context, gfid proto.GFID) (fileMeta, error) {
	value, err := d.kv.Get(ctx, metaCF, gfid[:])
	if errors.Is(err, kvstore.ErrNotFound) {
		return fileMeta{}, nil
	}
	if err != nil {
		return fileMeta{}, err
	}
	if len(value) != metaSize {
		return fileMeta{}, apierrors.ErrInvalidRecord
	}
	return fileMeta{
		size:      binary.BigEndian.Uint64(value),
		mtime:     int64(binary.BigEndian.Uint64(value[8:])),
		mtimeNsec: binary.BigEndian.Uint32(value[16:]),
	}, nil
}

func (d *DS) iatt(gfid proto.GFID, meta fileMeta) *proto.Iatt {
	return &proto.Iatt{
		GFID:      gfid,
		Ino:       binary.BigEndian.Uint64(gfid[8:]),
		Dev:       d.dev,
		Type:      proto.IATypeReg,
		Nlink:     1,
		Size:      meta.size,
		Blksize:   uint32(d.blockSize),
		Blocks:    (meta.size + 511) / 512,
		Mtime:     meta.mtime,
		MtimeNsec: meta.mtimeNsec,
		Ctime:     meta.mtime,
		CtimeNsec: meta.mtimeNsec,
	}
}

func (d *DS) errno(ctx context.Context, err error) int32 {
	trace.SpanFromContextSafe(ctx).Errorf("%s: data store failed: %s", d.name, err)
	return apierrors.Errno(err)
}

func blockKey(gfid proto.GFID, index uint64) []byte {
	key := make([]byte, 0, len(gfid)+8)
	key = append(key, gfid[:]...)
	return binary.BigEndian.AppendUint64(key, index)
}

func encodeMeta(meta fileMeta) []byte {
	b := make([]byte, 0, metaSize)
	b = binary.BigEndian.AppendUint64(b, meta.size)
	b = binary.BigEndian.AppendUint64(b, uint64(meta.mtime))
	return binary.BigEndian.AppendUint32(b, meta.mtimeNsec)
}
