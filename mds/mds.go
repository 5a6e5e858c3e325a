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
	defaultBlksize = 4096
	defaultNamemax = 255
	rootMode       = 0o755
)

type Config struct {
	Name          string         `json:"name" validate:"required"`
	XattrBaseName string         `json:"xattr_base_name"`
	StoreType     string         `json:"store_type" validate:"omitempty,oneof=xattr record"`
	KV            kvstore.Config `json:"kv"`
}

// MDS is a metadata server subvolume. It owns the inodes routed to it
// and the names of the directories among them.
type MDS struct {
	name      string
	dev       uint64
	reasonKey string
	inUseKey  string
	kv        kvstore.Store
	store     MetaStore

	// serializes check-then-act on one parent
	keyLocks util.KeyLocks
}

func New(ctx context.Context, cfg *Config) (*MDS, error) {
	kv, err := kvstore.Open(ctx, &cfg.KV, inodeCF, dentryCF)
	if err != nil {
		return nil, err
	}
	store, err := newMetaStore(cfg.StoreType, kv, cfg.Name)
	if err != nil {
		kv.Close()
		return nil, err
	}
	return &MDS{
		name:      cfg.Name,
		dev:       uint64(crc32.ChecksumIEEE([]byte(cfg.Name))),
		reasonKey: proto.EremoteReasonKey(cfg.XattrBaseName),
		inUseKey:  proto.GFIDInUseKey(cfg.XattrBaseName),
		kv:        kv,
		store:     store,
	}, nil
}

func (m *MDS) Name() string {
	return m.name
}

func (m *MDS) Close() {
	m.kv.Close()
}

func (m *MDS) Lookup(ctx context.Context, req *proto.LookupRequest) (*proto.LookupResponse, error) {
	loc := &req.Loc
	parent, named := loc.ParentID()
	if !named || loc.Name == "" {
		gfid := loc.InodeGFID()
		if gfid.IsNull() {
			return &proto.LookupResponse{Errno: int32(syscall.EINVAL)}, nil
		}
		iatt, err := m.getInode(ctx, gfid)
		if errors.Is(err, kvstore.ErrNotFound) && gfid.IsRoot() {
			iatt, err = m.createRoot(ctx)
		}
		if err != nil {
			return &proto.LookupResponse{Errno: m.errno(ctx, err)}, nil
		}
		return &proto.LookupResponse{Buf: iatt}, nil
	}

	postparent, err := m.getInode(ctx, parent)
	if err != nil {
		return &proto.LookupResponse{Errno: m.errno(ctx, err)}, nil
	}
	d, err := m.store.GetDentry(ctx, parent, loc.Name)
	if err != nil {
		return &proto.LookupResponse{Errno: m.errno(ctx, err), Postparent: postparent}, nil
	}
	iatt, err := m.getInode(ctx, d.GFID)
	if errors.Is(err, kvstore.ErrNotFound) {
		return &proto.LookupResponse{
			Errno:      int32(syscall.EREMOTE),
			Buf:        &proto.Iatt{GFID: d.GFID, Type: d.Type},
			Postparent: postparent,
			Xdata:      m.remoteXdata(),
		}, nil
	}
	if err != nil {
		return &proto.LookupResponse{Errno: m.errno(ctx, err), Postparent: postparent}, nil
	}
	return &proto.LookupResponse{Buf: iatt, Postparent: postparent}, nil
}

// Create creates a regular file named by Loc with the gfid requested in
// xdata, or opens the file already holding that name.
func (m *MDS) Create(ctx context.Context, req *proto.CreateRequest) (*proto.CreateResponse, error) {
	gfid, ok := req.Xdata.GetGFID(proto.GFIDReqKey)
	parent, named := req.Loc.ParentID()
	if !ok || gfid.IsNull() || !named || req.Loc.Name == "" {
		return &proto.CreateResponse{Errno: int32(syscall.EINVAL)}, nil
	}

	lock := m.keyLocks.Get(parent[:])
	lock.Lock()
	resp, d, preparent := m.create(ctx, req, parent, gfid)
	lock.Unlock()

	if d != nil {
		return m.openExisting(ctx, req, d, preparent), nil
	}
	return resp, nil
}

// create runs under the parent lock. It returns the dentry instead of a
// response when the name exists.
func (m *MDS) create(ctx context.Context, req *proto.CreateRequest, parent, gfid proto.GFID) (*proto.CreateResponse, *Dentry, *proto.Iatt) {
	span := trace.SpanFromContextSafe(ctx)
	preparent, err := m.getInode(ctx, parent)
	if err != nil {
		return &proto.CreateResponse{Errno: m.errno(ctx, err)}, nil, nil
	}

	d, err := m.store.GetDentry(ctx, parent, req.Loc.Name)
	switch {
	case err == nil:
		return nil, d, preparent
	case !errors.Is(err, kvstore.ErrNotFound):
		return &proto.CreateResponse{Errno: m.errno(ctx, err)}, nil, nil
	}

	if _, err = m.getInode(ctx, gfid); err == nil {
		span.Warnf("create %s/%s: gfid %s already in use", parent, req.Loc.Name, gfid)
		xdata := make(proto.Dict)
		xdata.SetGFID(m.inUseKey, gfid)
		return &proto.CreateResponse{Errno: int32(syscall.EEXIST), Xdata: xdata}, nil, nil
	} else if !errors.Is(err, kvstore.ErrNotFound) {
		return &proto.CreateResponse{Errno: m.errno(ctx, err)}, nil, nil
	}

	now := time.Now()
	iatt := m.newIatt(gfid, proto.IATypeReg, req.Mode&^req.Umask, now)
	postparent := *preparent
	touch(&postparent, now)

	batch := kvstore.NewWriteBatch()
	m.store.PutInode(batch, iatt)
	m.store.PutDentry(batch, parent, req.Loc.Name, &Dentry{GFID: gfid, Type: iatt.Type})
	m.store.PutInode(batch, &postparent)
	if err = m.store.Commit(ctx, batch); err != nil {
		return &proto.CreateResponse{Errno: m.errno(ctx, err)}, nil, nil
	}
	span.Debugf("created %s/%s gfid %s on %s", parent, req.Loc.Name, gfid, m.name)

	return &proto.CreateResponse{
		Fd:         &proto.Fd{GFID: gfid, Flags: req.Flags},
		Buf:        iatt,
		Preparent:  preparent,
		Postparent: &postparent,
	}, nil, nil
}

// openExisting resolves a create against a name that already exists. A
// name whose inode is not local answers EREMOTE even under O_EXCL. The
// inode is read and truncated under its own lock, as Setattr does.
func (m *MDS) openExisting(ctx context.Context, req *proto.CreateRequest, d *Dentry, parent *proto.Iatt) *proto.CreateResponse {
	lock := m.keyLocks.Get(d.GFID[:])
	lock.Lock()
	defer lock.Unlock()

	iatt, err := m.getInode(ctx, d.GFID)
	if errors.Is(err, kvstore.ErrNotFound) {
		return &proto.CreateResponse{
			Errno:      int32(syscall.EREMOTE),
			Buf:        &proto.Iatt{GFID: d.GFID, Type: d.Type},
			Postparent: parent,
			Xdata:      m.remoteXdata(),
		}
	}
	if err != nil {
		return &proto.CreateResponse{Errno: m.errno(ctx, err)}
	}
	if req.Flags&int32(syscall.O_EXCL) != 0 {
		return &proto.CreateResponse{Errno: int32(syscall.EEXIST)}
	}
	if iatt.Type == proto.IATypeDir {
		return &proto.CreateResponse{Errno: int32(syscall.EISDIR)}
	}

	if req.Flags&int32(syscall.O_TRUNC) != 0 && iatt.Size > 0 {
		iatt.Size, iatt.Blocks = 0, 0
		touch(iatt, time.Now())
		batch := kvstore.NewWriteBatch()
		m.store.PutInode(batch, iatt)
		if err = m.store.Commit(ctx, batch); err != nil {
			return &proto.CreateResponse{Errno: m.errno(ctx, err)}
		}
	}
	return &proto.CreateResponse{
		Fd:         &proto.Fd{GFID: iatt.GFID, Flags: req.Flags},
		Buf:        iatt,
		Preparent:  parent,
		Postparent: parent,
	}
}

// Mkdir creates a directory inode and its name together, for layouts
// where the directory is known to live with its parent.
func (m *MDS) Mkdir(ctx context.Context, req *proto.MkdirRequest) (*proto.MkdirResponse, error) {
	gfid, ok := req.Xdata.GetGFID(proto.GFIDReqKey)
	parent, named := req.Loc.ParentID()
	if !ok || gfid.IsNull() || !named || req.Loc.Name == "" {
		return &proto.MkdirResponse{Errno: int32(syscall.EINVAL)}, nil
	}

	lock := m.keyLocks.Get(parent[:])
	lock.Lock()
	defer lock.Unlock()

	preparent, err := m.getInode(ctx, parent)
	if err != nil {
		return &proto.MkdirResponse{Errno: m.errno(ctx, err)}, nil
	}
	if _, err = m.store.GetDentry(ctx, parent, req.Loc.Name); err == nil {
		return &proto.MkdirResponse{Errno: int32(syscall.EEXIST)}, nil
	} else if !errors.Is(err, kvstore.ErrNotFound) {
		return &proto.MkdirResponse{Errno: m.errno(ctx, err)}, nil
	}
	if _, err = m.getInode(ctx, gfid); err == nil {
		return &proto.MkdirResponse{Errno: int32(syscall.EEXIST)}, nil
	} else if !errors.Is(err, kvstore.ErrNotFound) {
		return &proto.MkdirResponse{Errno: m.errno(ctx, err)}, nil
	}

	now := time.Now()
	iatt := m.newIatt(gfid, proto.IATypeDir, req.Mode&^req.Umask, now)
	postparent := *preparent
	postparent.Nlink++
	touch(&postparent, now)

	batch := kvstore.NewWriteBatch()
	m.store.PutInode(batch, iatt)
	m.store.PutDentry(batch, parent, req.Loc.Name, &Dentry{GFID: gfid, Type: iatt.Type})
	m.store.PutInode(batch, &postparent)
	if err = m.store.Commit(ctx, batch); err != nil {
		return &proto.MkdirResponse{Errno: m.errno(ctx, err)}, nil
	}
	return &proto.MkdirResponse{Buf: iatt, Preparent: preparent, Postparent: &postparent}, nil
}

// Mkinode creates an inode that no name refers to yet.
func (m *MDS) Mkinode(ctx context.Context, req *proto.MkinodeRequest) (*proto.MkinodeResponse, error) {
	gfid := req.Loc.InodeGFID()
	if gfid.IsNull() || req.Type == proto.IATypeInvalid {
		return &proto.MkinodeResponse{Errno: int32(syscall.EINVAL)}, nil
	}

	lock := m.keyLocks.Get(gfid[:])
	lock.Lock()
	defer lock.Unlock()

	if _, err := m.getInode(ctx, gfid); err == nil {
		return &proto.MkinodeResponse{Errno: int32(syscall.EEXIST)}, nil
	} else if !errors.Is(err, kvstore.ErrNotFound) {
		return &proto.MkinodeResponse{Errno: m.errno(ctx, err)}, nil
	}

	iatt := m.newIatt(gfid, req.Type, req.Mode&^req.Umask, time.Now())
	batch := kvstore.NewWriteBatch()
	m.store.PutInode(batch, iatt)
	if err := m.store.Commit(ctx, batch); err != nil {
		return &proto.MkinodeResponse{Errno: m.errno(ctx, err)}, nil
	}
	return &proto.MkinodeResponse{Buf: iatt}, nil
}

// Namelink binds a name under a local parent to an inode that may live
// on another subvolume.
func (m *MDS) Namelink(ctx context.Context, req *proto.NamelinkRequest) (*proto.NamelinkResponse, error) {
	parent, named := req.Loc.ParentID()
	if !named || req.Loc.Name == "" || req.GFID.IsNull() {
		return &proto.NamelinkResponse{Errno: int32(syscall.EINVAL)}, nil
	}

	lock := m.keyLocks.Get(parent[:])
	lock.Lock()
	defer lock.Unlock()

	preparent, err := m.getInode(ctx, parent)
	if err != nil {
		return &proto.NamelinkResponse{Errno: m.errno(ctx, err)}, nil
	}
	if _, err = m.store.GetDentry(ctx, parent, req.Loc.Name); err == nil {
		return &proto.NamelinkResponse{Errno: int32(syscall.EEXIST)}, nil
	} else if !errors.Is(err, kvstore.ErrNotFound) {
		return &proto.NamelinkResponse{Errno: m.errno(ctx, err)}, nil
	}

	postparent := *preparent
	if req.Type == proto.IATypeDir {
		postparent.Nlink++
	}
	touch(&postparent, time.Now())

	batch := kvstore.NewWriteBatch()
	m.store.PutDentry(batch, parent, req.Loc.Name, &Dentry{GFID: req.GFID, Type: req.Type})
	m.store.PutInode(batch, &postparent)
	if err = m.store.Commit(ctx, batch); err != nil {
		return &proto.NamelinkResponse{Errno: m.errno(ctx, err)}, nil
	}
	return &proto.NamelinkResponse{Preparent: preparent, Postparent: &postparent}, nil
}

func (m *MDS) Stat(ctx context.Context, req *proto.StatRequest) (*proto.StatResponse, error) {
	gfid := req.Loc.InodeGFID()
	if gfid.IsNull() {
		return &proto.StatResponse{Errno: int32(syscall.EINVAL)}, nil
	}
	iatt, err := m.getInode(ctx, gfid)
	if err != nil {
		return &proto.StatResponse{Errno: m.errno(ctx, err)}, nil
	}
	return &proto.StatResponse{Buf: iatt}, nil
}

func (m *MDS) Setattr(ctx context.Context, req *proto.SetattrRequest) (*proto.SetattrResponse, error) {
	gfid := req.Loc.InodeGFID()
	if gfid.IsNull() {
		return &proto.SetattrResponse{Errno: int32(syscall.EINVAL)}, nil
	}

	lock := m.keyLocks.Get(gfid[:])
	lock.Lock()
	defer lock.Unlock()

	prestat, err := m.getInode(ctx, gfid)
	if err != nil {
		return &proto.SetattrResponse{Errno: m.errno(ctx, err)}, nil
	}
	poststat := *prestat
	applySetattr(&poststat, &req.Stbuf, req.Valid, time.Now())

	batch := kvstore.NewWriteBatch()
	m.store.PutInode(batch, &poststat)
	if err = m.store.Commit(ctx, batch); err != nil {
		return &proto.SetattrResponse{Errno: m.errno(ctx, err)}, nil
	}
	return &proto.SetattrResponse{Prestat: prestat, Poststat: &poststat}, nil
}

func (m *MDS) Open(ctx context.Context, req *proto.OpenRequest) (*proto.OpenResponse, error) {
	gfid := req.Loc.InodeGFID()
	if gfid.IsNull() {
		return &proto.OpenResponse{Errno: int32(syscall.EINVAL)}, nil
	}
	if _, err := m.getInode(ctx, gfid); err != nil {
		return &proto.OpenResponse{Errno: m.errno(ctx, err)}, nil
	}
	return &proto.OpenResponse{Fd: &proto.Fd{GFID: gfid, Flags: req.Flags}}, nil
}

func (m *MDS) Flush(ctx context.Context, req *proto.FlushRequest) (*proto.FlushResponse, error) {
	if _, err := m.getInode(ctx, req.Fd.GFID); err != nil {
		return &proto.FlushResponse{Errno: m.errno(ctx, err)}, nil
	}
	return &proto.FlushResponse{}, nil
}

// Write is served by data servers only.
func (m *MDS) Write(ctx context.Context, req *proto.WriteRequest) (*proto.WriteResponse, error) {
	return &proto.WriteResponse{Errno: int32(syscall.EOPNOTSUPP)}, nil
}

// Read is served by data servers only.
func (m *MDS) Read(ctx context.Context, req *proto.ReadRequest) (*proto.ReadResponse, error) {
	return &proto.ReadResponse{Errno: int32(syscall.EOPNOTSUPP)}, nil
}

func (m *MDS) Statfs(ctx context.Context, req *proto.StatfsRequest) (*proto.StatfsResponse, error) {
	files, err := m.store.CountInodes(ctx)
	if err != nil {
		return &proto.StatfsResponse{Errno: m.errno(ctx, err)}, nil
	}
	stats, err := m.kv.Stats(ctx)
	if err != nil {
		return &proto.StatfsResponse{Errno: m.errno(ctx, err)}, nil
	}
	return &proto.StatfsResponse{Statfs: &proto.Statfs{
		Bsize:   defaultBlksize,
		Frsize:  defaultBlksize,
		Blocks:  stats.Used / defaultBlksize,
		Files:   files,
		Namemax: defaultNamemax,
	}}, nil
}

func (m *MDS) getInode(ctx context.Context, gfid proto.GFID) (*proto.Iatt, error) {
	return m.store.GetInode(ctx, gfid)
}

func (m *MDS) createRoot(ctx context.Context) (*proto.Iatt, error) {
	lock := m.keyLocks.Get(proto.RootGFID[:])
	lock.Lock()
	defer lock.Unlock()

	if iatt, err := m.getInode(ctx, proto.RootGFID); !errors.Is(err, kvstore.ErrNotFound) {
		return iatt, err
	}
	iatt := m.newIatt(proto.RootGFID, proto.IATypeDir, rootMode, time.Now())
	batch := kvstore.NewWriteBatch()
	m.store.PutInode(batch, iatt)
	if err := m.store.Commit(ctx, batch); err != nil {
		return nil, err
	}
	trace.SpanFromContextSafe(ctx).Infof("root created on %s", m.name)
	return iatt, nil
}

func (m *MDS) newIatt(gfid proto.GFID, typ proto.IAType, mode uint32, now time.Time) *proto.Iatt {
	iatt := &proto.Iatt{
		GFID:    gfid,
		Ino:     binary.BigEndian.Uint64(gfid[8:]),
		Dev:     m.dev,
		Type:    typ,
		Prot:    mode & 0o7777,
		Nlink:   1,
		Blksize: defaultBlksize,
	}
	if typ == proto.IATypeDir {
		iatt.Nlink = 2
	}
	setTimes(iatt, now, true, true, true)
	return iatt
}

func (m *MDS) remoteXdata() proto.Dict {
	xdata := make(proto.Dict)
	xdata.SetString(m.reasonKey, proto.ReasonInodeRemote)
	return xdata
}

func (m *MDS) errno(ctx context.Context, err error) int32 {
	switch {
	case errors.Is(err, kvstore.ErrNotFound):
		return int32(syscall.ENOENT)
	case errors.Is(err, apierrors.ErrChecksumMismatch), errors.Is(err, apierrors.ErrInvalidRecord):
		trace.SpanFromContextSafe(ctx).Errorf("%s: corrupted record: %s", m.name, err)
		return int32(syscall.EIO)
	}
	trace.SpanFromContextSafe(ctx).Errorf("%s: store failed: %s", m.name, err)
	return apierrors.Errno(err)
}

func touch(iatt *proto.Iatt, now time.Time) {
	setTimes(iatt, now, false, true, true)
}

func setTimes(iatt *proto.Iatt, now time.Time, atime, mtime, ctime bool) {
	sec, nsec := now.Unix(), uint32(now.Nanosecond())
	if atime {
		iatt.Atime, iatt.AtimeNsec = sec, nsec
	}
	if mtime {
		iatt.Mtime, iatt.MtimeNsec = sec, nsec
	}
	if ctime {
		iatt.Ctime, iatt.CtimeNsec = sec, nsec
	}
}

func applySetattr(iatt, stbuf *proto.Iatt, valid uint32, now time.Time) {
	if valid&proto.SetattrMode != 0 {
		iatt.Prot = stbuf.Prot & 0o7777
	}
	if valid&proto.SetattrUID != 0 {
		iatt.UID = stbuf.UID
	}
	if valid&proto.SetattrGID != 0 {
		iatt.GID = stbuf.GID
	}
	if valid&proto.SetattrSize != 0 {
		iatt.Size = stbuf.Size
		iatt.Blocks = (stbuf.Size + 511) / 512
	}
	if valid&proto.SetattrAtime != 0 {
		iatt.Atime, iatt.AtimeNsec = stbuf.Atime, stbuf.AtimeNsec
	}
	if valid&proto.SetattrMtime != 0 {
		iatt.Mtime, iatt.MtimeNsec = stbuf.Mtime, stbuf.MtimeNsec
	}
	setTimes(iatt, now, false, false, true)
}
