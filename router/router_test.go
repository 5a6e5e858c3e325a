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

package router

import (
	"context"
	"fmt"
	"sync/atomic"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cubefs/metadht/common/kvstore"
	"github.com/cubefs/metadht/ds"
	"github.com/cubefs/metadht/mds"
	"github.com/cubefs/metadht/proto"
	"github.com/cubefs/metadht/router/catalog"
)

// countingSubvol counts the lookups reaching a backend.
type countingSubvol struct {
	proto.Subvolume
	lookups int64
}

func (c *countingSubvol) Lookup(ctx context.Context, req *proto.LookupRequest) (*proto.LookupResponse, error) {
	atomic.AddInt64(&c.lookups, 1)
	return c.Subvolume.Lookup(ctx, req)
}

func (c *countingSubvol) count() int64 {
	return atomic.LoadInt64(&c.lookups)
}

type testEnv struct {
	r        *Router
	backends map[string]*countingSubvol
}

func subvolName(i int) string {
	return fmt.Sprintf("subvol-%d", i)
}

// newTestEnv starts mdsCount metadata and dsCount data servers in memory.
func newTestEnv(t *testing.T, mdsCount, dsCount int) *testEnv {
	ctx := context.Background()
	env := &testEnv{backends: make(map[string]*countingSubvol)}
	children := make(map[string]proto.Subvolume)
	var names []string
	for i := 0; i < mdsCount+dsCount; i++ {
		name := subvolName(i)
		kv := kvstore.Config{Option: kvstore.Option{InMemory: true}}
		var sv proto.Subvolume
		if i < mdsCount {
			m, err := mds.New(ctx, &mds.Config{Name: name, KV: kv})
			require.NoError(t, err)
			t.Cleanup(m.Close)
			sv = m
		} else {
			d, err := ds.New(ctx, &ds.Config{Name: name, BlockSize: 4096, KV: kv})
			require.NoError(t, err)
			t.Cleanup(d.Close)
			sv = d
		}
		env.backends[name] = &countingSubvol{Subvolume: sv}
		children[name] = env.backends[name]
		names = append(names, name)
	}

	r, err := New(&Config{
		Name:       "router",
		Catalog:    catalog.Config{MDSCount: mdsCount, DSCount: dsCount},
		Subvolumes: names,
	}, children)
	require.NoError(t, err)
	env.r = r
	t.Cleanup(func() { require.Zero(t, inflightOps()) })
	return env
}

func (env *testEnv) owner(t *testing.T, id proto.GFID, role proto.Role) string {
	sv, err := env.r.Catalog().Route(id, role)
	require.NoError(t, err)
	return sv.Name()
}

func (env *testEnv) lookupRoot(t *testing.T) *proto.Iatt {
	resp, err := env.r.Lookup(context.Background(), &proto.LookupRequest{Loc: proto.NamelessLoc(proto.RootGFID)})
	require.NoError(t, err)
	require.Zero(t, resp.Errno)
	return resp.Buf
}

func named(parent proto.GFID, name string) proto.Loc {
	return proto.Loc{Name: name, ParentGFID: parent, Path: "/" + name}
}

func TestRouterRoot(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 4, 4)

	root := env.lookupRoot(t)
	require.Equal(t, proto.RootGFID, root.GFID)
	require.Equal(t, proto.IATypeDir, root.Type)
	require.Equal(t, int64(1), env.backends["subvol-0"].count())
	require.Equal(t, "subvol-0", env.owner(t, proto.RootGFID, proto.RoleMDS))
	require.Equal(t, "subvol-4", env.owner(t, proto.RootGFID, proto.RoleDS))

	// root routes nameless even when the caller names a parent
	resp, err := env.r.Lookup(ctx, &proto.LookupRequest{Loc: proto.Loc{
		GFID: proto.RootGFID, ParentGFID: proto.RootGFID, Name: "ignored",
	}})
	require.NoError(t, err)
	require.Zero(t, resp.Errno)
	require.Equal(t, proto.RootGFID, resp.Buf.GFID)

	sresp, err := env.r.Stat(ctx, &proto.StatRequest{Loc: proto.NamelessLoc(proto.RootGFID)})
	require.NoError(t, err)
	require.Zero(t, sresp.Errno)
	require.Equal(t, *root, *sresp.Buf)

	fresp, err := env.r.Statfs(ctx, &proto.StatfsRequest{})
	require.NoError(t, err)
	require.Zero(t, fresp.Errno)
	require.Equal(t, uint64(1), fresp.Statfs.Files)
}

func TestRouterCreate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 4, 4)
	env.lookupRoot(t)

	resp, err := env.r.Create(ctx, &proto.CreateRequest{
		Loc:   named(proto.RootGFID, "a"),
		Flags: syscall.O_CREAT | syscall.O_RDWR,
		Mode:  0o644,
	})
	require.NoError(t, err)
	require.Zero(t, resp.Errno)
	require.NotNil(t, resp.Fd)
	id := resp.Buf.GFID
	require.False(t, id.IsNull())
	require.Equal(t, "subvol-0", env.owner(t, id, proto.RoleMDS))
	require.Equal(t, env.owner(t, id, proto.RoleDS), resp.DataSubvol)
	require.Equal(t, proto.RootGFID, resp.Postparent.GFID)

	before := env.backends["subvol-0"].count()
	lresp, err := env.r.Lookup(ctx, &proto.LookupRequest{Loc: named(proto.RootGFID, "a")})
	require.NoError(t, err)
	require.Zero(t, lresp.Errno)
	require.Equal(t, id, lresp.Buf.GFID)
	require.Equal(t, before+1, env.backends["subvol-0"].count())

	// an existing local name opens, or fails under O_EXCL
	resp, err = env.r.Create(ctx, &proto.CreateRequest{Loc: named(proto.RootGFID, "a"), Flags: syscall.O_CREAT})
	require.NoError(t, err)
	require.Zero(t, resp.Errno)
	require.Equal(t, id, resp.Buf.GFID)
	resp, err = env.r.Create(ctx, &proto.CreateRequest{Loc: named(proto.RootGFID, "a"), Flags: syscall.O_CREAT | syscall.O_EXCL})
	require.NoError(t, err)
	require.Equal(t, int32(syscall.EEXIST), resp.Errno)

	fd := proto.Fd{GFID: id}
	wresp, err := env.r.Write(ctx, &proto.WriteRequest{Fd: fd, Offset: 10, Data: []byte("hello")})
	require.NoError(t, err)
	require.Zero(t, wresp.Errno)
	require.Equal(t, uint64(15), wresp.Poststat.Size)
	rresp, err := env.r.Read(ctx, &proto.ReadRequest{Fd: fd, Offset: 10, Size: 100})
	require.NoError(t, err)
	require.Zero(t, rresp.Errno)
	require.Equal(t, []byte("hello"), rresp.Data)
	require.True(t, rresp.EOF)

	oresp, err := env.r.Open(ctx, &proto.OpenRequest{Loc: proto.NamelessLoc(id), Flags: syscall.O_RDONLY})
	require.NoError(t, err)
	require.Zero(t, oresp.Errno)
	flresp, err := env.r.Flush(ctx, &proto.FlushRequest{Fd: *oresp.Fd})
	require.NoError(t, err)
	require.Zero(t, flresp.Errno)

	saresp, err := env.r.Setattr(ctx, &proto.SetattrRequest{
		Loc:   proto.NamelessLoc(id),
		Stbuf: proto.Iatt{Prot: 0o600, UID: 1000},
		Valid: proto.SetattrMode | proto.SetattrUID,
	})
	require.NoError(t, err)
	require.Zero(t, saresp.Errno)
	require.Equal(t, uint32(1000), saresp.Poststat.UID)
	sresp, err := env.r.Stat(ctx, &proto.StatRequest{Loc: proto.NamelessLoc(id)})
	require.NoError(t, err)
	require.Equal(t, uint32(1000), sresp.Buf.UID)
}

func TestRouterMkdir(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 4, 4)
	env.lookupRoot(t)

	// mkdir until one directory lands away from the root
	var (
		dir  proto.GFID
		name string
	)
	for i := 0; i < 64 && dir.IsNull(); i++ {
		name = fmt.Sprintf("dir-%d", i)
		resp, err := env.r.Mkdir(ctx, &proto.MkdirRequest{Loc: named(proto.RootGFID, name), Mode: 0o755})
		require.NoError(t, err)
		require.Zero(t, resp.Errno)
		require.Equal(t, proto.IATypeDir, resp.Buf.Type)
		require.Equal(t, resp.Preparent.Nlink+1, resp.Postparent.Nlink)
		if env.owner(t, resp.Buf.GFID, proto.RoleMDS) != "subvol-0" {
			dir = resp.Buf.GFID
		}
	}
	require.False(t, dir.IsNull())
	owner := env.backends[env.owner(t, dir, proto.RoleMDS)]

	first, second := env.backends["subvol-0"].count(), owner.count()
	resp, err := env.r.Lookup(ctx, &proto.LookupRequest{Loc: named(proto.RootGFID, name)})
	require.NoError(t, err)
	require.Zero(t, resp.Errno)
	require.Equal(t, dir, resp.Buf.GFID)
	require.Equal(t, proto.RootGFID, resp.Postparent.GFID)
	require.Equal(t, first+1, env.backends["subvol-0"].count())
	require.Equal(t, second+1, owner.count())

	// children of the directory live with it
	cresp, err := env.r.Create(ctx, &proto.CreateRequest{Loc: named(dir, "f"), Flags: syscall.O_CREAT})
	require.NoError(t, err)
	require.Zero(t, cresp.Errno)
	require.Equal(t, env.owner(t, dir, proto.RoleMDS), env.owner(t, cresp.Buf.GFID, proto.RoleMDS))
	resp, err = env.r.Lookup(ctx, &proto.LookupRequest{Loc: named(dir, "f")})
	require.NoError(t, err)
	require.Zero(t, resp.Errno)
	require.Equal(t, cresp.Buf.GFID, resp.Buf.GFID)
	require.Equal(t, dir, resp.Postparent.GFID)

	// the name of a remote directory answers EREMOTE to create
	eresp, err := env.r.Create(ctx, &proto.CreateRequest{Loc: named(proto.RootGFID, name), Flags: syscall.O_CREAT | syscall.O_EXCL})
	require.NoError(t, err)
	require.Equal(t, int32(syscall.EEXIST), eresp.Errno)
	eresp, err = env.r.Create(ctx, &proto.CreateRequest{Loc: named(proto.RootGFID, name), Flags: syscall.O_CREAT})
	require.NoError(t, err)
	require.Equal(t, int32(syscall.EREMOTE), eresp.Errno)

	mresp, err := env.r.Mkdir(ctx, &proto.MkdirRequest{Loc: named(proto.RootGFID, name), Mode: 0o755})
	require.NoError(t, err)
	require.Equal(t, int32(syscall.EEXIST), mresp.Errno)
}

func TestRouterInvalid(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 2, 2)

	lresp, err := env.r.Lookup(ctx, &proto.LookupRequest{})
	require.NoError(t, err)
	require.Equal(t, int32(syscall.EINVAL), lresp.Errno)
	lresp, err = env.r.Lookup(ctx, &proto.LookupRequest{Loc: proto.Loc{ParentGFID: proto.RootGFID}})
	require.NoError(t, err)
	require.Equal(t, int32(syscall.EINVAL), lresp.Errno)

	cresp, err := env.r.Create(ctx, &proto.CreateRequest{Loc: proto.Loc{Name: "a"}})
	require.NoError(t, err)
	require.Equal(t, int32(syscall.EINVAL), cresp.Errno)
	mresp, err := env.r.Mkdir(ctx, &proto.MkdirRequest{Loc: proto.Loc{ParentGFID: proto.RootGFID}})
	require.NoError(t, err)
	require.Equal(t, int32(syscall.EINVAL), mresp.Errno)
	nresp, err := env.r.Namelink(ctx, &proto.NamelinkRequest{Loc: proto.Loc{Name: "a"}})
	require.NoError(t, err)
	require.Equal(t, int32(syscall.EINVAL), nresp.Errno)

	sresp, err := env.r.Stat(ctx, &proto.StatRequest{})
	require.NoError(t, err)
	require.Equal(t, int32(syscall.EINVAL), sresp.Errno)
	wresp, err := env.r.Write(ctx, &proto.WriteRequest{Data: []byte("a")})
	require.NoError(t, err)
	require.Equal(t, int32(syscall.EINVAL), wresp.Errno)
	rresp, err := env.r.Read(ctx, &proto.ReadRequest{Size: 1})
	require.NoError(t, err)
	require.Equal(t, int32(syscall.EINVAL), rresp.Errno)

	// a name under a missing parent
	lresp, err = env.r.Lookup(ctx, &proto.LookupRequest{Loc: named(proto.GFID{0: 1, 15: 9}, "a")})
	require.NoError(t, err)
	require.Equal(t, int32(syscall.ENOENT), lresp.Errno)
}

// scriptedSubvol answers lookups from a script, other fops panic unless
// set.
type scriptedSubvol struct {
	proto.Subvolume
	name string

	lookup   func(req *proto.LookupRequest) (*proto.LookupResponse, error)
	create   func(req *proto.CreateRequest) *proto.CreateResponse
	namelink func(req *proto.NamelinkRequest) *proto.NamelinkResponse
	statfs   func() (*proto.StatfsResponse, error)

	lookups  int64
	mkinodes int64
	creates  int64
}

func (s *scriptedSubvol) Create(ctx context.Context, req *proto.CreateRequest) (*proto.CreateResponse, error) {
	atomic.AddInt64(&s.creates, 1)
	return s.create(req), nil
}

func (s *scriptedSubvol) Lookup(ctx context.Context, req *proto.LookupRequest) (*proto.LookupResponse, error) {
	atomic.AddInt64(&s.lookups, 1)
	return s.lookup(req)
}

func (s *scriptedSubvol) Mkinode(ctx context.Context, req *proto.MkinodeRequest) (*proto.MkinodeResponse, error) {
	atomic.AddInt64(&s.mkinodes, 1)
	id := req.Loc.InodeGFID()
	return &proto.MkinodeResponse{Buf: &proto.Iatt{GFID: id, Type: req.Type}}, nil
}

func (s *scriptedSubvol) Namelink(ctx context.Context, req *proto.NamelinkRequest) (*proto.NamelinkResponse, error) {
	return s.namelink(req), nil
}

func (s *scriptedSubvol) Statfs(ctx context.Context, req *proto.StatfsRequest) (*proto.StatfsResponse, error) {
	return s.statfs()
}

// newScriptedRouter builds mdsCount mds and one ds. With two mds members
// the first gfid byte below 0x80 routes to subvol-0.
func newScriptedRouter(t *testing.T, mdsCount int) (*Router, []*scriptedSubvol) {
	var (
		names    []string
		subvols  []*scriptedSubvol
		children = make(map[string]proto.Subvolume)
	)
	for i := 0; i < mdsCount+1; i++ {
		sv := &scriptedSubvol{name: subvolName(i)}
		subvols = append(subvols, sv)
		names = append(names, sv.name)
		children[sv.name] = sv
	}
	r, err := New(&Config{
		Name:       "router",
		Catalog:    catalog.Config{MDSCount: mdsCount, DSCount: 1},
		Subvolumes: names,
	}, children)
	require.NoError(t, err)
	t.Cleanup(func() { require.Zero(t, inflightOps()) })
	return r, subvols
}

var (
	localGFID  = proto.GFID{0: 0x10, 15: 1}
	remoteGFID = proto.GFID{0: 0x90, 15: 2}
)

func remoteReply(reason string, postparent *proto.Iatt) *proto.LookupResponse {
	resp := &proto.LookupResponse{
		Errno:      int32(syscall.EREMOTE),
		Buf:        &proto.Iatt{GFID: remoteGFID, Type: proto.IATypeDir},
		Postparent: postparent,
	}
	if reason != "" {
		resp.Xdata = make(proto.Dict)
		resp.Xdata.SetString(proto.EremoteReasonKey(""), reason)
	}
	return resp
}

func TestRouterLookupRemote(t *testing.T) {
	ctx := context.Background()
	req := &proto.LookupRequest{Loc: named(localGFID, "d")}
	parent := &proto.Iatt{GFID: localGFID, Type: proto.IATypeDir, Nlink: 3, Mtime: 100}

	t.Run("follow", func(t *testing.T) {
		r, svs := newScriptedRouter(t, 2)
		svs[0].lookup = func(req *proto.LookupRequest) (*proto.LookupResponse, error) {
			return remoteReply(proto.ReasonInodeRemote, parent), nil
		}
		svs[1].lookup = func(req *proto.LookupRequest) (*proto.LookupResponse, error) {
			require.Equal(t, proto.NamelessLoc(remoteGFID), req.Loc)
			return &proto.LookupResponse{
				Buf:        &proto.Iatt{GFID: remoteGFID, Type: proto.IATypeDir, Nlink: 2},
				Postparent: &proto.Iatt{GFID: remoteGFID},
			}, nil
		}
		resp, err := r.Lookup(ctx, req)
		require.NoError(t, err)
		require.Zero(t, resp.Errno)
		require.Equal(t, remoteGFID, resp.Buf.GFID)
		require.Equal(t, *parent, *resp.Postparent)
		require.Equal(t, int64(1), svs[0].lookups)
		require.Equal(t, int64(1), svs[1].lookups)
	})

	for _, cs := range []struct {
		name  string
		reply *proto.LookupResponse
	}{
		{name: "no reason", reply: remoteReply("", parent)},
		{name: "rebalance", reply: remoteReply(proto.ReasonRebalance, parent)},
		{name: "no buf", reply: &proto.LookupResponse{Errno: int32(syscall.EREMOTE)}},
		{name: "null gfid", reply: &proto.LookupResponse{Errno: int32(syscall.EREMOTE), Buf: &proto.Iatt{}}},
	} {
		t.Run(cs.name, func(t *testing.T) {
			r, svs := newScriptedRouter(t, 2)
			svs[0].lookup = func(*proto.LookupRequest) (*proto.LookupResponse, error) { return cs.reply, nil }
			resp, err := r.Lookup(ctx, req)
			require.NoError(t, err)
			require.Equal(t, int32(syscall.EIO), resp.Errno)
			require.Zero(t, svs[1].lookups)
		})
	}

	t.Run("no third hop", func(t *testing.T) {
		r, svs := newScriptedRouter(t, 2)
		svs[0].lookup = func(*proto.LookupRequest) (*proto.LookupResponse, error) {
			return remoteReply(proto.ReasonInodeRemote, parent), nil
		}
		svs[1].lookup = svs[0].lookup
		resp, err := r.Lookup(ctx, req)
		require.NoError(t, err)
		require.Equal(t, int32(syscall.EREMOTE), resp.Errno)
		require.Equal(t, int64(1), svs[0].lookups)
		require.Equal(t, int64(1), svs[1].lookups)
	})

	t.Run("errno verbatim", func(t *testing.T) {
		r, svs := newScriptedRouter(t, 2)
		svs[0].lookup = func(*proto.LookupRequest) (*proto.LookupResponse, error) {
			return &proto.LookupResponse{Errno: int32(syscall.ENOENT), Postparent: parent}, nil
		}
		resp, err := r.Lookup(ctx, req)
		require.NoError(t, err)
		require.Equal(t, int32(syscall.ENOENT), resp.Errno)
		require.Equal(t, parent, resp.Postparent)
	})

	t.Run("broken transport", func(t *testing.T) {
		r, svs := newScriptedRouter(t, 2)
		svs[0].lookup = func(*proto.LookupRequest) (*proto.LookupResponse, error) {
			return nil, fmt.Errorf("connection reset")
		}
		resp, err := r.Lookup(ctx, req)
		require.NoError(t, err)
		require.Equal(t, int32(syscall.ENOTCONN), resp.Errno)
	})
}

func TestRouterLookupRelocateManyMDS(t *testing.T) {
	ctx := context.Background()
	r, svs := newScriptedRouter(t, 8)
	table := r.Catalog().Table(proto.RoleMDS)

	// eight buckets of 8192 keys, the first gfid byte picks bucket byte/32
	parentGFID := proto.GFID{0: 0x65, 15: 3}
	childGFID := proto.GFID{0: 0xe5, 15: 7}
	index, err := table.Locate(parentGFID)
	require.NoError(t, err)
	require.Equal(t, 3, index)
	index, err = table.Locate(childGFID)
	require.NoError(t, err)
	require.Equal(t, 7, index)

	parent := &proto.Iatt{GFID: parentGFID, Type: proto.IATypeDir, Nlink: 4, Mtime: 300}
	svs[3].lookup = func(req *proto.LookupRequest) (*proto.LookupResponse, error) {
		require.Equal(t, named(parentGFID, "d"), req.Loc)
		resp := &proto.LookupResponse{
			Errno:      int32(syscall.EREMOTE),
			Buf:        &proto.Iatt{GFID: childGFID, Type: proto.IATypeDir},
			Postparent: parent,
			Xdata:      make(proto.Dict),
		}
		resp.Xdata.SetString(proto.EremoteReasonKey(""), proto.ReasonInodeRemote)
		return resp, nil
	}
	svs[7].lookup = func(req *proto.LookupRequest) (*proto.LookupResponse, error) {
		require.Equal(t, proto.NamelessLoc(childGFID), req.Loc)
		return &proto.LookupResponse{
			Buf:        &proto.Iatt{GFID: childGFID, Type: proto.IATypeDir, Nlink: 2},
			Postparent: &proto.Iatt{GFID: childGFID},
		}, nil
	}

	resp, err := r.Lookup(ctx, &proto.LookupRequest{Loc: named(parentGFID, "d")})
	require.NoError(t, err)
	require.Zero(t, resp.Errno)
	require.Equal(t, childGFID, resp.Buf.GFID)
	require.Equal(t, *parent, *resp.Postparent)
	for i, sv := range svs {
		switch i {
		case 3, 7:
			require.Equal(t, int64(1), sv.lookups, sv.name)
		default:
			require.Zero(t, sv.lookups, sv.name)
		}
	}
}

func TestRouterCreateGFIDInUse(t *testing.T) {
	ctx := context.Background()
	req := &proto.CreateRequest{Loc: named(localGFID, "f"), Flags: syscall.O_CREAT, Mode: 0o644}
	inUse := func(id proto.GFID) *proto.CreateResponse {
		xdata := make(proto.Dict)
		xdata.SetGFID(proto.GFIDInUseKey(""), id)
		return &proto.CreateResponse{Errno: int32(syscall.EEXIST), Xdata: xdata}
	}

	t.Run("retry", func(t *testing.T) {
		r, svs := newScriptedRouter(t, 2)
		var ids []proto.GFID
		svs[0].create = func(req *proto.CreateRequest) *proto.CreateResponse {
			id, ok := req.Xdata.GetGFID(proto.GFIDReqKey)
			require.True(t, ok)
			ids = append(ids, id)
			if len(ids) == 1 {
				return inUse(id)
			}
			return &proto.CreateResponse{
				Fd:         &proto.Fd{GFID: id},
				Buf:        &proto.Iatt{GFID: id, Type: proto.IATypeReg},
				Postparent: &proto.Iatt{GFID: localGFID, Type: proto.IATypeDir},
			}
		}
		resp, err := r.Create(ctx, req)
		require.NoError(t, err)
		require.Zero(t, resp.Errno)
		require.Len(t, ids, 2)
		require.NotEqual(t, ids[0], ids[1])
		require.Equal(t, ids[1], resp.Buf.GFID)
		require.Equal(t, subvolName(2), resp.DataSubvol)
		for _, id := range ids {
			owner, err := r.Catalog().Table(proto.RoleMDS).Owner(id)
			require.NoError(t, err)
			require.Equal(t, subvolName(0), owner)
		}
		require.Zero(t, svs[1].creates)
	})

	t.Run("retry once", func(t *testing.T) {
		r, svs := newScriptedRouter(t, 2)
		svs[0].create = func(req *proto.CreateRequest) *proto.CreateResponse {
			id, _ := req.Xdata.GetGFID(proto.GFIDReqKey)
			return inUse(id)
		}
		resp, err := r.Create(ctx, req)
		require.NoError(t, err)
		require.Equal(t, int32(syscall.EEXIST), resp.Errno)
		require.Equal(t, int64(1+maxCreateRetries), svs[0].creates)
	})

	t.Run("name exists", func(t *testing.T) {
		r, svs := newScriptedRouter(t, 2)
		svs[0].create = func(*proto.CreateRequest) *proto.CreateResponse {
			return &proto.CreateResponse{Errno: int32(syscall.EEXIST)}
		}
		excl := *req
		excl.Flags |= syscall.O_EXCL
		resp, err := r.Create(ctx, &excl)
		require.NoError(t, err)
		require.Equal(t, int32(syscall.EEXIST), resp.Errno)
		require.Equal(t, int64(1), svs[0].creates)
	})
}

func TestRouterMkdirOrphan(t *testing.T) {
	ctx := context.Background()
	r, svs := newScriptedRouter(t, 2)
	for _, sv := range svs[:2] {
		sv.namelink = func(*proto.NamelinkRequest) *proto.NamelinkResponse {
			return &proto.NamelinkResponse{Errno: int32(syscall.EDQUOT)}
		}
	}

	resp, err := r.Mkdir(ctx, &proto.MkdirRequest{Loc: named(localGFID, "d"), Mode: 0o755})
	require.NoError(t, err)
	require.Equal(t, int32(syscall.EDQUOT), resp.Errno)
	require.Equal(t, int64(1), svs[0].mkinodes+svs[1].mkinodes)
}

func TestRouterStatfs(t *testing.T) {
	ctx := context.Background()
	r, svs := newScriptedRouter(t, 2)
	for i, sv := range svs {
		files := uint64(i + 1)
		sv.statfs = func() (*proto.StatfsResponse, error) {
			return &proto.StatfsResponse{Statfs: &proto.Statfs{Bsize: 4096, Frsize: 4096, Blocks: 10, Files: files}}, nil
		}
	}
	resp, err := r.Statfs(ctx, &proto.StatfsRequest{})
	require.NoError(t, err)
	require.Zero(t, resp.Errno)
	require.Equal(t, uint64(30), resp.Statfs.Blocks)
	require.Equal(t, uint64(6), resp.Statfs.Files)

	// partial answers still sum
	svs[1].statfs = func() (*proto.StatfsResponse, error) { return nil, fmt.Errorf("unreachable") }
	resp, err = r.Statfs(ctx, &proto.StatfsRequest{})
	require.NoError(t, err)
	require.Zero(t, resp.Errno)
	require.Equal(t, uint64(4), resp.Statfs.Files)

	// a child answering nothing counts as failed
	svs[2].statfs = func() (*proto.StatfsResponse, error) { return nil, nil }
	resp, err = r.Statfs(ctx, &proto.StatfsRequest{})
	require.NoError(t, err)
	require.Zero(t, resp.Errno)
	require.Equal(t, uint64(1), resp.Statfs.Files)

	for _, sv := range svs {
		sv.statfs = func() (*proto.StatfsResponse, error) {
			return &proto.StatfsResponse{Errno: int32(syscall.EIO)}, nil
		}
	}
	resp, err = r.Statfs(ctx, &proto.StatfsRequest{})
	require.NoError(t, err)
	require.Equal(t, int32(syscall.EIO), resp.Errno)
}
