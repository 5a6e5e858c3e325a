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
	"errors"
	"syscall"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	apierrors "github.com/cubefs/metadht/errors"
	"github.com/cubefs/metadht/metrics"
	"github.com/cubefs/metadht/proto"
)

// a create whose colocated gfid is taken is retried this many times with a
// fresh gfid
const maxCreateRetries = 1

// Create places the new file colocated with its parent, the name and the
// inode are written by a single mds.
func (r *Router) Create(ctx context.Context, req *proto.CreateRequest) (*proto.CreateResponse, error) {
	local := newLocal("create")
	defer local.release()

	resp := r.create(ctx, local, req)
	unwind("create", resp.Errno)
	return resp, nil
}

func (r *Router) create(ctx context.Context, local *opLocal, req *proto.CreateRequest) *proto.CreateResponse {
	span := trace.SpanFromContextSafe(ctx)
	parent, ok := req.Loc.ParentID()
	if !ok || req.Loc.Name == "" {
		span.Errorf("create %q: missing parent or name", req.Loc.Path)
		return &proto.CreateResponse{Errno: int32(syscall.EINVAL)}
	}
	mds, errno := r.route(ctx, parent, proto.RoleMDS)
	if errno != 0 {
		return &proto.CreateResponse{Errno: errno}
	}

	var resp *proto.CreateResponse
	for attempt := 0; ; attempt++ {
		id, errno := r.generate(ctx, func() (proto.GFID, error) { return r.gen.Colocated(parent) })
		if errno != 0 {
			return &proto.CreateResponse{Errno: errno}
		}
		local.gfid = id
		if local.dataSubvol, errno = r.route(ctx, id, proto.RoleDS); errno != 0 {
			return &proto.CreateResponse{Errno: errno}
		}

		wound := *req
		wound.Xdata = req.Xdata.Clone()
		if wound.Xdata == nil {
			wound.Xdata = make(proto.Dict)
		}
		wound.Xdata.SetGFID(proto.GFIDReqKey, id)

		var err error
		resp, err = mds.Create(ctx, &wound)
		if err != nil {
			return &proto.CreateResponse{Errno: callErrno(ctx, mds, "create", err)}
		}
		if attempt >= maxCreateRetries || !r.gfidInUse(resp) {
			break
		}
		span.Warnf("create %s/%s: gfid %s in use on %s, drawing another", parent, req.Loc.Name, id, mds.Name())
	}

	switch resp.Errno {
	case 0:
		resp.DataSubvol = local.dataSubvol.Name()
	case int32(syscall.EREMOTE):
		if req.Flags&syscall.O_EXCL != 0 {
			return &proto.CreateResponse{Errno: int32(syscall.EEXIST)}
		}
		span.Warnf("create %s/%s: name points to a remote inode, raced with unlink", parent, req.Loc.Name)
		return resp
	default:
		return resp
	}

	local.stashPostparent(resp.Postparent)
	resp.Postparent = local.cachedPostparent()
	span.Debugf("created %s/%s gfid %s on %s, data on %s", parent, req.Loc.Name, local.gfid, mds.Name(), resp.DataSubvol)
	return resp
}

// gfidInUse reports an EEXIST raised by the requested gfid rather than by
// the name.
func (r *Router) gfidInUse(resp *proto.CreateResponse) bool {
	if resp.Errno != int32(syscall.EEXIST) {
		return false
	}
	_, ok := resp.Xdata.GetGFID(r.inUseKey)
	return ok
}

// Mkdir places the new directory on a random mds, only its name lives
// with the parent.
func (r *Router) Mkdir(ctx context.Context, req *proto.MkdirRequest) (*proto.MkdirResponse, error) {
	local := newLocal("mkdir")
	defer local.release()

	resp := r.mkdir(ctx, local, req)
	unwind("mkdir", resp.Errno)
	return resp, nil
}

func (r *Router) mkdir(ctx context.Context, local *opLocal, req *proto.MkdirRequest) *proto.MkdirResponse {
	span := trace.SpanFromContextSafe(ctx)
	parent, ok := req.Loc.ParentID()
	if !ok || req.Loc.Name == "" {
		span.Errorf("mkdir %q: missing parent or name", req.Loc.Path)
		return &proto.MkdirResponse{Errno: int32(syscall.EINVAL)}
	}
	parentMDS, errno := r.route(ctx, parent, proto.RoleMDS)
	if errno != 0 {
		return &proto.MkdirResponse{Errno: errno}
	}

	id, errno := r.generate(ctx, r.gen.Random)
	if errno != 0 {
		return &proto.MkdirResponse{Errno: errno}
	}
	local.gfid = id
	inodeMDS, errno := r.route(ctx, id, proto.RoleMDS)
	if errno != 0 {
		return &proto.MkdirResponse{Errno: errno}
	}

	iresp, err := inodeMDS.Mkinode(ctx, &proto.MkinodeRequest{
		Loc:   proto.NamelessLoc(id),
		Type:  proto.IATypeDir,
		Mode:  req.Mode,
		Umask: req.Umask,
		Xdata: req.Xdata,
	})
	if err != nil {
		return &proto.MkdirResponse{Errno: callErrno(ctx, inodeMDS, "mkinode", err)}
	}
	if iresp.Errno != 0 {
		return &proto.MkdirResponse{Errno: iresp.Errno}
	}

	nresp, err := parentMDS.Namelink(ctx, &proto.NamelinkRequest{
		Loc:   proto.Loc{Path: req.Loc.Path, Name: req.Loc.Name, ParentGFID: parent},
		GFID:  id,
		Type:  proto.IATypeDir,
		Xdata: req.Xdata,
	})
	if err == nil {
		errno = nresp.Errno
	} else {
		errno = callErrno(ctx, parentMDS, "namelink", err)
	}
	if errno != 0 {
		span.Warnf("mkdir %s/%s: namelink on %s failed with errno %d, orphan inode %s left on %s",
			parent, req.Loc.Name, parentMDS.Name(), errno, id, inodeMDS.Name())
		metrics.RouterOrphanInodes.Inc()
		return &proto.MkdirResponse{Errno: errno}
	}

	local.stashPostparent(nresp.Postparent)
	return &proto.MkdirResponse{
		Buf:        iresp.Buf,
		Preparent:  nresp.Preparent,
		Postparent: local.cachedPostparent(),
	}
}

// Mkinode and Namelink are forwarded to the owner of the inode and of the
// parent respectively.
func (r *Router) Mkinode(ctx context.Context, req *proto.MkinodeRequest) (*proto.MkinodeResponse, error) {
	local := newLocal("mkinode")
	defer local.release()

	resp := func() *proto.MkinodeResponse {
		sv, errno := r.route(ctx, req.Loc.InodeGFID(), proto.RoleMDS)
		if errno != 0 {
			return &proto.MkinodeResponse{Errno: errno}
		}
		resp, err := sv.Mkinode(ctx, req)
		if err != nil {
			return &proto.MkinodeResponse{Errno: callErrno(ctx, sv, "mkinode", err)}
		}
		return resp
	}()
	unwind("mkinode", resp.Errno)
	return resp, nil
}

func (r *Router) Namelink(ctx context.Context, req *proto.NamelinkRequest) (*proto.NamelinkResponse, error) {
	local := newLocal("namelink")
	defer local.release()

	resp := func() *proto.NamelinkResponse {
		parent, ok := req.Loc.ParentID()
		if !ok {
			return &proto.NamelinkResponse{Errno: int32(syscall.EINVAL)}
		}
		sv, errno := r.route(ctx, parent, proto.RoleMDS)
		if errno != 0 {
			return &proto.NamelinkResponse{Errno: errno}
		}
		resp, err := sv.Namelink(ctx, req)
		if err != nil {
			return &proto.NamelinkResponse{Errno: callErrno(ctx, sv, "namelink", err)}
		}
		return resp
	}()
	unwind("namelink", resp.Errno)
	return resp, nil
}

func (r *Router) generate(ctx context.Context, gen func() (proto.GFID, error)) (proto.GFID, int32) {
	id, err := gen()
	if err == nil {
		return id, 0
	}
	trace.SpanFromContextSafe(ctx).Errorf("generate gfid failed: %s", err)
	if errors.Is(err, apierrors.ErrGenerateGFID) {
		return id, int32(syscall.EIO)
	}
	return id, int32(syscall.EINVAL)
}
