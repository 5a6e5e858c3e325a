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
	"syscall"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/errors"
	"golang.org/x/sync/errgroup"

	"github.com/cubefs/metadht/proto"
	"github.com/cubefs/metadht/router/catalog"
)

// routeInode routes a fop addressing an existing object by its own gfid.
func (r *Router) routeInode(ctx context.Context, fop string, id proto.GFID, role proto.Role) (*catalog.Subvol, int32) {
	if id.IsNull() {
		trace.SpanFromContextSafe(ctx).Warnf("%s: no gfid to route on", fop)
		return nil, int32(syscall.EINVAL)
	}
	return r.route(ctx, id, role)
}

func (r *Router) Stat(ctx context.Context, req *proto.StatRequest) (*proto.StatResponse, error) {
	local := newLocal("stat")
	defer local.release()

	local.gfid = req.Loc.InodeGFID()
	resp := func() *proto.StatResponse {
		sv, errno := r.routeInode(ctx, "stat", local.gfid, proto.RoleMDS)
		if errno != 0 {
			return &proto.StatResponse{Errno: errno}
		}
		resp, err := sv.Stat(ctx, req)
		if err != nil {
			return &proto.StatResponse{Errno: callErrno(ctx, sv, "stat", err)}
		}
		return resp
	}()
	unwind("stat", resp.Errno)
	return resp, nil
}

func (r *Router) Setattr(ctx context.Context, req *proto.SetattrRequest) (*proto.SetattrResponse, error) {
	local := newLocal("setattr")
	defer local.release()

	local.gfid = req.Loc.InodeGFID()
	resp := func() *proto.SetattrResponse {
		sv, errno := r.routeInode(ctx, "setattr", local.gfid, proto.RoleMDS)
		if errno != 0 {
			return &proto.SetattrResponse{Errno: errno}
		}
		resp, err := sv.Setattr(ctx, req)
		if err != nil {
			return &proto.SetattrResponse{Errno: callErrno(ctx, sv, "setattr", err)}
		}
		return resp
	}()
	unwind("setattr", resp.Errno)
	return resp, nil
}

func (r *Router) Open(ctx context.Context, req *proto.OpenRequest) (*proto.OpenResponse, error) {
	local := newLocal("open")
	defer local.release()

	local.gfid = req.Loc.InodeGFID()
	resp := func() *proto.OpenResponse {
		sv, errno := r.routeInode(ctx, "open", local.gfid, proto.RoleMDS)
		if errno != 0 {
			return &proto.OpenResponse{Errno: errno}
		}
		resp, err := sv.Open(ctx, req)
		if err != nil {
			return &proto.OpenResponse{Errno: callErrno(ctx, sv, "open", err)}
		}
		return resp
	}()
	unwind("open", resp.Errno)
	return resp, nil
}

func (r *Router) Flush(ctx context.Context, req *proto.FlushRequest) (*proto.FlushResponse, error) {
	local := newLocal("flush")
	defer local.release()

	local.gfid = req.Fd.GFID
	resp := func() *proto.FlushResponse {
		sv, errno := r.routeInode(ctx, "flush", local.gfid, proto.RoleMDS)
		if errno != 0 {
			return &proto.FlushResponse{Errno: errno}
		}
		resp, err := sv.Flush(ctx, req)
		if err != nil {
			return &proto.FlushResponse{Errno: callErrno(ctx, sv, "flush", err)}
		}
		return resp
	}()
	unwind("flush", resp.Errno)
	return resp, nil
}

// Write and Read go to the data subvolume of the gfid.
func (r *Router) Write(ctx context.Context, req *proto.WriteRequest) (*proto.WriteResponse, error) {
	local := newLocal("write")
	defer local.release()

	local.gfid = req.Fd.GFID
	resp := func() *proto.WriteResponse {
		sv, errno := r.routeInode(ctx, "write", local.gfid, proto.RoleDS)
		if errno != 0 {
			return &proto.WriteResponse{Errno: errno}
		}
		local.dataSubvol = sv
		resp, err := sv.Write(ctx, req)
		if err != nil {
			return &proto.WriteResponse{Errno: callErrno(ctx, sv, "write", err)}
		}
		return resp
	}()
	unwind("write", resp.Errno)
	return resp, nil
}

func (r *Router) Read(ctx context.Context, req *proto.ReadRequest) (*proto.ReadResponse, error) {
	local := newLocal("read")
	defer local.release()

	local.gfid = req.Fd.GFID
	resp := func() *proto.ReadResponse {
		sv, errno := r.routeInode(ctx, "read", local.gfid, proto.RoleDS)
		if errno != 0 {
			return &proto.ReadResponse{Errno: errno}
		}
		local.dataSubvol = sv
		resp, err := sv.Read(ctx, req)
		if err != nil {
			return &proto.ReadResponse{Errno: callErrno(ctx, sv, "read", err)}
		}
		return resp
	}()
	unwind("read", resp.Errno)
	return resp, nil
}

// Statfs sums the answers of every subvolume. It fails only when no
// subvolume answered.
func (r *Router) Statfs(ctx context.Context, req *proto.StatfsRequest) (*proto.StatfsResponse, error) {
	span := trace.SpanFromContextSafe(ctx)
	local := newLocal("statfs")
	defer local.release()

	subvols := r.catalog.All()
	resps := make([]*proto.StatfsResponse, len(subvols))
	g := errgroup.Group{}
	for i := range subvols {
		i := i
		g.Go(func() error {
			sv := subvols[i]
			resp, err := sv.Statfs(ctx, req)
			if err == nil && resp == nil {
				err = syscall.EIO
			}
			if err != nil {
				resps[i] = &proto.StatfsResponse{Errno: callErrno(ctx, sv, "statfs", err)}
				return errors.Info(err, "statfs", sv.Name())
			}
			resps[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.Warnf("statfs not answered by every subvolume: %s", err)
	}

	var (
		merged   proto.Statfs
		answered bool
		errno    int32
	)
	for i, resp := range resps {
		if resp.Errno != 0 || resp.Statfs == nil {
			span.Warnf("statfs of %s failed with errno %d", subvols[i].Name(), resp.Errno)
			if errno == 0 {
				errno = resp.Errno
			}
			continue
		}
		proto.MergeStatfs(&merged, resp.Statfs)
		answered = true
	}

	resp := &proto.StatfsResponse{Statfs: &merged}
	if !answered {
		if errno == 0 {
			errno = int32(syscall.ENOTCONN)
		}
		resp = &proto.StatfsResponse{Errno: errno}
	}
	unwind("statfs", resp.Errno)
	return resp, nil
}
