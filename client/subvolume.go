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

package client

import (
	"context"

	"github.com/cubefs/metadht/proto"
)

// remoteSubvol forwards every fop to a subvolume hosted by another process.
// A returned error is a transport failure, filesystem errors stay in band.
type remoteSubvol struct {
	name    string
	clients *SubvolumeClients
}

func (r *remoteSubvol) stub(ctx context.Context) (proto.Subvolume, context.Context, context.CancelFunc, error) {
	conn, err := r.clients.getConn(ctx, r.name)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := callContext(ctx, r.name, &r.clients.tc)
	return proto.NewSubvolumeClient(conn), ctx, cancel, nil
}

func (r *remoteSubvol) Lookup(ctx context.Context, req *proto.LookupRequest) (*proto.LookupResponse, error) {
	sv, ctx, cancel, err := r.stub(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return sv.Lookup(ctx, req)
}

func (r *remoteSubvol) Create(ctx context.Context, req *proto.CreateRequest) (*proto.CreateResponse, error) {
	sv, ctx, cancel, err := r.stub(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return sv.Create(ctx, req)
}

func (r *remoteSubvol) Mkdir(ctx context.Context, req *proto.MkdirRequest) (*proto.MkdirResponse, error) {
	sv, ctx, cancel, err := r.stub(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return sv.Mkdir(ctx, req)
}

func (r *remoteSubvol) Mkinode(ctx context.Context, req *proto.MkinodeRequest) (*proto.MkinodeResponse, error) {
	sv, ctx, cancel, err := r.stub(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return sv.Mkinode(ctx, req)
}

func (r *remoteSubvol) Namelink(ctx context.Context, req *proto.NamelinkRequest) (*proto.NamelinkResponse, error) {
	sv, ctx, cancel, err := r.stub(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return sv.Namelink(ctx, req)
}

func (r *remoteSubvol) Stat(ctx context.Context, req *proto.StatRequest) (*proto.StatResponse, error) {
	sv, ctx, cancel, err := r.stub(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return sv.Stat(ctx, req)
}

func (r *remoteSubvol) Setattr(ctx context.Context, req *proto.SetattrRequest) (*proto.SetattrResponse, error) {
	sv, ctx, cancel, err := r.stub(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return sv.Setattr(ctx, req)
}

func (r *remoteSubvol) Open(ctx context.Context, req *proto.OpenRequest) (*proto.OpenResponse, error) {
	sv, ctx, cancel, err := r.stub(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return sv.Open(ctx, req)
}

func (r *remoteSubvol) Flush(ctx context.Context, req *proto.FlushRequest) (*proto.FlushResponse, error) {
	sv, ctx, cancel, err := r.stub(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return sv.Flush(ctx, req)
}

func (r *remoteSubvol) Write(ctx context.Context, req *proto.WriteRequest) (*proto.WriteResponse, error) {
	sv, ctx, cancel, err := r.stub(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return sv.Write(ctx, req)
}

func (r *remoteSubvol) Read(ctx context.Context, req *proto.ReadRequest) (*proto.ReadResponse, error) {
	sv, ctx, cancel, err := r.stub(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return sv.Read(ctx, req)
}

func (r *remoteSubvol) Statfs(ctx context.Context, req *proto.StatfsRequest) (*proto.StatfsResponse, error) {
	sv, ctx, cancel, err := r.stub(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return sv.Statfs(ctx, req)
}
