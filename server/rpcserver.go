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

package server

import (
	"context"
	"net"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/cubefs/metadht/metrics"
	"github.com/cubefs/metadht/proto"
)

// RPCServer serves the fops of every hosted subvolume on one grpc server.
// The subvolume is chosen by the "subvol" metadata of each call.
type RPCServer struct {
	*Server
	grpcServer *grpc.Server
}

func NewRPCServer(server *Server) *RPCServer {
	rs := &RPCServer{Server: server}

	s := grpc.NewServer(grpc.ChainUnaryInterceptor(
		rs.unaryInterceptorWithTracer,
		metrics.GRPCMetrics.UnaryServerInterceptor(),
	))
	proto.RegisterSubvolumeServer(s, rs)
	metrics.GRPCMetrics.InitializeMetrics(s)
	rs.grpcServer = s
	return rs
}

func (r *RPCServer) Serve(addr string) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("listen on %s failed: %s", addr, err)
	}
	r.ServeListener(lis)
	log.Info("grpc server is running at:", addr)
}

func (r *RPCServer) ServeListener(lis net.Listener) {
	go func() {
		if err := r.grpcServer.Serve(lis); err != nil && err != grpc.ErrServerStopped {
			log.Fatal("grpc server exits:", err)
		}
	}()
}

func (r *RPCServer) Stop() {
	r.grpcServer.GracefulStop()
}

func (r *RPCServer) subvolume(ctx context.Context) (proto.Subvolume, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	names := md.Get(proto.SubvolKey)
	if len(names) == 0 {
		return nil, status.Error(codes.InvalidArgument, "no subvolume in metadata")
	}
	sv, ok := r.Server.Subvolume(names[0])
	if !ok {
		return nil, status.Errorf(codes.NotFound, "subvolume %s not hosted", names[0])
	}
	return sv, nil
}

func (r *RPCServer) Lookup(ctx context.Context, req *proto.LookupRequest) (*proto.LookupResponse, error) {
	sv, err := r.subvolume(ctx)
	if err != nil {
		return nil, err
	}
	return sv.Lookup(ctx, req)
}

func (r *RPCServer) Create(ctx context.Context, req *proto.CreateRequest) (*proto.CreateResponse, error) {
	sv, err := r.subvolume(ctx)
	if err != nil {
		return nil, err
	}
	return sv.Create(ctx, req)
}

func (r *RPCServer) Mkdir(ctx context.Context, req *proto.MkdirRequest) (*proto.MkdirResponse, error) {
	sv, err := r.subvolume(ctx)
	if err != nil {
		return nil, err
	}
	return sv.Mkdir(ctx, req)
}

func (r *RPCServer) Mkinode(ctx context.Context, req *proto.MkinodeRequest) (*proto.MkinodeResponse, error) {
	sv, err := r.subvolume(ctx)
	if err != nil {
		return nil, err
	}
	return sv.Mkinode(ctx, req)
}

func (r *RPCServer) Namelink(ctx context.Context, req *proto.NamelinkRequest) (*proto.NamelinkResponse, error) {
	sv, err := r.subvolume(ctx)
	if err != nil {
		return nil, err
	}
	return sv.Namelink(ctx, req)
}

func (r *RPCServer) Stat(ctx context.Context, req *proto.StatRequest) (*proto.StatResponse, error) {
	sv, err := r.subvolume(ctx)
	if err != nil {
		return nil, err
	}
	return sv.Stat(ctx, req)
}

func (r *RPCServer) Setattr(ctx context.Context, req *proto.SetattrRequest) (*proto.SetattrResponse, error) {
	sv, err := r.subvolume(ctx)
	if err != nil {
		return nil, err
	}
	return sv.Setattr(ctx, req)
}

func (r *RPCServer) Open(ctx context.Context, req *proto.OpenRequest) (*proto.OpenResponse, error) {
	sv, err := r.subvolume(ctx)
	if err != nil {
		return nil, err
	}
	return sv.Open(ctx, req)
}

func (r *RPCServer) Flush(ctx context.Context, req *proto.FlushRequest) (*proto.FlushResponse, error) {
	sv, err := r.subvolume(ctx)
	if err != nil {
		return nil, err
	}
	return sv.Flush(ctx, req)
}

func (r *RPCServer) Write(ctx context.Context, req *proto.WriteRequest) (*proto.WriteResponse, error) {
	sv, err := r.subvolume(ctx)
	if err != nil {
		return nil, err
	}
	return sv.Write(ctx, req)
}

func (r *RPCServer) Read(ctx context.Context, req *proto.ReadRequest) (*proto.ReadResponse, error) {
	sv, err := r.subvolume(ctx)
	if err != nil {
		return nil, err
	}
	return sv.Read(ctx, req)
}

func (r *RPCServer) Statfs(ctx context.Context, req *proto.StatfsRequest) (*proto.StatfsResponse, error) {
	sv, err := r.subvolume(ctx)
	if err != nil {
		return nil, err
	}
	return sv.Statfs(ctx, req)
}

// util function

func (r *RPCServer) unaryInterceptorWithTracer(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
	md, _ := metadata.FromIncomingContext(ctx)
	if reqID := md.Get(proto.ReqIdKey); len(reqID) > 0 {
		_, ctx = trace.StartSpanFromContextWithTraceID(ctx, info.FullMethod, reqID[0])
	} else {
		_, ctx = trace.StartSpanFromContext(ctx, info.FullMethod)
	}

	return handler(ctx, req)
}
