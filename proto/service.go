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

package proto

import (
	"context"

	"google.golang.org/grpc"
)

const subvolumeServiceName = "metadht.Subvolume"

// Subvolume is the fop surface shared by the router, the backends and the
// remote client stub.
type Subvolume interface {
	Lookup(ctx context.Context, req *LookupRequest) (*LookupResponse, error)
	Create(ctx context.Context, req *CreateRequest) (*CreateResponse, error)
	Mkdir(ctx context.Context, req *MkdirRequest) (*MkdirResponse, error)
	Mkinode(ctx context.Context, req *MkinodeRequest) (*MkinodeResponse, error)
	Namelink(ctx context.Context, req *NamelinkRequest) (*NamelinkResponse, error)
	Stat(ctx context.Context, req *StatRequest) (*StatResponse, error)
	Setattr(ctx context.Context, req *SetattrRequest) (*SetattrResponse, error)
	Open(ctx context.Context, req *OpenRequest) (*OpenResponse, error)
	Flush(ctx context.Context, req *FlushRequest) (*FlushResponse, error)
	Write(ctx context.Context, req *WriteRequest) (*WriteResponse, error)
	Read(ctx context.Context, req *ReadRequest) (*ReadResponse, error)
	Statfs(ctx context.Context, req *StatfsRequest) (*StatfsResponse, error)
}

type subvolumeClient struct {
	cc grpc.ClientConnInterface
}

// NewSubvolumeClient returns a Subvolume that invokes the remote service
// over cc with the json codec.
func NewSubvolumeClient(cc grpc.ClientConnInterface) Subvolume {
	return &subvolumeClient{cc: cc}
}

func (c *subvolumeClient) invoke(ctx context.Context, method string, in, out interface{}) error {
	return c.cc.Invoke(ctx, "/"+subvolumeServiceName+"/"+method, in, out, grpc.CallContentSubtype(CodecName))
}

func (c *subvolumeClient) Lookup(ctx context.Context, in *LookupRequest) (*LookupResponse, error) {
	out := new(LookupResponse)
	if err := c.invoke(ctx, "Lookup", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *subvolumeClient) Create(ctx context.Context, in *CreateRequest) (*CreateResponse, error) {
	out := new(CreateResponse)
	if err := c.invoke(ctx, "Create", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *subvolumeClient) Mkdir(ctx context.Context, in *MkdirRequest) (*MkdirResponse, error) {
	out := new(MkdirResponse)
	if err := c.invoke(ctx, "Mkdir", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *subvolumeClient) Mkinode(ctx context.Context, in *MkinodeRequest) (*MkinodeResponse, error) {
	out := new(MkinodeResponse)
	if err := c.invoke(ctx, "Mkinode", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *subvolumeClient) Namelink(ctx context.Context, in *NamelinkRequest) (*NamelinkResponse, error) {
	out := new(NamelinkResponse)
	if err := c.invoke(ctx, "Namelink", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *subvolumeClient) Stat(ctx context.Context, in *StatRequest) (*StatResponse, error) {
	out := new(StatResponse)
	if err := c.invoke(ctx, "Stat", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *subvolumeClient) Setattr(ctx context.Context, in *SetattrRequest) (*SetattrResponse, error) {
	out := new(SetattrResponse)
	if err := c.invoke(ctx, "Setattr", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *subvolumeClient) Open(ctx context.Context, in *OpenRequest) (*OpenResponse, error) {
	out := new(OpenResponse)
	if err := c.invoke(ctx, "Open", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *subvolumeClient) Flush(ctx context.Context, in *FlushRequest) (*FlushResponse, error) {
	out := new(FlushResponse)
	if err := c.invoke(ctx, "Flush", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *subvolumeClient) Write(ctx context.Context, in *WriteRequest) (*WriteResponse, error) {
	out := new(WriteResponse)
	if err := c.invoke(ctx, "Write", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *subvolumeClient) Read(ctx context.Context, in *ReadRequest) (*ReadResponse, error) {
	out := new(ReadResponse)
	if err := c.invoke(ctx, "Read", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *subvolumeClient) Statfs(ctx context.Context, in *StatfsRequest) (*StatfsResponse, error) {
	out := new(StatfsResponse)
	if err := c.invoke(ctx, "Statfs", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterSubvolumeServer registers srv as the Subvolume service of s.
func RegisterSubvolumeServer(s grpc.ServiceRegistrar, srv Subvolume) {
	s.RegisterService(&subvolumeServiceDesc, srv)
}

type handlerFunc func(srv Subvolume, ctx context.Context, req interface{}) (interface{}, error)

// unaryHandler builds the grpc method handler that decodes into a fresh
// request from newReq and dispatches through the optional interceptor.
func unaryHandler(method string, newReq func() interface{}, call handlerFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(Subvolume), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + subvolumeServiceName + "/" + method,
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(Subvolume), ctx, req)
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var subvolumeServiceDesc = grpc.ServiceDesc{
	ServiceName: subvolumeServiceName,
	HandlerType: (*Subvolume)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("Lookup", func() interface{} { return new(LookupRequest) },
			func(srv Subvolume, ctx context.Context, req interface{}) (interface{}, error) {
				return srv.Lookup(ctx, req.(*LookupRequest))
			}),
		unaryHandler("Create", func() interface{} { return new(CreateRequest) },
			func(srv Subvolume, ctx context.Context, req interface{}) (interface{}, error) {
				return srv.Create(ctx, req.(*CreateRequest))
			}),
		unaryHandler("Mkdir", func() interface{} { return new(MkdirRequest) },
			func(srv Subvolume, ctx context.Context, req interface{}) (interface{}, error) {
				return srv.Mkdir(ctx, req.(*MkdirRequest))
			}),
		unaryHandler("Mkinode", func() interface{} { return new(MkinodeRequest) },
			func(srv Subvolume, ctx context.Context, req interface{}) (interface{}, error) {
				return srv.Mkinode(ctx, req.(*MkinodeRequest))
			}),
		unaryHandler("Namelink", func() interface{} { return new(NamelinkRequest) },
			func(srv Subvolume, ctx context.Context, req interface{}) (interface{}, error) {
				return srv.Namelink(ctx, req.(*NamelinkRequest))
			}),
		unaryHandler("Stat", func() interface{} { return new(StatRequest) },
			func(srv Subvolume, ctx context.Context, req interface{}) (interface{}, error) {
				return srv.Stat(ctx, req.(*StatRequest))
			}),
		unaryHandler("Setattr", func() interface{} { return new(SetattrRequest) },
			func(srv Subvolume, ctx context.Context, req interface{}) (interface{}, error) {
				return srv.Setattr(ctx, req.(*SetattrRequest))
			}),
		unaryHandler("Open", func() interface{} { return new(OpenRequest) },
			func(srv Subvolume, ctx context.Context, req interface{}) (interface{}, error) {
				return srv.Open(ctx, req.(*OpenRequest))
			}),
		unaryHandler("Flush", func() interface{} { return new(FlushRequest) },
			func(srv Subvolume, ctx context.Context, req interface{}) (interface{}, error) {
				return srv.Flush(ctx, req.(*FlushRequest))
			}),
		unaryHandler("Write", func() interface{} { return new(WriteRequest) },
			func(srv Subvolume, ctx context.Context, req interface{}) (interface{}, error) {
				return srv.Write(ctx, req.(*WriteRequest))
			}),
		unaryHandler("Read", func() interface{} { return new(ReadRequest) },
			func(srv Subvolume, ctx context.Context, req interface{}) (interface{}, error) {
				return srv.Read(ctx, req.(*ReadRequest))
			}),
		unaryHandler("Statfs", func() interface{} { return new(StatfsRequest) },
			func(srv Subvolume, ctx context.Context, req interface{}) (interface{}, error) {
				return srv.Statfs(ctx, req.(*StatfsRequest))
			}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "metadht/subvolume",
}
