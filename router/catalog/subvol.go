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

package catalog

import (
	"context"
	"syscall"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/cubefs/metadht/metrics"
	"github.com/cubefs/metadht/proto"
	"github.com/cubefs/metadht/util/limiter"
)

// Subvol is one child of the catalog. It forwards fops to the underlying
// subvolume under its limiter and records the latency of every call.
type Subvol struct {
	name    string
	sv      proto.Subvolume
	limiter limiter.Limiter
}

func newSubvol(name string, sv proto.Subvolume, l limiter.Limiter) *Subvol {
	return &Subvol{name: name, sv: sv, limiter: l}
}

func (s *Subvol) Name() string {
	return s.name
}

func (s *Subvol) LimitStatus() limiter.Status {
	return s.limiter.Status()
}

// SetConcurrency changes the fops allowed in flight, zero is unlimited.
func (s *Subvol) SetConcurrency(n uint32) {
	s.limiter.SetConcurrency(n)
}

func (s *Subvol) Lookup(ctx context.Context, req *proto.LookupRequest) (resp *proto.LookupResponse, err error) {
	err = s.doSubvolOperation(ctx, "lookup", func() (e error) {
		resp, e = s.sv.Lookup(ctx, req)
		return
	})
	return
}

func (s *Subvol) Create(ctx context.Context, req *proto.CreateRequest) (resp *proto.CreateResponse, err error) {
	err = s.doSubvolOperation(ctx, "create", func() (e error) {
		resp, e = s.sv.Create(ctx, req)
		return
	})
	return
}

func (s *Subvol) Mkdir(ctx context.Context, req *proto.MkdirRequest) (resp *proto.MkdirResponse, err error) {
	err = s.doSubvolOperation(ctx, "mkdir", func() (e error) {
		resp, e = s.sv.Mkdir(ctx, req)
		return
	})
	return
}

func (s *Subvol) Mkinode(ctx context.Context, req *proto.MkinodeRequest) (resp *proto.MkinodeResponse, err error) {
	err = s.doSubvolOperation(ctx, "mkinode", func() (e error) {
		resp, e = s.sv.Mkinode(ctx, req)
		return
	})
	return
}

func (s *Subvol) Namelink(ctx context.Context, req *proto.NamelinkRequest) (resp *proto.NamelinkResponse, err error) {
	err = s.doSubvolOperation(ctx, "namelink", func() (e error) {
		resp, e = s.sv.Namelink(ctx, req)
		return
	})
	return
}

func (s *Subvol) Stat(ctx context.Context, req *proto.StatRequest) (resp *proto.StatResponse, err error) {
	err = s.doSubvolOperation(ctx, "stat", func() (e error) {
		resp, e = s.sv.Stat(ctx, req)
		return
	})
	return
}

func (s *Subvol) Setattr(ctx context.Context, req *proto.SetattrRequest) (resp *proto.SetattrResponse, err error) {
	err = s.doSubvolOperation(ctx, "setattr", func() (e error) {
		resp, e = s.sv.Setattr(ctx, req)
		return
	})
	return
}

func (s *Subvol) Open(ctx context.Context, req *proto.OpenRequest) (resp *proto.OpenResponse, err error) {
	err = s.doSubvolOperation(ctx, "open", func() (e error) {
		resp, e = s.sv.Open(ctx, req)
		return
	})
	return
}

func (s *Subvol) Flush(ctx context.Context, req *proto.FlushRequest) (resp *proto.FlushResponse, err error) {
	err = s.doSubvolOperation(ctx, "flush", func() (e error) {
		resp, e = s.sv.Flush(ctx, req)
		return
	})
	return
}

func (s *Subvol) Write(ctx context.Context, req *proto.WriteRequest) (resp *proto.WriteResponse, err error) {
	err = s.doSubvolOperation(ctx, "write", func() (e error) {
		if e = s.limiter.WaitWrite(ctx, len(req.Data)); e != nil {
			return
		}
		resp, e = s.sv.Write(ctx, req)
		return
	})
	return
}

func (s *Subvol) Read(ctx context.Context, req *proto.ReadRequest) (resp *proto.ReadResponse, err error) {
	err = s.doSubvolOperation(ctx, "read", func() (e error) {
		if e = s.limiter.WaitRead(ctx, int(req.Size)); e != nil {
			return
		}
		resp, e = s.sv.Read(ctx, req)
		return
	})
	return
}

func (s *Subvol) Statfs(ctx context.Context, req *proto.StatfsRequest) (resp *proto.StatfsResponse, err error) {
	err = s.doSubvolOperation(ctx, "statfs", func() (e error) {
		resp, e = s.sv.Statfs(ctx, req)
		return
	})
	return
}

// doSubvolOperation runs f under the concurrency limit. An exceeded limit
// fails fast with EBUSY.
func (s *Subvol) doSubvolOperation(ctx context.Context, fop string, f func() error) error {
	span := trace.SpanFromContextSafe(ctx)
	if err := s.limiter.Acquire(); err != nil {
		span.Warnf("subvol[%s] %s rejected: %s", s.name, fop, err)
		return syscall.EBUSY
	}
	defer s.limiter.Release()

	start := time.Now()
	err := f()
	metrics.SubvolOpDuration.WithLabelValues(s.name, fop).Observe(time.Since(start).Seconds())
	if err != nil {
		span.Errorf("subvol[%s] %s failed: %s", s.name, fop, err)
	}
	return err
}
