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
	"strconv"
	"syscall"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/cubefs/metadht/gfid"
	"github.com/cubefs/metadht/metrics"
	"github.com/cubefs/metadht/proto"
	"github.com/cubefs/metadht/router/catalog"
)

type Config struct {
	Name          string         `json:"name" validate:"required"`
	XattrBaseName string         `json:"xattr_base_name"`
	Catalog       catalog.Config `json:"catalog"`
	// Subvolumes lists the children in layout order, mds members first
	Subvolumes []string `json:"subvolumes" validate:"required,dive,required"`
}

// Router distributes fops over the mds and ds children of its catalog.
// It implements proto.Subvolume itself.
type Router struct {
	name      string
	reasonKey string
	inUseKey  string
	catalog   *catalog.Catalog
	gen       *gfid.Generator
}

// New builds the layout over children, which must hold every name of
// cfg.Subvolumes.
func New(cfg *Config, children map[string]proto.Subvolume) (*Router, error) {
	c, err := catalog.New(&cfg.Catalog, cfg.Subvolumes, children)
	if err != nil {
		return nil, err
	}
	return &Router{
		name:      cfg.Name,
		reasonKey: proto.EremoteReasonKey(cfg.XattrBaseName),
		inUseKey:  proto.GFIDInUseKey(cfg.XattrBaseName),
		catalog:   c,
		gen:       gfid.NewGenerator(c.Table(proto.RoleMDS)),
	}, nil
}

func (r *Router) Name() string {
	return r.name
}

func (r *Router) Catalog() *catalog.Catalog {
	return r.catalog
}

// route resolves the subvolume owning id, a failure is a layout bug and
// is reported as EINVAL.
func (r *Router) route(ctx context.Context, id proto.GFID, role proto.Role) (*catalog.Subvol, int32) {
	sv, err := r.catalog.Route(id, role)
	if err != nil {
		trace.SpanFromContextSafe(ctx).Errorf("route gfid %s on %s failed: %s", id, role, err)
		return nil, int32(syscall.EINVAL)
	}
	return sv, 0
}

// callErrno maps the error of a call to sv into an errno. Errnos raised
// locally pass through, anything else is a broken transport.
func callErrno(ctx context.Context, sv *catalog.Subvol, fop string, err error) int32 {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int32(errno)
	}
	trace.SpanFromContextSafe(ctx).Errorf("%s to %s failed: %s", fop, sv.Name(), err)
	return int32(syscall.ENOTCONN)
}

func unwind(fop string, errno int32) {
	metrics.RouterFopTotal.WithLabelValues(fop, strconv.Itoa(int(errno))).Inc()
}
