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
	"sort"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/errors"
	"google.golang.org/grpc"

	"github.com/cubefs/metadht/client"
	"github.com/cubefs/metadht/ds"
	apierrors "github.com/cubefs/metadht/errors"
	"github.com/cubefs/metadht/layout"
	"github.com/cubefs/metadht/mds"
	"github.com/cubefs/metadht/proto"
	"github.com/cubefs/metadht/router"
	"github.com/cubefs/metadht/router/catalog"
	"github.com/cubefs/metadht/util/limiter"
)

const (
	roleMDS    = "mds"
	roleDS     = "ds"
	roleRouter = "router"
)

type Config struct {
	// Addr is the grpc address this process advertises
	Addr   string         `json:"addr"`
	MDS    []mds.Config   `json:"mds" validate:"dive"`
	DS     []ds.Config    `json:"ds" validate:"dive"`
	Router *router.Config `json:"router" validate:"omitempty"`
	// Client reaches the router children not hosted by this process
	Client client.Config `json:"client"`
}

type hostedSubvol struct {
	role string
	proto.Subvolume
}

// Server hosts the configured subvolumes of one process. The router, when
// configured, is hosted under its own name like any backend.
type Server struct {
	addr    string
	hosted  map[string]*hostedSubvol
	mdss    []*mds.MDS
	dss     []*ds.DS
	router  *router.Router
	clients *client.SubvolumeClients
}

// NewServer opens the hosted subvolumes of cfg. dialOpts apply to the
// connections of remote router children.
func NewServer(ctx context.Context, cfg *Config, dialOpts ...grpc.DialOption) (_ *Server, err error) {
	span := trace.SpanFromContextSafe(ctx)
	s := &Server{addr: cfg.Addr, hosted: make(map[string]*hostedSubvol)}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	for i := range cfg.MDS {
		m, err := mds.New(ctx, &cfg.MDS[i])
		if err != nil {
			return nil, errors.Info(err, "open mds", cfg.MDS[i].Name)
		}
		s.mdss = append(s.mdss, m)
		if err = s.host(m.Name(), roleMDS, m); err != nil {
			return nil, err
		}
		span.Infof("mds %s opened", m.Name())
	}
	for i := range cfg.DS {
		d, err := ds.New(ctx, &cfg.DS[i])
		if err != nil {
			return nil, errors.Info(err, "open ds", cfg.DS[i].Name)
		}
		s.dss = append(s.dss, d)
		if err = s.host(d.Name(), roleDS, d); err != nil {
			return nil, err
		}
		span.Infof("ds %s opened", d.Name())
	}

	if cfg.Router == nil {
		return s, nil
	}
	s.clients = client.NewSubvolumeClients(&cfg.Client, dialOpts...)
	children := make(map[string]proto.Subvolume, len(cfg.Router.Subvolumes))
	for _, name := range cfg.Router.Subvolumes {
		if sv, ok := s.hosted[name]; ok {
			children[name] = sv.Subvolume
			continue
		}
		remote, err := s.clients.Subvolume(name)
		if err != nil {
			return nil, errors.Info(err, "router child", name)
		}
		children[name] = remote
	}
	r, err := router.New(cfg.Router, children)
	if err != nil {
		return nil, errors.Info(err, "new router", cfg.Router.Name)
	}
	s.router = r
	if err = s.host(r.Name(), roleRouter, r); err != nil {
		return nil, err
	}
	span.Infof("router %s started over %v", r.Name(), cfg.Router.Subvolumes)
	return s, nil
}

func (s *Server) host(name, role string, sv proto.Subvolume) error {
	if _, ok := s.hosted[name]; ok {
		return errors.Info(apierrors.ErrDuplicateSubvol, name)
	}
	s.hosted[name] = &hostedSubvol{role: role, Subvolume: sv}
	return nil
}

// Subvolume returns the hosted subvolume called name.
func (s *Server) Subvolume(name string) (proto.Subvolume, bool) {
	sv, ok := s.hosted[name]
	if !ok {
		return nil, false
	}
	return sv.Subvolume, true
}

func (s *Server) Router() *router.Router {
	return s.router
}

type SubvolStat struct {
	Name   string        `json:"name"`
	Role   string        `json:"role"`
	Errno  int32         `json:"errno,omitempty"`
	Statfs *proto.Statfs `json:"statfs,omitempty"`
}

// Stats returns the statfs of every hosted subvolume sorted by name.
func (s *Server) Stats(ctx context.Context) []SubvolStat {
	names := make([]string, 0, len(s.hosted))
	for name := range s.hosted {
		names = append(names, name)
	}
	sort.Strings(names)

	ret := make([]SubvolStat, 0, len(names))
	for _, name := range names {
		sv := s.hosted[name]
		stat := SubvolStat{Name: name, Role: sv.role}
		resp, err := sv.Statfs(ctx, &proto.StatfsRequest{})
		if err != nil {
			stat.Errno = apierrors.Errno(err)
		} else {
			stat.Errno, stat.Statfs = resp.Errno, resp.Statfs
		}
		ret = append(ret, stat)
	}
	return ret
}

// Status is the admin view of the process.
type Status struct {
	Addr    string       `json:"addr,omitempty"`
	Subvols []SubvolStat `json:"subvols"`
	Router  *RouterStat  `json:"router,omitempty"`
}

type RouterStat struct {
	Name string `json:"name"`
	// Remotes lists the configured subvolumes reached over grpc
	Remotes []string    `json:"remotes,omitempty"`
	MDS     []ChildStat `json:"mds"`
	DS      []ChildStat `json:"ds"`
}

// ChildStat describes one router child.
type ChildStat struct {
	Name   string         `json:"name"`
	Role   string         `json:"role"`
	Hosted bool           `json:"hosted"`
	Limit  limiter.Status `json:"limit"`
	Errno  int32          `json:"errno,omitempty"`
	Statfs *proto.Statfs  `json:"statfs,omitempty"`
}

func (s *Server) Status(ctx context.Context) *Status {
	return &Status{
		Addr:    s.addr,
		Subvols: s.Stats(ctx),
		Router:  s.RouterStat(),
	}
}

// RouterStat lists the router children per role in layout order, nil
// without a router.
func (s *Server) RouterStat() *RouterStat {
	if s.router == nil {
		return nil
	}
	c := s.router.Catalog()
	st := &RouterStat{Name: s.router.Name()}
	if s.clients != nil {
		st.Remotes = s.clients.Names()
		sort.Strings(st.Remotes)
	}
	for _, sv := range c.Subvols(proto.RoleMDS) {
		st.MDS = append(st.MDS, s.childStat(sv, roleMDS))
	}
	for _, sv := range c.Subvols(proto.RoleDS) {
		st.DS = append(st.DS, s.childStat(sv, roleDS))
	}
	return st
}

// Child returns the router child name along with its statfs.
func (s *Server) Child(ctx context.Context, name string) (*ChildStat, error) {
	sv, role, err := s.lookupChild(name)
	if err != nil {
		return nil, err
	}
	st := s.childStat(sv, role)
	resp, err := sv.Statfs(ctx, &proto.StatfsRequest{})
	if err != nil {
		st.Errno = apierrors.Errno(err)
	} else {
		st.Errno, st.Statfs = resp.Errno, resp.Statfs
	}
	return &st, nil
}

// SetChildConcurrency changes the fops the router keeps in flight on child
// name, zero is unlimited.
func (s *Server) SetChildConcurrency(ctx context.Context, name string, n uint32) error {
	sv, _, err := s.lookupChild(name)
	if err != nil {
		return err
	}
	sv.SetConcurrency(n)
	span := trace.SpanFromContextSafe(ctx)
	span.Infof("router child %s concurrency set to %d", name, n)
	return nil
}

func (s *Server) lookupChild(name string) (*catalog.Subvol, string, error) {
	if s.router == nil {
		return nil, "", apierrors.ErrSubvolNotFound
	}
	c := s.router.Catalog()
	sv, err := c.Lookup(name)
	if err != nil {
		return nil, "", err
	}
	for _, m := range c.Subvols(proto.RoleMDS) {
		if m == sv {
			return sv, roleMDS, nil
		}
	}
	return sv, roleDS, nil
}

func (s *Server) childStat(sv *catalog.Subvol, role string) ChildStat {
	_, hosted := s.hosted[sv.Name()]
	return ChildStat{
		Name:   sv.Name(),
		Role:   role,
		Hosted: hosted,
		Limit:  sv.LimitStatus(),
	}
}

type Layout struct {
	Strategy string          `json:"strategy"`
	MDS      []layout.Bucket `json:"mds"`
	DS       []layout.Bucket `json:"ds"`
}

// Layout returns the router buckets per role, nil without a router.
func (s *Server) Layout() *Layout {
	if s.router == nil {
		return nil
	}
	c := s.router.Catalog()
	mdsTable, dsTable := c.Table(proto.RoleMDS), c.Table(proto.RoleDS)
	return &Layout{
		Strategy: mdsTable.Strategy().Name(),
		MDS:      mdsTable.Buckets(),
		DS:       dsTable.Buckets(),
	}
}

func (s *Server) Close() {
	if s.clients != nil {
		s.clients.Close()
	}
	for _, m := range s.mdss {
		m.Close()
	}
	for _, d := range s.dss {
		d.Close()
	}
}
