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
	"strings"
	"sync"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/errors"
	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc"

	apierrors "github.com/cubefs/metadht/errors"
	"github.com/cubefs/metadht/proto"
)

const (
	defaultMaxTimeoutMs       = 10000
	defaultConnectTimeoutMs   = 3000
	defaultKeepaliveTimeoutS  = 5
	defaultBackoffBaseDelayMs = 100
	defaultBackoffMaxDelayMs  = 3000
)

type (
	TransportConfig struct {
		MaxTimeoutMs       uint32 `json:"max_timeout_ms"`
		ConnectTimeoutMs   uint32 `json:"connect_timeout_ms"`
		KeepaliveTimeoutS  uint32 `json:"keepalive_timeout_s"`
		BackoffBaseDelayMs uint32 `json:"backoff_base_delay_ms"`
		BackoffMaxDelayMs  uint32 `json:"backoff_max_delay_ms"`
	}

	Config struct {
		// Subvolumes maps a remote subvolume name to its grpc addresses,
		// several addresses are separated by comma
		Subvolumes      map[string]string `json:"subvolumes"`
		TransportConfig TransportConfig   `json:"transport"`
	}

	// SubvolumeClients holds one connection per remote address, dialed on
	// first use.
	SubvolumeClients struct {
		addrs    map[string]string
		tc       TransportConfig
		dialOpts []grpc.DialOption

		lock  sync.RWMutex
		conns map[string]*grpc.ClientConn
		group singleflight.Group
	}
)

func (tc *TransportConfig) fillDefault() {
	if tc.MaxTimeoutMs == 0 {
		tc.MaxTimeoutMs = defaultMaxTimeoutMs
	}
	if tc.ConnectTimeoutMs == 0 {
		tc.ConnectTimeoutMs = defaultConnectTimeoutMs
	}
	if tc.KeepaliveTimeoutS == 0 {
		tc.KeepaliveTimeoutS = defaultKeepaliveTimeoutS
	}
	if tc.BackoffBaseDelayMs == 0 {
		tc.BackoffBaseDelayMs = defaultBackoffBaseDelayMs
	}
	if tc.BackoffMaxDelayMs == 0 {
		tc.BackoffMaxDelayMs = defaultBackoffMaxDelayMs
	}
}

// NewSubvolumeClients builds the clients of cfg, opts are appended to the
// default dial options.
func NewSubvolumeClients(cfg *Config, opts ...grpc.DialOption) *SubvolumeClients {
	tc := cfg.TransportConfig
	tc.fillDefault()

	addrs := make(map[string]string, len(cfg.Subvolumes))
	for name, addr := range cfg.Subvolumes {
		if !strings.HasPrefix(addr, lbResolverSchema+":///") {
			addr = lbResolverSchema + ":///" + addr
		}
		addrs[name] = addr
	}
	return &SubvolumeClients{
		addrs:    addrs,
		tc:       tc,
		dialOpts: append(generateDialOpts(&tc), opts...),
		conns:    make(map[string]*grpc.ClientConn),
	}
}

// Subvolume returns the remote stub of name. Nothing is dialed until its
// first fop.
func (c *SubvolumeClients) Subvolume(name string) (proto.Subvolume, error) {
	if _, ok := c.addrs[name]; !ok {
		return nil, apierrors.ErrSubvolNotFound
	}
	return &remoteSubvol{name: name, clients: c}, nil
}

func (c *SubvolumeClients) Names() []string {
	names := make([]string, 0, len(c.addrs))
	for name := range c.addrs {
		names = append(names, name)
	}
	return names
}

func (c *SubvolumeClients) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	for addr, conn := range c.conns {
		conn.Close()
		delete(c.conns, addr)
	}
	return nil
}

// getConn returns the connection to the addresses of name. Concurrent
// first users share a single dial.
func (c *SubvolumeClients) getConn(ctx context.Context, name string) (*grpc.ClientConn, error) {
	addr, ok := c.addrs[name]
	if !ok {
		return nil, errors.Info(apierrors.ErrSubvolNotFound, name)
	}

	c.lock.RLock()
	conn := c.conns[addr]
	c.lock.RUnlock()
	if conn != nil {
		return conn, nil
	}

	v, err, _ := c.group.Do(addr, func() (interface{}, error) {
		c.lock.RLock()
		conn := c.conns[addr]
		c.lock.RUnlock()
		if conn != nil {
			return conn, nil
		}

		span := trace.SpanFromContextSafe(ctx)
		dialCtx, cancel := context.WithTimeout(context.Background(), time.Duration(c.tc.ConnectTimeoutMs)*time.Millisecond)
		defer cancel()
		conn, err := grpc.DialContext(dialCtx, addr, c.dialOpts...)
		if err != nil {
			span.Warnf("dial subvolume %s at %s failed: %s", name, addr, err)
			return nil, err
		}
		span.Infof("subvolume %s connected at %s", name, addr)

		c.lock.Lock()
		c.conns[addr] = conn
		c.lock.Unlock()
		return conn, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*grpc.ClientConn), nil
}

func (c *SubvolumeClients) connCount() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.conns)
}
