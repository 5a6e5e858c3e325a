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
	"sync"
	"sync/atomic"

	"github.com/cubefs/metadht/metrics"
	"github.com/cubefs/metadht/proto"
	"github.com/cubefs/metadht/router/catalog"
)

// opLocal is the state one fop carries across its hops. The entry point
// owns it and releases it exactly once.
type opLocal struct {
	fop      string
	gfid     proto.GFID
	loc      proto.Loc
	xattrReq proto.Dict

	postparent       proto.Iatt
	postparentCached bool

	dataSubvol *catalog.Subvol
}

var (
	localPool = sync.Pool{New: func() interface{} { return new(opLocal) }}
	inflight  int64
)

func newLocal(fop string) *opLocal {
	local := localPool.Get().(*opLocal)
	local.fop = fop
	atomic.AddInt64(&inflight, 1)
	metrics.RouterInflightOps.Inc()
	return local
}

func (l *opLocal) release() {
	*l = opLocal{}
	atomic.AddInt64(&inflight, -1)
	metrics.RouterInflightOps.Dec()
	localPool.Put(l)
}

// stashPostparent folds a parent snapshot into the local state.
func (l *opLocal) stashPostparent(iatt *proto.Iatt) {
	if iatt == nil {
		return
	}
	proto.MergeIatt(&l.postparent, iatt)
	l.postparentCached = true
}

// cachedPostparent returns a copy of the stash that outlives the release.
func (l *opLocal) cachedPostparent() *proto.Iatt {
	iatt := l.postparent
	return &iatt
}

func inflightOps() int64 {
	return atomic.LoadInt64(&inflight)
}
