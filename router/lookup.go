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

	"github.com/cubefs/metadht/metrics"
	"github.com/cubefs/metadht/proto"
	"github.com/cubefs/metadht/router/catalog"
)

type lookupState uint8

const (
	lookupEntry lookupState = iota
	lookupPrimaryPending
	lookupRemotePending
	lookupDone
)

// lookupTask resolves one lookup in at most two hops. Every pending state
// issues a single call and consumes its response.
type lookupTask struct {
	r     *Router
	state lookupState
	local *opLocal

	target *catalog.Subvol
	wound  proto.Loc
	resp   *proto.LookupResponse
	result string
}

func (r *Router) Lookup(ctx context.Context, req *proto.LookupRequest) (*proto.LookupResponse, error) {
	local := newLocal("lookup")
	defer local.release()

	local.loc = req.Loc
	local.xattrReq = req.Xdata
	t := &lookupTask{r: r, local: local}
	resp := t.run(ctx)

	metrics.RouterLookupTotal.WithLabelValues(t.result).Inc()
	unwind("lookup", resp.Errno)
	return resp, nil
}

func (t *lookupTask) run(ctx context.Context) *proto.LookupResponse {
	for t.state != lookupDone {
		switch t.state {
		case lookupEntry:
			t.entry(ctx)
		case lookupPrimaryPending:
			t.primary(ctx)
		case lookupRemotePending:
			t.remote(ctx)
		}
	}
	return t.resp
}

func (t *lookupTask) finish(errno int32) {
	t.resp = &proto.LookupResponse{Errno: errno}
	t.result = "error"
	t.state = lookupDone
}

// entry routes nameless lookups on the object itself and named lookups on
// the parent, which holds the name. The root is always nameless.
func (t *lookupTask) entry(ctx context.Context) {
	span := trace.SpanFromContextSafe(ctx)
	loc := &t.local.loc
	id := loc.InodeGFID()
	parent, hasParent := loc.ParentID()

	if id.IsRoot() || (!hasParent && !id.IsNull()) {
		t.local.gfid = id
		t.wound = proto.NamelessLoc(id)
		t.wound.Path = loc.Path
	} else {
		if !hasParent {
			span.Errorf("lookup %q: no parent gfid", loc.Path)
			t.finish(int32(syscall.EINVAL))
			return
		}
		if loc.Name == "" {
			span.Errorf("lookup %q: named lookup without name", loc.Path)
			t.finish(int32(syscall.EINVAL))
			return
		}
		id = parent
		t.wound = *loc
	}

	target, errno := t.r.route(ctx, id, proto.RoleMDS)
	if errno != 0 {
		t.finish(errno)
		return
	}
	t.target = target
	t.state = lookupPrimaryPending
}

func (t *lookupTask) primary(ctx context.Context) {
	resp, err := t.target.Lookup(ctx, &proto.LookupRequest{Loc: t.wound, Xdata: t.local.xattrReq})
	if err != nil {
		t.finish(callErrno(ctx, t.target, "lookup", err))
		return
	}

	switch resp.Errno {
	case 0:
		if t.local.postparentCached {
			resp.Postparent = t.local.cachedPostparent()
		}
		t.resp, t.result, t.state = resp, "hit", lookupDone
	case int32(syscall.EREMOTE):
		t.relocate(ctx, resp)
	default:
		t.resp, t.result, t.state = resp, "error", lookupDone
	}
}

// relocate follows an EREMOTE answer to the mds owning the discovered
// inode. Only the inode-remote reason is followed.
func (t *lookupTask) relocate(ctx context.Context, resp *proto.LookupResponse) {
	span := trace.SpanFromContextSafe(ctx)
	if resp.Buf == nil || resp.Buf.GFID.IsNull() {
		span.Errorf("lookup %s/%s: EREMOTE from %s without gfid", t.wound.ParentGFID, t.wound.Name, t.target.Name())
		t.finish(int32(syscall.EIO))
		return
	}
	reason, ok := resp.Xdata.GetString(t.r.reasonKey)
	if !ok {
		span.Errorf("lookup %s: EREMOTE from %s without reason", resp.Buf.GFID, t.target.Name())
		t.finish(int32(syscall.EIO))
		return
	}
	if reason != proto.ReasonInodeRemote {
		span.Errorf("lookup %s: unsupported EREMOTE reason %q from %s", resp.Buf.GFID, reason, t.target.Name())
		t.finish(int32(syscall.EIO))
		return
	}

	// only the first hop observed the parent
	t.local.stashPostparent(resp.Postparent)
	t.local.gfid = resp.Buf.GFID
	t.wound = proto.NamelessLoc(resp.Buf.GFID)

	target, errno := t.r.route(ctx, t.local.gfid, proto.RoleMDS)
	if errno != 0 {
		t.finish(errno)
		return
	}
	span.Debugf("lookup %s relocated from %s to %s", t.local.gfid, t.target.Name(), target.Name())
	t.target = target
	t.state = lookupRemotePending
}

// remote consumes the second hop, its answer is final whatever it is.
func (t *lookupTask) remote(ctx context.Context) {
	resp, err := t.target.Lookup(ctx, &proto.LookupRequest{Loc: t.wound, Xdata: t.local.xattrReq})
	if err != nil {
		t.finish(callErrno(ctx, t.target, "lookup", err))
		return
	}
	t.result = "error"
	if resp.Errno == 0 {
		t.result = "remote"
		if t.local.postparentCached {
			resp.Postparent = t.local.cachedPostparent()
		}
	}
	t.resp, t.state = resp, lookupDone
}
