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
	"github.com/cubefs/metadht/errors"
	"github.com/cubefs/metadht/layout"
	"github.com/cubefs/metadht/proto"
	"github.com/cubefs/metadht/util/limiter"
)

type Config struct {
	MDSCount int    `json:"mds_count" validate:"min=1"`
	DSCount  int    `json:"ds_count" validate:"min=1"`
	Layout   string `json:"layout" validate:"omitempty,oneof=hash range"`
	// Limit applies to every subvolume of the catalog
	Limit limiter.LimitConfig `json:"limit"`
}

// Catalog owns the mds and ds layout tables and the subvolume handles
// their buckets point to. It is immutable once built.
type Catalog struct {
	mds *layout.Table
	ds  *layout.Table

	subvols map[string]*Subvol
	mdsList []*Subvol
	dsList  []*Subvol
}

// New builds a catalog from the ordered children names, the first
// MDSCount children serve as mds and the next DSCount as ds. children
// resolves a name to its fop surface.
func New(cfg *Config, names []string, children map[string]proto.Subvolume) (*Catalog, error) {
	if cfg.MDSCount <= 0 || cfg.DSCount <= 0 {
		return nil, errors.ErrInvalidSubvolCount
	}
	if len(names) < cfg.MDSCount+cfg.DSCount {
		return nil, errors.ErrNotEnoughSubvols
	}
	names = names[:cfg.MDSCount+cfg.DSCount]

	strategy, err := layout.NewStrategy(cfg.Layout)
	if err != nil {
		return nil, err
	}

	c := &Catalog{subvols: make(map[string]*Subvol, len(names))}
	for _, name := range names {
		if _, ok := c.subvols[name]; ok {
			return nil, errors.ErrDuplicateSubvol
		}
		sv, ok := children[name]
		if !ok || sv == nil {
			return nil, errors.ErrSubvolNotFound
		}
		c.subvols[name] = newSubvol(name, sv, limiter.NewLimiter(cfg.Limit))
	}

	mdsNames, dsNames := names[:cfg.MDSCount], names[cfg.MDSCount:]
	if c.mds, err = layout.NewTable(proto.RoleMDS, strategy, mdsNames); err != nil {
		return nil, err
	}
	if c.ds, err = layout.NewTable(proto.RoleDS, strategy, dsNames); err != nil {
		return nil, err
	}
	for _, name := range mdsNames {
		c.mdsList = append(c.mdsList, c.subvols[name])
	}
	for _, name := range dsNames {
		c.dsList = append(c.dsList, c.subvols[name])
	}
	return c, nil
}

// Route returns the subvolume owning gfid in the table of role.
func (c *Catalog) Route(gfid proto.GFID, role proto.Role) (*Subvol, error) {
	table := c.Table(role)
	if table == nil {
		return nil, errors.ErrNoSubvolume
	}
	owner, err := table.Owner(gfid)
	if err != nil {
		return nil, errors.ErrNoSubvolume
	}
	sv, ok := c.subvols[owner]
	if !ok {
		return nil, errors.ErrNoSubvolume
	}
	return sv, nil
}

func (c *Catalog) Lookup(name string) (*Subvol, error) {
	sv, ok := c.subvols[name]
	if !ok {
		return nil, errors.ErrSubvolNotFound
	}
	return sv, nil
}

func (c *Catalog) Table(role proto.Role) *layout.Table {
	if c == nil {
		return nil
	}
	switch role {
	case proto.RoleMDS:
		return c.mds
	case proto.RoleDS:
		return c.ds
	default:
		return nil
	}
}

// Subvols returns the members of role in layout order.
func (c *Catalog) Subvols(role proto.Role) []*Subvol {
	var list []*Subvol
	switch role {
	case proto.RoleMDS:
		list = c.mdsList
	case proto.RoleDS:
		list = c.dsList
	}
	return append([]*Subvol(nil), list...)
}

// All returns every subvolume, mds members first.
func (c *Catalog) All() []*Subvol {
	ret := make([]*Subvol, 0, len(c.mdsList)+len(c.dsList))
	ret = append(ret, c.mdsList...)
	return append(ret, c.dsList...)
}
