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

package gfid

import (
	"math/rand"

	"github.com/google/uuid"

	"github.com/cubefs/metadht/errors"
	"github.com/cubefs/metadht/layout"
	"github.com/cubefs/metadht/proto"
)

const maxGenerateAttempts = 8

// Generator produces gfids for new inodes against one layout table.
type Generator struct {
	table *layout.Table
	// source of random gfids, replaced in tests
	newID func() proto.GFID
}

func NewGenerator(table *layout.Table) *Generator {
	return &Generator{
		table: table,
		newID: func() proto.GFID { return proto.GFID(uuid.New()) },
	}
}

// Random returns a fresh gfid with no placement constraint.
func (g *Generator) Random() (proto.GFID, error) {
	for i := 0; i < maxGenerateAttempts; i++ {
		id := g.newID()
		if reserved(id) {
			continue
		}
		return id, nil
	}
	return proto.NullGFID, errors.ErrGenerateGFID
}

// Colocated returns a fresh gfid whose routing key falls in the bucket of
// parent, so both route to the same subvolume.
func (g *Generator) Colocated(parent proto.GFID) (proto.GFID, error) {
	idx, err := g.table.Locate(parent)
	if err != nil {
		return proto.NullGFID, err
	}
	bucket := g.table.Bucket(idx)
	strategy := g.table.Strategy()

	for i := 0; i < maxGenerateAttempts; i++ {
		key := bucket.Start + rand.Uint64()%(bucket.End-bucket.Start)
		id := strategy.WithKey(g.newID(), key)
		if reserved(id) || id == parent {
			continue
		}
		if childIdx, err := g.table.Locate(id); err != nil || childIdx != idx {
			continue
		}
		return id, nil
	}
	return proto.NullGFID, errors.ErrGenerateGFID
}

func reserved(id proto.GFID) bool {
	return id.IsNull() || id.IsRoot()
}
