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

package layout

import (
	"github.com/cubefs/cubefs/util/btree"

	"github.com/cubefs/metadht/errors"
	"github.com/cubefs/metadht/proto"
)

const treeDegree = 8

// Bucket is the half open key range [Start, End) owned by one subvolume.
type Bucket struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
	Owner string `json:"owner"`
}

func (b Bucket) Contains(key uint64) bool {
	return key >= b.Start && key < b.End
}

type bucketItem struct {
	start uint64
	index int
}

func (b *bucketItem) Less(than btree.Item) bool {
	return b.start < than.(*bucketItem).start
}

func (b *bucketItem) Copy() btree.Item {
	return &(*b)
}

// Table is the bucket layout of one role. It is never modified after
// NewTable returns, so lookups need no locking.
type Table struct {
	role     proto.Role
	strategy Strategy
	buckets  []Bucket
	tree     *btree.BTree
}

// NewTable divides the key space of strategy into len(owners) equal width
// buckets assigned in list order, the last bucket takes the remainder.
func NewTable(role proto.Role, strategy Strategy, owners []string) (*Table, error) {
	count := uint64(len(owners))
	if count == 0 || count > strategy.Space() {
		return nil, errors.ErrInvalidSubvolCount
	}

	width := strategy.Space() / count
	t := &Table{
		role:     role,
		strategy: strategy,
		buckets:  make([]Bucket, count),
		tree:     btree.New(treeDegree),
	}
	for i, owner := range owners {
		start := uint64(i) * width
		end := start + width
		if i == len(owners)-1 {
			end = strategy.Space()
		}
		t.buckets[i] = Bucket{Start: start, End: end, Owner: owner}
		t.tree.ReplaceOrInsert(&bucketItem{start: start, index: i})
	}
	return t, nil
}

func (t *Table) Role() proto.Role {
	return t.role
}

func (t *Table) Strategy() Strategy {
	return t.strategy
}

func (t *Table) Count() int {
	return len(t.buckets)
}

func (t *Table) Bucket(index int) Bucket {
	return t.buckets[index]
}

func (t *Table) Buckets() []Bucket {
	ret := make([]Bucket, len(t.buckets))
	copy(ret, t.buckets)
	return ret
}

// Locate returns the index of the bucket owning gfid.
func (t *Table) Locate(gfid proto.GFID) (int, error) {
	if t == nil || t.tree == nil {
		return -1, errors.ErrLayoutNotBuilt
	}
	return t.locateKey(t.strategy.Key(gfid))
}

func (t *Table) locateKey(key uint64) (int, error) {
	var found *bucketItem
	t.tree.DescendLessOrEqual(&bucketItem{start: key}, func(i btree.Item) bool {
		found = i.(*bucketItem)
		return false
	})
	if found == nil || found.index >= len(t.buckets) || !t.buckets[found.index].Contains(key) {
		return -1, errors.ErrNoSubvolume
	}
	return found.index, nil
}

// Owner returns the subvolume owning gfid.
func (t *Table) Owner(gfid proto.GFID) (string, error) {
	idx, err := t.Locate(gfid)
	if err != nil {
		return "", err
	}
	return t.buckets[idx].Owner, nil
}
