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
	"encoding/binary"

	"github.com/cubefs/metadht/errors"
	"github.com/cubefs/metadht/proto"
)

const (
	HashType  = "hash"
	RangeType = "range"

	hashSpace  = uint64(1) << 16
	rangeSpace = uint64(1) << 32
)

// Strategy maps a gfid onto the routing key space [0, Space()).
type Strategy interface {
	Name() string
	Space() uint64
	Key(gfid proto.GFID) uint64
	// WithKey returns gfid with its key bits replaced by key.
	WithKey(gfid proto.GFID, key uint64) proto.GFID
}

func NewStrategy(name string) (Strategy, error) {
	switch name {
	case HashType, "":
		return hashStrategy{}, nil
	case RangeType:
		return rangeStrategy{}, nil
	default:
		return nil, errors.ErrUnknownLayoutType
	}
}

// hashStrategy reads the two most significant gfid bytes as the key.
type hashStrategy struct{}

func (hashStrategy) Name() string  { return HashType }
func (hashStrategy) Space() uint64 { return hashSpace }

func (hashStrategy) Key(gfid proto.GFID) uint64 {
	return uint64(binary.BigEndian.Uint16(gfid[:2]))
}

func (hashStrategy) WithKey(gfid proto.GFID, key uint64) proto.GFID {
	binary.BigEndian.PutUint16(gfid[:2], uint16(key))
	return gfid
}

// rangeStrategy reads the four most significant gfid bytes as the key.
type rangeStrategy struct{}

func (rangeStrategy) Name() string  { return RangeType }
func (rangeStrategy) Space() uint64 { return rangeSpace }

func (rangeStrategy) Key(gfid proto.GFID) uint64 {
	return uint64(binary.BigEndian.Uint32(gfid[:4]))
}

func (rangeStrategy) WithKey(gfid proto.GFID, key uint64) proto.GFID {
	binary.BigEndian.PutUint32(gfid[:4], uint32(key))
	return gfid
}
