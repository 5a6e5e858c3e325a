// Copyright 2023 The Cuber Authors.
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

package kvstore

import (
	"context"
	"errors"
	"sync"
)

const (
	DefaultCF = CF("default")

	BadgerLsmKVType  = LsmKVType("badger")
	RocksdbLsmKVType = LsmKVType("rocksdb")
)

var (
	ErrNotFound        = errors.New("key not found")
	ErrKVTypeNotFound  = errors.New("kv type not found")
	ErrColumnNotFound  = errors.New("column family not found")
	ErrEmptyPath       = errors.New("path is empty")
	ErrStopIteration   = errors.New("stop iteration")
	ErrClosedKVStore   = errors.New("kv store closed")
	ErrDuplicateEngine = errors.New("kv engine registered twice")
)

type (
	CF        string
	LsmKVType string

	// Store is an ordered key value engine with column families.
	Store interface {
		Get(ctx context.Context, col CF, key []byte) ([]byte, error)
		Set(ctx context.Context, col CF, key []byte, value []byte) error
		Delete(ctx context.Context, col CF, key []byte) error
		// List calls fn for every key with prefix in key order, fn may
		// return ErrStopIteration to end the listing without error.
		List(ctx context.Context, col CF, prefix []byte, fn func(key, value []byte) error) error
		// Write applies all operations of batch atomically.
		Write(ctx context.Context, batch *WriteBatch) error
		Stats(ctx context.Context) (Stats, error)
		Close()
	}

	Stats struct {
		Used uint64 `json:"used"`
		Keys uint64 `json:"keys"`
	}

	Option struct {
		Sync            bool `json:"sync"`
		CreateIfMissing bool `json:"create_if_missing"`
		// InMemory keeps all data in memory, only honored by badger
		InMemory        bool   `json:"in_memory"`
		ColumnFamily    []CF   `json:"column_family"`
		BlockSize       int    `json:"block_size"`
		BlockCache      uint64 `json:"block_cache"`
		MaxOpenFiles    int    `json:"max_open_files"`
		WriteBufferSize int    `json:"write_buffer_size"`
	}

	// Config selects and places an engine, as found in service configs.
	Config struct {
		Path   string    `json:"path"`
		Type   LsmKVType `json:"type"`
		Option Option    `json:"option"`
	}

	// Opener opens an engine at path.
	Opener func(ctx context.Context, path string, option *Option) (Store, error)
)

var (
	enginesMu sync.RWMutex
	engines   = make(map[LsmKVType]Opener)
)

// Register makes an engine available to NewKVStore.
func Register(lsmType LsmKVType, opener Opener) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	if _, ok := engines[lsmType]; ok {
		panic(ErrDuplicateEngine)
	}
	engines[lsmType] = opener
}

func NewKVStore(ctx context.Context, path string, lsmType LsmKVType, option *Option) (Store, error) {
	if lsmType == "" {
		lsmType = BadgerLsmKVType
	}
	enginesMu.RLock()
	opener, ok := engines[lsmType]
	enginesMu.RUnlock()
	if !ok {
		return nil, ErrKVTypeNotFound
	}
	if option == nil {
		option = &Option{CreateIfMissing: true}
	}
	return opener(ctx, path, option)
}

// Open opens the engine described by cfg with cols added to its column
// families.
func Open(ctx context.Context, cfg *Config, cols ...CF) (Store, error) {
	opt := cfg.Option
	opt.ColumnFamily = append(append([]CF(nil), opt.ColumnFamily...), cols...)
	return NewKVStore(ctx, cfg.Path, cfg.Type, &opt)
}

func (cf CF) String() string {
	return string(cf)
}

type batchOp struct {
	col    CF
	key    []byte
	value  []byte
	delete bool
}

// WriteBatch collects puts and deletes applied by Store.Write.
type WriteBatch struct {
	ops []batchOp
}

func NewWriteBatch() *WriteBatch {
	return &WriteBatch{}
}

func (w *WriteBatch) Put(col CF, key, value []byte) {
	w.ops = append(w.ops, batchOp{col: col, key: key, value: value})
}

func (w *WriteBatch) Delete(col CF, key []byte) {
	w.ops = append(w.ops, batchOp{col: col, key: key, delete: true})
}

func (w *WriteBatch) Count() int {
	return len(w.ops)
}

// Iterate visits the operations in insertion order.
func (w *WriteBatch) Iterate(fn func(col CF, key, value []byte, isDelete bool) error) error {
	for _, op := range w.ops {
		if err := fn(op.col, op.key, op.value, op.delete); err != nil {
			return err
		}
	}
	return nil
}

func columnSet(cols []CF) map[CF]struct{} {
	set := map[CF]struct{}{DefaultCF: {}}
	for _, col := range cols {
		set[col] = struct{}{}
	}
	return set
}
