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

package rocksdb

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"

	rdb "github.com/tecbot/gorocksdb"

	"github.com/cubefs/metadht/common/kvstore"
)

func init() {
	kvstore.Register(kvstore.RocksdbLsmKVType, Open)
}

type rocksdb struct {
	path      string
	db        *rdb.DB
	opt       *rdb.Options
	readOpt   *rdb.ReadOptions
	writeOpt  *rdb.WriteOptions
	cfHandles map[kvstore.CF]*rdb.ColumnFamilyHandle

	closed bool
	lock   sync.RWMutex
}

// Open opens a rocksdb engine at path with one column family per
// option.ColumnFamily besides the default one.
func Open(ctx context.Context, path string, option *kvstore.Option) (kvstore.Store, error) {
	if path == "" {
		return nil, kvstore.ErrEmptyPath
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}

	dbOpt := genRocksdbOpts(option)

	cols := make([]kvstore.CF, 0, len(option.ColumnFamily)+1)
	cols = append(cols, kvstore.DefaultCF)
	seen := map[kvstore.CF]bool{kvstore.DefaultCF: true}
	for _, col := range option.ColumnFamily {
		if !seen[col] {
			seen[col] = true
			cols = append(cols, col)
		}
	}
	cfNames := make([]string, 0, len(cols))
	cfOpts := make([]*rdb.Options, 0, len(cols))
	for _, col := range cols {
		cfNames = append(cfNames, col.String())
		cfOpts = append(cfOpts, dbOpt)
	}

	db, cfhs, err := rdb.OpenDbColumnFamilies(dbOpt, path, cfNames, cfOpts)
	if err != nil {
		dbOpt.Destroy()
		return nil, err
	}
	cfhMap := make(map[kvstore.CF]*rdb.ColumnFamilyHandle, len(cfhs))
	for i, h := range cfhs {
		cfhMap[cols[i]] = h
	}

	wo := rdb.NewDefaultWriteOptions()
	wo.SetSync(option.Sync)
	return &rocksdb{
		path:      path,
		db:        db,
		opt:       dbOpt,
		readOpt:   rdb.NewDefaultReadOptions(),
		writeOpt:  wo,
		cfHandles: cfhMap,
	}, nil
}

func genRocksdbOpts(opt *kvstore.Option) *rdb.Options {
	opts := rdb.NewDefaultOptions()
	blockBaseOpt := rdb.NewDefaultBlockBasedTableOptions()
	opts.SetCreateIfMissing(opt.CreateIfMissing)
	if opt.BlockSize > 0 {
		blockBaseOpt.SetBlockSize(opt.BlockSize)
	}
	if opt.BlockCache > 0 {
		blockBaseOpt.SetBlockCache(rdb.NewLRUCache(opt.BlockCache))
	}
	if opt.MaxOpenFiles > 0 {
		opts.SetMaxOpenFiles(opt.MaxOpenFiles)
	}
	if opt.WriteBufferSize > 0 {
		opts.SetWriteBufferSize(opt.WriteBufferSize)
	}
	opts.SetStatsDumpPeriodSec(0)
	opts.SetBlockBasedTableFactory(blockBaseOpt)
	opts.SetCreateIfMissingColumnFamilies(true)
	return opts
}

func (s *rocksdb) getColumnFamily(col kvstore.CF) (*rdb.ColumnFamilyHandle, error) {
	cf, ok := s.cfHandles[col]
	if !ok {
		return nil, kvstore.ErrColumnNotFound
	}
	return cf, nil
}

func (s *rocksdb) Get(ctx context.Context, col kvstore.CF, key []byte) ([]byte, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.closed {
		return nil, kvstore.ErrClosedKVStore
	}
	cf, err := s.getColumnFamily(col)
	if err != nil {
		return nil, err
	}
	v, err := s.db.GetCF(s.readOpt, cf, key)
	if err != nil {
		return nil, err
	}
	defer v.Free()
	if !v.Exists() {
		return nil, kvstore.ErrNotFound
	}
	value := make([]byte, v.Size())
	copy(value, v.Data())
	return value, nil
}

func (s *rocksdb) Set(ctx context.Context, col kvstore.CF, key []byte, value []byte) error {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.closed {
		return kvstore.ErrClosedKVStore
	}
	cf, err := s.getColumnFamily(col)
	if err != nil {
		return err
	}
	return s.db.PutCF(s.writeOpt, cf, key, value)
}

func (s *rocksdb) Delete(ctx context.Context, col kvstore.CF, key []byte) error {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.closed {
		return kvstore.ErrClosedKVStore
	}
	cf, err := s.getColumnFamily(col)
	if err != nil {
		return err
	}
	return s.db.DeleteCF(s.writeOpt, cf, key)
}

func (s *rocksdb) List(ctx context.Context, col kvstore.CF, prefix []byte, fn func(key, value []byte) error) error {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.closed {
		return kvstore.ErrClosedKVStore
	}
	cf, err := s.getColumnFamily(col)
	if err != nil {
		return err
	}

	it := s.db.NewIteratorCF(s.readOpt, cf)
	defer it.Close()
	if len(prefix) > 0 {
		it.Seek(prefix)
	} else {
		it.SeekToFirst()
	}
	for ; it.Valid(); it.Next() {
		if len(prefix) > 0 && !it.ValidForPrefix(prefix) {
			break
		}
		k, v := it.Key(), it.Value()
		key := make([]byte, k.Size())
		value := make([]byte, v.Size())
		copy(key, k.Data())
		copy(value, v.Data())
		k.Free()
		v.Free()
		if err = fn(key, value); err != nil {
			if errors.Is(err, kvstore.ErrStopIteration) {
				return nil
			}
			return err
		}
	}
	return it.Err()
}

func (s *rocksdb) Write(ctx context.Context, batch *kvstore.WriteBatch) error {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.closed {
		return kvstore.ErrClosedKVStore
	}

	wb := rdb.NewWriteBatch()
	defer wb.Destroy()
	err := batch.Iterate(func(col kvstore.CF, key, value []byte, isDelete bool) error {
		cf, err := s.getColumnFamily(col)
		if err != nil {
			return err
		}
		if isDelete {
			wb.DeleteCF(cf, key)
		} else {
			wb.PutCF(cf, key, value)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.db.Write(s.writeOpt, wb)
}

func (s *rocksdb) Stats(ctx context.Context) (stats kvstore.Stats, err error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.closed {
		return stats, kvstore.ErrClosedKVStore
	}

	var size int64
	files := s.db.GetLiveFilesMetaData()
	for i := range files {
		size += files[i].Size
	}
	stats.Used = uint64(size)
	for _, cf := range s.cfHandles {
		keys, _ := strconv.ParseUint(s.db.GetPropertyCF("rocksdb.estimate-num-keys", cf), 10, 64)
		stats.Keys += keys
	}
	return
}

func (s *rocksdb) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.writeOpt.Destroy()
	s.readOpt.Destroy()
	for i := range s.cfHandles {
		s.cfHandles[i].Destroy()
	}
	s.db.Close()
	s.opt.Destroy()
}
