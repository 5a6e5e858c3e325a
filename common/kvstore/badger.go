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
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

func init() {
	Register(BadgerLsmKVType, newBadger)
}

// badgerStore maps a column family onto a key prefix "<cf>\x00".
type badgerStore struct {
	path    string
	db      *badger.DB
	columns map[CF]struct{}

	closed bool
	lock   sync.RWMutex
}

func newBadger(ctx context.Context, path string, option *Option) (Store, error) {
	var opts badger.Options
	if option.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if path == "" {
			return nil, ErrEmptyPath
		}
		if _, err := os.Stat(path); err != nil {
			if !os.IsNotExist(err) || !option.CreateIfMissing {
				return nil, err
			}
			if err = os.MkdirAll(path, 0o755); err != nil {
				return nil, err
			}
		}
		opts = badger.DefaultOptions(path).WithSyncWrites(option.Sync)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)
	if option.BlockCache > 0 {
		opts = opts.WithBlockCacheSize(int64(option.BlockCache))
	}
	if option.BlockSize > 0 {
		opts = opts.WithBlockSize(option.BlockSize)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &badgerStore{
		path:    path,
		db:      db,
		columns: columnSet(option.ColumnFamily),
	}, nil
}

func (s *badgerStore) colKey(col CF, key []byte) ([]byte, error) {
	if _, ok := s.columns[col]; !ok {
		return nil, ErrColumnNotFound
	}
	ret := make([]byte, 0, len(col)+1+len(key))
	ret = append(ret, col...)
	ret = append(ret, 0)
	return append(ret, key...), nil
}

func (s *badgerStore) Get(ctx context.Context, col CF, key []byte) (value []byte, err error) {
	k, err := s.colKey(col, key)
	if err != nil {
		return nil, err
	}
	err = s.view(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

func (s *badgerStore) Set(ctx context.Context, col CF, key []byte, value []byte) error {
	k, err := s.colKey(col, key)
	if err != nil {
		return err
	}
	return s.update(func(txn *badger.Txn) error {
		return txn.Set(k, value)
	})
}

func (s *badgerStore) Delete(ctx context.Context, col CF, key []byte) error {
	k, err := s.colKey(col, key)
	if err != nil {
		return err
	}
	return s.update(func(txn *badger.Txn) error {
		return txn.Delete(k)
	})
}

func (s *badgerStore) List(ctx context.Context, col CF, prefix []byte, fn func(key, value []byte) error) error {
	p, err := s.colKey(col, prefix)
	if err != nil {
		return err
	}
	trim := len(col) + 1
	err = s.view(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err = fn(item.KeyCopy(nil)[trim:], value); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, ErrStopIteration) {
		return nil
	}
	return err
}

func (s *badgerStore) Write(ctx context.Context, batch *WriteBatch) error {
	return s.update(func(txn *badger.Txn) error {
		return batch.Iterate(func(col CF, key, value []byte, isDelete bool) error {
			k, err := s.colKey(col, key)
			if err != nil {
				return err
			}
			if isDelete {
				return txn.Delete(k)
			}
			return txn.Set(k, value)
		})
	})
}

func (s *badgerStore) Stats(ctx context.Context) (stats Stats, err error) {
	lsm, vlog := s.db.Size()
	stats.Used = uint64(lsm + vlog)
	err = s.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			stats.Keys++
		}
		return nil
	})
	return
}

func (s *badgerStore) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.db.Close()
}

func (s *badgerStore) view(fn func(txn *badger.Txn) error) error {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.closed {
		return ErrClosedKVStore
	}
	return s.db.View(fn)
}

func (s *badgerStore) update(fn func(txn *badger.Txn) error) error {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.closed {
		return ErrClosedKVStore
	}
	return s.db.Update(fn)
}
