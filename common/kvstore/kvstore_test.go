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
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cubefs/metadht/util"
)

func TestNewKVStore(t *testing.T) {
	ctx := context.TODO()
	_, err := NewKVStore(ctx, "", LsmKVType("leveldb"), nil)
	require.ErrorIs(t, err, ErrKVTypeNotFound)

	_, err = NewKVStore(ctx, "", BadgerLsmKVType, &Option{})
	require.ErrorIs(t, err, ErrEmptyPath)

	require.Panics(t, func() { Register(BadgerLsmKVType, newBadger) })
}

func TestBadgerOnDisk(t *testing.T) {
	ctx := context.TODO()
	path, err := util.GenTmpPath()
	require.NoError(t, err)
	defer os.RemoveAll(path)

	opt := &Option{CreateIfMissing: true, Sync: true, ColumnFamily: []CF{"inode"}}
	eg, err := NewKVStore(ctx, path+"/db", BadgerLsmKVType, opt)
	require.NoError(t, err)
	require.NoError(t, eg.Set(ctx, "inode", []byte("k"), []byte("v")))
	eg.Close()
	eg.Close()

	_, err = eg.Get(ctx, "inode", []byte("k"))
	require.ErrorIs(t, err, ErrClosedKVStore)

	eg, err = NewKVStore(ctx, path+"/db", BadgerLsmKVType, opt)
	require.NoError(t, err)
	defer eg.Close()
	v, err := eg.Get(ctx, "inode", []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)

	_, err = NewKVStore(ctx, path+"/missing", BadgerLsmKVType, &Option{})
	require.Error(t, err)
}

func TestBadgerColumns(t *testing.T) {
	ctx := context.TODO()
	eg, err := NewKVStore(ctx, "", BadgerLsmKVType, &Option{InMemory: true, ColumnFamily: []CF{"a", "b"}})
	require.NoError(t, err)
	defer eg.Close()

	require.NoError(t, eg.Set(ctx, "a", []byte("key"), []byte("in a")))
	require.NoError(t, eg.Set(ctx, "b", []byte("key"), []byte("in b")))

	v, err := eg.Get(ctx, "a", []byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("in a"), v)
	v, err = eg.Get(ctx, "b", []byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("in b"), v)
	_, err = eg.Get(ctx, DefaultCF, []byte("key"))
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, eg.Set(ctx, "c", []byte("key"), nil), ErrColumnNotFound)

	require.NoError(t, eg.Delete(ctx, "a", []byte("key")))
	_, err = eg.Get(ctx, "a", []byte("key"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerListAndBatch(t *testing.T) {
	ctx := context.TODO()
	eg, err := NewKVStore(ctx, "", BadgerLsmKVType, &Option{InMemory: true, ColumnFamily: []CF{"dentry", "other"}})
	require.NoError(t, err)
	defer eg.Close()

	batch := NewWriteBatch()
	for i := 0; i < 20; i++ {
		batch.Put("dentry", []byte(fmt.Sprintf("p1/%02d", i)), []byte{byte(i)})
	}
	batch.Put("dentry", []byte("p2/a"), []byte("a"))
	batch.Put("other", []byte("p1/zz"), []byte("other column"))
	batch.Delete("dentry", []byte("p1/19"))
	require.Equal(t, 23, batch.Count())
	require.NoError(t, eg.Write(ctx, batch))

	var keys []string
	require.NoError(t, eg.List(ctx, "dentry", []byte("p1/"), func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	}))
	require.Len(t, keys, 19)
	require.Equal(t, "p1/00", keys[0])
	require.Equal(t, "p1/18", keys[18])

	count := 0
	require.NoError(t, eg.List(ctx, "dentry", nil, func(key, value []byte) error {
		count++
		if count == 5 {
			return ErrStopIteration
		}
		return nil
	}))
	require.Equal(t, 5, count)

	boom := fmt.Errorf("boom")
	require.Equal(t, boom, eg.List(ctx, "dentry", nil, func(key, value []byte) error { return boom }))

	// a bad column fails the whole batch
	batch = NewWriteBatch()
	batch.Put("dentry", []byte("p3/a"), []byte("a"))
	batch.Put("missing", []byte("p3/b"), []byte("b"))
	require.ErrorIs(t, eg.Write(ctx, batch), ErrColumnNotFound)
	_, err = eg.Get(ctx, "dentry", []byte("p3/a"))
	require.ErrorIs(t, err, ErrNotFound)

	stats, err := eg.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(21), stats.Keys)
}
