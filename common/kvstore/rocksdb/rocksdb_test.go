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
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cubefs/metadht/common/kvstore"
	"github.com/cubefs/metadht/util"
)

func newEngine(t *testing.T, cols ...kvstore.CF) (kvstore.Store, func()) {
	path, err := util.GenTmpPath()
	require.NoError(t, err)
	eg, err := kvstore.NewKVStore(context.TODO(), path, kvstore.RocksdbLsmKVType, &kvstore.Option{
		CreateIfMissing: true,
		Sync:            true,
		ColumnFamily:    cols,
	})
	require.NoError(t, err)
	return eg, func() {
		eg.Close()
		os.RemoveAll(path)
	}
}

func TestOpenRocksdb(t *testing.T) {
	ctx := context.TODO()
	path, err := util.GenTmpPath()
	require.NoError(t, err)
	defer os.RemoveAll(path)

	opt := &kvstore.Option{
		CreateIfMissing: true,
		BlockSize:       1 << 16,
		BlockCache:      1 << 20,
		MaxOpenFiles:    128,
		ColumnFamily:    []kvstore.CF{"a", "b", "c"},
	}
	eg, err := Open(ctx, path, opt)
	require.NoError(t, err)
	eg.Close()
	eg.Close()

	_, err = Open(ctx, "", opt)
	require.ErrorIs(t, err, kvstore.ErrEmptyPath)

	// reopen db
	eg, err = Open(ctx, path, opt)
	require.NoError(t, err)
	eg.Close()
	// open without an existing column family
	opt.ColumnFamily = []kvstore.CF{"a", "b"}
	_, err = Open(ctx, path, opt)
	require.Error(t, err)
}

func TestRocksdbSetGetDelete(t *testing.T) {
	ctx := context.TODO()
	eg, clean := newEngine(t, "inode")
	defer clean()

	require.NoError(t, eg.Set(ctx, "inode", []byte("k1"), []byte("v1")))
	v, err := eg.Get(ctx, "inode", []byte("k1"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v)

	_, err = eg.Get(ctx, kvstore.DefaultCF, []byte("k1"))
	require.ErrorIs(t, err, kvstore.ErrNotFound)
	_, err = eg.Get(ctx, "dentry", []byte("k1"))
	require.ErrorIs(t, err, kvstore.ErrColumnNotFound)

	require.NoError(t, eg.Delete(ctx, "inode", []byte("k1")))
	_, err = eg.Get(ctx, "inode", []byte("k1"))
	require.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestRocksdbListAndBatch(t *testing.T) {
	ctx := context.TODO()
	eg, clean := newEngine(t, "dentry")
	defer clean()

	batch := kvstore.NewWriteBatch()
	for i := 0; i < 10; i++ {
		batch.Put("dentry", []byte("p1/"+strconv.Itoa(i)), []byte(strconv.Itoa(i)))
	}
	batch.Put("dentry", []byte("p2/x"), []byte("x"))
	batch.Delete("dentry", []byte("p1/9"))
	require.NoError(t, eg.Write(ctx, batch))

	var keys []string
	require.NoError(t, eg.List(ctx, "dentry", []byte("p1/"), func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	}))
	require.Len(t, keys, 9)
	require.Equal(t, "p1/0", keys[0])

	count := 0
	require.NoError(t, eg.List(ctx, "dentry", nil, func(key, value []byte) error {
		count++
		if count == 3 {
			return kvstore.ErrStopIteration
		}
		return nil
	}))
	require.Equal(t, 3, count)

	stats, err := eg.Stats(ctx)
	require.NoError(t, err)
	require.NotZero(t, stats.Keys)
}
