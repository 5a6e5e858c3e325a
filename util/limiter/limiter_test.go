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

package limiter

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterConcurrency(t *testing.T) {
	l := NewLimiter(LimitConfig{Concurrency: 1})
	require.NoError(t, l.Acquire())
	require.ErrorIs(t, l.Acquire(), ErrLimitExceeded)
	require.Equal(t, 1, l.Status().Running)

	l.SetConcurrency(2)
	require.NoError(t, l.Acquire())
	require.Equal(t, 2, l.Status().Running)
	l.Release()
	l.Release()
	require.Equal(t, 0, l.Status().Running)
	require.Equal(t, 2, l.Status().Config.Concurrency)
}

func TestLimiterUnlimited(t *testing.T) {
	l := NewLimiter(LimitConfig{})
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Acquire())
	}
	for i := 0; i < 100; i++ {
		l.Release()
	}
	require.NoError(t, l.WaitWrite(context.Background(), 1<<30))
	require.NoError(t, l.WaitRead(context.Background(), 1<<30))
	require.Equal(t, 0, l.Status().Running)

	l.SetConcurrency(1)
	require.NoError(t, l.Acquire())
	require.ErrorIs(t, l.Acquire(), ErrLimitExceeded)
	require.Equal(t, 1, l.Status().Config.Concurrency)

	// zero lifts the limit again, holders are still counted
	l.SetConcurrency(0)
	require.NoError(t, l.Acquire())
	require.Equal(t, 2, l.Status().Running)
	require.Equal(t, 0, l.Status().Config.Concurrency)
}

func TestLimiterRate(t *testing.T) {
	l := NewLimiter(LimitConfig{WriteMBPS: 1})
	ctx := context.Background()

	// the initial burst is free
	start := time.Now()
	require.NoError(t, l.WaitWrite(ctx, 1<<20))
	require.Less(t, time.Since(start), 500*time.Millisecond)

	ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	require.Error(t, l.WaitWrite(ctx, 2<<20))
}

func TestCountLimitParallel(t *testing.T) {
	cl := NewCountLimit(10)
	var (
		wg       sync.WaitGroup
		acquired int32
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cl.Acquire() == nil {
				atomic.AddInt32(&acquired, 1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(10), acquired)
	require.Equal(t, 10, cl.Running())
}
