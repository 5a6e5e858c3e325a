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
	"errors"
	"sync/atomic"

	"golang.org/x/time/rate"
)

var ErrLimitExceeded = errors.New("limit exceeded")

type (
	// Limiter bounds the operations in flight and the byte rate of one
	// subvolume. Zero values in LimitConfig mean unlimited.
	Limiter interface {
		Acquire() error
		Release()
		WaitRead(ctx context.Context, n int) error
		WaitWrite(ctx context.Context, n int) error
		SetConcurrency(value uint32)
		Status() Status
	}
	// CountLimit bounds the holders of Acquire, a zero limit is unlimited.
	CountLimit interface {
		Running() int
		Limit() uint32
		Acquire() error
		Release()
		SetLimit(limit uint32)
	}
	LimitConfig struct {
		Concurrency int `json:"concurrency"`
		ReadMBPS    int `json:"read_mbps"`
		WriteMBPS   int `json:"write_mbps"`
	}
	Status struct {
		Config  LimitConfig `json:"config"`
		Running int         `json:"running"`
	}
)

type limiter struct {
	countLimit CountLimit
	rateReader *rate.Limiter
	rateWriter *rate.Limiter
	config     LimitConfig
}

func NewLimiter(cfg LimitConfig) Limiter {
	mb := 1 << 20
	l := &limiter{config: cfg, countLimit: NewCountLimit(cfg.Concurrency)}
	if cfg.ReadMBPS > 0 {
		l.rateReader = rate.NewLimiter(rate.Limit(cfg.ReadMBPS*mb), cfg.ReadMBPS*mb)
	}
	if cfg.WriteMBPS > 0 {
		l.rateWriter = rate.NewLimiter(rate.Limit(cfg.WriteMBPS*mb), cfg.WriteMBPS*mb)
	}
	return l
}

func (l *limiter) Acquire() error {
	return l.countLimit.Acquire()
}

func (l *limiter) Release() {
	l.countLimit.Release()
}

func (l *limiter) WaitRead(ctx context.Context, n int) error {
	return waitN(ctx, l.rateReader, n)
}

func (l *limiter) WaitWrite(ctx context.Context, n int) error {
	return waitN(ctx, l.rateWriter, n)
}

// waitN waits for n tokens in burst sized steps, WaitN rejects a single
// request larger than the burst.
func waitN(ctx context.Context, r *rate.Limiter, n int) error {
	if r == nil {
		return nil
	}
	burst := r.Burst()
	for n > 0 {
		step := n
		if step > burst {
			step = burst
		}
		if err := r.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}

func (l *limiter) SetConcurrency(value uint32) {
	l.countLimit.SetLimit(value)
}

func (l *limiter) Status() Status {
	st := Status{Config: l.config, Running: l.countLimit.Running()}
	st.Config.Concurrency = int(l.countLimit.Limit())
	return st
}

const minusOne = ^uint32(0)

type countLimit struct {
	limit   uint32
	current uint32
}

// NewCountLimit returns limiter with concurrent n
func NewCountLimit(n int) CountLimit {
	if n < 0 {
		n = 0
	}
	return &countLimit{limit: uint32(n)}
}

func (l *countLimit) Running() int {
	return int(atomic.LoadUint32(&l.current))
}

func (l *countLimit) Limit() uint32 {
	return atomic.LoadUint32(&l.limit)
}

func (l *countLimit) Acquire() error {
	current := atomic.AddUint32(&l.current, 1)
	if limit := atomic.LoadUint32(&l.limit); limit > 0 && current > limit {
		atomic.AddUint32(&l.current, minusOne)
		return ErrLimitExceeded
	}
	return nil
}

func (l *countLimit) Release() {
	atomic.AddUint32(&l.current, minusOne)
}

func (l *countLimit) SetLimit(limit uint32) {
	atomic.StoreUint32(&l.limit, limit)
}
