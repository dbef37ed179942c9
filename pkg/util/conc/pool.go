// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package conc

import (
	"runtime"

	"github.com/cockroachdb/errors"
	ants "github.com/panjf2000/ants/v2"

	"github.com/lk2023060901/danmu-garden-chat/pkg/util/merr"
)

// Pool 是对 ants.Pool 的封装。
type Pool struct {
	inner *ants.Pool
	opt   *poolOption
}

// NewPool 创建一个容量为 cap 的协程池。
func NewPool(cap int, opts ...PoolOption) *Pool {
	opt := defaultPoolOption()
	for _, o := range opts {
		o(opt)
	}

	pool, err := ants.NewPool(cap, opt.antsOptions()...)
	if err != nil {
		panic(err)
	}

	return &Pool{
		inner: pool,
		opt:   opt,
	}
}

// NewDefaultPool 创建一个容量为 CPU 核数两倍的协程池。
func NewDefaultPool(opts ...PoolOption) *Pool {
	return NewPool(runtime.GOMAXPROCS(0)*2, opts...)
}

// Submit 提交一个任务。
// 非阻塞模式下协程池已满时返回 ErrServiceTooManyRequests。
func (pool *Pool) Submit(fn func()) error {
	err := pool.inner.Submit(func() {
		if pool.opt.preHandler != nil {
			pool.opt.preHandler()
		}
		fn()
	})
	if errors.Is(err, ants.ErrPoolOverload) {
		return merr.WrapErrTooManyRequests(int32(pool.Cap()), "conc pool overload")
	}
	if errors.Is(err, ants.ErrPoolClosed) {
		return merr.WrapErrServiceUnavailable("conc pool closed")
	}
	return err
}

// Cap 返回协程池的最大容量。
func (pool *Pool) Cap() int {
	return pool.inner.Cap()
}

// Running 返回正在运行的 worker 数量。
func (pool *Pool) Running() int {
	return pool.inner.Running()
}

// Free 返回空闲的 worker 数量。
func (pool *Pool) Free() int {
	return pool.inner.Free()
}

func (pool *Pool) Release() {
	pool.inner.Release()
}
