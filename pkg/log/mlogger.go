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

package log

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
)

var _namedRateLimiters sync.Map // groupName -> *rate.Limiter

// MLogger 是 zap.Logger 的封装类型。
// 在原有 Logger 的基础上，增加了按分组限流的日志能力。
type MLogger struct {
	*zap.Logger
	rl atomic.Pointer[rate.Limiter]
}

// With 封装 zap.Logger 的 With 方法，并返回新的 MLogger 实例。
// 新实例携带额外的字段，不影响原 Logger；限流分组会被继承。
func (l *MLogger) With(fields ...zap.Field) *MLogger {
	nl := &MLogger{
		Logger: l.Logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return NewLazyWith(core, fields)
		})),
	}
	nl.rl.Store(l.rl.Load())
	return nl
}

// WithRateGroup 为当前 Logger 绑定一个命名限流器。
// 相同 groupName 共享同一个限流器，后一次调用会更新其速率。
func (l *MLogger) WithRateGroup(groupName string, eventsPerSecond float64, burst int) *MLogger {
	rl := rate.NewLimiter(rate.Limit(eventsPerSecond), burst)
	actual, loaded := _namedRateLimiters.LoadOrStore(groupName, rl)
	if loaded {
		rl = actual.(*rate.Limiter)
		rl.SetLimit(rate.Limit(eventsPerSecond))
		rl.SetBurst(burst)
	}
	l.rl.Store(rl)
	return l
}

func (l *MLogger) allow() bool {
	rl := l.rl.Load()
	return rl == nil || rl.Allow()
}

// RatedDebug 在 Debug 级别输出限流日志，返回是否真正输出。
func (l *MLogger) RatedDebug(msg string, fields ...zap.Field) bool {
	if l.allow() {
		l.WithOptions(zap.AddCallerSkip(1)).Debug(msg, fields...)
		return true
	}
	return false
}

// RatedInfo 在 Info 级别输出限流日志，返回是否真正输出。
func (l *MLogger) RatedInfo(msg string, fields ...zap.Field) bool {
	if l.allow() {
		l.WithOptions(zap.AddCallerSkip(1)).Info(msg, fields...)
		return true
	}
	return false
}

// RatedWarn 在 Warn 级别输出限流日志，返回是否真正输出。
func (l *MLogger) RatedWarn(msg string, fields ...zap.Field) bool {
	if l.allow() {
		l.WithOptions(zap.AddCallerSkip(1)).Warn(msg, fields...)
		return true
	}
	return false
}
