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

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// chatNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	chatNamespace = "chat"

	routerSubsystem  = "router"
	gatewaySubsystem = "gateway"

	// 以下为当前使用的通用标签名。
	opLabelName        = "op"
	codeLabelName      = "code"
	eventLabelName     = "event"
	directionLabelName = "direction"
)

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

var (
	// buckets 为请求耗时直方图的桶划分，单位为毫秒。
	// 实际桶分布为：
	// [0.0625 0.125 0.25 0.5 1 2 4 8 16 32 64 128 256 512 1024 2048]
	buckets = prometheus.ExponentialBuckets(0.0625, 2, 16)

	RouterRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: chatNamespace,
			Subsystem: routerSubsystem,
			Name:      "requests_total",
			Help:      "number of requests processed by the router, labeled by op",
		}, []string{opLabelName})

	RouterRequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: chatNamespace,
			Subsystem: routerSubsystem,
			Name:      "request_latency",
			Help:      "time spent inside one router turn, in milliseconds",
			Buckets:   buckets,
		}, []string{opLabelName})

	RouterUserErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: chatNamespace,
			Subsystem: routerSubsystem,
			Name:      "user_errors_total",
			Help:      "number of coded errors delivered back to the offending session",
		}, []string{codeLabelName})

	RouterIllegalErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: chatNamespace,
			Subsystem: routerSubsystem,
			Name:      "illegal_errors_total",
			Help:      "number of calling convention violations recorded server side",
		}, []string{codeLabelName})

	RouterDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: chatNamespace,
			Subsystem: routerSubsystem,
			Name:      "deliveries_total",
			Help:      "number of events handed to sessions, labeled by event type",
		}, []string{eventLabelName})

	RouterChannels = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: chatNamespace,
			Subsystem: routerSubsystem,
			Name:      "channels",
			Help:      "number of channels currently in the channel table",
		})

	RouterConsumers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: chatNamespace,
			Subsystem: routerSubsystem,
			Name:      "consumers",
			Help:      "number of consumers currently registered",
		})

	metricRegisterer prometheus.Registerer
	registerOnce     sync.Once
)

// GetRegisterer 返回全局 Prometheus Registerer。
// 如果尚未通过 Register 显式设置，则返回 prometheus.DefaultRegisterer。
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register 注册当前定义的所有指标，只有第一次调用生效。
func Register(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(RouterRequests)
		r.MustRegister(RouterRequestLatency)
		r.MustRegister(RouterUserErrors)
		r.MustRegister(RouterIllegalErrors)
		r.MustRegister(RouterDeliveries)
		r.MustRegister(RouterChannels)
		r.MustRegister(RouterConsumers)
		registerGatewayMetrics(r)
		metricRegisterer = r
	})
}
