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
	"github.com/prometheus/client_golang/prometheus"
)

var (
	GatewayConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: chatNamespace,
		Subsystem: gatewaySubsystem,
		Name:      "connections",
		Help:      "当前已建立的 WebSocket 连接数",
	})

	GatewayRejectedConnections = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: chatNamespace,
		Subsystem: gatewaySubsystem,
		Name:      "rejected_connections_total",
		Help:      "因连接数已满或名字非法而被拒绝的连接次数",
	})

	GatewayFrames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: chatNamespace,
		Subsystem: gatewaySubsystem,
		Name:      "frames_total",
		Help:      "收发的文本帧数量，按方向区分",
	}, []string{directionLabelName})

	GatewayFrameErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: chatNamespace,
		Subsystem: gatewaySubsystem,
		Name:      "frame_errors_total",
		Help:      "无法解码或无法处理的入站帧数量，按错误码区分",
	}, []string{codeLabelName})

	GatewayDroppedEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: chatNamespace,
		Subsystem: gatewaySubsystem,
		Name:      "dropped_events_total",
		Help:      "由于发送队列已满而被丢弃的事件条数",
	})
)

func registerGatewayMetrics(r prometheus.Registerer) {
	r.MustRegister(GatewayConnections)
	r.MustRegister(GatewayRejectedConnections)
	r.MustRegister(GatewayFrames)
	r.MustRegister(GatewayFrameErrors)
	r.MustRegister(GatewayDroppedEvents)
}
