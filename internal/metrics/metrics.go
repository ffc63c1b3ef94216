package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder 基于 Prometheus 暴露节点运行指标。
type Recorder struct {
	ordersSubmitted  *prometheus.CounterVec
	orderFailures    prometheus.Counter
	dispatches       prometheus.Counter
	executeRejected  *prometheus.CounterVec
	agentsInProgress prometheus.Gauge
}

// New 创建指标记录器并完成注册。
func New() *Recorder {
	return &Recorder{
		ordersSubmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flow_node_orders_submitted_total",
				Help: "Total number of orders handed to the execution service",
			},
			[]string{"side"},
		),
		orderFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "flow_node_order_failures_total",
				Help: "Total number of submissions that reached a terminal failure",
			},
		),
		dispatches: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "flow_node_dispatches_total",
				Help: "Total number of batch dispatches triggered",
			},
		),
		executeRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flow_node_execute_rejected_total",
				Help: "Total number of execute triggers rejected by readiness guards",
			},
			[]string{"reason"},
		),
		agentsInProgress: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "flow_node_agents_in_progress",
				Help: "Number of upstream agents currently in progress",
			},
		),
	}
}

// RecordOrderSubmitted 记录一笔已发出的订单。
func (r *Recorder) RecordOrderSubmitted(side string) {
	r.ordersSubmitted.WithLabelValues(side).Inc()
}

// RecordOrderFailure 记录一笔终态失败的提交。
func (r *Recorder) RecordOrderFailure() {
	r.orderFailures.Inc()
}

// RecordDispatch 记录一次批次派发。
func (r *Recorder) RecordDispatch() {
	r.dispatches.Inc()
}

// RecordExecuteRejected 记录一次被就绪守卫拒绝的执行请求。
func (r *Recorder) RecordExecuteRejected(reason string) {
	r.executeRejected.WithLabelValues(reason).Inc()
}

// SetAgentsInProgress 更新处理中的代理数量。
func (r *Recorder) SetAgentsInProgress(n int) {
	r.agentsInProgress.Set(float64(n))
}
