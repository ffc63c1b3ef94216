package node

import (
	"flow-node/internal/decision"
	"flow-node/internal/pipeline"
)

// StateView 为节点观察共享管线状态的只读视图。
// 代理状态与决策输出由上游管线持有，批次状态由执行子系统持有，
// 节点只读不写。
type StateView interface {
	AgentStatuses() map[string]pipeline.AgentState
	Output() *decision.Envelope
	BatchStatus() pipeline.BatchStatus
}

// Readiness 汇总节点当前的就绪标志。
type Readiness struct {
	IsProcessing      bool `json:"is_processing"`
	IsOutputAvailable bool `json:"is_output_available"`
	IsOrderComplete   bool `json:"is_order_complete"`
	IsOrderError      bool `json:"is_order_error"`
}

// Evaluate 根据共享状态计算就绪标志。纯函数，每次轮询重算。
func Evaluate(view StateView) Readiness {
	var r Readiness

	for _, state := range view.AgentStatuses() {
		if state == pipeline.AgentInProgress {
			r.IsProcessing = true
			break
		}
	}

	if env := view.Output(); env != nil && env.Decisions != nil {
		r.IsOutputAvailable = true
	}

	switch view.BatchStatus() {
	case pipeline.BatchComplete:
		r.IsOrderComplete = true
	case pipeline.BatchError:
		r.IsOrderError = true
	}

	return r
}

// Phase 表示执行入口的阶段，COMPLETE 与 ERROR 为终态，不支持回退。
type Phase string

const (
	PhaseProcessing     Phase = "processing"
	PhaseAwaitingOutput Phase = "awaiting_output"
	PhaseReady          Phase = "ready"
	PhaseDispatching    Phase = "dispatching"
	PhaseComplete       Phase = "complete"
	PhaseError          Phase = "error"
)

// Affordances 描述呈现层可用的控件状态，本包只推导不渲染。
type Affordances struct {
	ViewOutput     bool `json:"view_output"`
	Execute        bool `json:"execute"`
	ExecuteVisible bool `json:"execute_visible"`
}

func phaseOf(r Readiness, dispatched bool) Phase {
	switch {
	case r.IsOrderError:
		return PhaseError
	case r.IsOrderComplete:
		return PhaseComplete
	case r.IsProcessing:
		return PhaseProcessing
	case !r.IsOutputAvailable:
		return PhaseAwaitingOutput
	case dispatched:
		return PhaseDispatching
	default:
		return PhaseReady
	}
}

func affordancesOf(r Readiness, phase Phase) Affordances {
	return Affordances{
		ViewOutput:     r.IsOutputAvailable && !r.IsProcessing,
		Execute:        phase == PhaseReady,
		ExecuteVisible: r.IsOutputAvailable,
	}
}
