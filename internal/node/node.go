package node

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"flow-node/internal/decision"
	"flow-node/internal/dispatch"
)

var (
	// ErrUpstreamBusy 表示仍有上游代理在处理，属于前置条件未满足而非故障。
	ErrUpstreamBusy = errors.New("node: 上游代理仍在处理，无法执行")
	// ErrNoOutput 表示上游决策输出尚未就绪。
	ErrNoOutput = errors.New("node: 上游输出尚未就绪")
	// ErrAlreadyDispatched 表示批次已派发，执行入口为一次性。
	ErrAlreadyDispatched = errors.New("node: 订单批次已派发")
	// ErrBatchTerminal 表示批次已进入终态，不支持重新执行。
	ErrBatchTerminal = errors.New("node: 订单批次已进入终态")
)

type auditLog interface {
	RecordDispatch(ctx context.Context, symbols []string, submitted int)
}

type metricsRecorder interface {
	RecordDispatch()
	RecordExecuteRejected(reason string)
}

// Node 为决策管线末端的输出/执行节点核心：对外暴露就绪评估与
// 一次性的批次派发入口，其余一切（渲染、弹窗、上游代理）都在节点之外。
type Node struct {
	view       StateView
	dispatcher *dispatch.Dispatcher
	audit      auditLog
	metrics    metricsRecorder
	logger     *zap.Logger

	mu         sync.Mutex
	dispatched bool
}

// New 创建节点核心。audit 与 metrics 可以为 nil。
func New(view StateView, dispatcher *dispatch.Dispatcher, audit auditLog, metrics metricsRecorder, logger *zap.Logger) *Node {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Node{
		view:       view,
		dispatcher: dispatcher,
		audit:      audit,
		metrics:    metrics,
		logger:     logger,
	}
}

// Readiness 返回当前就绪标志。
func (n *Node) Readiness() Readiness {
	return Evaluate(n.view)
}

// Phase 返回执行入口当前所处阶段。
func (n *Node) Phase() Phase {
	return phaseOf(Evaluate(n.view), n.isDispatched())
}

// Affordances 返回呈现层控件状态。
func (n *Node) Affordances() Affordances {
	r := Evaluate(n.view)
	return affordancesOf(r, phaseOf(r, n.isDispatched()))
}

// Output 返回上游输出载荷，未就绪时为 nil。
func (n *Node) Output() *decision.Envelope {
	return n.view.Output()
}

// Execute 由用户触发，把当前决策集合整批派发给执行子系统。
// 就绪守卫不通过时返回对应的哨兵错误；派发成功与否不在此处体现，
// 只能通过批次聚合状态观察。
func (n *Node) Execute(ctx context.Context) error {
	r := Evaluate(n.view)

	var guard error
	switch {
	case r.IsOrderComplete || r.IsOrderError:
		guard = ErrBatchTerminal
	case r.IsProcessing:
		guard = ErrUpstreamBusy
	case !r.IsOutputAvailable:
		guard = ErrNoOutput
	}
	if guard != nil {
		n.reject(guard)
		return guard
	}

	n.mu.Lock()
	if n.dispatched {
		n.mu.Unlock()
		n.reject(ErrAlreadyDispatched)
		return ErrAlreadyDispatched
	}
	n.dispatched = true
	n.mu.Unlock()

	env := n.view.Output()
	submitted := n.dispatcher.Dispatch(ctx, env.Decisions)

	if n.metrics != nil {
		n.metrics.RecordDispatch()
	}
	if n.audit != nil {
		n.audit.RecordDispatch(ctx, env.Decisions.Symbols(), submitted)
	}

	n.logger.Info("执行请求已派发",
		zap.Int("symbols", env.Decisions.Len()),
		zap.Int("submitted", submitted),
	)
	return nil
}

// CancelLast 撤销最近一笔提交，受限于单句柄保留策略。
func (n *Node) CancelLast() {
	n.dispatcher.CancelLast()
}

func (n *Node) isDispatched() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dispatched
}

func (n *Node) reject(guard error) {
	if n.metrics != nil {
		n.metrics.RecordExecuteRejected(rejectReason(guard))
	}
	n.logger.Warn("执行请求被拒绝", zap.Error(guard))
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrUpstreamBusy):
		return "upstream_busy"
	case errors.Is(err, ErrNoOutput):
		return "no_output"
	case errors.Is(err, ErrAlreadyDispatched):
		return "already_dispatched"
	case errors.Is(err, ErrBatchTerminal):
		return "batch_terminal"
	default:
		return "unknown"
	}
}
