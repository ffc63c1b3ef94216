package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"flow-node/internal/decision"
)

var (
	// ErrOutputAlreadySet 表示上游输出已写入，节点观察到的决策集合不可变更。
	ErrOutputAlreadySet = errors.New("pipeline: 上游输出已存在，不允许覆盖")
)

// Flow 保存节点可见的共享管线状态：各代理状态与上游决策输出。
// 状态由上游管线推送写入，节点侧只读。
type Flow struct {
	mu       sync.RWMutex
	agents   map[string]AgentState
	output   *decision.Envelope
	onChange func()
	logger   *zap.Logger
}

// NewFlow 创建空的管线状态容器。
func NewFlow(logger *zap.Logger) *Flow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flow{
		agents: make(map[string]AgentState),
		logger: logger,
	}
}

// OnChange 注册状态变更回调，用于向编辑器侧推送快照。
func (f *Flow) OnChange(fn func()) {
	f.mu.Lock()
	f.onChange = fn
	f.mu.Unlock()
}

// SetAgentState 记录某个上游代理的状态变更。
func (f *Flow) SetAgentState(agent string, state AgentState) error {
	agent = strings.TrimSpace(agent)
	if agent == "" {
		return errors.New("pipeline: agent 标识不能为空")
	}
	if !state.Known() {
		return fmt.Errorf("pipeline: 代理状态取值非法: %s", state)
	}

	f.mu.Lock()
	f.agents[agent] = state
	fn := f.onChange
	f.mu.Unlock()

	f.logger.Debug("代理状态已更新",
		zap.String("agent", agent),
		zap.String("state", string(state)),
	)

	if fn != nil {
		fn()
	}
	return nil
}

// AgentStatuses 返回当前全部代理状态的副本。
func (f *Flow) AgentStatuses() map[string]AgentState {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[string]AgentState, len(f.agents))
	for agent, state := range f.agents {
		out[agent] = state
	}
	return out
}

// SetOutput 写入上游决策输出。输出一经写入即不可变。
func (f *Flow) SetOutput(env *decision.Envelope) error {
	if env == nil {
		return errors.New("pipeline: 上游输出不能为空")
	}

	f.mu.Lock()
	if f.output != nil {
		f.mu.Unlock()
		return ErrOutputAlreadySet
	}
	f.output = env
	fn := f.onChange
	f.mu.Unlock()

	f.logger.Info("上游输出已写入", zap.Int("symbols", env.Decisions.Len()))

	if fn != nil {
		fn()
	}
	return nil
}

// Output 返回上游决策输出，上游未完成时为 nil。
func (f *Flow) Output() *decision.Envelope {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.output
}

// Notify 手动触发一次变更回调，供执行子系统在批次状态翻转后使用。
func (f *Flow) Notify() {
	f.mu.RLock()
	fn := f.onChange
	f.mu.RUnlock()
	if fn != nil {
		fn()
	}
}
