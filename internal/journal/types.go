package journal

import (
	"time"

	"flow-node/internal/pipeline"
)

// EventType 表示节点事件类型。
type EventType string

const (
	EventAgentState  EventType = "agent_state"
	EventOutput      EventType = "pipeline_output"
	EventDispatch    EventType = "dispatch"
	EventBatchStatus EventType = "batch_status"
	EventError       EventType = "error"
)

// Event 封装通用节点事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// AgentStatePayload 记录代理状态变更。
type AgentStatePayload struct {
	Agent string              `json:"agent"`
	State pipeline.AgentState `json:"state"`
}

// OutputPayload 记录上游输出到达。
type OutputPayload struct {
	Symbols []string `json:"symbols"`
}

// DispatchPayload 记录一次批次派发。
type DispatchPayload struct {
	Symbols   []string `json:"symbols"`
	Submitted int      `json:"submitted"`
}

// BatchStatusPayload 记录批次聚合状态翻转。
type BatchStatusPayload struct {
	Status pipeline.BatchStatus `json:"status"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}
