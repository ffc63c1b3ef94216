package pipeline

// AgentState 表示上游代理的运行状态。
type AgentState string

const (
	AgentIdle       AgentState = "idle"
	AgentInProgress AgentState = "in_progress"
	AgentComplete   AgentState = "complete"
	AgentError      AgentState = "error"
)

// Known 判断状态是否为已知取值。
func (s AgentState) Known() bool {
	switch s {
	case AgentIdle, AgentInProgress, AgentComplete, AgentError:
		return true
	default:
		return false
	}
}

// BatchStatus 表示整批订单的聚合状态，由执行子系统维护。
type BatchStatus string

const (
	BatchNotStarted BatchStatus = "not_started"
	BatchComplete   BatchStatus = "complete"
	BatchError      BatchStatus = "error"
)
