package decision

import (
	"errors"
	"fmt"
)

// Action 表示单个标的的执行动作。
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Known 判断动作是否为已知取值。
func (a Action) Known() bool {
	switch a {
	case ActionBuy, ActionSell, ActionHold:
		return true
	default:
		return false
	}
}

// Decision 表示上游管线针对单个标的给出的指令。
type Decision struct {
	Action     Action  `json:"action"`
	Quantity   int64   `json:"quantity"`
	Confidence float64 `json:"confidence,omitempty"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Validate 校验单条指令的合法性。动作只接受规范小写形式，
// 保证校验通过的指令与派发时的动作匹配完全一致。
func (d Decision) Validate() error {
	if d.Action == "" {
		return errors.New("action 不能为空")
	}
	if !d.Action.Known() {
		return fmt.Errorf("action 字段取值非法: %s", d.Action)
	}
	if d.Quantity < 0 {
		return fmt.Errorf("quantity 不能为负: %d", d.Quantity)
	}
	if d.Confidence < 0 || d.Confidence > 100 {
		return fmt.Errorf("confidence 必须位于 [0,100]，当前为 %f", d.Confidence)
	}
	return nil
}
