package broker

import "context"

// OrderSide 表示下单方向。
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Handle 表示一次已发出订单的撤销句柄。撤销只作用于该笔提交，
// 不影响同一批次中先前已发出的请求。
type Handle struct {
	symbol string
	side   OrderSide
	cancel context.CancelFunc
}

// NewHandle 创建撤销句柄。
func NewHandle(symbol string, side OrderSide, cancel context.CancelFunc) *Handle {
	return &Handle{symbol: symbol, side: side, cancel: cancel}
}

// Symbol 返回句柄对应的标的。
func (h *Handle) Symbol() string {
	if h == nil {
		return ""
	}
	return h.symbol
}

// Side 返回句柄对应的下单方向。
func (h *Handle) Side() OrderSide {
	if h == nil {
		return ""
	}
	return h.side
}

// Cancel 撤销本次提交。对 nil 句柄调用是安全的空操作。
func (h *Handle) Cancel() {
	if h == nil || h.cancel == nil {
		return
	}
	h.cancel()
}
