package dispatch

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"flow-node/internal/broker"
	"flow-node/internal/decision"
)

type submitter interface {
	Submit(ctx context.Context, side broker.OrderSide, symbol string, quantity int64) *broker.Handle
}

type batch interface {
	Seal()
}

// Dispatcher 将一次决策集合展开为逐标的的异步下单请求。
// 循环本身是同步的，但不等待任何一笔提交的结果，也不聚合单笔成败，
// 批次成败只由执行子系统的聚合状态给出。
type Dispatcher struct {
	client submitter
	batch  batch
	logger *zap.Logger

	mu   sync.Mutex
	last *broker.Handle
}

// NewDispatcher 创建派发器。
func NewDispatcher(client submitter, batch batch, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		client: client,
		batch:  batch,
		logger: logger,
	}
}

// Dispatch 展开决策集合，返回实际发出的请求数。
// nil 集合视为空批次，不做任何提交。buy/sell 各发出一笔市价单，
// hold 与未知动作一律跳过。批内只保留最后一笔提交的撤销句柄，
// 先前的句柄直接丢弃且不会被撤销。
func (d *Dispatcher) Dispatch(ctx context.Context, set *decision.Set) int {
	if set == nil {
		d.logger.Debug("决策集合为空，跳过派发")
		return 0
	}

	submitted := 0
	for _, symbol := range set.Symbols() {
		dec, ok := set.Get(symbol)
		if !ok {
			continue
		}

		var side broker.OrderSide
		switch dec.Action {
		case decision.ActionBuy:
			side = broker.OrderSideBuy
		case decision.ActionSell:
			side = broker.OrderSideSell
		case decision.ActionHold:
			continue
		default:
			// 未知动作等同 hold，不发出请求
			continue
		}

		handle := d.client.Submit(ctx, side, symbol, dec.Quantity)

		d.mu.Lock()
		d.last = handle
		d.mu.Unlock()

		submitted++
	}

	d.batch.Seal()

	d.logger.Info("批次派发完成",
		zap.Int("symbols", set.Len()),
		zap.Int("submitted", submitted),
	)

	return submitted
}

// LastHandle 返回最近一笔提交的撤销句柄，未派发过则为 nil。
func (d *Dispatcher) LastHandle() *broker.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// CancelLast 撤销最近一笔提交。同一批次中更早发出的在途请求不受影响。
func (d *Dispatcher) CancelLast() {
	d.LastHandle().Cancel()
}
