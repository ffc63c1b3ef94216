package broker

import (
	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"
)

// DryRunExchange 以日志代替真实下单，用于模拟模式。
// 批次追踪与句柄行为和实盘完全一致。
type DryRunExchange struct {
	logger *zap.Logger
}

// NewDryRunExchange 创建模拟券商端。
func NewDryRunExchange(logger *zap.Logger) *DryRunExchange {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DryRunExchange{logger: logger}
}

func (d *DryRunExchange) CreateMarketOrder(symbol string, side string, amount float64, options ...ccxt.CreateMarketOrderOptions) (ccxt.Order, error) {
	d.logger.Info("模拟下单",
		zap.String("symbol", symbol),
		zap.String("side", side),
		zap.Float64("amount", amount),
	)
	return ccxt.Order{}, nil
}
