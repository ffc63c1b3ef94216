package broker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"flow-node/internal/config"
)

type orderClient interface {
	CreateMarketOrder(symbol string, side string, amount float64, options ...ccxt.CreateMarketOrderOptions) (ccxt.Order, error)
}

type metricsRecorder interface {
	RecordOrderSubmitted(side string)
	RecordOrderFailure()
}

// Options 控制订单提交行为。
type Options struct {
	TimeInForce string
	Slippage    float64
	MaxRetry    int
}

// Client 将节点的买卖指令转化为券商市价单。每笔提交在后台异步执行，
// Submit 立即返回撤销句柄；终态结果只汇入批次追踪器，不做单笔回传。
type Client struct {
	client  orderClient
	tracker *BatchTracker
	opts    Options
	metrics metricsRecorder
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewClient 创建执行客户端。metrics 可以为 nil。
func NewClient(client orderClient, tracker *BatchTracker, opts Options, metrics metricsRecorder, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxRetry <= 0 {
		opts.MaxRetry = 3
	}
	return &Client{
		client:  client,
		tracker: tracker,
		opts:    opts,
		metrics: metrics,
		logger:  logger,
	}
}

// Submit 登记并异步提交一笔市价单，立即返回该笔提交的撤销句柄。
func (c *Client) Submit(ctx context.Context, side OrderSide, symbol string, quantity int64) *Handle {
	c.tracker.Register()

	subCtx, cancel := context.WithCancel(ctx)
	handle := NewHandle(symbol, side, cancel)

	if c.metrics != nil {
		c.metrics.RecordOrderSubmitted(string(side))
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()

		err := c.submitOrder(subCtx, side, symbol, quantity)
		if err != nil {
			if c.metrics != nil {
				c.metrics.RecordOrderFailure()
			}
			c.logger.Error("订单提交终态失败",
				zap.String("symbol", symbol),
				zap.String("side", string(side)),
				zap.Int64("quantity", quantity),
				zap.Error(err),
			)
		} else {
			c.logger.Info("订单提交成功",
				zap.String("symbol", symbol),
				zap.String("side", string(side)),
				zap.Int64("quantity", quantity),
			)
		}
		c.tracker.Done(err)
	}()

	return handle
}

// Wait 阻塞直到全部在途提交结束，供退出时排空后台任务。
func (c *Client) Wait() {
	c.wg.Wait()
}

func (c *Client) submitOrder(ctx context.Context, side OrderSide, symbol string, quantity int64) error {
	params := map[string]interface{}{}
	if c.opts.TimeInForce != "" {
		params["timeInForce"] = strings.ToLower(c.opts.TimeInForce)
	}
	if c.opts.Slippage > 0 {
		params["slippage"] = fmt.Sprintf("%.6f", c.opts.Slippage)
	}

	var opts []ccxt.CreateMarketOrderOptions
	if len(params) > 0 {
		opts = append(opts, ccxt.WithCreateMarketOrderParams(params))
	}

	var err error
	for attempt := 1; attempt <= c.opts.MaxRetry; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		_, err = c.client.CreateMarketOrder(symbol, string(side), float64(quantity), opts...)
		if err == nil {
			return nil
		}

		if !IsRetryable(err) {
			return err
		}

		wait := time.Duration(attempt) * time.Second
		c.logger.Warn("下单失败，准备重试",
			zap.String("symbol", symbol),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("broker: 重试后仍下单失败: %w", err)
}

// NewTradeClient 根据配置创建券商侧 ccxt 客户端。
func NewTradeClient(cfg config.BrokerConfig) (*ccxt.Alpaca, error) {
	userConfig := map[string]interface{}{
		"enableRateLimit": true,
	}
	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}
	client := ccxt.NewAlpaca(userConfig)
	if cfg.UseSandbox {
		client.SetSandboxMode(true)
	}
	return client, nil
}
