package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"flow-node/internal/broker"
	"flow-node/internal/config"
	"flow-node/internal/decision"
	"flow-node/internal/dispatch"
	"flow-node/internal/journal"
	"flow-node/internal/metrics"
	"flow-node/internal/node"
	"flow-node/internal/pipeline"
	"flow-node/internal/server"
	"flow-node/internal/store"
)

// App 聚合核心依赖并驱动节点生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 完成组件装配并阻塞运行，直到收到退出信号。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("输出节点已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("node_id", a.cfg.App.NodeID),
		zap.String("broker", a.cfg.Broker.Name),
		zap.Bool("dry_run", a.cfg.Execution.DryRun),
	)

	journalSvc, err := journal.NewService(a.store, a.logger)
	if err != nil {
		return fmt.Errorf("初始化事件日志失败: %w", err)
	}

	rec := metrics.New()
	flow := pipeline.NewFlow(a.logger)
	tracker := broker.NewBatchTracker()
	view := stateView{flow: flow, tracker: tracker}

	brokerClient, err := a.newBrokerClient(tracker, rec)
	if err != nil {
		return err
	}

	dispatcher := dispatch.NewDispatcher(brokerClient, tracker, a.logger)
	nodeCore := node.New(view, dispatcher, journalSvc, rec, a.logger)

	hub := server.NewHub(a.logger)
	srv := server.New(nodeCore, flow, view, journalSvc, rec, hub, a.logger)

	flow.OnChange(srv.BroadcastState)
	tracker.OnResolve(func(status pipeline.BatchStatus) {
		a.logger.Info("订单批次进入终态", zap.String("status", string(status)))
		journalSvc.RecordBatchStatus(context.Background(), status)
		srv.BroadcastState()
	})

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return srv.Run(groupCtx, a.cfg.Server.Port, a.cfg.Server.ShutdownTimeout)
	})

	err = group.Wait()

	// 退出前排空在途提交，避免后台任务被硬切断
	brokerClient.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("节点异常退出: %w", err)
	}
	a.logger.Info("节点收到退出信号，正在停止")
	return nil
}

func (a *App) newBrokerClient(tracker *broker.BatchTracker, rec *metrics.Recorder) (*broker.Client, error) {
	opts := broker.Options{
		TimeInForce: a.cfg.Execution.TimeInForce,
		Slippage:    a.cfg.Execution.Slippage,
		MaxRetry:    a.cfg.Execution.MaxRetry,
	}

	if a.cfg.Execution.DryRun {
		a.logger.Info("执行端处于模拟模式")
		return broker.NewClient(broker.NewDryRunExchange(a.logger), tracker, opts, rec, a.logger), nil
	}

	tradeClient, err := broker.NewTradeClient(a.cfg.Broker)
	if err != nil {
		return nil, fmt.Errorf("初始化券商客户端失败: %w", err)
	}
	return broker.NewClient(tradeClient, tracker, opts, rec, a.logger), nil
}

// stateView 把管线状态容器与批次追踪器拼成节点核心的只读视图。
type stateView struct {
	flow    *pipeline.Flow
	tracker *broker.BatchTracker
}

func (v stateView) AgentStatuses() map[string]pipeline.AgentState {
	return v.flow.AgentStatuses()
}

func (v stateView) Output() *decision.Envelope {
	return v.flow.Output()
}

func (v stateView) BatchStatus() pipeline.BatchStatus {
	return v.tracker.Status()
}
