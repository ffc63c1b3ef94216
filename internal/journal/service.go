package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"flow-node/internal/pipeline"
	"flow-node/internal/store"
)

// Service 负责持久化节点事件，供编辑器侧回放节点生命周期。
// 记录是尽力而为的：写入失败只打日志，不影响派发主流程。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService 初始化事件日志服务，创建所需表结构。
func NewService(store *store.Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("journal: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:     store.DB(),
		logger: logger,
	}

	if err := s.initSchema(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS node_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_node_events_type ON node_events(event_type);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("journal: 初始化表失败: %w", err)
	}
	return nil
}

// Record 写入单个事件。
func (s *Service) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("journal: 序列化事件失败: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO node_events (event_type, payload, created_at) VALUES (?, ?, ?)`,
		string(event.Type), string(payload), event.Timestamp.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("journal: 写入事件失败: %w", err)
	}

	return nil
}

// RecordAgentState 记录代理状态变更。
func (s *Service) RecordAgentState(ctx context.Context, agent string, state pipeline.AgentState) {
	if err := s.Record(ctx, Event{
		Type:      EventAgentState,
		Timestamp: time.Now().UTC(),
		Payload:   AgentStatePayload{Agent: agent, State: state},
	}); err != nil {
		s.logger.Warn("记录代理状态事件失败", zap.Error(err))
	}
}

// RecordOutput 记录上游输出到达。
func (s *Service) RecordOutput(ctx context.Context, symbols []string) {
	if err := s.Record(ctx, Event{
		Type:      EventOutput,
		Timestamp: time.Now().UTC(),
		Payload:   OutputPayload{Symbols: symbols},
	}); err != nil {
		s.logger.Warn("记录上游输出事件失败", zap.Error(err))
	}
}

// RecordDispatch 记录批次派发。
func (s *Service) RecordDispatch(ctx context.Context, symbols []string, submitted int) {
	if err := s.Record(ctx, Event{
		Type:      EventDispatch,
		Timestamp: time.Now().UTC(),
		Payload:   DispatchPayload{Symbols: symbols, Submitted: submitted},
	}); err != nil {
		s.logger.Warn("记录派发事件失败", zap.Error(err))
	}
}

// RecordBatchStatus 记录批次聚合状态翻转。
func (s *Service) RecordBatchStatus(ctx context.Context, status pipeline.BatchStatus) {
	if err := s.Record(ctx, Event{
		Type:      EventBatchStatus,
		Timestamp: time.Now().UTC(),
		Payload:   BatchStatusPayload{Status: status},
	}); err != nil {
		s.logger.Warn("记录批次状态事件失败", zap.Error(err))
	}
}

// RecordError 记录异常。
func (s *Service) RecordError(ctx context.Context, msg string, err error, ctxMap map[string]interface{}) {
	payload := ErrorPayload{
		Message: msg,
		Error:   err.Error(),
		Context: ctxMap,
	}
	if recErr := s.Record(ctx, Event{
		Type:      EventError,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}); recErr != nil {
		s.logger.Warn("记录异常事件失败", zap.Error(recErr))
	}
}

// ListEvents 按类型检索最近事件。
func (s *Service) ListEvents(ctx context.Context, eventType EventType, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT event_type, payload, created_at FROM node_events`
	args := make([]interface{}, 0, 2)
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: 查询事件失败: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var (
			typ     string
			payload string
			created string
		)
		if scanErr := rows.Scan(&typ, &payload, &created); scanErr != nil {
			return nil, fmt.Errorf("journal: 解析事件失败: %w", scanErr)
		}

		ts, parseErr := time.Parse(time.RFC3339, created)
		if parseErr != nil {
			ts = time.Now().UTC()
		}

		events = append(events, Event{
			Type:      EventType(typ),
			Timestamp: ts,
			Payload:   json.RawMessage(payload),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: 读取事件失败: %w", err)
	}

	return events, nil
}
