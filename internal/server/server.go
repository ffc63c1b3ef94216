package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"flow-node/internal/decision"
	"flow-node/internal/journal"
	"flow-node/internal/metrics"
	"flow-node/internal/node"
	"flow-node/internal/pipeline"
)

// Server 对编辑器与上游管线暴露节点的 HTTP 接口：
// 就绪轮询、输出查看、执行触发、上游状态推送、事件回放与指标。
type Server struct {
	node    *node.Node
	flow    *pipeline.Flow
	view    node.StateView
	journal *journal.Service
	metrics *metrics.Recorder
	hub     *Hub
	logger  *zap.Logger
}

// New 创建服务实例。journal 与 metrics 可以为 nil。
func New(n *node.Node, flow *pipeline.Flow, view node.StateView, jnl *journal.Service, rec *metrics.Recorder, hub *Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		node:    n,
		flow:    flow,
		view:    view,
		journal: jnl,
		metrics: rec,
		hub:     hub,
		logger:  logger,
	}
}

// Handler 返回完整路由。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/node/readiness", s.handleReadiness)
	mux.HandleFunc("/node/output", s.handleOutput)
	mux.HandleFunc("/node/execute", s.handleExecute)
	mux.HandleFunc("/node/events", s.handleEvents)
	mux.HandleFunc("/pipeline/agents", s.handleAgentPush)
	mux.HandleFunc("/pipeline/output", s.handleOutputPush)
	mux.Handle("/metrics", promhttp.Handler())
	if s.hub != nil {
		mux.Handle("/node/ws", s.hub)
	}
	return mux
}

// Run 启动 HTTP 服务并阻塞直到 ctx 取消后完成优雅退出。
func (s *Server) Run(ctx context.Context, port int, shutdownTimeout time.Duration) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	s.logger.Info("节点接口已启动", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if s.hub != nil {
		s.hub.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("关闭节点接口失败: %w", err)
	}
	return <-errCh
}

// StateSnapshot 为推送给编辑器的节点状态快照。
type StateSnapshot struct {
	Readiness   node.Readiness                 `json:"readiness"`
	Phase       node.Phase                     `json:"phase"`
	Affordances node.Affordances               `json:"affordances"`
	BatchStatus pipeline.BatchStatus           `json:"batch_status"`
	Agents      map[string]pipeline.AgentState `json:"agents"`
}

func (s *Server) snapshot() StateSnapshot {
	return StateSnapshot{
		Readiness:   s.node.Readiness(),
		Phase:       s.node.Phase(),
		Affordances: s.node.Affordances(),
		BatchStatus: s.view.BatchStatus(),
		Agents:      s.view.AgentStatuses(),
	}
}

// BroadcastState 向全部 websocket 连接推送当前状态快照。
func (s *Server) BroadcastState() {
	if s.hub == nil {
		return
	}
	payload, err := json.Marshal(s.snapshot())
	if err != nil {
		s.logger.Warn("序列化状态快照失败", zap.Error(err))
		return
	}
	s.hub.Broadcast(payload)
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	env := s.node.Output()
	if env == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "上游输出尚未就绪"})
		return
	}
	s.writeJSON(w, http.StatusOK, env)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// 提交在响应返回后继续在后台执行，派发上下文不能随请求一起取消
	if err := s.node.Execute(context.WithoutCancel(r.Context())); err != nil {
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	s.BroadcastState()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "dispatched"})
}

func (s *Server) handleAgentPush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Agent string              `json:"agent"`
		State pipeline.AgentState `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("解析请求失败: %v", err)})
		return
	}

	if err := s.flow.SetAgentState(req.Agent, req.State); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if s.journal != nil {
		s.journal.RecordAgentState(r.Context(), req.Agent, req.State)
	}
	if s.metrics != nil {
		s.metrics.SetAgentsInProgress(countInProgress(s.flow.AgentStatuses()))
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOutputPush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("读取请求失败: %v", err)})
		return
	}

	env, err := decision.ParseEnvelope(raw)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := s.flow.SetOutput(env); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, pipeline.ErrOutputAlreadySet) {
			status = http.StatusConflict
		}
		s.writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	if s.journal != nil {
		s.journal.RecordOutput(r.Context(), env.Decisions.Symbols())
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.journal == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "事件日志未启用"})
		return
	}

	q := r.URL.Query()
	limit := 200
	if qs := q.Get("limit"); qs != "" {
		if v, err := strconv.Atoi(qs); err == nil && v > 0 {
			if v > 1000 {
				v = 1000
			}
			limit = v
		}
	}

	eventType := journal.EventType("")
	if typ := strings.TrimSpace(q.Get("type")); typ != "" {
		eventType = journal.EventType(strings.ToLower(typ))
	}

	events, err := s.journal.ListEvents(r.Context(), eventType, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("写入响应失败", zap.Error(err))
	}
}

func countInProgress(agents map[string]pipeline.AgentState) int {
	n := 0
	for _, state := range agents {
		if state == pipeline.AgentInProgress {
			n++
		}
	}
	return n
}
