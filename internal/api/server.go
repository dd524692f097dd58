package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/websocket"

	"battle-loadtest/internal/chaos"
	"battle-loadtest/internal/events"
	"battle-loadtest/internal/logger"
	"battle-loadtest/internal/metrics"
	"battle-loadtest/internal/scenario"
)

// maxResults は保持する実行結果の上限
const maxResults = 50

// Server はAPIサーバー
type Server struct {
	addr     string
	endpoint string

	registry *prometheus.Registry
	exporter *metrics.Exporter
	bus      *events.Bus

	mu        sync.RWMutex
	running   bool
	engine    *scenario.Engine
	config    scenario.Config
	cancel    context.CancelFunc
	results   []*scenario.Result
	wsClients map[*websocket.Conn]bool

	server *http.Server
}

// NewServer は新しいAPIサーバーを作成する。endpoint はシナリオの接続先
func NewServer(addr, endpoint string) (*Server, error) {
	if endpoint == "" {
		endpoint = scenario.DefaultEndpoint
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	exporter, err := metrics.NewExporter(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	return &Server{
		addr:      addr,
		endpoint:  endpoint,
		registry:  registry,
		exporter:  exporter,
		bus:       events.NewBus(),
		wsClients: make(map[*websocket.Conn]bool),
	}, nil
}

// Handler はルーティング済みの http.Handler を返す
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/metrics", s.handleMetrics)
	mux.HandleFunc("/api/results", s.handleResults)
	mux.HandleFunc("/api/scenario/start", s.handleScenarioStart)
	mux.HandleFunc("/api/scenario/stop", s.handleScenarioStop)
	mux.HandleFunc("/api/presets", s.handlePresets)
	mux.HandleFunc("/api/suites", s.handleSuites)

	// Prometheus
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	// WebSocket
	mux.Handle("/ws", websocket.Handler(s.handleWebSocket))

	return mux
}

// Start はサーバーを開始する
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.startBackground(ctx)

	logger.Info("", "API Server starting on http://%s (target %s)", s.addr, s.endpoint)

	go func() {
		<-ctx.Done()
		s.stopScenario()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// startBackground はイベント転送とステータス配信を開始する
func (s *Server) startBackground(ctx context.Context) {
	go s.forwardEvents(ctx)
	go s.broadcastLoop(ctx)
}

// StatusResponse はステータスレスポンス
type StatusResponse struct {
	Running      bool              `json:"running"`
	ScenarioName string            `json:"scenario_name,omitempty"`
	Endpoint     string            `json:"endpoint"`
	Completed    int               `json:"completed"`
	LastVerdict  string            `json:"last_verdict,omitempty"`
	Metrics      *metrics.Snapshot `json:"metrics,omitempty"`
	Network      *chaos.Stats      `json:"network,omitempty"`
	Events       events.Stats      `json:"events"`
}

func (s *Server) status() StatusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := StatusResponse{
		Running:   s.running,
		Endpoint:  s.endpoint,
		Completed: len(s.results),
		Events:    s.bus.Stats(),
	}
	if s.config.Name != "" {
		resp.ScenarioName = s.config.Name
	}
	if n := len(s.results); n > 0 {
		resp.LastVerdict = s.results[n-1].Verdict.String()
	}
	if s.engine != nil {
		resp.Metrics = s.engine.Metrics()
		resp.Network = s.engine.NetworkStats()
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.status())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	engine := s.engine
	s.mu.RUnlock()

	if engine == nil {
		s.writeJSON(w, metrics.Snapshot{})
		return
	}
	if snapshot := engine.Metrics(); snapshot != nil {
		s.writeJSON(w, snapshot)
		return
	}
	s.writeJSON(w, metrics.Snapshot{})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	results := make([]*scenario.Result, len(s.results))
	copy(results, s.results)
	s.mu.RUnlock()

	s.writeJSON(w, results)
}

// ScenarioRequest はシナリオ開始リクエスト
type ScenarioRequest struct {
	Preset  string `json:"preset"`
	Players int    `json:"players,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

func (s *Server) handleScenarioStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// プリセット取得
	config, ok := scenario.GetPreset(req.Preset)
	if !ok {
		http.Error(w, fmt.Sprintf("Unknown preset: %s", req.Preset), http.StatusBadRequest)
		return
	}

	// オーバーライド
	if req.Players > 0 {
		config.Load.Players = req.Players
	}
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid timeout: %v", err), http.StatusBadRequest)
			return
		}
		config.Load.Timeout = d
	}
	if err := config.Validate(); err != nil {
		http.Error(w, fmt.Sprintf("Invalid scenario: %v", err), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		http.Error(w, "Scenario already running", http.StatusConflict)
		return
	}

	engine := scenario.New(config, s.endpoint)
	engine.SetEventBus(s.bus)
	engine.SetExporter(s.exporter)

	ctx, cancel := context.WithCancel(context.Background())
	s.config = config
	s.engine = engine
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	// バックグラウンドで実行
	go func() {
		defer cancel()
		result, err := engine.Run(ctx)

		s.mu.Lock()
		s.running = false
		s.cancel = nil
		if err == nil {
			s.results = append(s.results, result)
			if len(s.results) > maxResults {
				s.results = s.results[len(s.results)-maxResults:]
			}
		}
		s.mu.Unlock()

		if err != nil {
			logger.Error(config.Name, "Scenario failed: %v", err)
			return
		}
		logger.Info(config.Name, "Scenario completed: %s", result.Verdict)

		s.broadcast(map[string]interface{}{
			"type":   "scenario_result",
			"result": result,
		})
	}()

	s.writeJSONStatus(w, http.StatusAccepted, map[string]string{"status": "started", "scenario": config.Name})
}

func (s *Server) handleScenarioStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.stopScenario() {
		http.Error(w, "No scenario running", http.StatusBadRequest)
		return
	}
	s.writeJSON(w, map[string]string{"status": "stop requested"})
}

// stopScenario は実行中のシナリオをキャンセルする
func (s *Server) stopScenario() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

// PresetInfo はプリセット情報
type PresetInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Kind        string `json:"kind"`
	Pattern     string `json:"pattern"`
	Players     int    `json:"players"`
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	names := scenario.ListPresets()
	presets := make([]PresetInfo, 0, len(names))
	for _, name := range names {
		c, _ := scenario.GetPreset(name)
		presets = append(presets, PresetInfo{
			Name:        name,
			Description: c.Description,
			Kind:        string(c.Kind),
			Pattern:     string(c.Load.Pattern),
			Players:     c.Load.Players,
		})
	}

	s.writeJSON(w, presets)
}

func (s *Server) handleSuites(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	suites := make(map[string][]string)
	for _, name := range scenario.ListSuites() {
		configs, _ := scenario.GetSuite(name)
		for _, c := range configs {
			suites[name] = append(suites[name], c.Name)
		}
	}
	s.writeJSON(w, suites)
}

// WebSocket handling
func (s *Server) handleWebSocket(ws *websocket.Conn) {
	s.mu.Lock()
	s.wsClients[ws] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.wsClients, ws)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	// Keep connection alive
	for {
		var msg string
		if err := websocket.Message.Receive(ws, &msg); err != nil {
			break
		}
	}
}

func (s *Server) clientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.wsClients)
}

func (s *Server) broadcast(data interface{}) {
	s.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(s.wsClients))
	for ws := range s.wsClients {
		clients = append(clients, ws)
	}
	s.mu.RUnlock()

	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}

	for _, ws := range clients {
		_ = websocket.Message.Send(ws, string(jsonData))
	}
}

// forwardEvents はイベントバスのイベントを WebSocket クライアントへ流す
func (s *Server) forwardEvents(ctx context.Context) {
	// 個々のプレイヤー結果は件数が多いのでステータス配信に任せる
	ch := s.bus.Subscribe(
		events.EventScenarioStart,
		events.EventScenarioComplete,
		events.EventBurstStart,
		events.EventProfileSwitch,
	)
	defer s.bus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			s.broadcast(map[string]interface{}{
				"type":  "event",
				"event": event,
			})
		}
	}
}

func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := s.status()
			if !status.Running {
				continue
			}
			s.broadcast(map[string]interface{}{
				"type":   "status",
				"status": status,
			})
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	s.writeJSONStatus(w, http.StatusOK, data)
}

func (s *Server) writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("", "Failed to encode JSON: %v", err)
	}
}
