package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/neurocloudstack/neurocloud-heal/internal/detector"
	"github.com/neurocloudstack/neurocloud-heal/internal/healing"
	"github.com/neurocloudstack/neurocloud-heal/internal/models"
	"github.com/neurocloudstack/neurocloud-heal/internal/monitor"
	"github.com/neurocloudstack/neurocloud-heal/internal/simulator"
	"github.com/neurocloudstack/neurocloud-heal/internal/store"
)

type fixture struct {
	handlers *Handlers
	router   *mux.Router
	mon      *monitor.Monitor
	orch     *healing.Orchestrator
	history  *simulator.History
	blobs    *store.MemoryStore
}

func newFixture(t *testing.T, train bool) *fixture {
	t.Helper()
	ctx := context.Background()

	det := detector.New(detector.DefaultConfig())
	orch := healing.NewOrchestrator(nil, det, nil, nil, nil, nil, nil)

	blobs := store.NewMemoryStore()
	history, err := simulator.NewHistory(ctx, blobs, 200)
	if err != nil {
		t.Fatalf("NewHistory: %v", err)
	}

	gen := simulator.NewGenerator(21)
	if train {
		corpus := make([]models.MetricSample, 0, 60)
		for i := 0; i < 60; i++ {
			sample := gen.Next()
			corpus = append(corpus, sample)
			if err := history.Append(ctx, sample); err != nil {
				t.Fatalf("Append: %v", err)
			}
		}
		if err := orch.Train(corpus); err != nil {
			t.Fatalf("Train: %v", err)
		}
	}

	mon := monitor.New(orch, gen, history, monitor.Options{StartEnabled: true})
	h := NewHandlers(nil, mon, orch, history, blobs, healing.DefaultThresholds(),
		RestartPolicy{AutoRestart: true, MaxRestartAttempts: 3})

	router := mux.NewRouter()
	h.Register(router)
	return &fixture{handlers: h, router: router, mon: mon, orch: orch, history: history, blobs: blobs}
}

func (f *fixture) do(t *testing.T, method, path string, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("%s %s: invalid JSON response %q: %v", method, path, rec.Body.String(), err)
	}
	return rec, payload
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, false)
	rec, payload := f.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if payload["status"] != "healthy" {
		t.Errorf("status field = %v", payload["status"])
	}
}

// brokenStore reports an unreachable backend from Ping.
type brokenStore struct {
	*store.MemoryStore
}

func (b *brokenStore) Ping(context.Context) error {
	return errors.New("backend unreachable")
}

func TestHealthEndpointReportsStoreOutage(t *testing.T) {
	f := newFixture(t, false)
	f.handlers.blobs = &brokenStore{MemoryStore: f.blobs}

	rec, payload := f.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if payload["status"] != "degraded" {
		t.Errorf("status field = %v, want degraded", payload["status"])
	}
	if payload["error"] == "" {
		t.Error("error field missing")
	}
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t, true)

	_, payload := f.do(t, http.MethodGet, "/api/status", "")
	if payload["success"] != true {
		t.Fatal("success = false")
	}
	if payload["status"] != "healthy" {
		t.Errorf("initial status = %v, want healthy", payload["status"])
	}
	if payload["model_trained"] != true {
		t.Error("model_trained = false after training")
	}
	if payload["monitoring"] != true {
		t.Error("monitoring = false")
	}
	if payload["auto_restart"] != true || payload["max_restart_attempts"] != float64(3) {
		t.Errorf("restart policy not surfaced: %v / %v",
			payload["auto_restart"], payload["max_restart_attempts"])
	}

	// A critical sample flips the state.
	if _, _, err := f.mon.InjectAnomaly(context.Background(), simulator.AnomalyCPU); err != nil {
		t.Fatalf("InjectAnomaly: %v", err)
	}
	_, payload = f.do(t, http.MethodGet, "/api/status", "")
	if payload["status"] != "critical" {
		t.Errorf("status after cpu injection = %v, want critical", payload["status"])
	}
}

func TestCurrentMetricsEndpoint(t *testing.T) {
	f := newFixture(t, true)

	_, payload := f.do(t, http.MethodGet, "/api/metrics/current", "")
	if payload["data"] != nil {
		t.Errorf("data before any evaluation = %v, want null", payload["data"])
	}

	sample := models.NewMetricSample(time.Now())
	sample.Set(models.MetricCPUUsage, 41)
	sample.Set(models.MetricMemoryUsage, 52)
	sample.Set(models.MetricDiskUsage, 61)
	sample.Set(models.MetricNetworkThroughput, 95)
	sample.Set(models.MetricResponseTime, 205)
	sample.Set(models.MetricActiveConnections, 110)
	sample.Set(models.MetricErrorRate, 1)
	if _, err := f.mon.Process(context.Background(), sample); err != nil {
		t.Fatalf("Process: %v", err)
	}

	_, payload = f.do(t, http.MethodGet, "/api/metrics/current", "")
	data, ok := payload["data"].(map[string]any)
	if !ok {
		t.Fatalf("data = %v", payload["data"])
	}
	if data["cpu_usage"] != float64(41) {
		t.Errorf("cpu_usage = %v", data["cpu_usage"])
	}
}

func TestMetricsHistoryEndpoint(t *testing.T) {
	f := newFixture(t, true)
	_, payload := f.do(t, http.MethodGet, "/api/metrics/history", "")
	data, ok := payload["data"].([]any)
	if !ok {
		t.Fatalf("data = %v", payload["data"])
	}
	if len(data) != 60 {
		t.Errorf("history length = %d, want 60", len(data))
	}
}

func TestToggleMonitoringEndpoint(t *testing.T) {
	f := newFixture(t, false)

	_, payload := f.do(t, http.MethodPost, "/api/monitoring/toggle", "")
	if payload["monitoring"] != false {
		t.Errorf("monitoring after first toggle = %v, want false", payload["monitoring"])
	}
	_, payload = f.do(t, http.MethodPost, "/api/monitoring/toggle", "")
	if payload["monitoring"] != true {
		t.Errorf("monitoring after second toggle = %v, want true", payload["monitoring"])
	}
}

func TestInjectAnomalyEndpoint(t *testing.T) {
	f := newFixture(t, true)

	rec, payload := f.do(t, http.MethodPost, "/api/anomaly/inject", `{"type":"response_time"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %v", rec.Code, payload)
	}
	metricsPayload, ok := payload["metrics"].(map[string]any)
	if !ok {
		t.Fatalf("metrics = %v", payload["metrics"])
	}
	if rt := metricsPayload["response_time"].(float64); rt < 4000 {
		t.Errorf("injected response_time = %v, want >= 4000", rt)
	}

	// Empty body defaults to a cpu anomaly.
	rec, payload = f.do(t, http.MethodPost, "/api/anomaly/inject", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("default inject status = %d", rec.Code)
	}
	metricsPayload = payload["metrics"].(map[string]any)
	if cpu := metricsPayload["cpu_usage"].(float64); cpu < 95 {
		t.Errorf("default injected cpu = %v, want >= 95", cpu)
	}

	rec, payload = f.do(t, http.MethodPost, "/api/anomaly/inject", `{"type":"disk"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown kind status = %d", rec.Code)
	}
	if payload["success"] != false {
		t.Error("success should be false for unknown kind")
	}
}

func TestTrainEndpoint(t *testing.T) {
	f := newFixture(t, false)

	// Too little history to train on.
	rec, payload := f.do(t, http.MethodPost, "/api/model/train", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("train with empty history: status = %d body = %v", rec.Code, payload)
	}

	gen := simulator.NewGenerator(33)
	ctx := context.Background()
	for i := 0; i < 60; i++ {
		if err := f.history.Append(ctx, gen.Next()); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	rec, payload = f.do(t, http.MethodPost, "/api/model/train", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("train status = %d body = %v", rec.Code, payload)
	}
	if payload["samples"] != float64(60) {
		t.Errorf("samples = %v", payload["samples"])
	}
	if !f.orch.Trained() {
		t.Error("orchestrator not trained after endpoint call")
	}
	if _, err := f.blobs.Load(ctx, store.KeyModelSnapshot); errors.Is(err, store.ErrNotFound) {
		t.Error("model snapshot not persisted")
	}
}

func TestEvaluateSampleEndpoint(t *testing.T) {
	f := newFixture(t, true)

	body := `{"cpu_usage":41,"memory_usage":52,"disk_usage":61,"network_throughput":95,` +
		`"response_time":205,"active_connections":110,"error_rate":1}`
	rec, payload := f.do(t, http.MethodPost, "/api/sample", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %v", rec.Code, payload)
	}
	verdict, ok := payload["verdict"].(map[string]any)
	if !ok {
		t.Fatalf("verdict = %v", payload["verdict"])
	}
	if verdict["anomaly"] != false {
		t.Errorf("healthy sample anomaly = %v", verdict["anomaly"])
	}

	rec, _ = f.do(t, http.MethodPost, "/api/sample", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad payload status = %d", rec.Code)
	}
}

func TestEvaluateSampleBeforeTraining(t *testing.T) {
	f := newFixture(t, false)
	rec, payload := f.do(t, http.MethodPost, "/api/sample", `{"cpu_usage":41}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d body = %v", rec.Code, payload)
	}
}

func TestLogsAndHealingHistoryEndpoints(t *testing.T) {
	f := newFixture(t, true)

	if _, _, err := f.mon.InjectAnomaly(context.Background(), simulator.AnomalyCPU); err != nil {
		t.Fatalf("InjectAnomaly: %v", err)
	}

	_, payload := f.do(t, http.MethodGet, "/api/logs", "")
	logsPayload, ok := payload["data"].([]any)
	if !ok || len(logsPayload) == 0 {
		t.Fatalf("logs data = %v", payload["data"])
	}

	_, payload = f.do(t, http.MethodGet, "/api/healing/history", "")
	if payload["success"] != true {
		t.Fatal("healing history success = false")
	}
}

func TestStreamEndpoint(t *testing.T) {
	f := newFixture(t, true)

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/metrics/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the handler a moment to register its subscription.
	time.Sleep(100 * time.Millisecond)

	if _, _, err := f.mon.InjectAnomaly(context.Background(), simulator.AnomalyMemory); err != nil {
		t.Fatalf("InjectAnomaly: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var update monitor.StreamUpdate
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if mem := update.Sample.Get(models.MetricMemoryUsage); mem < 90 {
		t.Errorf("streamed memory = %.1f, want >= 90", mem)
	}
}
