package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/mohamadbazzy/Agentic-Rag/internal/advisor"
	"github.com/mohamadbazzy/Agentic-Rag/internal/agent"
	"github.com/mohamadbazzy/Agentic-Rag/internal/config"
	"github.com/mohamadbazzy/Agentic-Rag/internal/metrics"
	"github.com/mohamadbazzy/Agentic-Rag/internal/namespace"
	"github.com/mohamadbazzy/Agentic-Rag/internal/store"
)

type stubProcessor struct{}

func (stubProcessor) Process(_ context.Context, text, _ string) (*advisor.Result, error) {
	return &advisor.Result{
		Content:    "answer to " + text,
		Department: advisor.DeptGeneral.Label(),
		Status:     advisor.StatusSuccess,
	}, nil
}

func (stubProcessor) ResetSession(context.Context, string) error { return nil }
func (stubProcessor) Close()                                     {}

func newTestApp(t *testing.T) *App {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "advisor.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	return &App{
		Config: &config.Config{
			Port:           "0",
			AppEnv:         "production",
			FrontendURL:    "https://advisor.example.edu",
			MetricsEnabled: true,
			RateLimit:      config.RateLimitConfig{RequestsPerWindow: 10, WindowDuration: time.Minute},
			SSE: config.SSEConfig{
				MaxRequestBodySize: 1 << 12,
				RetryDelay:         time.Second,
				KeepaliveInterval:  time.Hour,
			},
			Calendar: config.CalendarConfig{TimeZone: "Asia/Beirut"},
		},
		Repo:     repo,
		Metrics:  metrics.NewCollector(MetricsNamespace),
		Registry: namespace.NewRegistry(namespace.DefaultConfig()),
		Agent:    agent.NewServiceWithProcessor(stubProcessor{}, agent.DefaultConfig()),
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	s, err := NewServer(newTestApp(t), slog.Default())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(s.close)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestServerRoutes(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health: %v", err)
	}
	var health map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || health["status"] != "healthy" {
		t.Fatalf("health = %d %v", resp.StatusCode, health)
	}

	resp, err = http.Post(ts.URL+"/api/query", "application/json", strings.NewReader(`{"text":"what is MSFEA?"}`))
	if err != nil {
		t.Fatalf("POST /api/query: %v", err)
	}
	var res advisor.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("query status = %d", resp.StatusCode)
	}
	if res.Content != "answer to what is MSFEA?" {
		t.Errorf("content = %q", res.Content)
	}
	if len(resp.Cookies()) == 0 {
		t.Error("expected identity cookie on API response")
	}

	resp, err = http.Post(ts.URL+"/api/debug/route", "application/json", strings.NewReader(`{"text":"x"}`))
	if err != nil {
		t.Fatalf("POST /api/debug/route: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("debug route outside development = %d, want not mounted", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `msfea_advisor_http_requests_total{method="POST",route="/api/query",status="200"} 1`) {
		t.Errorf("metrics missing query request:\n%s", body)
	}
}

func TestServerServesChatPage(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "MSFEA Academic Advisor") {
		t.Fatalf("GET / = %d", resp.StatusCode)
	}
}

func TestHealthServer(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv, hs := newHealthServer()
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client := healthpb.NewHealthClient(conn)

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status = %v, want SERVING", resp.GetStatus())
	}

	hs.Shutdown()
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check after shutdown: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status after shutdown = %v, want NOT_SERVING", resp.GetStatus())
	}
}

func TestAllowedOrigins(t *testing.T) {
	if got := allowedOrigins(""); len(got) != 1 || got[0] != "*" {
		t.Errorf("allowedOrigins(\"\") = %v", got)
	}
	if got := allowedOrigins("https://a.example"); len(got) != 1 || got[0] != "https://a.example" {
		t.Errorf("allowedOrigins = %v", got)
	}
}
