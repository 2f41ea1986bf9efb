package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/mohamadbazzy/Agentic-Rag/internal/agent"
	"github.com/mohamadbazzy/Agentic-Rag/internal/api"
	"github.com/mohamadbazzy/Agentic-Rag/internal/calendar"
	"github.com/mohamadbazzy/Agentic-Rag/internal/domain"
	"github.com/mohamadbazzy/Agentic-Rag/internal/identity"
	"github.com/mohamadbazzy/Agentic-Rag/internal/janitor"
	"github.com/mohamadbazzy/Agentic-Rag/internal/middleware"
	"github.com/mohamadbazzy/Agentic-Rag/internal/realtime"
	"github.com/mohamadbazzy/Agentic-Rag/web"
)

const shutdownTimeout = 10 * time.Second

// Server is the HTTP surface of an App.
type Server struct {
	app      *App
	router   chi.Router
	sessions *realtime.SessionManager
	agent    *agent.Handler
	convLog  agent.ConversationLogger
}

// NewServer builds the router and every HTTP handler.
func NewServer(a *App, logger *slog.Logger) (*Server, error) {
	cfg := a.Config

	convLog, err := agent.NewConversationLogger(cfg.ConversationLog, logger)
	if err != nil {
		return nil, fmt.Errorf("conversation logger: %w", err)
	}

	var cal api.CalendarService
	if cfg.CalendarEnabled() {
		gc, err := calendar.NewGoogleClient(cfg.Calendar)
		if err != nil {
			_ = convLog.Close()
			return nil, err
		}
		cal = gc
	} else {
		slog.Info("Google Calendar disabled (GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET not set)")
	}

	s := &Server{
		app:      a,
		sessions: realtime.NewSessionManager(),
		agent:    agent.NewHandler(a.Agent, convLog, cfg),
		convLog:  convLog,
	}

	base := api.NewHandler(a.Repo, cfg)
	healthHandler := api.NewHealthHandler(base, a.Registry, a.Catalog)
	wsHandler := realtime.NewChatHandler(a.Repo, a.Agent, s.sessions, convLog, cfg.FrontendURL, cfg.IsDevelopment())

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.Metrics(a.Metrics))
	r.Use(middleware.CORS(allowedOrigins(cfg.FrontendURL)))

	// Public routes.
	healthHandler.RegisterHealth(r)
	if a.Metrics != nil {
		r.Handle("/metrics", a.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(a.Repo, cfg.IsDevelopment()))

		api.NewUserHandler(base).RegisterRoutes(r)
		api.NewCalendarHandler(base, cal).RegisterRoutes(r)
		if api.NewDebugHandler(base, a.Advisor).RegisterRoutes(r) {
			slog.Warn("Debug routes enabled")
		}
		s.agent.RegisterRoutes(r)
		r.Get("/ws/chat", wsHandler.ServeHTTP)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	s.router = r
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// expireSession releases what the server holds for a conversation the
// janitor removed.
func (s *Server) expireSession(sess *domain.ConversationSession) {
	tab := agent.ClientSession(sess.UserID, sess.SessionID)
	s.sessions.CloseSession(sess.UserID, tab)
	s.agent.ForgetSession(sess.UserID, tab)
}

// Run serves until ctx is done, then shuts down gracefully. The session
// janitor and the optional gRPC health server run alongside.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.app.Config
	defer s.close()

	s.app.WatchNamespaces(ctx)

	janitor.StartTTLWorker(ctx, s.app.Repo, cfg.SessionTTL, janitor.DefaultInterval, s.expireSession)
	slog.Info("TTL worker started", "session_ttl", cfg.SessionTTL)

	var (
		grpcSrv *grpc.Server
		hs      *health.Server
	)
	if cfg.GRPCHealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			return fmt.Errorf("listen grpc health on %s: %w", cfg.GRPCHealthAddr, err)
		}
		grpcSrv, hs = newHealthServer()
		go func() {
			slog.Info("gRPC health server listening", "addr", lis.Addr().String())
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	// SSE connections require long timeouts (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down gracefully...")
	if hs != nil {
		hs.Shutdown()
		grpcSrv.GracefulStop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func (s *Server) close() {
	s.agent.Close()
	if err := s.convLog.Close(); err != nil {
		slog.Error("Failed to close conversation logger", "error", err)
	}
}

// newHealthServer serves the standard grpc.health.v1 service, reporting
// SERVING for the whole server.
func newHealthServer() (*grpc.Server, *health.Server) {
	srv := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

func allowedOrigins(frontendURL string) []string {
	if frontendURL == "" {
		return []string{"*"}
	}
	return []string{frontendURL}
}
