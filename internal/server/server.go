package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"runtime"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/harshror77/Chaudhary-Estate/internal/realtime"
	"github.com/harshror77/Chaudhary-Estate/internal/server/handlers"
	"github.com/harshror77/Chaudhary-Estate/internal/server/middleware"
	"github.com/harshror77/Chaudhary-Estate/pkg/config"
	"github.com/harshror77/Chaudhary-Estate/pkg/state"
	"github.com/harshror77/Chaudhary-Estate/pkg/transport"
)

type App struct {
	logger       *slog.Logger
	stateManager state.Manager
	gateway      *realtime.Gateway
	wg           sync.WaitGroup
	http         *http.Server
	config       *config.Config

	ctx context.Context
}

func NewApp(
	logger *slog.Logger,
	rootCtx context.Context,
	cfg *config.Config,
	stateManager state.Manager,
	gateway *realtime.Gateway,
	messages *handlers.MessageHandler,
	notifications *handlers.NotificationHandler,
) *App {
	app := &App{
		logger:       logger,
		stateManager: stateManager,
		gateway:      gateway,
		config:       cfg,
		ctx:          rootCtx,
	}

	// Create a cycler function that closes over the stateManager and logger.
	connCycler := func(userID string) {
		oldest, found := stateManager.FindOldestUserConnection(userID)
		if found {
			logger.Info("Cycling session: closing oldest connection", slog.String("userID", userID), slog.String("connID", oldest.ID.String()))
			oldest.Transport.Close(errors.New("connection cycled by new connection"))
		}
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.Server.CORSOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Method(http.MethodGet, "/ws",
		middleware.Chain(http.HandlerFunc(app.upgradeHandler),
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(logger),
			middleware.NewHandshakeAuthMiddleware(logger, cfg.Server.Auth.JWTSecret),
			middleware.NewSessionLimiter(
				logger,
				stateManager.GetUserConnectionCount,
				connCycler,
				cfg.Sessions,
			),
		),
	)
	r.Get("/health", app.healthHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequestMetadataMiddleware())
		r.Use(middleware.NewRequestLogger(logger))
		r.Use(middleware.NewAuthMiddleware(logger, cfg.Server.Auth.JWTSecret))
		r.Route("/messages", messages.Routes)
		r.Route("/notifications", notifications.Routes)
	})

	app.http = &http.Server{Addr: cfg.Server.Address, Handler: r, BaseContext: func(l net.Listener) context.Context {
		return app.ctx
	}}

	return app
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP shutdown error", slog.Any("error", err))
	}

	// Give live connections a moment to drain; their contexts descend from
	// the root context, which is already cancelled by now.
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		a.logger.Warn("Timed out waiting for connections to close")
	}

	a.logger.Info("Server stopped")
	return nil
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.String("userID", reqMeta.UserID),
	)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(a.config.Server.CORSOrigin),
	})
	if err != nil {
		connLogger.Warn("WebSocket upgrade failed", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		a.ctx,
		&a.wg,
		wsConn,
		transport.ConnectionConfig{
			ReadTimeout:  a.config.Transport.ReadTimeout,
			PingInterval: a.config.Transport.PingInterval,
		},
		a.gateway.HandleMessage,
		func(connID uuid.UUID, err error) {
			a.gateway.HandleDisconnect(connID)
		},
		connLogger,
	)

	if _, err := a.gateway.HandleConnect(conn, reqMeta.IP, reqMeta.UserID); err != nil {
		connLogger.Error("Failed to register connection", slog.Any("error", err))
		wsConn.Close(websocket.StatusInternalError, "registration failed")
		return
	}

	conn.Run()
}

// healthHandler reports the current liveness numbers of the realtime layer.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]int{
		"goroutines":  runtime.NumGoroutine(),
		"connections": len(a.stateManager.AllConnections()),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// originPatterns converts the configured CORS origin into the host
// pattern coder/websocket matches handshakes against.
func originPatterns(origin string) []string {
	if origin == "" || origin == "*" {
		return []string{"*"}
	}
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		return []string{u.Host}
	}
	return []string{origin}
}
