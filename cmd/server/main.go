// Command server runs the workflow execution engine's HTTP/WebSocket
// control surface.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dibenedetto/meshade/internal/config"
	"github.com/dibenedetto/meshade/internal/logger"
	"github.com/dibenedetto/meshade/pkg/engine"
	"github.com/dibenedetto/meshade/pkg/eventbus"
	"github.com/dibenedetto/meshade/pkg/executor"
	"github.com/dibenedetto/meshade/pkg/executor/builtin"
	"github.com/dibenedetto/meshade/pkg/registry"
	rest "github.com/dibenedetto/meshade/pkg/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	appLogger := logger.New(cfg.Logging)
	logger.SetDefault(appLogger)

	appLogger.Info("starting meshade server",
		"version", "1.0.0",
		"port", cfg.Server.Port,
	)

	manager := executor.NewManager()
	if err := builtin.RegisterBuiltins(manager, cfg.Engine.EventHistoryCapacity); err != nil {
		appLogger.Error("failed to register builtin node kinds", "error", err)
		os.Exit(1)
	}
	appLogger.Info("registered node kinds", "types", manager.List())

	bus := eventbus.New(cfg.Engine.EventHistoryCapacity, appLogger)
	wsHub := eventbus.NewWebSocketHub(appLogger)

	reg := registry.New(builtin.KnownKinds(), bus, nil)
	eng := engine.New(manager, bus)

	srv := rest.New(reg, eng, bus, wsHub, appLogger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		appLogger.Info("http server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)
		serverErrors <- httpServer.ListenAndServe()
	}()

	shutdownSig := make(chan os.Signal, 1)
	signal.Notify(shutdownSig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		appLogger.Error("server error", "error", err)
		os.Exit(1)

	case sig := <-shutdownSig:
		appLogger.Info("server shutdown initiated", "signal", sig)
		gracefulShutdown(httpServer, cfg.Server.ShutdownTimeout, appLogger)

	case <-srv.Done():
		appLogger.Info("server shutdown requested via control surface")
		gracefulShutdown(httpServer, cfg.Server.ShutdownTimeout, appLogger)
	}
}

func gracefulShutdown(httpServer *http.Server, timeout time.Duration, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		if err := httpServer.Close(); err != nil {
			log.Error("server close failed", "error", err)
		}
		return
	}
	log.Info("server stopped")
}
