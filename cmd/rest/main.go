package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robalyx/timeline/internal/rest"
	"github.com/robalyx/timeline/internal/setup"
	"github.com/robalyx/timeline/internal/setup/telemetry"
	"go.uber.org/zap"
)

// RESTLogDir specifies where REST server log files are stored.
const RESTLogDir = "logs/rest_logs"

// Default server timeouts, used when the config leaves them unset.
const (
	ReadTimeout     = 5 * time.Second
	WriteTimeout    = 10 * time.Second
	ShutdownTimeout = 30 * time.Second
)

func main() {
	app, err := setup.InitializeApp(context.Background(), telemetry.ServiceREST, RESTLogDir)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.Cleanup(context.Background())

	serverCfg := &app.Config.Timeline.Server

	handler := rest.NewServer(rest.Dependencies{
		Service: app.Timeline.Service,
		Graph:   app.Timeline.Graph,
		Content: app.Timeline.Content,
		Guards:  app.Timeline.Guards,
	}, app.Logger, telemetry.ServiceREST.GetRequestTimeout(app.Config))

	addr := fmt.Sprintf("%s:%d", serverCfg.Host, serverCfg.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  orDefault(serverCfg.ReadTimeout, ReadTimeout),
		WriteTimeout: orDefault(serverCfg.WriteTimeout, WriteTimeout),
	}

	go func() {
		app.Logger.Info("REST server started", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Error("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	app.Logger.Info("Shutting down REST server...")

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		app.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	stats := app.Timeline.Cache.Stats()
	app.Logger.Info("Server gracefully stopped",
		zap.Uint64("cacheHits", stats.Hits),
		zap.Uint64("cacheMisses", stats.Misses),
		zap.Uint64("cacheAdmitted", stats.Admitted),
		zap.Uint64("cacheRejected", stats.Rejected))
}

// orDefault converts a millisecond config value, falling back to def when unset.
func orDefault(ms int, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
