package setup

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	// #nosec G108 -- pprof is only served on localhost
	_ "net/http/pprof"
	"time"

	"go.uber.org/zap"
)

// pprofServer is the localhost-only profiling endpoint.
type pprofServer struct {
	srv      *http.Server
	listener net.Listener
}

// startPprofServer serves the default mux on localhost:port. Port 0 picks a free port.
func startPprofServer(port int, logger *zap.Logger) (*pprofServer, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to create pprof listener: %w", err)
	}

	srv := &http.Server{
		Handler:           http.DefaultServeMux,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	addr := listener.Addr().String()

	go func() {
		logger.Info("Starting pprof server", zap.String("address", addr))
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Pprof server failed", zap.Error(err))
		}
	}()

	return &pprofServer{
		srv:      srv,
		listener: listener,
	}, nil
}

// addr returns the bound address.
func (p *pprofServer) addr() string {
	return p.listener.Addr().String()
}
