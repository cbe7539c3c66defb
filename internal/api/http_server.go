package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"shareit/internal/config"

	"github.com/rs/zerolog"
)

// HTTPServer runs the booking router. Exports are written inside the
// request, so the write timeout is generous.
type HTTPServer struct {
	server *http.Server
	log    zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, handler http.Handler, logger *zerolog.Logger) *HTTPServer {
	serverLog := zerolog.Nop()
	if logger != nil {
		serverLog = logger.With().Str("component", "http").Logger()
	}

	return &HTTPServer{
		log: serverLog,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       2 * time.Minute,
			MaxHeaderBytes:    1 << 16,
			ErrorLog:          log.New(serverLog, "", 0),
		},
	}
}

// Start listens on the configured port and blocks until Shutdown.
func (s *HTTPServer) Start() error {
	lis, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("http listen %s: %w", s.server.Addr, err)
	}
	return s.Serve(lis)
}

// Serve accepts connections on lis until Shutdown.
func (s *HTTPServer) Serve(lis net.Listener) error {
	s.log.Info().Str("addr", lis.Addr().String()).Msg("HTTP API listening")
	if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
