// Package server wires the websocket gateway and the read-path endpoints over
// a plain net/http server with graceful shutdown.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"

	"chat-platform/internal/auth"
	"chat-platform/internal/hub"
	"chat-platform/internal/storage"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server defines fields used in HTTP processing
type Server struct {
	logger     *zap.SugaredLogger
	httpServer *http.Server
	hub        *hub.Hub
	store      *storage.Store
	h          handler
}

// NewServer builds the route table and returns a Server ready to Start
func NewServer(logger *zap.SugaredLogger, cfg EnvConfig, store *storage.Store, h *hub.Hub, verifier auth.Verifier, opts ...Option) (*Server, error) {
	srv := &Server{
		logger: logger,
		hub:    h,
		store:  store,
		h: handler{
			logger:   logger,
			store:    store,
			presence: h,
			hub:      h,
			verifier: verifier,
			upgrader: websocket.Upgrader{
				ReadBufferSize:  1024,
				WriteBufferSize: 1024,
				CheckOrigin:     func(r *http.Request) bool { return true },
			},
		},
	}

	plain := logger.Desugar()

	mux := http.NewServeMux()
	mux.Handle("/ws", http.HandlerFunc(srv.h.connect))
	mux.Handle("/messages/history", logRequests(requireAuth(http.HandlerFunc(srv.h.history), verifier), plain))
	mux.Handle("/messages/search", logRequests(requireAuth(http.HandlerFunc(srv.h.search), verifier), plain))
	mux.Handle("/users/online", logRequests(requireAuth(http.HandlerFunc(srv.h.onlineUsers), verifier), plain))

	httpServer := &http.Server{
		Addr:    cfg.Host + ":" + strconv.FormatUint(uint64(cfg.Port), 10),
		Handler: mux,
	}

	for _, opt := range opts {
		opt.apply(httpServer)
	}

	srv.httpServer = httpServer

	return srv, nil
}

// Start calls ListenAndServe on http.Server instance inside Server struct
// and implements graceful shutdown via goroutine waiting for signals
func (s *Server) Start() error {
	idleConnsClosed := make(chan struct{})

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		s.logger.Info("Shutting down HTTP server")

		if err := s.httpServer.Shutdown(context.Background()); err != nil {
			s.logger.Errorf("srv.Shutdown: %v", err)
		}
		s.logger.Info("HTTP server is stopped")

		s.logger.Info("Closing live connections")
		s.hub.Close()

		close(idleConnsClosed)
	}()

	s.logger.Infof("Starting HTTP server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("s.httpServer.ListenAndServe: %v", err)
	}

	<-idleConnsClosed

	s.logger.Info("Closing store")
	s.store.Close()
	s.logger.Info("Store is closed")

	return nil
}
