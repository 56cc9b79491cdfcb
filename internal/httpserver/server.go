package httpserver

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"storefront-cart/internal/config"
	"storefront-cart/internal/session"
)

// Server wraps the HTTP server setup.
type Server struct {
	httpServer *http.Server
	logger     *zap.SugaredLogger
	clients    *clientRegistry
}

// Deps carries the collaborators the router needs.
type Deps struct {
	Config   config.Config
	Verifier *session.TokenVerifier
	Logger   *zap.SugaredLogger
}

// New builds a Server exposing the cart API.
func New(deps Deps) (*Server, error) {
	clients := newClientRegistry(deps)
	router := buildRouter(deps, clients)

	httpSrv := &http.Server{
		Addr:              deps.Config.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &Server{
		httpServer: httpSrv,
		logger:     deps.Logger,
		clients:    clients,
	}, nil
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server and tears down the per-session
// coordinators (their background refreshers and storage watchers).
func (s *Server) Shutdown(ctx context.Context) error {
	s.clients.Close()
	return s.httpServer.Shutdown(ctx)
}
