// internal/server/server.go
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/citefill/internal/automation"
	"github.com/xkilldash9x/citefill/internal/config"
	"github.com/xkilldash9x/citefill/internal/docai"
	"github.com/xkilldash9x/citefill/internal/intake"
	"github.com/xkilldash9x/citefill/internal/observability"
)

// FormFiller runs form-fill sessions. *automation.Runner implements it.
type FormFiller interface {
	Run(ctx context.Context, req automation.Request, obs automation.Observer) (*automation.Result, error)
	Shutdown(ctx context.Context) error
}

// Server hosts the citation API.
type Server struct {
	cfg       config.Interface
	logger    *zap.Logger
	backend   docai.Backend
	filler    FormFiller
	validator *intake.Validator
	upgrader  websocket.Upgrader
}

// New creates a Server.
func New(cfg config.Interface, backend docai.Backend, filler FormFiller, logger *zap.Logger) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger.Named("server"),
		backend:   backend,
		filler:    filler,
		validator: intake.NewValidator(cfg.Upload()),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The API serves a same-host UI and local tooling only.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Websocket routes stay outside the request logger; the connection is
	// hijacked and outlives the handler's view of the response.
	r.Get("/ws/v1/fill-form", s.handleFillStream)

	r.Group(func(r chi.Router) {
		r.Use(observability.RequestLogger(s.logger))

		r.Get("/healthz", s.handleHealth)
		r.Route("/api", func(r chi.Router) {
			r.Post("/process-document", s.handleProcessDocument)
			r.Post("/fill-form", s.handleFillForm)
			r.Get("/field-aliases", s.handleFieldAliases)
		})
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down the listener and closes
// any preview browsers still waiting on their timers.
func (s *Server) Run(ctx context.Context) error {
	sc := s.cfg.Server()
	httpServer := &http.Server{
		Addr:         sc.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  sc.ReadTimeout,
		WriteTimeout: sc.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("HTTP server starting.", zap.String("address", sc.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down HTTP server.")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sc.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
		}
		if err := s.filler.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("closing preview browsers: %w", err))
		}
		return errors.Join(errs...)
	})

	err := g.Wait()
	s.logger.Info("HTTP server stopped.")
	return err
}
