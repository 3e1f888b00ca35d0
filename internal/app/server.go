package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/markdave123-py/botwise/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/botwise/internal/api/middlewares"
	"github.com/markdave123-py/botwise/internal/config"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *zap.Logger
}

// NewRouter wires every route onto a chi router.
func NewRouter(cfg *config.Config, training *handlers.TrainingHandler, chat *handlers.ChatHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(api chi.Router) {
		// streamed answers run as long as the client stays connected
		api.Post("/chat/{botID}/stream", chat.Stream)

		api.Group(func(bounded chi.Router) {
			bounded.Use(middleware.Timeout(timeout))
			bounded.Post("/chat/{botID}", chat.Ask)
		})

		// management endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(middleware.Timeout(timeout))
			protected.Use(appMiddleware.JWTMiddleware(cfg.JWTSecret))
			protected.Route("/bots/{botID}", func(bot chi.Router) {
				bot.Post("/train", training.Train)
				bot.Get("/training", training.Status)
				bot.Delete("/training", training.Clear)
				bot.Get("/documents", training.ListDocuments)
				bot.Delete("/documents/{docID}", training.DeleteDocument)
				bot.Get("/websites", training.ListWebsites)
				bot.Delete("/websites/{crawlID}", training.DeleteWebsite)
			})
		})
	})
	return r
}

// NewServer builds the HTTP server around the router.
func NewServer(cfg *config.Config, handler http.Handler, log *zap.Logger) *Server {
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &Server{httpServer: httpSrv, log: log}
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
