package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"allyboard/internal/app"
	"allyboard/internal/middleware"
	"allyboard/internal/models"
	"allyboard/internal/service"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Server struct {
	router   *mux.Router
	logger   *logrus.Logger
	cfg      *models.Config
	services *app.Services
	server   *http.Server

	// verbose is carried into every request context for dispatch logging
	verbose bool
}

func NewServer(cfg *models.Config, services *app.Services, logger *logrus.Logger) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		logger:   logger,
		cfg:      cfg,
		services: services,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(requireAPIKey(s.cfg.Server.APIKey, s.logger))

	api.HandleFunc("/mentions", s.handleListMentions()).Methods(http.MethodGet)
	api.HandleFunc("/mentions/{kind}/lookup", s.handleLookupMentions()).Methods(http.MethodGet)
	api.HandleFunc("/mentions/{kind}/{name}", s.handleUpsertMention()).Methods(http.MethodPut)
	api.HandleFunc("/mentions/{kind}/{name}", s.handleRemoveMention()).Methods(http.MethodDelete)

	api.HandleFunc("/preview", s.handlePreview()).Methods(http.MethodPost)

	// send-due is registered before {id} so it is not captured as an item ID
	api.HandleFunc("/queue/send-due", s.handleSendDue()).Methods(http.MethodPost)
	api.HandleFunc("/queue", s.handleListQueue()).Methods(http.MethodGet)
	api.HandleFunc("/queue", s.handleCreateQueueItem()).Methods(http.MethodPost)
	api.HandleFunc("/queue/{id}", s.handleGetQueueItem()).Methods(http.MethodGet)
	api.HandleFunc("/queue/{id}", s.handleDeleteQueueItem()).Methods(http.MethodDelete)
	api.HandleFunc("/queue/{id}/send", s.handleSendQueueItem()).Methods(http.MethodPost)
	api.HandleFunc("/queue/{id}/cancel", s.handleCancelQueueItem()).Methods(http.MethodPost)

	api.HandleFunc("/send", s.handleDirectSend()).Methods(http.MethodPost)

	api.HandleFunc("/sendlog", s.handleListSendLog()).Methods(http.MethodGet)
	api.HandleFunc("/sendlog", s.handleClearSendLog()).Methods(http.MethodDelete)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeoutSec) * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return service.WithVerbose(context.Background(), s.verbose)
		},
	}

	s.logger.Infof("Starting server on port %d", s.cfg.Server.Port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}
