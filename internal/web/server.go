package web

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/docpair/internal/config"
	"github.com/docpair/internal/pairing"
	"github.com/docpair/internal/resolver"
	"github.com/docpair/internal/store"
	"github.com/docpair/internal/web/handlers"
	"github.com/docpair/internal/web/middleware"
)

// Server hosts the pairing HTTP API.
type Server struct {
	cfg        config.ServerConfig
	db         *sql.DB
	httpServer *http.Server
	router     *mux.Router
	log        *logrus.Entry
}

// NewServer wires handlers over an already-open database and service.
func NewServer(cfg config.ServerConfig, db *sql.DB, st *store.Postgres, svc *pairing.Service, res *resolver.Resolver, log *logrus.Entry) *Server {
	s := &Server{cfg: cfg, db: db, log: log}
	s.setupRoutes(st, svc, res)
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes(st *store.Postgres, svc *pairing.Service, res *resolver.Resolver) {
	s.router = mux.NewRouter()

	pairingHandler := &handlers.PairingHandler{Service: svc, Log: s.log}
	statsHandler := &handlers.StatsHandler{Store: st}
	supplierHandler := &handlers.SupplierHandler{Store: st}
	documentsHandler := &handlers.DocumentsHandler{Store: st, Resolver: res}
	healthHandler := &handlers.HealthHandler{DB: s.db}

	p := s.router.PathPrefix("/api/pairing").Subrouter()
	p.HandleFunc("/invoice/{id}", pairingHandler.GetEvaluation).Methods("GET")
	p.HandleFunc("/invoice/{id}/history", statsHandler.GetHistory).Methods("GET")
	p.HandleFunc("/invoice/{id}/confirm", pairingHandler.Confirm).Methods("POST")
	p.HandleFunc("/invoice/{id}/reject", pairingHandler.Reject).Methods("POST")
	p.HandleFunc("/invoice/{id}/unpair", pairingHandler.Unpair).Methods("POST")
	p.HandleFunc("/invoice/{id}/reassign", pairingHandler.Reassign).Methods("POST")
	p.HandleFunc("/invoice/{id}/auto-pair", pairingHandler.AutoPair).Methods("POST")
	p.HandleFunc("/batch/re-evaluate", pairingHandler.BatchReevaluate).Methods("POST")
	p.HandleFunc("/stats", statsHandler.GetStats).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/documents", documentsHandler.Create).Methods("POST")
	api.HandleFunc("/suppliers/resolve", documentsHandler.Resolve).Methods("POST")
	api.HandleFunc("/suppliers/reviews", supplierHandler.ListReviews).Methods("GET")
	api.HandleFunc("/suppliers/reviews/{id:[0-9]+}/approve", supplierHandler.Approve).Methods("POST")
	api.HandleFunc("/suppliers/reviews/{id:[0-9]+}/reject", supplierHandler.Reject).Methods("POST")
	api.HandleFunc("/health", healthHandler.Get).Methods("GET")

	s.router.Use(middleware.CORS())
	s.router.Use(middleware.RequestLogging(s.log))
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves until SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		s.log.WithField("addr", s.httpServer.Addr).Info("server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("server error")
		}
	}()

	<-stop
	s.log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := s.db.Close(); err != nil {
		s.log.WithError(err).Warn("database close failed")
	}
	return nil
}
