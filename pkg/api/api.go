// Package api runs the HTTP server that accepts benchmark result
// uploads and serves stored documents back out.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mlcommons/mobile-results/pkg/api/importer"
	"github.com/mlcommons/mobile-results/pkg/api/storage"
	"github.com/mlcommons/mobile-results/pkg/config"
	"github.com/mlcommons/mobile-results/pkg/ingest"
	"github.com/mlcommons/mobile-results/pkg/store"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	cfg        *config.Config
	store      store.Store
	pipeline   *ingest.Pipeline
	verifier   Verifier
	importer   importer.Importer
	httpServer *http.Server
	wg         sync.WaitGroup
}

// NewServer creates a new API server.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.Config,
) Server {
	return &server{
		log: log.WithField("component", "api"),
		cfg: cfg,
	}
}

// Start initializes the store and auth, and starts the HTTP server.
func (s *server) Start(ctx context.Context) error {
	// Create and start the database store.
	s.store = store.NewStore(
		s.log, &s.cfg.Database, s.cfg.Query.MaxPageSize,
	)
	if err := s.store.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	s.pipeline = ingest.NewPipeline(s.log, s.store)

	verifier, err := newVerifier(&s.cfg.Auth, s.cfg.RemoteAuthTimeout())
	if err != nil {
		return fmt.Errorf("configuring auth: %w", err)
	}

	s.verifier = verifier

	// Prepare the legacy importer before building the router, but do
	// NOT start it yet: the HTTP server must be listening first.
	if s.cfg.LegacyImport != nil && s.cfg.LegacyImport.Enabled {
		if err := s.prepareImporter(); err != nil {
			return fmt.Errorf("preparing legacy import: %w", err)
		}
	}

	// Build router and start HTTP server.
	router := s.buildRouter()

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", s.cfg.Server.Listen).
			Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	// Start the legacy importer AFTER the API is listening so the
	// server is reachable while the first (potentially slow) pass runs.
	if s.importer != nil {
		if err := s.importer.Start(ctx); err != nil {
			return fmt.Errorf("starting legacy importer: %w", err)
		}
	}

	return nil
}

// Stop gracefully shuts down the HTTP server and closes the store.
func (s *server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	if s.importer != nil {
		if err := s.importer.Stop(); err != nil {
			s.log.WithError(err).Warn("Legacy importer stop error")
		}
	}

	if s.store != nil {
		if err := s.store.Stop(); err != nil {
			return fmt.Errorf("stopping store: %w", err)
		}
	}

	s.log.Info("API server stopped")

	return nil
}

// prepareImporter creates the legacy storage reader and importer
// without starting the background goroutine. Call importer.Start()
// separately after the HTTP server is listening.
func (s *server) prepareImporter() error {
	var reader storage.Reader

	switch {
	case s.cfg.LegacyImport.S3 != nil:
		reader = storage.NewS3Reader(s.cfg.LegacyImport.S3)
	case s.cfg.LegacyImport.Local != nil:
		reader = storage.NewLocalReader(s.cfg.LegacyImport.Local.Dir)
	default:
		return fmt.Errorf("no storage backend configured for legacy import")
	}

	s.importer = importer.NewImporter(
		s.log,
		s.pipeline,
		reader,
		s.cfg.ImportInterval(),
		s.cfg.LegacyImport.Concurrency,
	)

	s.log.Info("Legacy import enabled")

	return nil
}
