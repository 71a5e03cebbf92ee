package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	contracthandler "github.com/sealflow/sealflow-backend/internal/contract/handler"
	contractrepo "github.com/sealflow/sealflow-backend/internal/contract/repository"
	contractservice "github.com/sealflow/sealflow-backend/internal/contract/service"
	evidenceservice "github.com/sealflow/sealflow-backend/internal/evidence/service"
	integrityservice "github.com/sealflow/sealflow-backend/internal/integrity/service"
	"github.com/sealflow/sealflow-backend/internal/provider"
	templatehandler "github.com/sealflow/sealflow-backend/internal/template/handler"
	templaterepo "github.com/sealflow/sealflow-backend/internal/template/repository"
	templateservice "github.com/sealflow/sealflow-backend/internal/template/service"
	"github.com/sealflow/sealflow-backend/pkg/config"
	"github.com/sealflow/sealflow-backend/pkg/database"
	"github.com/sealflow/sealflow-backend/pkg/httputil"
	"github.com/sealflow/sealflow-backend/pkg/logger"
	"github.com/sealflow/sealflow-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("signing-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("signing-service", cfg.Server.Environment)
	log.Info().Msg("starting Signing Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeContractEvents, "signing-service", log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize repositories
	templateRepo := templaterepo.NewTemplateRepository(db)
	contractRepo := contractrepo.NewContractRepository(db)

	// Initialize provider registry
	registry := buildProviderRegistry(cfg, log)

	// Initialize services
	tokens := contractservice.NewTokenIssuer(cfg.Signing)
	integritySvc := integrityservice.NewService(log)
	templateSvc := templateservice.NewTemplateService(templateRepo, log)
	workflowSvc := contractservice.NewWorkflowService(
		contractRepo, templateRepo, integritySvc, registry, tokens, publisher, cfg.Signing, log)
	evidenceSvc := evidenceservice.NewService(contractRepo, templateRepo, tokens, publisher, log)

	// Initialize handlers
	templateHandler := templatehandler.NewTemplateHandler(templateSvc, log)
	contractHandler := contracthandler.NewContractHandler(workflowSvc, log)
	signingHandler := contracthandler.NewSigningHandler(workflowSvc, evidenceSvc, tokens, log)
	webhookHandler := contracthandler.NewWebhookHandler(workflowSvc, registry, cfg.Providers, log)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(httputil.ActorMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.Signing.BaseURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Actor-ID", "X-Actor-Name", "X-Actor-Email"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "signing-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		templateHandler.RegisterRoutes(r)
		contractHandler.RegisterRoutes(r)
		signingHandler.RegisterRoutes(r)
		webhookHandler.RegisterRoutes(r)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// buildProviderRegistry registers the native adapter plus every configured
// external vendor.
func buildProviderRegistry(cfg *config.Config, log *logger.Logger) *provider.Registry {
	providers := []provider.Provider{provider.NewNative()}

	if cfg.Providers.DocuSign.Enabled {
		providers = append(providers, provider.NewDocuSign(cfg.Providers.DocuSign))
		log.Info().Str("provider", provider.NameDocuSign).Msg("provider enabled")
	}
	if cfg.Providers.AdobeSign.Enabled {
		providers = append(providers, provider.NewAdobeSign(cfg.Providers.AdobeSign))
		log.Info().Str("provider", provider.NameAdobeSign).Msg("provider enabled")
	}
	if cfg.Providers.DropboxSign.Enabled {
		providers = append(providers, provider.NewDropboxSign(cfg.Providers.DropboxSign))
		log.Info().Str("provider", provider.NameDropboxSign).Msg("provider enabled")
	}

	return provider.NewRegistry(providers...)
}
