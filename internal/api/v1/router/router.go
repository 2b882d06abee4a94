package router

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"app/internal/api/v1/handler"
	"app/internal/config"
	"app/internal/middleware"
	"app/internal/repository"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// New wires the repositories, services and handlers into the API's HTTP
// handler and returns the database pool alongside it so main can close it.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (http.Handler, *pgxpool.Pool, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if cfg.Environment == "development" {
		dsn += "?sslmode=disable"
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}
	logger.Info().Msg("Database connection successful")

	validate := validator.New(validator.WithRequiredStructEnabled())

	// Repositories & services & handlers
	importRepo := repository.NewImportRepo(pool)
	eventRepo := repository.NewEventRepo(pool)
	siteRepo := repository.NewSiteRepo(pool)
	replayRepo := repository.NewReplayRepo(pool)

	quotaSvc := service.NewQuotaService(siteRepo, eventRepo, logger)
	importSvc := service.NewImportService(importRepo, eventRepo, quotaSvc, service.ImportServiceConfig{
		MaxConcurrentImports: cfg.MaxConcurrentImports,
		FailOnFirstBatch:     cfg.FailOnFirstBatch,
	}, logger)
	replaySvc := service.NewReplayService(replayRepo, logger)

	importHandler := handler.NewImportHandler(importSvc, siteRepo, validate, cfg.MaxBatchRows, logger)
	replayHandler := handler.NewReplayHandler(replaySvc, siteRepo, logger)

	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret, logger)

	apiV1Mux := http.NewServeMux()
	importHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	replayHandler.RegisterRoutes(apiV1Mux, authMiddleware)

	mux := http.NewServeMux()
	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return middleware.LoggerMiddleware(logger)(c.Handler(mux)), pool, nil
}
