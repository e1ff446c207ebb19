package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dsgvo-downloader/common/database"
	rediscommon "dsgvo-downloader/common/redis"
	"dsgvo-downloader/internal/config"
	"dsgvo-downloader/internal/events"
	"dsgvo-downloader/internal/metrics"
	"dsgvo-downloader/internal/portal"
	"dsgvo-downloader/internal/repository"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const metricsPushTimeout = 10 * time.Second

// DownloaderService owns the connections of one invocation and runs the reconciler.
type DownloaderService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client
	metrics     *metrics.Recorder
	reconciler  *Reconciler
}

// NewDownloaderService connects to PostgreSQL (and Redis when configured) and wires the reconciler.
func NewDownloaderService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*DownloaderService, error) {
	logger.Debug("Setting up database", zap.Int("max_conns", cfg.Database.MaxConns))
	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	var redisClient *redis.Client
	var publisher EventPublisher = events.NopPublisher{}
	if cfg.Redis.Enabled() {
		redisClient, err = rediscommon.Connect(ctx, &cfg.Redis)
		if err != nil {
			database.Close(db)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		publisher = events.NewStreamPublisher(redisClient, cfg.Reconciler.EventStream, logger)
		logger.Info("Publishing harvest events", zap.String("stream", cfg.Reconciler.EventStream))
	}

	recorder := metrics.NewRecorder()

	repo := repository.NewIncidentRepository(db, logger)
	client := portal.NewClient(portal.Options{
		BaseURL:   cfg.Portal.BaseURL,
		Timeout:   cfg.Portal.Timeout,
		UserAgent: cfg.Portal.UserAgent,
	}, logger)

	reconciler := NewReconciler(client, repo, logger, ReconcilerOptions{
		Delay:     cfg.Delay(),
		Publisher: publisher,
		Metrics:   recorder,
	})

	return &DownloaderService{
		config:      cfg,
		logger:      logger,
		db:          db,
		redisClient: redisClient,
		metrics:     recorder,
		reconciler:  reconciler,
	}, nil
}

// Run executes one reconcile pass and pushes metrics afterwards when a Pushgateway is set.
func (s *DownloaderService) Run(ctx context.Context) (*RunReport, error) {
	s.logger.Info("Starting incident harvest",
		zap.String("portal", s.config.Portal.BaseURL),
		zap.Duration("delay", s.reconciler.Delay()),
	)

	report, err := s.reconciler.Run(ctx)

	if s.config.Metrics.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsPushTimeout)
		defer cancel()
		if perr := s.metrics.Push(pushCtx, s.config.Metrics.PushgatewayURL, s.config.Metrics.Job); perr != nil {
			s.logger.Warn("Failed to push metrics", zap.Error(perr))
		}
	}

	return report, err
}

// Close releases database and Redis connections.
func (s *DownloaderService) Close() error {
	if err := rediscommon.Close(s.redisClient); err != nil {
		s.logger.Warn("Error closing redis client", zap.Error(err))
	}
	return database.Close(s.db)
}
