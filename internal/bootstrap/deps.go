// Package bootstrap wires the application together.
package bootstrap

import (
	"fmt"

	"digest_server/adapter/in/scheduler"
	"digest_server/adapter/out/cache"
	"digest_server/adapter/out/llm"
	"digest_server/adapter/out/notification"
	"digest_server/adapter/out/persistence"
	"digest_server/adapter/out/provider/gmail"
	"digest_server/config"
	"digest_server/core/port/out"
	"digest_server/core/service/classifier"
	"digest_server/core/service/digest"
	"digest_server/infra/database"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Dependencies holds every wired component.
type Dependencies struct {
	DB    *pgxpool.Pool
	SQLX  *sqlx.DB
	Redis *redis.Client

	EmailRepo    *persistence.EmailAdapter
	DigestRepo   *persistence.DigestAdapter
	UserRepo     *persistence.UserAdapter
	ScheduleRepo *persistence.ScheduleAdapter

	DigestService *digest.Service
	Scheduler     *scheduler.Scheduler
}

// NewDependencies builds the full dependency graph. The returned cleanup
// closes connections in reverse order.
func NewDependencies(cfg *config.Config, log zerolog.Logger) (*Dependencies, func(), error) {
	pool, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect postgres: %w", err)
	}

	db, err := database.NewSQLX(cfg.DatabaseURL)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to connect sqlx: %w", err)
	}

	// Redis is optional. Without it the service runs with an in-process
	// generation lock and no read cache.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.NewRedis(cfg.RedisURL)
		if err != nil {
			db.Close()
			pool.Close()
			return nil, nil, fmt.Errorf("failed to connect redis: %w", err)
		}
	}

	emailRepo := persistence.NewEmailAdapter(db)
	digestRepo := persistence.NewDigestAdapter(db)
	userRepo := persistence.NewUserAdapter(db)
	scheduleRepo := persistence.NewScheduleAdapter(db)

	var (
		digestCache out.DigestCache
		locker      out.GenerationLocker
	)
	if redisClient != nil {
		redisCache := cache.NewRedisCache(redisClient, log)
		digestCache = redisCache
		locker = redisCache
	} else {
		log.Warn().Msg("redis not configured, using in-process generation lock")
		locker = cache.NewMemoryLocker()
	}

	llmClient := llm.NewClient(llm.Config{
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
	}, log)

	providerFactory := gmail.NewFactory(userRepo, cfg.GoogleClientID, cfg.GoogleClientSecret, log)
	emailClassifier := classifier.New(llmClient, log)
	summarizer := digest.NewSummarizer(llmClient, log)
	pushNotifier := notification.NewExpoAdapter(userRepo, log)

	digestService := digest.NewService(
		providerFactory,
		emailClassifier,
		summarizer,
		emailRepo,
		digestRepo,
		locker,
		digestCache,
		pushNotifier,
		log,
	)

	digestScheduler := scheduler.New(scheduleRepo, digestService, cfg.SchedulerInterval, log)

	cleanup := func() {
		if redisClient != nil {
			redisClient.Close()
		}
		db.Close()
		pool.Close()
	}

	return &Dependencies{
		DB:            pool,
		SQLX:          db,
		Redis:         redisClient,
		EmailRepo:     emailRepo,
		DigestRepo:    digestRepo,
		UserRepo:      userRepo,
		ScheduleRepo:  scheduleRepo,
		DigestService: digestService,
		Scheduler:     digestScheduler,
	}, cleanup, nil
}
