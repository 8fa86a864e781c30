package di

import (
	"context"
	"time"

	"pony-chat-admin/backend/internal/inbox"
	"pony-chat-admin/backend/internal/models"
	"pony-chat-admin/backend/internal/relay"
	"pony-chat-admin/backend/internal/service"
	"pony-chat-admin/backend/internal/store"
	"pony-chat-admin/backend/internal/syncer"
	"pony-chat-admin/backend/internal/view"
	"pony-chat-admin/backend/internal/ws"
	"pony-chat-admin/backend/pkg/cache"
	appconfig "pony-chat-admin/backend/pkg/config"
	"pony-chat-admin/backend/pkg/health"
	"pony-chat-admin/backend/pkg/jwt"
	"pony-chat-admin/backend/pkg/logger"
	sharedredis "pony-chat-admin/backend/shared/redis"

	"gorm.io/gorm"
)

// Container holds all the dependencies for the application
type Container struct {
	DB           *gorm.DB
	Logger       *logger.Logger
	JWTService   *jwt.Service
	UserService  *service.UserService
	InboxService *service.InboxService
	RelayClient  *relay.Client
	UnreadSyncer *syncer.UnreadSyncer
	Hub          *ws.Hub
	Health       *health.Checker
}

// Config holds the configuration for the container
type Config struct {
	LoggerConfig   logger.Config
	JWTSecret      string
	JWTExpiry      time.Duration
	AdminEmail     string
	RelayBaseURL   string
	UnreadInterval time.Duration
	Platforms      []models.Platform
	CacheTTL       time.Duration
}

// DefaultConfig builds a container config from application configuration
func DefaultConfig() *Config {
	cfg := appconfig.Get()

	platforms := make([]models.Platform, 0, len(cfg.Sync.Platforms))
	for _, p := range cfg.Sync.Platforms {
		platform := models.Platform(p)
		if platform.Valid() {
			platforms = append(platforms, platform)
		}
	}

	return &Config{
		LoggerConfig:   logger.DefaultConfig(),
		JWTSecret:      cfg.JWT.Secret,
		JWTExpiry:      cfg.JWT.Expiry,
		AdminEmail:     cfg.Admin.Email,
		RelayBaseURL:   cfg.Relay.BaseURL,
		UnreadInterval: cfg.Sync.UnreadInterval,
		Platforms:      platforms,
		CacheTTL:       cfg.Cache.TTL,
	}
}

// New creates a new dependency injection container
func New(db *gorm.DB, config *Config) (*Container, error) {
	if config == nil {
		config = DefaultConfig()
	}

	log := logger.New(config.LoggerConfig)

	jwtService := jwt.NewService(config.JWTSecret, config.JWTExpiry)
	userService := service.NewUserService(db, jwtService)

	relayClient := relay.NewWithBaseURL(config.RelayBaseURL, log)
	hub := ws.NewHub(log)

	syncOpts := []syncer.Option{syncer.WithPublisher(hub)}
	redisClient := sharedredis.NewClient()
	if redisClient != nil {
		syncOpts = append(syncOpts, syncer.WithSnapshotStore(redisClient))
	}
	unreadSyncer := syncer.New(relayClient, config.Platforms, config.UnreadInterval, log, syncOpts...)

	repo := store.NewGormMessageRepository(db)
	aggregator := inbox.NewAggregator(config.AdminEmail)
	views := view.NewController(cache.NewCache())
	inboxService := service.NewInboxService(
		repo,
		aggregator,
		unreadSyncer,
		relayClient,
		views,
		cache.NewCache(),
		config.CacheTTL,
		config.AdminEmail,
		log,
	)

	checker := health.NewChecker(log)
	checker.RegisterCheck("database", func() (health.Status, string, error) {
		if err := appconfig.TestConnection(db); err != nil {
			return health.StatusDown, "Database unreachable", err
		}
		return health.StatusUp, "Database connection ok", nil
	})
	if redisClient != nil {
		checker.RegisterCheck("redis", func() (health.Status, string, error) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx); err != nil {
				return health.StatusDegraded, "Snapshot store unreachable", err
			}
			return health.StatusUp, "Snapshot store ok", nil
		})
	}

	return &Container{
		DB:           db,
		Logger:       log,
		JWTService:   jwtService,
		UserService:  userService,
		InboxService: inboxService,
		RelayClient:  relayClient,
		UnreadSyncer: unreadSyncer,
		Hub:          hub,
		Health:       checker,
	}, nil
}
