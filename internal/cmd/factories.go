package cmd

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codyde/sentryvibe-sub001/internal/adapters/broadcast"
	"github.com/codyde/sentryvibe-sub001/internal/adapters/feed"
	"github.com/codyde/sentryvibe-sub001/internal/adapters/netprobe"
	adapterstorage "github.com/codyde/sentryvibe-sub001/internal/adapters/storage"
	"github.com/codyde/sentryvibe-sub001/internal/config"
	"github.com/codyde/sentryvibe-sub001/internal/ports"
	"github.com/codyde/sentryvibe-sub001/internal/services"
)

// Container holds all dependencies for the application
type Container struct {
	Allocator *services.PortAllocator
	Manager   *services.SessionManager
	Reaper    *services.Reaper
	Redis     *redis.Client

	// Internal - for cleanup only
	sessionRepo ports.SessionRepository
}

// NewContainer creates a new Container with all dependencies wired
func NewContainer(settings *config.Settings) (*Container, error) {
	if settings == nil {
		settings = &config.Settings{}
	}

	dbPath := settings.DBPath
	if dbPath == "" {
		dbPath = config.GetDBPath()
	}
	db, err := adapterstorage.Open(dbPath)
	if err != nil {
		return nil, err
	}

	sessionRepo := adapterstorage.NewSQLiteRepository(db)
	portRepo := adapterstorage.NewPortRepository(db)

	addr := settings.RedisAddr
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: settings.RedisPassword,
		DB:       settings.RedisDB,
	})

	eventFeed := feed.NewRedisFeed(client, "")
	publisher := broadcast.NewRedisPublisher(client, "")

	manager := services.NewSessionManager(sessionRepo, eventFeed, publisher)
	allocator := services.NewPortAllocator(portRepo, netprobe.NewTCPProber(""), services.DefaultRegistry())
	reaper := services.NewReaper(manager, allocator,
		sweepInterval(settings),
		stuckBuildMaxAge(settings),
		portAbandonMaxAge(settings),
	)

	return &Container{
		Allocator:   allocator,
		Manager:     manager,
		Reaper:      reaper,
		Redis:       client,
		sessionRepo: sessionRepo,
	}, nil
}

// Close closes all resources held by the container
func (c *Container) Close() error {
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.sessionRepo != nil {
		return c.sessionRepo.Close()
	}
	return nil
}

func sweepInterval(s *config.Settings) time.Duration {
	minutes := config.DefaultSweepIntervalMinutes
	if s.SweepIntervalMinutes != nil && *s.SweepIntervalMinutes > 0 {
		minutes = *s.SweepIntervalMinutes
	}
	return time.Duration(minutes) * time.Minute
}

func stuckBuildMaxAge(s *config.Settings) time.Duration {
	minutes := config.DefaultStuckBuildMaxAgeMinutes
	if s.StuckBuildMaxAgeMinutes != nil && *s.StuckBuildMaxAgeMinutes > 0 {
		minutes = *s.StuckBuildMaxAgeMinutes
	}
	return time.Duration(minutes) * time.Minute
}

func portAbandonMaxAge(s *config.Settings) time.Duration {
	days := config.DefaultPortAbandonMaxAgeDays
	if s.PortAbandonMaxAgeDays != nil && *s.PortAbandonMaxAgeDays > 0 {
		days = *s.PortAbandonMaxAgeDays
	}
	return time.Duration(days) * 24 * time.Hour
}
