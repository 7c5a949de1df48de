package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/askdesk/internal/api"
	"github.com/liliang-cn/askdesk/internal/api/middleware"
	"github.com/liliang-cn/askdesk/internal/chat"
	"github.com/liliang-cn/askdesk/internal/config"
	"github.com/liliang-cn/askdesk/internal/logger"
	"github.com/liliang-cn/askdesk/internal/repository"
	"github.com/liliang-cn/askdesk/internal/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "", "Path to config file")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zl.Sync()

	// Initialize database (projects, files and the sqlite chat state)
	db, err := repository.NewDB(cfg.Database.Path)
	if err != nil {
		zl.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	newStore, rdb, err := openStateStores(cfg, db)
	if err != nil {
		zl.Fatal("Failed to open chat state store", zap.Error(err))
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// Sessions post to this server's /api/chat with a token minted per
	// process; an external endpoint gets the admin key
	internalToken := uuid.NewString()
	dispatchToken := internalToken
	if cfg.Chat.Endpoint != "" {
		dispatchToken = cfg.Admin.APIKey
	}
	dispatcher := chat.NewDispatcher(cfg.ChatEndpoint(),
		chat.WithHTTPClient(&http.Client{Timeout: cfg.Chat.Timeout}),
		chat.WithAuthToken(dispatchToken),
	)

	// Initialize repositories
	projectRepo := repository.NewProjectRepository(db)
	fileRepo := repository.NewFileRepository(db)
	chunkRepo := repository.NewChunkRepository(db)

	// Initialize services
	provider := service.NewProvider(cfg.LLM)
	completion := service.NewCompletionService(provider, cfg.Chat.DefaultModel, zl)
	sessions := service.NewSessionService(
		service.OpenRegistries(newStore, zl.Named("chat")),
		dispatcher,
		zl.Named("chat"),
	)
	services := api.Services{
		Completion: completion,
		Sessions:   sessions,
		Projects:   service.NewProjectService(projectRepo, fileRepo, cfg.Storage.Files, zl),
		Files:      service.NewFileService(projectRepo, fileRepo, chunkRepo, cfg.Storage.Files, zl),
		Ask:        service.NewAskService(projectRepo, chunkRepo, completion, zl),
	}

	// Setup router
	routerCfg := api.RouterConfig{
		APIKey:        cfg.Admin.APIKey,
		JWTSecret:     cfg.Auth.JWTSecret,
		AllowOrigins:  []string{"*"},
		InternalToken: internalToken,
	}
	if cfg.RateLimit.Enabled {
		routerCfg.RequestsPerMinute = cfg.RateLimit.RequestsPerMinute
		routerCfg.Burst = cfg.RateLimit.Burst
	}
	router := api.SetupRouter(services, routerCfg, zl)

	// Create HTTP server; no write timeout so streams can run long
	srv := &http.Server{
		Addr:        cfg.Address(),
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		zl.Info("Starting AskDesk server",
			zap.String("address", cfg.Address()),
			zap.String("chat_store", cfg.Chat.Store),
			zap.String("chat_endpoint", dispatcher.Endpoint()),
			zap.String("llm_provider", provider.Name()),
			zap.Bool("auth", cfg.AuthEnabled()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zl.Error("Server forced to shutdown", zap.Error(err))
	}

	if err := sessions.Flush(ctx); err != nil {
		zl.Error("Failed to flush chat state", zap.Error(err))
	}

	zl.Info("Server exited")
}

// openStateStores returns a factory for the configured chat state backend,
// giving every user a key or file of their own. The local user keeps the
// configured key and path. The redis client is returned for closing when
// that backend is used.
func openStateStores(cfg *config.Config, db *repository.DB) (func(userID string) chat.Store, *redis.Client, error) {
	key := func(userID string) string {
		base := cfg.Chat.StateKey
		if base == "" {
			base = chat.StateKey
		}
		if userID == middleware.LocalUserID {
			return base
		}
		return base + ":" + userID
	}

	switch cfg.Chat.Store {
	case config.StoreFile:
		return func(userID string) chat.Store {
			path := cfg.Chat.FilePath
			if userID != middleware.LocalUserID {
				ext := filepath.Ext(path)
				path = strings.TrimSuffix(path, ext) + "." + url.PathEscape(userID) + ext
			}
			return repository.NewFileStateStore(path)
		}, nil, nil
	case config.StoreMemory:
		return func(userID string) chat.Store {
			return repository.NewMemoryStateStore(key(userID), 0)
		}, nil, nil
	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
		}
		return func(userID string) chat.Store {
			return repository.NewRedisStateStore(rdb, key(userID))
		}, rdb, nil
	default:
		return func(userID string) chat.Store {
			return repository.NewStateRepository(db, key(userID))
		}, nil, nil
	}
}
