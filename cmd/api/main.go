package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/chatdesk/backend/internal/config"
	"github.com/zhouzirui/chatdesk/backend/internal/handler"
	"github.com/zhouzirui/chatdesk/backend/internal/model/bot"
	"github.com/zhouzirui/chatdesk/backend/internal/service/ai"
	"github.com/zhouzirui/chatdesk/backend/internal/service/chat"
	"github.com/zhouzirui/chatdesk/backend/internal/service/conversation"
	"github.com/zhouzirui/chatdesk/backend/internal/service/formlog"
	"github.com/zhouzirui/chatdesk/backend/internal/service/identity"
	"github.com/zhouzirui/chatdesk/backend/internal/storage"
	"github.com/zhouzirui/chatdesk/backend/internal/storage/memory"
	"github.com/zhouzirui/chatdesk/backend/internal/storage/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("failed to load .env file, continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := newLogger(cfg.Logging)
	log.Logger = logger

	kv, err := openStorage(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open storage")
	}
	defer kv.Close()

	sessionIdentity, err := identity.Resolve(ctx, kv)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve session identity")
	}

	botStore := bot.NewPersistentStore(kv, cfg.Bot)
	chatService := chat.NewService()
	aiService, gemini := ai.NewFromConfig(cfg.AI, logger)
	if cfg.AI.InjectedKey == "" {
		logger.Info().Msg("未注入 API_KEY，使用机器人配置中的凭证")
	}

	formLog := formlog.NewService(formlog.Config{
		EndpointTemplate: cfg.FormLog.EndpointTemplate,
		Timeout:          cfg.FormLog.Timeout,
	}, nil, logger)

	convService := conversation.NewService(chatService, botStore, aiService, formLog, logger)

	services := handler.Services{
		Bots:         botStore,
		Chat:         chatService,
		Conversation: convService,
		Logging:      formLog,
		Identity:     sessionIdentity,
		Logger:       logger,
	}
	if cfg.Proxy.Enabled {
		services.Proxy = handler.ProxyOptions{
			Generator:    gemini,
			APIKey:       cfg.Proxy.APIKey,
			DefaultModel: cfg.Proxy.Model,
		}
		if !cfg.Proxy.Available() {
			logger.Warn().Msg("proxy enabled without GEMINI_API_KEY, requests will fail")
		}
	}

	startServer(ctx, logger, cfg.Server, handler.NewRouter(services))

	// 等待后台日志投递结束
	formLog.Wait()
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	if cfg.Driver == "sqlite" {
		return sqlite.New(cfg.Path)
	}
	return memory.New(), nil
}

func startServer(ctx context.Context, logger zerolog.Logger, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info().Str("addr", addr).Msg("chatdesk backend listening")
	if err := runServer(ctx, srv); err != nil {
		logger.Error().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
