package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/fanstage/live-service/internal/access"
	"github.com/fanstage/live-service/internal/cache"
	"github.com/fanstage/live-service/internal/channel"
	"github.com/fanstage/live-service/internal/config"
	"github.com/fanstage/live-service/internal/domain"
	"github.com/fanstage/live-service/internal/handler"
	"github.com/fanstage/live-service/internal/hub"
	"github.com/fanstage/live-service/internal/kafka"
	"github.com/fanstage/live-service/internal/metrics"
	"github.com/fanstage/live-service/internal/repository"
	"github.com/fanstage/live-service/internal/router"
	"github.com/fanstage/live-service/internal/service"
	"github.com/fanstage/live-service/internal/session"
	"github.com/fanstage/live-service/internal/signer"
	"github.com/fanstage/live-service/internal/subscription"
	"github.com/fanstage/live-service/pkg/database"
	"github.com/fanstage/live-service/pkg/log"
	"github.com/fanstage/live-service/pkg/pubsub"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log.Init(log.Config{Level: cfg.Log.Level, ServiceName: "live-service"})
	logger := log.L()

	db, err := database.New(&database.Config{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		FilePath:        cfg.Database.FilePath,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.AutoMigrate(db, &domain.LiveSessionModel{}, &domain.ChatMessageModel{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	sessionCache, err := cache.NewRedisSessionCache(cfg.Redis, cfg.Cache.Prefix)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect session cache")
	}

	bus, err := pubsub.NewRedisPubSub(cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect event bus")
	}

	producer, err := kafka.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.ChatTopic, cfg.Kafka.Partitions)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create kafka producer")
	}

	urlSigner, err := buildSigner(context.Background(), cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create playback signer")
	}

	sessionRepo := repository.NewGormSessionRepository(db)
	chatRepo := repository.NewGormChatMessageRepository(db)
	entitlements := access.NewHTTPEntitlementClient(cfg.Entitlement)
	provider := channel.NewHTTPProvider(cfg.Encoder)

	registry := hub.NewRegistry(cfg.WebSocket)
	index := subscription.NewIndex()
	broadcaster := router.New(registry, index)
	agg := metrics.NewAggregator()

	manager := session.NewManager(sessionRepo, sessionCache, entitlements, provider, broadcaster, agg, cfg)
	evaluator := access.NewEvaluator(entitlements, urlSigner, agg, cfg.Signer.PlaybackTTL)
	live := service.NewLiveService(manager, evaluator, index, broadcaster, agg, producer, chatRepo)

	// Closing a connection always drops its subscriptions and releases its
	// viewer slots, in that order, so the departing connection never
	// receives its own viewer_left.
	registry.OnClose(func(c *hub.Client) {
		index.DropConnection(c.ID)
		live.HandleDisconnect(c)
	})

	listener := channel.NewListener(bus, manager)

	wsHandler := handler.NewWSHandler(registry, live, cfg.WebSocket)
	httpHandler := handler.NewHTTPHandler(manager, live, agg)

	if cfg.Log.Level != "debug" && cfg.Log.Level != "trace" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), log.GinMiddleware(logger))
	httpHandler.RegisterRoutes(engine, wsHandler)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager.RecoverPending(ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("live service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := listener.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("service error")
	}

	manager.Shutdown()
	producer.Close()
	if err := sessionCache.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to close session cache")
	}
	if err := bus.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to close event bus")
	}

	logger.Info().Msg("live service stopped")
}

func buildSigner(ctx context.Context, cfg *config.Config) (signer.URLSigner, error) {
	switch cfg.Signer.Driver {
	case "s3":
		return signer.NewS3Signer(ctx, signer.S3Config{
			Endpoint:        cfg.Signer.S3Endpoint,
			Region:          cfg.Signer.S3Region,
			Bucket:          cfg.Signer.S3Bucket,
			AccessKeyID:     cfg.Signer.S3AccessKey,
			SecretAccessKey: cfg.Signer.S3SecretKey,
			UsePathStyle:    cfg.Signer.S3UsePathStyle,
		})
	default:
		return signer.NewJWTSigner(cfg.Signer.Secret, cfg.Signer.Issuer, cfg.Signer.PlaybackBase)
	}
}
