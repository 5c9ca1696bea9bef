package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/storefront/internal/checkout"
	"github.com/fjod/go_cart/storefront/internal/config"
	"github.com/fjod/go_cart/storefront/internal/consumer"
	"github.com/fjod/go_cart/storefront/internal/gateway"
	h "github.com/fjod/go_cart/storefront/internal/http"
	"github.com/fjod/go_cart/storefront/internal/ledger"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/publisher"
	"github.com/fjod/go_cart/storefront/internal/session"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		bootLog := logger.New(logger.Options{Service: "storefront"})
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.New(logger.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Service: "storefront"})
	ctx := context.Background()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("redis ping succeeded")

	managerCfg := session.ManagerConfig{
		Redis:          redisClient,
		Endpoint:       cfg.GraphQLURL,
		Transport:      otelhttp.NewTransport(http.DefaultTransport),
		Breaker:        gateway.NewBreaker("graphql", cfg.BreakerMaxFails, cfg.BreakerOpenWindow, log),
		GatewayTimeout: cfg.GatewayTimeout,
		QueryCacheTTL:  cfg.QueryCacheTTL,
		RefetchDelay:   cfg.RefetchDelay,
		Defaults: checkout.Defaults{
			PaymentMethod: cfg.DefaultPaymentMethod,
			Country:       cfg.DefaultCountry,
		},
		LogoutLanding: cfg.LogoutLanding,
		IdleTimeout:   cfg.SessionIdleTimeout,
		MaxSessions:   cfg.MaxSessions,
		Logger:        log,
	}

	var attempts h.AttemptLister
	if cfg.LedgerDSN != "" {
		repo, err := ledger.NewRepository(ctx, cfg.LedgerDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to checkout ledger")
		}
		defer repo.Close()
		if err := repo.RunMigrations(); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate checkout ledger")
		}
		managerCfg.Ledger = repo
		attempts = repo
		log.Info().Msg("checkout ledger enabled")
	}

	if len(cfg.KafkaBrokers) > 0 {
		pub := publisher.NewKafkaPublisher(cfg.KafkaTopic, cfg.KafkaBrokers...)
		defer pub.Close()
		managerCfg.Publisher = pub
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("checkout events enabled")
	}

	sessions := session.NewManager(managerCfg)
	defer sessions.Close()

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	if len(cfg.KafkaBrokers) > 0 {
		groupID := cfg.KafkaGroupID
		if groupID == "" {
			host, _ := os.Hostname()
			groupID = "storefront-" + host
		}
		cartSync := consumer.NewConsumer(sessions, log, cfg.KafkaTopic, groupID, cfg.KafkaBrokers...)
		defer cartSync.Close()
		go cartSync.Run(consumerCtx)
		log.Info().Str("group_id", groupID).Msg("cart sync consumer started")
	}

	router := h.NewRouter(h.RouterConfig{
		Sessions:           sessions,
		Attempts:           attempts,
		Logger:             log,
		SessionCookieName:  cfg.SessionCookieName,
		SecureCookies:      cfg.SecureCookies,
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("storefront starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")
	stopConsumer()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}
