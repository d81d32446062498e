package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"taskly-chat/internal/cache"
	"taskly-chat/internal/config"
	"taskly-chat/internal/db"
	"taskly-chat/internal/handlers"
	"taskly-chat/internal/logging"
	"taskly-chat/internal/observability"
	"taskly-chat/internal/rabbitmq"
	"taskly-chat/internal/repositories"
	"taskly-chat/internal/telemetry"
	"taskly-chat/internal/tracing"
	"taskly-chat/internal/ws"
)

const relayService = "taskly-chat-relay"

func relayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the development chat relay (history + websocket broadcast)",
		RunE:  runRelay,
	}
	cmd.Flags().Int("port", 0, "listen port (overrides relay.port)")
	return cmd
}

func runRelay(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Relay.Port = port
	}

	logging.Init(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, ServiceName: relayService})
	logger := logging.L()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, relayService, cfg.OTel.Endpoint)
	if err != nil {
		logger.Warn().Err(err).Msg("tracing disabled")
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	database, err := db.Connect(cfg.DB.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to db: %w", err)
	}
	defer database.Close()

	historyCache := openHistoryCache(cfg.Redis, logger)
	if historyCache != nil {
		defer historyCache.Close()
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	logger.Info().
		Str("mode", rabbitmq.PublisherMode(publisher)).
		Str("reason", rabbitmq.PublisherNoopReason(publisher)).
		Msg("event publisher ready")

	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", relayService, cfg.Relay.Environment)

	messageRepo := repositories.NewMessageRepo(database)
	hub := ws.NewHub(logger)
	historyHandler := handlers.NewHistoryHandler(messageRepo, historyCache)
	chatWS := ws.NewChatWebSocketHandler(hub, messageRepo, historyCache, logger)

	router := newRelayRouter(*logger, historyHandler, chatWS)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Relay.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("relay listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	audit.Emit(ctx, "INFO", "relay started", "", nil)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	audit.Emit(shutdownCtx, "INFO", "relay stopping", "", nil)
	logger.Info().Int("clients", hub.Count()).Msg("relay shutting down")
	return srv.Shutdown(shutdownCtx)
}

func newRelayRouter(logger zerolog.Logger, historyHandler *handlers.HistoryHandler, chatWS *ws.ChatWebSocketHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(relayService))
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(logging.GinMiddleware(logger))

	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/chat/messages", historyHandler.GetMessages)
	router.GET("/ws/chat", chatWS.Handle)
	return router
}

// openHistoryCache returns nil when redis is not configured or unreachable.
func openHistoryCache(cfg config.RedisConfig, logger *zerolog.Logger) cache.HistoryCache {
	if cfg.Address == "" {
		logger.Info().Msg("history cache disabled")
		return nil
	}
	c, err := cache.NewRedisHistoryCache(cfg.Address, cfg.Password, cfg.DB, cfg.Prefix, cfg.TTL)
	if err != nil {
		logger.Warn().Err(err).Str("address", cfg.Address).Msg("history cache disabled")
		return nil
	}
	return c
}
