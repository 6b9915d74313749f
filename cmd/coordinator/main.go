package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"tradecast/internal/core/ports"
	"tradecast/internal/core/services"
	httphandlers "tradecast/internal/handlers/http"
	"tradecast/internal/infrastructure/middleware"
	"tradecast/internal/infrastructure/monitoring"
	"tradecast/internal/infrastructure/persistence"
	"tradecast/internal/infrastructure/registry"
	"tradecast/internal/infrastructure/ws"
	"tradecast/pkg/config"
	"tradecast/pkg/logger"
	"tradecast/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := os.Getenv("TRADECAST_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	zl := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zl.Sync()
	log := zl.Sugar()

	tracer, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "tradecast-coordinator",
		JaegerURL:   cfg.Tracing.JaegerURL,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	var metrics ports.MetricsCollector = services.NoopMetrics{}
	if cfg.Monitoring.PrometheusEnabled {
		metrics = monitoring.NewPrometheusCollector()
	}

	var gateway ports.PersistenceGateway = persistence.NewNoopGateway()
	if cfg.Redis.Enabled {
		client, err := persistence.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, log)
		if err != nil {
			log.Fatalw("failed to connect to Redis", "error", err)
		}
		defer client.Close()
		gateway = persistence.NewRedisGateway(client, log)
	}

	conns := registry.NewConnectionRegistry()
	streams := registry.NewStreamRegistry(conns.Contains)

	durable := services.NewDurableWriter(gateway, cfg.Persistence.WriteTimeout, metrics, log)
	presence := services.NewPresenceService(conns, streams, durable, cfg.Presence.MirrorInterval, metrics, log)
	defer presence.Close()
	chat := services.NewChatService(conns, streams, durable, cfg.Chat.MaxMessageLength, metrics, log)
	relay := services.NewSignalRelay(conns, metrics, log)
	auth := services.NewJWTVerifier(cfg.Auth.JWTSecret)

	coordinator := services.NewSessionCoordinator(conns, streams, presence, chat, relay, auth, durable, metrics, log)

	wsServer := ws.NewServer(coordinator, ws.Options{
		PingInterval:      cfg.WebSocket.PingInterval,
		PongTimeout:       cfg.WebSocket.PongTimeout,
		WriteTimeout:      cfg.WebSocket.WriteTimeout,
		SendBufferSize:    cfg.WebSocket.SendBufferSize,
		MaxMessageBytes:   cfg.WebSocket.MaxMessageBytes,
		MessagesPerSecond: cfg.WebSocket.MessagesPerSecond,
		MessageBurst:      cfg.WebSocket.MessageBurst,
	}, log)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.NewRequestLoggingMiddleware(log))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	directory := services.NewStreamDirectory(conns, streams)
	httphandlers.NewDirectoryHandler(directory).SetupRoutes(router)
	httphandlers.NewHealthHandler(conns, streams).SetupRoutes(router)
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	router.GET("/ws", gin.WrapF(wsServer.HandleWebSocket))

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	go func() {
		log.Infow("starting coordinator", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server shutdown failed", "error", err)
	}
	if err := tracer.Shutdown(ctx); err != nil {
		log.Errorw("tracer shutdown failed", "error", err)
	}
}
