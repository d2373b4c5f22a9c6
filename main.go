package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"collab-service/internal/auth"
	"collab-service/internal/config"
	"collab-service/internal/db"
	"collab-service/internal/handlers"
	"collab-service/internal/middleware"
	"collab-service/internal/observability"
	"collab-service/internal/rabbitmq"
	"collab-service/internal/ratelimit"
	"collab-service/internal/repositories"
	"collab-service/internal/telemetry"
	"collab-service/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	config.ConfigureLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		logrus.WithError(err).Fatal("failed to init tracing")
	}

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect to db")
	}
	defer database.Close()

	roomRepo := repositories.NewRoomRepo(database, repositories.NewRoomIDGenerator())
	projectRepo := repositories.NewProjectRepo(database)
	userRepo := repositories.NewUserRepo(database)

	// Nothing is connected yet, so any active entries are left over from a previous run.
	if cleared, err := roomRepo.ClearActiveParticipants(ctx); err != nil {
		logrus.WithError(err).Warn("failed to clear stale active participants")
	} else if cleared > 0 {
		logrus.WithField("count", cleared).Info("cleared stale active participants")
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	logrus.WithFields(logrus.Fields{
		"mode":   rabbitmq.PublisherMode(publisher),
		"reason": rabbitmq.PublisherNoopReason(publisher),
	}).Info("event publisher ready")
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRouting, cfg.ServiceName, cfg.Environment)

	verifier := auth.NewJWTVerifier(cfg.JWTSecret, userRepo)
	limiter := ratelimit.New(cfg.HandshakeRateLimit, cfg.HandshakeRateWindow, cfg.RateLimitMaxKeys)
	hub := ws.NewHub(roomRepo, projectRepo, verifier)
	wsHandler := ws.NewHandler(hub, limiter, audit, cfg.SendBufferSize, cfg.MaxMessageSize)

	roomHandler := handlers.NewRoomHandler(roomRepo, hub, audit)
	projectHandler := handlers.NewProjectHandler(roomRepo, projectRepo, hub, audit)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.RequestID())
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": hub.Sessions().Len()})
	})
	router.GET("/ws", wsHandler.Handle)

	api := router.Group("/", middleware.AuthMiddleware(verifier))
	handlers.RegisterRoutes(api, roomHandler, projectHandler)
	handlers.RegisterDebugRoutes(router, audit, hub, cfg.DebugRoutes)

	health := observability.NewHealthServer()
	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logrus.WithError(err).Fatal("failed to listen for grpc")
	}
	go func() {
		if err := health.Serve(grpcLis); err != nil {
			logrus.WithError(err).Error("grpc health server stopped")
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logrus.WithField("port", cfg.Port).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("server error")
		}
	}()
	health.MarkServing()

	<-ctx.Done()
	logrus.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("http shutdown failed")
	}
	health.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("tracing shutdown failed")
	}
}
