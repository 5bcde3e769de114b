package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"message-service/internal/config"
	"message-service/internal/db"
	"message-service/internal/digest"
	"message-service/internal/grpcserver"
	"message-service/internal/handlers"
	"message-service/internal/identity"
	"message-service/internal/media"
	"message-service/internal/middleware"
	"message-service/internal/observability"
	"message-service/internal/rabbitmq"
	"message-service/internal/repositories"
	"message-service/internal/stream"
	"message-service/internal/tasks"
	"message-service/internal/telemetry"
)

const (
	shutdownTimeout    = 10 * time.Second
	consumerRetryDelay = 5 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	log.Printf("rabbitmq publisher mode=%s reason=%s", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))
	observability.SetPublisher(publisher)

	messageRepo := repositories.NewMessageRepo(database)
	userRepo := repositories.NewUserRepo(database)

	audit := telemetry.NewAuditEmitter(publisher, "audit.message", cfg.ServiceName, cfg.Environment)
	registry := stream.NewRegistry()
	dispatcher := stream.NewDispatcher(registry)
	streamHandler := stream.NewHandler(registry)
	queue := tasks.NewQueue(cfg.DispatchWorkers, cfg.DispatchQueueSize)
	uploader := media.NewCDNUploader(cfg.MediaUploadURL, cfg.MediaURLEndpoint, cfg.MediaPrivateKey, cfg.MediaFolder)
	verifier := identity.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	limiter := middleware.NewRateLimiter(cfg.SendRateRPS, cfg.SendRateBurst, 10*time.Minute)

	messageHandler := handlers.NewMessageHandler(messageRepo, uploader, dispatcher, queue, audit)

	router := gin.New()

	// middlewares
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/api/message/:userId", streamHandler.HandleSSE)
	router.GET("/ws/message/:userId", streamHandler.HandleWebSocket)
	router.POST("/api/message/send", authMiddleware, limiter.Middleware(), messageHandler.SendMessage)
	router.POST("/api/message/get", authMiddleware, messageHandler.GetChatMessages)
	router.GET("/api/message/recent", authMiddleware, messageHandler.RecentMessages)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "streams": registry.Len()})
	})
	handlers.RegisterDebugRoutes(router, registry, cfg.DebugRoutes)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcServer := grpcserver.New(cfg.ServiceName)
	syncer := identity.NewSyncer(userRepo)
	consumer := rabbitmq.NewConsumer(cfg.AMQPURL, cfg.AMQPExchange, cfg.IdentityQueue, "identity.#")
	scheduler := digest.NewScheduler(cfg.DigestCron, messageRepo, publisher)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("http server listening port=%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return grpcServer.ListenAndServe(cfg.GRPCPort)
	})
	g.Go(func() error {
		for {
			err := consumer.Run(gctx, syncer.HandleDelivery)
			if gctx.Err() != nil {
				return nil
			}
			log.Printf("identity consumer stopped, retrying in %s: %v", consumerRetryDelay, err)
			select {
			case <-gctx.Done():
				return nil
			case <-time.After(consumerRetryDelay):
			}
		}
	})
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Printf("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		registry.CloseAll()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown error: %v", err)
		}
		grpcServer.Stop()
		if err := queue.Shutdown(shutdownCtx); err != nil {
			log.Printf("task queue shutdown error: %v", err)
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Printf("tracing shutdown error: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("server error: %v", err)
	}
}
