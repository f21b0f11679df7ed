package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/scripttrimmer/api/internal/client"
	"github.com/scripttrimmer/api/internal/config"
	"github.com/scripttrimmer/api/internal/handler"
	"github.com/scripttrimmer/api/internal/middleware"
	"github.com/scripttrimmer/api/internal/progress"
	"github.com/scripttrimmer/api/internal/service"
	"github.com/scripttrimmer/api/internal/sse"
	"github.com/scripttrimmer/api/internal/websocket"
	"github.com/scripttrimmer/api/internal/worker"
	"github.com/scripttrimmer/api/pkg/response"
)

// @title          ScriptTrimmer API
// @version        1.0
// @description    Backend API for ScriptTrimmer — video transcription, topic analysis and segment extraction.
// @host           localhost:8000
// @BasePath       /
// @schemes        http https
// @securityDefinitions.apikey BearerAuth
// @in             header
// @name           Authorization
// @description    Enter your bearer token in the format **Bearer &lt;token&gt;**
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Progress store backs both the SSE and WebSocket streams
	store := progress.NewRedisStore(redisClient)

	// Initialize external clients
	aiClient := client.NewAIClient(&cfg.OpenAI)
	ffmpegClient := client.NewFFmpegClient(&cfg.FFmpeg)

	// Initialize S3 client (optional - continues if not configured)
	var storage client.StorageClient
	if cfg.S3.AccessKeyID != "" && cfg.S3.SecretAccessKey != "" {
		s3Client, err := client.NewS3Client(&cfg.S3)
		if err != nil {
			log.Printf("Warning: S3 client not initialized: %v", err)
		} else {
			storage = s3Client
		}
	} else {
		log.Println("Info: S3 storage not configured, segments stay local and s3:// references are rejected")
	}

	fetchClient := client.NewFetchClient(&cfg.FFmpeg, storage)

	// Initialize services
	processService := service.NewProcessService(redisClient, asynqClient, store)
	uploadService := service.NewUploadService(storage)

	// Initialize stream transports
	publisher := sse.NewPublisher(store)
	relay := websocket.NewRelay(store)

	// Initialize handlers
	processHandler := handler.NewProcessHandler(processService, validate)
	uploadHandler := handler.NewUploadHandler(uploadService, validate)
	streamHandler := handler.NewStreamHandler(publisher, relay, processService)
	authHandler := handler.NewAuthHandler(cfg.JWT.Secret)

	// Initialize middleware
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind a gateway: auth is handled by ForwardAuth, read X-User-* headers
		log.Println("Info: Gateway mode enabled — using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		apiAuthMiddleware = middleware.NewAuthMiddleware(cfg.JWT.Secret).Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    10 * 1024 * 1024, // 10MB; videos go through presigned uploads
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"openai": aiClient.IsConfigured(),
				"s3":     storage != nil,
				"redis":  redisClient.Ping(c.Context()).Err() == nil,
				"auth":   cfg.JWT.Secret != "",
			},
		})
	})

	// ForwardAuth verification endpoint (internal, called by the gateway)
	app.Get("/auth/verify", authHandler.Verify)

	// API routes
	api := app.Group("/api", apiAuthMiddleware)

	// Process routes
	process := api.Group("/process")
	process.Post("/start", rateLimiter.ProcessLimit(cfg.RateLimit.ProcessPerHour), processHandler.Start)
	process.Get("/status/:key", processHandler.Status)
	process.Get("/result/:key", processHandler.Result)

	// Upload routes
	upload := api.Group("/upload", rateLimiter.PresignLimit(cfg.RateLimit.PresignPerHour))
	upload.Post("/presign", uploadHandler.Presign)

	// Progress stream routes. Streams are unauthenticated read-only views
	// keyed by the derived job key.
	app.Get("/stream/:key?", streamHandler.Events)
	app.Use("/ws", streamHandler.Upgrade)
	app.Get("/ws/jobs/:key", streamHandler.Socket())

	// Start Asynq worker server
	go startWorkerServer(cfg, processService, fetchClient, ffmpegClient, aiClient, storage)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(
	cfg *config.Config,
	processService *service.ProcessService,
	fetchClient *client.FetchClient,
	ffmpegClient *client.FFmpegClient,
	aiClient *client.AIClient,
	storage client.StorageClient,
) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			// Pipelines are ffmpeg-bound; keep concurrency low.
			Concurrency: 2,
			Queues: map[string]int{
				"process": 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	processWorker := worker.NewProcessWorker(
		processService,
		fetchClient,
		ffmpegClient,
		aiClient,
		aiClient,
		storage,
		&cfg.Pipeline,
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeProcess, processWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    response.CodeServiceError,
			"message": message,
		},
	})
}
