package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/api"
	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/cache"
	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/config"
	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/db"
	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/email"
	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/genai"
	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/services"
	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background tasks), 'all' (default)")

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Database
	mongoClient, mongoDb, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.DisconnectDB(mongoClient); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
		}
	}()

	if err := db.EnsureIndexes(context.Background(), mongoDb); err != nil {
		log.Fatalf("Failed to ensure database indexes: %v", err)
	}

	// Initialize Cache (Redis)
	redisClient, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient); err != nil {
			log.Printf("Error disconnecting from Redis: %v", err)
		}
	}()

	// Initialize Email Sender
	var primaryEmailSender email.Sender
	if cfg.MockServices {
		log.Println("MOCK_SERVICES enabled: Using Redis email sender.")
		primaryEmailSender = email.NewRedisSender(redisClient, cfg)
	} else {
		log.Println("MOCK_SERVICES disabled or not set: Using SMTP/Logging email sender.")
		primaryEmailSender = email.NewSMTPSender(cfg)
	}

	// The composite sender always includes the primary sender; a file logger
	// is added when EMAIL_LOG_FILE is set.
	compositeSender := email.NewCompositeSender(primaryEmailSender)
	if cfg.EmailLogFile != "" {
		log.Printf("EMAIL_LOG_FILE set to '%s', enabling file email logger.", cfg.EmailLogFile)
		fileSender, err := email.NewFileSender(cfg.EmailLogFile)
		if err != nil {
			log.Printf("WARNING: Failed to initialize file email sender (EMAIL_LOG_FILE='%s'): %v. Proceeding without file logging.", cfg.EmailLogFile, err)
		} else {
			compositeSender.AddSender(fileSender)
		}
	}
	finalEmailSender := email.Sender(compositeSender)

	// Initialize generated-response backend. Without an API key the bot falls
	// back to rule-based replies only.
	var responderBackend services.ResponderBackend
	if cfg.GeminiApiKey != "" {
		genaiClient, err := genai.NewClient(context.Background(), cfg.GeminiApiKey)
		if err != nil {
			log.Printf("WARNING: Failed to initialize generative backend: %v. Falling back to rule-based replies.", err)
		} else {
			defer func() {
				if err := genaiClient.Close(); err != nil {
					log.Printf("Error closing generative backend: %v", err)
				}
			}()
			responderBackend = genaiClient
		}
	} else {
		log.Println("GEMINI_API_KEY not set: bot replies are rule-based only.")
	}

	// Initialize Task Client and Dispatcher
	taskClient := tasks.NewClient(redisClient)
	defer func() {
		if err := taskClient.Close(); err != nil {
			log.Printf("Error closing task client: %v", err)
		}
	}()
	dispatcher := tasks.NewDispatcher(taskClient)

	// Services needed by the task processor. API handler services are
	// initialized within api.SetupRouter.
	responder := services.NewResponder()
	botService := services.NewBotService(mongoDb, cfg, responder, responderBackend, dispatcher)

	taskProcessor := tasks.NewTaskProcessor(cfg, finalEmailSender, botService)

	// WaitGroup for managing goroutines
	var wg sync.WaitGroup

	// Channel to signal shutdown from Service API
	shutdownChan := make(chan struct{}, 1) // Buffered channel

	// Start Service API (always runs)
	serviceRouter := api.SetupServiceRouter(cfg, redisClient, shutdownChan)
	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: serviceRouter,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		fmt.Printf("Service API listening on :%s\n", cfg.ServiceApiPort)
		if err := serviceSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Service API ListenAndServe error: %v", err)
		}
		fmt.Println("Service API server stopped.")
	}()

	// --- Mode-specific servers ---
	var mainApiSrv *http.Server
	var backgroundTaskSrv *asynq.Server
	var scanScheduler *asynq.Scheduler

	fmt.Printf("Starting application in '%s' mode...\n", cfg.RunMode)

	apiMode := func() {
		fmt.Println("Starting main API server...")
		mainApiRouter := api.SetupRouter(cfg, mongoDb, redisClient, dispatcher)
		mainApiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: mainApiRouter,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			fmt.Printf("Main API listening on :%s\n", cfg.ApiPort)
			if err := mainApiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Main API ListenAndServe error: %v", err)
			}
			fmt.Println("Main API server stopped.")
		}()
	}

	bgMode := func() {
		fmt.Println("Starting background worker...")
		var mux *asynq.ServeMux
		backgroundTaskSrv, mux = tasks.SetupServer(redisClient, taskProcessor, true)
		if backgroundTaskSrv != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				fmt.Println("Background task server starting...")
				if err := backgroundTaskSrv.Run(mux); err != nil {
					log.Fatalf("Background task server error: %v", err)
				}
				fmt.Println("Background task server stopped.")
			}()

			// Periodic scan that catches consultations whose per-submission
			// activation check never arrived.
			scanScheduler, err = tasks.NewScanScheduler(redisClient, cfg.BotScanInterval)
			if err != nil {
				log.Fatalf("Failed to set up bot activation scan scheduler: %v", err)
			}
			if err := scanScheduler.Start(); err != nil {
				log.Fatalf("Failed to start bot activation scan scheduler: %v", err)
			}
		}
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "bg":
		bgMode()
	case "all":
		apiMode()
		bgMode()
	default:
		log.Fatalf("Invalid run mode specified in config: %s.", cfg.RunMode)
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		fmt.Printf("\nReceived signal: %s. Shutting down gracefully...\n", sig)
	case <-shutdownChan: // Listen for shutdown signal from Service API
		fmt.Println("\nShutdown requested via Service API. Shutting down gracefully...")
	}

	// Create context with timeout for shutdown
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	// Shutdown servers
	fmt.Println("Shutting down Service API server...")
	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		log.Printf("Service API server shutdown error: %v", err)
	}

	if mainApiSrv != nil {
		fmt.Println("Shutting down Main API server...")
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			log.Printf("Main API server shutdown error: %v", err)
		}
	}

	if scanScheduler != nil {
		fmt.Println("Shutting down activation scan scheduler...")
		scanScheduler.Shutdown()
	}

	if backgroundTaskSrv != nil {
		fmt.Println("Shutting down Background Task server...")
		backgroundTaskSrv.Shutdown()
	}

	// Wait for all server goroutines to finish
	fmt.Println("Waiting for servers to stop...")
	wg.Wait()

	fmt.Println("Server gracefully stopped")
}
