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

	"greendrake/trueque/internal/api"
	"greendrake/trueque/internal/api/middleware"
	"greendrake/trueque/internal/cache"
	"greendrake/trueque/internal/config"
	"greendrake/trueque/internal/db"
	"greendrake/trueque/internal/locks"
	"greendrake/trueque/internal/notify"
	"greendrake/trueque/internal/services"
	"greendrake/trueque/internal/storage"
	"greendrake/trueque/internal/store"
	"greendrake/trueque/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background tasks), 'all' (default)")

// openStore connects the configured backend.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		fmt.Println("Using in-memory store; state is lost on exit.")
		return store.NewMemoryStore(), func() {}, nil
	case config.BackendPostgres:
		gdb, err := db.ConnectPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		sqlStore, err := store.NewSQLStore(gdb)
		if err != nil {
			_ = db.DisconnectPostgres(gdb)
			return nil, nil, err
		}
		return sqlStore, func() {
			if err := sqlStore.Close(); err != nil {
				log.Printf("Error disconnecting from Postgres: %v", err)
			}
		}, nil
	default:
		mongoDb, err := db.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDbName)
		if err != nil {
			return nil, nil, err
		}
		mongoStore, err := store.NewMongoStore(ctx, mongoDb)
		if err != nil {
			_ = db.DisconnectMongo(mongoDb)
			return nil, nil, err
		}
		return mongoStore, func() {
			if err := db.DisconnectMongo(mongoDb); err != nil {
				log.Printf("Error disconnecting from MongoDB: %v", err)
			}
		}, nil
	}
}

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	switch cfg.RunMode {
	case "api", "bg", "all":
	default:
		log.Fatalf("Invalid run mode specified in config: %s.", cfg.RunMode)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	// Initialize Database
	st, closeStore, err := openStore(startCtx, cfg)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.StoreBackend, err)
	}
	defer closeStore()

	// Initialize Cache (Redis). Optional.
	redisClient, err := cache.ConnectRedis(startCtx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient); err != nil {
			log.Printf("Error disconnecting from Redis: %v", err)
		}
	}()

	// Setup Composite Sink. Log sink always, the rest when configured.
	sink := notify.NewCompositeSink(notify.NewLogSink())
	if cfg.EventLogPath != "" {
		fileSink, err := notify.NewFileSink(cfg.EventLogPath)
		if err != nil {
			log.Printf("WARNING: Failed to initialize file event sink (EVENT_LOG_PATH='%s'): %v. Proceeding without it.", cfg.EventLogPath, err)
		} else {
			sink.AddSink(fileSink)
			log.Printf("EVENT_LOG_PATH set to '%s', file event sink enabled.", cfg.EventLogPath)
		}
	}

	var (
		taskClient *asynq.Client
		redisOpt   asynq.RedisClientOpt
		inbox      cache.IInbox
		scheduler  services.AuctionScheduler
	)
	if redisClient != nil {
		redisOpt = cache.AsynqOpt(redisClient)
		taskClient = tasks.NewClient(redisOpt)
		defer taskClient.Close()

		sink.AddSink(notify.NewRedisSink(redisClient))
		sink.AddSink(notify.NewTaskSink(taskClient))
		inbox = cache.NewRedisInbox(redisClient, cache.DefaultInboxSize)
		scheduler = tasks.NewCloseScheduler(taskClient)
	} else {
		log.Println("REDIS_ADDR not set: no live events, inbox or scheduled closes; using the local sweeper.")
	}

	// Initialize Services. Both share one locker so all writes to a listing are serialized.
	deps := services.Deps{
		Listings:  st,
		Offers:    st,
		Accounts:  services.NewAccountService(st, st),
		Sink:      sink,
		Locker:    locks.NewKeyedLocker(),
		Scheduler: scheduler,
	}
	listingService := services.NewListingService(deps, cfg)
	negotiationService := services.NewNegotiationService(deps, cfg)

	// Background context for long-running loops, cancelled at shutdown.
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	// WaitGroup for managing goroutines
	var wg sync.WaitGroup

	// Channel to signal shutdown from Service API
	shutdownChan := make(chan struct{}, 1) // Buffered channel

	// Start Service API (always runs)
	var indexes store.IndexMaintainer
	if im, ok := st.(store.IndexMaintainer); ok {
		indexes = im
	}
	serviceRouter := api.SetupServiceRouter(cfg, negotiationService, indexes, shutdownChan)
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
	var sweepScheduler *asynq.Scheduler

	fmt.Printf("Starting application in '%s' mode...\n", cfg.RunMode)

	apiMode := func() {
		fmt.Println("Starting main API server...")
		var s3Storage storage.IS3Storage
		if cfg.AwsS3Bucket != "" {
			s3Storage, err = storage.NewS3Storage(startCtx, cfg)
			if err != nil {
				log.Printf("WARNING: Failed to initialize S3 storage: %v. Upload URLs disabled.", err)
				s3Storage = nil
			}
		}

		rateLimiter := middleware.NewRateLimiterMiddleware(cfg)
		go rateLimiter.RunCleanup(runCtx, time.Minute)

		mainApiRouter := api.SetupRouter(cfg, listingService, negotiationService, s3Storage, inbox, rateLimiter)
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
		if redisClient == nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				tasks.RunLocalSweeper(runCtx, negotiationService, cfg.AuctionSweepInterval)
			}()
			return
		}

		taskProcessor := tasks.NewTaskProcessor(negotiationService, inbox)
		backgroundTaskSrv = tasks.SetupServer(redisOpt)
		if err := backgroundTaskSrv.Start(taskProcessor.NewServeMux()); err != nil {
			log.Fatalf("Background task server error: %v", err)
		}
		fmt.Println("Background task server started.")

		sweepScheduler, err = tasks.SetupScheduler(redisOpt, cfg.AuctionSweepInterval)
		if err != nil {
			log.Fatalf("Failed to set up auction sweep scheduler: %v", err)
		}
		if err := sweepScheduler.Start(); err != nil {
			log.Fatalf("Auction sweep scheduler error: %v", err)
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

	if sweepScheduler != nil {
		fmt.Println("Shutting down auction sweep scheduler...")
		sweepScheduler.Shutdown()
	}
	if backgroundTaskSrv != nil {
		fmt.Println("Shutting down Background Task server...")
		backgroundTaskSrv.Shutdown()
	}
	cancelRun()

	// Wait for all server goroutines to finish
	fmt.Println("Waiting for servers to stop...")
	wg.Wait()

	fmt.Println("Server gracefully stopped")
}
