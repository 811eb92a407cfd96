package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/technosupport/ts-evac/internal/ai"
	"github.com/technosupport/ts-evac/internal/alerts"
	"github.com/technosupport/ts-evac/internal/api"
	"github.com/technosupport/ts-evac/internal/capture"
	"github.com/technosupport/ts-evac/internal/config"
	"github.com/technosupport/ts-evac/internal/data"
	"github.com/technosupport/ts-evac/internal/dispatch"
	"github.com/technosupport/ts-evac/internal/floors"
	"github.com/technosupport/ts-evac/internal/health"
	"github.com/technosupport/ts-evac/internal/pipeline"
	"github.com/technosupport/ts-evac/internal/radio"
	"github.com/technosupport/ts-evac/internal/ratelimit"
	"github.com/technosupport/ts-evac/internal/replicate"
)

func main() {
	cfg := config.FromEnv()

	// 1. Stores
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL must be set")
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("DB open error: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("DB ping error: %v", err)
	}

	var cloudDB *sql.DB
	if cfg.CloudDatabaseURL != "" {
		cloudDB, err = sql.Open("postgres", cfg.CloudDatabaseURL)
		if err != nil {
			log.Fatalf("Cloud DB open error: %v", err)
		}
		defer cloudDB.Close()
		if err := cloudDB.Ping(); err != nil {
			// Replication retries on schedule; startup proceeds.
			log.Printf("[WARN] cloud DB unreachable at startup: %v", err)
		}
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Printf("[WARN] redis unreachable, envelope cache disabled: %v", err)
		rdb = nil
	}

	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(-1),
		)
		if err != nil {
			log.Printf("[WARN] NATS connect failed, alerts disabled: %v", err)
		}
	}
	var alertsPub *alerts.Publisher
	if nc != nil {
		alertsPub = alerts.NewPublisher(nc, 3)
	}

	floorModel := data.FloorModel{DB: db}
	imageModel := data.ImageModel{DB: db}
	routeModel := data.RouteModel{DB: db}
	settingsModel := data.SettingsModel{DB: db}

	// 2. Fleet sanity check. A floor plan with duplicate or dangling ids
	// would route people into walls; refuse to start on one.
	if all, err := floorModel.List(context.Background()); err != nil {
		log.Printf("[WARN] floor list failed at startup: %v", err)
	} else if err := floors.ValidateFleet(all); err != nil {
		log.Fatalf("Floor plan validation failed: %v", err)
	}

	// 3. Routing weight knobs, hot-reloadable.
	weights, err := config.LoadWeightsFile(cfg.WeightsFile, config.DefaultWeights())
	if err != nil {
		log.Printf("[WARN] weight file %s unreadable, using defaults: %v", cfg.WeightsFile, err)
	}
	weightStore := config.NewWeightStore(weights)
	watchDone := make(chan struct{})
	config.WatchWeights(watchDone, cfg.WeightsFile, weightStore)

	// 4. Capture and detection
	acquirer := capture.NewAcquirer(10 * time.Second)
	placer := &capture.Placer{BaseDir: cfg.LocalStorageDir}
	var objStore capture.ObjectStore
	if cfg.ObjectStoreEndpoint != "" {
		objStore = capture.NewHTTPObjectStore(cfg.ObjectStoreEndpoint, cfg.AIAPIKey, 30*time.Second)
	}

	fuser := &ai.Fuser{
		Local: ai.NewHTTPDetector("local", cfg.LocalAIEndpoint, "", cfg.LocalAITimeout),
	}
	if cfg.CloudAIEndpoint != "" {
		fuser.Cloud = ai.NewHTTPDetector("cloud", cfg.CloudAIEndpoint, cfg.AIAPIKey, cfg.CloudAITimeout)
	}

	tracker := health.NewTracker(cfg.CameraFailureThreshold, alertsPub)

	// 5. Dispatch
	transmitter := radio.NewTransmitter(cfg)
	hub := dispatch.NewHub(floorModel)
	selector := &dispatch.Selector{
		Hub:      hub,
		Radio:    transmitter,
		Cache:    rdb,
		CacheTTL: 10 * time.Minute,
	}

	// 6. Pipeline
	cycle := &pipeline.Cycle{
		Cfg:      cfg,
		Weights:  weightStore,
		Floors:   floorModel,
		Images:   imageModel,
		Routes:   routeModel,
		Settings: settingsModel,
		Acquirer: acquirer,
		Placer:   placer,
		Store:    objStore,
		Fuser:    fuser,
		Health:   tracker,
		Dispatch: selector,
		Alerts:   alertsPub,
	}
	scheduler := pipeline.NewScheduler(cfg.CaptureInterval, cycle)
	scheduler.Start()

	// 7. Cloud replication
	var replicator *replicate.Replicator
	var syncRunner api.SyncRunner
	if cloudDB != nil {
		replicator = replicate.New(floorModel, imageModel, routeModel, settingsModel, cloudDB)
		replicator.Start()
		syncRunner = replicator
	}

	// 8. HTTP surface
	handler := &api.Handler{
		Floors:   floorModel,
		Routes:   routeModel,
		Settings: settingsModel,
		Selector: selector,
		Sync:     syncRunner,
		Health:   tracker,
	}
	var limiter *ratelimit.Limiter
	if rdb != nil {
		limiter = ratelimit.NewLimiter(rdb, "evac-api-salt")
	}
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewRouter(handler, hub, limiter),
	}
	go func() {
		log.Printf("ts-evac listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// 9. Graceful shutdown. The in-flight cycle finishes, including a
	// radio transmission already on the air.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Println("shutdown requested")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	srv.Shutdown(ctx)

	scheduler.Stop()
	if replicator != nil {
		replicator.Stop()
	}
	close(watchDone)
	hub.CloseAll()
	if nc != nil {
		nc.Drain()
	}
	log.Println("shutdown complete")
}
