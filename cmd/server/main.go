package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"stream-segmenter/internal/ads"
	"stream-segmenter/internal/api"
	"stream-segmenter/internal/detector"
	"stream-segmenter/internal/ffmpeg"
	"stream-segmenter/internal/platform/config"
	"stream-segmenter/internal/platform/logger"
	"stream-segmenter/internal/platform/metrics"
	"stream-segmenter/internal/playlist"
	"stream-segmenter/internal/schedule"
	"stream-segmenter/internal/storage"
	"stream-segmenter/internal/stream"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	workDir := config.GetEnv("WORK_DIR", "./data")
	serverURL := config.GetEnv("SERVER_URL", "http://localhost:"+port)
	ffmpegPath := config.GetEnv("FFMPEG_PATH", "ffmpeg")
	readyTimeout := config.GetEnvDuration("READY_TIMEOUT", stream.DefaultReadyTimeout)

	log := logger.New(logLevel, logFormat)
	met := metrics.New()

	workDir, err := filepath.Abs(workDir)
	if err != nil {
		log.Error("invalid work dir", "error", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		log.Error("create work dir failed", "error", err)
		os.Exit(1)
	}

	backends := storage.NewBackends(context.Background(), storage.Settings{
		Root:      workDir,
		ServerURL: serverURL,

		AWSRegion:    config.GetEnv("AWS_REGION", ""),
		AWSAccessKey: config.GetEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey: config.GetEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSBucket:    config.GetEnv("AWS_S3_BUCKET", ""),

		GCPProjectID:       config.GetEnv("GCP_PROJECT_ID", ""),
		GCPBucket:          config.GetEnv("GCP_BUCKET", ""),
		GCPCredentialsFile: config.GetEnv("GCP_CREDENTIALS_FILE", ""),

		AzureConnection: config.GetEnv("AZURE_STORAGE_CONNECTION_STRING", ""),
		AzureAccount:    config.GetEnv("AZURE_STORAGE_ACCOUNT", ""),
		AzureContainer:  config.GetEnv("AZURE_STORAGE_CONTAINER", ""),
	}, log)
	router := storage.NewRouter(backends)

	engine := playlist.NewEngine(router, log)
	encoder := ffmpeg.NewManager(ffmpegPath, log)
	watcher := detector.New(router, engine, met, log)
	orch := stream.New(encoder, watcher, engine, router, met, workDir, log)
	orch.SetReadyTimeout(readyTimeout)

	store, err := schedule.NewRedisStore(schedule.RedisConfig{
		Addr:     config.GetEnv("REDIS_ADDR", "localhost:6379"),
		Password: config.GetEnv("REDIS_PASSWORD", ""),
		DB:       config.GetEnvInt("REDIS_DB", 0),
	})
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}

	notifyBefore := parseMinutes(config.GetEnvList("SCHEDULER_NOTIFY_MINUTES", []string{"60", "10"}))
	sched := schedule.New(store, orch, schedule.LogNotifier{Log: log}, notifyBefore, met, log)

	pipeline := ads.New(encoder, engine, router, orch, sched, met, workDir, log)
	h := api.NewHandler(orch, engine, router, sched, pipeline,
		filepath.Join(workDir, "uploads"), log, met)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveStreams(orch.ActiveCount()) }).ServeHTTP(w, r)
	})
	h.Routes(r)

	// Local-backend segments are served straight off the working tree.
	streamFiles := http.FileServer(http.Dir(filepath.Join(workDir, "streams")))
	r.Handle("/streams/*", http.StripPrefix("/streams/", streamFiles))

	schedCtx, stopSched := context.WithCancel(context.Background())
	go sched.Run(schedCtx)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"work_dir", workDir,
		"storage_backends", len(backends),
		"scheduler_instance", sched.InstanceID(),
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")
	stopSched()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	for id := range orch.Active() {
		orch.Stop(id)
	}

	log.Info("server stopped")
}

func parseMinutes(values []string) []int {
	minutes := make([]int, 0, len(values))
	for _, v := range values {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			minutes = append(minutes, n)
		}
	}
	return minutes
}
