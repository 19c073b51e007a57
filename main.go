package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jupark12/go-transcription-queue/audio"
	"github.com/jupark12/go-transcription-queue/cleanup"
	"github.com/jupark12/go-transcription-queue/config"
	"github.com/jupark12/go-transcription-queue/logger"
	"github.com/jupark12/go-transcription-queue/processor"
	"github.com/jupark12/go-transcription-queue/queue"
	"github.com/jupark12/go-transcription-queue/server"
	"github.com/jupark12/go-transcription-queue/service"
	"github.com/jupark12/go-transcription-queue/store"
	"github.com/jupark12/go-transcription-queue/transcribe"
	"github.com/jupark12/go-transcription-queue/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	appLog := logger.NewAppSLoggerWithLevel(cfg.AppHash, cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	appLog.Info("init job store")
	jobStore, closeStore, err := openStore(ctx, cfg, appLog)
	if err != nil {
		appLog.Fatal("unable to open job store", err)
	}
	defer closeStore()

	appLog.Info("init pipeline")
	segmenter := audio.NewSegmenter(cfg.FFmpegPath, nil, appLog)
	checkStartup(ctx, cfg, segmenter, appLog)

	files := cleanup.NewCoordinator(cfg.UploadDir, appLog)
	jobQueue := queue.NewJobQueue(cfg.QueueCapacity)
	proc := processor.NewProcessor(
		jobStore,
		segmenter,
		transcribe.NewWhisperClient(cfg.Whisper, appLog),
		files,
		cfg.DefaultSegmentSeconds,
		appLog,
	)
	svc := service.NewService(cfg, jobStore, audio.NewValidator(cfg.MaxFileSizeBytes()), files, jobQueue, appLog)

	// workers keep running past the signal so in-flight jobs can finish
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	wsCtx, stopWS := context.WithCancel(context.Background())
	defer stopWS()
	wsManager := server.NewWebSocketManager(appLog)
	wsManager.Start(wsCtx)
	proc.SetNotifier(wsManager.BroadcastJobUpdate)
	svc.SetNotifier(wsManager.BroadcastJobUpdate)

	pool := worker.NewPool(jobQueue, proc, cfg.Workers, appLog)
	pool.Start(workerCtx)

	interrupted, requeued, err := svc.Recover(ctx)
	if err != nil {
		appLog.Error("startup recovery failed", err)
	} else {
		appLog.Info("startup recovery finished",
			slog.Int("interrupted", interrupted),
			slog.Int("requeued", requeued),
		)
	}

	go cleanup.NewSweeper(jobStore, files, cfg.Cleanup, appLog).Run(ctx)

	appHTTPServer := server.NewServer(cfg, svc, wsManager, appLog)
	go func() {
		if err := appHTTPServer.Start(); err != nil {
			appLog.Fatal("unable to start http service", err)
		}
	}()
	appLog.Info("transcription service started", slog.Int("workers", cfg.Workers))

	<-ctx.Done()
	appLog.Info("shutting down gracefully")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := appHTTPServer.Shutdown(shutdownCtx); err != nil {
		appLog.Error("unable to stop http service", err)
	}

	stopWorkers()
	if err := pool.Stop(); err != nil {
		appLog.Error("worker pool stopped with error", err)
	}
	stopWS()
	<-wsManager.Done()
}

// checkStartup stops the process when ffmpeg or the upload directory is unusable.
func checkStartup(ctx context.Context, cfg config.Config, segmenter *audio.Segmenter, log logger.AppLogger) {
	version, err := segmenter.Version(ctx)
	if err != nil {
		log.Fatal("ffmpeg check failed", err)
	}
	log.Info("ffmpeg available", slog.String("version", version))

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Fatal("unable to create upload directory", err, slog.String("dir", cfg.UploadDir))
	}
	if cfg.Whisper.APIKey == "" {
		log.Warn("OPENAI_API_KEY is not set, every transcription will fail")
	}
	if cfg.APIKey == "" {
		log.Warn("no API key configured, the HTTP API is open")
	}
}

// openStore picks PostgreSQL when a database URL is configured, otherwise the file-backed memory store.
func openStore(ctx context.Context, cfg config.Config, log logger.AppLogger) (store.JobStore, func(), error) {
	if cfg.DatabaseURL == "" {
		memStore, err := store.NewMemoryStore(cfg.DataDir, log)
		if err != nil {
			return nil, nil, err
		}
		if err := memStore.LoadJobs(); err != nil {
			log.Warn("failed to load existing jobs", slog.String("error", err.Error()))
		}
		return memStore, func() {}, nil
	}

	pool, err := getDBConnect(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return nil, nil, err
	}
	pgStore := store.NewPostgresStore(pool)
	if err := pgStore.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pgStore, pool.Close, nil
}

func getDBConnect(ctx context.Context, dbURL string, log logger.AppLogger) (*pgxpool.Pool, error) {
	for i := 0; i < 5; i++ {
		pool, err := pgxpool.New(ctx, dbURL)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		log.Error("can't connect to db", err, slog.Int("attempt", i))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i) * 5 * time.Second):
		}
	}
	return nil, fmt.Errorf("can't connect to db")
}
