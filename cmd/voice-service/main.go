// main package for the voice-service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-service/internal/backend/chatterbox"
	"github.com/book-expert/voice-service/internal/backend/melo"
	"github.com/book-expert/voice-service/internal/backend/piper"
	"github.com/book-expert/voice-service/internal/config"
	"github.com/book-expert/voice-service/internal/core"
	"github.com/book-expert/voice-service/internal/device"
	"github.com/book-expert/voice-service/internal/dispatch"
	"github.com/book-expert/voice-service/internal/handler"
	"github.com/book-expert/voice-service/internal/normalize"
	"github.com/book-expert/voice-service/internal/objectstore"
	"github.com/book-expert/voice-service/internal/registry"
	"github.com/book-expert/voice-service/internal/worker"
	"github.com/nats-io/nats.go"
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func buildRegistry(cfg *config.Config, log *logger.Logger) *registry.Registry {
	client := chatterbox.NewClient(cfg.Chatterbox.ServiceURL, cfg.Chatterbox.Timeout())

	loaders := map[core.Backend]registry.Loader{
		core.BackendEnglish:      chatterbox.NewEnglishLoader(client, log),
		core.BackendMultilingual: chatterbox.NewMultilingualLoader(client, log),
		core.BackendPiper: piper.NewLoader(piper.Options{
			BinaryPath: cfg.Piper.BinaryPath,
			ModelPath:  cfg.Piper.ModelPath,
			OutputDir:  cfg.Handler.TempDir,
		}, log),
		core.BackendMelo: melo.NewLoader(melo.Options{
			BinaryPath: cfg.Melo.BinaryPath,
			Language:   cfg.Melo.Language,
			OutputDir:  cfg.Handler.TempDir,
		}, log),
	}

	return registry.New(loaders, device.NewProbe(), nil, log)
}

func buildHandler(cfg *config.Config, models *registry.Registry, log *logger.Logger) (*handler.Handler, error) {
	normalizer, err := normalize.New(normalize.Options{
		MaxTextLength:  cfg.Handler.MaxTextLength,
		DefaultBackend: core.Backend(cfg.Handler.DefaultBackend),
		Params:         nil,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create normalizer: %w", err)
	}

	dispatcher := dispatch.New(cfg.Handler.TempDir, log)

	return handler.New(normalizer, models, dispatcher, cfg.Handler.TempDir, log), nil
}

// openAudioStore returns nil when no bucket is configured.
func openAudioStore(natsConnection *nats.Conn, bucket string, log *logger.Logger) (core.ObjectStore, error) {
	if bucket == "" {
		return nil, nil
	}

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, bucket)
	if err != nil {
		return nil, err
	}

	log.Info("Storing audio in object store bucket %s", store.Bucket())

	return store, nil
}

func preloadBackends(ctx context.Context, cfg *config.Config, models *registry.Registry, log *logger.Logger) {
	if len(cfg.Handler.Preload) == 0 {
		return
	}

	backends := make([]core.Backend, 0, len(cfg.Handler.Preload))
	for _, name := range cfg.Handler.Preload {
		backends = append(backends, core.Backend(name))
	}

	resident := models.Preload(ctx, backends...)
	log.Info("Preloaded models: %v", resident)
}

func run() error {
	bootstrapLog, err := setupLogger(os.TempDir(), "voice-service-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, "voice-service.log")
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	models := buildRegistry(cfg, finalLog)

	jobHandler, err := buildHandler(cfg, models, finalLog)
	if err != nil {
		return err
	}

	preloadBackends(ctx, cfg, models, finalLog)

	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	store, err := openAudioStore(natsConnection, cfg.NATS.AudioObjectStoreBucket, finalLog)
	if err != nil {
		return err
	}

	natsWorker, err := worker.NewNatsWorker(natsConnection, worker.Options{
		Subject:             cfg.NATS.JobsSubject,
		QueueGroup:          cfg.NATS.QueueGroup,
		MaxConcurrentJobs:   cfg.Worker.MaxConcurrentJobs,
		JobTimeout:          cfg.Worker.JobTimeout(),
		AudioCreatedSubject: cfg.NATS.AudioCreatedSubject,
	}, jobHandler, store, finalLog)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	finalLog.System("Voice-Service successfully initialized. Listening for jobs on subject: %s", cfg.NATS.JobsSubject)

	runErr := natsWorker.Run(ctx)
	if runErr != nil {
		return fmt.Errorf("worker stopped with error: %w", runErr)
	}

	finalLog.System("Voice-Service shut down cleanly.")

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
