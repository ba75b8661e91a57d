package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/timmy/stitchrag/internal/app"
	"github.com/timmy/stitchrag/internal/config"
	"github.com/timmy/stitchrag/internal/logger"
	"github.com/timmy/stitchrag/internal/service"
)

func main() {
	appLogger := logger.NewFromEnv(nil)
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	download := flag.Bool("download", false, "Download raw documents from the bucket")
	chunk := flag.Bool("chunk", false, "Split text documents into semantic chunks")
	embed := flag.Bool("embed", false, "Embed chunks and pair them with image vectors")
	load := flag.Bool("load", false, "Rebuild the vector collection from embeddings")
	query := flag.Bool("query", false, "Answer the stored query and write the prompt")
	upload := flag.Bool("upload", false, "Upload JSON outputs to the bucket")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	requested := map[service.Stage]bool{
		service.StageDownload: *download,
		service.StageChunk:    *chunk,
		service.StageEmbed:    *embed,
		service.StageLoad:     *load,
		service.StageQuery:    *query,
		service.StageUpload:   *upload,
	}
	var stages []service.Stage
	for stage, on := range requested {
		if on {
			stages = append(stages, stage)
		}
	}
	if len(stages) == 0 {
		fmt.Fprintln(os.Stderr, "no stage selected")
		flag.Usage()
		os.Exit(2)
	}
	stages = service.Ordered(stages)

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		appLogger.WithError(err).Fatal("Invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := app.New(ctx, cfg, app.Options{
		WithStorage: *download || *upload,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize components")
	}

	runErr := components.Pipeline.Run(ctx, stages)
	components.Close()
	if runErr != nil {
		appLogger.WithError(runErr).Fatal("Pipeline failed")
	}
}
