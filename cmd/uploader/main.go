package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mattcarabine/wedding-website/internal/upload"
	"github.com/mattcarabine/wedding-website/pkg/config"
)

func main() {
	cfg := config.LoadFromEnv()

	var (
		server      = flag.String("server", "http://localhost:8080", "Server base URL")
		chunkSize   = flag.Int64("chunk-size", cfg.Upload.ChunkSize, "Chunk size in bytes")
		concurrency = flag.Int("concurrency", cfg.Upload.MaxConcurrentChunks, "Max concurrent chunk uploads per file")
	)
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Printf("Usage: %s [flags] FILE [FILE...]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	client := upload.NewClient(*server, nil)
	retry := upload.RetryPolicy{
		MaxAttempts: cfg.Upload.MaxChunkRetries,
		Backoff:     cfg.Upload.RetryBackoff,
	}
	scheduler := upload.NewScheduler(client, *concurrency, retry, upload.RealClock())
	orchestrator := upload.NewOrchestrator(client, scheduler)
	manager := upload.NewManager(orchestrator, client, upload.ManagerConfig{ChunkSize: *chunkSize})

	sources := make([]upload.FileSource, 0, flag.NArg())
	for _, path := range flag.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("failed to read file")
		}
		sources = append(sources, upload.FileSource{
			Name:        filepath.Base(path),
			ContentType: mimetype.Detect(data).String(),
			Data:        data,
		})
	}

	if _, err := manager.AddFiles(sources); err != nil {
		log.Fatal().Err(err).Msg("failed to queue files")
	}
	manager.StartUpload()

	for event := range manager.Events() {
		switch e := event.(type) {
		case upload.FileProgressEvent:
			log.Info().
				Str("file", e.FileID).
				Int("progress", e.Progress).
				Msgf("%d/%d chunks", e.UploadedChunks, e.TotalChunks)
		case upload.FileStatusEvent:
			if e.Status == upload.FileStatusError {
				log.Error().Str("file", e.FileID).Str("error", e.Error).Msg("upload failed")
			}
		case upload.FileCompletedEvent:
			log.Info().Str("file", e.FileID).Str("media_item_id", e.MediaItemID).Msg("uploaded")
		case upload.AllCompleteEvent:
			manager.Shutdown()
			if e.Errored > 0 {
				log.Warn().Int("completed", e.Completed).Int("errored", e.Errored).Msg("finished with failures")
				os.Exit(1)
			}
			log.Info().Int("completed", e.Completed).Msg("all files uploaded")
			return
		}
	}
}
