package upload

import (
	"context"
	"fmt"

	"github.com/docker/go-units"
	"github.com/rs/zerolog/log"

	"github.com/mattcarabine/wedding-website/pkg/types"
)

// Orchestrator owns the per-file upload lifecycle: init, chunk transfer,
// completion. It is driven by the queue manager one file at a time.
type Orchestrator struct {
	api       UploadAPI
	scheduler *Scheduler
}

// NewOrchestrator creates an orchestrator over the given API client and
// chunk scheduler
func NewOrchestrator(api UploadAPI, scheduler *Scheduler) *Orchestrator {
	return &Orchestrator{api: api, scheduler: scheduler}
}

// Run uploads one file end to end. The admit gate is consulted before
// each new chunk starts, so a pause lets in-flight chunks finish without
// admitting more. A nil response with a nil error means the run was
// interrupted (paused or aborted) before reaching completion; the caller
// owns the resulting status transition.
func (o *Orchestrator) Run(ctx context.Context, file *ManagedFile, admit func() bool, sink ProgressSink) (*types.UploadCompleteResponse, error) {
	total := file.TotalChunks()

	log.Info().
		Str("upload_id", file.ID).
		Str("filename", file.Name).
		Str("size", units.HumanSize(float64(file.Size))).
		Int("total_chunks", total).
		Msg("starting file upload")

	initReq := types.UploadInitRequest{
		Filename:    file.Name,
		ContentType: file.ContentType,
		TotalSize:   file.Size,
		TotalChunks: total,
		ChunkSize:   file.ChunkSize,
		UploadID:    file.ID,
	}
	if err := o.api.Init(ctx, initReq); err != nil {
		// Init is a pure validation gate; a failure here means no chunk
		// was ever attempted
		return nil, fmt.Errorf("init upload: %w", err)
	}

	pending := make([]ChunkPayload, 0, total)
	for _, c := range file.Chunks {
		if c.Status == ChunkStatusCompleted {
			continue
		}
		pending = append(pending, ChunkPayload{
			Index:   c.Index,
			Data:    file.ChunkData(c.Index),
			Retries: c.Retries,
		})
	}

	done, err := o.scheduler.UploadAll(ctx, file.ID, pending, total, admit, sink)
	if err != nil {
		return nil, fmt.Errorf("chunk transfer: %w", err)
	}
	if !done {
		return nil, nil
	}

	resp, err := o.api.Complete(ctx, types.UploadCompleteRequest{
		UploadID:    file.ID,
		Filename:    file.Name,
		ContentType: file.ContentType,
		TotalSize:   file.Size,
		TotalChunks: total,
	})
	if err != nil {
		return nil, fmt.Errorf("complete upload: %w", err)
	}

	log.Info().
		Str("upload_id", file.ID).
		Str("media_item_id", resp.MediaItemID).
		Int("chunks_cleaned_up", resp.ChunksCleanedUp).
		Msg("file upload completed")

	return resp, nil
}
