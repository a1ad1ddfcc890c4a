package uploadserver

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mattcarabine/wedding-website/internal/chunkstore"
)

// CleanupCoordinator deletes stray chunk objects, both on explicit
// per-upload request and via an age-based orphan sweep.
type CleanupCoordinator struct {
	store     chunkstore.BlobStore
	orphanAge time.Duration
	now       func() time.Time
}

// NewCleanupCoordinator creates a coordinator. orphanAge values of zero
// or below fall back to 24 hours.
func NewCleanupCoordinator(store chunkstore.BlobStore, orphanAge time.Duration) *CleanupCoordinator {
	if orphanAge <= 0 {
		orphanAge = 24 * time.Hour
	}
	return &CleanupCoordinator{
		store:     store,
		orphanAge: orphanAge,
		now:       time.Now,
	}
}

// Cleanup deletes every chunk object under the upload id's namespace.
// Individual deletion failures are logged and counted, not retried.
// An upload with no stored chunks is not an error.
func (c *CleanupCoordinator) Cleanup(ctx context.Context, uploadID string) (deleted, failed int, err error) {
	if uploadID == "" {
		return 0, 0, &ValidationError{Field: "uploadId", Reason: "required"}
	}

	keys, err := c.store.List(ctx, ChunkPrefix(uploadID))
	if err != nil {
		return 0, 0, err
	}

	for _, key := range keys {
		if err := c.store.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("path", key).Msg("failed to delete chunk object")
			failed++
			continue
		}
		deleted++
	}

	log.Info().
		Str("upload_id", uploadID).
		Int("deleted", deleted).
		Int("failed", failed).
		Msg("upload chunks cleaned up")

	return deleted, failed, nil
}

// SweepResult aggregates the counts of one orphan sweep
type SweepResult struct {
	GroupsDeleted int
	ChunksDeleted int
	ChunksFailed  int
}

// SweepOrphans groups all stored chunk objects by upload id and deletes
// whole groups whose oldest member exceeds the orphan age. This is the
// recovery path for uploads abandoned mid-flight where no client cleanup
// ever ran; younger groups are left untouched.
func (c *CleanupCoordinator) SweepOrphans(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	keys, err := c.store.List(ctx, chunkRoot)
	if err != nil {
		return result, err
	}

	groups := make(map[string][]string)
	for _, key := range keys {
		parts := strings.Split(key, "/")
		if len(parts) < 3 || parts[0] != chunkRoot {
			continue
		}
		uploadID := parts[1]
		groups[uploadID] = append(groups[uploadID], key)
	}

	cutoff := c.now().Add(-c.orphanAge)

	for uploadID, groupKeys := range groups {
		oldest := time.Time{}
		for _, key := range groupKeys {
			modTime, err := c.store.ModTime(ctx, key)
			if err != nil {
				log.Warn().Err(err).Str("path", key).Msg("failed to stat chunk during sweep")
				continue
			}
			if oldest.IsZero() || modTime.Before(oldest) {
				oldest = modTime
			}
		}

		if oldest.IsZero() || oldest.After(cutoff) {
			continue
		}

		result.GroupsDeleted++
		for _, key := range groupKeys {
			if err := c.store.Delete(ctx, key); err != nil {
				log.Warn().Err(err).Str("path", key).Msg("failed to delete orphaned chunk")
				result.ChunksFailed++
				continue
			}
			result.ChunksDeleted++
		}

		log.Info().
			Str("upload_id", uploadID).
			Int("chunks", len(groupKeys)).
			Time("oldest", oldest).
			Msg("orphaned upload swept")
	}

	return result, nil
}

// RunPeriodic sweeps orphans on the given interval until ctx is cancelled
func (c *CleanupCoordinator) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if result, err := c.SweepOrphans(ctx); err != nil {
				log.Error().Err(err).Msg("orphan sweep failed")
			} else if result.GroupsDeleted > 0 {
				log.Info().
					Int("groups_deleted", result.GroupsDeleted).
					Int("chunks_deleted", result.ChunksDeleted).
					Msg("orphan sweep finished")
			}
		}
	}
}
