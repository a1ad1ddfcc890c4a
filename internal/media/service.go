package media

import (
	"context"
	"fmt"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/mattcarabine/wedding-website/internal/common"
	"github.com/mattcarabine/wedding-website/pkg/types"
)

const (
	galleryCacheKey = "gallery:items"
	galleryCacheTTL = 30 * time.Second
)

// ValidationError marks a rejected request so handlers can answer 400
// instead of treating the rejection as a server fault
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Service stores media records and serves the gallery listing. The cache
// is optional; without it every listing hits the database.
type Service struct {
	db      *gorm.DB
	cache   *common.Cache
	backend Backend
}

// NewService creates the media service
func NewService(db *gorm.DB, cache *common.Cache, backend Backend) *Service {
	return &Service{db: db, cache: cache, backend: backend}
}

// Ingest hands file bytes to the storage backend and records the returned
// media identifier. An empty content type is sniffed from the bytes.
func (s *Service) Ingest(ctx context.Context, filename, contentType, uploadID string, data []byte) (*types.MediaItem, error) {
	if filename == "" {
		return nil, &ValidationError{Field: "filename", Reason: "is required"}
	}
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}

	backendID, err := s.backend.Ingest(ctx, filename, contentType, data)
	if err != nil {
		return nil, fmt.Errorf("backend ingest: %w", err)
	}

	item := &types.MediaItem{
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(data)),
		BackendID:   backendID,
		UploadID:    uploadID,
	}

	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		// The backend already holds the bytes; surface the record failure
		// rather than losing track of it silently
		return nil, fmt.Errorf("record media item: %w", err)
	}

	s.invalidateGallery(ctx)

	log.Info().
		Str("filename", filename).
		Str("backend_id", backendID).
		Int64("size", item.Size).
		Msg("media item ingested")

	return item, nil
}

// UploadSingle is the non-chunked fallback path for small files. It
// shares the backend contract used by chunked completion.
func (s *Service) UploadSingle(ctx context.Context, filename, contentType string, data []byte) (*types.MediaItem, error) {
	if len(data) == 0 {
		return nil, &ValidationError{Field: "file", Reason: "content is empty"}
	}
	return s.Ingest(ctx, filename, contentType, "", data)
}

// ListGallery returns all media items newest-first, through a short-lived
// cache when one is configured
func (s *Service) ListGallery(ctx context.Context) ([]types.MediaItem, error) {
	if s.cache != nil {
		var cached []types.MediaItem
		if err := s.cache.Get(ctx, galleryCacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	var items []types.MediaItem
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list media items: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, galleryCacheKey, items, galleryCacheTTL); err != nil {
			log.Warn().Err(err).Msg("failed to cache gallery listing")
		}
	}

	return items, nil
}

func (s *Service) invalidateGallery(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, galleryCacheKey); err != nil {
		log.Warn().Err(err).Msg("failed to invalidate gallery cache")
	}
}
