package uploadserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mattcarabine/wedding-website/internal/chunkstore"
	"github.com/mattcarabine/wedding-website/pkg/types"
)

const chunkRoot = "chunks"

// ErrChunkCountMismatch means the stored chunk set does not match the
// expected total at completion time. Retrying would not fix a structural
// mismatch, so callers must not retry it.
var ErrChunkCountMismatch = errors.New("chunk count mismatch")

// ValidationError marks a malformed request field. It is surfaced
// immediately and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// MediaIngestor hands a reassembled file to the storage backend and
// records it. Implemented by the media service.
type MediaIngestor interface {
	Ingest(ctx context.Context, filename, contentType, uploadID string, data []byte) (*types.MediaItem, error)
}

// Service implements the server side of the chunked upload protocol over
// a chunk store and a media ingestor.
type Service struct {
	store       chunkstore.BlobStore
	media       MediaIngestor
	maxFileSize int64
}

// NewService creates the upload service. maxFileSize of zero disables the
// size cap.
func NewService(store chunkstore.BlobStore, media MediaIngestor, maxFileSize int64) *Service {
	return &Service{
		store:       store,
		media:       media,
		maxFileSize: maxFileSize,
	}
}

// ChunkPrefix returns the storage namespace holding one upload's chunks
func ChunkPrefix(uploadID string) string {
	return path.Join(chunkRoot, uploadID)
}

// ChunkKey returns the storage path for one chunk object. The numeric
// index in the final path segment is what completion sorts by.
func ChunkKey(uploadID string, index int) string {
	return path.Join(chunkRoot, uploadID, strconv.Itoa(index))
}

// Init validates the metadata for a new chunked upload. It establishes no
// durable state; a valid request simply means chunks may follow.
func (s *Service) Init(ctx context.Context, req types.UploadInitRequest) error {
	if req.UploadID == "" {
		return &ValidationError{Field: "uploadId", Reason: "required"}
	}
	if req.Filename == "" {
		return &ValidationError{Field: "filename", Reason: "required"}
	}
	if req.ContentType == "" {
		return &ValidationError{Field: "contentType", Reason: "required"}
	}
	if req.ChunkSize <= 0 {
		return &ValidationError{Field: "chunkSize", Reason: "must be positive"}
	}
	if req.TotalSize < 0 {
		return &ValidationError{Field: "totalSize", Reason: "must not be negative"}
	}
	if s.maxFileSize > 0 && req.TotalSize > s.maxFileSize {
		return &ValidationError{Field: "totalSize", Reason: fmt.Sprintf("exceeds maximum of %d bytes", s.maxFileSize)}
	}

	expected := int((req.TotalSize + req.ChunkSize - 1) / req.ChunkSize)
	if expected == 0 {
		expected = 1
	}
	if req.TotalChunks != expected {
		return &ValidationError{
			Field:  "totalChunks",
			Reason: fmt.Sprintf("expected %d for size %d and chunk size %d, got %d", expected, req.TotalSize, req.ChunkSize, req.TotalChunks),
		}
	}

	log.Info().
		Str("upload_id", req.UploadID).
		Str("filename", req.Filename).
		Int64("total_size", req.TotalSize).
		Int("total_chunks", req.TotalChunks).
		Msg("chunked upload initialized")

	return nil
}

// SaveChunk stores one chunk's bytes, overwriting any previous object at
// the same position so re-sends stay idempotent. Progress is derived from
// the count of stored objects.
func (s *Service) SaveChunk(ctx context.Context, uploadID string, index, totalChunks int, data io.Reader) (*types.ChunkResponse, error) {
	if uploadID == "" {
		return nil, &ValidationError{Field: "uploadId", Reason: "required"}
	}
	if totalChunks <= 0 {
		return nil, &ValidationError{Field: "totalChunks", Reason: "must be positive"}
	}
	if index < 0 || index >= totalChunks {
		return nil, &ValidationError{Field: "chunkIndex", Reason: fmt.Sprintf("out of range [0,%d)", totalChunks)}
	}

	key := ChunkKey(uploadID, index)
	if err := s.store.Store(ctx, key, data, "application/octet-stream"); err != nil {
		return nil, fmt.Errorf("store chunk %d: %w", index, err)
	}

	stored, err := s.store.List(ctx, ChunkPrefix(uploadID))
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}

	progress := int(math.Round(float64(len(stored)) / float64(totalChunks) * 100))
	if progress > 100 {
		progress = 100
	}

	return &types.ChunkResponse{ChunkIndex: index, Progress: progress}, nil
}

// Complete verifies the stored chunk set, reassembles it strictly by
// ascending numeric index, hands the result to the media backend and then
// best-effort deletes the chunk objects. Deletion failures are logged and
// counted, never escalated: cleanup must not mask a successful upload.
func (s *Service) Complete(ctx context.Context, req types.UploadCompleteRequest) (*types.UploadCompleteResponse, error) {
	if req.UploadID == "" {
		return nil, &ValidationError{Field: "uploadId", Reason: "required"}
	}
	if req.Filename == "" {
		return nil, &ValidationError{Field: "filename", Reason: "required"}
	}
	if req.TotalChunks <= 0 {
		return nil, &ValidationError{Field: "totalChunks", Reason: "must be positive"}
	}

	prefix := ChunkPrefix(req.UploadID)
	stored, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}

	if len(stored) != req.TotalChunks {
		return nil, fmt.Errorf("%w: expected %d chunks, found %d", ErrChunkCountMismatch, req.TotalChunks, len(stored))
	}

	indexed, err := sortByChunkIndex(stored)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChunkCountMismatch, err)
	}

	var assembled bytes.Buffer
	if req.TotalSize > 0 {
		assembled.Grow(int(req.TotalSize))
	}
	for _, key := range indexed {
		reader, err := s.store.Retrieve(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("retrieve chunk %s: %w", key, err)
		}
		_, err = io.Copy(&assembled, reader)
		reader.Close()
		if err != nil {
			return nil, fmt.Errorf("read chunk %s: %w", key, err)
		}
	}

	item, err := s.media.Ingest(ctx, req.Filename, req.ContentType, req.UploadID, assembled.Bytes())
	if err != nil {
		return nil, fmt.Errorf("ingest media: %w", err)
	}

	cleaned := 0
	for _, key := range indexed {
		if err := s.store.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("path", key).Msg("failed to delete chunk after completion")
			continue
		}
		cleaned++
	}

	log.Info().
		Str("upload_id", req.UploadID).
		Str("media_item_id", item.BackendID).
		Int("chunks_cleaned_up", cleaned).
		Msg("chunked upload completed")

	return &types.UploadCompleteResponse{
		Success:         true,
		MediaItemID:     item.BackendID,
		ChunksCleanedUp: cleaned,
	}, nil
}

// sortByChunkIndex orders chunk storage keys by the numeric index parsed
// from the final path segment
func sortByChunkIndex(keys []string) ([]string, error) {
	type entry struct {
		index int
		key   string
	}

	entries := make([]entry, 0, len(keys))
	for _, key := range keys {
		segment := path.Base(strings.ReplaceAll(key, "\\", "/"))
		index, err := strconv.Atoi(segment)
		if err != nil {
			return nil, fmt.Errorf("unparseable chunk key %q", key)
		}
		entries = append(entries, entry{index: index, key: key})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].index < entries[j].index })

	ordered := make([]string, len(entries))
	for i, e := range entries {
		ordered[i] = e.key
	}
	return ordered, nil
}
