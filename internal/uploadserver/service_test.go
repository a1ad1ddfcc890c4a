package uploadserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattcarabine/wedding-website/internal/chunkstore"
	"github.com/mattcarabine/wedding-website/pkg/types"
)

// fakeIngestor records what reaches the media backend
type fakeIngestor struct {
	filename    string
	contentType string
	uploadID    string
	data        []byte
	calls       int
	err         error
}

func (f *fakeIngestor) Ingest(ctx context.Context, filename, contentType, uploadID string, data []byte) (*types.MediaItem, error) {
	f.calls++
	f.filename = filename
	f.contentType = contentType
	f.uploadID = uploadID
	f.data = append([]byte(nil), data...)
	if f.err != nil {
		return nil, f.err
	}
	return &types.MediaItem{
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(data)),
		BackendID:   "backend-" + uploadID,
		UploadID:    uploadID,
	}, nil
}

func setupService(t *testing.T, maxFileSize int64) (*Service, chunkstore.BlobStore, *fakeIngestor) {
	t.Helper()
	store, err := chunkstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ingestor := &fakeIngestor{}
	return NewService(store, ingestor, maxFileSize), store, ingestor
}

func TestService_Init(t *testing.T) {
	tests := []struct {
		name        string
		maxFileSize int64
		req         types.UploadInitRequest
		wantField   string
	}{
		{
			name: "valid request",
			req: types.UploadInitRequest{
				Filename:    "ceremony.jpg",
				ContentType: "image/jpeg",
				TotalSize:   5 * 1024 * 1024,
				TotalChunks: 3,
				ChunkSize:   2 * 1024 * 1024,
				UploadID:    "up-1",
			},
		},
		{
			name: "zero-byte file needs exactly one chunk",
			req: types.UploadInitRequest{
				Filename:    "empty.jpg",
				ContentType: "image/jpeg",
				TotalSize:   0,
				TotalChunks: 1,
				ChunkSize:   2 * 1024 * 1024,
				UploadID:    "up-2",
			},
		},
		{
			name: "missing upload id",
			req: types.UploadInitRequest{
				Filename:    "a.jpg",
				ContentType: "image/jpeg",
				TotalSize:   10,
				TotalChunks: 1,
				ChunkSize:   1024,
			},
			wantField: "uploadId",
		},
		{
			name: "missing filename",
			req: types.UploadInitRequest{
				ContentType: "image/jpeg",
				TotalSize:   10,
				TotalChunks: 1,
				ChunkSize:   1024,
				UploadID:    "up-3",
			},
			wantField: "filename",
		},
		{
			name: "missing content type",
			req: types.UploadInitRequest{
				Filename:    "a.jpg",
				TotalSize:   10,
				TotalChunks: 1,
				ChunkSize:   1024,
				UploadID:    "up-4",
			},
			wantField: "contentType",
		},
		{
			name: "non-positive chunk size",
			req: types.UploadInitRequest{
				Filename:    "a.jpg",
				ContentType: "image/jpeg",
				TotalSize:   10,
				TotalChunks: 1,
				UploadID:    "up-5",
			},
			wantField: "chunkSize",
		},
		{
			name: "negative total size",
			req: types.UploadInitRequest{
				Filename:    "a.jpg",
				ContentType: "image/jpeg",
				TotalSize:   -1,
				TotalChunks: 1,
				ChunkSize:   1024,
				UploadID:    "up-6",
			},
			wantField: "totalSize",
		},
		{
			name:        "file too large",
			maxFileSize: 1024 * 1024,
			req: types.UploadInitRequest{
				Filename:    "huge.mov",
				ContentType: "video/quicktime",
				TotalSize:   2 * 1024 * 1024,
				TotalChunks: 2,
				ChunkSize:   1024 * 1024,
				UploadID:    "up-7",
			},
			wantField: "totalSize",
		},
		{
			name: "chunk count disagrees with size",
			req: types.UploadInitRequest{
				Filename:    "a.jpg",
				ContentType: "image/jpeg",
				TotalSize:   5 * 1024 * 1024,
				TotalChunks: 2,
				ChunkSize:   2 * 1024 * 1024,
				UploadID:    "up-8",
			},
			wantField: "totalChunks",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, _, _ := setupService(t, tt.maxFileSize)
			err := service.Init(context.Background(), tt.req)

			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestService_SaveChunk(t *testing.T) {
	service, store, _ := setupService(t, 0)
	ctx := context.Background()

	resp, err := service.SaveChunk(ctx, "up-1", 0, 3, bytes.NewReader([]byte("first")))
	require.NoError(t, err)
	assert.Equal(t, 0, resp.ChunkIndex)
	assert.Equal(t, 33, resp.Progress)

	resp, err = service.SaveChunk(ctx, "up-1", 1, 3, bytes.NewReader([]byte("second")))
	require.NoError(t, err)
	assert.Equal(t, 67, resp.Progress)

	resp, err = service.SaveChunk(ctx, "up-1", 2, 3, bytes.NewReader([]byte("third")))
	require.NoError(t, err)
	assert.Equal(t, 100, resp.Progress)

	keys, err := store.List(ctx, ChunkPrefix("up-1"))
	require.NoError(t, err)
	assert.Len(t, keys, 3)
}

func TestService_SaveChunk_ResendOverwrites(t *testing.T) {
	service, store, _ := setupService(t, 0)
	ctx := context.Background()

	_, err := service.SaveChunk(ctx, "up-1", 0, 2, bytes.NewReader([]byte("garbled")))
	require.NoError(t, err)

	// A retried send replaces the stored object rather than duplicating it
	resp, err := service.SaveChunk(ctx, "up-1", 0, 2, bytes.NewReader([]byte("clean")))
	require.NoError(t, err)
	assert.Equal(t, 50, resp.Progress)

	keys, err := store.List(ctx, ChunkPrefix("up-1"))
	require.NoError(t, err)
	require.Len(t, keys, 1)

	reader, err := store.Retrieve(ctx, ChunkKey("up-1", 0))
	require.NoError(t, err)
	defer reader.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(reader)
	require.NoError(t, err)
	assert.Equal(t, "clean", buf.String())
}

func TestService_SaveChunk_Validation(t *testing.T) {
	service, _, _ := setupService(t, 0)
	ctx := context.Background()

	tests := []struct {
		name        string
		uploadID    string
		index       int
		totalChunks int
		wantField   string
	}{
		{name: "missing upload id", index: 0, totalChunks: 3, wantField: "uploadId"},
		{name: "negative index", uploadID: "up-1", index: -1, totalChunks: 3, wantField: "chunkIndex"},
		{name: "index at total", uploadID: "up-1", index: 3, totalChunks: 3, wantField: "chunkIndex"},
		{name: "non-positive total", uploadID: "up-1", index: 0, totalChunks: 0, wantField: "totalChunks"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.SaveChunk(ctx, tt.uploadID, tt.index, tt.totalChunks, bytes.NewReader([]byte("x")))
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestService_Complete_ReassemblesInIndexOrder(t *testing.T) {
	service, store, ingestor := setupService(t, 0)
	ctx := context.Background()

	// Twelve chunks arriving out of order force a numeric sort: a
	// lexicographic one would put 10 and 11 before 2
	const total = 12
	var want bytes.Buffer
	for i := 0; i < total; i++ {
		want.WriteString(fmt.Sprintf("|part-%02d", i))
	}
	for _, i := range []int{7, 10, 0, 11, 3, 1, 9, 5, 2, 8, 6, 4} {
		_, err := service.SaveChunk(ctx, "up-1", i, total, bytes.NewReader([]byte(fmt.Sprintf("|part-%02d", i))))
		require.NoError(t, err)
	}

	resp, err := service.Complete(ctx, types.UploadCompleteRequest{
		UploadID:    "up-1",
		Filename:    "vows.jpg",
		ContentType: "image/jpeg",
		TotalSize:   int64(want.Len()),
		TotalChunks: total,
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, "backend-up-1", resp.MediaItemID)
	assert.Equal(t, total, resp.ChunksCleanedUp)

	assert.Equal(t, 1, ingestor.calls)
	assert.Equal(t, "vows.jpg", ingestor.filename)
	assert.Equal(t, want.Bytes(), ingestor.data)

	// Completion removed every chunk object
	keys, err := store.List(ctx, ChunkPrefix("up-1"))
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestService_Complete_ChunkCountMismatch(t *testing.T) {
	service, store, ingestor := setupService(t, 0)
	ctx := context.Background()

	_, err := service.SaveChunk(ctx, "up-1", 0, 3, bytes.NewReader([]byte("a")))
	require.NoError(t, err)
	_, err = service.SaveChunk(ctx, "up-1", 1, 3, bytes.NewReader([]byte("b")))
	require.NoError(t, err)

	_, err = service.Complete(ctx, types.UploadCompleteRequest{
		UploadID:    "up-1",
		Filename:    "torn.jpg",
		ContentType: "image/jpeg",
		TotalChunks: 3,
	})
	require.ErrorIs(t, err, ErrChunkCountMismatch)

	// Nothing was ingested and the stored chunks are untouched, so the
	// client can re-send the missing one and complete again
	assert.Equal(t, 0, ingestor.calls)
	keys, err := store.List(ctx, ChunkPrefix("up-1"))
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestService_Complete_IngestFailureKeepsChunks(t *testing.T) {
	service, store, ingestor := setupService(t, 0)
	ingestor.err = errors.New("backend rejected media")
	ctx := context.Background()

	_, err := service.SaveChunk(ctx, "up-1", 0, 1, bytes.NewReader([]byte("a")))
	require.NoError(t, err)

	_, err = service.Complete(ctx, types.UploadCompleteRequest{
		UploadID:    "up-1",
		Filename:    "rejected.jpg",
		ContentType: "image/jpeg",
		TotalChunks: 1,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest media")

	keys, err := store.List(ctx, ChunkPrefix("up-1"))
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestService_Complete_Validation(t *testing.T) {
	service, _, _ := setupService(t, 0)

	_, err := service.Complete(context.Background(), types.UploadCompleteRequest{
		Filename:    "a.jpg",
		TotalChunks: 1,
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "uploadId", verr.Field)
}

func TestSortByChunkIndex(t *testing.T) {
	ordered, err := sortByChunkIndex([]string{
		"chunks/up-1/10",
		"chunks/up-1/2",
		"chunks/up-1/0",
		"chunks/up-1/1",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"chunks/up-1/0",
		"chunks/up-1/1",
		"chunks/up-1/2",
		"chunks/up-1/10",
	}, ordered)

	_, err = sortByChunkIndex([]string{"chunks/up-1/not-a-number"})
	assert.Error(t, err)
}
