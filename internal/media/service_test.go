package media

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mattcarabine/wedding-website/pkg/types"
)

// fakeBackend records ingested bytes without a real photo API
type fakeBackend struct {
	filename    string
	contentType string
	data        []byte
	calls       int
	err         error
}

func (f *fakeBackend) Ingest(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	f.calls++
	f.filename = filename
	f.contentType = contentType
	f.data = append([]byte(nil), data...)
	if f.err != nil {
		return "", f.err
	}
	return "backend-id-1", nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&types.MediaItem{}))
	return db
}

// pngHeader is enough of a real PNG for content sniffing
var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00}

func TestService_Ingest(t *testing.T) {
	db := setupTestDB(t)
	backend := &fakeBackend{}
	service := NewService(db, nil, backend)

	item, err := service.Ingest(context.Background(), "kiss.png", "image/png", "up-1", pngHeader)
	require.NoError(t, err)

	assert.NotEqual(t, "", item.ID.String())
	assert.Equal(t, "kiss.png", item.Filename)
	assert.Equal(t, "image/png", item.ContentType)
	assert.Equal(t, int64(len(pngHeader)), item.Size)
	assert.Equal(t, "backend-id-1", item.BackendID)
	assert.Equal(t, "up-1", item.UploadID)

	assert.Equal(t, 1, backend.calls)
	assert.Equal(t, pngHeader, backend.data)

	var stored types.MediaItem
	require.NoError(t, db.First(&stored, "backend_id = ?", "backend-id-1").Error)
	assert.Equal(t, "kiss.png", stored.Filename)
}

func TestService_Ingest_SniffsContentType(t *testing.T) {
	db := setupTestDB(t)
	backend := &fakeBackend{}
	service := NewService(db, nil, backend)

	item, err := service.Ingest(context.Background(), "mystery", "", "up-1", pngHeader)
	require.NoError(t, err)
	assert.Equal(t, "image/png", item.ContentType)
	assert.Equal(t, "image/png", backend.contentType)
}

func TestService_Ingest_RequiresFilename(t *testing.T) {
	service := NewService(setupTestDB(t), nil, &fakeBackend{})

	_, err := service.Ingest(context.Background(), "", "image/png", "up-1", pngHeader)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "filename", verr.Field)
}

func TestService_Ingest_BackendFailure(t *testing.T) {
	db := setupTestDB(t)
	backend := &fakeBackend{err: errors.New("photo API unavailable")}
	service := NewService(db, nil, backend)

	_, err := service.Ingest(context.Background(), "lost.png", "image/png", "up-1", pngHeader)
	require.Error(t, err)

	// No record for bytes the backend never accepted
	var count int64
	require.NoError(t, db.Model(&types.MediaItem{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestService_UploadSingle(t *testing.T) {
	service := NewService(setupTestDB(t), nil, &fakeBackend{})

	item, err := service.UploadSingle(context.Background(), "direct.png", "image/png", pngHeader)
	require.NoError(t, err)
	assert.Empty(t, item.UploadID)

	_, err = service.UploadSingle(context.Background(), "empty.png", "image/png", nil)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "file", verr.Field)
}

func TestService_ListGallery(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, nil, &fakeBackend{})

	base := time.Now().Add(-time.Hour)
	for i, name := range []string{"oldest.jpg", "middle.jpg", "newest.jpg"} {
		item := &types.MediaItem{
			Filename:    name,
			ContentType: "image/jpeg",
			BackendID:   name,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Create(item).Error)
	}

	items, err := service.ListGallery(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "newest.jpg", items[0].Filename)
	assert.Equal(t, "middle.jpg", items[1].Filename)
	assert.Equal(t, "oldest.jpg", items[2].Filename)
}

func TestService_ListGallery_Empty(t *testing.T) {
	service := NewService(setupTestDB(t), nil, &fakeBackend{})

	items, err := service.ListGallery(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}
