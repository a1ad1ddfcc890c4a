package upload

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileStatus is the overall state of a managed file
type FileStatus string

const (
	FileStatusPending   FileStatus = "pending"
	FileStatusQueued    FileStatus = "queued"
	FileStatusUploading FileStatus = "uploading"
	FileStatusPaused    FileStatus = "paused"
	FileStatusCompleted FileStatus = "completed"
	FileStatusError     FileStatus = "error"
)

// ChunkStatus is the state of a single chunk
type ChunkStatus string

const (
	ChunkStatusPending   ChunkStatus = "pending"
	ChunkStatusUploading ChunkStatus = "uploading"
	ChunkStatusCompleted ChunkStatus = "completed"
	ChunkStatusError     ChunkStatus = "error"
)

// ChunkDescriptor describes one slice of a managed file
type ChunkDescriptor struct {
	Index   int
	Start   int64
	End     int64
	Status  ChunkStatus
	Retries int
}

// FileSource is the raw material for a managed file: the bytes plus
// display metadata chosen by the caller.
type FileSource struct {
	Name        string
	ContentType string
	Data        []byte
}

// ManagedFile is one user-selected file under the queue manager's control.
// All mutation goes through the manager; external callers only see snapshots.
type ManagedFile struct {
	ID            string
	Name          string
	ContentType   string
	Size          int64
	ChunkSize     int64
	Data          []byte
	Chunks        []*ChunkDescriptor
	Status        FileStatus
	QueuePosition int
	Retries       int
	LastError     string
	AddedAt       time.Time
}

// NewUploadID derives a time+random identifier for one upload attempt
func NewUploadID() string {
	frag := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), frag)
}

// NewManagedFile creates a managed file with its chunk list precomputed
func NewManagedFile(src FileSource, chunkSize int64) (*ManagedFile, error) {
	size := int64(len(src.Data))
	ranges, err := Split(size, chunkSize)
	if err != nil {
		return nil, err
	}

	chunks := make([]*ChunkDescriptor, len(ranges))
	for i, r := range ranges {
		chunks[i] = &ChunkDescriptor{
			Index:  r.Index,
			Start:  r.Start,
			End:    r.End,
			Status: ChunkStatusPending,
		}
	}

	return &ManagedFile{
		ID:          NewUploadID(),
		Name:        src.Name,
		ContentType: src.ContentType,
		Size:        size,
		ChunkSize:   chunkSize,
		Data:        src.Data,
		Chunks:      chunks,
		Status:      FileStatusPending,
		AddedAt:     time.Now(),
	}, nil
}

// TotalChunks returns the number of chunks the file splits into
func (f ManagedFile) TotalChunks() int {
	return len(f.Chunks)
}

// UploadedChunks counts chunks whose status is completed
func (f ManagedFile) UploadedChunks() int {
	count := 0
	for _, c := range f.Chunks {
		if c.Status == ChunkStatusCompleted {
			count++
		}
	}
	return count
}

// Progress returns the rounded completion percentage
func (f ManagedFile) Progress() int {
	if len(f.Chunks) == 0 {
		return 0
	}
	return int(math.Round(float64(f.UploadedChunks()) / float64(len(f.Chunks)) * 100))
}

// ChunkData returns the byte range backing the chunk at index
func (f ManagedFile) ChunkData(index int) []byte {
	c := f.Chunks[index]
	return f.Data[c.Start:c.End]
}

// Release drops the reference to the raw file bytes
func (f *ManagedFile) Release() {
	f.Data = nil
}
