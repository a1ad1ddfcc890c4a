package upload

// Event is the marker interface for notifications the queue manager emits.
// The unexported method keeps the set of event types closed to this package.
type Event interface {
	isEvent()
}

type baseEvent struct{}

func (baseEvent) isEvent() {}

// FileStatusEvent reports a managed file's status change. QueuePosition is
// meaningful only while the status is queued.
type FileStatusEvent struct {
	baseEvent
	FileID        string
	Status        FileStatus
	QueuePosition int
	Error         string
}

// FileProgressEvent reports chunk completion progress for one file
type FileProgressEvent struct {
	baseEvent
	FileID         string
	UploadedChunks int
	TotalChunks    int
	Progress       int
}

// ChunkStatusEvent reports one chunk's status change
type ChunkStatusEvent struct {
	baseEvent
	FileID  string
	Index   int
	Status  ChunkStatus
	Retries int
}

// FileCompletedEvent fires once a file has been reassembled and ingested
type FileCompletedEvent struct {
	baseEvent
	FileID      string
	MediaItemID string
}

// AllCompleteEvent fires exactly once when every managed file is either
// completed or errored
type AllCompleteEvent struct {
	baseEvent
	Completed int
	Errored   int
}
