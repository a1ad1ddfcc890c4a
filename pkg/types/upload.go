package types

// UploadInitRequest starts a chunked upload. It is purely a validation
// gate: no server-side state is created.
type UploadInitRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	TotalSize   int64  `json:"totalSize"`
	TotalChunks int    `json:"totalChunks"`
	ChunkSize   int64  `json:"chunkSize"`
	UploadID    string `json:"uploadId"`
}

// UploadInitResponse echoes the accepted upload metadata
type UploadInitResponse struct {
	Status      string `json:"status"`
	UploadID    string `json:"uploadId"`
	TotalChunks int    `json:"totalChunks"`
}

// ChunkResponse acknowledges one stored chunk
type ChunkResponse struct {
	ChunkIndex int `json:"chunkIndex"`
	Progress   int `json:"progress"`
}

// UploadCompleteRequest asks the server to reassemble the stored chunks
// and hand the result to the storage backend
type UploadCompleteRequest struct {
	UploadID    string `json:"uploadId"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	TotalSize   int64  `json:"totalSize"`
	TotalChunks int    `json:"totalChunks"`
}

// UploadCompleteResponse reports the ingested media item
type UploadCompleteResponse struct {
	Success         bool   `json:"success"`
	MediaItemID     string `json:"mediaItemId"`
	ChunksCleanedUp int    `json:"chunksCleanedUp"`
}

// CleanupRequest targets one upload's chunk objects
type CleanupRequest struct {
	UploadID string `json:"uploadId"`
}

// CleanupResponse reports per-object deletion counts
type CleanupResponse struct {
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// OrphanSweepResponse reports aggregate counts for an orphan sweep
type OrphanSweepResponse struct {
	GroupsDeleted int `json:"groupsDeleted"`
	ChunksDeleted int `json:"chunksDeleted"`
	ChunksFailed  int `json:"chunksFailed"`
}

// ErrorResponse is the common error shape returned by the API
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
