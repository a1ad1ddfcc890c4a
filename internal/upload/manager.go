package upload

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// ManagerConfig tunes the queue manager
type ManagerConfig struct {
	// ChunkSize used when splitting added files
	ChunkSize int64
	// EventBuffer is the capacity of the event channel
	EventBuffer int
	// RequeueDelay is how long processing waits after an unexpected
	// per-file failure before continuing with the rest of the queue
	RequeueDelay time.Duration
}

// DefaultManagerConfig returns the standard manager settings
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		ChunkSize:    2 * 1024 * 1024,
		EventBuffer:  256,
		RequeueDelay: time.Second,
	}
}

// Manager is the single point of control for the set of managed files.
// It enforces exactly one active upload at a time; per-chunk concurrency
// within that file is the scheduler's concern. All state mutation happens
// under the manager's lock, through its own methods.
type Manager struct {
	mu           sync.Mutex
	orch         *Orchestrator
	api          UploadAPI
	chunkSize    int64
	requeueDelay time.Duration

	files            []*ManagedFile
	queue            []string
	activeID         string
	paused           bool
	stopped          bool
	processing       bool
	allCompleteFired bool
	cancelActive     context.CancelFunc

	events chan Event
	wg     sync.WaitGroup
}

// NewManager creates a queue manager over the orchestrator and API client
func NewManager(orch *Orchestrator, api UploadAPI, cfg ManagerConfig) *Manager {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultManagerConfig().ChunkSize
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultManagerConfig().EventBuffer
	}
	if cfg.RequeueDelay <= 0 {
		cfg.RequeueDelay = DefaultManagerConfig().RequeueDelay
	}
	return &Manager{
		orch:         orch,
		api:          api,
		chunkSize:    cfg.ChunkSize,
		requeueDelay: cfg.RequeueDelay,
		events:       make(chan Event, cfg.EventBuffer),
	}
}

// Events returns the stream of manager notifications. The channel is
// buffered; events are dropped (and logged) rather than blocking the
// pipeline when no consumer keeps up.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// AddFiles places files under management. The first file added while
// nothing is active becomes pending and eligible to start; the rest wait
// in the queue in insertion order.
func (m *Manager) AddFiles(sources []FileSource) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(sources))
	for _, src := range sources {
		file, err := NewManagedFile(src, m.chunkSize)
		if err != nil {
			return nil, err
		}
		m.files = append(m.files, file)
		ids = append(ids, file.ID)
	}

	m.allCompleteFired = false
	m.recomputeQueueLocked()

	if !m.paused && !m.stopped && m.activeID == "" {
		m.startProcessingLocked()
	}

	return ids, nil
}

// RemoveFile drops a file from management, aborting it first if active,
// and always releasing its local resources
func (m *Manager) RemoveFile(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, ok := m.findLocked(id)
	if !ok {
		return
	}

	if id == m.activeID && m.cancelActive != nil {
		m.cancelActive()
	}

	file.Release()
	m.files = lo.Filter(m.files, func(f *ManagedFile, _ int) bool { return f.ID != id })
	m.recomputeQueueLocked()
	m.maybeFireAllCompleteLocked()
}

// StartUpload clears any paused or stopped state and begins processing
// the queue
func (m *Manager) StartUpload() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.paused = false
	m.stopped = false
	m.recomputeQueueLocked()
	m.startProcessingLocked()
}

// PauseAll stops admitting new chunk starts. Chunks already in flight
// are allowed to finish; the active file is marked paused.
func (m *Manager) PauseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.paused = true
	if file, ok := m.findLocked(m.activeID); ok {
		file.Status = FileStatusPaused
		m.emitStatusLocked(file)
	}
}

// ResumeAll clears any paused or stopped state, returns any paused file
// to pending and resumes processing
func (m *Manager) ResumeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.paused = false
	m.stopped = false
	for _, f := range m.files {
		if f.Status == FileStatusPaused {
			f.Status = FileStatusPending
			m.emitStatusLocked(f)
		}
	}
	m.recomputeQueueLocked()
	m.startProcessingLocked()
}

// RetryFailed resets every errored file and its failed chunks to pending,
// then resumes processing
func (m *Manager) RetryFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()

	retried := false
	for _, f := range m.files {
		if f.Status != FileStatusError {
			continue
		}
		f.Status = FileStatusPending
		f.LastError = ""
		for _, c := range f.Chunks {
			if c.Status == ChunkStatusError {
				c.Status = ChunkStatusPending
				c.Retries = 0
			}
		}
		m.emitStatusLocked(f)
		retried = true
	}

	if retried {
		m.allCompleteFired = false
	}
	m.recomputeQueueLocked()
	m.startProcessingLocked()
}

// CancelAll aborts everything in flight and resets non-terminal files to
// pending. The manager goes idle; StartUpload or ResumeAll restarts it.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	m.cancelAllLocked()
	m.mu.Unlock()
}

// CancelAllWithCleanup is CancelAll plus a best-effort server-side chunk
// cleanup for every file that had at least one chunk transferred
func (m *Manager) CancelAllWithCleanup(ctx context.Context) {
	m.mu.Lock()
	targets := lo.FilterMap(m.files, func(f *ManagedFile, _ int) (string, bool) {
		return f.ID, f.Status != FileStatusCompleted && f.UploadedChunks() > 0
	})
	m.cancelAllLocked()
	m.mu.Unlock()

	// Let the active run drain before deleting its chunks
	m.wg.Wait()

	for _, id := range targets {
		if err := m.api.Cleanup(ctx, id); err != nil {
			log.Warn().Err(err).Str("upload_id", id).Msg("chunk cleanup failed")
		}
	}
}

// ClearCompleted drops completed files and their local resources from
// management. Server-side chunks were already cleaned at completion time.
func (m *Manager) ClearCompleted() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, f := range m.files {
		if f.Status == FileStatusCompleted {
			f.Release()
		}
	}
	m.files = lo.Filter(m.files, func(f *ManagedFile, _ int) bool {
		return f.Status != FileStatusCompleted
	})
	m.recomputeQueueLocked()
}

// Files returns a snapshot of the managed set. Chunk descriptors are
// copied; raw file bytes are not exposed.
func (m *Manager) Files() []ManagedFile {
	m.mu.Lock()
	defer m.mu.Unlock()

	return lo.Map(m.files, func(f *ManagedFile, _ int) ManagedFile {
		snapshot := *f
		snapshot.Data = nil
		snapshot.Chunks = lo.Map(f.Chunks, func(c *ChunkDescriptor, _ int) *ChunkDescriptor {
			cc := *c
			return &cc
		})
		return snapshot
	})
}

// Shutdown aborts any active upload and waits for processing to stop
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.paused = true
	if m.cancelActive != nil {
		m.cancelActive()
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// cancelAllLocked aborts the active run and resets every non-terminal
// file to pending. Stopped is distinct from paused: a pause keeps the
// waiting files queued to resume in place, a cancel discharges the whole
// queue back to pending.
func (m *Manager) cancelAllLocked() {
	if m.cancelActive != nil {
		m.cancelActive()
	}
	m.stopped = true

	for _, f := range m.files {
		switch f.Status {
		case FileStatusUploading, FileStatusPaused, FileStatusQueued:
			f.Status = FileStatusPending
			m.emitStatusLocked(f)
		}
	}
	m.recomputeQueueLocked()
}

// recomputeQueueLocked rebuilds the waiting list from scratch: every
// non-active file in state pending or queued, in insertion order. The
// head is eligible to start (pending) only while the slot is free and the
// manager is running; after a cancel, everything waiting stays pending.
func (m *Manager) recomputeQueueLocked() {
	waiting := lo.Filter(m.files, func(f *ManagedFile, _ int) bool {
		if f.ID == m.activeID {
			return false
		}
		return f.Status == FileStatusPending || f.Status == FileStatusQueued
	})

	m.queue = lo.Map(waiting, func(f *ManagedFile, _ int) string { return f.ID })

	for i, f := range waiting {
		want := FileStatusQueued
		if m.stopped {
			want = FileStatusPending
		} else if i == 0 && m.activeID == "" && !m.paused {
			want = FileStatusPending
		}
		changed := f.Status != want || f.QueuePosition != i
		f.Status = want
		f.QueuePosition = i
		if changed {
			m.emitStatusLocked(f)
		}
	}
}

// startProcessingLocked claims the active slot for the head of the queue.
// The processing flag keeps concurrent passes from overlapping.
func (m *Manager) startProcessingLocked() {
	if m.processing || m.paused || m.stopped || m.activeID != "" || len(m.queue) == 0 {
		m.maybeFireAllCompleteLocked()
		return
	}

	id := m.queue[0]
	m.queue = m.queue[1:]
	file, ok := m.findLocked(id)
	if !ok {
		return
	}

	m.processing = true
	m.activeID = id
	file.Status = FileStatusUploading
	file.QueuePosition = 0
	m.emitStatusLocked(file)
	m.recomputeQueueLocked()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelActive = cancel

	m.wg.Add(1)
	go m.runActive(ctx, file)
}

// runActive drives one file to a terminal state, then hands the slot back
func (m *Manager) runActive(ctx context.Context, file *ManagedFile) {
	defer m.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("upload_id", file.ID).
				Interface("panic", r).
				Msg("unexpected upload processing failure, dropping file")

			m.mu.Lock()
			m.files = lo.Filter(m.files, func(f *ManagedFile, _ int) bool { return f.ID != file.ID })
			m.finishActiveLocked(true)
			m.mu.Unlock()
		}
	}()

	resp, err := m.orch.Run(ctx, file, m.admitChunks, &managerSink{m: m, file: file})

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, managed := m.findLocked(file.ID); !managed {
		m.finishActiveLocked(false)
		return
	}

	switch {
	case err != nil:
		file.Status = FileStatusError
		file.LastError = err.Error()
		file.Retries++
		m.emitStatusLocked(file)
	case resp != nil:
		file.Status = FileStatusCompleted
		m.emitStatusLocked(file)
		m.emit(FileCompletedEvent{FileID: file.ID, MediaItemID: resp.MediaItemID})
	default:
		// Interrupted: a pause left the status paused, an abort left it
		// for the canceller to reset. Anything still marked uploading
		// reverts to pending so the file can be restarted.
		if file.Status == FileStatusUploading {
			file.Status = FileStatusPending
			m.emitStatusLocked(file)
		}
	}

	m.finishActiveLocked(false)
}

// finishActiveLocked releases the active slot and, unless paused or
// stopped, schedules the next processing pass
func (m *Manager) finishActiveLocked(afterFailure bool) {
	if m.cancelActive != nil {
		m.cancelActive()
		m.cancelActive = nil
	}
	m.activeID = ""
	m.processing = false
	m.recomputeQueueLocked()
	m.maybeFireAllCompleteLocked()

	if m.paused || m.stopped {
		return
	}
	if afterFailure {
		time.AfterFunc(m.requeueDelay, func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.startProcessingLocked()
		})
		return
	}
	go func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.startProcessingLocked()
	}()
}

func (m *Manager) maybeFireAllCompleteLocked() {
	if m.allCompleteFired || len(m.files) == 0 {
		return
	}

	completed := 0
	errored := 0
	for _, f := range m.files {
		switch f.Status {
		case FileStatusCompleted:
			completed++
		case FileStatusError:
			errored++
		}
	}

	if completed+errored == len(m.files) {
		m.allCompleteFired = true
		m.emit(AllCompleteEvent{Completed: completed, Errored: errored})
	}
}

func (m *Manager) admitChunks() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.paused && !m.stopped
}

func (m *Manager) findLocked(id string) (*ManagedFile, bool) {
	return lo.Find(m.files, func(f *ManagedFile) bool { return f.ID == id })
}

func (m *Manager) emitStatusLocked(f *ManagedFile) {
	m.emit(FileStatusEvent{
		FileID:        f.ID,
		Status:        f.Status,
		QueuePosition: f.QueuePosition,
		Error:         f.LastError,
	})
}

func (m *Manager) emit(e Event) {
	select {
	case m.events <- e:
	default:
		log.Warn().Msg("upload event dropped, no consumer keeping up")
	}
}

// managerSink routes scheduler notifications into manager state under the
// manager's lock
type managerSink struct {
	m    *Manager
	file *ManagedFile
}

func (s *managerSink) ChunkStatus(index int, status ChunkStatus, retries int) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	if _, managed := s.m.findLocked(s.file.ID); !managed {
		return
	}
	if index < 0 || index >= len(s.file.Chunks) {
		return
	}

	c := s.file.Chunks[index]
	c.Status = status
	c.Retries = retries

	s.m.emit(ChunkStatusEvent{
		FileID:  s.file.ID,
		Index:   index,
		Status:  status,
		Retries: retries,
	})
}

func (s *managerSink) Progress() {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	if _, managed := s.m.findLocked(s.file.ID); !managed {
		return
	}

	s.m.emit(FileProgressEvent{
		FileID:         s.file.ID,
		UploadedChunks: s.file.UploadedChunks(),
		TotalChunks:    s.file.TotalChunks(),
		Progress:       s.file.Progress(),
	})
}
