package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattcarabine/wedding-website/pkg/types"
)

// testClock skips backoff waits so retry paths run instantly
type testClock struct {
	mu     sync.Mutex
	slept  []time.Duration
	frozen time.Time
}

func newTestClock() *testClock {
	return &testClock{frozen: time.Date(2025, 6, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frozen
}

func (c *testClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.slept = append(c.slept, d)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *testClock) sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.slept))
	copy(out, c.slept)
	return out
}

type sendCall struct {
	uploadID string
	index    int
}

/// fakeSender is a scriptable ChunkSender: per-index failure budgets,
// per-index gates to hold sends open, and a full ordered call log.
type fakeSender struct {
	mu       sync.Mutex
	calls    []sendCall
	failures map[int]int
	failWith error
	gates    map[int]chan struct{}
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		failures: make(map[int]int),
		gates:    make(map[int]chan struct{}),
	}
}

func (f *fakeSender) SendChunk(ctx context.Context, uploadID string, index, totalChunks int, data []byte) error {
	f.mu.Lock()
	f.calls = append(f.calls, sendCall{uploadID: uploadID, index: index})
	shouldFail := false
	if f.failures[index] > 0 {
		f.failures[index]--
		shouldFail = true
	}
	gate := f.gates[index]
	failErr := f.failWith
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if shouldFail {
		if failErr != nil {
			return failErr
		}
		return errors.New("simulated send failure")
	}
	return nil
}

func (f *fakeSender) attempts(index int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, call := range f.calls {
		if call.index == index {
			count++
		}
	}
	return count
}

func (f *fakeSender) callLog() []sendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sendCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// fakeAPI is a scriptable UploadAPI with an ordered operation log
type fakeAPI struct {
	mu          sync.Mutex
	ops         []string
	initErr     error
	completeErr error
}

func newFakeAPI() *fakeAPI { return &fakeAPI{} }

func (f *fakeAPI) Init(ctx context.Context, req types.UploadInitRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "init:"+req.UploadID)
	return f.initErr
}

func (f *fakeAPI) Complete(ctx context.Context, req types.UploadCompleteRequest) (*types.UploadCompleteResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "complete:"+req.UploadID)
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return &types.UploadCompleteResponse{
		Success:         true,
		MediaItemID:     "media-" + req.UploadID,
		ChunksCleanedUp: req.TotalChunks,
	}, nil
}

func (f *fakeAPI) Cleanup(ctx context.Context, uploadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "cleanup:"+uploadID)
	return nil
}

func (f *fakeAPI) opLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.ops))
	copy(out, f.ops)
	return out
}

// recordingSink captures scheduler notifications for assertions
type recordingSink struct {
	mu       sync.Mutex
	statuses map[int][]ChunkStatus
	retries  map[int]int
	progress int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		statuses: make(map[int][]ChunkStatus),
		retries:  make(map[int]int),
	}
}

func (s *recordingSink) ChunkStatus(index int, status ChunkStatus, retries int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[index] = append(s.statuses[index], status)
	s.retries[index] = retries
}

func (s *recordingSink) Progress() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress++
}

func (s *recordingSink) lastStatus(index int) ChunkStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.statuses[index]
	if len(history) == 0 {
		return ""
	}
	return history[len(history)-1]
}

// payloadsFor builds one payload per chunk of n bytes each
func payloadsFor(totalChunks int) []ChunkPayload {
	payloads := make([]ChunkPayload, totalChunks)
	for i := range payloads {
		payloads[i] = ChunkPayload{Index: i, Data: []byte(fmt.Sprintf("chunk-%d", i))}
	}
	return payloads
}
