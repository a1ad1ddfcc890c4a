package upload

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
)

// ProgressSink receives chunk lifecycle notifications from the scheduler.
// Implementations must be safe for concurrent use: notifications arrive
// from the per-chunk upload goroutines.
type ProgressSink interface {
	ChunkStatus(index int, status ChunkStatus, retries int)
	Progress()
}

// ChunkPayload is one unit of scheduler work: a chunk index plus the byte
// range backing it and any retry count carried over from a previous run.
type ChunkPayload struct {
	Index   int
	Data    []byte
	Retries int
}

// Scheduler drives the chunk uploads of one file with bounded concurrency
// and per-chunk retry.
type Scheduler struct {
	sender      ChunkSender
	concurrency int
	policy      RetryPolicy
	clock       Clock
}

// NewScheduler creates a scheduler. Concurrency values below 1 fall back
// to the default of 3.
func NewScheduler(sender ChunkSender, concurrency int, policy RetryPolicy, clock Clock) *Scheduler {
	if concurrency < 1 {
		concurrency = 3
	}
	if policy.MaxAttempts < 1 {
		policy = DefaultRetryPolicy()
	}
	if clock == nil {
		clock = RealClock()
	}
	return &Scheduler{
		sender:      sender,
		concurrency: concurrency,
		policy:      policy,
		clock:       clock,
	}
}

type chunkResult struct {
	index     int
	retries   int
	cancelled bool
	err       error
}

// UploadAll uploads every pending chunk. It keeps up to the concurrency
// limit in flight, admitting new work only while ctx is live and the admit
// gate stays open; in-flight sends are always drained, never leaked.
// It returns done=true when every chunk reached completed. Cancellation
// is not reported as an error; permanently failed chunks are.
func (s *Scheduler) UploadAll(ctx context.Context, uploadID string, pending []ChunkPayload, totalChunks int, admit func() bool, sink ProgressSink) (bool, error) {
	if admit == nil {
		admit = func() bool { return true }
	}

	queue := make([]ChunkPayload, len(pending))
	copy(queue, pending)

	results := make(chan chunkResult)
	inFlight := 0
	interrupted := 0
	var failed []int

	for len(queue) > 0 || inFlight > 0 {
		for len(queue) > 0 && inFlight < s.concurrency && ctx.Err() == nil && admit() {
			payload := queue[0]
			queue = queue[1:]
			inFlight++

			go func(p ChunkPayload) {
				results <- s.sendWithRetry(ctx, uploadID, p, totalChunks, sink)
			}(payload)
		}

		if inFlight == 0 {
			// Aborted or paused with nothing left in flight
			break
		}

		res := <-results
		inFlight--

		switch {
		case res.cancelled:
			interrupted++
		case res.err != nil:
			failed = append(failed, res.index)
		}
	}

	if len(failed) > 0 {
		sort.Ints(failed)
		return false, fmt.Errorf("upload %s: %d chunk(s) permanently failed: %v", uploadID, len(failed), failed)
	}

	done := len(queue) == 0 && interrupted == 0
	return done, nil
}

// sendWithRetry runs the attempt loop for a single chunk. Failures are
// retried with a backoff scaled by the failed attempt count; a chunk is
// only reported failed once the attempt budget is exhausted or the error
// is known not to be transient.
func (s *Scheduler) sendWithRetry(ctx context.Context, uploadID string, p ChunkPayload, totalChunks int, sink ProgressSink) chunkResult {
	retries := p.Retries
	var lastErr error

	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			sink.ChunkStatus(p.Index, ChunkStatusPending, retries)
			return chunkResult{index: p.Index, retries: retries, cancelled: true}
		}

		sink.ChunkStatus(p.Index, ChunkStatusUploading, retries)

		err := s.sender.SendChunk(ctx, uploadID, p.Index, totalChunks, p.Data)
		if err == nil {
			sink.ChunkStatus(p.Index, ChunkStatusCompleted, retries)
			sink.Progress()
			return chunkResult{index: p.Index, retries: retries}
		}

		if ctx.Err() != nil {
			// The request was torn down by cancellation, not a real failure
			sink.ChunkStatus(p.Index, ChunkStatusPending, retries)
			return chunkResult{index: p.Index, retries: retries, cancelled: true}
		}

		lastErr = err
		retries++

		var terr *TransportError
		if errors.As(err, &terr) && !terr.Transient() {
			log.Warn().
				Str("upload_id", uploadID).
				Int("chunk_index", p.Index).
				Err(err).
				Msg("chunk rejected, not retrying")
			break
		}

		log.Warn().
			Str("upload_id", uploadID).
			Int("chunk_index", p.Index).
			Int("attempt", attempt).
			Err(err).
			Msg("chunk send failed")

		if attempt < s.policy.MaxAttempts {
			sink.ChunkStatus(p.Index, ChunkStatusPending, retries)
			if err := s.clock.Sleep(ctx, s.policy.Delay(attempt)); err != nil {
				return chunkResult{index: p.Index, retries: retries, cancelled: true}
			}
		}
	}

	sink.ChunkStatus(p.Index, ChunkStatusError, retries)
	return chunkResult{index: p.Index, retries: retries, err: lastErr}
}
