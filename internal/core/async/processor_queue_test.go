package async

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/media-converter/constants"
	"github.com/joseph-ayodele/media-converter/internal/async"
	"github.com/joseph-ayodele/media-converter/internal/core/classify"
	"github.com/joseph-ayodele/media-converter/internal/core/convert"
	"github.com/joseph-ayodele/media-converter/internal/core/media"
)

type fakeConverter struct {
	mu     sync.Mutex
	forced []classify.Strategy
	block  chan struct{}
}

func (f *fakeConverter) Convert(ctx context.Context, req convert.Request, d media.Descriptor) convert.Result {
	return f.ConvertAs(ctx, req, d, "")
}

func (f *fakeConverter) ConvertAs(_ context.Context, _ convert.Request, d media.Descriptor, s classify.Strategy) convert.Result {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.forced = append(f.forced, s)
	f.mu.Unlock()
	return convert.Result{ID: d.ID, Status: constants.ConversionSuccess, ExtractedText: "text of " + d.ID}
}

type fakeStore struct {
	mu       sync.Mutex
	started  []uuid.UUID
	finished map[uuid.UUID]convert.Result
	done     chan uuid.UUID
	startErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{finished: map[uuid.UUID]convert.Result{}, done: make(chan uuid.UUID, 16)}
}

func (s *fakeStore) Start(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, id)
	return s.startErr
}

func (s *fakeStore) Finish(_ context.Context, id uuid.UUID, res convert.Result) error {
	s.mu.Lock()
	s.finished[id] = res
	s.mu.Unlock()
	s.done <- id
	return nil
}

func waitDone(t *testing.T, s *fakeStore, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.done:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for job %d of %d", i+1, n)
		}
	}
}

func job(id string) async.Job {
	return async.Job{JobID: uuid.New(), Descriptor: media.Descriptor{ID: id, Source: media.BytesSource("x")}}
}

func TestQueue_ProcessesJobs(t *testing.T) {
	conv := &fakeConverter{}
	store := newFakeStore()
	q := NewConversionQueue(conv, store, nil, WithWorkers(2), WithQueueSize(4))

	jobs := []async.Job{job("a"), job("b"), job("c")}
	for _, j := range jobs {
		require.NoError(t, q.Enqueue(context.Background(), j))
	}
	waitDone(t, store, len(jobs))
	q.Shutdown(context.Background())

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.started, 3)
	for _, j := range jobs {
		res, ok := store.finished[j.JobID]
		require.True(t, ok)
		assert.Equal(t, "text of "+j.Descriptor.ID, res.ExtractedText)
	}
}

func TestQueue_ExplicitStrategy(t *testing.T) {
	conv := &fakeConverter{}
	store := newFakeStore()
	q := NewConversionQueue(conv, store, nil, WithWorkers(1))

	j := job("scan")
	j.Strategy = classify.OCR
	require.NoError(t, q.Enqueue(context.Background(), j))
	waitDone(t, store, 1)
	q.Shutdown(context.Background())

	conv.mu.Lock()
	defer conv.mu.Unlock()
	assert.Equal(t, []classify.Strategy{classify.OCR}, conv.forced)
}

func TestQueue_StartFailureStillConverts(t *testing.T) {
	store := newFakeStore()
	store.startErr = errors.New("db down")
	q := NewConversionQueue(&fakeConverter{}, store, nil, WithWorkers(1))

	j := job("a")
	require.NoError(t, q.Enqueue(context.Background(), j))
	waitDone(t, store, 1)
	q.Shutdown(context.Background())
}

func TestQueue_EnqueueAfterShutdown(t *testing.T) {
	q := NewConversionQueue(&fakeConverter{}, newFakeStore(), nil, WithWorkers(1))
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())

	err := q.Enqueue(context.Background(), job("late"))
	assert.ErrorIs(t, err, async.ErrQueueClosed)
}

func TestQueue_BackpressureHonorsContext(t *testing.T) {
	conv := &fakeConverter{block: make(chan struct{})}
	store := newFakeStore()
	q := NewConversionQueue(conv, store, nil, WithWorkers(1), WithQueueSize(1))

	// first job occupies the worker, second fills the buffer
	require.NoError(t, q.Enqueue(context.Background(), job("busy")))
	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.started) == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), job("buffered")))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, job("rejected"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(conv.block)
	waitDone(t, store, 2)
	q.Shutdown(context.Background())
}

func TestQueue_ShutdownInterruptedByContext(t *testing.T) {
	conv := &fakeConverter{block: make(chan struct{})}
	store := newFakeStore()
	q := NewConversionQueue(conv, store, nil, WithWorkers(1))
	require.NoError(t, q.Enqueue(context.Background(), job("stuck")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	q.Shutdown(ctx)
	assert.Less(t, time.Since(start), 2*time.Second)

	close(conv.block)
	waitDone(t, store, 1)
}

// fillQueue occupies the single worker and the one buffer slot.
func fillQueue(t *testing.T, q *ConversionQueue, store *fakeStore) {
	t.Helper()
	require.NoError(t, q.Enqueue(context.Background(), job("busy")))
	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.started) == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), job("buffered")))
}

func TestQueue_WaitingSendersEachHonorTheirContext(t *testing.T) {
	conv := &fakeConverter{block: make(chan struct{})}
	store := newFakeStore()
	q := NewConversionQueue(conv, store, nil, WithWorkers(1), WithQueueSize(1))
	fillQueue(t, q, store)

	waiting := make(chan error, 1)
	go func() { waiting <- q.Enqueue(context.Background(), job("patient")) }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := q.Enqueue(ctx, job("impatient"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)

	close(conv.block)
	require.NoError(t, <-waiting)
	waitDone(t, store, 3)
	q.Shutdown(context.Background())
}

func TestQueue_ShutdownReleasesBlockedSender(t *testing.T) {
	conv := &fakeConverter{block: make(chan struct{})}
	store := newFakeStore()
	q := NewConversionQueue(conv, store, nil, WithWorkers(1), WithQueueSize(1))
	fillQueue(t, q, store)

	waiting := make(chan error, 1)
	go func() { waiting <- q.Enqueue(context.Background(), job("late")) }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	q.Shutdown(ctx)

	select {
	case err := <-waiting:
		assert.ErrorIs(t, err, async.ErrQueueClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("blocked sender was not released by shutdown")
	}

	close(conv.block)
	waitDone(t, store, 2)
}
