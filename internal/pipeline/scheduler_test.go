package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/siscx/voice-donation-app/internal/sink"
	"github.com/siscx/voice-donation-app/internal/types"
)

type stubProcessor struct {
	mu        sync.Mutex
	inFlight  int32
	maxSeen   int32
	order     []string
	delay     time.Duration
	failIDs   map[string]bool
	panicIDs  map[string]bool
	processed int32
}

func (p *stubProcessor) Process(sub types.RecordingSubmission) types.ProcessingResult {
	cur := atomic.AddInt32(&p.inFlight, 1)
	for {
		max := atomic.LoadInt32(&p.maxSeen)
		if cur <= max || atomic.CompareAndSwapInt32(&p.maxSeen, max, cur) {
			break
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	p.mu.Lock()
	p.order = append(p.order, sub.RecordingID)
	p.mu.Unlock()
	atomic.AddInt32(&p.processed, 1)
	atomic.AddInt32(&p.inFlight, -1)

	if p.panicIDs[sub.RecordingID] {
		panic("processing blew up")
	}
	if p.failIDs[sub.RecordingID] {
		return types.ProcessingResult{
			RecordingID: sub.RecordingID,
			Status:      types.StatusFailed,
			Error:       "stub failure",
		}
	}
	return types.ProcessingResult{
		RecordingID: sub.RecordingID,
		Status:      types.StatusCompleted,
		Record:      &types.DonationRecord{},
	}
}

func metaFor(sub types.RecordingSubmission) types.RecordingMetadata {
	return types.RecordingMetadata{RecordingID: sub.RecordingID, DonationID: sub.DonationID}
}

func batch(donation string, n int) []types.RecordingSubmission {
	tasks := make([]types.RecordingSubmission, n)
	for i := range tasks {
		tasks[i] = types.RecordingSubmission{
			RecordingID:   fmt.Sprintf("%s-rec-%d", donation, i+1),
			DonationID:    donation,
			TaskNumber:    i + 1,
			ExpectedTasks: n,
			Audio:         []byte{1},
		}
	}
	return tasks
}

func TestTasksRunSequentiallyWithinBatch(t *testing.T) {
	proc := &stubProcessor{delay: 5 * time.Millisecond}
	store := sink.NewMemorySink()
	s := NewScheduler(proc, store, 4, 0, metaFor)

	s.RunBatch("don-1", batch("don-1", 5))
	s.Wait()

	if got := atomic.LoadInt32(&proc.maxSeen); got != 1 {
		t.Fatalf("tasks of one batch overlapped: max in flight %d", got)
	}
	for i, id := range proc.order {
		want := fmt.Sprintf("don-1-rec-%d", i+1)
		if id != want {
			t.Fatalf("task order broken at %d: got %s want %s", i, id, want)
		}
	}
}

func TestConcurrencyBoundAcrossBatches(t *testing.T) {
	proc := &stubProcessor{delay: 20 * time.Millisecond}
	store := sink.NewMemorySink()
	s := NewScheduler(proc, store, 2, 0, metaFor)

	for i := 0; i < 6; i++ {
		s.RunBatch(fmt.Sprintf("don-%d", i), batch(fmt.Sprintf("don-%d", i), 2))
	}
	s.Wait()

	if got := atomic.LoadInt32(&proc.maxSeen); got > 2 {
		t.Fatalf("concurrency bound violated: %d batches in flight", got)
	}
	if got := atomic.LoadInt32(&proc.processed); got != 12 {
		t.Fatalf("expected 12 tasks processed, got %d", got)
	}
}

func TestFailedTaskDoesNotStopBatch(t *testing.T) {
	proc := &stubProcessor{failIDs: map[string]bool{"don-1-rec-2": true}}
	store := sink.NewMemorySink()
	s := NewScheduler(proc, store, 1, 0, metaFor)

	s.RunBatch("don-1", batch("don-1", 3))
	s.Wait()

	if got := atomic.LoadInt32(&proc.processed); got != 3 {
		t.Fatalf("expected all 3 tasks attempted, got %d", got)
	}
	entry, ok := store.Get("don-1-rec-2")
	if !ok || entry.Status != types.StatusFailed {
		t.Fatalf("expected failed status recorded, got %+v ok=%v", entry, ok)
	}
	entry, ok = store.Get("don-1-rec-3")
	if !ok || entry.Status != types.StatusCompleted {
		t.Fatalf("task after failure not completed: %+v ok=%v", entry, ok)
	}
}

func TestPanicIsContainedAndRecorded(t *testing.T) {
	proc := &stubProcessor{panicIDs: map[string]bool{"don-1-rec-1": true}}
	store := sink.NewMemorySink()
	s := NewScheduler(proc, store, 1, 0, metaFor)

	s.RunBatch("don-1", batch("don-1", 2))
	s.Wait()

	entry, ok := store.Get("don-1-rec-1")
	if !ok || entry.Status != types.StatusFailed {
		t.Fatalf("panicked task not recorded as failed: %+v ok=%v", entry, ok)
	}
	entry, ok = store.Get("don-1-rec-2")
	if !ok || entry.Status != types.StatusCompleted {
		t.Fatalf("batch did not continue after panic: %+v ok=%v", entry, ok)
	}

	// The permit must have been released: a further batch still runs.
	s.RunBatch("don-2", batch("don-2", 1))
	s.Wait()
	if _, ok := store.Get("don-2-rec-1"); !ok {
		t.Fatalf("scheduler wedged after panic")
	}
}

func TestInitialRowRecordedBeforeProcessing(t *testing.T) {
	proc := &stubProcessor{}
	store := sink.NewMemorySink()
	s := NewScheduler(proc, store, 1, 0, metaFor)

	s.RunBatch("don-1", batch("don-1", 1))
	s.Wait()

	entry, ok := store.Get("don-1-rec-1")
	if !ok {
		t.Fatalf("no entry recorded")
	}
	if entry.Meta.RecordingID != "don-1-rec-1" || entry.Meta.DonationID != "don-1" {
		t.Fatalf("initial metadata missing: %+v", entry.Meta)
	}
}
