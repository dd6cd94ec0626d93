package sink

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/siscx/voice-donation-app/internal/types"
)

func TestMemorySinkLifecycle(t *testing.T) {
	s := NewMemorySink()

	meta := types.RecordingMetadata{RecordingID: "rec-1", DonationID: "don-1"}
	if err := s.RecordInitial("rec-1", meta); err != nil {
		t.Fatalf("initial: %v", err)
	}
	entry, ok := s.Get("rec-1")
	if !ok || entry.Status != "" || entry.Meta.DonationID != "don-1" {
		t.Fatalf("after initial: %+v ok=%v", entry, ok)
	}

	record := &types.DonationRecord{Metadata: meta}
	if err := s.RecordCompleted("rec-1", record); err != nil {
		t.Fatalf("completed: %v", err)
	}
	entry, _ = s.Get("rec-1")
	if entry.Status != types.StatusCompleted || entry.Record == nil {
		t.Fatalf("after completion: %+v", entry)
	}

	if err := s.RecordFailed("rec-2", "boom"); err != nil {
		t.Fatalf("failed: %v", err)
	}
	entry, _ = s.Get("rec-2")
	if entry.Status != types.StatusFailed || entry.Reason != "boom" {
		t.Fatalf("after failure: %+v", entry)
	}

	if s.Len() != 2 {
		t.Fatalf("len: %d", s.Len())
	}
	records := s.CompletedRecords()
	if len(records) != 1 || records[0].Metadata.RecordingID != "rec-1" {
		t.Fatalf("completed records: %+v", records)
	}
}

func TestMemorySinkConcurrentWrites(t *testing.T) {
	s := NewMemorySink()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n%26))
			_ = s.RecordInitial(id, types.RecordingMetadata{RecordingID: id})
			_ = s.RecordCompleted(id, &types.DonationRecord{})
		}(i)
	}
	wg.Wait()
	if s.Len() != 26 {
		t.Fatalf("expected 26 entries, got %d", s.Len())
	}
}

type flakySink struct {
	mu       sync.Mutex
	failures int
	calls    int
	inner    *MemorySink
}

func (f *flakySink) fail() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return true
	}
	return false
}

func (f *flakySink) RecordInitial(id string, meta types.RecordingMetadata) error {
	if f.fail() {
		return errors.New("transient store error")
	}
	return f.inner.RecordInitial(id, meta)
}

func (f *flakySink) RecordCompleted(id string, record *types.DonationRecord) error {
	if f.fail() {
		return errors.New("transient store error")
	}
	return f.inner.RecordCompleted(id, record)
}

func (f *flakySink) RecordFailed(id string, reason string) error {
	if f.fail() {
		return errors.New("transient store error")
	}
	return f.inner.RecordFailed(id, reason)
}

func TestRetrySinkRecoversFromTransientFailures(t *testing.T) {
	flaky := &flakySink{failures: 2, inner: NewMemorySink()}
	r := NewRetrySink(flaky, 10*time.Second)

	if err := r.RecordInitial("rec-1", types.RecordingMetadata{}); err != nil {
		t.Fatalf("retry did not recover: %v", err)
	}
	if flaky.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", flaky.calls)
	}
	if _, ok := flaky.inner.Get("rec-1"); !ok {
		t.Fatalf("write never landed")
	}
}

func TestRetrySinkGivesUpEventually(t *testing.T) {
	flaky := &flakySink{failures: 1 << 30, inner: NewMemorySink()}
	r := NewRetrySink(flaky, 50*time.Millisecond)

	start := time.Now()
	err := r.RecordFailed("rec-1", "unreachable")
	if err == nil {
		t.Fatalf("expected terminal error")
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("retry ran far past its budget")
	}
}
