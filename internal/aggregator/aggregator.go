// Package aggregator collects per-task submissions until a donation is
// complete, then hands the full batch to the dispatcher exactly once.
package aggregator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/siscx/voice-donation-app/internal/logger"
	"github.com/siscx/voice-donation-app/internal/types"
)

// Dispatcher receives a complete donation's tasks, ordered by task
// number. RunBatch must not block the caller.
type Dispatcher interface {
	RunBatch(donationID string, tasks []types.RecordingSubmission)
}

// SubmissionError marks a rejected submission. The web layer maps it to
// a client error.
type SubmissionError struct {
	Field  string
	Reason string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("invalid submission: %s %s", e.Field, e.Reason)
}

type donationState struct {
	expected  int
	tasks     map[int]types.RecordingSubmission
	updatedAt time.Time
}

// Aggregator tracks pending donations. All state transitions happen
// under one mutex so a donation dispatches exactly once no matter how
// its submissions interleave.
type Aggregator struct {
	mu         sync.Mutex
	pending    map[string]*donationState
	dispatcher Dispatcher
	ttl        time.Duration
	onEvict    func(types.RecordingSubmission)
	log        *logger.Logger
}

// New builds an aggregator. ttl of zero disables stale eviction,
// keeping incomplete donations pending indefinitely.
func New(dispatcher Dispatcher, ttl time.Duration) *Aggregator {
	return &Aggregator{
		pending:    make(map[string]*donationState),
		dispatcher: dispatcher,
		ttl:        ttl,
		log:        logger.NewComponent("aggregator"),
	}
}

// OnEvict registers a callback invoked for every task of an evicted
// donation, so stale submissions do not disappear silently. Must be set
// before the first Submit.
func (a *Aggregator) OnEvict(f func(types.RecordingSubmission)) {
	a.onEvict = f
}

// Submit records one task submission. When the donation's expected
// count is reached the whole batch is removed from pending and handed
// to the dispatcher, sorted by task number. Resubmitting a task number
// replaces the earlier payload without double counting.
func (a *Aggregator) Submit(sub types.RecordingSubmission) error {
	if err := validate(sub); err != nil {
		return err
	}

	a.mu.Lock()
	st, ok := a.pending[sub.DonationID]
	if !ok {
		st = &donationState{
			expected: sub.ExpectedTasks,
			tasks:    make(map[int]types.RecordingSubmission),
		}
		a.pending[sub.DonationID] = st
	}
	if _, replaced := st.tasks[sub.TaskNumber]; replaced {
		a.log.WithField("donation_id", sub.DonationID).
			WithField("task_number", sub.TaskNumber).
			Warn("task resubmitted, replacing earlier payload")
	}
	st.tasks[sub.TaskNumber] = sub
	st.updatedAt = time.Now()

	received, expected := len(st.tasks), st.expected
	ready := received >= expected
	var batch []types.RecordingSubmission
	if ready {
		delete(a.pending, sub.DonationID)
		batch = make([]types.RecordingSubmission, 0, len(st.tasks))
		for _, t := range st.tasks {
			batch = append(batch, t)
		}
	}
	a.mu.Unlock()

	log := a.log.WithField("donation_id", sub.DonationID).
		WithField("task_number", sub.TaskNumber)
	if !ready {
		log.WithField("received", received).
			WithField("expected", expected).
			Info("submission stored, donation incomplete")
		return nil
	}

	sort.Slice(batch, func(i, j int) bool {
		return batch[i].TaskNumber < batch[j].TaskNumber
	})
	log.WithField("tasks", len(batch)).Info("donation complete, dispatching")
	a.dispatcher.RunBatch(sub.DonationID, batch)
	return nil
}

func validate(sub types.RecordingSubmission) error {
	switch {
	case sub.DonationID == "":
		return &SubmissionError{Field: "donation_id", Reason: "is required"}
	case sub.RecordingID == "":
		return &SubmissionError{Field: "recording_id", Reason: "is required"}
	case sub.TaskNumber < 1:
		return &SubmissionError{Field: "task_number", Reason: "must be at least 1"}
	case sub.ExpectedTasks < 1:
		return &SubmissionError{Field: "total_tasks", Reason: "must be at least 1"}
	case len(sub.Audio) == 0:
		return &SubmissionError{Field: "audio", Reason: "is empty"}
	}
	return nil
}

// PendingTasks reports how many tasks are stored for a donation. Zero
// means unknown or already dispatched.
func (a *Aggregator) PendingTasks(donationID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if st, ok := a.pending[donationID]; ok {
		return len(st.tasks)
	}
	return 0
}

// PendingDonations reports the number of incomplete donations held.
func (a *Aggregator) PendingDonations() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// EvictStale drops donations not updated within the TTL and returns
// their IDs. No-op when eviction is disabled.
func (a *Aggregator) EvictStale(now time.Time) []string {
	if a.ttl <= 0 {
		return nil
	}
	a.mu.Lock()
	var evicted []string
	var tasks []types.RecordingSubmission
	for id, st := range a.pending {
		if now.Sub(st.updatedAt) > a.ttl {
			delete(a.pending, id)
			evicted = append(evicted, id)
			for _, t := range st.tasks {
				tasks = append(tasks, t)
			}
		}
	}
	a.mu.Unlock()
	for _, id := range evicted {
		a.log.WithField("donation_id", id).Warn("evicted stale incomplete donation")
	}
	if a.onEvict != nil {
		for _, t := range tasks {
			a.onEvict(t)
		}
	}
	return evicted
}

// StartEvictionLoop evicts stale donations on the given interval until
// the context is canceled. Returns immediately when eviction is off.
func (a *Aggregator) StartEvictionLoop(ctx context.Context, interval time.Duration) {
	if a.ttl <= 0 || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				a.EvictStale(now)
			}
		}
	}()
}
