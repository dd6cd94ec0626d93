// Package pipeline runs complete donations: a bounded-concurrency
// scheduler admits batches, and a processor turns each recording into a
// persisted result.
package pipeline

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/siscx/voice-donation-app/internal/logger"
	"github.com/siscx/voice-donation-app/internal/sink"
	"github.com/siscx/voice-donation-app/internal/types"
)

// TaskProcessor turns one submission into a result.
type TaskProcessor interface {
	Process(sub types.RecordingSubmission) types.ProcessingResult
}

// Scheduler runs donation batches with at most maxConcurrent batches in
// flight. Tasks within a batch always run sequentially.
type Scheduler struct {
	permits      chan struct{}
	proc         TaskProcessor
	sink         sink.Sink
	startupDelay time.Duration
	metaFor      func(types.RecordingSubmission) types.RecordingMetadata
	log          *logger.Logger
	wg           sync.WaitGroup
}

// NewScheduler builds a scheduler. metaFor derives the initial metadata
// row recorded before a task is processed.
func NewScheduler(proc TaskProcessor, s sink.Sink, maxConcurrent int, startupDelay time.Duration,
	metaFor func(types.RecordingSubmission) types.RecordingMetadata) *Scheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Scheduler{
		permits:      make(chan struct{}, maxConcurrent),
		proc:         proc,
		sink:         s,
		startupDelay: startupDelay,
		metaFor:      metaFor,
		log:          logger.NewComponent("scheduler"),
	}
}

// RunBatch schedules a donation's tasks and returns immediately.
func (s *Scheduler) RunBatch(donationID string, tasks []types.RecordingSubmission) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.processBatch(donationID, tasks)
	}()
}

// Wait blocks until every scheduled batch has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) processBatch(donationID string, tasks []types.RecordingSubmission) {
	log := s.log.WithField("donation_id", donationID).WithField("tasks", len(tasks))

	// Give the upload path a moment to settle before heavy work starts.
	if s.startupDelay > 0 {
		time.Sleep(s.startupDelay)
	}

	s.permits <- struct{}{}
	defer func() { <-s.permits }()

	start := time.Now()
	log.Info("processing donation")
	completed := 0
	for i, task := range tasks {
		if s.runTask(task) {
			completed++
		}
		// Release waveform memory before the next task starts.
		if i < len(tasks)-1 {
			runtime.GC()
		}
	}
	log.WithField("completed", completed).
		WithField("failed", len(tasks)-completed).
		WithField("elapsed", time.Since(start).Round(time.Millisecond).String()).
		Info("donation finished")
}

// runTask processes one recording and reports its outcome to the sink.
// A panic in processing fails the task without taking down the batch.
func (s *Scheduler) runTask(task types.RecordingSubmission) (ok bool) {
	log := s.log.WithField("recording_id", task.RecordingID).
		WithField("task_number", task.TaskNumber)

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", fmt.Sprintf("%v", r)).Error("task processing panicked")
			if err := s.sink.RecordFailed(task.RecordingID, fmt.Sprintf("processing panicked: %v", r)); err != nil {
				log.WithError(err).Error("could not record failure")
			}
			ok = false
		}
	}()

	if s.metaFor != nil {
		if err := s.sink.RecordInitial(task.RecordingID, s.metaFor(task)); err != nil {
			log.WithError(err).Error("could not record initial row")
			return false
		}
	}

	result := s.proc.Process(task)
	switch result.Status {
	case types.StatusCompleted:
		if err := s.sink.RecordCompleted(task.RecordingID, result.Record); err != nil {
			log.WithError(err).Error("could not record completion")
			return false
		}
		log.Info("task completed")
		return true
	default:
		if err := s.sink.RecordFailed(task.RecordingID, result.Error); err != nil {
			log.WithError(err).Error("could not record failure")
		}
		log.WithField("reason", result.Error).Warn("task failed")
		return false
	}
}
