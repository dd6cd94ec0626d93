package sink

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/siscx/voice-donation-app/internal/logger"
	"github.com/siscx/voice-donation-app/internal/types"
)

// RetrySink decorates another sink with exponential-backoff retries, so
// a flaky persistence backend does not fail the whole recording.
type RetrySink struct {
	inner      Sink
	maxElapsed time.Duration
	log        *logger.Logger
}

func NewRetrySink(inner Sink, maxElapsed time.Duration) *RetrySink {
	return &RetrySink{
		inner:      inner,
		maxElapsed: maxElapsed,
		log:        logger.NewComponent("sink"),
	}
}

func (s *RetrySink) retry(op string, recordingID string, f func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = s.maxElapsed
	attempt := 0
	wrapped := func() error {
		attempt++
		if err := f(); err != nil {
			s.log.WithField("recording_id", recordingID).
				WithField("attempt", attempt).
				WithError(err).Warnf("%s failed, will retry", op)
			return err
		}
		return nil
	}
	if err := backoff.Retry(wrapped, bo); err != nil {
		return fmt.Errorf("%s for %s: %w", op, recordingID, err)
	}
	return nil
}

func (s *RetrySink) RecordInitial(recordingID string, meta types.RecordingMetadata) error {
	return s.retry("record initial", recordingID, func() error {
		return s.inner.RecordInitial(recordingID, meta)
	})
}

func (s *RetrySink) RecordCompleted(recordingID string, record *types.DonationRecord) error {
	return s.retry("record completed", recordingID, func() error {
		return s.inner.RecordCompleted(recordingID, record)
	})
}

func (s *RetrySink) RecordFailed(recordingID string, reason string) error {
	return s.retry("record failed", recordingID, func() error {
		return s.inner.RecordFailed(recordingID, reason)
	})
}
