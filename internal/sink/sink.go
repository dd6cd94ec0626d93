// Package sink defines the persistence boundary. Processing reports
// results to a Sink; what the sink does with them (database, export,
// forwarding) is its own business.
package sink

import (
	"sync"

	"github.com/siscx/voice-donation-app/internal/types"
)

// Sink receives the lifecycle of each recording: an initial row before
// processing starts, then exactly one completion or failure.
type Sink interface {
	RecordInitial(recordingID string, meta types.RecordingMetadata) error
	RecordCompleted(recordingID string, record *types.DonationRecord) error
	RecordFailed(recordingID string, reason string) error
}

// Entry is one recording's current persisted state.
type Entry struct {
	Meta   types.RecordingMetadata
	Record *types.DonationRecord
	Status types.ResultStatus
	Reason string
}

// MemorySink keeps records in memory, keyed by recording ID. Used as
// the default sink and in tests.
type MemorySink struct {
	mu      sync.Mutex
	entries map[string]*Entry
	order   []string
}

func NewMemorySink() *MemorySink {
	return &MemorySink{entries: make(map[string]*Entry)}
}

func (s *MemorySink) RecordInitial(recordingID string, meta types.RecordingMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[recordingID]; !ok {
		s.order = append(s.order, recordingID)
	}
	s.entries[recordingID] = &Entry{Meta: meta}
	return nil
}

func (s *MemorySink) RecordCompleted(recordingID string, record *types.DonationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[recordingID]
	if !ok {
		e = &Entry{}
		s.entries[recordingID] = e
		s.order = append(s.order, recordingID)
	}
	e.Record = record
	e.Status = types.StatusCompleted
	return nil
}

func (s *MemorySink) RecordFailed(recordingID string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[recordingID]
	if !ok {
		e = &Entry{}
		s.entries[recordingID] = e
		s.order = append(s.order, recordingID)
	}
	e.Status = types.StatusFailed
	e.Reason = reason
	return nil
}

// Get returns a copy of the entry for one recording.
func (s *MemorySink) Get(recordingID string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[recordingID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// CompletedRecords returns assembled records in arrival order, for
// export.
func (s *MemorySink) CompletedRecords() []types.DonationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.DonationRecord
	for _, id := range s.order {
		e := s.entries[id]
		if e.Status == types.StatusCompleted && e.Record != nil {
			out = append(out, *e.Record)
		}
	}
	return out
}

// Len reports how many recordings the sink has seen.
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
