// Package assembler builds the persisted record for each processed
// recording from the pieces the pipeline produced.
package assembler

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/siscx/voice-donation-app/internal/types"
)

const (
	collectionVersion  = "2.0"
	processingPipeline = "dsp+vad"
)

// BuildMetadata derives the content-independent record fields from the
// submission: identity, an integrity hash of the raw payload, UTC
// timing decomposition, file info and task linkage.
func BuildMetadata(sub types.RecordingSubmission, converted bool) types.RecordingMetadata {
	hash := sha256.Sum256(sub.Audio)
	now := time.Now().UTC()
	return types.RecordingMetadata{
		RecordingID:          sub.RecordingID,
		DonationID:           sub.DonationID,
		AudioHash:            hex.EncodeToString(hash[:]),
		RecordedAtUTC:        now.Format(time.RFC3339Nano),
		RecordedAtTimestamp:  float64(now.UnixNano()) / 1e9,
		Year:                 now.Year(),
		Month:                int(now.Month()),
		Day:                  now.Day(),
		Hour:                 now.Hour(),
		DayOfWeek:            now.Weekday().String(),
		OriginalFilename:     sub.Filename,
		OriginalFormat:       strings.ToLower(filepath.Ext(sub.Filename)),
		FileSizeBytes:        len(sub.Audio),
		FileSizeMB:           math.Round(float64(len(sub.Audio))/(1024*1024)*1000) / 1000,
		CollectionVersion:    collectionVersion,
		ProcessingPipeline:   processingPipeline,
		ConversionApplied:    converted,
		TaskNumber:           sub.TaskNumber,
		TaskType:             sub.TaskType,
		TotalTasksInDonation: sub.ExpectedTasks,
		IsMultiTaskDonation:  sub.ExpectedTasks > 1,
		Request:              sub.Context,
	}
}

// Completeness is the percentage of features carrying a finite value.
func Completeness(fs types.FeatureSet) float64 {
	if len(fs) == 0 {
		return 0
	}
	valid := 0
	for _, v := range fs {
		if v.Valid() {
			valid++
		}
	}
	return float64(valid) / float64(len(fs)) * 100
}

// Assemble produces the completed result for one recording.
func Assemble(sub types.RecordingSubmission, q types.QualityMetrics, fs types.FeatureSet, converted bool) types.ProcessingResult {
	record := &types.DonationRecord{
		Metadata: BuildMetadata(sub, converted),
		Quality:  q,
		Features: fs,
		Summary: types.ProcessingSummary{
			TotalFeaturesExtracted: len(fs),
			ProcessingSuccessful:   true,
			DataCompleteness:       Completeness(fs),
			RecommendedForAnalysis: q.SignalQuality == types.QualityGood || q.SignalQuality == types.QualityExcellent,
			AudioFormatConverted:   converted,
			FinalSampleRate:        q.SampleRate,
			FinalDurationSeconds:   q.DurationSeconds,
		},
	}
	return types.ProcessingResult{
		RecordingID: sub.RecordingID,
		Status:      types.StatusCompleted,
		Record:      record,
	}
}

// AssembleFailure produces the failed result for one recording.
func AssembleFailure(sub types.RecordingSubmission, err error) types.ProcessingResult {
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	return types.ProcessingResult{
		RecordingID: sub.RecordingID,
		Status:      types.StatusFailed,
		Error:       reason,
	}
}
