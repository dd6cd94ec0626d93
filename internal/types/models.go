package types

import (
	"encoding/json"
	"math"
	"time"
)

// RequestContext carries caller metadata captured at submission time. The
// web layer fills whatever it knows; everything is optional.
type RequestContext struct {
	RemoteAddr string `json:"remote_addr,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	Method     string `json:"method,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
}

// RecordingSubmission is one task's raw payload awaiting processing. It is
// owned by the aggregator until the donation becomes ready, then handed to
// the scheduler as part of an ordered batch.
type RecordingSubmission struct {
	RecordingID   string         `json:"recording_id"`
	DonationID    string         `json:"donation_id"`
	TaskNumber    int            `json:"task_number"`
	TaskType      string         `json:"task_type"`
	ExpectedTasks int            `json:"expected_tasks"`
	Audio         []byte         `json:"-"`
	Filename      string         `json:"filename"`
	Context       RequestContext `json:"request_context"`
	SubmittedAt   time.Time      `json:"submitted_at"`
}

// FeatureValue holds either a scalar or a short fixed-length vector. A
// non-nil Vector means the value is vector-valued and Scalar is ignored.
type FeatureValue struct {
	Scalar float64
	Vector []float64
}

// Scalar wraps a single numeric measurement.
func Scalar(v float64) FeatureValue { return FeatureValue{Scalar: v} }

// Vector wraps a fixed-length numeric measurement.
func Vector(v []float64) FeatureValue { return FeatureValue{Vector: v} }

// Valid reports whether the value contains only finite numbers. Vector
// values must be non-empty and fully finite.
func (v FeatureValue) Valid() bool {
	if v.Vector != nil {
		if len(v.Vector) == 0 {
			return false
		}
		for _, x := range v.Vector {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return false
			}
		}
		return true
	}
	return !math.IsNaN(v.Scalar) && !math.IsInf(v.Scalar, 0)
}

// MarshalJSON encodes scalars as numbers and vectors as arrays. NaN and
// infinities become null so records stay serializable.
func (v FeatureValue) MarshalJSON() ([]byte, error) {
	if v.Vector != nil {
		out := make([]any, len(v.Vector))
		for i, x := range v.Vector {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				out[i] = nil
			} else {
				out[i] = x
			}
		}
		return json.Marshal(out)
	}
	if math.IsNaN(v.Scalar) || math.IsInf(v.Scalar, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v.Scalar)
}

// FeatureSet maps feature names to extracted values. Immutable once the
// assembler has built a record from it.
type FeatureSet map[string]FeatureValue

// Signal quality grades, from best to worst.
const (
	QualityExcellent = "excellent"
	QualityGood      = "good"
	QualityPoor      = "poor"
)

// QualityMetrics is the deterministic quality assessment of one waveform.
type QualityMetrics struct {
	DurationSeconds         float64 `json:"duration_seconds"`
	SampleRate              int     `json:"sample_rate"`
	TotalSamples            int     `json:"total_samples"`
	IsValidDuration         bool    `json:"is_valid_duration"`
	IsValidSampleRate       bool    `json:"is_valid_sample_rate"`
	IsHighQualitySampleRate bool    `json:"is_high_quality_sample_rate"`
	AudioLevelDB            float64 `json:"audio_level_db"`
	IsClipped               bool    `json:"is_clipped"`
	SilenceRatio            float64 `json:"silence_ratio"`
	DynamicRange            float64 `json:"dynamic_range"`
	RMSEnergy               float64 `json:"rms_energy"`
	SignalQuality           string  `json:"signal_quality"`
}

// RecordingMetadata describes one recording independent of its audio
// content: identity, timing, file info and task linkage.
type RecordingMetadata struct {
	RecordingID          string         `json:"recording_id"`
	DonationID           string         `json:"donation_id"`
	AudioHash            string         `json:"audio_hash"`
	RecordedAtUTC        string         `json:"recorded_at_utc"`
	RecordedAtTimestamp  float64        `json:"recorded_at_timestamp"`
	Year                 int            `json:"year"`
	Month                int            `json:"month"`
	Day                  int            `json:"day"`
	Hour                 int            `json:"hour"`
	DayOfWeek            string         `json:"day_of_week"`
	OriginalFilename     string         `json:"original_filename"`
	OriginalFormat       string         `json:"original_format"`
	FileSizeBytes        int            `json:"file_size_bytes"`
	FileSizeMB           float64        `json:"file_size_mb"`
	CollectionVersion    string         `json:"collection_version"`
	ProcessingPipeline   string         `json:"processing_pipeline"`
	ConversionApplied    bool           `json:"conversion_applied"`
	TaskNumber           int            `json:"task_number"`
	TaskType             string         `json:"task_type"`
	TotalTasksInDonation int            `json:"total_tasks_in_donation"`
	IsMultiTaskDonation  bool           `json:"is_multi_task_donation"`
	Request              RequestContext `json:"request_info"`
}

// ProcessingSummary is the per-record roll-up attached to completed
// donations.
type ProcessingSummary struct {
	TotalFeaturesExtracted int     `json:"total_features_extracted"`
	ProcessingSuccessful   bool    `json:"processing_successful"`
	DataCompleteness       float64 `json:"data_completeness"`
	RecommendedForAnalysis bool    `json:"recommended_for_analysis"`
	AudioFormatConverted   bool    `json:"audio_format_converted"`
	FinalSampleRate        int     `json:"final_sample_rate"`
	FinalDurationSeconds   float64 `json:"final_duration_seconds"`
}

// DonationRecord is the assembled output for one successfully processed
// recording.
type DonationRecord struct {
	Metadata RecordingMetadata `json:"metadata"`
	Quality  QualityMetrics    `json:"quality_metrics"`
	Features FeatureSet        `json:"audio_features"`
	Summary  ProcessingSummary `json:"summary"`
}

// ResultStatus is the externally visible outcome of one recording.
type ResultStatus string

const (
	StatusCompleted ResultStatus = "completed"
	StatusFailed    ResultStatus = "failed"
)

// ProcessingResult is the only entity that crosses the boundary to the
// persistence collaborator.
type ProcessingResult struct {
	RecordingID string          `json:"recording_id"`
	Status      ResultStatus    `json:"status"`
	Record      *DonationRecord `json:"record,omitempty"`
	Error       string          `json:"error,omitempty"`
}
