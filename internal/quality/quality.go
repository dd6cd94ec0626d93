// Package quality grades recordings so downstream consumers can filter
// out unusable donations without re-reading the audio.
package quality

import (
	"math"

	"github.com/siscx/voice-donation-app/internal/audio"
	"github.com/siscx/voice-donation-app/internal/types"
)

const (
	minDurationSec  = 1.0
	maxDurationSec  = 300.0
	minSampleRate   = 8000
	highSampleRate  = 44100
	clipThreshold   = 0.99
	silenceAmp      = 0.01
	maxSilenceRatio = 0.5
)

// Assess computes the quality metrics for a normalized waveform and
// assigns the overall grade. Excellent requires a valid duration, a
// high sample rate, no clipping and under half silence; good relaxes
// the rate to anything speech-usable; everything else is poor.
func Assess(w *audio.Waveform) types.QualityMetrics {
	m := types.QualityMetrics{SignalQuality: types.QualityPoor}
	if w == nil || len(w.Samples) == 0 || w.SampleRate <= 0 {
		return m
	}

	m.DurationSeconds = w.Duration()
	m.SampleRate = w.SampleRate
	m.TotalSamples = len(w.Samples)
	m.IsValidDuration = m.DurationSeconds >= minDurationSec && m.DurationSeconds <= maxDurationSec
	m.IsValidSampleRate = w.SampleRate >= minSampleRate
	m.IsHighQualitySampleRate = w.SampleRate >= highSampleRate

	var sumSq float64
	silent := 0
	hi, lo := math.Inf(-1), math.Inf(1)
	for _, s := range w.Samples {
		a := math.Abs(s)
		sumSq += s * s
		if a >= clipThreshold {
			m.IsClipped = true
		}
		if a < silenceAmp {
			silent++
		}
		if s > hi {
			hi = s
		}
		if s < lo {
			lo = s
		}
	}
	rms := math.Sqrt(sumSq / float64(len(w.Samples)))
	m.RMSEnergy = rms
	if rms > 0 {
		m.AudioLevelDB = 20 * math.Log10(rms)
	} else {
		m.AudioLevelDB = -60
	}
	m.SilenceRatio = float64(silent) / float64(len(w.Samples))
	// Signed peak-to-peak span, not the spread of magnitudes.
	m.DynamicRange = hi - lo

	switch {
	case m.IsValidDuration && m.IsHighQualitySampleRate && !m.IsClipped && m.SilenceRatio < maxSilenceRatio:
		m.SignalQuality = types.QualityExcellent
	case m.IsValidDuration && m.IsValidSampleRate && !m.IsClipped:
		m.SignalQuality = types.QualityGood
	default:
		m.SignalQuality = types.QualityPoor
	}
	return m
}
