package features

import (
	"github.com/siscx/voice-donation-app/internal/audio"
	"github.com/siscx/voice-donation-app/internal/types"
)

// Inter-pulse gaps longer than this count as voice breaks.
const maxVoicedPeriodSec = 0.02

// Phonation measures sustained-vowel endurance: how long the voice is
// actually phonating versus broken, over the whole recording.
func Phonation(w *audio.Waveform) types.FeatureSet {
	out := types.FeatureSet{
		"total_recording_duration": types.Scalar(0),
		"actual_phonation_time":    types.Scalar(0),
		"voice_breaks_duration":    types.Scalar(0),
		"voice_breaks_percentage":  types.Scalar(0),
		"number_of_pulses":         types.Scalar(0),
		"phonation_efficiency":     types.Scalar(0),
	}
	if w == nil || len(w.Samples) == 0 || w.SampleRate <= 0 {
		return out
	}

	totalDuration := w.Duration()
	track := trackPitch(w.Samples, w.SampleRate)
	pulses := extractPulses(w.Samples, w.SampleRate, track)

	var breaks float64
	for i := 1; i < len(pulses); i++ {
		period := float64(pulses[i]-pulses[i-1]) / float64(w.SampleRate)
		if period > maxVoicedPeriodSec {
			breaks += period
		}
	}
	if breaks > totalDuration {
		breaks = totalDuration
	}
	phonation := totalDuration - breaks

	out["total_recording_duration"] = types.Scalar(totalDuration)
	out["actual_phonation_time"] = types.Scalar(phonation)
	out["voice_breaks_duration"] = types.Scalar(breaks)
	out["number_of_pulses"] = types.Scalar(float64(len(pulses)))
	if totalDuration > 0 {
		out["voice_breaks_percentage"] = types.Scalar(breaks / totalDuration * 100)
		out["phonation_efficiency"] = types.Scalar(phonation / totalDuration * 100)
	}
	return out
}
