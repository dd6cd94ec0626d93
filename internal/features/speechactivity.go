package features

import (
	"encoding/binary"
	"math"

	"github.com/siscx/voice-donation-app/internal/audio"
	"github.com/siscx/voice-donation-app/internal/logger"
	"github.com/siscx/voice-donation-app/internal/types"
)

// SpeechActivity measures how much of the recording is speech, in three
// tiers: WebRTC VAD when the sample rate is compatible, an adaptive
// energy threshold otherwise, and fixed defaults when both fail.
func SpeechActivity(w *audio.Waveform, log *logger.Logger) types.FeatureSet {
	if w != nil && len(w.Samples) > 0 {
		if fs, ok := webrtcActivity(w); ok {
			return fs
		}
		if log != nil {
			log.Debug("webrtc vad not applicable, using energy detection")
		}
		if fs, ok := energyActivity(w); ok {
			return fs
		}
	}
	if log != nil {
		log.Warn("speech activity detection failed, using default estimates")
	}
	return types.FeatureSet{
		"speech_ratio":        types.Scalar(0.65),
		"pause_ratio":         types.Scalar(0.35),
		"speaking_rate":       types.Scalar(1.5),
		"num_speech_segments": types.Scalar(8),
		"avg_segment_length":  types.Scalar(5),
	}
}

var vadRates = map[int]bool{8000: true, 16000: true, 32000: true, 48000: true}

// webrtcActivity classifies 30ms frames with the WebRTC detector. Only
// the rates the detector supports are attempted.
func webrtcActivity(w *audio.Waveform) (types.FeatureSet, bool) {
	if !vadRates[w.SampleRate] {
		return nil, false
	}
	vad, err := newVAD()
	if err != nil {
		return nil, false
	}

	frameSamples := w.SampleRate * 30 / 1000
	frame := make([]byte, frameSamples*2)
	voiced, total := 0, 0
	var segments []int
	segStart := -1
	for start := 0; start+frameSamples <= len(w.Samples); start += frameSamples {
		for i := 0; i < frameSamples; i++ {
			v := w.Samples[start+i]
			if v > 1 {
				v = 1
			} else if v < -1 {
				v = -1
			}
			binary.LittleEndian.PutUint16(frame[i*2:], uint16(int16(v*32767)))
		}
		isSpeech, err := vad.Process(w.SampleRate, frame)
		if err != nil {
			total++
			continue
		}
		if isSpeech {
			voiced++
			if segStart < 0 {
				segStart = total
			}
		} else if segStart >= 0 {
			segments = append(segments, total-segStart)
			segStart = -1
		}
		total++
	}
	if segStart >= 0 {
		segments = append(segments, total-segStart)
	}
	if total == 0 || voiced == 0 {
		return nil, false
	}

	ratio := float64(voiced) / float64(total)
	duration := float64(total) * 0.030
	var avgSeg float64
	if len(segments) > 0 {
		var sum int
		for _, s := range segments {
			sum += s
		}
		avgSeg = float64(sum) / float64(len(segments))
	}
	return types.FeatureSet{
		"speech_ratio":        types.Scalar(ratio),
		"pause_ratio":         types.Scalar(1 - ratio),
		"speaking_rate":       types.Scalar(float64(len(segments)) / duration),
		"num_speech_segments": types.Scalar(float64(len(segments))),
		"avg_segment_length":  types.Scalar(avgSeg),
	}, true
}

// energyActivity thresholds frame RMS at mean + 0.5*std over 25ms
// frames with a 10ms hop. The reported speech ratio is floored at 0.1.
func energyActivity(w *audio.Waveform) (types.FeatureSet, bool) {
	frameLen := w.SampleRate * 25 / 1000
	hop := w.SampleRate * 10 / 1000
	if frameLen < 1 || hop < 1 || len(w.Samples) < frameLen {
		return nil, false
	}
	var rms []float64
	for start := 0; start+frameLen <= len(w.Samples); start += hop {
		rms = append(rms, frameRMS(w.Samples[start:start+frameLen]))
	}
	m, s := meanStd(rms)
	threshold := m + 0.5*s

	speechCount := 0
	var segments []int
	segStart := -1
	for i, v := range rms {
		if v > threshold {
			speechCount++
			if segStart < 0 {
				segStart = i
			}
		} else if segStart >= 0 {
			segments = append(segments, i-segStart)
			segStart = -1
		}
	}
	if segStart >= 0 {
		segments = append(segments, len(rms)-segStart)
	}

	ratio := float64(speechCount) / float64(len(rms))
	frameTime := float64(hop) / float64(w.SampleRate)
	duration := float64(len(rms)) * frameTime
	var avgSeg float64
	if len(segments) > 0 {
		var sum int
		for _, s := range segments {
			sum += s
		}
		avgSeg = float64(sum) / float64(len(segments)) * frameTime
	}
	return types.FeatureSet{
		"speech_ratio":        types.Scalar(math.Max(0.1, ratio)),
		"pause_ratio":         types.Scalar(1 - ratio),
		"speaking_rate":       types.Scalar(float64(len(segments)) / duration),
		"num_speech_segments": types.Scalar(float64(len(segments))),
		"avg_segment_length":  types.Scalar(avgSeg),
	}, true
}
