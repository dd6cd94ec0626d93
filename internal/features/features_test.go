package features

import (
	"math"
	"math/rand"
	"testing"

	"github.com/siscx/voice-donation-app/internal/audio"
	"github.com/siscx/voice-donation-app/internal/types"
)

func sine(rate int, freq float64, seconds float64, amp float64) *audio.Waveform {
	n := int(float64(rate) * seconds)
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return &audio.Waveform{Samples: samples, SampleRate: rate}
}

func scalar(t *testing.T, fs types.FeatureSet, name string) float64 {
	t.Helper()
	v, ok := fs[name]
	if !ok {
		t.Fatalf("feature %q missing", name)
	}
	if v.Vector != nil {
		t.Fatalf("feature %q is a vector", name)
	}
	return v.Scalar
}

func vector(t *testing.T, fs types.FeatureSet, name string, wantLen int) []float64 {
	t.Helper()
	v, ok := fs[name]
	if !ok {
		t.Fatalf("feature %q missing", name)
	}
	if v.Vector == nil {
		t.Fatalf("feature %q is not a vector", name)
	}
	if len(v.Vector) != wantLen {
		t.Fatalf("feature %q: expected %d components, got %d", name, wantLen, len(v.Vector))
	}
	return v.Vector
}

func TestSpectralOnPureTone(t *testing.T) {
	fs := Spectral(sine(44100, 440, 1.0, 0.6))

	vector(t, fs, "mfcc_mean", 13)
	vector(t, fs, "mfcc_std", 13)
	vector(t, fs, "chroma_mean", 12)
	vector(t, fs, "chroma_std", 12)
	vector(t, fs, "spectral_contrast_mean", 7)
	vector(t, fs, "spectral_contrast_std", 7)
	vector(t, fs, "tonnetz_mean", 6)
	vector(t, fs, "tonnetz_std", 6)
	vector(t, fs, "mel_spectrogram_mean", 40)

	centroid := scalar(t, fs, "spectral_centroid")
	if centroid < 300 || centroid > 700 {
		t.Fatalf("centroid of a 440Hz tone out of range: %v", centroid)
	}

	// A 440Hz sine crosses zero 880 times per second.
	zcr := scalar(t, fs, "zero_crossing_rate")
	want := 880.0 / 44100.0
	if math.Abs(zcr-want) > want/4 {
		t.Fatalf("zcr %v, want about %v", zcr, want)
	}

	if rms := scalar(t, fs, "rms_energy"); rms <= 0 || rms > 1 {
		t.Fatalf("rms energy out of range: %v", rms)
	}
	if tempo := scalar(t, fs, "tempo"); tempo < 30 || tempo > 300 {
		t.Fatalf("tempo out of range: %v", tempo)
	}

	for name, v := range fs {
		if !v.Valid() {
			t.Fatalf("feature %q not finite", name)
		}
	}
}

func TestSpectralEmptyWaveform(t *testing.T) {
	if fs := Spectral(nil); len(fs) != 0 {
		t.Fatalf("expected no features for nil waveform, got %d", len(fs))
	}
	if fs := Spectral(&audio.Waveform{SampleRate: 44100}); len(fs) != 0 {
		t.Fatalf("expected no features for empty waveform, got %d", len(fs))
	}
}

func TestAcousticPitchOfTone(t *testing.T) {
	fs := Acoustic(sine(44100, 220, 1.0, 0.6))

	pitch := scalar(t, fs, "mean_pitch")
	if math.Abs(pitch-220) > 10 {
		t.Fatalf("mean pitch of 220Hz tone: %v", pitch)
	}
	if lo := scalar(t, fs, "min_pitch"); lo < 150 || lo > 250 {
		t.Fatalf("min pitch implausible: %v", lo)
	}
	if rng := scalar(t, fs, "pitch_range"); rng < 0 || rng > 100 {
		t.Fatalf("pitch range of a steady tone too wide: %v", rng)
	}
	// A steady tone has low cycle-to-cycle perturbation.
	if j := scalar(t, fs, "jitter_local"); j < 0 || j > 0.1 {
		t.Fatalf("jitter of a steady tone: %v", j)
	}
	if hnr := scalar(t, fs, "hnr"); hnr <= 0 {
		t.Fatalf("expected positive hnr for a periodic tone, got %v", hnr)
	}
	for name, v := range fs {
		if !v.Valid() {
			t.Fatalf("feature %q not finite", name)
		}
	}
}

func TestAcousticSilenceReportsZeroPitch(t *testing.T) {
	w := &audio.Waveform{Samples: make([]float64, 44100), SampleRate: 44100}
	fs := Acoustic(w)
	if pitch := scalar(t, fs, "mean_pitch"); pitch != 0 {
		t.Fatalf("silence reported pitch %v", pitch)
	}
	if n := scalar(t, fs, "f1_mean"); n != 0 {
		t.Fatalf("silence reported formant %v", n)
	}
}

func TestSpeechActivityEnergyFallback(t *testing.T) {
	// 11025 Hz is not a rate the WebRTC detector accepts, so the energy
	// path must serve. Alternate loud tone bursts with near silence.
	rate := 11025
	rng := rand.New(rand.NewSource(7))
	samples := make([]float64, rate*2)
	for i := range samples {
		sec := float64(i) / float64(rate)
		if int(sec*2)%2 == 0 {
			samples[i] = 0.5 * math.Sin(2*math.Pi*200*sec)
		} else {
			samples[i] = 0.001 * rng.Float64()
		}
	}
	w := &audio.Waveform{Samples: samples, SampleRate: rate}

	fs := SpeechActivity(w, nil)
	ratio := scalar(t, fs, "speech_ratio")
	if ratio <= 0 || ratio > 1 {
		t.Fatalf("speech ratio out of range: %v", ratio)
	}
	if ratio < 0.1 {
		t.Fatalf("speech ratio below documented floor: %v", ratio)
	}
	if segs := scalar(t, fs, "num_speech_segments"); segs < 1 {
		t.Fatalf("expected at least one speech segment, got %v", segs)
	}
	pause := scalar(t, fs, "pause_ratio")
	if pause < 0 || pause > 1 {
		t.Fatalf("pause ratio out of range: %v", pause)
	}
}

func TestSpeechActivityDefaultsWhenUndetectable(t *testing.T) {
	fs := SpeechActivity(nil, nil)
	if got := scalar(t, fs, "speech_ratio"); got != 0.65 {
		t.Fatalf("default speech ratio: %v", got)
	}
	if got := scalar(t, fs, "pause_ratio"); got != 0.35 {
		t.Fatalf("default pause ratio: %v", got)
	}
	if got := scalar(t, fs, "speaking_rate"); got != 1.5 {
		t.Fatalf("default speaking rate: %v", got)
	}
	if got := scalar(t, fs, "num_speech_segments"); got != 8 {
		t.Fatalf("default segments: %v", got)
	}
	if got := scalar(t, fs, "avg_segment_length"); got != 5 {
		t.Fatalf("default segment length: %v", got)
	}
}

func TestPhonationOnSustainedTone(t *testing.T) {
	fs := Phonation(sine(44100, 220, 2.0, 0.6))

	total := scalar(t, fs, "total_recording_duration")
	if math.Abs(total-2.0) > 1e-9 {
		t.Fatalf("total duration: %v", total)
	}
	phonation := scalar(t, fs, "actual_phonation_time")
	if phonation <= 0 || phonation > total {
		t.Fatalf("phonation time out of range: %v", phonation)
	}
	if eff := scalar(t, fs, "phonation_efficiency"); eff <= 50 {
		t.Fatalf("sustained tone should phonate most of the time, efficiency %v", eff)
	}
	if pulses := scalar(t, fs, "number_of_pulses"); pulses < 100 {
		t.Fatalf("expected hundreds of pulses in 2s of 220Hz, got %v", pulses)
	}
}

func TestPhonationEmptyWaveform(t *testing.T) {
	fs := Phonation(nil)
	for _, name := range []string{
		"total_recording_duration", "actual_phonation_time",
		"voice_breaks_duration", "voice_breaks_percentage",
		"number_of_pulses", "phonation_efficiency",
	} {
		if got := scalar(t, fs, name); got != 0 {
			t.Fatalf("%s: expected 0, got %v", name, got)
		}
	}
}

func TestEngineRoutesByTaskType(t *testing.T) {
	e := NewEngine()
	w := sine(11025, 220, 1.0, 0.6)

	speech := e.Extract(w, "free_speech")
	if _, ok := speech["speech_ratio"]; !ok {
		t.Fatalf("speech task missing speech activity features")
	}
	if _, ok := speech["phonation_efficiency"]; ok {
		t.Fatalf("speech task must not carry phonation features")
	}

	phonation := e.Extract(w, TaskMaximumPhonationTime)
	if _, ok := phonation["phonation_efficiency"]; !ok {
		t.Fatalf("phonation task missing phonation features")
	}
	if _, ok := phonation["speech_ratio"]; ok {
		t.Fatalf("phonation task must not carry speech activity features")
	}

	// Both routes carry the always-on groups.
	for _, fs := range []types.FeatureSet{speech, phonation} {
		if _, ok := fs["mfcc_mean"]; !ok {
			t.Fatalf("spectral group missing")
		}
		if _, ok := fs["mean_pitch"]; !ok {
			t.Fatalf("acoustic group missing")
		}
	}
}
