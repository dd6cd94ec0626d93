package audio

// Waveform is a decoded single-channel signal. Samples are in [-1, 1].
// It lives only for the duration of one processing job; the pipeline
// drops the reference as soon as feature extraction finishes.
type Waveform struct {
	Samples    []float64
	SampleRate int

	// Converted reports that the ffmpeg strategy produced this waveform
	// rather than a direct WAV decode.
	Converted bool
}

// Duration returns the signal length in seconds.
func (w *Waveform) Duration() float64 {
	if w == nil || w.SampleRate <= 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}
