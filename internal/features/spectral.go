package features

import (
	"math"

	"github.com/siscx/voice-donation-app/internal/audio"
	"github.com/siscx/voice-donation-app/internal/types"
)

// Spectral extracts the spectral and rhythmic feature group: MFCCs,
// chroma, spectral contrast, tonnetz, centroid/bandwidth/rolloff, zero
// crossing rate, tempo, RMS energy and a mel-spectrogram summary. Each
// measurement degrades to zero on internal failure instead of aborting
// the group.
func Spectral(w *audio.Waveform) types.FeatureSet {
	out := types.FeatureSet{}
	if w == nil || len(w.Samples) == 0 || w.SampleRate <= 0 {
		return out
	}

	window := hannWindow(fftSize)
	starts := frameStarts(len(w.Samples), fftSize, hopSize)
	spectra := make([][]float64, len(starts))
	for i, s := range starts {
		spectra[i] = magnitudeSpectrum(frameAt(w.Samples, s, fftSize), window, fftSize)
	}
	if len(spectra) == 0 {
		return out
	}
	binHz := float64(w.SampleRate) / float64(fftSize)

	guardVec(out, "mfcc_mean", "mfcc_std", func() ([]float64, []float64) {
		return mfcc(spectra, w.SampleRate)
	})
	guardVec(out, "chroma_mean", "chroma_std", func() ([]float64, []float64) {
		return chroma(spectra, binHz)
	})
	guardVec(out, "spectral_contrast_mean", "spectral_contrast_std", func() ([]float64, []float64) {
		return spectralContrast(spectra, binHz, float64(w.SampleRate)/2)
	})
	guardVec(out, "tonnetz_mean", "tonnetz_std", func() ([]float64, []float64) {
		return tonnetz(spectra, binHz)
	})

	guard(out, "spectral_centroid", func() float64 {
		return meanOf(spectra, func(spec []float64) float64 { return centroid(spec, binHz) })
	})
	guard(out, "spectral_bandwidth", func() float64 {
		return meanOf(spectra, func(spec []float64) float64 { return bandwidth(spec, binHz) })
	})
	guard(out, "spectral_rolloff", func() float64 {
		return meanOf(spectra, func(spec []float64) float64 { return rolloff(spec, binHz, 0.85) })
	})
	guard(out, "zero_crossing_rate", func() float64 {
		return zeroCrossingRate(w.Samples)
	})
	guard(out, "rms_energy", func() float64 {
		vals := make([]float64, len(starts))
		for i, s := range starts {
			vals[i] = frameRMS(frameAt(w.Samples, s, fftSize))
		}
		m, _ := meanStd(vals)
		return m
	})

	melBands := melBandPower(spectra, w.SampleRate)
	guard(out, "tempo", func() float64 {
		return tempoEstimate(melBands, w.SampleRate)
	})
	guardVector(out, "mel_spectrogram_mean", func() []float64 {
		means := make([]float64, numMels)
		for b := 0; b < numMels; b++ {
			var sum float64
			for _, frame := range melBands {
				sum += frame[b]
			}
			means[b] = sum / float64(len(melBands))
		}
		return means
	})

	return out
}

func meanOf(spectra [][]float64, f func([]float64) float64) float64 {
	vals := make([]float64, len(spectra))
	for i, spec := range spectra {
		vals[i] = f(spec)
	}
	m, _ := meanStd(vals)
	return m
}

func centroid(spec []float64, binHz float64) float64 {
	var num, den float64
	for b, m := range spec {
		num += float64(b) * binHz * m
		den += m
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func bandwidth(spec []float64, binHz float64) float64 {
	c := centroid(spec, binHz)
	var num, den float64
	for b, m := range spec {
		d := float64(b)*binHz - c
		num += m * d * d
		den += m
	}
	if den == 0 {
		return 0
	}
	return math.Sqrt(num / den)
}

func rolloff(spec []float64, binHz, frac float64) float64 {
	var total float64
	for _, m := range spec {
		total += m
	}
	if total == 0 {
		return 0
	}
	var cum float64
	for b, m := range spec {
		cum += m
		if cum >= frac*total {
			return float64(b) * binHz
		}
	}
	return float64(len(spec)-1) * binHz
}

func zeroCrossingRate(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples))
}

// mfcc reduces the spectrogram to 13 cepstral coefficients, returning
// their per-coefficient mean and standard deviation over frames.
func mfcc(spectra [][]float64, sampleRate int) ([]float64, []float64) {
	const nCoeffs = 13
	filters := melFilterbank(numMels, fftSize, sampleRate)
	perFrame := make([][]float64, len(spectra))
	for i, spec := range spectra {
		logMel := make([]float64, numMels)
		for m, filt := range filters {
			var sum float64
			for b, g := range filt {
				if g > 0 && b < len(spec) {
					sum += g * spec[b] * spec[b]
				}
			}
			logMel[m] = math.Log(sum + 1e-10)
		}
		perFrame[i] = dct2(logMel, nCoeffs)
	}
	return reduceFrames(perFrame, nCoeffs)
}

// chroma folds spectrum magnitude into 12 pitch classes.
func chroma(spectra [][]float64, binHz float64) ([]float64, []float64) {
	perFrame := make([][]float64, len(spectra))
	for i, spec := range spectra {
		bins := make([]float64, 12)
		for b := 1; b < len(spec); b++ {
			f := float64(b) * binHz
			if f < 27.5 {
				continue
			}
			midi := 69 + 12*math.Log2(f/440)
			pc := ((int(math.Round(midi)) % 12) + 12) % 12
			bins[pc] += spec[b]
		}
		// Scale to the frame maximum so loudness does not dominate.
		_, peak := minMax(bins)
		if peak > 0 {
			for j := range bins {
				bins[j] /= peak
			}
		}
		perFrame[i] = bins
	}
	return reduceFrames(perFrame, 12)
}

// spectralContrast computes peak-valley contrast in seven octave bands.
func spectralContrast(spectra [][]float64, binHz, fMax float64) ([]float64, []float64) {
	edges := []float64{0, 200, 400, 800, 1600, 3200, 6400, fMax}
	const nBands = 7
	perFrame := make([][]float64, len(spectra))
	for i, spec := range spectra {
		vals := make([]float64, nBands)
		for band := 0; band < nBands; band++ {
			lo, hi := edges[band], edges[band+1]
			if hi > fMax {
				hi = fMax
			}
			var bandVals []float64
			for b, m := range spec {
				f := float64(b) * binHz
				if f >= lo && f < hi {
					bandVals = append(bandVals, m)
				}
			}
			if len(bandVals) == 0 {
				continue
			}
			sortFloats(bandVals)
			q := len(bandVals) / 50
			if q < 1 {
				q = 1
			}
			var valley, peak float64
			for k := 0; k < q; k++ {
				valley += bandVals[k]
				peak += bandVals[len(bandVals)-1-k]
			}
			valley /= float64(q)
			peak /= float64(q)
			vals[band] = math.Log(peak+1e-10) - math.Log(valley+1e-10)
		}
		perFrame[i] = vals
	}
	return reduceFrames(perFrame, nBands)
}

// tonnetz projects per-frame chroma onto the six tonal centroid
// dimensions (fifths, minor thirds, major thirds as sin/cos pairs).
func tonnetz(spectra [][]float64, binHz float64) ([]float64, []float64) {
	perFrame := make([][]float64, len(spectra))
	for i, spec := range spectra {
		bins := make([]float64, 12)
		for b := 1; b < len(spec); b++ {
			f := float64(b) * binHz
			if f < 27.5 {
				continue
			}
			midi := 69 + 12*math.Log2(f/440)
			pc := ((int(math.Round(midi)) % 12) + 12) % 12
			bins[pc] += spec[b]
		}
		var norm float64
		for _, v := range bins {
			norm += v
		}
		t := make([]float64, 6)
		if norm > 0 {
			for j, v := range bins {
				c := v / norm
				jf := float64(j)
				t[0] += c * math.Sin(jf*7*math.Pi/6)
				t[1] += c * math.Cos(jf*7*math.Pi/6)
				t[2] += c * math.Sin(jf*3*math.Pi/2)
				t[3] += c * math.Cos(jf*3*math.Pi/2)
				t[4] += c * 0.5 * math.Sin(jf*2*math.Pi/3)
				t[5] += c * 0.5 * math.Cos(jf*2*math.Pi/3)
			}
		}
		perFrame[i] = t
	}
	return reduceFrames(perFrame, 6)
}

// melBandPower returns the log-mel power per frame, used by the tempo
// estimator and the mel summary.
func melBandPower(spectra [][]float64, sampleRate int) [][]float64 {
	filters := melFilterbank(numMels, fftSize, sampleRate)
	out := make([][]float64, len(spectra))
	for i, spec := range spectra {
		bands := make([]float64, numMels)
		for m, filt := range filters {
			var sum float64
			for b, g := range filt {
				if g > 0 && b < len(spec) {
					sum += g * spec[b] * spec[b]
				}
			}
			bands[m] = sum
		}
		out[i] = bands
	}
	return out
}

// tempoEstimate autocorrelates the onset-strength envelope and picks the
// strongest lag in the 30-300 BPM range. Degenerate envelopes report a
// neutral 120 BPM.
func tempoEstimate(melBands [][]float64, sampleRate int) float64 {
	if len(melBands) < 4 {
		return 120
	}
	env := make([]float64, len(melBands)-1)
	for t := 1; t < len(melBands); t++ {
		var sum float64
		for b := range melBands[t] {
			d := math.Log(melBands[t][b]+1e-10) - math.Log(melBands[t-1][b]+1e-10)
			if d > 0 {
				sum += d
			}
		}
		env[t-1] = sum
	}
	m, s := meanStd(env)
	if s == 0 {
		return 120
	}
	for i := range env {
		env[i] -= m
	}
	acf := autocorr(env, len(env)-1)
	frameRate := float64(sampleRate) / float64(hopSize)
	bestBPM, bestVal := 120.0, math.Inf(-1)
	for bpm := 30.0; bpm <= 300.0; bpm++ {
		lag := int(math.Round(60 / bpm * frameRate))
		if lag <= 0 || lag >= len(acf) {
			continue
		}
		if acf[lag] > bestVal {
			bestVal = acf[lag]
			bestBPM = bpm
		}
	}
	return bestBPM
}

func reduceFrames(perFrame [][]float64, dim int) ([]float64, []float64) {
	means := make([]float64, dim)
	stds := make([]float64, dim)
	if len(perFrame) == 0 {
		return means, stds
	}
	col := make([]float64, len(perFrame))
	for d := 0; d < dim; d++ {
		for i, frame := range perFrame {
			if d < len(frame) {
				col[i] = frame[d]
			} else {
				col[i] = 0
			}
		}
		means[d], stds[d] = meanStd(col)
	}
	return means, stds
}

func sortFloats(xs []float64) {
	// Insertion sort; band slices are small.
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j] < xs[j-1]; j-- {
			xs[j], xs[j-1] = xs[j-1], xs[j]
		}
	}
}
