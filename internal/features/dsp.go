package features

import "math"

// Analysis frame geometry shared by the spectral module.
const (
	fftSize = 2048
	hopSize = 512
	numMels = 40
)

func hannWindow(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// fft computes an in-place iterative radix-2 FFT. len(x) must be a power
// of two.
func fft(x []complex128) {
	n := len(x)
	if n <= 1 {
		return
	}
	// Bit-reversal permutation.
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}
	for length := 2; length <= n; length <<= 1 {
		ang := -2 * math.Pi / float64(length)
		wl := complex(math.Cos(ang), math.Sin(ang))
		for i := 0; i < n; i += length {
			w := complex(1, 0)
			for j := 0; j < length/2; j++ {
				u := x[i+j]
				v := x[i+j+length/2] * w
				x[i+j] = u + v
				x[i+j+length/2] = u - v
				w *= wl
			}
		}
	}
}

// magnitudeSpectrum returns |FFT| for the first n/2+1 bins of a windowed
// frame zero-padded to size n.
func magnitudeSpectrum(frame []float64, window []float64, n int) []float64 {
	buf := make([]complex128, n)
	for i := 0; i < len(frame) && i < n; i++ {
		w := 1.0
		if i < len(window) {
			w = window[i]
		}
		buf[i] = complex(frame[i]*w, 0)
	}
	fft(buf)
	out := make([]float64, n/2+1)
	for i := range out {
		out[i] = cmplxAbs(buf[i])
	}
	return out
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

// frameStarts yields the start offsets of full frames of frameLen with
// the given hop. Short signals produce a single zero-padded frame.
func frameStarts(total, frameLen, hop int) []int {
	if total <= 0 {
		return nil
	}
	if total < frameLen {
		return []int{0}
	}
	var starts []int
	for s := 0; s+frameLen <= total; s += hop {
		starts = append(starts, s)
	}
	return starts
}

func frameAt(samples []float64, start, frameLen int) []float64 {
	end := start + frameLen
	if end > len(samples) {
		end = len(samples)
	}
	return samples[start:end]
}

func hzToMel(f float64) float64 { return 2595 * math.Log10(1+f/700) }
func melToHz(m float64) float64 { return 700 * (math.Pow(10, m/2595) - 1) }

// melFilterbank builds nMels triangular filters over n/2+1 FFT bins.
func melFilterbank(nMels, fftLen, sampleRate int) [][]float64 {
	nBins := fftLen/2 + 1
	fMax := float64(sampleRate) / 2
	melPoints := make([]float64, nMels+2)
	melMax := hzToMel(fMax)
	for i := range melPoints {
		melPoints[i] = melToHz(melMax * float64(i) / float64(nMels+1))
	}
	binOf := func(f float64) float64 {
		return f * float64(fftLen) / float64(sampleRate)
	}
	filters := make([][]float64, nMels)
	for m := 0; m < nMels; m++ {
		filters[m] = make([]float64, nBins)
		lo, center, hi := binOf(melPoints[m]), binOf(melPoints[m+1]), binOf(melPoints[m+2])
		for b := 0; b < nBins; b++ {
			fb := float64(b)
			switch {
			case fb > lo && fb <= center && center > lo:
				filters[m][b] = (fb - lo) / (center - lo)
			case fb > center && fb < hi && hi > center:
				filters[m][b] = (hi - fb) / (hi - center)
			}
		}
	}
	return filters
}

// dct2 returns the first k DCT-II coefficients of x.
func dct2(x []float64, k int) []float64 {
	n := len(x)
	out := make([]float64, k)
	if n == 0 {
		return out
	}
	for c := 0; c < k; c++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += x[i] * math.Cos(math.Pi*float64(c)*(float64(i)+0.5)/float64(n))
		}
		out[c] = sum
	}
	return out
}

// autocorr computes the normalized autocorrelation of frame for lags
// 0..maxLag. Result[0] is 1 for non-silent frames.
func autocorr(frame []float64, maxLag int) []float64 {
	n := len(frame)
	if maxLag >= n {
		maxLag = n - 1
	}
	out := make([]float64, maxLag+1)
	if n == 0 {
		return out
	}
	var energy float64
	for _, v := range frame {
		energy += v * v
	}
	if energy == 0 {
		return out
	}
	for lag := 0; lag <= maxLag; lag++ {
		sum := 0.0
		for i := 0; i+lag < n; i++ {
			sum += frame[i] * frame[i+lag]
		}
		out[lag] = sum / energy
	}
	return out
}

// linResample converts samples between rates with linear interpolation.
func linResample(samples []float64, fromRate, toRate int) []float64 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(samples) == 0 {
		return samples
	}
	outLen := int(float64(len(samples)) * float64(toRate) / float64(fromRate))
	if outLen < 1 {
		outLen = 1
	}
	out := make([]float64, outLen)
	ratio := float64(fromRate) / float64(toRate)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = samples[j]*(1-frac) + samples[j+1]*frac
	}
	return out
}

func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range xs {
		sum += v
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, v := range xs {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}

func minMax(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	lo, hi := xs[0], xs[0]
	for _, v := range xs[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func frameRMS(frame []float64) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, v := range frame {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}
