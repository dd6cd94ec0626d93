package features

import (
	"math"

	"github.com/siscx/voice-donation-app/internal/audio"
	"github.com/siscx/voice-donation-app/internal/types"
)

const (
	pitchFloorHz   = 75
	pitchCeilingHz = 500
	voicedMinACF   = 0.3
)

// Acoustic extracts the voice-quality feature group: pitch statistics
// over voiced frames, frame intensity statistics, jitter and shimmer
// perturbation measures, harmonics-to-noise ratio and the first three
// formant means. Sub-measurements that fail report 0.
func Acoustic(w *audio.Waveform) types.FeatureSet {
	out := types.FeatureSet{}
	if w == nil || len(w.Samples) == 0 || w.SampleRate <= 0 {
		return out
	}

	track := trackPitch(w.Samples, w.SampleRate)

	var voiced []float64
	var acfVoiced []float64
	for _, fr := range track {
		if fr.voiced {
			voiced = append(voiced, fr.pitchHz)
			acfVoiced = append(acfVoiced, fr.acfPeak)
		}
	}

	guard(out, "mean_pitch", func() float64 { m, _ := meanStd(voiced); return m })
	guard(out, "std_pitch", func() float64 { _, s := meanStd(voiced); return s })
	guard(out, "min_pitch", func() float64 { lo, _ := minMax(voiced); return lo })
	guard(out, "max_pitch", func() float64 { _, hi := minMax(voiced); return hi })
	guard(out, "pitch_range", func() float64 { lo, hi := minMax(voiced); return hi - lo })

	levels := intensityTrack(w.Samples, w.SampleRate)
	guard(out, "mean_intensity", func() float64 { m, _ := meanStd(levels); return m })
	guard(out, "std_intensity", func() float64 { _, s := meanStd(levels); return s })
	guard(out, "min_intensity", func() float64 { lo, _ := minMax(levels); return lo })
	guard(out, "max_intensity", func() float64 { _, hi := minMax(levels); return hi })

	pulses := extractPulses(w.Samples, w.SampleRate, track)
	periods := pulsePeriods(pulses, w.SampleRate)
	guard(out, "jitter_local", func() float64 { return jitterLocal(periods) })
	guard(out, "jitter_rap", func() float64 { return jitterAveraged(periods, 3) })
	guard(out, "jitter_ppq5", func() float64 { return jitterAveraged(periods, 5) })

	amps := pulseAmplitudes(w.Samples, pulses)
	guard(out, "shimmer_local", func() float64 { return shimmerLocal(amps) })
	guard(out, "shimmer_apq3", func() float64 { return shimmerAveraged(amps, 3) })
	guard(out, "shimmer_apq5", func() float64 { return shimmerAveraged(amps, 5) })

	guard(out, "hnr", func() float64 { return harmonicity(acfVoiced) })

	f1, f2, f3 := formantMeans(w.Samples, w.SampleRate, track)
	guard(out, "f1_mean", func() float64 { return f1 })
	guard(out, "f2_mean", func() float64 { return f2 })
	guard(out, "f3_mean", func() float64 { return f3 })

	return out
}

type pitchFrame struct {
	start   int
	pitchHz float64
	acfPeak float64
	voiced  bool
}

// trackPitch estimates frame pitch by normalized autocorrelation over
// 40ms frames with a 10ms hop. A frame is voiced when the strongest
// peak in the 75-500 Hz lag range exceeds the voicing threshold.
func trackPitch(samples []float64, sampleRate int) []pitchFrame {
	frameLen := sampleRate * 40 / 1000
	hop := sampleRate * 10 / 1000
	if frameLen < 2 || hop < 1 || len(samples) < frameLen {
		return nil
	}
	minLag := sampleRate / pitchCeilingHz
	maxLag := sampleRate / pitchFloorHz
	if minLag < 2 {
		minLag = 2
	}
	if maxLag >= frameLen {
		maxLag = frameLen - 1
	}

	var track []pitchFrame
	for start := 0; start+frameLen <= len(samples); start += hop {
		frame := samples[start : start+frameLen]
		acf := autocorr(frame, maxLag)
		bestLag, bestVal := 0, 0.0
		for lag := minLag; lag <= maxLag && lag < len(acf); lag++ {
			if acf[lag] > bestVal {
				bestVal = acf[lag]
				bestLag = lag
			}
		}
		fr := pitchFrame{start: start, acfPeak: bestVal}
		if bestLag > 0 && bestVal > voicedMinACF {
			fr.voiced = true
			fr.pitchHz = float64(sampleRate) / float64(bestLag)
		}
		track = append(track, fr)
	}
	return track
}

// intensityTrack returns per-frame level in dB relative to full scale,
// silent frames excluded.
func intensityTrack(samples []float64, sampleRate int) []float64 {
	frameLen := sampleRate * 40 / 1000
	hop := sampleRate * 10 / 1000
	if frameLen < 1 || hop < 1 {
		return nil
	}
	var levels []float64
	for start := 0; start+frameLen <= len(samples); start += hop {
		rms := frameRMS(samples[start : start+frameLen])
		if rms > 1e-6 {
			levels = append(levels, 20*math.Log10(rms)+96)
		}
	}
	return levels
}

// extractPulses locates one glottal pulse per pitch period in the voiced
// regions: within each voiced frame the absolute peak nearest the
// previous pulse plus one period is taken. Returned as sample indices.
func extractPulses(samples []float64, sampleRate int, track []pitchFrame) []int {
	var pulses []int
	last := -1
	for _, fr := range track {
		if !fr.voiced || fr.pitchHz <= 0 {
			last = -1
			continue
		}
		period := int(float64(sampleRate) / fr.pitchHz)
		if period < 2 {
			continue
		}
		end := fr.start + sampleRate*40/1000
		if end > len(samples) {
			end = len(samples)
		}
		pos := fr.start
		if last >= 0 && last+period > fr.start {
			pos = last + period
		}
		for pos < end {
			lo := pos - period/4
			hi := pos + period/4
			if lo < 0 {
				lo = 0
			}
			if hi > len(samples) {
				hi = len(samples)
			}
			best, bestVal := -1, 0.0
			for i := lo; i < hi; i++ {
				if v := math.Abs(samples[i]); v > bestVal {
					bestVal = v
					best = i
				}
			}
			if best < 0 {
				break
			}
			if len(pulses) == 0 || best > pulses[len(pulses)-1] {
				pulses = append(pulses, best)
			}
			last = best
			pos = best + period
		}
	}
	return pulses
}

// pulsePeriods converts pulse positions to inter-pulse periods in
// seconds, discarding implausible gaps outside the pitch range.
func pulsePeriods(pulses []int, sampleRate int) []float64 {
	var periods []float64
	minP := 1.0 / pitchCeilingHz
	maxP := 1.0 / pitchFloorHz
	for i := 1; i < len(pulses); i++ {
		p := float64(pulses[i]-pulses[i-1]) / float64(sampleRate)
		if p >= minP && p <= maxP {
			periods = append(periods, p)
		}
	}
	return periods
}

// jitterLocal is the mean absolute difference between consecutive
// periods divided by the mean period.
func jitterLocal(periods []float64) float64 {
	if len(periods) < 2 {
		return 0
	}
	var diff float64
	for i := 1; i < len(periods); i++ {
		diff += math.Abs(periods[i] - periods[i-1])
	}
	diff /= float64(len(periods) - 1)
	m, _ := meanStd(periods)
	if m == 0 {
		return 0
	}
	return diff / m
}

// jitterAveraged is the RAP/PPQ family: deviation of each period from
// the running average of its k-neighborhood, relative to the mean.
func jitterAveraged(periods []float64, k int) float64 {
	if len(periods) < k {
		return 0
	}
	half := k / 2
	var sum float64
	n := 0
	for i := half; i < len(periods)-half; i++ {
		var avg float64
		for j := i - half; j <= i+half; j++ {
			avg += periods[j]
		}
		avg /= float64(k)
		sum += math.Abs(periods[i] - avg)
		n++
	}
	if n == 0 {
		return 0
	}
	m, _ := meanStd(periods)
	if m == 0 {
		return 0
	}
	return (sum / float64(n)) / m
}

func pulseAmplitudes(samples []float64, pulses []int) []float64 {
	amps := make([]float64, 0, len(pulses))
	for _, p := range pulses {
		if p >= 0 && p < len(samples) {
			amps = append(amps, math.Abs(samples[p]))
		}
	}
	return amps
}

func shimmerLocal(amps []float64) float64 {
	return jitterLocal(amps)
}

func shimmerAveraged(amps []float64, k int) float64 {
	return jitterAveraged(amps, k)
}

// harmonicity converts voiced-frame autocorrelation peaks r into
// 10*log10(r/(1-r)) and averages them, the standard HNR estimate.
func harmonicity(acfPeaks []float64) float64 {
	if len(acfPeaks) == 0 {
		return 0
	}
	var sum float64
	n := 0
	for _, r := range acfPeaks {
		if r <= 0 || r >= 1 {
			continue
		}
		sum += 10 * math.Log10(r/(1-r))
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// formantMeans estimates F1-F3 from the LPC spectral envelope of voiced
// frames. The signal is downsampled to 10 kHz so five formants fit the
// analysis band, then envelope peaks are picked on a frequency grid.
func formantMeans(samples []float64, sampleRate int, track []pitchFrame) (float64, float64, float64) {
	const targetRate = 10000
	const lpcOrder = 12
	work := samples
	rate := sampleRate
	if sampleRate > targetRate {
		work = linResample(samples, sampleRate, targetRate)
		rate = targetRate
	}
	frameLen := rate * 25 / 1000
	hop := rate * 10 / 1000
	if frameLen <= lpcOrder || hop < 1 {
		return 0, 0, 0
	}

	voicedAt := func(sampleIdx int) bool {
		orig := sampleIdx * sampleRate / rate
		for _, fr := range track {
			if orig >= fr.start && orig < fr.start+sampleRate*40/1000 {
				return fr.voiced
			}
		}
		return false
	}

	var sums [3]float64
	var counts [3]int
	for start := 0; start+frameLen <= len(work); start += hop {
		if !voicedAt(start) {
			continue
		}
		frame := make([]float64, frameLen)
		// Pre-emphasis sharpens the envelope peaks.
		frame[0] = work[start]
		for i := 1; i < frameLen; i++ {
			frame[i] = work[start+i] - 0.97*work[start+i-1]
		}
		coeffs := lpcCoefficients(frame, lpcOrder)
		if coeffs == nil {
			continue
		}
		formants := envelopePeaks(coeffs, rate, 3)
		for i, f := range formants {
			if f > 0 {
				sums[i] += f
				counts[i]++
			}
		}
	}
	res := [3]float64{}
	for i := range res {
		if counts[i] > 0 {
			res[i] = sums[i] / float64(counts[i])
		}
	}
	return res[0], res[1], res[2]
}

// lpcCoefficients solves the autocorrelation normal equations with
// Levinson-Durbin recursion. Returns nil on degenerate input.
func lpcCoefficients(frame []float64, order int) []float64 {
	r := make([]float64, order+1)
	for lag := 0; lag <= order; lag++ {
		var sum float64
		for i := lag; i < len(frame); i++ {
			sum += frame[i] * frame[i-lag]
		}
		r[lag] = sum
	}
	if r[0] == 0 {
		return nil
	}
	a := make([]float64, order+1)
	e := r[0]
	for i := 1; i <= order; i++ {
		acc := r[i]
		for j := 1; j < i; j++ {
			acc -= a[j] * r[i-j]
		}
		k := acc / e
		if math.Abs(k) >= 1 {
			return nil
		}
		next := make([]float64, order+1)
		copy(next, a)
		next[i] = k
		for j := 1; j < i; j++ {
			next[j] = a[j] - k*a[i-j]
		}
		a = next
		e *= 1 - k*k
		if e <= 0 {
			return nil
		}
	}
	return a
}

// envelopePeaks evaluates the LPC envelope |1/A(e^jw)| on a frequency
// grid and returns the first n local maxima between 90 Hz and 4 kHz.
func envelopePeaks(a []float64, sampleRate, n int) []float64 {
	const gridStep = 10.0
	fMax := float64(sampleRate) / 2
	if fMax > 4000 {
		fMax = 4000
	}
	var freqs, mags []float64
	for f := 90.0; f < fMax; f += gridStep {
		w := 2 * math.Pi * f / float64(sampleRate)
		var re, im float64 = 1, 0
		for k := 1; k < len(a); k++ {
			re -= a[k] * math.Cos(w*float64(k))
			im += a[k] * math.Sin(w*float64(k))
		}
		denom := math.Hypot(re, im)
		if denom < 1e-12 {
			denom = 1e-12
		}
		freqs = append(freqs, f)
		mags = append(mags, 1/denom)
	}
	out := make([]float64, 0, n)
	for i := 1; i < len(mags)-1 && len(out) < n; i++ {
		if mags[i] > mags[i-1] && mags[i] >= mags[i+1] {
			out = append(out, freqs[i])
		}
	}
	for len(out) < n {
		out = append(out, 0)
	}
	return out
}
