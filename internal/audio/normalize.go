package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cryptix/wav"

	"github.com/siscx/voice-donation-app/internal/logger"
)

// canonicalRate is the sample rate converted audio is resampled to.
// Direct WAV decodes keep their source rate so quality assessment sees
// what the donor actually recorded.
const canonicalRate = 44100

// NormalizationError means no decode strategy could produce a waveform.
type NormalizationError struct {
	Reason string
	Err    error
}

func (e *NormalizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("normalize audio: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("normalize audio: %s", e.Reason)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// Normalizer converts raw uploaded bytes into an analyzable waveform.
// Strategies are tried in order: direct WAV decode first, then an ffmpeg
// conversion for container formats (WebM, OGG, MP4) and damaged WAVs.
type Normalizer struct {
	ffmpeg string
	log    *logger.Logger
}

func NewNormalizer(ffmpegBinary string) *Normalizer {
	if strings.TrimSpace(ffmpegBinary) == "" {
		ffmpegBinary = "ffmpeg"
	}
	return &Normalizer{
		ffmpeg: ffmpegBinary,
		log:    logger.NewComponent("audio.normalizer"),
	}
}

// Normalize decodes audioData into a mono waveform. The filename is a
// hint only; decode strategies do not trust its extension.
func (n *Normalizer) Normalize(ctx context.Context, audioData []byte, filename string) (*Waveform, error) {
	if len(audioData) == 0 {
		return nil, &NormalizationError{Reason: "empty audio payload"}
	}

	w, wavErr := decodeWAV(audioData)
	if wavErr == nil {
		return w, nil
	}

	w, ffErr := n.convertWithFFmpeg(ctx, audioData, filename)
	if ffErr == nil {
		return w, nil
	}

	n.log.WithField("filename", filename).
		WithField("wav_error", wavErr.Error()).
		WithField("ffmpeg_error", ffErr.Error()).
		Warn("all decode strategies failed")
	return nil, &NormalizationError{Reason: "no decode strategy succeeded", Err: ffErr}
}

// decodeWAV reads a RIFF/WAVE payload directly, downmixing interleaved
// channels to mono and keeping the source sample rate.
func decodeWAV(data []byte) (*Waveform, error) {
	r, err := wav.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("wav reader: %w", err)
	}
	file := r.GetFile()
	channels := int(file.Channels)
	rate := int(file.SampleRate)
	bits := int(file.SignificantBits)
	if channels < 1 || rate <= 0 || bits < 8 || bits > 32 {
		return nil, fmt.Errorf("wav header: unsupported format (channels=%d rate=%d bits=%d)", channels, rate, bits)
	}

	full := 1.0
	if bits > 1 {
		full = float64(int64(1) << (bits - 1))
	}
	signBit := int32(1) << (bits - 1)
	mask := (int64(1) << bits) - 1

	var samples []float64
	frame := make([]float64, 0, channels)
	for {
		s, err := r.ReadSample()
		if err != nil {
			break
		}
		// Two's complement within the sample width.
		v := int64(s) & mask
		if int32(v)&signBit != 0 {
			v -= int64(1) << bits
		}
		frame = append(frame, float64(v)/full)
		if len(frame) == channels {
			sum := 0.0
			for _, f := range frame {
				sum += f
			}
			samples = append(samples, sum/float64(channels))
			frame = frame[:0]
		}
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("wav decode: no samples")
	}
	return &Waveform{Samples: samples, SampleRate: rate}, nil
}

// convertWithFFmpeg shells out to ffmpeg to decode arbitrary container
// formats to 44.1 kHz mono s16le on stdout. The temp input file is
// removed on every path.
func (n *Normalizer) convertWithFFmpeg(ctx context.Context, audioData []byte, filename string) (*Waveform, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".bin"
	}
	tmp, err := os.CreateTemp("", "donation-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("create temp input: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(audioData); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp input: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp input: %w", err)
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", tmpPath,
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", canonicalRate),
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-",
	}
	cmd := exec.CommandContext(ctx, n.ffmpeg, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg convert: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	pcm := stdout.Bytes()
	if len(pcm) < 2 {
		return nil, fmt.Errorf("ffmpeg convert: no audio output")
	}
	samples := make([]float64, len(pcm)/2)
	for i := range samples {
		v := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		samples[i] = float64(v) / 32768.0
	}
	return &Waveform{Samples: samples, SampleRate: canonicalRate, Converted: true}, nil
}
