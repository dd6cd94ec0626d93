package pipeline

import (
	"context"
	"time"

	"github.com/siscx/voice-donation-app/internal/assembler"
	"github.com/siscx/voice-donation-app/internal/audio"
	"github.com/siscx/voice-donation-app/internal/features"
	"github.com/siscx/voice-donation-app/internal/logger"
	"github.com/siscx/voice-donation-app/internal/quality"
	"github.com/siscx/voice-donation-app/internal/types"
)

// Processor runs the full analysis chain for one recording: normalize,
// extract features, assess quality, assemble the record.
type Processor struct {
	norm    *audio.Normalizer
	engine  *features.Engine
	timeout time.Duration
	log     *logger.Logger
}

func NewProcessor(norm *audio.Normalizer, engine *features.Engine) *Processor {
	return &Processor{
		norm:    norm,
		engine:  engine,
		timeout: 5 * time.Minute,
		log:     logger.NewComponent("processor"),
	}
}

func (p *Processor) Process(sub types.RecordingSubmission) types.ProcessingResult {
	log := p.log.WithField("recording_id", sub.RecordingID).
		WithField("task_type", sub.TaskType)

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	w, err := p.norm.Normalize(ctx, sub.Audio, sub.Filename)
	if err != nil {
		log.WithError(err).Warn("normalization failed")
		return assembler.AssembleFailure(sub, err)
	}
	log.WithField("sample_rate", w.SampleRate).
		WithField("duration", w.Duration()).
		Debug("audio normalized")

	fs := p.engine.Extract(w, sub.TaskType)
	q := quality.Assess(w)
	result := assembler.Assemble(sub, q, fs, w.Converted)

	// Drop the sample buffer before returning so the batch loop can
	// reclaim it between tasks.
	w.Samples = nil

	log.WithField("features", len(fs)).
		WithField("signal_quality", q.SignalQuality).
		Info("recording processed")
	return result
}
