// Package features turns a normalized waveform into the named feature
// measurements recorded with each donation.
package features

import (
	"github.com/siscx/voice-donation-app/internal/audio"
	"github.com/siscx/voice-donation-app/internal/logger"
	"github.com/siscx/voice-donation-app/internal/types"
)

// TaskMaximumPhonationTime routes a recording to the phonation module
// instead of the speech activity module.
const TaskMaximumPhonationTime = "maximum_phonation_time"

// Engine runs the feature modules in a fixed order and merges their
// output into one set.
type Engine struct {
	log *logger.Logger
}

func NewEngine() *Engine {
	return &Engine{log: logger.NewComponent("features")}
}

// Extract runs the spectral and acoustic modules on every recording,
// then either the phonation module (sustained vowel tasks) or the
// speech activity module. Modules run in that order; if two modules
// emit the same feature name the later value wins and a warning is
// logged.
func (e *Engine) Extract(w *audio.Waveform, taskType string) types.FeatureSet {
	merged := types.FeatureSet{}
	e.merge(merged, Spectral(w))
	e.merge(merged, Acoustic(w))
	if taskType == TaskMaximumPhonationTime {
		e.merge(merged, Phonation(w))
	} else {
		e.merge(merged, SpeechActivity(w, e.log))
	}
	return merged
}

func (e *Engine) merge(dst, src types.FeatureSet) {
	for name, value := range src {
		if _, exists := dst[name]; exists {
			e.log.WithField("feature", name).Warn("feature name collision, keeping later value")
		}
		dst[name] = value
	}
}
