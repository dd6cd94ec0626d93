package features

import "github.com/siscx/voice-donation-app/internal/types"

// guard runs a scalar measurement and records zero if it panics. A
// single bad measurement must not take down the rest of the group.
func guard(out types.FeatureSet, name string, f func() float64) {
	defer func() {
		if recover() != nil {
			out[name] = types.Scalar(0)
		}
	}()
	out[name] = types.Scalar(f())
}

func guardVector(out types.FeatureSet, name string, f func() []float64) {
	defer func() {
		if recover() != nil {
			out[name] = types.Vector(nil)
		}
	}()
	out[name] = types.Vector(f())
}

// guardVec records a mean/std vector pair from one computation.
func guardVec(out types.FeatureSet, meanName, stdName string, f func() ([]float64, []float64)) {
	defer func() {
		if recover() != nil {
			out[meanName] = types.Vector(nil)
			out[stdName] = types.Vector(nil)
		}
	}()
	m, s := f()
	out[meanName] = types.Vector(m)
	out[stdName] = types.Vector(s)
}
