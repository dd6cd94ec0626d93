package types

import (
	"encoding/json"
	"math"
	"testing"
)

func TestFeatureValueValid(t *testing.T) {
	if !Scalar(1.5).Valid() {
		t.Fatalf("finite scalar invalid")
	}
	if Scalar(math.NaN()).Valid() || Scalar(math.Inf(1)).Valid() {
		t.Fatalf("non-finite scalar valid")
	}
	if !Vector([]float64{1, 2}).Valid() {
		t.Fatalf("finite vector invalid")
	}
	if Vector([]float64{1, math.NaN()}).Valid() {
		t.Fatalf("vector with NaN valid")
	}
	if Vector([]float64{}).Valid() {
		t.Fatalf("empty vector valid")
	}
}

func TestFeatureValueMarshalNonFinite(t *testing.T) {
	fs := FeatureSet{
		"ok":  Scalar(2.5),
		"bad": Scalar(math.NaN()),
		"vec": Vector([]float64{1, math.Inf(-1)}),
	}
	raw, err := json.Marshal(fs)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if back["ok"] != 2.5 {
		t.Fatalf("scalar: %v", back["ok"])
	}
	if back["bad"] != nil {
		t.Fatalf("NaN must encode as null, got %v", back["bad"])
	}
	vec, ok := back["vec"].([]any)
	if !ok || len(vec) != 2 || vec[0] != 1.0 || vec[1] != nil {
		t.Fatalf("vector encoding: %v", back["vec"])
	}
}
