package engine

import (
	"math"
	"testing"
)

func TestFitWeibullWearOutSample(t *testing.T) {
	times := []float64{120, 340, 600}

	shape, scale, err := fitWeibull(times)
	if err != nil {
		t.Fatalf("fitWeibull: %v", err)
	}
	if shape <= 1 {
		t.Errorf("shape = %v, want > 1 for an increasing hazard sample", shape)
	}
	if scale <= 0 {
		t.Errorf("scale = %v, want > 0", scale)
	}

	mtbf := weibullMTBF(shape, scale)
	if mtbf < 250 || mtbf > 450 {
		t.Errorf("mtbf = %v, want near the sample mean of ~353", mtbf)
	}

	// The fit is deterministic for a given sample.
	shape2, scale2, err := fitWeibull(times)
	if err != nil {
		t.Fatalf("second fitWeibull: %v", err)
	}
	if shape2 != shape || scale2 != scale {
		t.Errorf("fit not deterministic: (%v, %v) vs (%v, %v)", shape, scale, shape2, scale2)
	}
}

func TestFitWeibullOverdispersedSample(t *testing.T) {
	// Coefficient of variation well above 1 indicates a decreasing hazard.
	shape, _, err := fitWeibull([]float64{5, 30, 100, 5000})
	if err != nil {
		t.Fatalf("fitWeibull: %v", err)
	}
	if shape >= 0.9 {
		t.Errorf("shape = %v, want < 0.9 for an overdispersed sample", shape)
	}
}

func TestFitWeibullRecoversKnownParameters(t *testing.T) {
	// Sample drawn at median-rank quantiles of Weibull(shape=2, scale=500).
	const wantShape, wantScale = 2.0, 500.0
	n := 8
	times := make([]float64, n)
	for i := 0; i < n; i++ {
		p := (float64(i+1) - 0.3) / (float64(n) + 0.4)
		times[i] = wantScale * math.Pow(-math.Log(1-p), 1/wantShape)
	}

	shape, scale, err := fitWeibull(times)
	if err != nil {
		t.Fatalf("fitWeibull: %v", err)
	}
	if math.Abs(shape-wantShape) > 0.5 {
		t.Errorf("shape = %v, want ~%v", shape, wantShape)
	}
	if math.Abs(scale-wantScale)/wantScale > 0.15 {
		t.Errorf("scale = %v, want ~%v", scale, wantScale)
	}
	if r2 := weibullRSquared(times, shape, scale); r2 < 0.95 {
		t.Errorf("r-squared = %v, want >= 0.95 for data on the fitted family", r2)
	}
}

func TestFitWeibullRejectsUnusableSamples(t *testing.T) {
	cases := map[string][]float64{
		"empty":        nil,
		"single":       {100},
		"non-positive": {0, -5},
	}
	for name, times := range cases {
		if _, _, err := fitWeibull(times); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestWeibullMTBF(t *testing.T) {
	// Shape 1 is the exponential case, where MTBF equals the scale.
	if mtbf := weibullMTBF(1, 750); math.Abs(mtbf-750) > 1e-9 {
		t.Errorf("mtbf(1, 750) = %v, want 750", mtbf)
	}
	// Shape 2: MTBF = scale * gamma(1.5).
	want := 1000 * math.Gamma(1.5)
	if mtbf := weibullMTBF(2, 1000); math.Abs(mtbf-want) > 1e-6 {
		t.Errorf("mtbf(2, 1000) = %v, want %v", mtbf, want)
	}
}

func TestWeibullReliabilityTable(t *testing.T) {
	table := weibullReliabilityTable(2, 1000)

	want := 1000 * math.Sqrt(-math.Log(0.9))
	got, ok := table.At(0.90)
	if !ok {
		t.Fatal("90% target missing from table")
	}
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("interval at 90%% = %v, want %v", got, want)
	}

	// Stricter targets demand shorter intervals.
	t99, _ := table.At(0.99)
	t80, _ := table.At(0.80)
	if !(t99 < got && got < t80) {
		t.Errorf("intervals not monotone: t99=%v t90=%v t80=%v", t99, got, t80)
	}
}
