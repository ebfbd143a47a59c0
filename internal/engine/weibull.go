package engine

import (
	"errors"
	"math"
	"sort"

	"github.com/maintstack/maint-opt/internal/models"
)

// Bounds for the shape parameter. The profile likelihood is monotonic in k,
// so the solver is pinned to this bracket.
const (
	weibullShapeMin = 0.01
	weibullShapeMax = 100.0
)

var errWeibullFit = errors.New("weibull fit did not converge")

// fitWeibull estimates two-parameter Weibull shape and scale by maximum
// likelihood. Newton iteration on the profile likelihood of the shape, with a
// bisection fallback when Newton leaves the bracket. Deterministic for a
// given sample.
func fitWeibull(times []float64) (shape, scale float64, err error) {
	sample := make([]float64, 0, len(times))
	for _, t := range times {
		if t > 0 && !math.IsInf(t, 0) && !math.IsNaN(t) {
			sample = append(sample, t)
		}
	}
	if len(sample) < 2 {
		return 0, 0, errWeibullFit
	}

	n := float64(len(sample))
	meanLog := 0.0
	for _, t := range sample {
		meanLog += math.Log(t)
	}
	meanLog /= n

	// g(k) = sum(t^k ln t)/sum(t^k) - 1/k - mean(ln t), strictly increasing.
	g := func(k float64) float64 {
		var sumPow, sumPowLog float64
		for _, t := range sample {
			p := math.Pow(t, k)
			sumPow += p
			sumPowLog += p * math.Log(t)
		}
		return sumPowLog/sumPow - 1/k - meanLog
	}
	gPrime := func(k float64) float64 {
		var sumPow, sumPowLog, sumPowLog2 float64
		for _, t := range sample {
			p := math.Pow(t, k)
			lt := math.Log(t)
			sumPow += p
			sumPowLog += p * lt
			sumPowLog2 += p * lt * lt
		}
		return (sumPowLog2*sumPow-sumPowLog*sumPowLog)/(sumPow*sumPow) + 1/(k*k)
	}

	k := 1.2
	converged := false
	for i := 0; i < 100; i++ {
		gk := g(k)
		if math.Abs(gk) < 1e-9 {
			converged = true
			break
		}
		deriv := gPrime(k)
		if deriv == 0 || math.IsNaN(deriv) {
			break
		}
		next := k - gk/deriv
		if next < weibullShapeMin || next > weibullShapeMax || math.IsNaN(next) {
			break
		}
		if math.Abs(next-k) < 1e-10 {
			k = next
			converged = true
			break
		}
		k = next
	}

	if !converged {
		k, converged = bisectShape(g)
	}
	if !converged {
		return 0, 0, errWeibullFit
	}

	sumPow := 0.0
	for _, t := range sample {
		sumPow += math.Pow(t, k)
	}
	lambda := math.Pow(sumPow/n, 1/k)
	if math.IsNaN(lambda) || math.IsInf(lambda, 0) || lambda <= 0 {
		return 0, 0, errWeibullFit
	}
	return k, lambda, nil
}

// bisectShape falls back to bisection over the full shape bracket. When the
// root sits outside the bracket (degenerate samples such as identical times),
// the nearest bound is returned so the fit stays deterministic.
func bisectShape(g func(float64) float64) (float64, bool) {
	lo, hi := weibullShapeMin, weibullShapeMax
	gLo, gHi := g(lo), g(hi)
	if math.IsNaN(gLo) || math.IsNaN(gHi) {
		return 0, false
	}
	if gLo > 0 {
		return lo, true
	}
	if gHi < 0 {
		return hi, true
	}
	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		gMid := g(mid)
		if math.Abs(gMid) < 1e-9 || (hi-lo)/2 < 1e-10 {
			return mid, true
		}
		if gMid < 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2, true
}

// weibullRSquared measures goodness of fit against median-rank plotting
// positions of the sorted sample.
func weibullRSquared(times []float64, shape, scale float64) float64 {
	sorted := make([]float64, len(times))
	copy(sorted, times)
	sort.Float64s(sorted)

	n := float64(len(sorted))
	observed := make([]float64, len(sorted))
	meanObserved := 0.0
	for i := range sorted {
		observed[i] = (float64(i+1) - 0.3) / (n + 0.4)
		meanObserved += observed[i]
	}
	meanObserved /= n

	var ssRes, ssTot float64
	for i, t := range sorted {
		predicted := 1 - math.Exp(-math.Pow(t/scale, shape))
		ssRes += (observed[i] - predicted) * (observed[i] - predicted)
		ssTot += (observed[i] - meanObserved) * (observed[i] - meanObserved)
	}
	if ssTot == 0 {
		return 0
	}
	r2 := 1 - ssRes/ssTot
	if r2 < 0 {
		return 0
	}
	return r2
}

func weibullMTBF(shape, scale float64) float64 {
	return scale * math.Gamma(1+1/shape)
}

// weibullReliabilityInterval is the operating time at which survival
// probability equals the target: t = scale * (-ln r)^(1/shape).
func weibullReliabilityInterval(shape, scale, target float64) float64 {
	return scale * math.Pow(-math.Log(target), 1/shape)
}

func weibullReliabilityTable(shape, scale float64) models.ReliabilityTable {
	table := make(models.ReliabilityTable, len(models.ReliabilityTargets))
	for _, target := range models.ReliabilityTargets {
		table[int(target*100+0.5)] = weibullReliabilityInterval(shape, scale, target)
	}
	return table
}
