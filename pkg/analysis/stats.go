package analysis

import (
	"math"
	"sort"
)

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func medianOf(xs []float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], true
	}
	return (sorted[mid-1] + sorted[mid]) / 2, true
}

// varianceOf is the sample variance (n-1 denominator); it needs at least
// two observations.
func varianceOf(xs []float64) (float64, bool) {
	if len(xs) < 2 {
		return 0, false
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return sum / float64(len(xs)-1), true
}

func stdDevOf(xs []float64) (float64, bool) {
	v, ok := varianceOf(xs)
	if !ok {
		return 0, false
	}
	return math.Sqrt(v), true
}

func pearson(x, y []float64) (float64, bool) {
	n := len(x)
	if n < 2 || n != len(y) {
		return 0, false
	}
	mx, my := mean(x), mean(y)
	var sxy, sxx, syy float64
	for i := 0; i < n; i++ {
		dx, dy := x[i]-mx, y[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0, false
	}
	return sxy / math.Sqrt(sxx*syy), true
}

// ranks assigns 1-based ranks, averaging over ties.
func ranks(xs []float64) []float64 {
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })
	out := make([]float64, len(xs))
	i := 0
	for i < len(idx) {
		j := i
		for j+1 < len(idx) && xs[idx[j+1]] == xs[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = avg
		}
		i = j + 1
	}
	return out
}

func spearman(x, y []float64) (float64, bool) {
	if len(x) < 2 || len(x) != len(y) {
		return 0, false
	}
	return pearson(ranks(x), ranks(y))
}

// kendallTau is tau-b, which corrects for ties on either axis.
func kendallTau(x, y []float64) (float64, bool) {
	n := len(x)
	if n < 2 || n != len(y) {
		return 0, false
	}
	var concordant, discordant, tiesX, tiesY float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx, dy := x[i]-x[j], y[i]-y[j]
			switch {
			case dx == 0 && dy == 0:
			case dx == 0:
				tiesX++
			case dy == 0:
				tiesY++
			case dx*dy > 0:
				concordant++
			default:
				discordant++
			}
		}
	}
	denom := math.Sqrt((concordant + discordant + tiesX) * (concordant + discordant + tiesY))
	if denom == 0 {
		return 0, false
	}
	return (concordant - discordant) / denom, true
}

func correlate(method string, x, y []float64) (float64, bool) {
	switch method {
	case "spearman":
		return spearman(x, y)
	case "kendall":
		return kendallTau(x, y)
	default:
		return pearson(x, y)
	}
}

func normalCDF(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}

// correlationPValue is a two-sided p-value via the Fisher z transform for
// pearson/spearman and the normal approximation for kendall. Good enough
// for flagging significance; not an exact test.
func correlationPValue(method string, r float64, n int) float64 {
	if r >= 1 || r <= -1 {
		return 0
	}
	var z float64
	if method == "kendall" {
		if n < 3 {
			return 1
		}
		z = 3 * r * math.Sqrt(float64(n)*float64(n-1)) / math.Sqrt(2*float64(2*n+5))
	} else {
		if n < 4 {
			return 1
		}
		z = 0.5 * math.Log((1+r)/(1-r)) * math.Sqrt(float64(n-3))
	}
	return 2 * (1 - normalCDF(math.Abs(z)))
}

type histogramBin struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Count int     `json:"count"`
}

// histogramOf bins values into equal-width buckets over [min, max]. A
// degenerate distribution collapses to a single bin.
func histogramOf(values []float64, bins int) []histogramBin {
	if len(values) == 0 || bins < 1 {
		return nil
	}
	lo, hi := values[0], values[0]
	for _, v := range values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo == hi {
		return []histogramBin{{Start: lo, End: hi, Count: len(values)}}
	}
	width := (hi - lo) / float64(bins)
	out := make([]histogramBin, bins)
	for i := range out {
		out[i].Start = lo + float64(i)*width
		out[i].End = lo + float64(i+1)*width
	}
	out[bins-1].End = hi
	for _, v := range values {
		idx := int((v - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		out[idx].Count++
	}
	return out
}
