// Package calibrate implements the Confidence Calibrator (spec.md §4.7):
// four monotone mapping models fit offline on labeled (confidence,
// isActualPHI) points, plus per-filterType sub-calibrators and a reliability
// report.
package calibrate

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Point is one labeled calibration sample.
type Point struct {
	Confidence  float64
	IsActualPHI bool
}

// Method names a calibration model.
type Method string

const (
	MethodPlatt       Method = "platt"
	MethodIsotonic    Method = "isotonic"
	MethodBeta        Method = "beta"
	MethodTemperature Method = "temperature"
)

// MinFitPoints is the minimum number of labeled points required to fit any
// model; below this, calibration is the identity (spec.md §4.7).
const MinFitPoints = 20

// MinSubtypeSamples is the minimum sample count before a per-filterType
// sub-calibrator is preferred over the global one (spec.md §4.7).
const MinSubtypeSamples = 30

func label(p Point) float64 {
	if p.IsActualPHI {
		return 1
	}
	return 0
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func logit(p float64) float64 {
	p = math.Min(math.Max(p, 1e-6), 1-1e-6)
	return math.Log(p / (1 - p))
}

// --- Platt ---

// PlattModel fits σ(a·s+b) by fixed-iteration batch gradient descent.
type PlattModel struct {
	A, B    float64
	fitted  bool
}

func (m *PlattModel) IsFitted() bool { return m.fitted }

func (m *PlattModel) Apply(score float64) float64 {
	if !m.fitted {
		return score
	}
	return sigmoid(m.A*score + m.B)
}

const (
	plattIterations = 100
	plattLR         = 0.01
)

func (m *PlattModel) Fit(points []Point) {
	a, b := 0.0, 0.0
	n := float64(len(points))
	for iter := 0; iter < plattIterations; iter++ {
		var gradA, gradB float64
		for _, p := range points {
			pred := sigmoid(a*p.Confidence + b)
			err := pred - label(p)
			gradA += err * p.Confidence
			gradB += err
		}
		a -= plattLR * gradA / n
		b -= plattLR * gradB / n
	}
	m.A, m.B, m.fitted = a, b, true
}

// --- Isotonic (PAV) ---

// IsotonicModel applies a piecewise-linear monotone map fit by the
// pool-adjacent-violators algorithm.
type IsotonicModel struct {
	Thresholds []float64
	Values     []float64
	fitted     bool
}

func (m *IsotonicModel) IsFitted() bool { return m.fitted }

func (m *IsotonicModel) Apply(score float64) float64 {
	if !m.fitted || len(m.Thresholds) == 0 {
		return score
	}
	if score <= m.Thresholds[0] {
		return m.Values[0]
	}
	last := len(m.Thresholds) - 1
	if score >= m.Thresholds[last] {
		return m.Values[last]
	}
	for i := 0; i < last; i++ {
		x0, x1 := m.Thresholds[i], m.Thresholds[i+1]
		if score >= x0 && score <= x1 {
			y0, y1 := m.Values[i], m.Values[i+1]
			if x1 == x0 {
				return y0
			}
			t := (score - x0) / (x1 - x0)
			return y0 + t*(y1-y0)
		}
	}
	return score
}

// pavBlock is a pooled run of adjacent points during PAV fitting.
type pavBlock struct {
	sumX, sumY, weight float64
	minX, maxX         float64
}

func (b pavBlock) mean() float64 { return b.sumY / b.weight }

func (m *IsotonicModel) Fit(points []Point) {
	sorted := append([]Point(nil), points...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Confidence < sorted[j].Confidence })

	blocks := make([]pavBlock, 0, len(sorted))
	for _, p := range sorted {
		y := label(p)
		blocks = append(blocks, pavBlock{sumX: p.Confidence, sumY: y, weight: 1, minX: p.Confidence, maxX: p.Confidence})
		for len(blocks) >= 2 && blocks[len(blocks)-2].mean() > blocks[len(blocks)-1].mean() {
			last := blocks[len(blocks)-1]
			blocks = blocks[:len(blocks)-1]
			prev := blocks[len(blocks)-1]
			merged := pavBlock{
				sumX:   prev.sumX + last.sumX,
				sumY:   prev.sumY + last.sumY,
				weight: prev.weight + last.weight,
				minX:   prev.minX,
				maxX:   last.maxX,
			}
			blocks[len(blocks)-1] = merged
		}
	}

	thresholds := make([]float64, 0, len(blocks))
	values := make([]float64, 0, len(blocks))
	for _, b := range blocks {
		mid := (b.minX + b.maxX) / 2
		thresholds = append(thresholds, mid)
		values = append(values, b.mean())
	}
	m.Thresholds, m.Values, m.fitted = thresholds, values, true
}

// --- Beta ---

// BetaModel fits a·s^b+c by least-squares gradient descent, with parameters
// clamped to spec.md §4.7's ranges.
type BetaModel struct {
	A, B, C float64
	fitted  bool
}

func (m *BetaModel) IsFitted() bool { return m.fitted }

func (m *BetaModel) Apply(score float64) float64 {
	if !m.fitted {
		return score
	}
	v := m.A*math.Pow(math.Max(score, 1e-9), m.B) + m.C
	return math.Min(math.Max(v, 0), 1)
}

const (
	betaIterations = 200
	betaLR         = 0.01
)

func (m *BetaModel) Fit(points []Point) {
	a, b, c := 1.0, 1.0, 0.0
	n := float64(len(points))
	for iter := 0; iter < betaIterations; iter++ {
		var gradA, gradB, gradC float64
		for _, p := range points {
			s := math.Max(p.Confidence, 1e-9)
			pred := a*math.Pow(s, b) + c
			err := pred - label(p)
			gradA += err * math.Pow(s, b)
			gradB += err * a * math.Pow(s, b) * math.Log(s)
			gradC += err
		}
		a -= betaLR * gradA / n
		b -= betaLR * gradB / n
		c -= betaLR * gradC / n
		a = clampRange(a, 0.1, 10)
		b = clampRange(b, 0.1, 10)
		c = clampRange(c, -0.5, 0.5)
	}
	m.A, m.B, m.C, m.fitted = a, b, c, true
}

func clampRange(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

// --- Temperature ---

// TemperatureModel applies σ(logit(s)/T), T chosen by grid search.
type TemperatureModel struct {
	T      float64
	fitted bool
}

func (m *TemperatureModel) IsFitted() bool { return m.fitted }

func (m *TemperatureModel) Apply(score float64) float64 {
	if !m.fitted {
		return score
	}
	return sigmoid(logit(score) / m.T)
}

func (m *TemperatureModel) Fit(points []Point) {
	bestT, bestLoss := 1.0, math.Inf(1)
	for t := 0.1; t <= 5.0+1e-9; t += 0.1 {
		loss := crossEntropy(points, t)
		if loss < bestLoss {
			bestLoss, bestT = loss, t
		}
	}
	m.T, m.fitted = bestT, true
}

func crossEntropy(points []Point, t float64) float64 {
	losses := make([]float64, 0, len(points))
	for _, p := range points {
		pred := sigmoid(logit(p.Confidence) / t)
		pred = math.Min(math.Max(pred, 1e-9), 1-1e-9)
		y := label(p)
		losses = append(losses, -(y*math.Log(pred) + (1-y)*math.Log(1-pred)))
	}
	return floats.Sum(losses) / float64(len(losses))
}
