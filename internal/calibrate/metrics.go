package calibrate

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// ReliabilityBin is one equal-width confidence bin in the reliability curve.
type ReliabilityBin struct {
	LowerBound      float64
	UpperBound      float64
	Count           int
	AvgConfidence   float64
	ObservedFraction float64
}

// Report summarizes calibration quality over a labeled point set (spec.md
// §4.7: ECE over 10 equal-width bins, MCE, Brier score, log-loss, and the
// reliability curve).
type Report struct {
	ECE             float64
	MCE             float64
	Brier           float64
	LogLoss         float64
	ReliabilityCurve []ReliabilityBin
}

const eceBins = 10

// Evaluate computes a Report from (predicted, actual) labeled points —
// predicted should already be the calibrated score.
func Evaluate(points []Point) Report {
	bins := make([]ReliabilityBin, eceBins)
	for i := range bins {
		bins[i].LowerBound = float64(i) / eceBins
		bins[i].UpperBound = float64(i+1) / eceBins
	}
	binSums := make([]float64, eceBins)
	binHits := make([]float64, eceBins)
	binCounts := make([]int, eceBins)

	predicted := make([]float64, len(points))
	actual := make([]float64, len(points))
	for i, p := range points {
		predicted[i] = p.Confidence
		actual[i] = label(p)

		idx := int(p.Confidence * eceBins)
		if idx >= eceBins {
			idx = eceBins - 1
		}
		if idx < 0 {
			idx = 0
		}
		binSums[idx] += p.Confidence
		binHits[idx] += actual[i]
		binCounts[idx]++
	}

	n := float64(len(points))
	var ece, mce float64
	for i := range bins {
		if binCounts[i] == 0 {
			continue
		}
		avgConf := binSums[i] / float64(binCounts[i])
		obsFrac := binHits[i] / float64(binCounts[i])
		bins[i].Count = binCounts[i]
		bins[i].AvgConfidence = avgConf
		bins[i].ObservedFraction = obsFrac

		gap := math.Abs(avgConf - obsFrac)
		weight := float64(binCounts[i]) / n
		ece += weight * gap
		if gap > mce {
			mce = gap
		}
	}

	return Report{
		ECE:             ece,
		MCE:             mce,
		Brier:           brierScore(predicted, actual),
		LogLoss:         logLoss(predicted, actual),
		ReliabilityCurve: bins,
	}
}

func brierScore(predicted, actual []float64) float64 {
	if len(predicted) == 0 {
		return 0
	}
	sqErr := make([]float64, len(predicted))
	for i := range predicted {
		d := predicted[i] - actual[i]
		sqErr[i] = d * d
	}
	return stat.Mean(sqErr, nil)
}

func logLoss(predicted, actual []float64) float64 {
	if len(predicted) == 0 {
		return 0
	}
	losses := make([]float64, len(predicted))
	for i, p := range predicted {
		pc := math.Min(math.Max(p, 1e-9), 1-1e-9)
		y := actual[i]
		losses[i] = -(y*math.Log(pc) + (1-y)*math.Log(1-pc))
	}
	return stat.Mean(losses, nil)
}
