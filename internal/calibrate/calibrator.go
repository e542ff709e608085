package calibrate

import (
	"encoding/json"

	"github.com/clinical-nlp/redact-engine/internal/span"
)

// subcalibrator bundles all four fitted models for one scope (global or a
// single filterType); PreferredMethod selects which one Apply actually uses.
type subcalibrator struct {
	Platt       *PlattModel
	Isotonic    *IsotonicModel
	Beta        *BetaModel
	Temperature *TemperatureModel
	Preferred   Method
	Fitted      bool
}

func newSubcalibrator() *subcalibrator {
	return &subcalibrator{
		Platt: &PlattModel{}, Isotonic: &IsotonicModel{}, Beta: &BetaModel{}, Temperature: &TemperatureModel{},
	}
}

func (s *subcalibrator) fit(points []Point, preferred Method) {
	if len(points) < MinFitPoints {
		return
	}
	s.Platt.Fit(points)
	s.Isotonic.Fit(points)
	s.Beta.Fit(points)
	s.Temperature.Fit(points)
	s.Preferred = preferred
	s.Fitted = true
}

func (s *subcalibrator) apply(score float64) float64 {
	if !s.Fitted {
		return score
	}
	switch s.Preferred {
	case MethodIsotonic:
		return s.Isotonic.Apply(score)
	case MethodBeta:
		return s.Beta.Apply(score)
	case MethodTemperature:
		return s.Temperature.Apply(score)
	default:
		return s.Platt.Apply(score)
	}
}

// Calibrator holds a global model plus per-filterType sub-calibrators
// (spec.md §4.7).
type Calibrator struct {
	global    *subcalibrator
	perType   map[span.FilterType]*subcalibrator
	preferred Method
}

// New builds an unfit Calibrator; Apply passes scores through unchanged
// until Fit is called with enough points.
func New(preferred Method) *Calibrator {
	return &Calibrator{global: newSubcalibrator(), perType: map[span.FilterType]*subcalibrator{}, preferred: preferred}
}

// LabeledPoint associates a calibration sample with the filter type it came
// from, so per-type sub-calibrators can be fit.
type LabeledPoint struct {
	Point
	FilterType span.FilterType
}

// Fit builds the global calibrator over all points, and a per-filterType
// calibrator for any type with >= MinSubtypeSamples points (spec.md §4.7).
func (c *Calibrator) Fit(points []LabeledPoint) {
	global := make([]Point, len(points))
	byType := make(map[span.FilterType][]Point)
	for i, p := range points {
		global[i] = p.Point
		byType[p.FilterType] = append(byType[p.FilterType], p.Point)
	}
	c.global.fit(global, c.preferred)
	for t, pts := range byType {
		if len(pts) < MinSubtypeSamples {
			continue
		}
		sc := newSubcalibrator()
		sc.fit(pts, c.preferred)
		c.perType[t] = sc
	}
}

// Apply calibrates one span's confidence in place, preferring a per-type
// sub-calibrator when available and fitted.
func (c *Calibrator) Apply(spans []*span.Span) {
	for _, s := range spans {
		if sc, ok := c.perType[s.FilterType]; ok && sc.Fitted {
			s.Confidence = sc.apply(s.Confidence)
			continue
		}
		s.Confidence = c.global.apply(s.Confidence)
	}
}

// --- JSON import/export (spec.md §6) ---

type subcalibratorJSON struct {
	PlattParams    [2]float64        `json:"plattParams"`
	IsotonicModel  isotonicModelJSON `json:"isotonicModel"`
	BetaParams     [3]float64        `json:"betaParams"`
	Temperature    float64           `json:"temperature"`
	PreferredMethod Method           `json:"preferredMethod"`
	IsFitted       bool              `json:"isFitted"`
}

type isotonicModelJSON struct {
	Thresholds []float64 `json:"thresholds"`
	Values     []float64 `json:"values"`
}

func (s *subcalibrator) toJSON() subcalibratorJSON {
	return subcalibratorJSON{
		PlattParams:     [2]float64{s.Platt.A, s.Platt.B},
		IsotonicModel:   isotonicModelJSON{Thresholds: s.Isotonic.Thresholds, Values: s.Isotonic.Values},
		BetaParams:      [3]float64{s.Beta.A, s.Beta.B, s.Beta.C},
		Temperature:     s.Temperature.T,
		PreferredMethod: s.Preferred,
		IsFitted:        s.Fitted,
	}
}

func subcalibratorFromJSON(j subcalibratorJSON) *subcalibrator {
	sc := newSubcalibrator()
	sc.Platt.A, sc.Platt.B, sc.Platt.fitted = j.PlattParams[0], j.PlattParams[1], j.IsFitted
	sc.Isotonic.Thresholds, sc.Isotonic.Values, sc.Isotonic.fitted = j.IsotonicModel.Thresholds, j.IsotonicModel.Values, j.IsFitted
	sc.Beta.A, sc.Beta.B, sc.Beta.C, sc.Beta.fitted = j.BetaParams[0], j.BetaParams[1], j.BetaParams[2], j.IsFitted
	sc.Temperature.T, sc.Temperature.fitted = j.Temperature, j.IsFitted
	sc.Preferred = j.PreferredMethod
	sc.Fitted = j.IsFitted
	return sc
}

type calibratorJSON struct {
	Global  subcalibratorJSON                       `json:"global"`
	PerType map[span.FilterType]subcalibratorJSON `json:"perType"`
}

// MarshalJSON exports the calibrator's fitted state per spec.md §6.
func (c *Calibrator) MarshalJSON() ([]byte, error) {
	perType := make(map[span.FilterType]subcalibratorJSON, len(c.perType))
	for t, sc := range c.perType {
		perType[t] = sc.toJSON()
	}
	return json.Marshal(calibratorJSON{Global: c.global.toJSON(), PerType: perType})
}

// UnmarshalJSON imports a previously exported calibrator state.
func (c *Calibrator) UnmarshalJSON(data []byte) error {
	var j calibratorJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	c.global = subcalibratorFromJSON(j.Global)
	c.perType = make(map[span.FilterType]*subcalibrator, len(j.PerType))
	for t, scj := range j.PerType {
		c.perType[t] = subcalibratorFromJSON(scj)
	}
	if c.global.Fitted {
		c.preferred = c.global.Preferred
	}
	return nil
}
