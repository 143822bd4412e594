package fleet

import "math"

// MaxDisplayScore is shown in place of any score at or above 100.
const MaxDisplayScore = 99.9

// ScoreFields carries the alternately named score fields upstream schemas use.
type ScoreFields struct {
	AveragePerformance *float64
	AverageScore       *float64
	CPUScore           *float64
}

type scoreSource struct {
	name string
	get  func(ScoreFields) *float64
}

// scorePriority is the lookup order; the first present, finite value wins.
var scorePriority = []scoreSource{
	{"averagePerformance", func(f ScoreFields) *float64 { return f.AveragePerformance }},
	{"averageScore", func(f ScoreFields) *float64 { return f.AverageScore }},
	{"cpuScore", func(f ScoreFields) *float64 { return f.CPUScore }},
}

// ResolveScore returns the first present field in priority order, or 0.
func ResolveScore(f ScoreFields) float64 {
	v, _ := lookupScore(f)
	return v
}

// ScoreSource names the field ResolveScore would use, or "" when none is present.
func ScoreSource(f ScoreFields) string {
	for _, src := range scorePriority {
		if v := src.get(f); v != nil && isFinite(*v) {
			return src.name
		}
	}
	return ""
}

func lookupScore(f ScoreFields) (float64, bool) {
	for _, src := range scorePriority {
		if v := src.get(f); v != nil && isFinite(*v) {
			return *v, true
		}
	}
	return 0, false
}

// DisplayScore rounds to one decimal and keeps the value below a saturated 100.
func DisplayScore(v float64) float64 {
	if !isFinite(v) || v < 0 {
		return 0
	}
	r := math.Round(v*10) / 10
	if r >= 100 {
		return MaxDisplayScore
	}
	return r
}

// ScoreFields returns the device's score fields for priority lookup.
func (d Device) ScoreFields() ScoreFields {
	return ScoreFields{AveragePerformance: d.AveragePerformance, AverageScore: d.AverageScore, CPUScore: d.CPUScore}
}

// Score resolves the device's score; ok is false when no field is present.
func (d Device) Score() (float64, bool) {
	return lookupScore(d.ScoreFields())
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
