// Package analysis computes draw-force curve statistics for a finished
// measure: peak and mean force, stored energy, and a polynomial
// force/draw-distance fit evaluated at the bow's maximum draw.
package analysis

import (
	"sort"

	"github.com/SeanJxie/polygo"
	"github.com/openacid/slimarray/polyfit"
	"github.com/pconstantinou/savitzkygolay"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"arrowctl/internal/models"
)

const (
	SMOOTHING_WINDOW = 11 // samples per Savitzky-Golay window
	SMOOTHING_ORDER  = 3  // polynomial order of the smoother
	FIT_DEGREE       = 3  // degree of the force/draw-distance fit
)

type Summary struct {
	Points          int       `json:"points"`
	MaxForce        float64   `json:"max_force"`
	MeanForce       float64   `json:"mean_force"`
	MaxDrawDistance float64   `json:"max_draw_distance"`
	StoredEnergy    float64   `json:"stored_energy"`
	FitCoeffs       []float64 `json:"fit_coeffs"`
	ForceAtMaxDraw  float64   `json:"force_at_max_draw"`
}

// Summarize reduces one measure's sample points. maxDraw is the owning
// bow's maximum draw distance; the fit is evaluated there to estimate the
// holding force at full draw.
func Summarize(points []models.MeasurePoint, maxDraw float64) (Summary, error) {
	if len(points) < 2 {
		return Summary{}, errors.Errorf("need at least 2 measure points, got %d", len(points))
	}

	ordered := make([]models.MeasurePoint, len(points))
	copy(ordered, points)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].DrawDistance < ordered[j].DrawDistance
	})

	distance := make([]float64, len(ordered))
	force := make([]float64, len(ordered))
	for i, p := range ordered {
		distance[i] = p.DrawDistance
		force[i] = p.Force
	}

	// smoothing is best-effort: raw forces are still a valid curve
	smoothed := force
	if len(force) > SMOOTHING_WINDOW {
		if filter, err := savitzkygolay.NewFilter(SMOOTHING_WINDOW, 0, SMOOTHING_ORDER); err == nil {
			if s, err := filter.Process(force, distance); err == nil {
				smoothed = s
			}
		}
	}

	f := polyfit.NewFit(distance, smoothed, FIT_DEGREE)
	coeffs := f.Solve()

	summary := Summary{
		Points:          len(ordered),
		MaxForce:        floats.Max(smoothed),
		MeanForce:       stat.Mean(smoothed, nil),
		MaxDrawDistance: floats.Max(distance),
		StoredEnergy:    trapezoid(distance, smoothed),
		FitCoeffs:       coeffs,
	}

	if p, err := polygo.NewRealPolynomial(coeffs); err == nil {
		at := maxDraw
		if at <= 0 {
			at = summary.MaxDrawDistance
		}
		summary.ForceAtMaxDraw = p.At(at)
	}

	return summary, nil
}

// trapezoid integrates force over draw distance; with force in Newtons
// and distance in meters the result is Joules.
func trapezoid(x, y []float64) float64 {
	var sum float64
	for i := 1; i < len(x); i++ {
		sum += (x[i] - x[i-1]) * (y[i] + y[i-1]) / 2
	}
	return sum
}
