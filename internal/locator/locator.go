// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package locator implements the Locator (C9): a multi-station
// arrival-time inversion producing a hypocenter estimate with an
// error ellipse, per spec §4.9. A coarse grid search seeds a
// weighted-least-squares Gauss-Newton refinement against the bundled
// 1-D travel-time model.
package locator

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/seismonet/quakewatch/internal/errs"
	"github.com/seismonet/quakewatch/pkg/schema"
)

// Pick is one station's observed arrival time and assumed uncertainty,
// the locator's input unit (spec §4.9).
type Pick struct {
	Network     string
	Station     string
	ArrivalTime time.Time
	SigmaS      float64
}

// Locator performs the hypocentral inversion described in spec §4.9.
type Locator struct {
	cfg      schema.LocatorConfig
	stations *Registry
	model    travelTimeModel
}

// New builds a Locator from its config and station coordinate registry.
func New(cfg schema.LocatorConfig, stations *Registry) *Locator {
	return &Locator{cfg: cfg, stations: stations, model: defaultTravelTimeModel()}
}

type resolvedPick struct {
	lat, lon, elevKm float64
	arrival          float64 // seconds since an arbitrary epoch
	sigma            float64
}

// Locate runs the 4-step algorithm from spec §4.9: grid search, Gauss-
// Newton refinement, termination on step size or iteration cap, and an
// error ellipse derived from the final normal equations' covariance.
func (l *Locator) Locate(ctx context.Context, picks []Pick) (schema.LocationEstimate, error) {
	const op = "locator.Locate"

	if len(picks) < l.cfg.MinStations {
		return schema.LocationEstimate{}, errs.New(errs.Validation, op,
			"insufficient stations for location (InsufficientStations)", nil)
	}

	resolved := make([]resolvedPick, 0, len(picks))
	epoch := picks[0].ArrivalTime
	for _, p := range picks {
		st, err := l.stations.Lookup(p.Network, p.Station)
		if err != nil {
			return schema.LocationEstimate{}, errs.New(errs.Validation, op, err.Error(), err)
		}
		sigma := p.SigmaS
		if sigma <= 0 {
			sigma = 0.1
		}
		resolved = append(resolved, resolvedPick{
			lat: st.Latitude, lon: st.Longitude, elevKm: st.ElevationM / 1000,
			arrival: p.ArrivalTime.Sub(epoch).Seconds(),
			sigma:   sigma,
		})
	}

	if err := ctx.Err(); err != nil {
		return schema.LocationEstimate{}, errs.New(errs.DeadlineExceeded, op, "cancelled before location", err)
	}

	lat0, lon0, depth0 := l.gridSearch(resolved)
	m, jacobian, weights, residuals, err := l.refine(resolved, lat0, lon0, depth0)
	if err != nil {
		return schema.LocationEstimate{}, errs.New(errs.Internal, op, "inversion failed to converge", err)
	}

	rms := rmsOf(residuals)
	horizKm, depthErrKm := errorEllipse(jacobian, weights, m[0])

	return schema.LocationEstimate{
		Latitude:        m[0],
		Longitude:       m[1],
		DepthKm:         m[2],
		HorizontalErrKm: horizKm,
		DepthErrKm:      depthErrKm,
		RMSResidualS:    rms,
	}, nil
}

// gridSearch performs step 1 of spec §4.9: a coarse lat/lon/depth
// lattice search, origin time fixed by the median residual at each
// grid point, minimizing the unweighted sum of squared travel-time
// residuals (pick weights enter only in refine).
func (l *Locator) gridSearch(picks []resolvedPick) (lat, lon, depth float64) {
	var sumLat, sumLon float64
	for _, p := range picks {
		sumLat += p.lat
		sumLon += p.lon
	}
	centerLat := sumLat / float64(len(picks))
	centerLon := sumLon / float64(len(picks))

	step := l.cfg.GridStepDeg
	if step <= 0 {
		step = 0.1
	}
	const halfWidthDeg = 2.0
	depths := []float64{1, 5, 10, 20, 35, 50, 100, 200, 400, 650}

	bestSSQ := math.Inf(1)
	bestLat, bestLon, bestDepth := centerLat, centerLon, depths[0]

	for la := centerLat - halfWidthDeg; la <= centerLat+halfWidthDeg; la += step {
		for lo := centerLon - halfWidthDeg; lo <= centerLon+halfWidthDeg; lo += step {
			for _, d := range depths {
				_, ssq := evaluateGridPoint(picks, l.model, la, lo, d)
				if ssq < bestSSQ {
					bestSSQ, bestLat, bestLon, bestDepth = ssq, la, lo, d
				}
			}
		}
	}
	return bestLat, bestLon, bestDepth
}

func evaluateGridPoint(picks []resolvedPick, model travelTimeModel, lat, lon, depth float64) (t0, ssq float64) {
	offsets := make([]float64, len(picks))
	for i, p := range picks {
		dx := (p.lon - lon) * kmPerDegLon(lat)
		dy := (p.lat - lat) * kmPerDegLat
		pred := model.predictedTravelTimeSeconds(dx, dy, depth-p.elevKm)
		offsets[i] = p.arrival - pred
	}
	t0 = median(offsets)
	for _, p := range picks {
		dx := (p.lon - lon) * kmPerDegLon(lat)
		dy := (p.lat - lat) * kmPerDegLat
		pred := model.predictedTravelTimeSeconds(dx, dy, depth-p.elevKm)
		r := p.arrival - t0 - pred
		ssq += r * r
	}
	return t0, ssq
}

// refine performs steps 2-3 of spec §4.9: weighted-least-squares
// Gauss-Newton iteration over m = [lat, lon, depth, originTimeOffset],
// terminating when the spatial step size drops below cfg.EpsKm or the
// iteration cap is hit.
func (l *Locator) refine(picks []resolvedPick, lat0, lon0, depth0 float64) (m []float64, jacobian *squareMatrix, weights []float64, residuals []float64, err error) {
	m = []float64{lat0, lon0, depth0, 0}
	weights = make([]float64, len(picks))
	for i, p := range picks {
		weights[i] = 1 / (p.sigma * p.sigma)
	}

	const (
		dLatDeg   = 1e-4
		dLonDeg   = 1e-4
		dDepthKm  = 0.01
	)

	maxIter := l.cfg.MaxIter
	if maxIter <= 0 {
		maxIter = 50
	}
	eps := l.cfg.EpsKm
	if eps <= 0 {
		eps = 0.1
	}

	for iter := 0; iter < maxIter; iter++ {
		predicted := make([]float64, len(picks))
		for i, p := range picks {
			dx := (p.lon - m[1]) * kmPerDegLon(m[0])
			dy := (p.lat - m[0]) * kmPerDegLat
			predicted[i] = l.model.predictedTravelTimeSeconds(dx, dy, m[2]-p.elevKm)
		}

		residuals = make([]float64, len(picks))
		for i, p := range picks {
			residuals[i] = p.arrival - m[3] - predicted[i]
		}

		jacobian = newMatrix(4) // accumulated J^T W J
		jtwr := make([]float64, 4)

		for i, p := range picks {
			dx := (p.lon - m[1]) * kmPerDegLon(m[0])
			dy := (p.lat - m[0]) * kmPerDegLat
			base := l.model.predictedTravelTimeSeconds(dx, dy, m[2]-p.elevKm)

			perturb := func(dlat, dlon, ddep float64) float64 {
				lat, lon, dep := m[0]+dlat, m[1]+dlon, m[2]+ddep
				dx := (p.lon - lon) * kmPerDegLon(lat)
				dy := (p.lat - lat) * kmPerDegLat
				return l.model.predictedTravelTimeSeconds(dx, dy, dep-p.elevKm)
			}

			dPredLat := (perturb(dLatDeg, 0, 0) - base) / dLatDeg
			dPredLon := (perturb(0, dLonDeg, 0) - base) / dLonDeg
			dPredDep := (perturb(0, 0, dDepthKm) - base) / dDepthKm

			// residual_i = obs - t0 - pred(m); d(residual)/dm = -d(pred)/dm (and -1 for t0)
			rowJ := [4]float64{-dPredLat, -dPredLon, -dPredDep, -1}
			w := weights[i]

			for a := 0; a < 4; a++ {
				jtwr[a] += w * rowJ[a] * residuals[i]
				for b := 0; b < 4; b++ {
					jacobian.add(a, b, w*rowJ[a]*rowJ[b])
				}
			}
		}

		// Gauss-Newton update: with J the Jacobian of the residual
		// (observed - predicted), solve (J^T W J) dm = -J^T W r and step
		// m by +dm.
		neg := make([]float64, 4)
		for i := range jtwr {
			neg[i] = -jtwr[i]
		}
		dm, solveErr := jacobian.solve(neg)
		if solveErr != nil {
			return m, jacobian, weights, residuals, solveErr
		}

		m[0] += dm[0]
		m[1] += dm[1]
		m[2] += dm[2]
		m[3] += dm[3]
		if m[2] < 0 {
			m[2] = 0
		}

		stepKm := math.Sqrt(
			(dm[0]*kmPerDegLat)*(dm[0]*kmPerDegLat) +
				(dm[1]*kmPerDegLon(m[0]))*(dm[1]*kmPerDegLon(m[0])) +
				dm[2]*dm[2])
		if stepKm < eps {
			break
		}
	}

	return m, jacobian, weights, residuals, nil
}

// errorEllipse projects the covariance of the final normal equations
// (the inverse of J^T W J) to the horizontal plane and reads off the
// depth variance from its diagonal, per spec §4.9 step 4.
func errorEllipse(jacobian *squareMatrix, weights []float64, lat float64) (horizontalErrKm, depthErrKm float64) {
	cov, err := jacobian.invert()
	if err != nil {
		return math.Inf(1), math.Inf(1)
	}

	latVarDeg2 := cov.at(0, 0)
	lonVarDeg2 := cov.at(1, 1)
	latLonCovDeg2 := cov.at(0, 1)

	kLat := kmPerDegLat
	kLon := kmPerDegLon(lat)

	a := latVarDeg2 * kLat * kLat
	b := latLonCovDeg2 * kLat * kLon
	d := lonVarDeg2 * kLon * kLon

	// eigenvalues of [[a, b], [b, d]]
	trace := a + d
	det := a*d - b*b
	disc := math.Sqrt(math.Max(0, trace*trace/4-det))
	eig1 := trace/2 + disc
	if eig1 < 0 {
		eig1 = 0
	}
	horizontalErrKm = math.Sqrt(eig1)

	depthVar := cov.at(2, 2)
	if depthVar < 0 {
		depthVar = 0
	}
	depthErrKm = math.Sqrt(depthVar)
	return horizontalErrKm, depthErrKm
}

func median(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func rmsOf(residuals []float64) float64 {
	if len(residuals) == 0 {
		return 0
	}
	var sum float64
	for _, r := range residuals {
		sum += r * r
	}
	return math.Sqrt(sum / float64(len(residuals)))
}
