// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package locator

import "math"

// travelTimeModel is the 1-D layered velocity model the Locator (C9)
// treats as an opaque bundled resource (spec §4.9, §9). It is a simple
// two-layer crust/mantle model: P-wave velocity is constant within each
// layer, and travel time is hypocentral straight-line distance divided
// by the velocity of the layer the source sits in. This intentionally
// skips ray refraction at the Moho — a full 1-D ray tracer is out of
// scope for an opaque bundled resource per the spec's own framing.
type travelTimeModel struct {
	mohoDepthKm  float64
	crustVelKmS  float64
	mantleVelKmS float64
}

func defaultTravelTimeModel() travelTimeModel {
	return travelTimeModel{
		mohoDepthKm:  35,
		crustVelKmS:  6.0,
		mantleVelKmS: 8.0,
	}
}

func (m travelTimeModel) velocityAt(depthKm float64) float64 {
	if depthKm < m.mohoDepthKm {
		return m.crustVelKmS
	}
	return m.mantleVelKmS
}

// predictedTravelTimeSeconds returns the predicted P-wave travel time
// from a hypocenter to a station given in local flat-earth km offsets.
func (m travelTimeModel) predictedTravelTimeSeconds(dxKm, dyKm, depthKm float64) float64 {
	dist := math.Sqrt(dxKm*dxKm + dyKm*dyKm + depthKm*depthKm)
	return dist / m.velocityAt(depthKm)
}

const (
	kmPerDegLat = 111.195

	earthRadiusKm = 6371.0
)

// kmPerDegLon returns the km-per-degree of longitude at a given latitude,
// used for the flat-earth approximation this locator relies on over its
// search region (the grid spans ±2° around the station centroid).
func kmPerDegLon(latDeg float64) float64 {
	return kmPerDegLat * math.Cos(latDeg*math.Pi/180)
}
