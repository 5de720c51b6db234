// Package dome generates hemispherical sky-dome meshes and maps directions
// to texture coordinates using an azimuthal-equidistant projection: angular
// distance from the dome's top anchor is proportional to UV distance from
// the anchor, and azimuth around the vertical axis becomes the direction of
// the UV offset.
package dome

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"Celestial3D/internal/errs"
)

// Projection maps world directions (+X north, +Y up, +Z east) to dome
// texture coordinates and back.
type Projection struct {
	TopU    float64 // U coordinate of the zenith anchor, in [0, 1]
	TopV    float64 // V coordinate of the zenith anchor, in [0, 1]
	UVScale float64 // UV distance covered by a quarter turn, in (0, 0.5)
}

// NewProjection validates the anchor and scale and returns a projection.
func NewProjection(topU, topV, uvScale float64) (Projection, error) {
	if !(topU >= 0 && topU <= 1 && topV >= 0 && topV <= 1) {
		return Projection{}, fmt.Errorf("%w: top anchor (%g, %g) outside [0,1]^2",
			errs.ErrInvalidArgument, topU, topV)
	}
	if !(uvScale > 0 && uvScale < 0.5) {
		return Projection{}, fmt.Errorf("%w: uv scale %g outside (0, 0.5)",
			errs.ErrInvalidArgument, uvScale)
	}
	return Projection{TopU: topU, TopV: topV, UVScale: uvScale}, nil
}

// DirectionUV projects a direction onto the dome texture. It reports ok =
// false when the direction points far enough below the rim that the
// resulting coordinates would leave the unit square; in particular any
// direction at or above the horizon with a centered anchor is valid.
// U grows toward east, V toward north.
func (p Projection) DirectionUV(dir mgl64.Vec3) (u, v float64, ok bool) {
	length := dir.Len()
	if length == 0 {
		return 0, 0, false
	}
	north := dir.X() / length
	up := dir.Y() / length
	east := dir.Z() / length

	horizontal := math.Hypot(north, east)
	if horizontal == 0 {
		// Exactly at zenith or nadir: the azimuth is undefined, so return
		// the anchor itself, or nothing for the nadir.
		if up > 0 {
			return p.TopU, p.TopV, true
		}
		return 0, 0, false
	}

	angleFromTop := math.Acos(clamp(up, -1, 1))
	uvDistance := p.UVScale * angleFromTop / (math.Pi / 2)
	u = p.TopU + uvDistance*east/horizontal
	v = p.TopV + uvDistance*north/horizontal
	if u < 0 || u > 1 || v < 0 || v > 1 {
		return 0, 0, false
	}
	return u, v, true
}

// ElevationAngle inverts the projection: given texture coordinates it
// returns the elevation angle (radians above the horizon, negative below)
// of the direction that maps there.
func (p Projection) ElevationAngle(u, v float64) (float64, error) {
	if !(u >= 0 && u <= 1 && v >= 0 && v <= 1) {
		return 0, fmt.Errorf("%w: uv (%g, %g) outside [0,1]^2", errs.ErrInvalidArgument, u, v)
	}
	uvDistance := math.Hypot(u-p.TopU, v-p.TopV)
	angleFromTop := uvDistance / p.UVScale * (math.Pi / 2)
	return math.Pi/2 - angleFromTop, nil
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
