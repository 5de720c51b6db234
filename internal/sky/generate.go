package sky

import (
	"fmt"
	"math"
	"math/rand"

	perlin "github.com/aquilax/go-perlin"

	"Celestial3D/internal/errs"
)

// GenerateCloudRaster builds a tileable cloud-alpha raster from Perlin
// noise. Density in [0, 1] biases how much of the sky the clouds cover; the
// red and alpha channels carry the opacity, so the result plugs straight
// into a cloud layer. The same seed always yields the same raster.
func GenerateCloudRaster(size int, seed int64, density float64) (*Raster, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: raster size %d < 1", errs.ErrInvalidArgument, size)
	}
	if !(density >= 0 && density <= 1) {
		return nil, fmt.Errorf("%w: density %g outside [0, 1]", errs.ErrInvalidArgument, density)
	}

	noise := perlin.NewPerlin(2, 2, 3, seed)
	raster := NewRaster(size, size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			// Sample on a torus so the raster tiles seamlessly when the
			// layer offset wraps.
			fx := float64(x) / float64(size)
			fy := float64(y) / float64(size)
			nx := math.Cos(2 * math.Pi * fx)
			ny := math.Sin(2 * math.Pi * fx)
			nz := math.Cos(2 * math.Pi * fy)
			v := noise.Noise3D(nx+1.5, ny+1.5, nz+1.5+math.Sin(2*math.Pi*fy))

			// Perlin output is roughly [-0.7, 0.7]; remap and bias.
			opacity := clamp01((v+0.7)/1.4 + density - 0.5)
			level := uint8(opacity * 255)
			raster.SetPixel(x, y, level, level, level, level)
		}
	}
	return raster, nil
}

// GenerateStarRaster scatters the given number of white points over a black
// raster, for use as a night-sky texture. The same seed always yields the
// same raster.
func GenerateStarRaster(size int, seed int64, starCount int) (*Raster, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: raster size %d < 1", errs.ErrInvalidArgument, size)
	}
	if starCount < 0 {
		return nil, fmt.Errorf("%w: star count %d < 0", errs.ErrInvalidArgument, starCount)
	}

	rng := rand.New(rand.NewSource(seed))
	raster := NewRaster(size, size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			raster.SetPixel(x, y, 0, 0, 0, 255)
		}
	}
	for i := 0; i < starCount; i++ {
		x := rng.Intn(size)
		y := rng.Intn(size)
		brightness := uint8(128 + rng.Intn(128))
		raster.SetPixel(x, y, brightness, brightness, brightness, 255)
	}
	return raster, nil
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
