// Package sky holds the procedural shading state of a simulated sky: cloud
// layers, celestial-object slots, the transmittance sampler that turns cloud
// textures into a light filter, and the per-frame orchestrator that combines
// them into a lighting snapshot.
package sky

import (
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"

	"go.uber.org/zap"
)

// Raster is a CPU-side RGBA texture that supports pixel lookup by integer
// coordinate. It is the sampleable form every cloud and object texture takes
// inside the sky state.
type Raster struct {
	Width  int
	Height int
	Pix    []uint8 // RGBA, 4 bytes per pixel, row-major
}

// NewRaster allocates a zeroed raster of the given size.
func NewRaster(width, height int) *Raster {
	return &Raster{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*4),
	}
}

// RasterFromImage converts any decoded image into a raster.
func RasterFromImage(img image.Image) *Raster {
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return &Raster{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Pix:    rgba.Pix,
	}
}

// Red returns the red channel at the given texel, in [0, 1]. Coordinates
// wrap, so any integer pair is valid.
func (r *Raster) Red(x, y int) float64 {
	x = wrapIndex(x, r.Width)
	y = wrapIndex(y, r.Height)
	return float64(r.Pix[(y*r.Width+x)*4]) / 255
}

// SetPixel writes one RGBA texel.
func (r *Raster) SetPixel(x, y int, red, green, blue, alpha uint8) {
	i := (y*r.Width + x) * 4
	r.Pix[i] = red
	r.Pix[i+1] = green
	r.Pix[i+2] = blue
	r.Pix[i+3] = alpha
}

func wrapIndex(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// transparentRaster is the official "invisible" representation for a cleared
// cloud layer: a single fully transparent texel.
var transparentRaster = NewRaster(1, 1)

// TextureService loads sampleable rasters by path. It is the boundary to the
// host's asset pipeline; tests substitute their own implementation.
type TextureService interface {
	LoadRaster(path string) (*Raster, error)
}

// FileTextureService is a TextureService that decodes PNG or JPEG files from
// disk and caches the result per path.
type FileTextureService struct {
	mu    sync.Mutex
	cache map[string]*Raster
	log   *zap.Logger
}

// NewFileTextureService returns a caching file-backed texture service.
// A nil logger disables diagnostics.
func NewFileTextureService(log *zap.Logger) *FileTextureService {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileTextureService{
		cache: make(map[string]*Raster),
		log:   log,
	}
}

// LoadRaster decodes the image at path, or returns the cached raster from an
// earlier load of the same path.
func (s *FileTextureService) LoadRaster(path string) (*Raster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if raster, ok := s.cache[path]; ok {
		s.log.Debug("raster cache hit", zap.String("path", path))
		return raster, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}

	raster := RasterFromImage(img)
	s.cache[path] = raster
	s.log.Info("raster loaded",
		zap.String("path", path),
		zap.Int("width", raster.Width),
		zap.Int("height", raster.Height))
	return raster, nil
}
