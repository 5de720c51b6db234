package dome

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"Celestial3D/internal/errs"
)

// Mesh holds the generated buffers of a hemispherical dome: unit-sphere
// vertex positions, per-vertex normals and texture coordinates, and triangle
// indices. Buffers are flat float32 slices in the layout the GPU expects.
// A mesh is immutable once built; changing the vertical angle regenerates
// every buffer wholesale.
type Mesh struct {
	rimSamples      int
	quadrantSamples int
	projection      Projection
	inward          bool
	verticalAngle   float64

	Positions []float32 // x, y, z per vertex
	Normals   []float32 // x, y, z per vertex
	UVs       []float32 // u, v per vertex
	Indices   []uint32  // 3 per triangle

	log *zap.Logger
}

// New builds a dome mesh. rimSamples is the number of longitude samples
// around the rim (>= 3), quadrantSamples the number of latitude samples from
// zenith to rim inclusive (>= 2). The top anchor and UV scale define the
// texture projection; inward selects the winding so normals face the viewer
// inside the dome.
func New(rimSamples, quadrantSamples int, topU, topV, uvScale float64, inward bool, log *zap.Logger) (*Mesh, error) {
	if rimSamples < 3 {
		return nil, fmt.Errorf("%w: rim samples %d < 3", errs.ErrInvalidArgument, rimSamples)
	}
	if quadrantSamples < 2 {
		return nil, fmt.Errorf("%w: quadrant samples %d < 2", errs.ErrInvalidArgument, quadrantSamples)
	}
	projection, err := NewProjection(topU, topV, uvScale)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := &Mesh{
		rimSamples:      rimSamples,
		quadrantSamples: quadrantSamples,
		projection:      projection,
		inward:          inward,
		verticalAngle:   math.Pi / 2,
		log:             log,
	}
	m.generate()
	return m, nil
}

// Projection returns the texture projection this mesh was built with.
func (m *Mesh) Projection() Projection {
	return m.projection
}

// VerticalAngle returns the angular extent from the zenith to the rim.
func (m *Mesh) VerticalAngle() float64 {
	return m.verticalAngle
}

// SetVerticalAngle changes the dome's vertical field of view (zenith to rim,
// radians) and rebuilds the buffers. The angle must keep every generated UV
// inside the unit square: uvScale * angle/(pi/2) <= 0.5.
func (m *Mesh) SetVerticalAngle(angle float64) error {
	if !(angle > 0) || m.projection.UVScale*angle/(math.Pi/2) > 0.5 {
		return fmt.Errorf("%w: vertical angle %g not in (0, pi/4/uvScale]",
			errs.ErrInvalidArgument, angle)
	}
	m.verticalAngle = angle
	m.generate()
	m.log.Debug("dome rebuilt", zap.Float64("verticalAngle", angle),
		zap.Int("vertices", m.VertexCount()))
	return nil
}

// VertexCount returns the number of generated vertices.
func (m *Mesh) VertexCount() int {
	return 1 + (m.quadrantSamples-1)*m.rimSamples
}

// TriangleCount returns the number of generated triangles.
func (m *Mesh) TriangleCount() int {
	return m.rimSamples + (m.quadrantSamples-2)*m.rimSamples*2
}

// generate rebuilds every buffer from the defining parameters.
func (m *Mesh) generate() {
	vertexCount := m.VertexCount()
	m.Positions = make([]float32, 0, vertexCount*3)
	m.Normals = make([]float32, 0, vertexCount*3)
	m.UVs = make([]float32, 0, vertexCount*2)
	m.Indices = make([]uint32, 0, m.TriangleCount()*3)

	// pole vertex at the zenith
	m.appendVertex(0, 0)

	rings := m.quadrantSamples - 1
	for i := 1; i <= rings; i++ {
		angleFromTop := m.verticalAngle * float64(i) / float64(rings)
		for j := 0; j < m.rimSamples; j++ {
			azimuth := 2 * math.Pi * float64(j) / float64(m.rimSamples)
			m.appendVertex(angleFromTop, azimuth)
		}
	}

	// triangle fan closing at the pole
	for j := 0; j < m.rimSamples; j++ {
		next := (j + 1) % m.rimSamples
		m.appendTriangle(0, m.ringVertex(1, next), m.ringVertex(1, j))
	}
	// quads between consecutive rings, two triangles each
	for i := 1; i < rings; i++ {
		for j := 0; j < m.rimSamples; j++ {
			next := (j + 1) % m.rimSamples
			a := m.ringVertex(i, j)
			b := m.ringVertex(i, next)
			c := m.ringVertex(i+1, next)
			d := m.ringVertex(i+1, j)
			m.appendTriangle(a, b, d)
			m.appendTriangle(b, c, d)
		}
	}
}

// ringVertex returns the index of vertex j on ring i (1-based rings).
func (m *Mesh) ringVertex(i, j int) uint32 {
	return uint32(1 + (i-1)*m.rimSamples + j)
}

func (m *Mesh) appendVertex(angleFromTop, azimuth float64) {
	sinA := math.Sin(angleFromTop)
	x := sinA * math.Cos(azimuth) // north
	y := math.Cos(angleFromTop)   // up
	z := sinA * math.Sin(azimuth) // east
	m.Positions = append(m.Positions, float32(x), float32(y), float32(z))

	sign := float32(1)
	if m.inward {
		sign = -1
	}
	m.Normals = append(m.Normals, sign*float32(x), sign*float32(y), sign*float32(z))

	uvDistance := m.projection.UVScale * angleFromTop / (math.Pi / 2)
	u := m.projection.TopU + uvDistance*math.Sin(azimuth)
	v := m.projection.TopV + uvDistance*math.Cos(azimuth)
	m.UVs = append(m.UVs, float32(u), float32(v))
}

// appendTriangle emits indices wound counter-clockwise for the chosen
// facing; inward domes reverse the order so the front face is seen from
// below the dome.
func (m *Mesh) appendTriangle(a, b, c uint32) {
	if m.inward {
		m.Indices = append(m.Indices, a, c, b)
	} else {
		m.Indices = append(m.Indices, a, b, c)
	}
}

// NewBottomCap builds the flat disk that closes a dome underneath the
// horizon, hiding the gap below the rim. The disk lies in the horizontal
// plane with upward normals, rimSamples edge vertices and a center vertex.
func NewBottomCap(rimSamples int, log *zap.Logger) (*Mesh, error) {
	if rimSamples < 3 {
		return nil, fmt.Errorf("%w: rim samples %d < 3", errs.ErrInvalidArgument, rimSamples)
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := &Mesh{
		rimSamples:      rimSamples,
		quadrantSamples: 2,
		projection:      Projection{TopU: 0.5, TopV: 0.5, UVScale: 0.49},
		inward:          false,
		verticalAngle:   0,
		log:             log,
	}

	m.Positions = append(m.Positions, 0, 0, 0)
	m.Normals = append(m.Normals, 0, 1, 0)
	m.UVs = append(m.UVs, 0.5, 0.5)
	for j := 0; j < rimSamples; j++ {
		azimuth := 2 * math.Pi * float64(j) / float64(rimSamples)
		x := math.Cos(azimuth)
		z := math.Sin(azimuth)
		m.Positions = append(m.Positions, float32(x), 0, float32(z))
		m.Normals = append(m.Normals, 0, 1, 0)
		m.UVs = append(m.UVs, float32(0.5+0.49*z), float32(0.5+0.49*x))
	}
	for j := 0; j < rimSamples; j++ {
		next := (j + 1) % rimSamples
		m.Indices = append(m.Indices, 0, uint32(1+next), uint32(1+j))
	}
	return m, nil
}
