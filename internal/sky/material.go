package sky

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"Celestial3D/internal/dome"
	"Celestial3D/internal/errs"
)

// stretchCoefficient compensates the UV compression the azimuthal projection
// introduces near the horizon: textures are stretched radially by
// 1 + stretchCoefficient * d^2, with d the UV distance from the anchor.
const stretchCoefficient = 2.5

// rotationTolerance bounds how far a caller-supplied cos/sin pair may stray
// from unit length.
const rotationTolerance = 1e-4

// parameterShape is one supported (object count, cloud-layer count)
// combination. Requests are rounded up to the smallest shape that fits.
type parameterShape struct {
	objects int
	layers  int
}

// supportedShapes mirrors the fixed set of shader permutations the rendering
// side provides, smallest first.
var supportedShapes = []parameterShape{
	{2, 2},
	{2, 6},
	{5, 2},
	{5, 6},
}

// SlotState is the lifecycle of a celestial-object slot.
type SlotState int

const (
	// SlotUnconfigured means no texture has ever been bound to the slot.
	SlotUnconfigured SlotState = iota
	// SlotHidden means the slot is bound but currently not drawn.
	SlotHidden
	// SlotVisible means the slot is bound, placed and drawn.
	SlotVisible
)

// objectSlot is one celestial object (the sun, or the moon in one phase).
type objectSlot struct {
	state      SlotState
	raster     *Raster
	center     mgl64.Vec2
	scale      float64
	rotation   *mgl64.Vec2 // unit cos/sin pair, nil for none
	transformU mgl64.Vec2
	transformV mgl64.Vec2
	color      mgl64.Vec4
	glow       mgl64.Vec4
}

// cloudSlot is the per-layer texture state the transmittance sampler reads.
type cloudSlot struct {
	bound   bool
	raster  *Raster
	offsetU float64
	offsetV float64
	scale   float64
	color   mgl64.Vec4 // alpha is the layer opacity
}

// SkyMaterial is the procedural shading-parameter store for a sky: object
// transforms and colors, cloud-layer offsets and colors, and the cloud
// transmittance sampler.
type SkyMaterial struct {
	projection dome.Projection
	shape      parameterShape
	objects    []objectSlot
	clouds     []cloudSlot
	clearColor mgl64.Vec4
	log        *zap.Logger
}

// NewSkyMaterial allocates shading state sized for the requested object and
// cloud-layer counts, rounded up to the smallest supported parameter shape.
// Requests beyond the largest shape fail with ErrConfigurationOverflow.
func NewSkyMaterial(projection dome.Projection, maxObjects, maxLayers int, log *zap.Logger) (*SkyMaterial, error) {
	if maxObjects < 1 {
		return nil, fmt.Errorf("%w: object count %d < 1", errs.ErrInvalidArgument, maxObjects)
	}
	if maxLayers < 0 {
		return nil, fmt.Errorf("%w: cloud-layer count %d < 0", errs.ErrInvalidArgument, maxLayers)
	}
	if log == nil {
		log = zap.NewNop()
	}

	for _, shape := range supportedShapes {
		if maxObjects <= shape.objects && maxLayers <= shape.layers {
			m := &SkyMaterial{
				projection: projection,
				shape:      shape,
				objects:    make([]objectSlot, shape.objects),
				clouds:     make([]cloudSlot, shape.layers),
				clearColor: mgl64.Vec4{0.4, 0.6, 1, 1},
				log:        log,
			}
			log.Debug("sky material created",
				zap.Int("objects", shape.objects),
				zap.Int("cloudLayers", shape.layers))
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: no parameter shape supports %d objects and %d cloud layers",
		errs.ErrConfigurationOverflow, maxObjects, maxLayers)
}

// MaxObjects returns the number of object slots actually allocated.
func (m *SkyMaterial) MaxObjects() int { return m.shape.objects }

// MaxCloudLayers returns the number of cloud-layer slots actually allocated.
func (m *SkyMaterial) MaxCloudLayers() int { return m.shape.layers }

// ObjectState reports the lifecycle state of an object slot.
func (m *SkyMaterial) ObjectState(index int) (SlotState, error) {
	if err := m.checkObjectIndex(index); err != nil {
		return SlotUnconfigured, err
	}
	return m.objects[index].state, nil
}

// AddObject binds a texture to an object slot. The first bind initializes
// the slot's transform and colors to defaults and makes it visible; later
// binds replace only the texture.
func (m *SkyMaterial) AddObject(index int, raster *Raster) error {
	if err := m.checkObjectIndex(index); err != nil {
		return err
	}
	if raster == nil {
		return fmt.Errorf("%w: nil raster", errs.ErrInvalidArgument)
	}
	slot := &m.objects[index]
	first := slot.state == SlotUnconfigured
	slot.raster = raster
	if first {
		slot.center = mgl64.Vec2{m.projection.TopU, m.projection.TopV}
		slot.scale = 1
		slot.rotation = nil
		slot.color = mgl64.Vec4{1, 1, 1, 1}
		slot.glow = mgl64.Vec4{0, 0, 0, 1}
		slot.state = SlotVisible
		m.updateObjectTransform(slot)
	}
	return nil
}

// SetObjectTransform places a visible object: center UV, angular scale and
// an optional 2D rotation given as a unit-length cos/sin pair. The computed
// texture-space basis stretches the texture radially against the dome
// projection's compression, applies the rotation, and divides by scale.
func (m *SkyMaterial) SetObjectTransform(index int, center mgl64.Vec2, scale float64, rotation *mgl64.Vec2) error {
	if err := m.checkObjectBound(index); err != nil {
		return err
	}
	if !(center.X() >= 0 && center.X() <= 1 && center.Y() >= 0 && center.Y() <= 1) {
		return fmt.Errorf("%w: center UV (%g, %g) outside [0,1]^2",
			errs.ErrInvalidArgument, center.X(), center.Y())
	}
	if !(scale > 0) {
		return fmt.Errorf("%w: scale %g must be positive", errs.ErrInvalidArgument, scale)
	}
	if rotation != nil {
		if math.Abs(rotation.Len()-1) > rotationTolerance {
			return fmt.Errorf("%w: rotation pair (%g, %g) is not unit length",
				errs.ErrInvalidArgument, rotation.X(), rotation.Y())
		}
		r := *rotation
		rotation = &r
	}

	slot := &m.objects[index]
	slot.center = center
	slot.scale = scale
	slot.rotation = rotation
	slot.state = SlotVisible
	m.updateObjectTransform(slot)
	return nil
}

// updateObjectTransform recomputes the slot's two texture-space basis
// vectors from its center, scale and rotation.
func (m *SkyMaterial) updateObjectTransform(slot *objectSlot) {
	anchor := mgl64.Vec2{m.projection.TopU, m.projection.TopV}
	offset := slot.center.Sub(anchor)
	d := offset.Len()
	stretch := 1 + stretchCoefficient*d*d

	radial := mgl64.Vec2{1, 0}
	if d > 0 {
		radial = offset.Mul(1 / d)
	}
	tangent := mgl64.Vec2{-radial.Y(), radial.X()}

	// 2x2 basis: stretch along the radial direction, identity tangentially.
	a := stretch*radial.X()*radial.X() + tangent.X()*tangent.X()
	b := stretch*radial.X()*radial.Y() + tangent.X()*tangent.Y()
	c := stretch*radial.Y()*radial.X() + tangent.Y()*tangent.X()
	e := stretch*radial.Y()*radial.Y() + tangent.Y()*tangent.Y()

	if slot.rotation != nil {
		cosR := slot.rotation.X()
		sinR := slot.rotation.Y()
		a, b = a*cosR+b*sinR, -a*sinR+b*cosR
		c, e = c*cosR+e*sinR, -c*sinR+e*cosR
	}

	inv := 1 / slot.scale
	slot.transformU = mgl64.Vec2{a * inv, b * inv}
	slot.transformV = mgl64.Vec2{c * inv, e * inv}
}

// HideObject marks a bound object slot as not drawn. The slot keeps its
// texture; a later SetObjectTransform shows it again.
func (m *SkyMaterial) HideObject(index int) error {
	if err := m.checkObjectBound(index); err != nil {
		return err
	}
	m.objects[index].state = SlotHidden
	return nil
}

// SetObjectColor sets a bound object's color and glow color.
func (m *SkyMaterial) SetObjectColor(index int, color, glow mgl64.Vec4) error {
	if err := m.checkObjectBound(index); err != nil {
		return err
	}
	slot := &m.objects[index]
	slot.color = color
	slot.glow = glow
	return nil
}

// ObjectTransform returns a visible object's center and basis vectors.
func (m *SkyMaterial) ObjectTransform(index int) (center, transformU, transformV mgl64.Vec2, err error) {
	if err := m.checkObjectBound(index); err != nil {
		return mgl64.Vec2{}, mgl64.Vec2{}, mgl64.Vec2{}, err
	}
	slot := &m.objects[index]
	return slot.center, slot.transformU, slot.transformV, nil
}

// AddClouds binds an alpha texture to a cloud layer. The first bind
// initializes offset, scale and color to defaults; later binds replace only
// the texture.
func (m *SkyMaterial) AddClouds(layer int, raster *Raster) error {
	if err := m.checkLayerIndex(layer); err != nil {
		return err
	}
	if raster == nil {
		return fmt.Errorf("%w: nil raster", errs.ErrInvalidArgument)
	}
	slot := &m.clouds[layer]
	first := !slot.bound
	slot.raster = raster
	if first {
		slot.bound = true
		slot.offsetU = 0
		slot.offsetV = 0
		slot.scale = 1
		slot.color = mgl64.Vec4{1, 1, 1, 0}
	}
	return nil
}

// SetCloudsOffset sets a bound layer's UV offset; each component is wrapped
// into [0, 1).
func (m *SkyMaterial) SetCloudsOffset(layer int, u, v float64) error {
	if err := m.checkLayerBound(layer); err != nil {
		return err
	}
	slot := &m.clouds[layer]
	slot.offsetU = wrapUnit(u)
	slot.offsetV = wrapUnit(v)
	return nil
}

// SetCloudsScale sets a bound layer's UV scale factor.
func (m *SkyMaterial) SetCloudsScale(layer int, scale float64) error {
	if err := m.checkLayerBound(layer); err != nil {
		return err
	}
	if !(scale > 0) {
		return fmt.Errorf("%w: scale %g must be positive", errs.ErrInvalidArgument, scale)
	}
	m.clouds[layer].scale = scale
	return nil
}

// SetCloudsColor sets a bound layer's color; the alpha channel is the layer
// opacity and must lie in [0, 1].
func (m *SkyMaterial) SetCloudsColor(layer int, color mgl64.Vec4) error {
	if err := m.checkLayerBound(layer); err != nil {
		return err
	}
	if !(color.W() >= 0 && color.W() <= 1) {
		return fmt.Errorf("%w: opacity %g outside [0, 1]", errs.ErrInvalidArgument, color.W())
	}
	m.clouds[layer].color = color
	return nil
}

// ClearCloudTexture rebinds a layer to the shared fully transparent
// placeholder, its official invisible representation.
func (m *SkyMaterial) ClearCloudTexture(layer int) error {
	if err := m.checkLayerBound(layer); err != nil {
		return err
	}
	m.clouds[layer].raster = transparentRaster
	return nil
}

// SetClearColor sets the daytime clear-sky color; alpha fades it out around
// twilight.
func (m *SkyMaterial) SetClearColor(color mgl64.Vec4) {
	m.clearColor = color
}

// ClearColor returns the daytime clear-sky color.
func (m *SkyMaterial) ClearColor() mgl64.Vec4 {
	return m.clearColor
}

// Transmission returns the fraction of light from the given dome texture
// coordinates that passes through every bound cloud layer, in [0, 1]. Each
// layer absorbs independently: its alpha raster is sampled bilinearly at
// (uv*scale + offset), wrapped per axis, and scaled by the layer opacity.
func (m *SkyMaterial) Transmission(u, v float64) float64 {
	transmission := 1.0
	for i := range m.clouds {
		slot := &m.clouds[i]
		if !slot.bound {
			continue
		}
		opacity := slot.sampleOpacity(u, v) * slot.color.W()
		transmission *= 1 - opacity
	}
	return clamp01(transmission)
}

// TransmissionForObject samples Transmission at a bound object's center UV.
// Hidden objects have no location and fail with ErrIllegalState.
func (m *SkyMaterial) TransmissionForObject(index int) (float64, error) {
	if err := m.checkObjectBound(index); err != nil {
		return 0, err
	}
	slot := &m.objects[index]
	if slot.state == SlotHidden {
		return 0, fmt.Errorf("%w: object %d is hidden", errs.ErrIllegalState, index)
	}
	return m.Transmission(slot.center.X(), slot.center.Y()), nil
}

// sampleOpacity bilinearly interpolates the red channel of the layer's
// raster over the 4 nearest texels.
func (s *cloudSlot) sampleOpacity(u, v float64) float64 {
	su := wrapUnit(u*s.scale + s.offsetU)
	sv := wrapUnit(v*s.scale + s.offsetV)

	fx := su*float64(s.raster.Width) - 0.5
	fy := sv*float64(s.raster.Height) - 0.5
	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	tx := fx - float64(x0)
	ty := fy - float64(y0)

	r00 := s.raster.Red(x0, y0)
	r10 := s.raster.Red(x0+1, y0)
	r01 := s.raster.Red(x0, y0+1)
	r11 := s.raster.Red(x0+1, y0+1)

	top := r00*(1-tx) + r10*tx
	bottom := r01*(1-tx) + r11*tx
	return top*(1-ty) + bottom*ty
}

func (m *SkyMaterial) checkObjectIndex(index int) error {
	if index < 0 || index >= m.shape.objects {
		return fmt.Errorf("%w: object index %d outside [0, %d)",
			errs.ErrInvalidArgument, index, m.shape.objects)
	}
	return nil
}

func (m *SkyMaterial) checkObjectBound(index int) error {
	if err := m.checkObjectIndex(index); err != nil {
		return err
	}
	if m.objects[index].state == SlotUnconfigured {
		return fmt.Errorf("%w: object %d has no texture bound", errs.ErrIllegalState, index)
	}
	return nil
}

func (m *SkyMaterial) checkLayerIndex(layer int) error {
	if layer < 0 || layer >= m.shape.layers {
		return fmt.Errorf("%w: cloud layer %d outside [0, %d)",
			errs.ErrInvalidArgument, layer, m.shape.layers)
	}
	return nil
}

func (m *SkyMaterial) checkLayerBound(layer int) error {
	if err := m.checkLayerIndex(layer); err != nil {
		return err
	}
	if !m.clouds[layer].bound {
		return fmt.Errorf("%w: cloud layer %d has no texture bound", errs.ErrIllegalState, layer)
	}
	return nil
}

// wrapUnit wraps a coordinate into [0, 1).
func wrapUnit(x float64) float64 {
	x = math.Mod(x, 1)
	if x < 0 {
		x++
	}
	return x
}
