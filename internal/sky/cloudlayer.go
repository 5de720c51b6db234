package sky

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"Celestial3D/internal/errs"
)

// CloudLayer is the animation state of one cloud deck: an initial UV offset
// drifting at a fixed rate, plus the layer opacity. It writes through to the
// owning material's cloud slot, which uses the dome projection's UV
// convention.
type CloudLayer struct {
	material *SkyMaterial
	index    int
	opacity  float64
	u0, v0   float64 // initial offset
	uRate    float64 // drift, cycles per second
	vRate    float64
}

// newCloudLayer wires a layer to its material slot. Layers are created at
// construction by the sky control, one per configured slot.
func newCloudLayer(material *SkyMaterial, index int) *CloudLayer {
	return &CloudLayer{
		material: material,
		index:    index,
	}
}

// Index returns the layer's slot index.
func (c *CloudLayer) Index() int {
	return c.index
}

// SetTexture binds the alpha map at the given path with the given UV scale.
// Offset and scale defaults are reset only the first time the layer is bound.
func (c *CloudLayer) SetTexture(textures TextureService, path string, scale float64) error {
	raster, err := textures.LoadRaster(path)
	if err != nil {
		return err
	}
	return c.SetRaster(raster, scale)
}

// SetRaster binds an already loaded alpha map with the given UV scale.
func (c *CloudLayer) SetRaster(raster *Raster, scale float64) error {
	if err := c.material.AddClouds(c.index, raster); err != nil {
		return err
	}
	return c.material.SetCloudsScale(c.index, scale)
}

// ClearTexture binds the fully transparent placeholder, making the layer
// invisible regardless of opacity.
func (c *CloudLayer) ClearTexture() error {
	if err := c.material.AddClouds(c.index, transparentRaster); err != nil {
		return err
	}
	return c.material.ClearCloudTexture(c.index)
}

// SetOpacity sets the layer opacity. Alpha must lie in [0, 1].
func (c *CloudLayer) SetOpacity(alpha float64) error {
	if !(alpha >= 0 && alpha <= 1) {
		return fmt.Errorf("%w: opacity %g outside [0, 1]", errs.ErrInvalidArgument, alpha)
	}
	c.opacity = alpha
	return nil
}

// Opacity returns the layer opacity in [0, 1].
func (c *CloudLayer) Opacity() float64 {
	return c.opacity
}

// SetMotion sets the layer's initial UV offset and drift rate in cycles per
// second.
func (c *CloudLayer) SetMotion(u0, v0, uRate, vRate float64) {
	c.u0 = wrapUnit(u0)
	c.v0 = wrapUnit(v0)
	c.uRate = uRate
	c.vRate = vRate
}

// UpdateOffset moves the layer to its position at the given animation time:
// initial offset plus time times drift rate, wrapped into [0, 1) per axis.
func (c *CloudLayer) UpdateOffset(time float64) error {
	u := c.u0 + time*c.uRate
	v := c.v0 + time*c.vRate
	return c.material.SetCloudsOffset(c.index, u, v)
}

// SetColor combines the given RGB with the layer's current opacity as the
// alpha channel and forwards the result to the material.
func (c *CloudLayer) SetColor(rgb mgl64.Vec3) error {
	return c.material.SetCloudsColor(c.index, mgl64.Vec4{rgb.X(), rgb.Y(), rgb.Z(), c.opacity})
}

// Offset returns the layer's current UV offset as stored in the material.
func (c *CloudLayer) Offset() (u, v float64, err error) {
	if err := c.material.checkLayerBound(c.index); err != nil {
		return 0, 0, err
	}
	slot := &c.material.clouds[c.index]
	return slot.offsetU, slot.offsetV, nil
}
