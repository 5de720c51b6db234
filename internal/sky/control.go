package sky

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"Celestial3D/internal/astro"
	"Celestial3D/internal/dome"
	"Celestial3D/internal/errs"
)

// Blending thresholds and scales for the per-frame lighting state machine.
const (
	// twilightLimit is the sine-of-altitude below which the sun no longer
	// contributes direct light; the day fraction fades across it.
	twilightLimit = 0.1
	// sunBlendLimit is the sine-of-altitude at which the base color has
	// fully blended from twilight to sunlight.
	sunBlendLimit = 0.25
	// nightBlendLimit is the (negative) sine-of-altitude depth at which
	// the base color has fully blended from twilight to night.
	nightBlendLimit = 0.04
	// moonlessDarkening keeps the fraction of cloud brightness left when
	// both the sun and the moon are below the horizon.
	moonlessDarkening = 0.25
	// bloomScale and bloomMax shape the recommended bloom intensity from
	// the sine of the solar altitude.
	bloomScale = 6.0
	bloomMax   = 1.7
	// moonRotationDelta is the ecliptic-latitude step used to probe the
	// moon's orbital north on the dome.
	moonRotationDelta = 0.02
)

// Light source colors blended into the base lighting color.
var (
	ColorSunlight  = mgl64.Vec3{0.8, 0.78, 0.72}
	ColorTwilight  = mgl64.Vec3{0.49, 0.24, 0.1}
	ColorMoonlight = mgl64.Vec3{0.24, 0.27, 0.38}
	ColorStarlight = mgl64.Vec3{0.03, 0.03, 0.05}
)

// starlightDirection is the dominant light direction when neither sun nor
// moon contributes. Slightly off vertical so shadow maps don't alias.
var starlightDirection = mgl64.Vec3{1, 9, 1}.Normalize()

// LunarPhase selects the moon's fixed celestial-longitude offset from the
// sun. PhaseCustom is driven by SetPhaseAngle instead.
type LunarPhase int

const (
	PhaseNew LunarPhase = iota
	PhaseWaxingCrescent
	PhaseFirstQuarter
	PhaseWaxingGibbous
	PhaseFull
	PhaseWaningGibbous
	PhaseLastQuarter
	PhaseWaningCrescent
	PhaseCustom
)

var phaseNames = [...]string{
	"new", "waxing-crescent", "first-quarter", "waxing-gibbous",
	"full", "waning-gibbous", "last-quarter", "waning-crescent", "custom",
}

func (p LunarPhase) String() string {
	if p < PhaseNew || p > PhaseCustom {
		return fmt.Sprintf("LunarPhase(%d)", int(p))
	}
	return phaseNames[p]
}

// LongitudeDifference returns the phase's celestial-longitude offset from
// the sun in radians. PhaseCustom has no fixed offset and returns NaN.
func (p LunarPhase) LongitudeDifference() float64 {
	if p == PhaseCustom {
		return math.NaN()
	}
	return float64(p) * math.Pi / 4
}

// LightingSnapshot is the per-frame output handed to the lighting sink.
type LightingSnapshot struct {
	Ambient         mgl64.Vec3
	Background      mgl64.Vec3
	MainColor       mgl64.Vec3
	MainDirection   mgl64.Vec3 // unit vector
	ShadowIntensity float64    // [0, 1]
	BloomIntensity  float64    // [0, 1.7]
}

// LightingSink receives one lighting snapshot per update.
type LightingSink interface {
	ApplyLighting(snapshot LightingSnapshot)
}

// SceneAttachment attaches the generated sky geometry to a host scene. The
// host scales the sub-tree so it lies within its view-frustum bounds.
// Enable attaches, Disable detaches; nothing else touches it.
type SceneAttachment interface {
	Attach(geometry *DomeGeometry) error
	Detach()
}

// DomeGeometry is the generated sky geometry handed to the attachment.
type DomeGeometry struct {
	TopDome         *dome.Mesh
	BottomCap       *dome.Mesh // nil unless the bottom dome is configured
	StarOrientation mgl64.Quat // equatorial-to-world, identity unless stars move
}

// Config fixes a sky control's structural parameters at construction.
type Config struct {
	// CloudFlattening squashes the notional cloud dome vertically, in
	// [0, 1). 0 leaves it hemispherical.
	CloudFlattening float64
	// StarMotion wheels the star dome with sidereal time.
	StarMotion bool
	// BottomDome adds a flat cap under the horizon.
	BottomDome bool
	// RimSamples and QuadrantSamples set the dome mesh density.
	RimSamples      int
	QuadrantSamples int
	// CloudModulation lets cloud transmittance dim the main light.
	CloudModulation bool
	// RelativeCloudSpeed scales elapsed time for cloud drift. May be
	// negative, reversing the drift.
	RelativeCloudSpeed float64
	// Cloudiness is the initial opacity applied to every cloud layer.
	Cloudiness float64
	// SolarDiameter and LunarDiameter are angular diameters in radians.
	// Both default well above the astronomical value; the real ~0.009 rad
	// reads as a pinprick on screen.
	SolarDiameter float64
	LunarDiameter float64
	// Phase selects the lunar phase at construction.
	Phase LunarPhase
	// CloudLayers is the number of layer slots to allocate.
	CloudLayers int
}

// DefaultConfig returns the configuration the original scene shipped with.
func DefaultConfig() Config {
	return Config{
		CloudFlattening:    0.1,
		StarMotion:         false,
		BottomDome:         false,
		RimSamples:         60,
		QuadrantSamples:    16,
		CloudModulation:    true,
		RelativeCloudSpeed: 1,
		Cloudiness:         0.5,
		SolarDiameter:      0.12,
		LunarDiameter:      0.12,
		Phase:              PhaseFull,
		CloudLayers:        2,
	}
}

// Object slot assignments inside the material.
const (
	sunSlot  = 0
	moonSlot = 1
	// objectSlots is the number of object slots a control asks its
	// material for.
	objectSlots = 2
)

// SkyControl is the per-frame orchestrator: it combines the time-and-place
// model, the dome projection and the material state into one lighting
// snapshot per update and forwards it to the lighting sink.
//
// A control starts Disabled: geometry is not attached and Update does no
// per-frame work. Enable attaches the generated geometry to the host scene.
type SkyControl struct {
	cfg        Config
	sun        *astro.SunAndStars
	mesh       *dome.Mesh
	projection dome.Projection
	material   *SkyMaterial
	layers     []*CloudLayer

	attachment SceneAttachment
	sink       LightingSink
	geometry   *DomeGeometry

	enabled      bool
	cloudTime    float64
	cloudsYBias  float64
	phaseAngle   float64 // used when cfg.Phase == PhaseCustom
	log          *zap.Logger
}

// NewSkyControl builds a disabled sky control. The attachment may be nil, in
// which case Enable fails; the sink must not be nil. Default sun and moon
// discs are bound so the control works without any texture assets.
func NewSkyControl(cfg Config, attachment SceneAttachment, sink LightingSink, log *zap.Logger) (*SkyControl, error) {
	if sink == nil {
		return nil, fmt.Errorf("%w: nil lighting sink", errs.ErrInvalidArgument)
	}
	if !(cfg.CloudFlattening >= 0 && cfg.CloudFlattening < 1) {
		return nil, fmt.Errorf("%w: cloud flattening %g outside [0, 1)",
			errs.ErrInvalidArgument, cfg.CloudFlattening)
	}
	if !(cfg.SolarDiameter > 0) || !(cfg.LunarDiameter > 0) {
		return nil, fmt.Errorf("%w: angular diameters must be positive", errs.ErrInvalidArgument)
	}
	if cfg.Phase < PhaseNew || cfg.Phase > PhaseCustom {
		return nil, fmt.Errorf("%w: unknown lunar phase %d", errs.ErrInvalidArgument, int(cfg.Phase))
	}
	if log == nil {
		log = zap.NewNop()
	}

	mesh, err := dome.New(cfg.RimSamples, cfg.QuadrantSamples, 0.5, 0.5, 0.44, true, log)
	if err != nil {
		return nil, err
	}
	material, err := NewSkyMaterial(mesh.Projection(), objectSlots, cfg.CloudLayers, log)
	if err != nil {
		return nil, err
	}

	c := &SkyControl{
		cfg:        cfg,
		sun:        astro.New(log),
		mesh:       mesh,
		projection: mesh.Projection(),
		material:   material,
		attachment: attachment,
		sink:       sink,
		log:        log,
	}

	for i := 0; i < material.MaxCloudLayers(); i++ {
		c.layers = append(c.layers, newCloudLayer(material, i))
	}
	if err := c.SetCloudiness(cfg.Cloudiness); err != nil {
		return nil, err
	}

	disc := makeDiscRaster(64)
	if err := material.AddObject(sunSlot, disc); err != nil {
		return nil, err
	}
	if err := material.AddObject(moonSlot, disc); err != nil {
		return nil, err
	}

	geometry := &DomeGeometry{TopDome: mesh, StarOrientation: mgl64.QuatIdent()}
	if cfg.BottomDome {
		geometry.BottomCap, err = dome.NewBottomCap(cfg.RimSamples, log)
		if err != nil {
			return nil, err
		}
	}
	c.geometry = geometry

	log.Info("sky control created",
		zap.Int("cloudLayers", material.MaxCloudLayers()),
		zap.String("phase", cfg.Phase.String()),
		zap.Bool("cloudModulation", cfg.CloudModulation))
	return c, nil
}

// SunAndStars exposes the time-and-place model for the host's time-of-day
// driver (hour, latitude, solar longitude setters).
func (c *SkyControl) SunAndStars() *astro.SunAndStars {
	return c.sun
}

// Material exposes the shading state, mainly so hosts can bind their own
// sun, moon and cloud textures.
func (c *SkyControl) Material() *SkyMaterial {
	return c.material
}

// CloudLayer returns the animation state of one cloud layer.
func (c *SkyControl) CloudLayer(index int) (*CloudLayer, error) {
	if index < 0 || index >= len(c.layers) {
		return nil, fmt.Errorf("%w: cloud layer %d outside [0, %d)",
			errs.ErrInvalidArgument, index, len(c.layers))
	}
	return c.layers[index], nil
}

// Geometry returns the generated sky geometry.
func (c *SkyControl) Geometry() *DomeGeometry {
	return c.geometry
}

// Enabled reports whether per-frame updates run.
func (c *SkyControl) Enabled() bool {
	return c.enabled
}

// Enable attaches the sky geometry to the host scene and starts per-frame
// work. It fails with ErrIllegalState when no attachment point exists.
func (c *SkyControl) Enable() error {
	if c.enabled {
		return nil
	}
	if c.attachment == nil {
		return fmt.Errorf("%w: no scene attachment", errs.ErrIllegalState)
	}
	if err := c.attachment.Attach(c.geometry); err != nil {
		return fmt.Errorf("attaching sky geometry: %w", err)
	}
	c.enabled = true
	c.log.Info("sky control enabled")
	return nil
}

// Disable detaches the sky geometry and stops per-frame work.
func (c *SkyControl) Disable() {
	if !c.enabled {
		return
	}
	c.attachment.Detach()
	c.enabled = false
	c.log.Info("sky control disabled")
}

// SetCloudiness applies one opacity to every cloud layer. The value must
// lie in [0, 1].
func (c *SkyControl) SetCloudiness(cloudiness float64) error {
	if !(cloudiness >= 0 && cloudiness <= 1) {
		return fmt.Errorf("%w: cloudiness %g outside [0, 1]", errs.ErrInvalidArgument, cloudiness)
	}
	for _, layer := range c.layers {
		if err := layer.SetOpacity(cloudiness); err != nil {
			return err
		}
	}
	return nil
}

// SetCloudsYOffset raises (positive) or lowers the notional cloud dome used
// for light modulation, as a fraction of the dome radius. The offset must
// keep the observer inside the dome.
func (c *SkyControl) SetCloudsYOffset(offset float64) error {
	squash := 1 - c.cfg.CloudFlattening
	if !(offset > -squash && offset < squash) {
		return fmt.Errorf("%w: clouds y-offset %g outside (-%g, %g)",
			errs.ErrInvalidArgument, offset, squash, squash)
	}
	c.cloudsYBias = offset
	return nil
}

// SetPhase selects a preset lunar phase.
func (c *SkyControl) SetPhase(phase LunarPhase) error {
	if phase < PhaseNew || phase > PhaseCustom {
		return fmt.Errorf("%w: unknown lunar phase %d", errs.ErrInvalidArgument, int(phase))
	}
	c.cfg.Phase = phase
	return nil
}

// SetPhaseAngle drives the moon's longitude offset from the sun directly,
// in [0, 2*pi]. Only consulted while the phase is PhaseCustom.
func (c *SkyControl) SetPhaseAngle(angle float64) error {
	if !(angle >= 0 && angle <= 2*math.Pi) {
		return fmt.Errorf("%w: phase angle %g outside [0, 2*pi]", errs.ErrInvalidArgument, angle)
	}
	c.phaseAngle = math.Mod(angle, 2*math.Pi)
	return nil
}

// SetSolarDiameter sets the sun's angular diameter in radians.
func (c *SkyControl) SetSolarDiameter(diameter float64) error {
	if !(diameter > 0) {
		return fmt.Errorf("%w: diameter %g must be positive", errs.ErrInvalidArgument, diameter)
	}
	c.cfg.SolarDiameter = diameter
	return nil
}

// SetLunarDiameter sets the moon's angular diameter in radians.
func (c *SkyControl) SetLunarDiameter(diameter float64) error {
	if !(diameter > 0) {
		return fmt.Errorf("%w: diameter %g must be positive", errs.ErrInvalidArgument, diameter)
	}
	c.cfg.LunarDiameter = diameter
	return nil
}

// SetCloudModulation toggles cloud transmittance dimming the main light.
func (c *SkyControl) SetCloudModulation(enabled bool) {
	c.cfg.CloudModulation = enabled
}

// SetStarMotion toggles the star dome wheeling with sidereal time. Turning
// it off parks the dome at the identity orientation.
func (c *SkyControl) SetStarMotion(enabled bool) {
	c.cfg.StarMotion = enabled
	if !enabled {
		c.geometry.StarOrientation = mgl64.QuatIdent()
	}
}

// phaseAngleNow returns the moon's current longitude offset from the sun.
func (c *SkyControl) phaseAngleNow() float64 {
	if c.cfg.Phase == PhaseCustom {
		return c.phaseAngle
	}
	return c.cfg.Phase.LongitudeDifference()
}

// Update advances the sky by elapsed seconds (>= 0) and emits one lighting
// snapshot. While the control is disabled this does nothing.
func (c *SkyControl) Update(elapsed float64) error {
	if !(elapsed >= 0) {
		return fmt.Errorf("%w: elapsed %g must be >= 0", errs.ErrInvalidArgument, elapsed)
	}
	if !c.enabled {
		return nil
	}

	// 1. cloud animation
	c.cloudTime += elapsed * c.cfg.RelativeCloudSpeed
	for _, layer := range c.layers {
		if _, _, err := layer.Offset(); err != nil {
			continue // layer never bound, nothing to animate
		}
		if err := layer.UpdateOffset(c.cloudTime); err != nil {
			return err
		}
	}

	// 2. sun placement
	sunDirection := c.sun.SunDirection()
	sinSolarAltitude := sunDirection.Y()
	if u, v, ok := c.projection.DirectionUV(sunDirection); ok {
		err := c.material.SetObjectTransform(sunSlot, mgl64.Vec2{u, v}, c.objectScale(c.cfg.SolarDiameter), nil)
		if err != nil {
			return err
		}
	} else if err := c.material.HideObject(sunSlot); err != nil {
		return err
	}

	// 3. moon placement
	moonLongitude := wrapAngle(c.sun.SolarLongitude() + c.phaseAngleNow())
	moonDirection := c.sun.ConvertToWorld(0, moonLongitude)
	moonUp := moonDirection.Y() > 0
	if u, v, ok := c.projection.DirectionUV(moonDirection); ok {
		rotation := c.moonRotation(moonLongitude, mgl64.Vec2{u, v})
		err := c.material.SetObjectTransform(moonSlot, mgl64.Vec2{u, v}, c.objectScale(c.cfg.LunarDiameter), rotation)
		if err != nil {
			return err
		}
	} else if err := c.material.HideObject(moonSlot); err != nil {
		return err
	}

	// 4. day fraction fades the clear-sky color
	dayFraction := clamp01(1 + sinSolarAltitude/twilightLimit)
	clear := c.material.ClearColor()
	c.material.SetClearColor(mgl64.Vec4{clear.X(), clear.Y(), clear.Z(), dayFraction})

	// 5. base lighting color
	moonFraction := 0.0
	if moonUp {
		moonFraction = illuminatedFraction(c.phaseAngleNow())
	}
	base := baseLightColor(sinSolarAltitude, moonFraction)

	// 6. cloud color
	cloud := saturate(base)
	if sinSolarAltitude <= 0 && !moonUp {
		cloud = cloud.Mul(moonlessDarkening)
	}
	for _, layer := range c.layers {
		if _, _, err := layer.Offset(); err != nil {
			continue
		}
		if err := layer.SetColor(cloud); err != nil {
			return err
		}
	}

	// 7. dominant light direction, modulated by cloud transmittance
	mainDirection := starlightDirection
	source := sourceStars
	if sinSolarAltitude > 0 {
		mainDirection = sunDirection
		source = sourceSun
	} else if moonUp && moonFraction > 0 {
		mainDirection = moonDirection
		source = sourceMoon
	}
	transmission := 1.0
	if c.cfg.CloudModulation && source != sourceStars {
		if hit, ok := c.cloudDomeIntersection(mainDirection); ok {
			if u, v, uvOK := c.projection.DirectionUV(hit); uvOK {
				transmission = c.material.Transmission(u, v)
			}
		}
	}

	// 8. main light color
	var main mgl64.Vec3
	switch source {
	case sourceSun:
		main = base.Mul(transmission * math.Cbrt(sinSolarAltitude))
	case sourceMoon:
		main = lerp3(ColorStarlight, ColorMoonlight, transmission*moonFraction)
	default:
		main = ColorStarlight
	}

	// 9. ambient takes the slack the main light leaves
	ambient := cloud.Mul(1 - maxChannel(main))

	// 10. recommended shadow intensity
	directionalEnergy := main.X() + main.Y() + main.Z()
	ambientEnergy := ambient.X() + ambient.Y() + ambient.Z()
	shadow := 0.0
	if total := directionalEnergy + ambientEnergy; total > 0 {
		shadow = directionalEnergy / total
	}

	// 11. recommended bloom intensity
	bloom := math.Min(math.Max(bloomScale*sinSolarAltitude, 0), bloomMax)

	if c.cfg.StarMotion {
		c.geometry.StarOrientation = c.sun.Orientation()
	}

	// 12. hand the snapshot to the lighting sink
	c.sink.ApplyLighting(LightingSnapshot{
		Ambient:         ambient,
		Background:      base,
		MainColor:       main,
		MainDirection:   mainDirection,
		ShadowIntensity: shadow,
		BloomIntensity:  bloom,
	})
	return nil
}

type lightSource int

const (
	sourceStars lightSource = iota
	sourceSun
	sourceMoon
)

// moonRotation probes a point slightly north of the moon on the dome and
// normalizes the UV offset, so the moon texture's "up" tracks its orbital
// north. If the north probe falls off the dome, the south probe serves,
// flipped.
func (c *SkyControl) moonRotation(moonLongitude float64, moonUV mgl64.Vec2) *mgl64.Vec2 {
	north := c.sun.ConvertToWorld(moonRotationDelta, moonLongitude)
	if u, v, ok := c.projection.DirectionUV(north); ok {
		return normalizedOffset(mgl64.Vec2{u, v}.Sub(moonUV))
	}
	south := c.sun.ConvertToWorld(-moonRotationDelta, moonLongitude)
	if u, v, ok := c.projection.DirectionUV(south); ok {
		return normalizedOffset(moonUV.Sub(mgl64.Vec2{u, v}))
	}
	return nil
}

// cloudDomeIntersection intersects a light direction with the cloud dome, a
// unit dome squashed vertically by (1 - flattening) and shifted by the
// clouds y-offset. It returns the unsquashed unit direction of the hit, so
// the caller can project it to UV with the ordinary dome projection.
func (c *SkyControl) cloudDomeIntersection(dir mgl64.Vec3) (mgl64.Vec3, bool) {
	squash := 1 - c.cfg.CloudFlattening
	yOff := c.cloudsYBias

	horizontalSq := dir.X()*dir.X() + dir.Z()*dir.Z()
	var t float64
	if horizontalSq < 1e-12 {
		// straight up (or down): the quadratic degenerates
		if dir.Y() <= 0 {
			return mgl64.Vec3{}, false
		}
		t = (yOff + squash) / dir.Y()
	} else {
		dy := dir.Y() / squash
		a := horizontalSq + dy*dy
		b := -2 * dy * yOff / squash
		cc := yOff*yOff/(squash*squash) - 1
		disc := b*b - 4*a*cc
		if disc < 0 {
			return mgl64.Vec3{}, false
		}
		t = (-b + math.Sqrt(disc)) / (2 * a) // most positive root
	}
	if t <= 0 {
		return mgl64.Vec3{}, false
	}

	hit := dir.Mul(t)
	return mgl64.Vec3{hit.X(), (hit.Y() - yOff) / squash, hit.Z()}, true
}

// objectScale converts an angular diameter to the transform scale the
// material expects: the UV footprint of that many radians.
func (c *SkyControl) objectScale(diameter float64) float64 {
	return c.projection.UVScale * diameter / (math.Pi / 2)
}

// baseLightColor blends the light-source colors for a given sine of solar
// altitude. moonFraction is the moon's illuminated fraction, already zeroed
// when the moon is below the horizon.
func baseLightColor(sinSolarAltitude, moonFraction float64) mgl64.Vec3 {
	if sinSolarAltitude >= 0 {
		return lerp3(ColorTwilight, ColorSunlight, clamp01(sinSolarAltitude/sunBlendLimit))
	}
	night := lerp3(ColorStarlight, ColorMoonlight, moonFraction)
	return lerp3(ColorTwilight, night, clamp01(-sinSolarAltitude/nightBlendLimit))
}

// illuminatedFraction maps a phase angle (moon's longitude offset from the
// sun) to the illuminated fraction of the disc: 0 when new, 1 when full.
func illuminatedFraction(phaseAngle float64) float64 {
	return (1 - math.Cos(phaseAngle)) / 2
}

// saturate scales a color so its maximum channel is 1. Black stays black.
func saturate(color mgl64.Vec3) mgl64.Vec3 {
	m := maxChannel(color)
	if m <= 0 {
		return color
	}
	return color.Mul(1 / m)
}

func maxChannel(color mgl64.Vec3) float64 {
	return math.Max(color.X(), math.Max(color.Y(), color.Z()))
}

func lerp3(from, to mgl64.Vec3, t float64) mgl64.Vec3 {
	return from.Add(to.Sub(from).Mul(t))
}

func wrapAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}

func normalizedOffset(offset mgl64.Vec2) *mgl64.Vec2 {
	length := offset.Len()
	if length == 0 {
		return nil
	}
	unit := offset.Mul(1 / length)
	return &unit
}

// makeDiscRaster draws a soft white disc, the built-in stand-in for sun and
// moon textures.
func makeDiscRaster(size int) *Raster {
	raster := NewRaster(size, size)
	center := float64(size-1) / 2
	radius := float64(size) * 0.45
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			d := math.Hypot(float64(x)-center, float64(y)-center)
			level := uint8(255 * clamp01((radius-d)/(radius*0.15)))
			raster.SetPixel(x, y, level, level, level, level)
		}
	}
	return raster
}
