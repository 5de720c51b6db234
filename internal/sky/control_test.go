package sky

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"Celestial3D/internal/errs"
)

type stubAttachment struct {
	attached int
	detached int
	geometry *DomeGeometry
}

func (s *stubAttachment) Attach(geometry *DomeGeometry) error {
	s.attached++
	s.geometry = geometry
	return nil
}

func (s *stubAttachment) Detach() {
	s.detached++
}

type captureSink struct {
	snapshots []LightingSnapshot
}

func (s *captureSink) ApplyLighting(snapshot LightingSnapshot) {
	s.snapshots = append(s.snapshots, snapshot)
}

func (s *captureSink) last(t *testing.T) LightingSnapshot {
	t.Helper()
	if len(s.snapshots) == 0 {
		t.Fatal("no lighting snapshot emitted")
	}
	return s.snapshots[len(s.snapshots)-1]
}

func newTestControl(t *testing.T, cfg Config) (*SkyControl, *stubAttachment, *captureSink) {
	t.Helper()
	attachment := &stubAttachment{}
	sink := &captureSink{}
	c, err := NewSkyControl(cfg, attachment, sink, nil)
	if err != nil {
		t.Fatalf("NewSkyControl: %v", err)
	}
	return c, attachment, sink
}

func vec3Near(a, b mgl64.Vec3, tolerance float64) bool {
	return a.Sub(b).Len() <= tolerance
}

func TestControlConfigValidation(t *testing.T) {
	sink := &captureSink{}
	if _, err := NewSkyControl(DefaultConfig(), nil, nil, nil); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("nil sink: err = %v, want ErrInvalidArgument", err)
	}
	cfg := DefaultConfig()
	cfg.CloudFlattening = 1
	if _, err := NewSkyControl(cfg, nil, sink, nil); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("flattening 1: err = %v, want ErrInvalidArgument", err)
	}
	cfg = DefaultConfig()
	cfg.SolarDiameter = 0
	if _, err := NewSkyControl(cfg, nil, sink, nil); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("zero solar diameter: err = %v, want ErrInvalidArgument", err)
	}
	cfg = DefaultConfig()
	cfg.Phase = LunarPhase(42)
	if _, err := NewSkyControl(cfg, nil, sink, nil); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("unknown phase: err = %v, want ErrInvalidArgument", err)
	}
}

func TestEnableRequiresAttachment(t *testing.T) {
	sink := &captureSink{}
	c, err := NewSkyControl(DefaultConfig(), nil, sink, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Enable(); !errors.Is(err, errs.ErrIllegalState) {
		t.Errorf("Enable without attachment: err = %v, want ErrIllegalState", err)
	}
	if c.Enabled() {
		t.Error("control enabled after failed Enable")
	}
}

func TestEnableDisableAttachesGeometry(t *testing.T) {
	c, attachment, _ := newTestControl(t, DefaultConfig())
	if err := c.Enable(); err != nil {
		t.Fatal(err)
	}
	if attachment.attached != 1 {
		t.Errorf("attach count = %d, want 1", attachment.attached)
	}
	if attachment.geometry == nil || attachment.geometry.TopDome == nil {
		t.Fatal("no dome geometry attached")
	}
	// Enable is idempotent.
	if err := c.Enable(); err != nil {
		t.Fatal(err)
	}
	if attachment.attached != 1 {
		t.Errorf("attach count after second Enable = %d, want 1", attachment.attached)
	}
	c.Disable()
	if attachment.detached != 1 {
		t.Errorf("detach count = %d, want 1", attachment.detached)
	}
	c.Disable()
	if attachment.detached != 1 {
		t.Errorf("detach count after second Disable = %d, want 1", attachment.detached)
	}
}

func TestBottomDomeGeometry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BottomDome = true
	c, _, _ := newTestControl(t, cfg)
	if c.Geometry().BottomCap == nil {
		t.Error("bottom dome configured but no cap generated")
	}
	cfg.BottomDome = false
	c, _, _ = newTestControl(t, cfg)
	if c.Geometry().BottomCap != nil {
		t.Error("bottom cap generated without bottom dome")
	}
}

func TestUpdateRejectsNegativeElapsed(t *testing.T) {
	c, _, sink := newTestControl(t, DefaultConfig())
	// Validation applies even while disabled.
	if err := c.Update(-1); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("disabled, elapsed -1: err = %v, want ErrInvalidArgument", err)
	}
	if err := c.Enable(); err != nil {
		t.Fatal(err)
	}
	if err := c.Update(math.NaN()); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("elapsed NaN: err = %v, want ErrInvalidArgument", err)
	}
	if len(sink.snapshots) != 0 {
		t.Errorf("rejected updates emitted %d snapshots", len(sink.snapshots))
	}
}

func TestUpdateWhileDisabledDoesNothing(t *testing.T) {
	c, _, sink := newTestControl(t, DefaultConfig())
	if err := c.Update(1); err != nil {
		t.Fatal(err)
	}
	if len(sink.snapshots) != 0 {
		t.Errorf("disabled update emitted %d snapshots", len(sink.snapshots))
	}
}

func TestNoonSunlight(t *testing.T) {
	c, _, sink := newTestControl(t, DefaultConfig())
	if err := c.Enable(); err != nil {
		t.Fatal(err)
	}
	if err := c.SunAndStars().SetHour(12); err != nil {
		t.Fatal(err)
	}
	if err := c.Update(0); err != nil {
		t.Fatal(err)
	}
	snap := sink.last(t)

	sunDirection := c.SunAndStars().SunDirection()
	if !vec3Near(snap.MainDirection, sunDirection, 1e-12) {
		t.Errorf("main direction = %v, want sun direction %v", snap.MainDirection, sunDirection)
	}
	// At the default latitude the equinox noon sun is high enough for the
	// base color to be pure sunlight.
	sinAlt := sunDirection.Y()
	if sinAlt < 0.25 {
		t.Fatalf("test premise broken: noon sin(alt) = %g", sinAlt)
	}
	if !vec3Near(snap.Background, ColorSunlight, 1e-12) {
		t.Errorf("background = %v, want %v", snap.Background, ColorSunlight)
	}
	want := ColorSunlight.Mul(math.Cbrt(sinAlt))
	if !vec3Near(snap.MainColor, want, 1e-9) {
		t.Errorf("main color = %v, want %v", snap.MainColor, want)
	}
	if snap.BloomIntensity != bloomMax {
		t.Errorf("bloom = %g, want clamped %g", snap.BloomIntensity, bloomMax)
	}
	// The clear sky is fully opaque at noon.
	if alpha := c.Material().ClearColor().W(); alpha != 1 {
		t.Errorf("clear-color alpha = %g, want 1", alpha)
	}
	// The sun object sits on the dome.
	if state, _ := c.Material().ObjectState(sunSlot); state != SlotVisible {
		t.Errorf("sun slot state = %v, want SlotVisible", state)
	}
}

func TestMoonlessMidnightIsStarlit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Phase = PhaseNew
	c, _, sink := newTestControl(t, cfg)
	if err := c.Enable(); err != nil {
		t.Fatal(err)
	}
	if err := c.SunAndStars().SetHour(0); err != nil {
		t.Fatal(err)
	}
	if err := c.Update(0); err != nil {
		t.Fatal(err)
	}
	snap := sink.last(t)

	// A new moon travels with the sun, so at midnight both are down.
	if !vec3Near(snap.MainColor, ColorStarlight, 1e-12) {
		t.Errorf("main color = %v, want starlight %v", snap.MainColor, ColorStarlight)
	}
	if !vec3Near(snap.MainDirection, starlightDirection, 1e-12) {
		t.Errorf("main direction = %v, want %v", snap.MainDirection, starlightDirection)
	}
	if !vec3Near(snap.Background, ColorStarlight, 1e-12) {
		t.Errorf("background = %v, want starlight", snap.Background)
	}
	// Clouds darken when no moon lights them.
	wantCloud := saturate(ColorStarlight).Mul(moonlessDarkening)
	wantAmbient := wantCloud.Mul(1 - maxChannel(ColorStarlight))
	if !vec3Near(snap.Ambient, wantAmbient, 1e-12) {
		t.Errorf("ambient = %v, want %v", snap.Ambient, wantAmbient)
	}
	if alpha := c.Material().ClearColor().W(); alpha != 0 {
		t.Errorf("clear-color alpha = %g, want 0", alpha)
	}
	if snap.BloomIntensity != 0 {
		t.Errorf("bloom = %g, want 0", snap.BloomIntensity)
	}
	// Both discs are off the dome.
	if state, _ := c.Material().ObjectState(sunSlot); state != SlotHidden {
		t.Errorf("sun slot state = %v, want SlotHidden", state)
	}
	if state, _ := c.Material().ObjectState(moonSlot); state != SlotHidden {
		t.Errorf("moon slot state = %v, want SlotHidden", state)
	}
}

func TestFullMoonMidnight(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Phase = PhaseFull
	c, _, sink := newTestControl(t, cfg)
	if err := c.Enable(); err != nil {
		t.Fatal(err)
	}
	if err := c.SunAndStars().SetHour(0); err != nil {
		t.Fatal(err)
	}
	if err := c.Update(0); err != nil {
		t.Fatal(err)
	}
	snap := sink.last(t)

	if snap.MainDirection.Y() <= 0 {
		t.Fatalf("full moon at midnight should be up, direction = %v", snap.MainDirection)
	}
	// No clouds are bound, so the moon shines unfiltered.
	if !vec3Near(snap.MainColor, ColorMoonlight, 1e-9) {
		t.Errorf("main color = %v, want moonlight %v", snap.MainColor, ColorMoonlight)
	}
	if state, _ := c.Material().ObjectState(moonSlot); state != SlotVisible {
		t.Errorf("moon slot state = %v, want SlotVisible", state)
	}
}

func TestOvercastNoonKillsDirectLight(t *testing.T) {
	c, _, sink := newTestControl(t, DefaultConfig())
	if err := c.Enable(); err != nil {
		t.Fatal(err)
	}
	if err := c.SunAndStars().SetHour(12); err != nil {
		t.Fatal(err)
	}
	layer, err := c.CloudLayer(0)
	if err != nil {
		t.Fatal(err)
	}
	if err := layer.SetRaster(solidRaster(8, 255), 1); err != nil {
		t.Fatal(err)
	}
	if err := c.SetCloudiness(1); err != nil {
		t.Fatal(err)
	}
	if err := c.Update(0); err != nil {
		t.Fatal(err)
	}
	snap := sink.last(t)

	if !vec3Near(snap.MainColor, mgl64.Vec3{}, 1e-12) {
		t.Errorf("overcast main color = %v, want black", snap.MainColor)
	}
	if snap.ShadowIntensity != 0 {
		t.Errorf("overcast shadow intensity = %g, want 0", snap.ShadowIntensity)
	}
	// Ambient carries everything the main light lost.
	if maxChannel(snap.Ambient) <= 0 {
		t.Error("overcast ambient is black")
	}
}

func TestShadowIntensityIsEnergyRatio(t *testing.T) {
	c, _, sink := newTestControl(t, DefaultConfig())
	if err := c.Enable(); err != nil {
		t.Fatal(err)
	}
	for _, hour := range []float64{0, 6.5, 9, 12, 17.5, 21} {
		if err := c.SunAndStars().SetHour(hour); err != nil {
			t.Fatal(err)
		}
		if err := c.Update(0); err != nil {
			t.Fatal(err)
		}
		snap := sink.last(t)
		direct := snap.MainColor.X() + snap.MainColor.Y() + snap.MainColor.Z()
		ambient := snap.Ambient.X() + snap.Ambient.Y() + snap.Ambient.Z()
		want := 0.0
		if total := direct + ambient; total > 0 {
			want = direct / total
		}
		if math.Abs(snap.ShadowIntensity-want) > 1e-12 {
			t.Errorf("hour %g: shadow = %g, want %g", hour, snap.ShadowIntensity, want)
		}
		if snap.ShadowIntensity < 0 || snap.ShadowIntensity > 1 {
			t.Errorf("hour %g: shadow %g outside [0, 1]", hour, snap.ShadowIntensity)
		}
	}
}

func TestCloudModulationToggle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CloudModulation = false
	c, _, sink := newTestControl(t, cfg)
	if err := c.Enable(); err != nil {
		t.Fatal(err)
	}
	if err := c.SunAndStars().SetHour(12); err != nil {
		t.Fatal(err)
	}
	layer, err := c.CloudLayer(0)
	if err != nil {
		t.Fatal(err)
	}
	if err := layer.SetRaster(solidRaster(8, 255), 1); err != nil {
		t.Fatal(err)
	}
	if err := c.SetCloudiness(1); err != nil {
		t.Fatal(err)
	}
	if err := c.Update(0); err != nil {
		t.Fatal(err)
	}
	snap := sink.last(t)
	// Without modulation the overcast sky leaves the sun untouched.
	if maxChannel(snap.MainColor) <= 0 {
		t.Error("modulation disabled but main light dimmed")
	}
}

func TestCloudDriftThroughUpdate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RelativeCloudSpeed = 2
	c, _, _ := newTestControl(t, cfg)
	if err := c.Enable(); err != nil {
		t.Fatal(err)
	}
	layer, err := c.CloudLayer(0)
	if err != nil {
		t.Fatal(err)
	}
	if err := layer.SetRaster(solidRaster(8, 128), 1); err != nil {
		t.Fatal(err)
	}
	layer.SetMotion(0, 0, 0.001, 0)

	if err := c.Update(10); err != nil {
		t.Fatal(err)
	}
	u, _, err := layer.Offset()
	if err != nil {
		t.Fatal(err)
	}
	// 10 seconds at double speed and 0.001 cycles/s.
	if math.Abs(u-0.02) > 1e-9 {
		t.Errorf("offset after update = %g, want 0.02", u)
	}
}

func TestSetterValidation(t *testing.T) {
	c, _, _ := newTestControl(t, DefaultConfig())
	if err := c.SetCloudiness(1.5); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("cloudiness 1.5: err = %v, want ErrInvalidArgument", err)
	}
	if err := c.SetCloudsYOffset(2); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("y-offset 2: err = %v, want ErrInvalidArgument", err)
	}
	if err := c.SetPhase(LunarPhase(-1)); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("phase -1: err = %v, want ErrInvalidArgument", err)
	}
	if err := c.SetPhaseAngle(7); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("phase angle 7: err = %v, want ErrInvalidArgument", err)
	}
	if err := c.SetSolarDiameter(-0.1); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("negative diameter: err = %v, want ErrInvalidArgument", err)
	}
	if _, err := c.CloudLayer(99); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("layer 99: err = %v, want ErrInvalidArgument", err)
	}
}

func TestPhasePresets(t *testing.T) {
	if got := PhaseNew.LongitudeDifference(); got != 0 {
		t.Errorf("new moon offset = %g, want 0", got)
	}
	if got := PhaseFull.LongitudeDifference(); math.Abs(got-math.Pi) > 1e-12 {
		t.Errorf("full moon offset = %g, want pi", got)
	}
	if got := PhaseFirstQuarter.LongitudeDifference(); math.Abs(got-math.Pi/2) > 1e-12 {
		t.Errorf("first quarter offset = %g, want pi/2", got)
	}
	if !math.IsNaN(PhaseCustom.LongitudeDifference()) {
		t.Error("custom phase has a fixed offset")
	}

	if got := illuminatedFraction(0); got != 0 {
		t.Errorf("new moon fraction = %g, want 0", got)
	}
	if got := illuminatedFraction(math.Pi); got != 1 {
		t.Errorf("full moon fraction = %g, want 1", got)
	}
	if got := illuminatedFraction(math.Pi / 2); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("quarter fraction = %g, want 0.5", got)
	}
}

func TestBaseLightColorBlend(t *testing.T) {
	// Above the blend limit the color is pure sunlight.
	if got := baseLightColor(0.5, 0); !vec3Near(got, ColorSunlight, 1e-12) {
		t.Errorf("high sun = %v, want sunlight", got)
	}
	// On the horizon the color is pure twilight.
	if got := baseLightColor(0, 0); !vec3Near(got, ColorTwilight, 1e-12) {
		t.Errorf("horizon = %v, want twilight", got)
	}
	// Deep night without a moon is starlight.
	if got := baseLightColor(-0.5, 0); !vec3Near(got, ColorStarlight, 1e-12) {
		t.Errorf("moonless night = %v, want starlight", got)
	}
	// Deep night under a full moon is moonlight.
	if got := baseLightColor(-0.5, 1); !vec3Near(got, ColorMoonlight, 1e-12) {
		t.Errorf("full-moon night = %v, want moonlight", got)
	}
	// Halfway into the night blend, halfway between twilight and night.
	got := baseLightColor(-nightBlendLimit/2, 0)
	want := lerp3(ColorTwilight, ColorStarlight, 0.5)
	if !vec3Near(got, want, 1e-12) {
		t.Errorf("half blend = %v, want %v", got, want)
	}
}

func TestCloudDomeIntersection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CloudFlattening = 0
	c, _, _ := newTestControl(t, cfg)

	// On an unsquashed dome every unit direction intersects at itself.
	for _, dir := range []mgl64.Vec3{
		{0, 1, 0},
		mgl64.Vec3{1, 1, 0}.Normalize(),
		mgl64.Vec3{-0.3, 0.5, 0.8}.Normalize(),
	} {
		hit, ok := c.cloudDomeIntersection(dir)
		if !ok {
			t.Fatalf("no intersection for %v", dir)
		}
		if !vec3Near(hit, dir, 1e-12) {
			t.Errorf("unsquashed hit for %v = %v", dir, hit)
		}
	}

	// A squashed dome still returns unit directions after unsquashing.
	cfg.CloudFlattening = 0.3
	c, _, _ = newTestControl(t, cfg)
	if err := c.SetCloudsYOffset(0.2); err != nil {
		t.Fatal(err)
	}
	for _, dir := range []mgl64.Vec3{
		{0, 1, 0},
		mgl64.Vec3{1, 0.2, 0}.Normalize(),
		mgl64.Vec3{0.1, 0.9, -0.4}.Normalize(),
	} {
		hit, ok := c.cloudDomeIntersection(dir)
		if !ok {
			t.Fatalf("no intersection for %v", dir)
		}
		if math.Abs(hit.Len()-1) > 1e-9 {
			t.Errorf("unsquashed hit for %v has length %g", dir, hit.Len())
		}
		// The hit stays on the same side as the ray.
		if dir.X() != 0 && math.Signbit(hit.X()) != math.Signbit(dir.X()) {
			t.Errorf("hit %v flipped sides from %v", hit, dir)
		}
	}

	// A raised dome shifts the straight-up hit to the dome top.
	cfg.CloudFlattening = 0
	c, _, _ = newTestControl(t, cfg)
	if err := c.SetCloudsYOffset(0.5); err != nil {
		t.Fatal(err)
	}
	hit, ok := c.cloudDomeIntersection(mgl64.Vec3{0, 1, 0})
	if !ok {
		t.Fatal("no intersection straight up")
	}
	if !vec3Near(hit, mgl64.Vec3{0, 1, 0}, 1e-12) {
		t.Errorf("raised dome top hit = %v, want (0, 1, 0)", hit)
	}
}

func TestStarOrientationTracksSiderealTime(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StarMotion = true
	c, _, _ := newTestControl(t, cfg)
	if err := c.Enable(); err != nil {
		t.Fatal(err)
	}
	if err := c.SunAndStars().SetHour(3); err != nil {
		t.Fatal(err)
	}
	if err := c.Update(0); err != nil {
		t.Fatal(err)
	}
	first := c.Geometry().StarOrientation
	if err := c.SunAndStars().SetHour(9); err != nil {
		t.Fatal(err)
	}
	if err := c.Update(0); err != nil {
		t.Fatal(err)
	}
	second := c.Geometry().StarOrientation
	if vec3Near(first.Rotate(mgl64.Vec3{1, 0, 0}), second.Rotate(mgl64.Vec3{1, 0, 0}), 1e-9) {
		t.Error("star orientation did not change over six hours")
	}
}

func TestMoonRotationIsUnit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Phase = PhaseFull
	c, _, _ := newTestControl(t, cfg)
	if err := c.SunAndStars().SetHour(0); err != nil {
		t.Fatal(err)
	}
	moonLongitude := wrapAngle(c.SunAndStars().SolarLongitude() + math.Pi)
	moonDirection := c.sun.ConvertToWorld(0, moonLongitude)
	u, v, ok := c.projection.DirectionUV(moonDirection)
	if !ok {
		t.Fatal("full moon at midnight is off the dome")
	}
	rotation := c.moonRotation(moonLongitude, mgl64.Vec2{u, v})
	if rotation == nil {
		t.Fatal("no rotation for an on-dome moon")
	}
	if math.Abs(rotation.Len()-1) > 1e-9 {
		t.Errorf("rotation pair length = %g, want 1", rotation.Len())
	}
}
