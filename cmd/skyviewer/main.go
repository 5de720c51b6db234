// Command skyviewer runs the sky simulation in a window, painting the
// current background color each frame. It is a smoke-test harness for the
// lighting pipeline rather than a full renderer: the lighting snapshot
// drives the clear color, and the dome geometry statistics land in the log.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"go.uber.org/zap"

	"Celestial3D/internal/config"
	"Celestial3D/internal/logger"
	"Celestial3D/internal/sky"
)

func init() {
	runtime.LockOSThread()
}

var flagConfig = flag.String("config", "", "path to skyviewer.yaml")

func main() {
	flag.Parse()

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.LogFile)
	log := logger.Log

	control, sink, err := buildSky(cfg, log)
	if err != nil {
		log.Fatal("building sky", zap.Error(err))
	}

	if err := glfw.Init(); err != nil {
		log.Fatal("initializing glfw", zap.Error(err))
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.Decorated, glfw.True)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)

	window, err := glfw.CreateWindow(cfg.Window.Width, cfg.Window.Height, cfg.Window.Title, nil, nil)
	if err != nil {
		log.Fatal("creating window", zap.Error(err))
	}
	window.MakeContextCurrent()
	if err := gl.Init(); err != nil {
		log.Fatal("initializing OpenGL", zap.Error(err))
	}

	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			w.SetShouldClose(true)
		}
	})

	if err := control.Enable(); err != nil {
		log.Fatal("enabling sky", zap.Error(err))
	}
	defer control.Disable()

	hour := cfg.Sky.Hour
	last := time.Now()
	for !window.ShouldClose() {
		now := time.Now()
		elapsed := now.Sub(last).Seconds()
		last = now

		hour = math.Mod(hour+elapsed*cfg.Sky.HoursPerSecond, 24)
		if err := control.SunAndStars().SetHour(hour); err != nil {
			log.Fatal("advancing hour", zap.Error(err))
		}
		if err := control.Update(elapsed); err != nil {
			log.Fatal("updating sky", zap.Error(err))
		}

		// The clear sky fades between the daytime clear color and the
		// base lighting color.
		clear := control.Material().ClearColor()
		base := sink.snapshot.Background
		r := base.X() + (clear.X()-base.X())*clear.W()
		g := base.Y() + (clear.Y()-base.Y())*clear.W()
		b := base.Z() + (clear.Z()-base.Z())*clear.W()
		gl.ClearColor(float32(r), float32(g), float32(b), 1)
		gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)

		window.SwapBuffers()
		glfw.PollEvents()
	}
}

// buildSky assembles the control from the loaded configuration.
func buildSky(cfg *config.Config, log *zap.Logger) (*sky.SkyControl, *latestSink, error) {
	phase, err := parsePhase(cfg.Sky.Phase)
	if err != nil {
		return nil, nil, err
	}

	skyCfg := sky.Config{
		CloudFlattening:    cfg.Clouds.Flattening,
		StarMotion:         cfg.Sky.StarMotion,
		BottomDome:         cfg.Sky.BottomDome,
		RimSamples:         cfg.Sky.RimSamples,
		QuadrantSamples:    cfg.Sky.QuadrantSamples,
		CloudModulation:    cfg.Clouds.Modulation,
		RelativeCloudSpeed: cfg.Clouds.RelativeSpeed,
		Cloudiness:         cfg.Clouds.Cloudiness,
		SolarDiameter:      cfg.Sky.SolarDiameter,
		LunarDiameter:      cfg.Sky.LunarDiameter,
		Phase:              phase,
		CloudLayers:        len(cfg.Clouds.Layers),
	}
	if skyCfg.CloudLayers == 0 {
		skyCfg.CloudLayers = 1
	}

	sink := &latestSink{}
	control, err := sky.NewSkyControl(skyCfg, &logAttachment{log: log}, sink, log)
	if err != nil {
		return nil, nil, err
	}

	stars := control.SunAndStars()
	if err := stars.SetObserverLatitude(cfg.Sky.LatitudeDegrees * math.Pi / 180); err != nil {
		return nil, nil, err
	}
	if err := stars.SetSolarLongitudeForDay(time.Month(cfg.Sky.Month), cfg.Sky.Day); err != nil {
		return nil, nil, err
	}
	if err := stars.SetHour(cfg.Sky.Hour); err != nil {
		return nil, nil, err
	}

	for i, layerCfg := range cfg.Clouds.Layers {
		layer, err := control.CloudLayer(i)
		if err != nil {
			return nil, nil, err
		}
		raster, err := sky.GenerateCloudRaster(layerCfg.Size, layerCfg.Seed, layerCfg.Density)
		if err != nil {
			return nil, nil, err
		}
		if err := layer.SetRaster(raster, layerCfg.Scale); err != nil {
			return nil, nil, err
		}
		layer.SetMotion(0, 0, layerCfg.DriftU, layerCfg.DriftV)
	}

	return control, sink, nil
}

func parsePhase(name string) (sky.LunarPhase, error) {
	for p := sky.PhaseNew; p <= sky.PhaseCustom; p++ {
		if strings.EqualFold(p.String(), name) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown lunar phase %q", name)
}

// latestSink keeps only the most recent snapshot; the render loop reads it
// right after each update.
type latestSink struct {
	snapshot sky.LightingSnapshot
}

func (s *latestSink) ApplyLighting(snapshot sky.LightingSnapshot) {
	s.snapshot = snapshot
}

// logAttachment reports the generated geometry instead of uploading it.
type logAttachment struct {
	log *zap.Logger
}

func (a *logAttachment) Attach(geometry *sky.DomeGeometry) error {
	a.log.Info("sky geometry attached",
		zap.Int("vertices", geometry.TopDome.VertexCount()),
		zap.Int("triangles", geometry.TopDome.TriangleCount()),
		zap.Bool("bottomCap", geometry.BottomCap != nil))
	return nil
}

func (a *logAttachment) Detach() {
	a.log.Info("sky geometry detached")
}
