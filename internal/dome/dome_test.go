package dome

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"Celestial3D/internal/errs"
)

func TestDirectionUVElevationRoundTrip(t *testing.T) {
	p, err := NewProjection(0.5, 0.5, 0.44)
	if err != nil {
		t.Fatal(err)
	}

	for elevation := 0.0; elevation <= math.Pi/2+1e-9; elevation += math.Pi / 36 {
		for azimuth := 0.0; azimuth < 2*math.Pi; azimuth += 0.5 {
			h := math.Cos(elevation)
			dir := mgl64.Vec3{h * math.Cos(azimuth), math.Sin(elevation), h * math.Sin(azimuth)}
			u, v, ok := p.DirectionUV(dir)
			if !ok {
				t.Fatalf("DirectionUV rejected elevation %g azimuth %g", elevation, azimuth)
			}
			got, err := p.ElevationAngle(u, v)
			if err != nil {
				t.Fatalf("ElevationAngle(%g, %g): %v", u, v, err)
			}
			if math.Abs(got-elevation) > 1e-6 {
				t.Errorf("round trip elevation %g -> %g (azimuth %g)", elevation, got, azimuth)
			}
		}
	}
}

func TestDirectionUVZenith(t *testing.T) {
	p, err := NewProjection(0.3, 0.7, 0.2)
	if err != nil {
		t.Fatal(err)
	}

	u, v, ok := p.DirectionUV(mgl64.Vec3{0, 1, 0})
	if !ok || u != 0.3 || v != 0.7 {
		t.Errorf("zenith mapped to (%g, %g, %v), want anchor (0.3, 0.7, true)", u, v, ok)
	}

	if _, _, ok := p.DirectionUV(mgl64.Vec3{0, -1, 0}); ok {
		t.Error("nadir should have no UV")
	}
	if _, _, ok := p.DirectionUV(mgl64.Vec3{}); ok {
		t.Error("zero vector should have no UV")
	}
}

func TestDirectionUVBelowRim(t *testing.T) {
	p, err := NewProjection(0.5, 0.5, 0.44)
	if err != nil {
		t.Fatal(err)
	}

	// Just below the horizon is still on the dome texture.
	if _, _, ok := p.DirectionUV(mgl64.Vec3{1, -0.05, 0}); !ok {
		t.Error("slightly below horizon should still project")
	}
	// Far below the rim leaves the unit square.
	if _, _, ok := p.DirectionUV(mgl64.Vec3{1, -0.9, 0}); ok {
		t.Error("far below horizon should have no UV")
	}
}

func TestDirectionUVInRange(t *testing.T) {
	p, err := NewProjection(0.5, 0.5, 0.3)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 500; i++ {
		a := float64(i) * 0.618
		b := float64(i) * 0.377
		dir := mgl64.Vec3{math.Cos(a) * math.Cos(b), math.Sin(b), math.Sin(a) * math.Cos(b)}
		u, v, ok := p.DirectionUV(dir)
		if ok && (u < 0 || u > 1 || v < 0 || v > 1) {
			t.Fatalf("valid UV (%g, %g) outside unit square for %v", u, v, dir)
		}
	}
}

func TestElevationAngleRejectsOutside(t *testing.T) {
	p, _ := NewProjection(0.5, 0.5, 0.44)
	if _, err := p.ElevationAngle(1.2, 0.5); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("got %v, want ErrInvalidArgument", err)
	}
	if _, err := p.ElevationAngle(0.5, -0.1); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("got %v, want ErrInvalidArgument", err)
	}
}

func TestMeshCounts(t *testing.T) {
	m, err := New(32, 8, 0.5, 0.5, 0.44, true, nil)
	if err != nil {
		t.Fatal(err)
	}

	wantVertices := 1 + 7*32
	if m.VertexCount() != wantVertices {
		t.Errorf("VertexCount = %d, want %d", m.VertexCount(), wantVertices)
	}
	if len(m.Positions) != wantVertices*3 {
		t.Errorf("len(Positions) = %d, want %d", len(m.Positions), wantVertices*3)
	}
	if len(m.Normals) != wantVertices*3 {
		t.Errorf("len(Normals) = %d, want %d", len(m.Normals), wantVertices*3)
	}
	if len(m.UVs) != wantVertices*2 {
		t.Errorf("len(UVs) = %d, want %d", len(m.UVs), wantVertices*2)
	}

	wantTriangles := 32 + 6*32*2
	if m.TriangleCount() != wantTriangles {
		t.Errorf("TriangleCount = %d, want %d", m.TriangleCount(), wantTriangles)
	}
	if len(m.Indices) != wantTriangles*3 {
		t.Errorf("len(Indices) = %d, want %d", len(m.Indices), wantTriangles*3)
	}
}

func TestMeshVerticesOnUnitSphere(t *testing.T) {
	m, err := New(16, 5, 0.5, 0.5, 0.44, true, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < len(m.Positions); i += 3 {
		x := float64(m.Positions[i])
		y := float64(m.Positions[i+1])
		z := float64(m.Positions[i+2])
		r := math.Sqrt(x*x + y*y + z*z)
		if math.Abs(r-1) > 1e-6 {
			t.Fatalf("vertex %d has radius %g", i/3, r)
		}
	}
}

func TestMeshUVsMatchProjection(t *testing.T) {
	m, err := New(16, 5, 0.5, 0.5, 0.44, true, nil)
	if err != nil {
		t.Fatal(err)
	}
	p := m.Projection()
	for i := 0; i < m.VertexCount(); i++ {
		dir := mgl64.Vec3{
			float64(m.Positions[i*3]),
			float64(m.Positions[i*3+1]),
			float64(m.Positions[i*3+2]),
		}
		u, v, ok := p.DirectionUV(dir)
		if !ok {
			t.Fatalf("vertex %d direction %v has no UV", i, dir)
		}
		// The pole's azimuth is ambiguous; the anchor is always right there.
		if math.Abs(u-float64(m.UVs[i*2])) > 1e-5 || math.Abs(v-float64(m.UVs[i*2+1])) > 1e-5 {
			t.Errorf("vertex %d UV (%g, %g), projection gives (%g, %g)",
				i, m.UVs[i*2], m.UVs[i*2+1], u, v)
		}
	}
}

func TestMeshFacingFlipsWinding(t *testing.T) {
	in, err := New(8, 3, 0.5, 0.5, 0.44, true, nil)
	if err != nil {
		t.Fatal(err)
	}
	out, err := New(8, 3, 0.5, 0.5, 0.44, false, nil)
	if err != nil {
		t.Fatal(err)
	}

	if in.Indices[0] != out.Indices[0] || in.Indices[1] != out.Indices[2] || in.Indices[2] != out.Indices[1] {
		t.Errorf("inward %v / outward %v: expected swapped winding",
			in.Indices[:3], out.Indices[:3])
	}
	if in.Normals[1] != -out.Normals[1] {
		t.Errorf("inward normal %g should be the negation of outward %g",
			in.Normals[1], out.Normals[1])
	}
}

func TestSetVerticalAngleRebuilds(t *testing.T) {
	m, err := New(16, 5, 0.5, 0.5, 0.44, true, nil)
	if err != nil {
		t.Fatal(err)
	}
	rimY := m.Positions[(m.VertexCount()-1)*3+1]
	if math.Abs(float64(rimY)) > 1e-6 {
		t.Fatalf("default rim should sit on the horizon, got y=%g", rimY)
	}

	// Widen past the horizon: the rim dips below.
	if err := m.SetVerticalAngle(math.Pi / 2 * 1.1); err != nil {
		t.Fatal(err)
	}
	rimY = m.Positions[(m.VertexCount()-1)*3+1]
	if rimY >= 0 {
		t.Errorf("widened rim should dip below the horizon, got y=%g", rimY)
	}

	if err := m.SetVerticalAngle(0); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("zero angle: got %v, want ErrInvalidArgument", err)
	}
	if err := m.SetVerticalAngle(math.Pi); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("angle pushing UVs out of range: got %v, want ErrInvalidArgument", err)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(2, 5, 0.5, 0.5, 0.44, true, nil); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("rim 2: got %v", err)
	}
	if _, err := New(8, 1, 0.5, 0.5, 0.44, true, nil); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("quadrant 1: got %v", err)
	}
	if _, err := New(8, 5, 1.5, 0.5, 0.44, true, nil); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("anchor out of range: got %v", err)
	}
	if _, err := New(8, 5, 0.5, 0.5, 0.6, true, nil); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("uv scale out of range: got %v", err)
	}
}

func TestBottomCap(t *testing.T) {
	bottom, err := NewBottomCap(12, nil)
	if err != nil {
		t.Fatal(err)
	}
	if bottom.VertexCount() != 13 {
		t.Errorf("VertexCount = %d, want 13", bottom.VertexCount())
	}
	if bottom.TriangleCount() != 12 {
		t.Errorf("TriangleCount = %d, want 12", bottom.TriangleCount())
	}
	for i := 0; i < len(bottom.Positions); i += 3 {
		if bottom.Positions[i+1] != 0 {
			t.Fatalf("bottom cap vertex %d not in the horizontal plane", i/3)
		}
		if bottom.Normals[i+1] != 1 {
			t.Fatalf("bottom cap normal %d not +Y", i/3)
		}
	}

	if _, err := NewBottomCap(2, nil); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("rim 2: got %v", err)
	}
}
