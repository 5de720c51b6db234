// Package astro models the simplified earth-sun geometry used to position
// the sun, moon and stars in a rendered sky. It is not an ephemeris: the
// earth's orbit is treated as circular and the moon rides the ecliptic, which
// is plenty for a believable sky and keeps every transform closed-form.
package astro

import (
	"fmt"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"Celestial3D/internal/errs"
)

const (
	// Obliquity is the tilt of the ecliptic plane relative to the
	// celestial equator, in radians (~23.44 degrees).
	Obliquity = 23.44 * math.Pi / 180

	// HoursPerDay is the length of a solar day in hours.
	HoursPerDay = 24.0

	radiansPerHour = 2 * math.Pi / HoursPerDay

	// DefaultLatitude is the observer latitude used until one is set
	// (51.1788 degrees north).
	DefaultLatitude = 51.1788 * math.Pi / 180
)

// SunAndStars holds the observer's location and time state and performs the
// coordinate conversions between ecliptic, equatorial and world frames.
//
// World convention: +X north, +Y up, +Z east.
type SunAndStars struct {
	hour           float64 // local solar time [0, 24)
	latitude       float64 // observer latitude [-pi/2, pi/2]
	solarLongitude float64 // sun's celestial longitude [0, 2*pi)
	solarRAHours   float64 // cached solar right ascension, in hours
	log            *zap.Logger
}

// New returns time-and-place state at the default latitude, midnight, at the
// March equinox. A nil logger disables diagnostics.
func New(log *zap.Logger) *SunAndStars {
	if log == nil {
		log = zap.NewNop()
	}
	s := &SunAndStars{
		latitude: DefaultLatitude,
		log:      log,
	}
	s.updateSolarRA()
	return s
}

// SetHour sets the local solar time. Hour must lie in [0, 24]; 24 wraps to 0.
func (s *SunAndStars) SetHour(hour float64) error {
	if !(hour >= 0 && hour <= HoursPerDay) {
		return fmt.Errorf("%w: hour %g outside [0, 24]", errs.ErrInvalidArgument, hour)
	}
	s.hour = math.Mod(hour, HoursPerDay)
	return nil
}

// Hour returns the local solar time in [0, 24).
func (s *SunAndStars) Hour() float64 {
	return s.hour
}

// SetObserverLatitude sets the observer's latitude in radians,
// north positive. Latitude must lie in [-pi/2, pi/2].
func (s *SunAndStars) SetObserverLatitude(latitude float64) error {
	if !(latitude >= -math.Pi/2 && latitude <= math.Pi/2) {
		return fmt.Errorf("%w: latitude %g outside [-pi/2, pi/2]", errs.ErrInvalidArgument, latitude)
	}
	s.latitude = latitude
	return nil
}

// ObserverLatitude returns the observer's latitude in radians.
func (s *SunAndStars) ObserverLatitude() float64 {
	return s.latitude
}

// SetSolarLongitude sets the sun's celestial longitude in radians and
// refreshes the cached solar right ascension. Longitude must lie in
// [0, 2*pi]; 2*pi wraps to 0.
func (s *SunAndStars) SetSolarLongitude(longitude float64) error {
	if !(longitude >= 0 && longitude <= 2*math.Pi) {
		return fmt.Errorf("%w: solar longitude %g outside [0, 2*pi]", errs.ErrInvalidArgument, longitude)
	}
	s.solarLongitude = math.Mod(longitude, 2*math.Pi)
	s.updateSolarRA()
	s.log.Debug("solar longitude set",
		zap.Float64("longitude", s.solarLongitude),
		zap.Float64("raHours", s.solarRAHours))
	return nil
}

// SetSolarLongitudeForDay approximates the solar longitude for a calendar
// date: 2*pi*(dayOfYear-80)/366, so day 80 (around the March equinox) maps
// to longitude zero.
func (s *SunAndStars) SetSolarLongitudeForDay(month time.Month, day int) error {
	if month < time.January || month > time.December {
		return fmt.Errorf("%w: month %d outside [1, 12]", errs.ErrInvalidArgument, month)
	}
	if day < 1 || day > 31 {
		return fmt.Errorf("%w: day %d outside [1, 31]", errs.ErrInvalidArgument, day)
	}
	// Leap-agnostic: any non-leap year gives the day-of-year we need.
	dayOfYear := time.Date(2023, month, day, 0, 0, 0, 0, time.UTC).YearDay()
	longitude := 2 * math.Pi * float64(dayOfYear-80) / 366
	longitude = math.Mod(longitude, 2*math.Pi)
	if longitude < 0 {
		longitude += 2 * math.Pi
	}
	return s.SetSolarLongitude(longitude)
}

// SolarLongitude returns the sun's celestial longitude in [0, 2*pi).
func (s *SunAndStars) SolarLongitude() float64 {
	return s.solarLongitude
}

// SiderealHour returns the local sidereal time in hours [0, 24).
func (s *SunAndStars) SiderealHour() float64 {
	h := math.Mod(s.hour-12-s.solarRAHours, HoursPerDay)
	if h < 0 {
		h += HoursPerDay
	}
	return h
}

// SiderealAngle returns the local sidereal time as an angle in [0, 2*pi).
func (s *SunAndStars) SiderealAngle() float64 {
	return s.SiderealHour() * radiansPerHour
}

// ConvertToEquatorial converts ecliptic spherical coordinates (latitude,
// longitude in radians) to a unit vector in the equatorial frame, where +Z is
// the celestial north pole and +X points at the vernal equinox.
func (s *SunAndStars) ConvertToEquatorial(latitude, longitude float64) mgl64.Vec3 {
	cosLat := math.Cos(latitude)
	ecliptic := mgl64.Vec3{
		cosLat * math.Cos(longitude),
		cosLat * math.Sin(longitude),
		math.Sin(latitude),
	}
	return EclipticToEquatorial(ecliptic)
}

// EclipticToEquatorial rotates an ecliptic-frame vector about the
// vernal-equinox axis by the obliquity of the ecliptic.
func EclipticToEquatorial(ecliptic mgl64.Vec3) mgl64.Vec3 {
	cosE := math.Cos(Obliquity)
	sinE := math.Sin(Obliquity)
	return mgl64.Vec3{
		ecliptic.X(),
		ecliptic.Y()*cosE - ecliptic.Z()*sinE,
		ecliptic.Y()*sinE + ecliptic.Z()*cosE,
	}
}

// ConvertToWorld converts ecliptic spherical coordinates to a unit vector in
// the world frame (+X north, +Y up, +Z east).
func (s *SunAndStars) ConvertToWorld(latitude, longitude float64) mgl64.Vec3 {
	return s.EquatorialToWorld(s.ConvertToEquatorial(latitude, longitude))
}

// EquatorialToWorld rotates an equatorial-frame vector into the world frame:
// first by the negative sidereal angle about the polar axis, then by
// (latitude - pi/2) about the east axis, then a fixed axis remap into
// (+north, +up, +east).
func (s *SunAndStars) EquatorialToWorld(equatorial mgl64.Vec3) mgl64.Vec3 {
	a := s.SiderealAngle()
	cosA := math.Cos(a)
	sinA := math.Sin(a)
	// rotate by -a about the polar (z) axis
	x1 := equatorial.X()*cosA + equatorial.Y()*sinA
	y1 := -equatorial.X()*sinA + equatorial.Y()*cosA
	z1 := equatorial.Z()

	tilt := s.latitude - math.Pi/2
	cosT := math.Cos(tilt)
	sinT := math.Sin(tilt)
	// rotate by (latitude - pi/2) about the east (y) axis
	x2 := x1*cosT + z1*sinT
	z2 := -x1*sinT + z1*cosT

	return mgl64.Vec3{-x2, z2, y1}
}

// SunDirection returns the sun's current direction in the world frame as a
// unit vector.
func (s *SunAndStars) SunDirection() mgl64.Vec3 {
	return s.ConvertToWorld(0, s.solarLongitude)
}

// Orientation returns the equatorial-to-world rotation as a quaternion,
// suitable for orienting a star dome so the stars wheel with sidereal time.
func (s *SunAndStars) Orientation() mgl64.Quat {
	// The axis remap (+north, +up, +east) is itself a proper rotation:
	// half a turn about the (0, 1, 1)/sqrt2 axis.
	remap := mgl64.QuatRotate(math.Pi, mgl64.Vec3{0, math.Sqrt2 / 2, math.Sqrt2 / 2})
	tilt := mgl64.QuatRotate(s.latitude-math.Pi/2, mgl64.Vec3{0, 1, 0})
	spin := mgl64.QuatRotate(-s.SiderealAngle(), mgl64.Vec3{0, 0, 1})
	return remap.Mul(tilt).Mul(spin)
}

// updateSolarRA refreshes the cached solar right ascension from the solar
// longitude. The value is stored hour-angle style (westward positive) so
// that SiderealHour yields true local sidereal time and the sun crosses the
// meridian at local noon.
func (s *SunAndStars) updateSolarRA() {
	eq := s.ConvertToEquatorial(0, s.solarLongitude)
	ra := -math.Atan2(eq.Y(), eq.X()) / radiansPerHour
	ra = math.Mod(ra, HoursPerDay)
	if ra < 0 {
		ra += HoursPerDay
	}
	s.solarRAHours = ra
}
