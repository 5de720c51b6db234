package sky

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// ParamKind identifies one shading parameter handed to the external
// rendering collaborator. The set is fixed; Validate rejects anything else
// at the boundary.
type ParamKind int

const (
	ParamObjectCenter ParamKind = iota
	ParamObjectTransformU
	ParamObjectTransformV
	ParamObjectColor
	ParamObjectGlow
	ParamCloudOffset
	ParamCloudScale
	ParamCloudColor
	ParamClearColor

	paramKindCount
)

var paramKindNames = [...]string{
	"ObjectCenter",
	"ObjectTransformU",
	"ObjectTransformV",
	"ObjectColor",
	"ObjectGlow",
	"CloudOffset",
	"CloudScale",
	"CloudColor",
	"ClearColor",
}

func (k ParamKind) String() string {
	if k < 0 || k >= paramKindCount {
		return fmt.Sprintf("ParamKind(%d)", int(k))
	}
	return paramKindNames[k]
}

// Validate reports whether the kind is one of the fixed supported kinds.
func (k ParamKind) Validate() error {
	if k < 0 || k >= paramKindCount {
		return fmt.Errorf("unsupported parameter kind %d", int(k))
	}
	return nil
}

// ParamKey addresses one shading parameter: the slot index (object or cloud
// layer depending on the kind, -1 for material-wide kinds) and the kind.
type ParamKey struct {
	Slot int
	Kind ParamKind
}

// Parameters exports the material's current shading state as a structured
// map for the external renderer. Only bound slots contribute; vector-valued
// parameters are padded into Vec4.
func (m *SkyMaterial) Parameters() map[ParamKey]mgl64.Vec4 {
	params := make(map[ParamKey]mgl64.Vec4)
	params[ParamKey{Slot: -1, Kind: ParamClearColor}] = m.clearColor

	for i := range m.objects {
		slot := &m.objects[i]
		if slot.state != SlotVisible {
			continue
		}
		params[ParamKey{Slot: i, Kind: ParamObjectCenter}] = vec2to4(slot.center)
		params[ParamKey{Slot: i, Kind: ParamObjectTransformU}] = vec2to4(slot.transformU)
		params[ParamKey{Slot: i, Kind: ParamObjectTransformV}] = vec2to4(slot.transformV)
		params[ParamKey{Slot: i, Kind: ParamObjectColor}] = slot.color
		params[ParamKey{Slot: i, Kind: ParamObjectGlow}] = slot.glow
	}

	for i := range m.clouds {
		slot := &m.clouds[i]
		if !slot.bound {
			continue
		}
		params[ParamKey{Slot: i, Kind: ParamCloudOffset}] = mgl64.Vec4{slot.offsetU, slot.offsetV, 0, 0}
		params[ParamKey{Slot: i, Kind: ParamCloudScale}] = mgl64.Vec4{slot.scale, 0, 0, 0}
		params[ParamKey{Slot: i, Kind: ParamCloudColor}] = slot.color
	}
	return params
}

func vec2to4(v mgl64.Vec2) mgl64.Vec4 {
	return mgl64.Vec4{v.X(), v.Y(), 0, 0}
}
