package math

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/prism/engine/core"
)

// Transform is a decomposed local transform.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

func TransformCreate() Transform {
	return Transform{
		Position: mgl32.Vec3{0, 0, 0},
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

// TransformFromSlices builds a Transform out of raw translation, rotation
// (x, y, z, w quaternion) and scale components. Empty slices keep the
// identity value of that component.
func TransformFromSlices(translation, rotation, scale []float32) (Transform, error) {
	t := TransformCreate()
	if len(translation) > 0 {
		if len(translation) != 3 {
			return t, fmt.Errorf("translation: %w: want 3, got %d", core.ErrBadArity, len(translation))
		}
		t.Position = mgl32.Vec3{translation[0], translation[1], translation[2]}
	}
	if len(rotation) > 0 {
		if len(rotation) != 4 {
			return t, fmt.Errorf("rotation: %w: want 4, got %d", core.ErrBadArity, len(rotation))
		}
		t.Rotation = mgl32.Quat{W: rotation[3], V: mgl32.Vec3{rotation[0], rotation[1], rotation[2]}}
	}
	if len(scale) > 0 {
		if len(scale) != 3 {
			return t, fmt.Errorf("scale: %w: want 3, got %d", core.ErrBadArity, len(scale))
		}
		t.Scale = mgl32.Vec3{scale[0], scale[1], scale[2]}
	}
	return t, nil
}

// Matrix composes T x R x S.
func (t Transform) Matrix() mgl32.Mat4 {
	translation := mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z())
	rotation := t.Rotation.Normalize().Mat4()
	scale := mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z())
	return translation.Mul4(rotation).Mul4(scale)
}

// MatrixFromSlice reads a column-major 4x4 matrix.
func MatrixFromSlice(m []float32) (mgl32.Mat4, error) {
	if len(m) != 16 {
		return mgl32.Ident4(), fmt.Errorf("matrix: %w: want 16, got %d", core.ErrBadArity, len(m))
	}
	var out mgl32.Mat4
	copy(out[:], m)
	return out, nil
}
