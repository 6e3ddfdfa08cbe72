package math

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPad(t *testing.T) {
	tests := []struct {
		value, align, want uint64
	}{
		{256, 256, 256},
		{257, 256, 512},
		{0, 256, 0},
		{100, 0, 100},
		{64, 16, 64},
		{65, 16, 80},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Pad(tt.value, tt.align), "Pad(%d, %d)", tt.value, tt.align)
	}
	assert.Equal(t, uint32(512), Pad[uint32](300, 256))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 5, Clamp(9, 0, 5))
	assert.Equal(t, float32(0.5), Clamp[float32](0.5, 0, 1))
	assert.Equal(t, -1, Clamp(-3, -1, 1))
}

func TestMipLevels(t *testing.T) {
	assert.Equal(t, uint32(1), MipLevels(1, 1))
	assert.Equal(t, uint32(9), MipLevels(256, 256))
	assert.Equal(t, uint32(10), MipLevels(512, 3))
	assert.Equal(t, uint32(9), MipLevels(300, 200))
	assert.Equal(t, uint32(1), MipLevels(0, 0))
	assert.Equal(t, uint32(21), MipLevels(1<<21-1, 1))
	assert.Equal(t, uint32(22), MipLevels(1, 1<<21))
	assert.Equal(t, uint32(32), MipLevels(1<<32-1, 7))
}

func TestHalveExtent(t *testing.T) {
	assert.Equal(t, uint32(128), HalveExtent(256))
	assert.Equal(t, uint32(1), HalveExtent(1))
	assert.Equal(t, uint32(2), HalveExtent(5))
}

func TestTransformMatrixComposesTRS(t *testing.T) {
	tr, err := TransformFromSlices([]float32{1, 2, 3}, []float32{0, 0, 0, 1}, []float32{2, 2, 2})
	require.NoError(t, err)

	m := tr.Matrix()
	p := m.Mul4x1(mgl32.Vec4{1, 1, 1, 1})
	assert.InDelta(t, 3, p.X(), 1e-6)
	assert.InDelta(t, 4, p.Y(), 1e-6)
	assert.InDelta(t, 5, p.Z(), 1e-6)
}

func TestTransformRotationIsApplied(t *testing.T) {
	// 90 degrees around Z.
	q := mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 0, 1})
	tr, err := TransformFromSlices(nil, []float32{q.V.X(), q.V.Y(), q.V.Z(), q.W}, nil)
	require.NoError(t, err)

	p := tr.Matrix().Mul4x1(mgl32.Vec4{1, 0, 0, 1})
	assert.InDelta(t, 0, p.X(), 1e-6)
	assert.InDelta(t, 1, p.Y(), 1e-6)
}

func TestTransformFromSlicesArity(t *testing.T) {
	_, err := TransformFromSlices([]float32{1, 2}, nil, nil)
	assert.ErrorIs(t, err, core.ErrBadArity)

	_, err = TransformFromSlices(nil, []float32{0, 0, 1}, nil)
	assert.ErrorIs(t, err, core.ErrBadArity)

	_, err = TransformFromSlices(nil, nil, []float32{1, 1, 1, 1})
	assert.ErrorIs(t, err, core.ErrBadArity)
}

func TestMatrixFromSlice(t *testing.T) {
	translation := mgl32.Translate3D(4, 5, 6)
	raw := make([]float32, 16)
	copy(raw, translation[:])

	m, err := MatrixFromSlice(raw)
	require.NoError(t, err)
	assert.Equal(t, mgl32.Vec3{4, 5, 6}, m.Col(3).Vec3())

	_, err = MatrixFromSlice(raw[:15])
	assert.ErrorIs(t, err, core.ErrBadArity)
}
