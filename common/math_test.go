package common

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertMat4Equal(t *testing.T, expected, actual []float32) {
	t.Helper()
	require.Len(t, actual, 16)
	for i := 0; i < 16; i++ {
		assert.InDelta(t, expected[i], actual[i], 1e-5, "element %d", i)
	}
}

func TestIdentity(t *testing.T) {
	m := make([]float32, 16)
	for i := range m {
		m[i] = 7
	}
	Identity(m)

	expected := []float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
	assertMat4Equal(t, expected, m)
}

func TestMul4Identity(t *testing.T) {
	a := []float32{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	}
	id := make([]float32, 16)
	Identity(id)

	out := make([]float32, 16)
	Mul4(out, a, id)
	assertMat4Equal(t, a, out)

	Mul4(out, id, a)
	assertMat4Equal(t, a, out)
}

func TestMul4InPlace(t *testing.T) {
	// Mul4 must tolerate out aliasing one of its inputs.
	a := make([]float32, 16)
	ComposeTransform(a, 1, 2, 3, 0, 0, 0, 1, 1, 1)
	b := make([]float32, 16)
	ComposeTransform(b, 4, 5, 6, 0, 0, 0, 1, 1, 1)

	expected := make([]float32, 16)
	Mul4(expected, a, b)

	Mul4(a, a, b)
	assertMat4Equal(t, expected, a)
}

func TestComposeTransformTranslationOnly(t *testing.T) {
	out := make([]float32, 16)
	ComposeTransform(out, 10, -5, 2.5, 0, 0, 0, 1, 1, 1)

	expected := []float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		10, -5, 2.5, 1,
	}
	assertMat4Equal(t, expected, out)
}

func TestComposeTransformScaleBeforeRotation(t *testing.T) {
	// A 90 degree Z rotation of a point scaled by (2,1,1) must land at
	// (0,2,0) when starting from the unit X axis: scale applies first.
	out := make([]float32, 16)
	ComposeTransform(out, 0, 0, 0, 0, 0, 90, 2, 1, 1)

	x, y, z := transformPoint(out, 1, 0, 0)
	assert.InDelta(t, 0, x, 1e-5)
	assert.InDelta(t, 2, y, 1e-5)
	assert.InDelta(t, 0, z, 1e-5)
}

func TestComposeTransformRotationOrderXYZ(t *testing.T) {
	// X rotation applies before Y: the unit Y axis rotated 90 around X goes
	// to +Z, then 90 around Y carries +Z to +X.
	out := make([]float32, 16)
	ComposeTransform(out, 0, 0, 0, 90, 90, 0, 1, 1, 1)

	x, y, z := transformPoint(out, 0, 1, 0)
	assert.InDelta(t, 1, x, 1e-5)
	assert.InDelta(t, 0, y, 1e-5)
	assert.InDelta(t, 0, z, 1e-5)
}

func TestDeg2Rad(t *testing.T) {
	assert.InDelta(t, math.Pi, float64(Deg2Rad(180)), 1e-6)
	assert.InDelta(t, math.Pi/2, float64(Deg2Rad(90)), 1e-6)
	assert.InDelta(t, 0, float64(Deg2Rad(0)), 1e-6)
}

func TestDetranslate(t *testing.T) {
	m := make([]float32, 16)
	ComposeTransform(m, 3, 4, 5, 0, 45, 0, 2, 2, 2)

	out := make([]float32, 16)
	Detranslate(out, m)

	assert.Equal(t, float32(0), out[12])
	assert.Equal(t, float32(0), out[13])
	assert.Equal(t, float32(0), out[14])
	// Rotation/scale block is untouched.
	for i := 0; i < 12; i++ {
		assert.Equal(t, m[i], out[i], "element %d", i)
	}
}

func TestComposeWorldOrdering(t *testing.T) {
	// parent scales by 2, sample translates by (1,0,0), instancer translates
	// by (0,5,0). The origin must end up at (2*1, 5, 0): parent first, then
	// sample, then instancer.
	parent := make([]float32, 16)
	ComposeTransform(parent, 0, 0, 0, 0, 0, 0, 2, 2, 2)
	sample := make([]float32, 16)
	ComposeTransform(sample, 1, 0, 0, 0, 0, 0, 1, 1, 1)
	instancer := make([]float32, 16)
	ComposeTransform(instancer, 0, 5, 0, 0, 0, 0, 1, 1, 1)

	out := make([]float32, 16)
	ComposeWorld(out, parent, sample, instancer)

	x, y, z := transformPoint(out, 1, 0, 0)
	assert.InDelta(t, 3, x, 1e-5) // scaled unit X (2) + sample offset (1)
	assert.InDelta(t, 5, y, 1e-5)
	assert.InDelta(t, 0, z, 1e-5)
}

func TestInvert4(t *testing.T) {
	m := make([]float32, 16)
	ComposeTransform(m, 3, -2, 7, 30, 60, 15, 2, 1, 0.5)

	inv := make([]float32, 16)
	require.True(t, Invert4(inv, m))

	out := make([]float32, 16)
	Mul4(out, m, inv)

	id := make([]float32, 16)
	Identity(id)
	assertMat4Equal(t, id, out)
}

func TestInvert4Singular(t *testing.T) {
	m := make([]float32, 16) // all zero, det == 0
	out := make([]float32, 16)
	out[0] = 42
	require.False(t, Invert4(out, m))
	assert.Equal(t, float32(42), out[0])
}

func TestSliceToBytes(t *testing.T) {
	assert.Nil(t, SliceToBytes([]float32(nil)))

	data := []float32{1, 2}
	b := SliceToBytes(data)
	require.Len(t, b, 8)
}

// transformPoint applies a column-major matrix to a point (w=1).
func transformPoint(m []float32, x, y, z float32) (float32, float32, float32) {
	return m[0]*x + m[4]*y + m[8]*z + m[12],
		m[1]*x + m[5]*y + m[9]*z + m[13],
		m[2]*x + m[6]*y + m[10]*z + m[14]
}
