package common

import (
	"math"
	"unsafe"
)

// Identity resets a 4x4 matrix (flat slice) to the identity matrix.
// The matrix is stored in column-major order.
//
// Parameters:
//   - m: destination slice (must be at least 16 elements)
func Identity(m []float32) {
	for i := range m {
		m[i] = 0
	}
	m[0], m[5], m[10], m[15] = 1, 1, 1, 1
}

// SliceToBytes converts any slice to a byte slice for GPU texture uploads.
// Uses unsafe pointer operations to create a view into the original data.
// WARNING: The returned slice shares memory with the input - do not modify.
//
// Parameters:
//   - data: source slice of any type
//
// Returns:
//   - []byte: byte slice view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	totalBytes := int(size) * len(data)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), totalBytes)
}

// Mul4 multiplies two 4x4 matrices and stores the result in out.
// All matrices are stored in column-major order (OpenGL/WebGPU convention).
// Result: out = a * b
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - a: left-hand matrix (16 elements)
//   - b: right-hand matrix (16 elements)
func Mul4(out, a, b []float32) {
	var buf [16]float32
	for i := 0; i < 4; i++ { // column of B
		for j := 0; j < 4; j++ { // row of A
			sum := float32(0)
			for k := 0; k < 4; k++ {
				sum += a[k*4+j] * b[i*4+k]
			}
			buf[i*4+j] = sum
		}
	}
	copy(out, buf[:])
}

// Deg2Rad converts an angle in degrees to radians.
//
// Parameters:
//   - deg: angle in degrees
//
// Returns:
//   - float32: angle in radians
func Deg2Rad(deg float32) float32 {
	return deg * math.Pi / 180
}

// ComposeTransform builds a 4x4 world matrix from a per-instance transform
// sample. The composition order is scale, then rotation, then translation,
// with the Euler rotation applied in X-Y-Z order and given in degrees.
// The result is column-major.
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - posX, posY, posZ: translation in world space
//   - rotX, rotY, rotZ: rotation angles in degrees around each axis
//   - scaleX, scaleY, scaleZ: scale factors along each axis
func ComposeTransform(out []float32, posX, posY, posZ, rotX, rotY, rotZ, scaleX, scaleY, scaleZ float32) {
	rx := float64(Deg2Rad(rotX))
	ry := float64(Deg2Rad(rotY))
	rz := float64(Deg2Rad(rotZ))

	cx := float32(math.Cos(rx))
	sx := float32(math.Sin(rx))
	cy := float32(math.Cos(ry))
	sy := float32(math.Sin(ry))
	cz := float32(math.Cos(rz))
	sz := float32(math.Sin(rz))

	// R = Rz * Ry * Rx (X applied first), column-major, with the scale
	// factors folded into the rotation columns.
	out[0] = (cy * cz) * scaleX
	out[1] = (cy * sz) * scaleX
	out[2] = (-sy) * scaleX
	out[3] = 0

	out[4] = (sx*sy*cz - cx*sz) * scaleY
	out[5] = (sx*sy*sz + cx*cz) * scaleY
	out[6] = (sx * cy) * scaleY
	out[7] = 0

	out[8] = (cx*sy*cz + sx*sz) * scaleZ
	out[9] = (cx*sy*sz - sx*cz) * scaleZ
	out[10] = (cx * cy) * scaleZ
	out[11] = 0

	out[12] = posX
	out[13] = posY
	out[14] = posZ
	out[15] = 1
}

// Detranslate copies a 4x4 column-major matrix with its translation column
// zeroed out. Used where a parent transform must contribute orientation and
// scale but not position.
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - m: source matrix (16 elements)
func Detranslate(out, m []float32) {
	copy(out[:16], m[:16])
	out[12] = 0
	out[13] = 0
	out[14] = 0
}

// ComposeWorld combines the three matrices that position one replicated
// instance: the detranslated parent transform of the target geometry is
// applied first, then the per-instance sample transform, then the owning
// instancer's own transform. Matrices are column-major, so the result is
// instancer * sample * parent.
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - parent: detranslated parent world transform of the target (16 elements)
//   - sample: per-instance transform (16 elements)
//   - instancer: the instancer node's world transform (16 elements)
func ComposeWorld(out, parent, sample, instancer []float32) {
	var buf [16]float32
	Mul4(buf[:], sample, parent)
	Mul4(out, instancer, buf[:])
}

// Invert4 computes the inverse of a 4x4 column-major matrix using the Laplace
// expansion (cofactor) method. If the matrix is singular (determinant ≈ 0) the
// output is left unchanged and the function returns false.
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - m: source matrix (16 elements, column-major)
//
// Returns:
//   - bool: true if the matrix was successfully inverted, false if singular
func Invert4(out, m []float32) bool {
	// 2x2 sub-determinants of the upper-left and lower-right quadrants.
	s0 := m[0]*m[5] - m[4]*m[1]
	s1 := m[0]*m[6] - m[4]*m[2]
	s2 := m[0]*m[7] - m[4]*m[3]
	s3 := m[1]*m[6] - m[5]*m[2]
	s4 := m[1]*m[7] - m[5]*m[3]
	s5 := m[2]*m[7] - m[6]*m[3]

	c5 := m[10]*m[15] - m[14]*m[11]
	c4 := m[9]*m[15] - m[13]*m[11]
	c3 := m[9]*m[14] - m[13]*m[10]
	c2 := m[8]*m[15] - m[12]*m[11]
	c1 := m[8]*m[14] - m[12]*m[10]
	c0 := m[8]*m[13] - m[12]*m[9]

	det := s0*c5 - s1*c4 + s2*c3 + s3*c2 - s4*c1 + s5*c0
	if det == 0 {
		return false
	}

	invDet := 1.0 / det

	out[0] = (m[5]*c5 - m[6]*c4 + m[7]*c3) * invDet
	out[1] = (-m[1]*c5 + m[2]*c4 - m[3]*c3) * invDet
	out[2] = (m[13]*s5 - m[14]*s4 + m[15]*s3) * invDet
	out[3] = (-m[9]*s5 + m[10]*s4 - m[11]*s3) * invDet

	out[4] = (-m[4]*c5 + m[6]*c2 - m[7]*c1) * invDet
	out[5] = (m[0]*c5 - m[2]*c2 + m[3]*c1) * invDet
	out[6] = (-m[12]*s5 + m[14]*s2 - m[15]*s1) * invDet
	out[7] = (m[8]*s5 - m[10]*s2 + m[11]*s1) * invDet

	out[8] = (m[4]*c4 - m[5]*c2 + m[7]*c0) * invDet
	out[9] = (-m[0]*c4 + m[1]*c2 - m[3]*c0) * invDet
	out[10] = (m[12]*s4 - m[13]*s2 + m[15]*s0) * invDet
	out[11] = (-m[8]*s4 + m[9]*s2 - m[11]*s0) * invDet

	out[12] = (-m[4]*c3 + m[5]*c1 - m[6]*c0) * invDet
	out[13] = (m[0]*c3 - m[1]*c1 + m[2]*c0) * invDet
	out[14] = (-m[12]*s3 + m[13]*s1 - m[14]*s0) * invDet
	out[15] = (m[8]*s3 - m[9]*s1 + m[10]*s0) * invDet

	return true
}
