package math

import (
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/exp/constraints"
)

// Mat4ToRowMajor3x4 converts a column-major 4x4 matrix into the
// row-major 3x4 layout instance descriptors use on the wire: the top
// three rows of m, row after row. The bottom (0,0,0,1) row is implied.
func Mat4ToRowMajor3x4(m mgl32.Mat4) [12]float32 {
	t := m.Transpose()
	var out [12]float32
	copy(out[:], t[:12])
	return out
}

// AlignUp rounds v up to the next multiple of alignment, which must be
// a power of two.
func AlignUp[T constraints.Integer](v, alignment T) T {
	return (v + alignment - 1) &^ (alignment - 1)
}

func DivideRoundUp[T constraints.Integer](x, y T) T {
	return (x + y - 1) / y
}

func Clamp[T constraints.Ordered](value, min, max T) T {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
