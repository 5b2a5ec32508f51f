package render

import (
	"math"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/compositor"
)

// Matrix is a row-major 3x3 matrix, laid out for direct upload via
// glUniformMatrix3fv.
type Matrix [9]float32

// Identity returns the 3x3 identity matrix.
func Identity() Matrix {
	return Matrix{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}
}

// Multiply returns m * other.
func (m Matrix) Multiply(other Matrix) Matrix {
	var result Matrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum float32
			for k := 0; k < 3; k++ {
				sum += m[i*3+k] * other[k*3+j]
			}
			result[i*3+j] = sum
		}
	}
	return result
}

// Translate returns m * translate(x, y).
func (m Matrix) Translate(x, y float32) Matrix {
	t := Identity()
	t[6] = x
	t[7] = y
	return m.Multiply(t)
}

// Scale returns m * scale(x, y).
func (m Matrix) Scale(x, y float32) Matrix {
	s := Identity()
	s[0] = x
	s[4] = y
	return m.Multiply(s)
}

// Rotate returns m * rotate(rad).
func (m Matrix) Rotate(rad float64) Matrix {
	r := Identity()
	r[0] = float32(math.Cos(rad))
	r[1] = float32(math.Sin(rad))
	r[3] = float32(-math.Sin(rad))
	r[4] = float32(math.Cos(rad))
	return m.Multiply(r)
}

// transformTable holds the 8 output-transform matrices, indexed by
// compositor.Transform. Values as used by hyprland-protocols and
// hyprland's own cairo renderer; WL_OUTPUT_TRANSFORM_90 and _270 are
// intentionally identical here, matching the upstream table this was
// ported from.
var transformTable = map[compositor.Transform]Matrix{
	compositor.TransformNormal: {
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	},
	compositor.Transform90: {
		0, -1, 0,
		1, 0, 0,
		0, 0, 1,
	},
	compositor.Transform180: {
		-1, 0, 0,
		0, -1, 0,
		0, 0, 1,
	},
	compositor.Transform270: {
		0, -1, 0,
		1, 0, 0,
		0, 0, 1,
	},
	compositor.TransformFlipped: {
		-1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	},
	compositor.TransformFlipped90: {
		0, -1, 0,
		-1, 0, 0,
		0, 0, 1,
	},
	compositor.TransformFlipped180: {
		1, 0, 0,
		0, -1, 0,
		0, 0, 1,
	},
	compositor.TransformFlipped270: {
		0, 1, 0,
		1, 0, 0,
		0, 0, 1,
	},
}

// Transform returns m * T, where T is the projection matrix for the
// given output transform.
func (m Matrix) Transform(t compositor.Transform) Matrix {
	tm, ok := transformTable[t]
	if !ok {
		tm = Identity()
	}
	return m.Multiply(tm)
}

// ProjectionMatrix builds the standard blit projection: map the [0,1]
// quad vertex space onto [-1,1] clip space (translate by -0.5, scale by
// 2), then apply the output transform.
func ProjectionMatrix(t compositor.Transform) Matrix {
	return Identity().Translate(-0.5, -0.5).Scale(2, 2).Transform(t)
}
