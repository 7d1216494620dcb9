package scene

import "github.com/go-gl/mathgl/mgl32"

// UpdatePolicy yields an object's world transform for a point in time.
// Policies must be deterministic in seconds so a paused clock freezes
// the scene.
type UpdatePolicy interface {
	TransformAt(seconds float64) mgl32.Mat4
}

// Stationary pins an object to a fixed transform.
type Stationary struct {
	Transform mgl32.Mat4
}

func (p Stationary) TransformAt(float64) mgl32.Mat4 {
	return p.Transform
}

// ConstantRotation spins an object around Axis at a fixed rate,
// composed after Base.
type ConstantRotation struct {
	Base             mgl32.Mat4
	Axis             mgl32.Vec3
	DegreesPerSecond float32
}

func (p ConstantRotation) TransformAt(seconds float64) mgl32.Mat4 {
	angle := mgl32.DegToRad(p.DegreesPerSecond * float32(seconds))
	return p.Base.Mul4(mgl32.HomogRotate3D(angle, p.Axis.Normalize()))
}

// Custom wraps an arbitrary time-to-transform function.
type Custom func(seconds float64) mgl32.Mat4

func (p Custom) TransformAt(seconds float64) mgl32.Mat4 {
	return p(seconds)
}
