package geom

import (
	"fmt"
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/go-gl/mathgl/mgl64"
)

// Vec3 represents a 3D vector or point.
type Vec3 struct {
	X, Y, Z float64
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v multiplied by f.
func (v Vec3) Scale(f float64) Vec3 {
	return Vec3{v.X * f, v.Y * f, v.Z * f}
}

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// Length returns the Euclidean norm of v.
func (v Vec3) Length() float64 {
	return math.Sqrt(v.Dot(v))
}

// IsZero reports whether all components are exactly zero.
func (v Vec3) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// Normalize returns v scaled to unit length. The zero vector is returned
// unchanged.
func (v Vec3) Normalize() Vec3 {
	l := v.Length()
	if l == 0 {
		return v
	}
	return v.Scale(1 / l)
}

// ApproxEqual reports whether every component of v is within tol of o.
func (v Vec3) ApproxEqual(o Vec3, tol float64) bool {
	return math.Abs(v.X-o.X) <= tol && math.Abs(v.Y-o.Y) <= tol && math.Abs(v.Z-o.Z) <= tol
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%g %g %g)", v.X, v.Y, v.Z)
}

func (v Vec3) mgl() mgl64.Vec3 {
	return mgl64.Vec3{v.X, v.Y, v.Z}
}

func fromMgl(v mgl64.Vec3) Vec3 {
	return Vec3{v[0], v[1], v[2]}
}

// Quat is a rotation quaternion stored as (X, Y, Z, W).
type Quat struct {
	X, Y, Z, W float64
}

// IdentityQuat returns the rotation that leaves vectors unchanged.
func IdentityQuat() Quat {
	return Quat{W: 1}
}

func (q Quat) mgl() mgl64.Quat {
	return mgl64.Quat{W: q.W, V: mgl64.Vec3{q.X, q.Y, q.Z}}
}

func quatFromMgl(q mgl64.Quat) Quat {
	return Quat{X: q.V[0], Y: q.V[1], Z: q.V[2], W: q.W}
}

// AxisAngle returns the rotation of angle radians about axis.
func AxisAngle(axis Vec3, angle float64) Quat {
	return quatFromMgl(mgl64.QuatRotate(angle, axis.Normalize().mgl()))
}

// FromRPY builds a rotation from fixed-axis roll, pitch and yaw in radians,
// applied in that order: R = Rz(yaw) * Ry(pitch) * Rx(roll).
func FromRPY(roll, pitch, yaw float64) Quat {
	qx := mgl64.QuatRotate(roll, mgl64.Vec3{1, 0, 0})
	qy := mgl64.QuatRotate(pitch, mgl64.Vec3{0, 1, 0})
	qz := mgl64.QuatRotate(yaw, mgl64.Vec3{0, 0, 1})
	return quatFromMgl(qz.Mul(qy).Mul(qx).Normalize())
}

// Mul returns q * o: the rotation o followed by q.
func (q Quat) Mul(o Quat) Quat {
	return quatFromMgl(q.mgl().Mul(o.mgl()).Normalize())
}

// Inverse returns the inverse rotation.
func (q Quat) Inverse() Quat {
	return quatFromMgl(q.mgl().Conjugate())
}

// Rotate applies the rotation to v.
func (q Quat) Rotate(v Vec3) Vec3 {
	return fromMgl(q.mgl().Rotate(v.mgl()))
}

// Normalize returns q scaled to unit length, with W made non-negative so
// that equal rotations share one representation.
func (q Quat) Normalize() Quat {
	l := math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
	if l == 0 {
		return IdentityQuat()
	}
	n := Quat{q.X / l, q.Y / l, q.Z / l, q.W / l}
	if n.W < 0 {
		n = Quat{-n.X, -n.Y, -n.Z, -n.W}
	}
	return n
}

// ApproxEqual reports whether q and o describe the same rotation within tol.
func (q Quat) ApproxEqual(o Quat, tol float64) bool {
	d := q.X*o.X + q.Y*o.Y + q.Z*o.Z + q.W*o.W
	return 1-math.Abs(d) <= tol
}

// matrix returns the row-major 3x3 rotation matrix of q.
func (q Quat) matrix() [3][3]float64 {
	n := q.Normalize()
	x, y, z, w := n.X, n.Y, n.Z, n.W
	return [3][3]float64{
		{1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w)},
		{2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w)},
		{2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y)},
	}
}

// gimbalEpsilon is the |cos(pitch)| below which roll and yaw are coupled.
const gimbalEpsilon = 1e-9

// RPY decomposes q into fixed-axis roll, pitch and yaw (radians), the
// inverse of FromRPY. At gimbal lock yaw is reported as zero.
func (q Quat) RPY() (roll, pitch, yaw float64) {
	m := q.matrix()
	sp := -m[2][0]
	if sp > 1 {
		sp = 1
	} else if sp < -1 {
		sp = -1
	}
	pitch = math.Asin(sp)
	if math.Abs(math.Cos(pitch)) > gimbalEpsilon {
		roll = math.Atan2(m[2][1], m[2][2])
		yaw = math.Atan2(m[1][0], m[0][0])
		return roll, pitch, yaw
	}
	roll = math.Atan2(-m[1][2], m[1][1])
	return roll, pitch, 0
}

// Pose is a rigid transform: a rotation followed by a translation.
type Pose struct {
	Position Vec3
	Rotation Quat
}

// Identity returns the identity pose.
func Identity() Pose {
	return Pose{Rotation: IdentityQuat()}
}

// At returns a pose translated to p with no rotation.
func At(x, y, z float64) Pose {
	return Pose{Position: Vec3{x, y, z}, Rotation: IdentityQuat()}
}

// PoseFromRPY builds a pose from a translation and fixed-axis angles.
func PoseFromRPY(xyz, rpy Vec3) Pose {
	return Pose{Position: xyz, Rotation: FromRPY(rpy.X, rpy.Y, rpy.Z)}
}

// RPY returns the rotation as fixed-axis roll, pitch, yaw.
func (p Pose) RPY() Vec3 {
	r, pi, y := p.Rotation.RPY()
	return Vec3{r, pi, y}
}

// Compose returns p ∘ o: the pose o expressed in p's parent frame.
func (p Pose) Compose(o Pose) Pose {
	return Pose{
		Position: p.Position.Add(p.Rotation.Rotate(o.Position)),
		Rotation: p.Rotation.Mul(o.Rotation),
	}
}

// Inverse returns the pose q such that p.Compose(q) is the identity.
func (p Pose) Inverse() Pose {
	inv := p.Rotation.Inverse()
	return Pose{
		Position: inv.Rotate(p.Position).Scale(-1),
		Rotation: inv.Normalize(),
	}
}

// Apply transforms the point v by p.
func (p Pose) Apply(v Vec3) Vec3 {
	return p.Position.Add(p.Rotation.Rotate(v))
}

// Scaled returns p with its translation multiplied by f.
func (p Pose) Scaled(f float64) Pose {
	return Pose{Position: p.Position.Scale(f), Rotation: p.Rotation}
}

// ApproxEqual reports whether p and o agree within tol in both
// translation and rotation.
func (p Pose) ApproxEqual(o Pose, tol float64) bool {
	return p.Position.ApproxEqual(o.Position, tol) && p.Rotation.ApproxEqual(o.Rotation, tol)
}

// IsIdentity reports whether p is the identity within tol.
func (p Pose) IsIdentity(tol float64) bool {
	return p.ApproxEqual(Identity(), tol)
}

// Matrix converts p to an sdfx homogeneous transform.
func (p Pose) Matrix() sdf.M44 {
	r, pi, y := p.Rotation.RPY()
	t := sdf.Translate3d(v3.Vec{X: p.Position.X, Y: p.Position.Y, Z: p.Position.Z})
	return t.Mul(sdf.RotateZ(y)).Mul(sdf.RotateY(pi)).Mul(sdf.RotateX(r))
}

func (p Pose) String() string {
	rpy := p.RPY()
	return fmt.Sprintf("xyz=%s rpy=%s", p.Position, rpy)
}
