// Package align implements the per-(camera,laser) alignment transform
// of spec.md §3/§9: camera pixels into world ("mill") coordinates,
// with yaw driven by cable orientation — 180° for an upstream cable,
// 0° for downstream.
//
// spec.md §9 flags this transform as an ambiguity to preserve
// bit-for-bit rather than re-derive: the four forward coefficients and
// four inverse coefficients are each a distinct, non-symmetric
// combination of yaw and roll (cos_yaw multiplies only the xx/yx
// terms, never xy/yy), not a clean rotation-scale matrix. NewTransform
// below emulates those eight doubles literally rather than building a
// standard rotation matrix; everything downstream only ever
// multiplies through the cached coefficients, never touches degrees
// or cable orientation again.
package align

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Cable is the physical install direction, which flips camera yaw by
// 180 degrees (spec.md glossary: "Cable orientation").
type Cable int

const (
	Upstream Cable = iota
	Downstream
)

// Alignment is the per-(camera,laser) alignment configuration (spec.md §3).
type Alignment struct {
	Cable             Cable
	RollDeg           float64
	ShiftX            float64
	ShiftY            float64
	CameraToMillScale float64
}

// Identity is the alignment value a scan pair has before any explicit
// StoreAlignment call: upstream cable, zero roll, zero shift, unit
// scale — the source's own Alignment default. It is not a no-op
// transform: an upstream cable's 180° yaw still flips the X axis (see
// NewTransform).
var Identity = Alignment{Cable: Upstream, CameraToMillScale: 1}

// IsIdentity reports whether a matches Identity, the condition
// spec.md §4.6 uses to decide whether a StoreAlignment control message
// is needed at all ("One message per scan pair whose alignment is
// non-identity").
func (a Alignment) IsIdentity() bool {
	return a == Identity
}

// Transform caches the four forward coefficients plus the shift
// vector, and the four inverse coefficients, so that per-point
// conversion in the receive task's hot loop never recomputes
// trigonometry (spec.md §9).
type Transform struct {
	forward *mat.Dense // 2x2: camera -> mill rotation+scale
	inverse *mat.Dense // 2x2: mill -> camera rotation+scale
	shiftX  float64
	shiftY  float64
}

// NewTransform precomputes a Transform from an Alignment. This is the
// single point where cable orientation, roll, and scale are combined;
// everything downstream only ever multiplies through the cached
// coefficients.
//
// Yaw is 180° for an upstream cable, 0° for downstream — the opposite
// of what "downstream flips 180°" might suggest, but that is what the
// source computes. cos_yaw multiplies only the xx/yx coefficients,
// never xy/yy, so the forward matrix is not a standard rotation: at
// roll=0 an upstream cable (yaw=180°) produces [[-1,0],[0,1]], not the
// identity. The inverse coefficients are likewise their own literal
// formulas, not mat.Inverse of the forward matrix.
func NewTransform(a Alignment) *Transform {
	const rho = math.Pi / 180

	yaw := 180.0
	if a.Cable == Downstream {
		yaw = 0.0
	}

	scale := a.CameraToMillScale
	if scale == 0 {
		scale = 1
	}

	sinRoll, cosRoll := math.Sin(a.RollDeg*rho), math.Cos(a.RollDeg*rho)
	cosYaw := math.Cos(yaw * rho)
	sinNegRoll, cosNegRoll := math.Sin(-a.RollDeg*rho), math.Cos(-a.RollDeg*rho)
	cosNegYaw := math.Cos(-yaw * rho)

	forward := mat.NewDense(2, 2, []float64{
		cosYaw * cosRoll * scale, -sinRoll * scale,
		cosYaw * sinRoll * scale, cosRoll * scale,
	})

	inverse := mat.NewDense(2, 2, []float64{
		cosNegYaw * cosNegRoll / scale, cosNegYaw * -sinNegRoll / scale,
		sinNegRoll / scale, cosNegRoll / scale,
	})

	return &Transform{
		forward: forward,
		inverse: inverse,
		shiftX:  a.ShiftX,
		shiftY:  a.ShiftY,
	}
}

// CameraToMill maps a camera-pixel coordinate to mill (world)
// coordinates, truncating to integers the way the device-side fixed-
// point pipeline does.
func (t *Transform) CameraToMill(x, y int32) (int32, int32) {
	in := mat.NewVecDense(2, []float64{float64(x), float64(y)})
	out := mat.NewVecDense(2, nil)
	out.MulVec(t.forward, in)
	return int32(out.AtVec(0) + t.shiftX), int32(out.AtVec(1) + t.shiftY)
}

// MillToCamera is the inverse of CameraToMill. Per spec.md invariant
// 7, MillToCamera(CameraToMill(x,y)) ≈ (x,y) within ±1 due to integer
// truncation, with exact equality when scale=1, roll=0, shift=0.
func (t *Transform) MillToCamera(x, y int32) (int32, int32) {
	shifted := mat.NewVecDense(2, []float64{float64(x) - t.shiftX, float64(y) - t.shiftY})
	out := mat.NewVecDense(2, nil)
	out.MulVec(t.inverse, shifted)
	return int32(out.AtVec(0)), int32(out.AtVec(1))
}
