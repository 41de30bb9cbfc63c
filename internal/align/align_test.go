package align

import "testing"

func TestIdentityAlignmentFlipsX(t *testing.T) {
	// Identity is upstream/roll=0/scale=1, which yields yaw=180° and a
	// forward matrix of [[-1,0],[0,1]] — it flips X, it is not a no-op.
	tr := NewTransform(Identity)
	x, y := tr.CameraToMill(100, 200)
	if x != -100 || y != 200 {
		t.Fatalf("identity CameraToMill(100,200) = (%d,%d), want (-100,200)", x, y)
	}
	x, y = tr.MillToCamera(x, y)
	if x != 100 || y != 200 {
		t.Fatalf("identity MillToCamera round trip = (%d,%d), want (100,200)", x, y)
	}
}

func TestIsIdentity(t *testing.T) {
	if !Identity.IsIdentity() {
		t.Fatal("Identity.IsIdentity() = false")
	}
	other := Alignment{Cable: Downstream, CameraToMillScale: 1}
	if other.IsIdentity() {
		t.Fatal("downstream cable alignment reported as identity")
	}
}

func TestDownstreamCableFlipsYaw180(t *testing.T) {
	up := NewTransform(Alignment{Cable: Upstream, CameraToMillScale: 1})
	down := NewTransform(Alignment{Cable: Downstream, CameraToMillScale: 1})
	ux, uy := up.CameraToMill(10, 0)
	dx, dy := down.CameraToMill(10, 0)
	if ux != -dx || uy != -dy {
		t.Fatalf("downstream flip: up=(%d,%d) down=(%d,%d), want negation", ux, uy, dx, dy)
	}
}

func TestRoundTripWithinToleranceUnderRollAndScale(t *testing.T) {
	a := Alignment{Cable: Upstream, RollDeg: 30, ShiftX: 5, ShiftY: -3, CameraToMillScale: 2}
	tr := NewTransform(a)
	mx, my := tr.CameraToMill(40, 60)
	cx, cy := tr.MillToCamera(mx, my)
	if abs32(cx-40) > 1 || abs32(cy-60) > 1 {
		t.Fatalf("round trip (40,60) -> (%d,%d) -> (%d,%d), want within 1", mx, my, cx, cy)
	}
}

func TestRoundTripExactAtIdentity(t *testing.T) {
	tr := NewTransform(Identity)
	mx, my := tr.CameraToMill(7, -12)
	cx, cy := tr.MillToCamera(mx, my)
	if cx != 7 || cy != -12 {
		t.Fatalf("identity round trip = (%d,%d), want (7,-12)", cx, cy)
	}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
