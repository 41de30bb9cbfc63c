package wire

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Magic:            ProfileMagic,
		ExposureTimeUS:   500,
		ScanHeadID:       3,
		CameraPort:       1,
		LaserPort:        0,
		Flags:            0,
		TimestampNS:      123456789,
		LaserOnTimeUS:    200,
		DataType:         DataTypeBrightness | DataTypeXY,
		DataLength:       64,
		NumberEncoders:   1,
		DatagramPosition: 0,
		NumberDatagrams:  1,
		StartColumn:      0,
		EndColumn:        9,
		SequenceNumber:   42,
	}
	buf := make([]byte, HeaderSize)
	EncodeHeader(h, buf)
	got, err := DecodeHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, h)
	}
}

func TestDecodeHeaderBadMagic(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf[0], buf[1] = 0, 0
	if _, err := DecodeHeader(buf); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestDecodeHeaderShort(t *testing.T) {
	if _, err := DecodeHeader(make([]byte, 10)); err == nil {
		t.Fatal("expected error for short buffer")
	}
}

func TestPointCountMatchesColumnRange(t *testing.T) {
	h := Header{StartColumn: 0, EndColumn: 9}
	if n := h.PointCount(1); n != 10 {
		t.Fatalf("PointCount(stride=1) = %d, want 10", n)
	}
	if n := h.PointCount(2); n != 5 {
		t.Fatalf("PointCount(stride=2) = %d, want 5", n)
	}
}

func TestDecodeProfileInvalidXYSentinel(t *testing.T) {
	h := Header{
		Magic:          ProfileMagic,
		DataType:       DataTypeXY,
		NumberEncoders: 1,
		StartColumn:    0,
		EndColumn:      1, // 2 points at stride 1
	}
	buf := make([]byte, HeaderSize)
	EncodeHeader(h, buf)
	buf = append(buf, 0, 1) // xy stride field = 1
	var encBuf [8]byte
	buf = append(buf, encBuf[:]...) // one i64 encoder value = 0

	// point 0: invalid sentinel
	buf = append(buf, 0x80, 0x00) // -32768 as big-endian i16
	buf = append(buf, 0x80, 0x00)
	// point 1: valid (10, 20)
	buf = append(buf, 0, 10)
	buf = append(buf, 0, 20)

	dp, err := DecodeProfile(buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(dp.Data) != 2 {
		t.Fatalf("expected 2 points, got %d", len(dp.Data))
	}
	if dp.Data[0].X != InvalidXY || dp.Data[0].Y != InvalidXY {
		t.Fatalf("point 0 should be invalid sentinel, got %+v", dp.Data[0])
	}
	if dp.Data[1].X != 10 || dp.Data[1].Y != 20 {
		t.Fatalf("point 1 = %+v, want (10,20)", dp.Data[1])
	}
	if len(dp.Encoders) != 1 {
		t.Fatalf("expected 1 encoder, got %d", len(dp.Encoders))
	}
}
