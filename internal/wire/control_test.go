package wire

import "testing"

func TestConnectRequestRoundTrip(t *testing.T) {
	r := ConnectRequest{Serial: 1, ID: 2, APIMajor: 16, APIMinor: 3, APIPatch: 1}
	got, err := DecodeConnectRequest(r.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got != r {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, r)
	}
}

func TestStatusResponseRoundTrip(t *testing.T) {
	s := StatusResponse{
		MinScanPeriodUS: 1500,
		Cameras: []CameraSnapshot{
			{TemperatureC: 42, PixelsInWindow: 1000},
		},
		Encoders: []int64{100, -200},
		State:    1,
	}
	got, err := DecodeStatusResponse(s.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got.MinScanPeriodUS != s.MinScanPeriodUS || got.State != s.State {
		t.Fatalf("scalar fields mismatch: got %+v want %+v", got, s)
	}
	if len(got.Cameras) != 1 || got.Cameras[0] != s.Cameras[0] {
		t.Fatalf("cameras mismatch: got %+v want %+v", got.Cameras, s.Cameras)
	}
	if len(got.Encoders) != 2 || got.Encoders[0] != 100 || got.Encoders[1] != -200 {
		t.Fatalf("encoders mismatch: got %+v", got.Encoders)
	}
}

func TestScanConfigurationRoundTrip(t *testing.T) {
	sc := ScanConfiguration{
		DataType:     DataTypeXY | DataTypeBrightness,
		Stride:       1,
		ScanPeriodNS: 1_500_000,
		Pairs: []ScanPairConfig{
			{CameraPort: 0, LaserPort: 0, LaserOnTimeMinNS: 15000, LaserOnTimeDefNS: 300000, LaserOnTimeMaxNS: 650000, EndOffsetNS: 1000000},
		},
	}
	got, err := DecodeScanConfiguration(sc.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got.DataType != sc.DataType || got.Stride != sc.Stride || got.ScanPeriodNS != sc.ScanPeriodNS {
		t.Fatalf("scalar mismatch: got %+v want %+v", got, sc)
	}
	if len(got.Pairs) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(got.Pairs))
	}
	want := sc.Pairs[0]
	gotPair := got.Pairs[0]
	if gotPair.CameraPort != want.CameraPort || gotPair.LaserPort != want.LaserPort ||
		gotPair.LaserOnTimeMinNS != want.LaserOnTimeMinNS || gotPair.LaserOnTimeDefNS != want.LaserOnTimeDefNS ||
		gotPair.LaserOnTimeMaxNS != want.LaserOnTimeMaxNS || gotPair.EndOffsetNS != want.EndOffsetNS {
		t.Fatalf("pair mismatch: got %+v want %+v", gotPair, want)
	}
}

func TestAlignmentRecordRoundTrip(t *testing.T) {
	a := AlignmentRecord{CameraPort: 1, LaserPort: 0, ShiftXMilli: -500, ShiftYMilli: 250, RollMilliDeg: 1800, TimestampNS: 9999}
	got, err := DecodeAlignmentRecord(a.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got != a {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, a)
	}
}

func TestEncoderAssignmentRoundTrip(t *testing.T) {
	e := EncoderAssignment{MainSerial: 1, Aux1Serial: 2, Aux2Serial: 3}
	got, err := DecodeEncoderAssignment(e.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got != e {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, e)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	e := Envelope{Type: MsgConnect, Body: []byte{1, 2, 3}}
	got, err := DecodeEnvelope(e.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != e.Type || string(got.Body) != string(e.Body) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, e)
	}
}

func TestDecodeEnvelopeEmpty(t *testing.T) {
	if _, err := DecodeEnvelope(nil); err == nil {
		t.Fatal("expected error for empty envelope")
	}
}
