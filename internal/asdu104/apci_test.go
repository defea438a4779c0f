package asdu104

import "testing"

func TestIFrameAPCIRoundTrip(t *testing.T) {
	tests := []struct {
		name         string
		sendN, recvN uint16
	}{
		{"zero", 0, 0},
		{"typical", 3, 1},
		{"near wraparound", 32767, 32766},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := IFrame{SendSN: tt.sendN, RecvSN: tt.recvN, ASDU: []byte{0xaa, 0xbb}}
			cf, asdu := EncodeAPCI(in)
			frame, err := DecodeAPCI(cf, asdu)
			if err != nil {
				t.Fatalf("DecodeAPCI() error = %v", err)
			}
			got, ok := frame.(IFrame)
			if !ok {
				t.Fatalf("decoded %T, want IFrame", frame)
			}
			if got.SendSN != tt.sendN || got.RecvSN != tt.recvN {
				t.Errorf("got SendSN=%d RecvSN=%d, want %d/%d", got.SendSN, got.RecvSN, tt.sendN, tt.recvN)
			}
		})
	}
}

func TestSFrameAPCIRoundTrip(t *testing.T) {
	in := SFrame{RecvSN: 42}
	cf, asdu := EncodeAPCI(in)
	if len(asdu) != 0 {
		t.Fatalf("S-frame must carry no ASDU, got %d bytes", len(asdu))
	}
	frame, err := DecodeAPCI(cf, nil)
	if err != nil {
		t.Fatalf("DecodeAPCI() error = %v", err)
	}
	got, ok := frame.(SFrame)
	if !ok {
		t.Fatalf("decoded %T, want SFrame", frame)
	}
	if got.RecvSN != 42 {
		t.Errorf("RecvSN = %d, want 42", got.RecvSN)
	}
}

func TestUFrameAPCIRoundTrip(t *testing.T) {
	for fn := range uFrameCF1 {
		cf, _ := EncodeAPCI(UFrame{Function: fn})
		frame, err := DecodeAPCI(cf, nil)
		if err != nil {
			t.Fatalf("DecodeAPCI() error = %v", err)
		}
		got, ok := frame.(UFrame)
		if !ok {
			t.Fatalf("decoded %T, want UFrame", frame)
		}
		if got.Function != fn {
			t.Errorf("Function = %v, want %v", got.Function, fn)
		}
	}
}

func TestDecodeAPCIUnknownUFunction(t *testing.T) {
	if _, err := DecodeAPCI([4]byte{0xff, 0xff, 0xff, 0xff}, nil); err != ErrBadFormat {
		t.Errorf("error = %v, want ErrBadFormat", err)
	}
}
