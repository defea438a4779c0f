package asdu104

import "testing"

func TestEncodeDecodeASDURoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   ASDU
	}{
		{
			"general interrogation activation",
			ASDU{
				Type: CIcNA1, Cause: CauseAct, CommonAddr: 1,
				Objects: []InformationObject{GeneralInterrogation{IOA: 0, Qualifier: 20}},
			},
		},
		{
			"spontaneous single point, negative confirm",
			ASDU{
				Type: MSpNA1, Cause: CauseSpont, Negative: true, CommonAddr: 7,
				Objects: []InformationObject{SinglePoint{IOA: 55, Value: true}},
			},
		},
		{
			"sequence of three measurements",
			ASDU{
				Type: MMeNA1, Cause: CauseInrogen, CommonAddr: 3, SQ: true,
				Objects: []InformationObject{
					MeasuredNormalized{IOA: 100, Value: 1},
					MeasuredNormalized{IOA: 101, Value: 2},
					MeasuredNormalized{IOA: 102, Value: 3},
				},
			},
		},
		{
			"test bit set",
			ASDU{
				Type: CCsNA1, Cause: CauseAct, Test: true, CommonAddr: 1,
				Objects: []InformationObject{ClockSync{IOA: 0, Time56: CP56Time2a{Day: 1, Month: 1, Year: 26}}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire, err := EncodeASDU(tt.in)
			if err != nil {
				t.Fatalf("EncodeASDU() error = %v", err)
			}
			got, err := DecodeASDU(wire)
			if err != nil {
				t.Fatalf("DecodeASDU() error = %v", err)
			}
			if got.Type != tt.in.Type || got.Cause != tt.in.Cause || got.CommonAddr != tt.in.CommonAddr ||
				got.Negative != tt.in.Negative || got.Test != tt.in.Test || got.SQ != tt.in.SQ {
				t.Errorf("header = %+v, want header from %+v", got, tt.in)
			}
			if len(got.Objects) != len(tt.in.Objects) {
				t.Fatalf("Objects len = %d, want %d", len(got.Objects), len(tt.in.Objects))
			}
		})
	}
}

func TestEncodeASDUNoObjects(t *testing.T) {
	_, err := EncodeASDU(ASDU{Type: MSpNA1, Cause: CauseSpont, CommonAddr: 1})
	if err != ErrBadValue {
		t.Errorf("error = %v, want ErrBadValue", err)
	}
}

func TestDecodeASDUTooShort(t *testing.T) {
	if _, err := DecodeASDU([]byte{1, 2, 3}); err != ErrBadFormat {
		t.Errorf("error = %v, want ErrBadFormat", err)
	}
}

func TestDecodeASDUZeroObjects(t *testing.T) {
	data := []byte{byte(MSpNA1), 0x00, byte(CauseSpont), 0x00, 0x01, 0x00}
	if _, err := DecodeASDU(data); err != ErrBadFormat {
		t.Errorf("error = %v, want ErrBadFormat", err)
	}
}
