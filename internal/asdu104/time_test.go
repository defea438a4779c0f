package asdu104

import (
	"testing"
	"time"
)

func TestCP24Time2aRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   CP24Time2a
	}{
		{"zero", CP24Time2a{}},
		{"max minute and millisecond", CP24Time2a{Millisecond: 59999, Minute: 59}},
		{"invalid flag set", CP24Time2a{Millisecond: 1234, Minute: 30, Invalid: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire := EncodeCP24Time2a(tt.in)
			got, err := DecodeCP24Time2a(wire[:])
			if err != nil {
				t.Fatalf("DecodeCP24Time2a() error = %v", err)
			}
			if got != tt.in {
				t.Errorf("round trip = %+v, want %+v", got, tt.in)
			}
		})
	}
}

func TestDecodeCP24Time2aShortBuffer(t *testing.T) {
	if _, err := DecodeCP24Time2a([]byte{0x00, 0x00}); err != ErrBadFormat {
		t.Errorf("error = %v, want ErrBadFormat", err)
	}
}

func TestCP56Time2aRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   CP56Time2a
	}{
		{"zero", CP56Time2a{Day: 0, Month: 0, Year: 0}},
		{
			"typical timestamp",
			CP56Time2a{
				Millisecond: 45123, Minute: 37, Hour: 14,
				Day: 30, Weekday: 4, Month: 7, Year: 26,
			},
		},
		{
			"summer time and invalid flags",
			CP56Time2a{
				Millisecond: 999, Minute: 0, Invalid: true, Hour: 23,
				SummerTime: true, Day: 31, Weekday: 7, Month: 12, Year: 99,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire := EncodeCP56Time2a(tt.in)
			got, err := DecodeCP56Time2a(wire[:])
			if err != nil {
				t.Fatalf("DecodeCP56Time2a() error = %v", err)
			}
			if got != tt.in {
				t.Errorf("round trip = %+v, want %+v", got, tt.in)
			}
		})
	}
}

func TestDecodeCP56Time2aShortBuffer(t *testing.T) {
	if _, err := DecodeCP56Time2a(make([]byte, 6)); err != ErrBadFormat {
		t.Errorf("error = %v, want ErrBadFormat", err)
	}
}

func TestNewCP56Time2aWeekdaySunday(t *testing.T) {
	// 2026-08-02 is a Sunday; CP56 encodes Sunday as 7, not 0.
	sunday := time.Date(2026, time.August, 2, 10, 0, 0, 0, time.UTC)
	cp := NewCP56Time2a(sunday)
	if cp.Weekday != 7 {
		t.Errorf("Weekday = %d, want 7", cp.Weekday)
	}
}

func TestNewCP56Time2aToTimeRoundTrip(t *testing.T) {
	want := time.Date(2026, time.March, 15, 9, 41, 22, 500_000_000, time.UTC)
	cp := NewCP56Time2a(want)
	got := cp.ToTime(time.UTC)
	if !got.Equal(want) {
		t.Errorf("ToTime() = %v, want %v", got, want)
	}
}
