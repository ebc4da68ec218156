package audio

import (
	"math"
	"testing"
)

func TestDecodePCM16(t *testing.T) {
	// Samples: 0, 16384 (0.5), -32768 (-1.0).
	raw := []byte{0x00, 0x00, 0x00, 0x40, 0x00, 0x80}
	samples, err := DecodePCM16(raw)
	if err != nil {
		t.Fatalf("DecodePCM16() error = %v", err)
	}
	want := []float64{0, 0.5, -1.0}
	if len(samples) != len(want) {
		t.Fatalf("len = %d, want %d", len(samples), len(want))
	}
	for i := range want {
		if math.Abs(samples[i]-want[i]) > 1e-9 {
			t.Fatalf("samples[%d] = %v, want %v", i, samples[i], want[i])
		}
	}
}

func TestDecodePCM16OddLength(t *testing.T) {
	if _, err := DecodePCM16([]byte{0x01}); err == nil {
		t.Fatal("DecodePCM16() error = nil, want odd-length error")
	}
}

func TestPeakAmplitude(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
		want    float64
	}{
		{"empty", nil, 0},
		{"all zero", []float64{0, 0, 0}, 0},
		{"positive peak", []float64{0.1, 0.7, 0.3}, 0.7},
		{"negative peak", []float64{0.1, -0.9, 0.3}, 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PeakAmplitude(tt.samples); got != tt.want {
				t.Fatalf("PeakAmplitude() = %v, want %v", got, tt.want)
			}
		})
	}
}
