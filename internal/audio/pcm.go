package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DecodePCM16 converts little-endian 16-bit PCM bytes into normalized
// float64 samples in [-1, 1].
func DecodePCM16(raw []byte) ([]float64, error) {
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("pcm payload has odd length %d", len(raw))
	}
	samples := make([]float64, len(raw)/2)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(raw[2*i:]))
		samples[i] = float64(s) / 32768.0
	}
	return samples, nil
}

// PeakAmplitude returns the maximum absolute sample value. Zero for empty input.
func PeakAmplitude(samples []float64) float64 {
	peak := 0.0
	for _, s := range samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	return peak
}
