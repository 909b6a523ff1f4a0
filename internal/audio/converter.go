package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	SampleRate       = 24000 // Hz, both directions
	Channels         = 1     // mono
	DefaultFrameSize = 4096  // samples per captured block
)

// FloatToPCM16 converts float samples in [-1,1] to signed 16-bit PCM.
// Values are clamped first; negatives scale by 32768 and non-negatives by 32767
// so that neither end of the range overflows.
func FloatToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := float64(s)
		if math.IsNaN(v) {
			v = 0
		}
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}

		if v < 0 {
			out[i] = int16(v * 32768)
		} else {
			out[i] = int16(v * 32767)
		}
	}
	return out
}

// PCM16ToFloat converts signed 16-bit PCM to float samples (symmetric /32768)
func PCM16ToFloat(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// SamplesToBytes serializes samples as little-endian 16-bit PCM
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToSamples parses little-endian 16-bit PCM
func BytesToSamples(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, &DecodeError{Op: "pcm16", Err: fmt.Errorf("%w (got %d bytes)", ErrOddLength, len(data))}
	}

	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples, nil
}

// EncodeTransportText turns binary audio into text that can ride inside a JSON envelope
func EncodeTransportText(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeTransportText reverses EncodeTransportText
func DecodeTransportText(text string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, &DecodeError{Op: "base64", Err: err}
	}
	return data, nil
}

// EncodeFrame runs a captured block through the whole outbound chain:
// float32 -> PCM16 -> little-endian bytes -> base64
func EncodeFrame(samples []float32) string {
	return EncodeTransportText(SamplesToBytes(FloatToPCM16(samples)))
}

// DecodeChunk runs an inbound audio delta through the whole playback chain:
// base64 -> little-endian bytes -> PCM16 -> float32
func DecodeChunk(text string) ([]float32, error) {
	data, err := DecodeTransportText(text)
	if err != nil {
		return nil, err
	}
	samples, err := BytesToSamples(data)
	if err != nil {
		return nil, err
	}
	return PCM16ToFloat(samples), nil
}

// Duration returns how long n mono samples last at the given rate, in seconds
func Duration(n, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(n) / float64(sampleRate)
}

// Resample performs simple linear interpolation resampling.
// Used when a device delivers audio at a rate other than SampleRate.
func Resample(samples []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]int16, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio

		idx0 := int(srcPos)
		if idx0 >= len(samples) {
			idx0 = len(samples) - 1
		}
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}

		fraction := srcPos - float64(idx0)
		output[i] = int16(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction)
	}

	return output
}
