package device

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// wavHeader is the canonical 44-byte header of a PCM16 WAV file
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

const wavHeaderSize = 44

// wavFormat describes the PCM data found in a WAV file
type wavFormat struct {
	SampleRate int
	Channels   int
	DataSize   uint32
}

var errNotPCM16 = errors.New("only 16-bit PCM WAV is supported")

func newWAVHeader(sampleRate int, dataSize uint32) wavHeader {
	const (
		numChannels   = 1
		bitsPerSample = 16
	)
	return wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * numChannels * bitsPerSample / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// writeWAVHeader writes a mono PCM16 header
func writeWAVHeader(w io.Writer, sampleRate int, dataSize uint32) error {
	if err := binary.Write(w, binary.LittleEndian, newWAVHeader(sampleRate, dataSize)); err != nil {
		return fmt.Errorf("failed to write WAV header: %w", err)
	}
	return nil
}

// readWAVHeader walks the RIFF chunks up to the start of the data chunk,
// leaving r positioned at the first sample
func readWAVHeader(r io.Reader) (wavFormat, error) {
	var riff struct {
		ChunkID   [4]byte
		ChunkSize uint32
		Format    [4]byte
	}
	if err := binary.Read(r, binary.LittleEndian, &riff); err != nil {
		return wavFormat{}, fmt.Errorf("failed to read RIFF header: %w", err)
	}
	if string(riff.ChunkID[:]) != "RIFF" || string(riff.Format[:]) != "WAVE" {
		return wavFormat{}, fmt.Errorf("not a WAV file")
	}

	var format wavFormat
	haveFmt := false
	for {
		var chunk struct {
			ID   [4]byte
			Size uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &chunk); err != nil {
			return wavFormat{}, fmt.Errorf("failed to read WAV chunk: %w", err)
		}
		// chunks are word aligned
		padded := int64(chunk.Size) + int64(chunk.Size%2)

		switch string(chunk.ID[:]) {
		case "fmt ":
			var f struct {
				AudioFormat   uint16
				NumChannels   uint16
				SampleRate    uint32
				ByteRate      uint32
				BlockAlign    uint16
				BitsPerSample uint16
			}
			if chunk.Size < 16 {
				return wavFormat{}, fmt.Errorf("fmt chunk too short: %d bytes", chunk.Size)
			}
			if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
				return wavFormat{}, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			if f.AudioFormat != 1 || f.BitsPerSample != 16 {
				return wavFormat{}, errNotPCM16
			}
			if f.NumChannels == 0 || f.SampleRate == 0 {
				return wavFormat{}, fmt.Errorf("invalid WAV format: %d channels at %d Hz", f.NumChannels, f.SampleRate)
			}
			format.Channels = int(f.NumChannels)
			format.SampleRate = int(f.SampleRate)
			haveFmt = true
			if _, err := io.CopyN(io.Discard, r, padded-16); err != nil {
				return wavFormat{}, fmt.Errorf("failed to skip fmt extension: %w", err)
			}

		case "data":
			if !haveFmt {
				return wavFormat{}, fmt.Errorf("data chunk before fmt chunk")
			}
			format.DataSize = chunk.Size
			return format, nil

		default:
			if _, err := io.CopyN(io.Discard, r, padded); err != nil {
				return wavFormat{}, fmt.Errorf("failed to skip %q chunk: %w", string(chunk.ID[:]), err)
			}
		}
	}
}
