package device

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lexiqai/interview-client/internal/audio"
	"github.com/lexiqai/interview-client/internal/capture"
)

// readN reads from s until n samples arrive or the stream ends
func readN(t *testing.T, s capture.Stream, n int) ([]float32, error) {
	t.Helper()
	out := make([]float32, 0, n)
	buf := make([]float32, 256)
	deadline := time.Now().Add(2 * time.Second)
	for len(out) < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out after %d of %d samples", len(out), n)
		}
		k, err := s.Read(buf)
		out = append(out, buf[:k]...)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func ramp(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i%200-100) / 128
	}
	return out
}

func TestWAVSpeakerRecordingReadsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	speaker := &WAVSpeaker{Path: path, Fast: true}

	out, err := speaker.Open(audio.SampleRate)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	first, second := ramp(1000), ramp(600)
	for _, chunk := range [][]float32{first, second} {
		if err := out.Play(context.Background(), chunk); err != nil {
			t.Fatalf("Play() error = %v", err)
		}
	}
	if err := out.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := out.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := int64(wavHeaderSize + 2*1600); info.Size() != want {
		t.Errorf("file size = %d, want %d", info.Size(), want)
	}

	source := &WAVSource{Path: path, Fast: true}
	stream, err := source.Open(context.Background(), audio.SampleRate)
	if err != nil {
		t.Fatalf("WAVSource.Open() error = %v", err)
	}
	defer stream.Close()

	got, err := readN(t, stream, 1601)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF at end of file, got %v", err)
	}
	want := append(append([]float32{}, first...), second...)
	if len(got) != len(want) {
		t.Fatalf("read %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if d := got[i] - want[i]; d > 2.0/32768 || d < -2.0/32768 {
			t.Fatalf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func writeStereoWAV(t *testing.T, rate int, frames [][2]int16) string {
	t.Helper()
	var buf bytes.Buffer
	data := new(bytes.Buffer)
	for _, f := range frames {
		binary.Write(data, binary.LittleEndian, f)
	}
	list := []byte("INFOxyz") // odd size, padded

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(4+8+16+8+len(list)+1+8+data.Len()))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, struct {
		AudioFormat, NumChannels uint16
		SampleRate, ByteRate     uint32
		BlockAlign, Bits         uint16
	}{1, 2, uint32(rate), uint32(rate * 4), 4, 16})
	buf.WriteString("LIST")
	binary.Write(&buf, binary.LittleEndian, uint32(len(list)))
	buf.Write(list)
	buf.WriteByte(0)
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(data.Len()))
	buf.Write(data.Bytes())

	path := filepath.Join(t.TempDir(), "stereo.wav")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestWAVSourceDownmixesStereo(t *testing.T) {
	path := writeStereoWAV(t, audio.SampleRate, [][2]int16{{1000, 3000}, {-2000, -4000}, {0, 100}})

	stream, err := (&WAVSource{Path: path, Fast: true}).Open(context.Background(), audio.SampleRate)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer stream.Close()

	got, err := readN(t, stream, 4)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	want := audio.PCM16ToFloat([]int16{2000, -3000, 50})
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestWAVSourceResamples(t *testing.T) {
	frames := make([][2]int16, 480) // 40ms at 12 kHz
	path := writeStereoWAV(t, 12000, frames)

	stream, err := (&WAVSource{Path: path, Fast: true}).Open(context.Background(), audio.SampleRate)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer stream.Close()

	got, _ := readN(t, stream, 2000)
	if len(got) != 960 {
		t.Errorf("got %d samples after resampling, want 960", len(got))
	}
}

func TestReadWAVHeaderRejectsNonPCM(t *testing.T) {
	var buf bytes.Buffer
	header := newWAVHeader(audio.SampleRate, 0)
	header.BitsPerSample = 8
	binary.Write(&buf, binary.LittleEndian, header)

	if _, err := readWAVHeader(&buf); !errors.Is(err, errNotPCM16) {
		t.Errorf("expected errNotPCM16, got %v", err)
	}

	if _, err := readWAVHeader(bytes.NewReader([]byte("RIFF\x00\x00\x00\x00JUNK"))); err == nil {
		t.Error("expected error for non-WAVE file")
	}
}

func TestWAVSourceMissingFile(t *testing.T) {
	_, err := (&WAVSource{Path: filepath.Join(t.TempDir(), "missing.wav")}).Open(context.Background(), audio.SampleRate)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWAVSourcePacesPlayback(t *testing.T) {
	path := writeStereoWAV(t, audio.SampleRate, make([][2]int16, 2400)) // 100ms

	stream, err := (&WAVSource{Path: path}).Open(context.Background(), audio.SampleRate)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer stream.Close()

	start := time.Now()
	readN(t, stream, 2401)
	if elapsed := time.Since(start); elapsed < 70*time.Millisecond {
		t.Errorf("file streamed in %v, expected roughly real time", elapsed)
	}
}

func TestWAVSourceCloseUnblocksRead(t *testing.T) {
	path := writeStereoWAV(t, audio.SampleRate, make([][2]int16, 24000)) // 1s

	stream, err := (&WAVSource{Path: path}).Open(context.Background(), audio.SampleRate)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := readN(t, stream, 24001)
		done <- err
	}()

	time.Sleep(30 * time.Millisecond)
	stream.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrStreamClosed) {
			t.Errorf("expected ErrStreamClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Read did not return after Close")
	}
}

func TestPCMSourceStreamsPipe(t *testing.T) {
	pr, pw := io.Pipe()
	source := &PCMSource{Reader: pr}

	stream, err := source.Open(context.Background(), audio.SampleRate)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if _, err := source.Open(context.Background(), audio.SampleRate); !errors.Is(err, ErrDeviceBusy) {
		t.Errorf("second Open() error = %v, want ErrDeviceBusy", err)
	}

	block := make([]int16, blockSamples(audio.SampleRate))
	for i := range block {
		block[i] = int16(i)
	}
	go pw.Write(audio.SamplesToBytes(block))

	got, err := readN(t, stream, len(block))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	for i := range block {
		if got[i] != float32(block[i])/32768 {
			t.Fatalf("sample %d = %v, want %v", i, got[i], float32(block[i])/32768)
		}
	}

	stream.Close()
	if _, err := stream.Read(make([]float32, 4)); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("Read after Close error = %v, want ErrStreamClosed", err)
	}

	reopened, err := source.Open(context.Background(), audio.SampleRate)
	if err != nil {
		t.Fatalf("Open after Close error = %v", err)
	}

	pw.Close()
	if _, err := readN(t, reopened, 1); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF when the pipe closes, got %v", err)
	}
	reopened.Close()

	if _, err := source.Open(context.Background(), audio.SampleRate); !errors.Is(err, ErrInputEnded) {
		t.Errorf("Open after input ended error = %v, want ErrInputEnded", err)
	}
}

func TestPCMSourceRequiresReader(t *testing.T) {
	if _, err := (&PCMSource{}).Open(context.Background(), audio.SampleRate); err == nil {
		t.Fatal("expected error without a reader")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (&PCMSource{Reader: bytes.NewReader(nil)}).Open(ctx, audio.SampleRate); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestPCMSpeakerPacesAndWrites(t *testing.T) {
	var buf bytes.Buffer
	out, err := (&PCMSpeaker{Writer: &buf}).Open(audio.SampleRate)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer out.Close()

	samples := make([]float32, 2400) // 100ms
	samples[0] = -1
	start := time.Now()
	if err := out.Play(context.Background(), samples); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("Play returned after %v, want at least the chunk duration", elapsed)
	}
	if buf.Len() != 4800 {
		t.Errorf("wrote %d bytes, want 4800", buf.Len())
	}
	if got := int16(binary.LittleEndian.Uint16(buf.Bytes())); got != -32768 {
		t.Errorf("first sample = %d, want -32768", got)
	}
}

func TestPCMSpeakerPlayCancelled(t *testing.T) {
	out, err := (&PCMSpeaker{Writer: io.Discard}).Open(audio.SampleRate)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	err = out.Play(ctx, make([]float32, audio.SampleRate)) // 1s
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Play took %v after cancellation", elapsed)
	}
}

func TestDownmix(t *testing.T) {
	got := downmix([]int16{10, 20, -30, -10, 7}, 2)
	want := []int16{15, -20}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d = %d, want %d", i, got[i], want[i])
		}
	}
}
