package audio

import (
	"bytes"
	"testing"
)

func TestExtractPCMFromWAVReturnsDataPayload(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	wav, err := EncodeWAVPCM16LE(pcm, 8000)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}

	got := ExtractPCMFromWAV(wav)
	if !bytes.Equal(got, pcm) {
		t.Fatalf("payload = %v, want %v", got, pcm)
	}
}

func TestExtractPCMFromWAVMissingDataChunk(t *testing.T) {
	if got := ExtractPCMFromWAV([]byte("RIFF....WAVEfmt ")); got != nil {
		t.Fatalf("payload = %v, want nil for missing data chunk", got)
	}
}

func TestExtractPCMFromWAVTruncatedHeader(t *testing.T) {
	// A data tag with no room for the length field must not panic.
	if got := ExtractPCMFromWAV([]byte("data")); got != nil {
		t.Fatalf("payload = %v, want nil for truncated header", got)
	}
}

func TestExtractPCMFromWAVHonorsDeclaredLength(t *testing.T) {
	// Declared chunk size smaller than the trailing bytes: only the declared
	// span is audio, the rest is another chunk.
	buf := append([]byte("data"), 0x02, 0x00, 0x00, 0x00)
	buf = append(buf, 0xAA, 0xBB, 0xCC, 0xDD)
	got := ExtractPCMFromWAV(buf)
	if !bytes.Equal(got, []byte{0xAA, 0xBB}) {
		t.Fatalf("payload = %v, want [0xAA 0xBB]", got)
	}
}

func TestEncodeWAVPCM16LEHeader(t *testing.T) {
	pcm := make([]byte, 320)
	wav, err := EncodeWAVPCM16LE(pcm, 16000)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}
	if !bytes.HasPrefix(wav, []byte("RIFF")) {
		t.Fatalf("missing RIFF prefix")
	}
	if !bytes.Contains(wav, []byte("WAVE")) || !bytes.Contains(wav, []byte("fmt ")) {
		t.Fatalf("missing WAVE/fmt chunks")
	}
	if len(wav) != 44+len(pcm) {
		t.Fatalf("len = %d, want %d", len(wav), 44+len(pcm))
	}
}
