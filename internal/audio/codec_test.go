package audio

import "testing"

func TestMuLawRoundTripWithinQuantizationError(t *testing.T) {
	for s := -32768; s <= 32767; s++ {
		b := encodeMuLawSample(int16(s))
		got := decodeMuLawByte(b)

		// Quantization step of the code's exponent band, in 16-bit range.
		exponent := (^b >> 4) & 0x07
		tolerance := int32(1) << (exponent + 3)

		diff := int32(got) - int32(s)
		if diff < 0 {
			diff = -diff
		}
		if diff > tolerance {
			t.Fatalf("decode(encode(%d)) = %d, off by %d (tolerance %d)", s, got, diff, tolerance)
		}
	}
}

func TestMuLawRoundTripIsNotBitExact(t *testing.T) {
	// The codec is lossy; at least one sample in a mid band must quantize.
	exact := true
	for s := int16(1000); s < 1100; s++ {
		if decodeMuLawByte(encodeMuLawSample(s)) != s {
			exact = false
			break
		}
	}
	if exact {
		t.Fatalf("expected quantization loss in the 1000..1100 band")
	}
}

func TestEncodeMuLawPreservesLoudSamples(t *testing.T) {
	// Loud audio must keep its amplitude: only the very top of the range
	// saturates onto the last code.
	if got := decodeMuLawByte(encodeMuLawSample(16384)); got < 16000 || got > 17000 {
		t.Fatalf("decode(encode(16384)) = %d, want near 16384", got)
	}
	if got := decodeMuLawByte(encodeMuLawSample(32767)); got != 32124 {
		t.Fatalf("decode(encode(32767)) = %d, want 32124", got)
	}
	if got := decodeMuLawByte(encodeMuLawSample(-32768)); got != -32124 {
		t.Fatalf("decode(encode(-32768)) = %d, want -32124", got)
	}
	if got := decodeMuLawByte(encodeMuLawSample(-32000)); got > 0 {
		t.Fatalf("negative loud sample decoded positive: %d", got)
	}
}

func TestMuLawZeroAndSign(t *testing.T) {
	if got := decodeMuLawByte(encodeMuLawSample(0)); got != 0 {
		t.Fatalf("decode(encode(0)) = %d, want 0", got)
	}
	if got := decodeMuLawByte(encodeMuLawSample(-500)); got >= 0 {
		t.Fatalf("decode(encode(-500)) = %d, want negative", got)
	}
	if got := decodeMuLawByte(encodeMuLawSample(500)); got <= 0 {
		t.Fatalf("decode(encode(500)) = %d, want positive", got)
	}
}

func TestResample16kTo8kDropsEveryOtherSample(t *testing.T) {
	in := []int16{1, 2, 3, 4, 5}
	got := Resample16kTo8k(in)
	want := []int16{1, 3, 5}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestPCM16BytesTruncatesOddTail(t *testing.T) {
	samples := PCM16BytesToSamples([]byte{0x34, 0x12, 0xFF})
	if len(samples) != 1 {
		t.Fatalf("len = %d, want 1 (odd byte truncated)", len(samples))
	}
	if samples[0] != 0x1234 {
		t.Fatalf("sample = %#x, want 0x1234", samples[0])
	}
}

func TestPCM16BytesRoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 12345, -12345, 32767, -32768}
	got := PCM16BytesToSamples(SamplesToPCM16Bytes(in))
	if len(got) != len(in) {
		t.Fatalf("len = %d, want %d", len(got), len(in))
	}
	for i := range in {
		if got[i] != in[i] {
			t.Fatalf("sample %d = %d, want %d", i, got[i], in[i])
		}
	}
}
