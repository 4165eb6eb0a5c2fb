package audio

import "encoding/binary"

// G.711 μ-law companding constants. CLIP is the 13-bit magnitude limit
// (8159) and lives in the 14-bit domain: the encoder scales each sample down
// by two bits before clipping and biasing, and the decoder expands straight
// back to 16-bit range through the full bias. The 32635 value seen in some
// telephony codebases is the same limit pre-scaled to 16-bit and must not be
// mixed with this one.
const (
	muLawBias = 0x84
	muLawClip = 8159
)

// DecodeMuLaw expands μ-law bytes into linear PCM16 samples.
func DecodeMuLaw(data []byte) []int16 {
	out := make([]int16, len(data))
	for i, b := range data {
		out[i] = decodeMuLawByte(b)
	}
	return out
}

func decodeMuLawByte(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F

	magnitude := ((int32(mantissa)<<3)+muLawBias)<<exponent - muLawBias

	if sign != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}

// EncodeMuLaw compresses linear PCM16 samples into μ-law bytes. The codec is
// lossy: round trips reproduce samples only within the quantization step of
// the sample's exponent band.
func EncodeMuLaw(samples []int16) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = encodeMuLawSample(s)
	}
	return out
}

func encodeMuLawSample(s int16) byte {
	var sign byte
	magnitude := int32(s)
	if magnitude < 0 {
		sign = 0x80
		magnitude = -magnitude
	}
	magnitude >>= 2
	if magnitude > muLawClip {
		magnitude = muLawClip
	}
	magnitude += muLawBias >> 2
	if magnitude > 0x1FFF {
		// Biased clip maximum; collapses onto the top segment's last code.
		magnitude = 0x1FFF
	}

	exponent := 7
	for mask := int32(0x1000); exponent > 0 && magnitude&mask == 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((magnitude >> (exponent + 1)) & 0x0F)

	return ^(sign | byte(exponent)<<4 | mantissa)
}

// Resample16kTo8k halves the sample rate by dropping every other sample.
// There is no anti-aliasing filter; this trades some high-frequency quality
// for zero added latency, which is the right call for the 8kHz telephony leg.
func Resample16kTo8k(samples []int16) []int16 {
	out := make([]int16, 0, (len(samples)+1)/2)
	for i := 0; i < len(samples); i += 2 {
		out = append(out, samples[i])
	}
	return out
}

// PCM16BytesToSamples reads little-endian PCM16 bytes as samples. A trailing
// odd byte is truncated rather than rejected so a malformed provider chunk
// never errors out of the audio hot path.
func PCM16BytesToSamples(data []byte) []int16 {
	n := len(data) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

// SamplesToPCM16Bytes writes samples as little-endian PCM16 bytes.
func SamplesToPCM16Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// MuLawToPCM16 converts μ-law bytes straight to little-endian PCM16 bytes.
func MuLawToPCM16(data []byte) []byte {
	return SamplesToPCM16Bytes(DecodeMuLaw(data))
}

// PCM16ToMuLaw converts little-endian PCM16 bytes straight to μ-law bytes.
func PCM16ToMuLaw(data []byte) []byte {
	return EncodeMuLaw(PCM16BytesToSamples(data))
}
