package audio

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrPermissionDenied is returned by a Platform when the host refuses
// microphone access. The session treats it as a clean abort, not a crash.
var ErrPermissionDenied = errors.New("audio: microphone permission denied")

// WAV wraps raw 16-bit PCM data in a RIFF/WAVE header so it can be handed to
// batch transcription APIs that refuse headerless PCM.
func WAV(pcm []byte, sampleRate, channels int) []byte {
	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	buf := make([]byte, 0, 44+len(pcm))
	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+len(pcm)))
	buf = append(buf, "WAVE"...)
	buf = append(buf, "fmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1) // PCM
	buf = binary.LittleEndian.AppendUint16(buf, uint16(channels))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(sampleRate))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(byteRate))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(blockAlign))
	buf = binary.LittleEndian.AppendUint16(buf, bitsPerSample)
	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(pcm)))
	buf = append(buf, pcm...)
	return buf
}

// PCMToFloat32Mono converts 16-bit little-endian PCM to float32 mono samples
// in [-1, 1], downmixing stereo by averaging. Used by the native whisper
// transcriber, which only accepts float32 mono.
func PCMToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels <= 0 {
		channels = 1
	}
	frames := len(pcm) / 2 / channels
	out := make([]float32, 0, frames)
	for i := 0; i < frames; i++ {
		var sum int
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 2
			s := int16(binary.LittleEndian.Uint16(pcm[off : off+2]))
			sum += int(s)
		}
		out = append(out, float32(sum/channels)/32768.0)
	}
	return out
}

// RMS computes the root-mean-square level of a 16-bit PCM chunk, normalised
// to [0, 1]. Used for input level metering.
func RMS(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}
	var sum float64
	n := len(pcm) / 2
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		sum += s * s
	}
	return math.Sqrt(sum/float64(n)) / 32768.0
}
