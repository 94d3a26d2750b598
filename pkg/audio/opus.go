package audio

import (
	"encoding/binary"
	"fmt"

	"layeh.com/gopus"
)

// maxOpusFrameSamples is the largest frame size Opus permits at 48 kHz
// (120 ms). Decode buffers are sized for it so any legal packet fits.
const maxOpusFrameSamples = 5760

// OpusDecoder decodes a stream of raw Opus packets into PCM frames. The
// browser side of the bridge ships each MediaRecorder packet as one binary
// message, so no container parsing is needed here.
//
// Not safe for concurrent use; create one per capture stream.
type OpusDecoder struct {
	dec        *gopus.Decoder
	sampleRate int
	channels   int
}

// NewOpusDecoder creates a decoder for the given output format.
func NewOpusDecoder(sampleRate, channels int) (*OpusDecoder, error) {
	dec, err := gopus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec, sampleRate: sampleRate, channels: channels}, nil
}

// Decode decodes one Opus packet into a PCM [Frame]. A corrupt packet yields
// an error; the caller may drop the packet and continue with the next one.
func (d *OpusDecoder) Decode(packet []byte) (Frame, error) {
	samples, err := d.dec.Decode(packet, maxOpusFrameSamples, false)
	if err != nil {
		return Frame{}, fmt.Errorf("audio: decode opus packet: %w", err)
	}
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return Frame{Data: data, SampleRate: d.sampleRate, Channels: d.channels}, nil
}
