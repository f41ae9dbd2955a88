package audio

import (
	"bytes"
	"encoding/binary"
)

// wavHeader is the fixed 44-byte canonical RIFF/WAVE prologue written by
// [EncodeWAV]: a RIFF chunk wrapping one fmt chunk and one data chunk.
type wavHeader struct {
	RIFF          [4]byte
	FileSize      uint32
	WAVE          [4]byte
	FmtTag        [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataTag       [4]byte
	DataSize      uint32
}

// EncodeWAV wraps raw PCM in a canonical 44-byte-header WAV container so a
// decoded buffer can be served as a playable file. bits must be 8 or 16;
// channels 1 or 2. The input is not validated beyond computing the derived
// header fields.
func EncodeWAV(pcm []byte, sampleRate, channels, bits int) []byte {
	blockAlign := channels * bits / 8
	hdr := wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		FileSize:      uint32(36 + len(pcm)),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		FmtTag:        [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1, // PCM
		Channels:      uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * blockAlign),
		BlockAlign:    uint16(blockAlign),
		BitsPerSample: uint16(bits),
		DataTag:       [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(len(pcm)),
	}

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	// binary.Write on a fixed-size struct of integer fields cannot fail.
	_ = binary.Write(&buf, binary.LittleEndian, hdr)
	buf.Write(pcm)
	return buf.Bytes()
}
