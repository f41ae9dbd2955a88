// Package wav decodes the RIFF/WAVE container incrementally from a live byte
// source. The parser never materialises the payload: it consumes exactly the
// header bytes and leaves the reader positioned at the first PCM byte, so a
// response body can be streamed straight into the playback engine.
//
// Only the subset produced by TTS gateways is accepted: PCM (format tag 1),
// 1 or 2 channels, 8 or 16 bits per sample, chunks in any order as long as
// "fmt " precedes "data". Anything else is rejected with one of the sentinel
// errors below so callers can map failures to channel status codes.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Parse errors. These cover the malformed-input taxonomy; transport-level
// stalls surface as [ErrStreamStall] from the [StallReader] wrapping the
// source.
var (
	ErrBadRIFFHeader      = errors.New("wav: missing or malformed RIFF/WAVE prologue")
	ErrBadFormatChunk     = errors.New("wav: malformed fmt chunk")
	ErrUnsupportedFormat  = errors.New("wav: unsupported audio format")
	ErrFormatChunkMissing = errors.New("wav: data chunk before fmt chunk")
	ErrZeroLengthData     = errors.New("wav: zero-length data chunk")
)

// StreamInfo is the decoded header of an accepted WAV stream. It is consumed
// by the playback engine and discarded afterwards.
type StreamInfo struct {
	Channels      int // 1 or 2
	BitsPerSample int // 8 or 16
	BlockAlign    int // Channels * BitsPerSample/8, validated against the header
	SampleRate    int // > 0
	DataBytes     int // remaining PCM payload length declared by the data chunk
}

// FrameBytes returns the size of one sample frame in bytes.
func (si StreamInfo) FrameBytes() int { return si.BlockAlign }

// ParseHeader reads and validates the WAV header from r, consuming bytes as it
// goes. On success the reader is positioned at the first byte of PCM data and
// the returned info carries the declared data length.
//
// r is typically a [StallReader] so that a stalled peer cannot block a single
// read indefinitely.
func ParseHeader(r io.Reader) (StreamInfo, error) {
	var prologue [12]byte
	if _, err := io.ReadFull(r, prologue[:]); err != nil {
		return StreamInfo{}, fmt.Errorf("%w: %w", ErrBadRIFFHeader, err)
	}
	if string(prologue[0:4]) != "RIFF" || string(prologue[8:12]) != "WAVE" {
		return StreamInfo{}, ErrBadRIFFHeader
	}

	var info StreamInfo
	gotFmt := false
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return StreamInfo{}, fmt.Errorf("wav: read chunk header: %w", err)
		}
		tag := string(hdr[0:4])
		size := int(binary.LittleEndian.Uint32(hdr[4:8]))

		switch tag {
		case "fmt ":
			if size < 16 {
				return StreamInfo{}, fmt.Errorf("%w: declared size %d < 16", ErrBadFormatChunk, size)
			}
			var fmtBody [16]byte
			if _, err := io.ReadFull(r, fmtBody[:]); err != nil {
				return StreamInfo{}, fmt.Errorf("%w: %w", ErrBadFormatChunk, err)
			}
			audioFormat := int(binary.LittleEndian.Uint16(fmtBody[0:2]))
			channels := int(binary.LittleEndian.Uint16(fmtBody[2:4]))
			sampleRate := int(binary.LittleEndian.Uint32(fmtBody[4:8]))
			blockAlign := int(binary.LittleEndian.Uint16(fmtBody[12:14]))
			bits := int(binary.LittleEndian.Uint16(fmtBody[14:16]))

			if audioFormat != 1 || channels == 0 || channels > 2 || sampleRate == 0 ||
				(bits != 8 && bits != 16) || blockAlign == 0 {
				return StreamInfo{}, fmt.Errorf("%w: format=%d channels=%d rate=%d bits=%d",
					ErrUnsupportedFormat, audioFormat, channels, sampleRate, bits)
			}
			if blockAlign != channels*(bits/8) {
				return StreamInfo{}, fmt.Errorf("%w: block align %d != channels*bytes %d",
					ErrBadFormatChunk, blockAlign, channels*(bits/8))
			}

			// Extended fmt chunks declare extra bytes after the 16 we need.
			if size > 16 {
				if err := discard(r, size-16); err != nil {
					return StreamInfo{}, fmt.Errorf("%w: skip extension: %w", ErrBadFormatChunk, err)
				}
			}
			if size%2 != 0 {
				if err := discard(r, 1); err != nil {
					return StreamInfo{}, fmt.Errorf("%w: skip pad: %w", ErrBadFormatChunk, err)
				}
			}

			info.Channels = channels
			info.BitsPerSample = bits
			info.SampleRate = sampleRate
			info.BlockAlign = blockAlign
			gotFmt = true

		case "data":
			if !gotFmt {
				return StreamInfo{}, ErrFormatChunkMissing
			}
			if size == 0 {
				return StreamInfo{}, ErrZeroLengthData
			}
			info.DataBytes = size
			return info, nil

		default:
			// Unknown chunk: skip payload plus the word-alignment pad byte.
			if err := discard(r, size); err != nil {
				return StreamInfo{}, fmt.Errorf("wav: skip %q chunk: %w", tag, err)
			}
			if size%2 != 0 {
				if err := discard(r, 1); err != nil {
					return StreamInfo{}, fmt.Errorf("wav: skip %q pad: %w", tag, err)
				}
			}
		}
	}
}

// discard consumes exactly n bytes from r.
func discard(r io.Reader, n int) error {
	if n <= 0 {
		return nil
	}
	_, err := io.CopyN(io.Discard, r, int64(n))
	return err
}
