package audio

import (
	"encoding/binary"
	"testing"
)

func TestEncodeWAV_Header(t *testing.T) {
	pcm := Int16ToBytes([]int16{1, 2, 3, 4})
	wav := EncodeWAV(pcm, 22050, 1, 16)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("len = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE prologue")
	}
	if string(wav[12:16]) != "fmt " {
		t.Fatal("missing fmt chunk")
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Errorf("channels = %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 22050 {
		t.Errorf("sample rate = %d, want 22050", got)
	}
	if got := binary.LittleEndian.Uint16(wav[32:34]); got != 2 {
		t.Errorf("block align = %d, want 2", got)
	}
	if string(wav[36:40]) != "data" {
		t.Fatal("missing data chunk")
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data size = %d, want %d", got, len(pcm))
	}
}

func TestEncodeWAV_StereoByteRate(t *testing.T) {
	wav := EncodeWAV(nil, 48000, 2, 16)
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 48000*4 {
		t.Errorf("byte rate = %d, want %d", got, 48000*4)
	}
}
