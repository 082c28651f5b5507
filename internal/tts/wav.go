package tts

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Minimal RIFF/WAVE handling. The PCM tier returns one WAV container per
// chunk; to hand back a single playable utterance the orchestrator strips
// each header and re-wraps the concatenated samples exactly once.

const wavHeaderSize = 44

var errNotWAV = errors.New("payload is not a RIFF/WAVE container")

type wavInfo struct {
	SampleRate uint32
	Channels   uint16
	BitsDepth  uint16
}

// stripWAVHeader returns the raw sample data and format of a simple PCM WAV
// payload. Only canonical 44-byte-header files are expected from providers;
// anything else fails rather than producing corrupt audio.
func stripWAVHeader(data []byte) ([]byte, wavInfo, error) {
	if len(data) < wavHeaderSize ||
		!bytes.Equal(data[0:4], []byte("RIFF")) ||
		!bytes.Equal(data[8:12], []byte("WAVE")) {
		return nil, wavInfo{}, errNotWAV
	}
	info := wavInfo{
		Channels:   binary.LittleEndian.Uint16(data[22:24]),
		SampleRate: binary.LittleEndian.Uint32(data[24:28]),
		BitsDepth:  binary.LittleEndian.Uint16(data[34:36]),
	}
	if !bytes.Equal(data[36:40], []byte("data")) {
		return nil, wavInfo{}, fmt.Errorf("unsupported WAV layout: %w", errNotWAV)
	}
	size := binary.LittleEndian.Uint32(data[40:44])
	pcm := data[wavHeaderSize:]
	if int(size) < len(pcm) {
		pcm = pcm[:size]
	}
	return pcm, info, nil
}

// encodeWAV wraps raw little-endian PCM samples in a canonical header.
func encodeWAV(pcm []byte, info wavInfo) []byte {
	if info.BitsDepth == 0 {
		info.BitsDepth = 16
	}
	if info.Channels == 0 {
		info.Channels = 1
	}
	bytesPerFrame := uint32(info.Channels) * uint32(info.BitsDepth) / 8

	header := make([]byte, wavHeaderSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(pcm))+wavHeaderSize-8)
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1)
	binary.LittleEndian.PutUint16(header[22:24], info.Channels)
	binary.LittleEndian.PutUint32(header[24:28], info.SampleRate)
	binary.LittleEndian.PutUint32(header[28:32], info.SampleRate*bytesPerFrame)
	binary.LittleEndian.PutUint16(header[32:34], uint16(bytesPerFrame))
	binary.LittleEndian.PutUint16(header[34:36], info.BitsDepth)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(pcm)))

	return append(header, pcm...)
}

// concatAudio joins per-chunk buffers into one payload. WAV buffers are
// merged at the sample level so the result remains one valid container;
// every other format concatenates byte-wise (valid for MP3 frame streams).
func concatAudio(buffers [][]byte, format Format) ([]byte, error) {
	if len(buffers) == 1 {
		return buffers[0], nil
	}
	if format != FormatWAV {
		var out []byte
		for _, b := range buffers {
			out = append(out, b...)
		}
		return out, nil
	}

	var pcm []byte
	var info wavInfo
	for i, b := range buffers {
		samples, chunkInfo, err := stripWAVHeader(b)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		if i == 0 {
			info = chunkInfo
		}
		pcm = append(pcm, samples...)
	}
	return encodeWAV(pcm, info), nil
}
