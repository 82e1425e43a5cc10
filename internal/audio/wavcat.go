package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/akosiraffytot/speechmaker-sub000/internal/domain"
)

// concatWAV joins uniformly formatted WAV files by appending their PCM
// payloads under a rebuilt RIFF header. Speech engines write all units of a
// job with the same format chunk, which this relies on.
func concatWAV(inputs []string, outputPath string) error {
	var fmtChunk []byte
	var data []byte

	for _, input := range inputs {
		content, err := os.ReadFile(input)
		if err != nil {
			return domain.ClassifyFilesystem("merge", input, err)
		}

		unitFmt, unitData, err := parseWAV(content)
		if err != nil {
			return domain.NewError(domain.ErrExternal, "merge",
				fmt.Sprintf("cannot merge %s: %v", filepath.Base(input), err), err).WithSteps(
				"Retry the conversion; the synthesized unit may be incomplete.",
				"Install ffmpeg to merge units the speech engine wrote in another layout.",
			)
		}

		if fmtChunk == nil {
			fmtChunk = unitFmt
		} else if !bytes.Equal(fmtChunk, unitFmt) {
			return domain.NewError(domain.ErrExternal, "merge",
				fmt.Sprintf("cannot merge %s: audio format differs from earlier units", filepath.Base(input)), nil).WithSteps(
				"Install ffmpeg, which can merge units with differing formats.",
			)
		}
		data = append(data, unitData...)
	}

	merged := buildWAV(fmtChunk, data)
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return domain.ClassifyFilesystem("merge", filepath.Dir(outputPath), err)
	}
	if err := os.WriteFile(outputPath, merged, 0o644); err != nil {
		return domain.ClassifyFilesystem("merge", outputPath, err)
	}
	return nil
}

// parseWAV extracts the format and PCM payload chunks from one RIFF file.
func parseWAV(b []byte) (fmtChunk, data []byte, err error) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return nil, nil, errors.New("not a RIFF/WAVE file")
	}

	offset := 12
	for offset+8 <= len(b) {
		id := string(b[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(b[offset+4 : offset+8]))
		start := offset + 8
		if start+size > len(b) {
			return nil, nil, fmt.Errorf("truncated %q chunk", id)
		}

		switch id {
		case "fmt ":
			fmtChunk = b[start : start+size]
		case "data":
			data = b[start : start+size]
		}

		// Chunks are word aligned; odd sizes carry a pad byte.
		offset = start + size + size%2
	}

	if fmtChunk == nil || data == nil {
		return nil, nil, errors.New("missing fmt or data chunk")
	}
	return fmtChunk, data, nil
}

// buildWAV assembles a canonical RIFF file from a format chunk and payload.
func buildWAV(fmtChunk, data []byte) []byte {
	riffSize := 4 + 8 + len(fmtChunk) + 8 + len(data)

	var b bytes.Buffer
	b.Grow(8 + riffSize)
	b.WriteString("RIFF")
	writeUint32(&b, uint32(riffSize))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	writeUint32(&b, uint32(len(fmtChunk)))
	b.Write(fmtChunk)
	b.WriteString("data")
	writeUint32(&b, uint32(len(data)))
	b.Write(data)
	return b.Bytes()
}

func writeUint32(b *bytes.Buffer, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	b.Write(buf[:])
}
