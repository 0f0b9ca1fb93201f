// Package pngtext embeds and extracts character card payloads stored in PNG
// tEXt chunks, the container format used by SillyTavern card exports.
package pngtext

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
)

// pngSignature is the fixed 8-byte header every PNG/APNG starts with.
var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

const (
	chunkTypeText = "tEXt"
	chunkTypeEnd  = "IEND"

	// embedKeyword tags the chunk written by Embed. Extraction additionally
	// accepts the legacy "chara" keyword, case-insensitively; replacement on
	// re-embed matches the keyword exactly.
	embedKeyword = "ccv3"
)

// extractKeywords lists the accepted card chunk keywords, lowercased.
var extractKeywords = [][]byte{[]byte("ccv3"), []byte("chara")}

var (
	// ErrNotPNG reports input that does not carry the PNG signature.
	ErrNotPNG = errors.New("pngtext: data is not a valid PNG/APNG")
	// ErrNoCardChunk reports a well-formed PNG without a card chunk.
	ErrNoCardChunk = errors.New("pngtext: no ccv3/chara chunk present")
	// ErrDecode reports a card chunk whose payload could not be decoded.
	ErrDecode = errors.New("pngtext: card chunk decode failed")
)

// IsPNG reports whether data starts with the PNG signature.
func IsPNG(data []byte) bool {
	return len(data) >= len(pngSignature) && bytes.HasPrefix(data, pngSignature)
}

// buildChunk assembles [length][type][data][crc32(type||data)] big-endian.
func buildChunk(chunkType string, chunkData []byte) []byte {
	out := make([]byte, 0, 12+len(chunkData))
	out = binary.BigEndian.AppendUint32(out, uint32(len(chunkData)))
	out = append(out, chunkType...)
	out = append(out, chunkData...)
	crc := crc32.ChecksumIEEE(append([]byte(chunkType), chunkData...))
	out = binary.BigEndian.AppendUint32(out, crc)
	return out
}

// Embed serializes payload to JSON, base64-encodes it, and inserts it as a
// tEXt chunk immediately before the IEND chunk. Any existing tEXt chunk with
// the exact embed keyword is dropped, so re-embedding replaces prior data.
// All other chunks are copied byte-for-byte, original CRCs included.
func Embed(baseImage []byte, payload any) ([]byte, error) {
	if !IsPNG(baseImage) {
		return nil, ErrNotPNG
	}

	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("pngtext: marshal payload: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(jsonBytes)
	chunkData := append([]byte(embedKeyword+"\x00"), encoded...)
	newChunk := buildChunk(chunkTypeText, chunkData)

	total := len(baseImage)
	out := make([]byte, 0, total+len(newChunk))
	out = append(out, baseImage[:len(pngSignature)]...)
	pos := len(pngSignature)
	inserted := false

	for pos+8 <= total {
		length := int(binary.BigEndian.Uint32(baseImage[pos : pos+4]))
		chunkType := string(baseImage[pos+4 : pos+8])
		chunkStart := pos
		chunkEnd := pos + 8 + length + 4
		if chunkEnd > total {
			chunkEnd = total
		}
		chunkBytes := baseImage[chunkStart:chunkEnd]
		pos = chunkEnd

		if chunkType == chunkTypeText {
			dataEnd := chunkStart + 8 + length
			if dataEnd > total {
				dataEnd = total
			}
			data := baseImage[chunkStart+8 : dataEnd]
			keyword, _, _ := bytes.Cut(data, []byte{0})
			if string(keyword) == embedKeyword {
				continue // drop stale card data
			}
		}

		if chunkType == chunkTypeEnd && !inserted {
			out = append(out, newChunk...)
			inserted = true
		}
		out = append(out, chunkBytes...)
	}

	if !inserted {
		out = append(out, newChunk...)
	}
	return out, nil
}

// Extract walks the container and returns the decoded JSON payload of the
// first tEXt chunk whose keyword matches a recognized card keyword. A chunk
// that matches but fails to decode yields ErrDecode; a PNG without any
// matching chunk yields ErrNoCardChunk.
func Extract(data []byte) ([]byte, error) {
	if !IsPNG(data) {
		return nil, ErrNotPNG
	}

	pos := len(pngSignature)
	total := len(data)
	for pos+8 <= total {
		length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		chunkType := string(data[pos+4 : pos+8])
		pos += 8
		dataEnd := pos + length
		if dataEnd > total {
			dataEnd = total
		}
		chunkData := data[pos:dataEnd]
		pos = dataEnd + 4 // skip CRC

		if chunkType == chunkTypeText {
			keyword, rawText, ok := bytes.Cut(chunkData, []byte{0})
			if !ok {
				continue
			}
			if !isCardKeyword(keyword) {
				continue
			}
			decoded, err := base64.StdEncoding.DecodeString(string(rawText))
			if err != nil {
				return nil, fmt.Errorf("%w: keyword %q: %v", ErrDecode, keyword, err)
			}
			return decoded, nil
		}

		if chunkType == chunkTypeEnd {
			break
		}
	}
	return nil, ErrNoCardChunk
}

func isCardKeyword(keyword []byte) bool {
	lowered := bytes.ToLower(keyword)
	for _, candidate := range extractKeywords {
		if bytes.Equal(lowered, candidate) {
			return true
		}
	}
	return false
}
