package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcinbor85/gohex"

	"github.com/bigbag/gdflash/internal/protocol"
)

// segment is a piece of an image placed at an offset from the bank base.
type segment struct {
	Offset uint32
	Data   []byte
}

func isHex(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hex", ".ihex", ".ihx":
		return true
	}
	return false
}

// loadImage reads a raw binary placed at offset, or an Intel HEX image.
// HEX addresses may be absolute or relative to the bank base.
func loadImage(path string, offset uint32) ([]segment, error) {
	if !isHex(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read image: %w", err)
		}
		return []segment{{Offset: offset, Data: data}}, nil
	}

	if offset != 0 {
		return nil, fmt.Errorf("--offset does not apply to Intel HEX images")
	}

	r, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	defer r.Close()

	ihex := gohex.NewMemory()
	if err := ihex.ParseIntelHex(r); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	var segments []segment
	for _, s := range ihex.GetDataSegments() {
		off := s.Address
		if off >= protocol.BankBase {
			off -= protocol.BankBase
		}
		segments = append(segments, segment{Offset: off, Data: s.Data})
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%s holds no data", path)
	}
	return segments, nil
}

func imageSize(segments []segment) int {
	n := 0
	for _, s := range segments {
		n += len(s.Data)
	}
	return n
}
