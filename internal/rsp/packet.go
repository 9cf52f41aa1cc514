// Package rsp speaks the GDB remote serial protocol to a debug probe or
// gdbserver.
package rsp

import (
	"encoding/hex"
	"fmt"
)

const (
	Start     = '$'
	End       = '#'
	Esc       = '}'
	RunLength = '*'
	Ack       = '+'
	Nak       = '-'
	Interrupt = 0x03

	escXor = 0x20
)

// Checksum is the modulo 256 sum of the packet body.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// Encode wraps data in a packet: $<escaped data>#<checksum>.
// The checksum covers the escaped body.
func Encode(data []byte) []byte {
	body := make([]byte, 0, len(data)+8)
	for _, b := range data {
		switch b {
		case Start, End, Esc, RunLength:
			body = append(body, Esc, b^escXor)
		default:
			body = append(body, b)
		}
	}

	result := make([]byte, 0, len(body)+4)
	result = append(result, Start)
	result = append(result, body...)
	result = append(result, End)
	result = append(result, hexByte(Checksum(body))...)
	return result
}

// Decode extracts data from a complete packet.
// Verifies the checksum and undoes escaping and run-length encoding.
func Decode(frame []byte) ([]byte, error) {
	if len(frame) < 4 || frame[0] != Start || frame[len(frame)-3] != End {
		return nil, fmt.Errorf("malformed packet %q", frame)
	}

	body := frame[1 : len(frame)-3]
	var want [1]byte
	if _, err := hex.Decode(want[:], frame[len(frame)-2:]); err != nil {
		return nil, fmt.Errorf("bad checksum digits %q", frame[len(frame)-2:])
	}
	if sum := Checksum(body); sum != want[0] {
		return nil, fmt.Errorf("checksum mismatch: got 0x%02X, packet says 0x%02X", sum, want[0])
	}

	result := make([]byte, 0, len(body))
	i := 0
	for i < len(body) {
		switch {
		case body[i] == Esc && i+1 < len(body):
			result = append(result, body[i+1]^escXor)
			i += 2
		case body[i] == RunLength && i+1 < len(body) && len(result) > 0:
			// Repeat count is encoded as count+29.
			n := int(body[i+1]) - 29
			last := result[len(result)-1]
			for ; n > 0; n-- {
				result = append(result, last)
			}
			i += 2
		default:
			result = append(result, body[i])
			i++
		}
	}

	return result, nil
}

// ReadFrame reads a complete packet from a byte stream.
// Returns the frame (from '$' through the checksum) and remaining bytes.
// Bytes before the first '$', such as acks, are dropped.
func ReadFrame(data []byte) (frame []byte, remaining []byte) {
	start := -1
	for i, b := range data {
		if b == Start {
			start = i
			break
		}
	}

	if start == -1 {
		return nil, data
	}

	for i := start + 1; i < len(data); i++ {
		if data[i] == End {
			if i+2 < len(data) {
				return data[start : i+3], data[i+3:]
			}
			break
		}
	}

	// Frame not complete yet
	return nil, data[start:]
}

func hexByte(b byte) []byte {
	const digits = "0123456789abcdef"
	return []byte{digits[b>>4], digits[b&0x0F]}
}
