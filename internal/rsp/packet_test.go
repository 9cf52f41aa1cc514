package rsp

import (
	"bytes"
	"testing"
)

func TestChecksum(t *testing.T) {
	tests := []struct {
		data     []byte
		expected byte
	}{
		{nil, 0x00},
		{[]byte("OK"), 0x9A},
		{[]byte("?"), 0x3F},
		{[]byte("g"), 0x67},
		{bytes.Repeat([]byte{0xFF}, 2), 0xFE},
	}

	for _, tc := range tests {
		result := Checksum(tc.data)
		if result != tc.expected {
			t.Errorf("Checksum(%q) = 0x%02X, want 0x%02X", tc.data, result, tc.expected)
		}
	}
}

func TestEncode_EmptyData(t *testing.T) {
	result := Encode(nil)
	expected := []byte("$#00")
	if !bytes.Equal(result, expected) {
		t.Errorf("Encode(nil) = %q, want %q", result, expected)
	}
}

func TestEncode_NoSpecialBytes(t *testing.T) {
	result := Encode([]byte("OK"))
	expected := []byte("$OK#9a")
	if !bytes.Equal(result, expected) {
		t.Errorf("Encode(OK) = %q, want %q", result, expected)
	}
}

func TestEncode_EscapeSpecialBytes(t *testing.T) {
	tests := []struct {
		in      byte
		escaped byte
	}{
		{'$', 0x04},
		{'#', 0x03},
		{'}', 0x5D},
		{'*', 0x0A},
	}

	for _, tc := range tests {
		result := Encode([]byte{'X', tc.in, 'Y'})
		body := []byte{'X', Esc, tc.escaped, 'Y'}
		expected := append([]byte{Start}, body...)
		expected = append(expected, End)
		expected = append(expected, hexByte(Checksum(body))...)
		if !bytes.Equal(result, expected) {
			t.Errorf("Encode(%q) = %q, want %q", []byte{'X', tc.in, 'Y'}, result, expected)
		}
	}
}

func TestDecode_ValidFrame(t *testing.T) {
	result, err := Decode([]byte("$OK#9a"))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !bytes.Equal(result, []byte("OK")) {
		t.Errorf("Decode() = %q, want %q", result, "OK")
	}
}

func TestDecode_UppercaseChecksum(t *testing.T) {
	result, err := Decode([]byte("$OK#9A"))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !bytes.Equal(result, []byte("OK")) {
		t.Errorf("Decode() = %q, want %q", result, "OK")
	}
}

func TestDecode_BadChecksum(t *testing.T) {
	if _, err := Decode([]byte("$OK#00")); err == nil {
		t.Error("Decode with bad checksum expected error, got nil")
	}
	if _, err := Decode([]byte("$OK#zz")); err == nil {
		t.Error("Decode with non-hex checksum expected error, got nil")
	}
}

func TestDecode_Malformed(t *testing.T) {
	for _, frame := range []string{"", "$", "$#0", "OK#9a", "$OK9a"} {
		if _, err := Decode([]byte(frame)); err == nil {
			t.Errorf("Decode(%q) expected error, got nil", frame)
		}
	}
}

func TestDecode_RunLength(t *testing.T) {
	// "0* " is '0' followed by 3 more: ' ' is 32 = 3+29.
	body := []byte("0* ")
	frame := append([]byte{Start}, body...)
	frame = append(frame, End)
	frame = append(frame, hexByte(Checksum(body))...)

	result, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !bytes.Equal(result, []byte("0000")) {
		t.Errorf("Decode(%q) = %q, want %q", frame, result, "0000")
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	testCases := [][]byte{
		{},
		{0x00},
		[]byte("m8000000,4"),
		[]byte("X20000000,4:$#}*"),
		{Start, End, Esc, RunLength},
		{0xFF, 0xFE, 0xFD},
		make([]byte, 256),
	}

	for i, tc := range testCases {
		decoded, err := Decode(Encode(tc))
		if err != nil {
			t.Fatalf("Case %d: Decode error = %v", i, err)
		}
		if !bytes.Equal(decoded, tc) {
			t.Errorf("Case %d: RoundTrip(%q) = %q, want %q", i, tc, decoded, tc)
		}
	}
}

func TestReadFrame_SingleFrame(t *testing.T) {
	data := []byte("$OK#9a")
	frame, remaining := ReadFrame(data)
	if !bytes.Equal(frame, data) {
		t.Errorf("ReadFrame(%q) frame = %q, want %q", data, frame, data)
	}
	if len(remaining) != 0 {
		t.Errorf("ReadFrame(%q) remaining = %q, want empty", data, remaining)
	}
}

func TestReadFrame_LeadingAck(t *testing.T) {
	data := []byte("+$OK#9a")
	frame, remaining := ReadFrame(data)
	if !bytes.Equal(frame, []byte("$OK#9a")) {
		t.Errorf("ReadFrame with ack = %q, want %q", frame, "$OK#9a")
	}
	if len(remaining) != 0 {
		t.Errorf("ReadFrame remaining = %q, want empty", remaining)
	}
}

func TestReadFrame_MultipleFrames(t *testing.T) {
	frame1 := []byte("$OK#9a")
	frame2 := []byte("$S05#b8")
	data := append(append([]byte{}, frame1...), frame2...)

	frame, remaining := ReadFrame(data)
	if !bytes.Equal(frame, frame1) {
		t.Errorf("ReadFrame first frame = %q, want %q", frame, frame1)
	}
	if !bytes.Equal(remaining, frame2) {
		t.Errorf("ReadFrame remaining = %q, want %q", remaining, frame2)
	}
}

func TestReadFrame_IncompleteFrame(t *testing.T) {
	for _, in := range []string{"$OK", "$OK#", "$OK#9"} {
		frame, remaining := ReadFrame([]byte(in))
		if frame != nil {
			t.Errorf("ReadFrame(%q) = %q, want nil", in, frame)
		}
		if !bytes.Equal(remaining, []byte(in)) {
			t.Errorf("ReadFrame(%q) remaining = %q, want %q", in, remaining, in)
		}
	}
}

func TestReadFrame_NoFrame(t *testing.T) {
	data := []byte("+++")
	frame, remaining := ReadFrame(data)
	if frame != nil {
		t.Errorf("ReadFrame no frame = %q, want nil", frame)
	}
	if !bytes.Equal(remaining, data) {
		t.Errorf("ReadFrame remaining = %q, want %q", remaining, data)
	}
}

func TestReadFrame_EmptyInput(t *testing.T) {
	frame, remaining := ReadFrame(nil)
	if frame != nil || remaining != nil {
		t.Errorf("ReadFrame(nil) = (%q, %q), want (nil, nil)", frame, remaining)
	}
}

func TestReadFrame_GarbageBeforeIncomplete(t *testing.T) {
	frame, remaining := ReadFrame([]byte("xx$OK"))
	if frame != nil {
		t.Errorf("ReadFrame = %q, want nil", frame)
	}
	if !bytes.Equal(remaining, []byte("$OK")) {
		t.Errorf("ReadFrame remaining = %q, want %q", remaining, "$OK")
	}
}
