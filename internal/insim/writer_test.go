package insim

import "testing"

func TestMarshalInitialiseLength(t *testing.T) {
	raw := MarshalInitialise("secret", 100)
	if len(raw) != 44 {
		t.Fatalf("expected 44-byte ISI packet, got %d", len(raw))
	}
	if raw[0] != 44 || raw[1] != TypeInitialise {
		t.Fail()
	}
	flags := raw[6]
	want := ISIFlagMCI | ISIFlagCON | ISIFlagOBH | ISIFlagNLP
	if flags != want {
		t.Fatalf("expected flags %08b, got %08b", want, flags)
	}
}

func TestMarshalInitialiseClampsInterval(t *testing.T) {
	raw := MarshalInitialise("", 0)
	interval := uint16(raw[10]) | uint16(raw[11])<<8
	if interval != 1 {
		t.Fatalf("expected interval clamped to 1, got %d", interval)
	}
}

func TestMarshalInitialiseTruncatesAdminPassword(t *testing.T) {
	raw := MarshalInitialise("0123456789abcdefEXTRA", 50)
	password := raw[12:28]
	if string(password) != "0123456789abcdef" {
		t.Fatalf("expected password truncated to 16 bytes, got %q", password)
	}
}

func TestMarshalMessageLength(t *testing.T) {
	raw := MarshalMessage("hello")
	if len(raw) != 68 {
		t.Fatalf("expected 68-byte MST packet, got %d", len(raw))
	}
	if raw[0] != 68 || raw[1] != TypeMessage {
		t.Fail()
	}
}

func TestMarshalMessageTruncatesTo63Bytes(t *testing.T) {
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'x'
	}
	raw := MarshalMessage(string(long))
	field := raw[4:68]
	if field[63] != 0 {
		t.Fatalf("expected byte 63 to be the terminating NUL, got %d", field[63])
	}
	for i := 0; i < 63; i++ {
		if field[i] != 'x' {
			t.Fatalf("expected command text at offset %d, got %d", i, field[i])
		}
	}
}

func TestMarshalButtonTruncatesText(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}
	spec := ButtonSpec{ClickID: 200, Style: ISBClick, Text: string(long)}
	raw := MarshalButton(spec)
	if raw[0] != byte(len(raw)) {
		t.Fatalf("size byte %d does not match actual length %d", raw[0], len(raw))
	}
	text := raw[12:]
	if len(text) != 240 { // 239 bytes + NUL terminator
		t.Fatalf("expected truncated text plus NUL to be 240 bytes, got %d", len(text))
	}
	if text[239] != 0 {
		t.Fail()
	}
}

func TestMarshalButtonDeleteIsFixedSize(t *testing.T) {
	raw := MarshalButtonDelete(200)
	if len(raw) != 8 {
		t.Fatalf("expected 8-byte BFN packet, got %d", len(raw))
	}
	if raw[0] != 8 || raw[1] != TypeButtonDel || raw[4] != 200 {
		t.Fail()
	}
}
