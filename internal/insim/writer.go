package insim

import (
	"bytes"
	"encoding/binary"
)

// isiPacketLen is the fixed 44-byte size of the handshake packet:
// size,type,reqI,zero,udpPort(2),flags(2),version,prefix,interval(2),
// admin(16),product-name(16).
const isiPacketLen = 44

// MarshalInitialise builds the IS_ISI handshake packet sent immediately
// after connecting. interval is clamped to at least 1ms and the admin
// password is truncated to 16 bytes and NUL-padded.
func MarshalInitialise(adminPassword string, intervalMs uint16) []byte {
	if intervalMs < 1 {
		intervalMs = 1
	}

	var buf bytes.Buffer
	buf.WriteByte(0) // size, patched below
	buf.WriteByte(TypeInitialise)
	buf.WriteByte(0) // reqI, unused
	buf.WriteByte(0) // reserved
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // udpPort, unused (no OutSim echo requested here)
	binary.Write(&buf, binary.LittleEndian, uint16(ISIFlagMCI|ISIFlagCON|ISIFlagOBH|ISIFlagNLP))
	buf.WriteByte(BroadcastingProtocolVersion)
	buf.WriteByte(0) // prefix, unused
	binary.Write(&buf, binary.LittleEndian, intervalMs)
	buf.Write(fixedWidthLatin1(adminPassword, 16))
	buf.Write(fixedWidthLatin1("telemetry-bridge", 16))

	raw := buf.Bytes()
	if len(raw) != isiPacketLen {
		panic("insim: ISI packet length drifted from spec")
	}
	raw[0] = byte(len(raw))
	return raw
}

// mstPacketLen is the fixed 68-byte size of a chat-style command packet:
// size,type,reqI,zero,then a 64-byte text field.
const mstPacketLen = 68

// MarshalMessage builds an IS_MST chat-style command packet. The command
// text is truncated to 63 bytes before being NUL-padded into the fixed
// 64-byte field, leaving room for a terminating NUL.
func MarshalMessage(command string) []byte {
	text := latin1(command)
	if len(text) > 63 {
		text = text[:63]
	}

	var buf bytes.Buffer
	buf.WriteByte(0)
	buf.WriteByte(TypeMessage)
	buf.WriteByte(0) // reqI, unused
	buf.WriteByte(0) // reserved
	field := make([]byte, 64)
	copy(field, text)
	buf.Write(field)

	raw := buf.Bytes()
	if len(raw) != mstPacketLen {
		panic("insim: MST packet length drifted from spec")
	}
	raw[0] = byte(len(raw))
	return raw
}

// ButtonSpec describes where and how a BTN button is drawn. Left/Top/
// Width/Height are clamped to the 0-255 byte range the wire format uses.
type ButtonSpec struct {
	ClickID  uint8
	Instance uint8
	Style    uint16
	TypeIn   uint8
	Left     uint8
	Top      uint8
	Width    uint8
	Height   uint8
	Text     string
}

// MarshalButton builds an IS_BTN packet. Text is NUL-terminated Latin-1,
// truncated to 239 bytes before the terminator is appended.
func MarshalButton(spec ButtonSpec) []byte {
	text := latin1(spec.Text)
	if len(text) > 239 {
		text = text[:239]
	}
	text = append(text, 0)

	var buf bytes.Buffer
	buf.WriteByte(0)
	buf.WriteByte(TypeButton)
	buf.WriteByte(0) // reqI, unused
	buf.WriteByte(spec.ClickID)
	buf.WriteByte(spec.Instance)
	binary.Write(&buf, binary.LittleEndian, spec.Style)
	buf.WriteByte(spec.TypeIn)
	buf.WriteByte(spec.Left)
	buf.WriteByte(spec.Top)
	buf.WriteByte(spec.Width)
	buf.WriteByte(spec.Height)
	buf.Write(text)

	raw := buf.Bytes()
	raw[0] = byte(len(raw))
	return raw
}

// MarshalButtonDelete builds an 8-byte IS_BFN packet removing buttonID.
func MarshalButtonDelete(buttonID uint8) []byte {
	var buf bytes.Buffer
	buf.WriteByte(8)
	buf.WriteByte(TypeButtonDel)
	buf.WriteByte(0)
	buf.WriteByte(0)
	buf.WriteByte(buttonID)
	buf.WriteByte(0)
	buf.WriteByte(0)
	buf.WriteByte(0)
	return buf.Bytes()
}

func latin1(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF {
			r = '?'
		}
		out = append(out, byte(r))
	}
	return out
}

func fixedWidthLatin1(s string, width int) []byte {
	b := latin1(s)
	if len(b) > width {
		b = b[:width]
	}
	out := make([]byte, width)
	copy(out, b)
	return out
}
