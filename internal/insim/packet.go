// Package insim implements the TCP control/events channel exposed by the
// simulator: a framed little-endian binary protocol ("InSim"). The package
// is split into a byte-stream framer (bounded ring-style buffer + resync),
// a per-type schema validator, a decoder that turns validated bytes into
// typed events, and a small write path for the handshake/button/chat
// packets the core needs to send back.
package insim

import "fmt"

// PacketType identifies the second byte of every InSim packet.
type PacketType = byte

// Inbound packet types recognised by the core. Unknown types are skipped
// during resync (see Framer) rather than treated as corruption.
const (
	TypeVersion      PacketType = 3  // VER
	TypeState        PacketType = 4  // STA
	TypeNewPlayer    PacketType = 5  // NPL
	TypeLap          PacketType = 6  // LAP
	TypeSplit        PacketType = 7  // SPX
	TypeButtonClick  PacketType = 8  // BTC
	TypeMultiCarInfo PacketType = 11 // MCI
)

// Outbound packet types the write path produces.
const (
	TypeInitialise PacketType = 1 // ISI
	TypeMessage    PacketType = 2 // MST
	TypeButton     PacketType = 9 // BTN
	TypeButtonDel  PacketType = 10 // BFN
)

// ISI (IS_ISI) flags, OR'd together in the handshake packet.
const (
	ISIFlagMCI byte = 1 << 0
	ISIFlagCON byte = 1 << 1
	ISIFlagOBH byte = 1 << 2
	ISIFlagNLP byte = 1 << 3
)

// STA (IS_STA) flags2 bit designating a multiplayer session.
const ISSMulti uint16 = 1 << 0

// BTN (IS_BTN) style bit required to receive BTC click events.
const ISBClick uint16 = 1 << 2

// BroadcastingProtocolVersion is the InSim version this core speaks in its
// handshake packet.
const BroadcastingProtocolVersion byte = 9

// knownTypes is consulted by the framer while resynchronising: a candidate
// header is only accepted if its type byte is one the core understands.
var knownTypes = map[PacketType]struct{}{
	TypeVersion:      {},
	TypeState:        {},
	TypeNewPlayer:    {},
	TypeLap:          {},
	TypeSplit:        {},
	TypeMultiCarInfo: {},
	TypeButtonClick:  {},
}

func isKnownType(t PacketType) bool {
	_, ok := knownTypes[t]
	return ok
}

// Packet is a complete, framed byte sequence handed from the Framer to the
// decoder. Raw includes the leading size and type bytes.
type Packet struct {
	Size PacketType // the wire size byte (may wrap for MCI, see Length)
	Type PacketType
	Raw  []byte
}

// Length is the true byte length of the packet, accounting for the MCI
// size-byte wraparound: a declared size smaller than 4+28*count does not
// imply truncation when the type is MCI.
func (p Packet) Length() int {
	return len(p.Raw)
}

func (p Packet) String() string {
	return fmt.Sprintf("Packet{type=%d size=%d len=%d}", p.Type, p.Size, len(p.Raw))
}
