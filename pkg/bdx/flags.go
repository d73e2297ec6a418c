package bdx

import (
	"fmt"
	"math/bits"
	"strings"
)

// VersionMask selects the protocol version from a transfer-control byte.
const VersionMask uint8 = 0x0F

// MaxVersion is the largest protocol version the control byte can carry.
const MaxVersion uint8 = VersionMask

// TransferControlFlags are the transfer-mode bits of the control byte. They
// occupy the high nibble; the low nibble carries the protocol version.
type TransferControlFlags uint8

const (
	SenderDrive   TransferControlFlags = 1 << 4
	ReceiverDrive TransferControlFlags = 1 << 5
	Async         TransferControlFlags = 1 << 6

	transferModeMask = SenderDrive | ReceiverDrive | Async
)

// Has reports whether every bit of other is set.
func (f TransferControlFlags) Has(other TransferControlFlags) bool {
	return other != 0 && f&other == other
}

// Count returns the number of mode bits set.
func (f TransferControlFlags) Count() int {
	return bits.OnesCount8(uint8(f & transferModeMask))
}

// IsSubsetOf reports whether every mode bit of f is also set in other.
func (f TransferControlFlags) IsSubsetOf(other TransferControlFlags) bool {
	return f&^other == 0
}

// Valid reports whether f only uses defined mode bits.
func (f TransferControlFlags) Valid() bool {
	return f&^transferModeMask == 0
}

func (f TransferControlFlags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	if f&SenderDrive != 0 {
		parts = append(parts, "SenderDrive")
	}
	if f&ReceiverDrive != 0 {
		parts = append(parts, "ReceiverDrive")
	}
	if f&Async != 0 {
		parts = append(parts, "Async")
	}
	if rest := f &^ transferModeMask; rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%02X", uint8(rest)))
	}
	return strings.Join(parts, "|")
}

// RangeControlFlags describe which optional range fields follow in an Init
// or ReceiveAccept message and how wide they are.
type RangeControlFlags uint8

const (
	RangeDefLen      RangeControlFlags = 1 << 0
	RangeStartOffset RangeControlFlags = 1 << 1
	RangeWiderange   RangeControlFlags = 1 << 4
)

// Has reports whether every bit of other is set.
func (f RangeControlFlags) Has(other RangeControlFlags) bool {
	return other != 0 && f&other == other
}

// rangeControlFor derives the range-control byte for an offset/length pair.
// Zero means "absent" for both fields, so a zero offset or length is never
// emitted and cannot be told apart from an omitted one on the wire.
func rangeControlFor(startOffset, length uint64) RangeControlFlags {
	var f RangeControlFlags
	if startOffset > 0 {
		f |= RangeStartOffset
	}
	if length > 0 {
		f |= RangeDefLen
	}
	if startOffset > maxNarrow || length > maxNarrow {
		f |= RangeWiderange
	}
	return f
}

const maxNarrow = 1<<32 - 1

// controlByte packs a version and mode flags into one byte.
func controlByte(version uint8, flags TransferControlFlags) uint8 {
	return version&VersionMask | uint8(flags)&^VersionMask
}

// splitControlByte is the inverse of controlByte.
func splitControlByte(b uint8) (uint8, TransferControlFlags) {
	return b & VersionMask, TransferControlFlags(b &^ VersionMask)
}
