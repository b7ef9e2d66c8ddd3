// Package rsync holds protocol-level constants shared by every other
// package in this module: the negotiated protocol version range, file-list
// status bits, and the compatibility-flag bitset exchanged after version
// negotiation. None of these values are configurable; they come straight
// from the rsync wire protocol (see rsync.h and flist.c upstream).
package rsync

// ProtocolVersion is the protocol version this implementation prefers to
// advertise. It is clamped down to whatever the peer supports during
// negotiation (see internal/negotiation).
const ProtocolVersion = 32

// OldestSupportedProtocol and NewestSupportedProtocol bound the protocol
// versions this implementation can speak. Peers outside this range cause
// negotiation to fail.
const (
	OldestSupportedProtocol = 28
	NewestSupportedProtocol = 32
)

// MaximumProtocolAdvertisement is the highest protocol version number we
// tolerate seeing from a peer without rejecting the connection outright.
// Advertisements between NewestSupportedProtocol and this value are
// accepted and clamped down to NewestSupportedProtocol, so that a future
// peer speaking a newer protocol can still fall back to talking to us.
const MaximumProtocolAdvertisement = 40

// FirstCompatFlagsProtocol is the first protocol version that exchanges a
// compatibility-flags bitmap immediately after version negotiation.
const FirstCompatFlagsProtocol = 30

// File-list status byte bits (flist.c).
const (
	FlistTopLevel       = 0x01
	FlistSameMode        = 0x02
	FlistExtendedFlags   = 0x04
	FlistSameUID         = 0x08
	FlistSameGID         = 0x10
	FlistNameSame        = 0x20
	FlistNameLong        = 0x40
	FlistSameTime        = 0x80
)

// CompatFlag bits exchanged via varint once protocol negotiation reaches
// FirstCompatFlagsProtocol or newer. Unknown bits received from a peer are
// masked off and ignored (spec.md Open Questions: "mask-and-ignore").
type CompatFlag uint32

const (
	CompatIncRecurse      CompatFlag = 1 << 0
	CompatSymlinkTimes    CompatFlag = 1 << 1
	CompatSymlinkIconv    CompatFlag = 1 << 2
	CompatSafeFileList    CompatFlag = 1 << 3
	CompatAvoidXattrOpt   CompatFlag = 1 << 4
	CompatChecksumSeedFix CompatFlag = 1 << 5
	CompatInplacePartial  CompatFlag = 1 << 6
	CompatVarintFlistFlags CompatFlag = 1 << 7

	// CompatKnownMask is the set of bits this implementation recognises.
	// Exchanges mask peer bitmaps against this value.
	CompatKnownMask = CompatIncRecurse | CompatSymlinkTimes | CompatSymlinkIconv |
		CompatSafeFileList | CompatAvoidXattrOpt | CompatChecksumSeedFix |
		CompatInplacePartial | CompatVarintFlistFlags
)

// Message codes carried in the multiplex frame tag (tag = 7 + code).
type MsgCode uint8

const (
	MsgData        MsgCode = 0
	MsgErrorXfer   MsgCode = 1
	MsgInfo        MsgCode = 2
	MsgError       MsgCode = 3
	MsgWarning     MsgCode = 4
	MsgErrorSocket MsgCode = 5
	MsgLog         MsgCode = 6
	MsgClient      MsgCode = 7
	MsgErrorUtf8   MsgCode = 8
	MsgRedo        MsgCode = 9
	MsgStats       MsgCode = 10
	MsgIoError     MsgCode = 22
	MsgIoTimeout   MsgCode = 33
	MsgNoSend      MsgCode = 38
	MsgSuccess     MsgCode = 100
	MsgDeleted     MsgCode = 101
	MsgNoop        MsgCode = 42
	MsgErrorExit   MsgCode = 86
)

// MuxTagBase is added to a MsgCode to form the wire tag: tag = 7 + code.
// A tag below this value is a protocol violation (spec.md §3 MessageFrame
// invariant).
const MuxTagBase = 7

// MaxFramePayload is the largest payload a single multiplex frame can carry:
// the low 24 bits of the 4-byte frame header.
const MaxFramePayload = 1<<24 - 1
