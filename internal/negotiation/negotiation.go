// Package negotiation implements protocol-version and compatibility-flag
// negotiation (spec.md §4.1/"Binary handshake"/"Compatibility-flags
// exchange"), plus the prologue sniffer that tells a daemon listener
// whether an incoming connection starts with the legacy ASCII
// "@RSYNCD:" greeting or the binary protocol's 4-byte version
// advertisement. Grounded on the handshake steps already implemented
// inline in rsyncd.Server.HandleDaemonConn and rsyncclient.Client.Run;
// this package factors the version/compat-flag math out of both so it
// is implemented, and tested, once.
package negotiation

import (
	"bufio"
	"fmt"

	"github.com/oferchen/gorsync"
	"github.com/oferchen/gorsync/internal/rsyncwire"
)

// Version negotiates the protocol version to use for a session, given
// the peer's raw advertisement. Mirrors spec.md's "Negotiation clamp":
// an advertisement above NewestSupportedProtocol (up to
// MaximumProtocolAdvertisement) is accepted and clamped down; anything
// below OldestSupportedProtocol is rejected.
func Version(peerAdvertised int32) (int32, error) {
	if peerAdvertised < rsync.OldestSupportedProtocol {
		return 0, fmt.Errorf("negotiation: peer advertised unsupported protocol version %d (oldest supported is %d)", peerAdvertised, rsync.OldestSupportedProtocol)
	}
	if peerAdvertised > rsync.MaximumProtocolAdvertisement {
		return 0, fmt.Errorf("negotiation: peer advertised implausible protocol version %d (max accepted advertisement is %d)", peerAdvertised, rsync.MaximumProtocolAdvertisement)
	}

	negotiated := peerAdvertised
	if negotiated > rsync.NewestSupportedProtocol {
		negotiated = rsync.NewestSupportedProtocol
	}
	return negotiated, nil
}

// ExchangeVersion writes our preferred protocol version, reads the
// peer's advertisement, and returns the negotiated version per Version.
func ExchangeVersion(conn *rsyncwire.Conn) (int32, error) {
	if err := conn.WriteInt32(rsync.ProtocolVersion); err != nil {
		return 0, fmt.Errorf("negotiation: writing protocol version: %w", err)
	}
	peer, err := conn.ReadInt32()
	if err != nil {
		return 0, fmt.Errorf("negotiation: reading peer protocol version: %w", err)
	}
	return Version(peer)
}

// ExchangeVersionServer is ExchangeVersion's server-side counterpart: it
// reads the peer's advertisement first and only then writes ours, matching
// the order rsync's binary handshake uses when our side did not initiate
// the connection (rsyncd.Server.HandleConn, and the plain "rsync --server"
// child a remote shell invokes).
func ExchangeVersionServer(conn *rsyncwire.Conn) (int32, error) {
	peer, err := conn.ReadInt32()
	if err != nil {
		return 0, fmt.Errorf("negotiation: reading peer protocol version: %w", err)
	}
	negotiated, err := Version(peer)
	if err != nil {
		return 0, err
	}
	if err := conn.WriteInt32(rsync.ProtocolVersion); err != nil {
		return 0, fmt.Errorf("negotiation: writing protocol version: %w", err)
	}
	return negotiated, nil
}

// NegotiateCompatFlags intersects our supported bits with the peer's,
// per spec.md: "The negotiated set is the bitwise intersection of
// supported bits; bits the implementation does not recognise are
// ignored." Unknown bits a peer sets beyond rsync.CompatFlag's own
// defined range are silently dropped by the intersection itself, since
// "ours" never has those bits set.
func NegotiateCompatFlags(ours, peer rsync.CompatFlag) rsync.CompatFlag {
	return ours & peer
}

// ExchangeCompatFlags performs the varint compat-flags exchange
// defined for protocol >= rsync.FirstCompatFlagsProtocol. Returns the
// negotiated flag set; returns 0 without reading or writing anything
// for protocol versions below the threshold.
func ExchangeCompatFlags(conn *rsyncwire.Conn, protocolVersion int32, ours rsync.CompatFlag) (rsync.CompatFlag, error) {
	if protocolVersion < rsync.FirstCompatFlagsProtocol {
		return 0, nil
	}

	if err := writeVarint(conn, uint64(ours)); err != nil {
		return 0, fmt.Errorf("negotiation: writing compat flags: %w", err)
	}
	peerRaw, err := readVarint(conn)
	if err != nil {
		return 0, fmt.Errorf("negotiation: reading peer compat flags: %w", err)
	}

	return NegotiateCompatFlags(ours, rsync.CompatFlag(peerRaw)), nil
}

// writeVarint encodes v as a sequence of 7-bit groups, low-order group
// first, with the high bit of every byte but the last set to 1 —
// standard unsigned LEB128, sufficient for the modest compat-flags
// bitsets this protocol exchanges.
func writeVarint(conn *rsyncwire.Conn, v uint64) error {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		if err := conn.WriteByte(b); err != nil {
			return err
		}
		if v == 0 {
			return nil
		}
	}
}

func readVarint(conn *rsyncwire.Conn) (uint64, error) {
	var v uint64
	var shift uint
	for {
		b, err := conn.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, fmt.Errorf("negotiation: varint too long")
		}
	}
}

// legacyGreetingPrefix is the start of every legacy ASCII daemon
// greeting line, spec.md's "@RSYNCD: <major>.<minor>[ <digest list>]\n".
const legacyGreetingPrefix = "@RSYNCD:"

// Sniff peeks at the first bytes of an incoming daemon connection and
// reports whether it opens with the legacy ASCII greeting rather than a
// raw 4-byte binary version advertisement, without consuming any bytes
// other callers still need to read. Binary advertisements carry a
// protocol version in rsync's supported range as their first 4 bytes,
// whose high byte is always 0 for any version below 2^24; an ASCII
// greeting's first byte is '@' (0x40), which cannot appear as the high
// byte of a plausible binary advertisement, so the two framings are
// unambiguous from the first byte alone.
func Sniff(r *bufio.Reader) (legacy bool, err error) {
	b, err := r.Peek(1)
	if err != nil {
		return false, err
	}
	return b[0] == legacyGreetingPrefix[0], nil
}
