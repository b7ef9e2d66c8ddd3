// Package checksum implements the two checksum families the rsync
// protocol relies on: the cheap rolling checksum used to find candidate
// block boundaries during matching (rsync/checksum.c:get_checksum1), and
// the pluggable strong checksum used to confirm a match and to verify
// whole-file integrity after a transfer.
package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"hash"

	"github.com/cespare/xxhash/v2"
	"github.com/mmcloughlin/md4"
)

// rollingModulus is the modulus rsync's Adler-32 derivative reduces both
// running sums by: 2^16, not Adler-32's prime 65521.
const rollingModulus = 1 << 16

// charOffset is added to every input byte before summation, matching
// rsync's CHAR_OFFSET constant; it exists so that an all-zero block does
// not produce an all-zero checksum.
const charOffset = 31

// RollingChecksum computes rsync's 32-bit rolling checksum over data in a
// single pass, equivalent to initializing a Roller and calling Sum once.
func RollingChecksum(data []byte) uint32 {
	var r Roller
	r.Reset()
	r.Update(data)
	return r.Sum()
}

// Roller computes the rolling checksum incrementally, supporting the
// classic roll-in/roll-out update the match engine uses to slide a
// candidate block one byte at a time without rehashing the whole block.
type Roller struct {
	a, b uint32
	n    uint32
}

func (r *Roller) Reset() {
	r.a, r.b, r.n = 0, 0, 0
}

// Update folds data into the checksum as if it were appended to the
// current window.
func (r *Roller) Update(data []byte) {
	for _, c := range data {
		r.a += uint32(c) + charOffset
		r.n++
		r.b += r.a
	}
}

// Roll slides the window forward by one byte: removes outByte from the
// front of the window (of length n) and appends inByte at the back.
func (r *Roller) Roll(outByte, inByte byte, n uint32) {
	r.a -= uint32(outByte) + charOffset
	r.a += uint32(inByte) + charOffset
	r.b -= n * (uint32(outByte) + charOffset)
	r.b += r.a
}

// Sum returns the current 32-bit rolling checksum value: the low and high
// sums packed into one word, as rsync's get_checksum1 does.
func (r *Roller) Sum() uint32 {
	return (r.b << 16) | (r.a & 0xffff)
}

// StrongAlgorithm computes a session-seeded strong checksum over a block
// or whole file. Every algorithm here mixes the seed in the same way: it
// hashes the seed as a little-endian int32 ahead of the data.
type StrongAlgorithm interface {
	Name() string
	Sum(data []byte, seed int32) []byte
	Size() int
}

// Algorithm names, matching the --checksum-choice values rsync accepts.
const (
	MD4    = "md4"
	MD5    = "md5"
	SHA1   = "sha1"
	SHA256 = "sha256"
	SHA512 = "sha512"

	// XXH64 names the 64-bit xxHash algorithm backed by
	// github.com/cespare/xxhash/v2. Upstream rsync's "xxh3" wire name
	// refers to the real XXH3 algorithm, which that package does not
	// implement; this identifier is named for what it actually computes
	// rather than claiming XXH3 compatibility it does not have.
	XXH64 = "xxh64"
)

// ByName returns the StrongAlgorithm for name, or nil if name is not
// recognized.
func ByName(name string) StrongAlgorithm {
	switch name {
	case MD4:
		return md4Algorithm{}
	case MD5:
		return hashAlgorithm{name: MD5, new: md5.New, size: md5.Size}
	case SHA1:
		return hashAlgorithm{name: SHA1, new: sha1.New, size: sha1.Size}
	case SHA256:
		return hashAlgorithm{name: SHA256, new: sha256.New, size: sha256.Size}
	case SHA512:
		return hashAlgorithm{name: SHA512, new: sha512.New, size: sha512.Size}
	case XXH64:
		return xxh64Algorithm{}
	}
	return nil
}

// Negotiate picks the strongest mutually supported checksum algorithm,
// following the preference order upstream rsync negotiates in
// checksum.c:parse_checksum_choice when --checksum-choice=auto.
func Negotiate(protocolVersion int32, peerSupportsXXH64 bool) StrongAlgorithm {
	if protocolVersion >= 31 && peerSupportsXXH64 {
		return ByName(XXH64)
	}
	if protocolVersion >= 30 {
		return ByName(MD5)
	}
	return ByName(MD4)
}

type md4Algorithm struct{}

func (md4Algorithm) Name() string { return MD4 }
func (md4Algorithm) Size() int    { return md4.Size }
func (md4Algorithm) Sum(data []byte, seed int32) []byte {
	h := md4.New()
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(seed))
	h.Write(b[:])
	h.Write(data)
	return h.Sum(nil)
}

type hashAlgorithm struct {
	name string
	new  func() hash.Hash
	size int
}

func (a hashAlgorithm) Name() string { return a.name }
func (a hashAlgorithm) Size() int    { return a.size }
func (a hashAlgorithm) Sum(data []byte, seed int32) []byte {
	h := a.new()
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(seed))
	h.Write(b[:])
	h.Write(data)
	return h.Sum(nil)
}

type xxh64Algorithm struct{}

func (xxh64Algorithm) Name() string { return XXH64 }
func (xxh64Algorithm) Size() int    { return 8 }
func (xxh64Algorithm) Sum(data []byte, seed int32) []byte {
	d := xxhash.New()
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(seed))
	d.Write(b[:])
	d.Write(data)
	sum := d.Sum64()
	var out [8]byte
	binary.LittleEndian.PutUint64(out[:], sum)
	return out[:]
}
