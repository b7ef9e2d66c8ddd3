// Package signature builds and exchanges rsync block signatures: the
// receiver-computed rolling+strong checksum pairs the sender matches
// incoming file content against. Corresponds to rsync/generator.c (the
// signature-sending half) and rsync/match.c (the consuming half lives in
// internal/match).
package signature

import (
	"math"

	"github.com/oferchen/gorsync/internal/checksum"
	"github.com/oferchen/gorsync/internal/rsyncwire"
)

// minBlockLength is the floor below which the block-size heuristic never
// goes, matching upstream rsync's BLOCK_SIZE default.
const minBlockLength = 700

// oldMaxBlockLength and newMaxBlockLength cap the block-size heuristic;
// the cap rises from 128 KiB to 1 MiB starting at protocol 30
// (generator.c's OLD_MAX_BLOCK_SIZE / MAX_BLOCK_SIZE).
const (
	oldMaxBlockLength = 128 * 1024
	newMaxBlockLength = 1 << 20

	// firstNewMaxBlockProtocol is the first protocol version using
	// newMaxBlockLength instead of oldMaxBlockLength.
	firstNewMaxBlockProtocol = 30
)

// SumHead is the block-signature header exchanged before the per-block
// checksum list. Field names and wire order follow rsync/generator.c's
// sum_struct.
type SumHead struct {
	ChecksumCount   int32
	BlockLength     int32
	ChecksumLength  int32
	RemainderLength int32
}

// ReadFrom reads a SumHead from c in wire order.
func (s *SumHead) ReadFrom(c *rsyncwire.Conn) (err error) {
	if s.ChecksumCount, err = c.ReadInt32(); err != nil {
		return err
	}
	if s.BlockLength, err = c.ReadInt32(); err != nil {
		return err
	}
	if s.ChecksumLength, err = c.ReadInt32(); err != nil {
		return err
	}
	if s.RemainderLength, err = c.ReadInt32(); err != nil {
		return err
	}
	return nil
}

// WriteTo writes a SumHead to c in wire order.
func (s SumHead) WriteTo(c *rsyncwire.Conn) error {
	if err := c.WriteInt32(s.ChecksumCount); err != nil {
		return err
	}
	if err := c.WriteInt32(s.BlockLength); err != nil {
		return err
	}
	if err := c.WriteInt32(s.ChecksumLength); err != nil {
		return err
	}
	return c.WriteInt32(s.RemainderLength)
}

// SumSizesSqroot computes the block length and strong-checksum length for
// a file of the given size, following spec.md's SignatureLayout formula:
// L = clamp(round_to_multiple(sqrt(len/10000), 8), min, max), with min =
// minBlockLength and max rising from oldMaxBlockLength to
// newMaxBlockLength once protocolVersion reaches
// firstNewMaxBlockProtocol.
func SumSizesSqroot(length int64, strongLen int, protocolVersion int32) SumHead {
	blockLength := roundToMultiple(int64(math.Sqrt(float64(length)/10000)), 8)
	if blockLength < minBlockLength {
		blockLength = minBlockLength
	}
	maxBlockLength := int64(oldMaxBlockLength)
	if protocolVersion >= firstNewMaxBlockProtocol {
		maxBlockLength = newMaxBlockLength
	}
	if blockLength > maxBlockLength {
		blockLength = maxBlockLength
	}
	if length == 0 {
		return SumHead{
			ChecksumCount:   0,
			BlockLength:     int32(blockLength),
			ChecksumLength:  int32(strongLen),
			RemainderLength: 0,
		}
	}
	count := (length + blockLength - 1) / blockLength
	return SumHead{
		ChecksumCount:   int32(count),
		BlockLength:     int32(blockLength),
		ChecksumLength:  int32(strongLen),
		RemainderLength: int32(length % blockLength),
	}
}

// roundToMultiple rounds v up to the nearest multiple of m.
func roundToMultiple(v, m int64) int64 {
	if v <= 0 {
		return 0
	}
	return ((v + m - 1) / m) * m
}

// BlockSum is one entry of the signature list: the rolling checksum plus a
// (possibly truncated) strong checksum for a single block.
type BlockSum struct {
	Index  int32
	Rolling uint32
	Strong  []byte
}

// Generate computes the full block signature for data, using sh's block
// layout and the given strong-checksum algorithm (seeded with seed, as
// rsync does for every strong checksum computation once a session seed is
// established).
func Generate(data []byte, sh SumHead, alg checksum.StrongAlgorithm, seed int32) []BlockSum {
	blocks := make([]BlockSum, 0, sh.ChecksumCount)
	blockLen := int(sh.BlockLength)
	for i := 0; i*blockLen < len(data); i++ {
		start := i * blockLen
		end := start + blockLen
		if end > len(data) {
			end = len(data)
		}
		block := data[start:end]
		strong := alg.Sum(block, seed)
		if int(sh.ChecksumLength) < len(strong) {
			strong = strong[:sh.ChecksumLength]
		}
		blocks = append(blocks, BlockSum{
			Index:   int32(i),
			Rolling: checksum.RollingChecksum(block),
			Strong:  strong,
		})
	}
	return blocks
}

// ReadBlockSums reads sh.ChecksumCount block sums from c, each encoded as
// a 4-byte rolling checksum followed by sh.ChecksumLength bytes of strong
// checksum (generator.c:recv_checksums wire order mirrored in reverse).
func ReadBlockSums(c *rsyncwire.Conn, sh SumHead) ([]BlockSum, error) {
	sums := make([]BlockSum, 0, sh.ChecksumCount)
	for i := int32(0); i < sh.ChecksumCount; i++ {
		rollingI, err := c.ReadInt32()
		if err != nil {
			return nil, err
		}
		strong := make([]byte, sh.ChecksumLength)
		if err := readFull(c, strong); err != nil {
			return nil, err
		}
		sums = append(sums, BlockSum{
			Index:   i,
			Rolling: uint32(rollingI),
			Strong:  strong,
		})
	}
	return sums, nil
}

func readFull(c *rsyncwire.Conn, buf []byte) error {
	read := 0
	for read < len(buf) {
		b, err := c.ReadByte()
		if err != nil {
			return err
		}
		buf[read] = b
		read++
	}
	return nil
}

// WriteBlockSums writes sums to c in the wire order ReadBlockSums expects.
func WriteBlockSums(c *rsyncwire.Conn, sh SumHead, sums []BlockSum) error {
	for _, bs := range sums {
		if err := c.WriteInt32(int32(bs.Rolling)); err != nil {
			return err
		}
		for _, b := range bs.Strong {
			if err := c.WriteByte(b); err != nil {
				return err
			}
		}
	}
	return nil
}
