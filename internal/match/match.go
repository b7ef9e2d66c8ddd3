// Package match implements the sender side of the delta algorithm: given a
// receiver's block signature, scan new file data for blocks matching the
// signature and emit a stream of literal-data and block-match tokens.
// Corresponds to rsync/match.c.
package match

import (
	"github.com/oferchen/gorsync/internal/checksum"
	"github.com/oferchen/gorsync/internal/signature"
)

// Token is one element of the delta stream. A Token with Block >= 0 is a
// reference to an unchanged block in the receiver's basis file; a Token
// with Block < 0 carries Literal bytes that must be sent verbatim.
type Token struct {
	Block   int32 // index into the basis file's block list, or -1 for literal data
	Literal []byte
}

// index speeds up rolling-checksum lookups: each rolling checksum value
// maps to every block sum sharing it, since two distinct blocks can
// collide on the cheap checksum and must be disambiguated by the strong
// checksum.
type index struct {
	byRolling map[uint32][]signature.BlockSum
}

func buildIndex(sums []signature.BlockSum) *index {
	idx := &index{byRolling: make(map[uint32][]signature.BlockSum, len(sums))}
	for _, bs := range sums {
		idx.byRolling[bs.Rolling] = append(idx.byRolling[bs.Rolling], bs)
	}
	return idx
}

// Sequence scans data for blocks matching sums and returns the token
// stream a sender would transmit for this file. alg and seed reproduce the
// same strong-checksum computation the receiver used to build sums, so
// that rolling-checksum collisions are safely disambiguated (spec.md §4.4
// match-confirmation invariant).
func Sequence(data []byte, sh signature.SumHead, sums []signature.BlockSum, alg checksum.StrongAlgorithm, seed int32) []Token {
	if len(sums) == 0 || sh.BlockLength == 0 {
		if len(data) == 0 {
			return nil
		}
		return []Token{{Block: -1, Literal: data}}
	}

	idx := buildIndex(sums)
	blockLen := int(sh.BlockLength)

	var tokens []Token
	var literalStart int

	flushLiteral := func(end int) {
		if end > literalStart {
			tokens = append(tokens, Token{Block: -1, Literal: data[literalStart:end]})
		}
	}

	i := 0
	var roller checksum.Roller
	haveWindow := false
	windowEnd := 0

	for i < len(data) {
		end := i + blockLen
		if end > len(data) {
			end = len(data)
		}
		if !haveWindow || windowEnd != end {
			roller.Reset()
			roller.Update(data[i:end])
			haveWindow = true
			windowEnd = end
		}
		sum := roller.Sum()

		if candidates, ok := idx.byRolling[sum]; ok {
			block := data[i:end]
			strong := alg.Sum(block, seed)
			if int(sh.ChecksumLength) < len(strong) {
				strong = strong[:sh.ChecksumLength]
			}
			matched := false
			for _, bs := range candidates {
				if bytesEqual(bs.Strong, strong) {
					flushLiteral(i)
					tokens = append(tokens, Token{Block: bs.Index})
					i = end
					literalStart = i
					haveWindow = false
					matched = true
					break
				}
			}
			if matched {
				continue
			}
		}
		i++
		haveWindow = false
	}
	flushLiteral(len(data))
	return tokens
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
