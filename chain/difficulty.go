package chain

import (
	"encoding/hex"
	"math/bits"
	"time"
)

// retargetWindow is how many recent block timestamps feed the difficulty
// adjustment and hash-rate estimate.
const retargetWindow = 10

// leadingZeroBits counts consecutive zero bits from the front of b.
func leadingZeroBits(b []byte) int {
	n := 0
	for _, c := range b {
		if c == 0 {
			n += 8
			continue
		}
		n += bits.LeadingZeros8(c)
		break
	}
	return n
}

// leadingZeroBitsHex counts leading zero bits of a hex-encoded digest.
// Undecodable input counts as zero bits, which can never satisfy a
// difficulty of one or more.
func leadingZeroBitsHex(s string) int {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return 0
	}
	return leadingZeroBits(raw)
}

// nextDifficulty retargets by one step against the observed average block
// interval. Faster than target raises difficulty, slower lowers it, with a
// floor of 1. Fewer than two timestamps leave it unchanged.
func nextDifficulty(current int, stamps []int64, target time.Duration) int {
	if len(stamps) < 2 {
		return current
	}
	elapsed := time.Duration(stamps[len(stamps)-1]-stamps[0]) * time.Millisecond
	avg := elapsed / time.Duration(len(stamps)-1)
	switch {
	case avg < target:
		return current + 1
	case avg > target && current > 1:
		return current - 1
	default:
		return current
	}
}
