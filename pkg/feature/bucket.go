package feature

import (
	"hash/crc32"
	"strings"
)

const buckets = 100

// Bucket maps an actor identifier to a stable bucket in [0, 100) using the
// IEEE CRC-32 of its bytes. The result depends only on id, so assignments
// survive process restarts without storing per-actor state.
func Bucket(id string) int {
	return int(crc32.ChecksumIEEE([]byte(id)) % buckets)
}

// BucketIP maps a dotted IP literal to a bucket in [0, 100) by folding its
// segments as base-256 digits. Segments are converted by their leading
// digits, so non-numeric segments count as zero instead of failing.
// The fold is done modulo 100 at every step, which gives the same result as
// reducing the full integer while never overflowing on long inputs.
func BucketIP(ip string) int {
	total := 0
	for _, segment := range strings.Split(ip, ".") {
		total = floorMod(total*256+leadingIntMod(segment), buckets)
	}
	return total
}

// leadingIntMod is leadingInt reduced modulo 100 with the sign preserved,
// safe for digit runs of any length.
func leadingIntMod(s string) int {
	s = strings.TrimLeft(s, " \t\n")
	negative := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		negative = s[0] == '-'
		s = s[1:]
	}
	n := 0
	for i := 0; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		n = (n*10 + int(s[i]-'0')) % buckets
	}
	if negative {
		return -n
	}
	return n
}

func floorMod(a, m int) int {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}
