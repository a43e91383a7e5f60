package spillstore

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// segmentModulus is 36^8 — the space a single zero-padded 8-char base-36
// segment can represent.
const segmentModulus = 2821109907456 // 36^8

// encodeSegment renders n (reduced mod 36^8) as an 8-character, zero-padded
// base-36 string.
func encodeSegment(n uint64) string {
	n %= segmentModulus
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = base36Alphabet[n%36]
		n /= 36
	}
	return string(buf)
}

// randomSegmentValue draws a uniformly random value from [0, 36^8).
func randomSegmentValue() uint64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint64(b[:]) % segmentModulus
}

// newSlotID builds a 24-character slot id: an 8-char timestamp segment, an
// 8-char sequence segment (mod 36^8), and an 8-char uniformly random segment.
func newSlotID(seq uint64) string {
	ts := uint64(time.Now().UnixMilli())
	return encodeSegment(ts) + encodeSegment(seq) + encodeSegment(randomSegmentValue())
}
