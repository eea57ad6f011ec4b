// Package session owns TradingView session identifiers and the
// handshake/subscription sequence that drives a chart+quote session pair
// over an already-connected transport.
package session

import (
	"crypto/rand"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyz"
const idLength = 12

// ChartPrefix and QuotePrefix are the fixed prefixes for the two session
// kinds the protocol multiplexes onto one connection (spec §4.B).
const (
	ChartPrefix = "cs_"
	QuotePrefix = "qs_"
)

// NewID returns prefix followed by 12 random lowercase letters. Each call
// draws fresh entropy; callers generate one chart and one quote ID per
// connection and reuse them for its lifetime.
func NewID(prefix string) (string, error) {
	buf := make([]byte, idLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, idLength)
	for i, b := range buf {
		out[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return prefix + string(out), nil
}
