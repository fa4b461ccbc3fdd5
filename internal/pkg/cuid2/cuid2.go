// Package cuid2 generates prefixed row identifiers such as "task_..." and
// "dlr_...". A fixed-width base62 timestamp leads the random portion so that
// freshly inserted rows stay clustered in B-tree indexes.
package cuid2

import (
	"crypto/rand"
	"time"
)

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const (
	timestampLength = 6
	randomLength    = 18
)

// New returns "<prefix>_<timestamp><random>", 6 base62 timestamp characters
// followed by 18 random ones.
func New(prefix string) string {
	return prefix + "_" + encodeTimestamp(time.Now().Unix()) + randomBase62(randomLength)
}

// encodeTimestamp renders seconds since the Unix epoch as fixed-width base62,
// so lexicographic order matches creation order until roughly year 3770.
func encodeTimestamp(sec int64) string {
	buf := make([]byte, timestampLength)
	for i := timestampLength - 1; i >= 0; i-- {
		buf[i] = alphabet[sec%62]
		sec /= 62
	}
	return string(buf)
}

// randomBase62 draws uniform base62 characters from crypto/rand. Each byte
// yields a 6-bit value; 62 and 63 are rejected to keep the distribution flat.
func randomBase62(n int) string {
	out := make([]byte, 0, n)
	buf := make([]byte, n+n/8+2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			panic("cuid2: crypto/rand failed: " + err.Error())
		}
		for _, b := range buf {
			v := b & 0x3f
			if v >= 62 {
				continue
			}
			out = append(out, alphabet[v])
			if len(out) == n {
				break
			}
		}
	}
	return string(out)
}
