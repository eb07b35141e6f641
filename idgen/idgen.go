// Package idgen provides pluggable ID generation for snaptrail components.
//
// Constructors that mint identifiers (site IDs, page IDs, store rows) accept a
// Generator so tests can pin the strategy while production keeps UUIDv7.
package idgen

import (
	"crypto/rand"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NanoID returns a Generator that produces base-36 IDs of the given length.
// The alphabet has no separator characters, so NanoIDs are safe to embed in
// underscore-joined composite keys.
func NanoID(length int) Generator {
	return func() string {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		for i := range buf {
			buf[i] = base36[int(buf[i])%len(base36)]
		}
		return string(buf)
	}
}

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is UUIDv7: time-sortable and globally unique.
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// Counter is a monotonic int64 sequence, safe for concurrent use.
// The zero value starts at 1.
type Counter struct {
	n atomic.Int64
}

// Next returns the next value of the sequence.
func (c *Counter) Next() int64 {
	return c.n.Add(1)
}

// Last returns the most recently issued value, or 0 if none.
func (c *Counter) Last() int64 {
	return c.n.Load()
}

// Sequence adapts a Counter to the Generator signature (decimal strings).
func Sequence(c *Counter) Generator {
	return func() string {
		return strconv.FormatInt(c.Next(), 10)
	}
}
