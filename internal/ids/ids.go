// Package ids generates the engine's opaque identifiers: uids, refresh
// tokens, and OOB codes. IDs are chronologically sortable push IDs with a
// fixed prefix character, so every id has a non-empty, non-numeric-looking
// prefix and ids minted in the same millisecond still differ.
package ids

import (
	"crypto/rand"
	"errors"
	"sync"
	"time"
)

// alphabet is ASCII-ordered base64 so lexicographic order matches
// chronological order.
const alphabet = "-0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ_abcdefghijklmnopqrstuvwxyz"

const (
	// UIDLength is the length of application-level user identifiers.
	UIDLength = 28
	// RefreshTokenLength is the length of opaque refresh tokens.
	RefreshTokenLength = 64

	// UIDPrefix guarantees uids never start with a digit-like character.
	UIDPrefix = byte('1')
	// RefreshTokenPrefix marks refresh tokens apart from uids at a glance.
	RefreshTokenPrefix = byte('A')

	timestampChars = 8
)

// Generator mints push IDs. The zero value is not usable; call New.
// Safe for concurrent use.
type Generator struct {
	now func() time.Time

	mu         sync.Mutex
	lastMillis int64
	lastRand   []byte
}

// New returns a Generator using the given clock, or time.Now when nil.
func New(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now}
}

// NewUID mints a 28-character user identifier.
func (g *Generator) NewUID() (string, error) {
	return g.NewID(UIDLength, UIDPrefix)
}

// NewRefreshToken mints a 64-character opaque refresh token.
func (g *Generator) NewRefreshToken() (string, error) {
	return g.NewID(RefreshTokenLength, RefreshTokenPrefix)
}

// NewID mints an id of the given total length: one prefix character, eight
// timestamp characters, and a random tail. Two calls within the same
// millisecond increment the previous tail instead of re-rolling it, so
// collisions are impossible within one generator.
func (g *Generator) NewID(length int, prefix byte) (string, error) {
	if length < timestampChars+2 {
		return "", errors.New("id length too short")
	}

	out := make([]byte, length)
	out[0] = prefix

	g.mu.Lock()
	defer g.mu.Unlock()

	millis := g.now().UnixMilli()
	ts := millis
	for i := timestampChars; i >= 1; i-- {
		out[i] = alphabet[ts&0x3f]
		ts >>= 6
	}

	tail := length - timestampChars - 1
	if millis == g.lastMillis && len(g.lastRand) == tail {
		increment(g.lastRand)
	} else {
		raw := make([]byte, tail)
		if _, err := rand.Read(raw); err != nil {
			return "", err
		}
		for i, b := range raw {
			raw[i] = b & 0x3f
		}
		g.lastRand = raw
		g.lastMillis = millis
	}

	for i, v := range g.lastRand {
		out[timestampChars+1+i] = alphabet[v]
	}

	return string(out), nil
}

// increment advances the tail as a little base-64 counter, carrying from the
// rightmost position.
func increment(tail []byte) {
	for i := len(tail) - 1; i >= 0; i-- {
		if tail[i] < 63 {
			tail[i]++
			return
		}
		tail[i] = 0
	}
}
