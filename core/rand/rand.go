// Package rand provides the process-identifier and nonce randomness used
// across this module. It mirrors the teacher's core/crypto/rand package:
// a crypto/rand-seeded PRNG for fast per-call use, plus direct access to
// the system CSPRNG for anything security sensitive.
package rand

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	mathrand "math/rand/v2"
	"sync"
)

// Reader is the system cryptographically secure random source.
var Reader = cryptorand.Reader

// NewProcessID returns a fresh 64-bit process identifier seeded from the
// system CSPRNG, following original_source/app/process_id.cpp's
// seed_seq-from-random_device pattern (mt19937_64 there, PCG here).
func NewProcessID() uint64 {
	var seed [32]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		panic("core/rand: system entropy source failed: " + err.Error())
	}
	s1 := binary.LittleEndian.Uint64(seed[0:8])
	s2 := binary.LittleEndian.Uint64(seed[8:16])
	return mathrand.NewPCG(s1, s2).Uint64()
}

var (
	mu  sync.Mutex
	pcg *mathrand.Rand
)

// IntN returns a non-cryptographic random integer in [0, n), drawn from a
// process-wide source seeded from the system CSPRNG. Equivalent to the
// teacher's rand.NewMath().Intn(n), used e.g. to pick a provider/peer at
// random without a syscall per draw.
func IntN(n int) int {
	mu.Lock()
	defer mu.Unlock()
	if pcg == nil {
		var seed [32]byte
		if _, err := cryptorand.Read(seed[:]); err != nil {
			panic("core/rand: system entropy source failed: " + err.Error())
		}
		s1 := binary.LittleEndian.Uint64(seed[0:8])
		s2 := binary.LittleEndian.Uint64(seed[8:16])
		pcg = mathrand.New(mathrand.NewPCG(s1, s2))
	}
	return pcg.IntN(n)
}

// NewNonce returns a fresh 64-bit nonce for the time-sync blast protocol.
func NewNonce() uint64 {
	return NewProcessID()
}
