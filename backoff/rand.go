package backoff

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"time"
)

// newSource returns a PCG generator seeded from system entropy. Every
// Exponential gets its own, never the package-level generator.
func newSource() rand.Source {
	var seed [16]byte

	if _, err := cryptorand.Read(seed[:]); err != nil {
		now := uint64(time.Now().UnixNano())
		return rand.NewPCG(now, now^0x9e3779b97f4a7c15) // #nosec G404 -- jitter only
	}

	return rand.NewPCG(
		binary.LittleEndian.Uint64(seed[:8]),
		binary.LittleEndian.Uint64(seed[8:]),
	)
}
