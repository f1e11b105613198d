package address

import (
	"crypto/sha256"
	"encoding/binary"
)

// ProgramDerived computes the address of a program defined account:
// sha256(owner || ephemeral || seed).
func ProgramDerived(owner [PublicKeySize]byte, ephemeral bool, seed [32]byte) [PublicKeySize]byte {
	h := sha256.New()
	h.Write(owner[:])
	if ephemeral {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	h.Write(seed[:])

	var out [PublicKeySize]byte
	copy(out[:], h.Sum(nil))

	return out
}

// PackSeed packs four words little endian into a program account seed.
func PackSeed(a, b, c, d uint64) [32]byte {
	var seed [32]byte
	binary.LittleEndian.PutUint64(seed[0:], a)
	binary.LittleEndian.PutUint64(seed[8:], b)
	binary.LittleEndian.PutUint64(seed[16:], c)
	binary.LittleEndian.PutUint64(seed[24:], d)

	return seed
}
