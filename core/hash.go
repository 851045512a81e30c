package core

import (
	"github.com/zeebo/blake3"
)

// HashBlake3 is used for state digests and derived block hashes.
func HashBlake3(data []byte) [32]byte {
	return blake3.Sum256(data)
}
