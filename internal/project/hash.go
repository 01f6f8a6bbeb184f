package project

import (
	"crypto/sha256"
)

// Digest - фиксированный 256 битный хеш (совместим с source.File.Hash)
type Digest [32]byte

// Combine строит хеш юнита: H( content || dep1 || dep2 ... ).
// Порядок deps должен быть детерминированным (зависимости идут в порядке сборки).
func Combine(content Digest, deps ...Digest) Digest {
	h := sha256.New()
	_, _ = h.Write(content[:])
	for _, d := range deps {
		_, _ = h.Write(d[:])
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// Hash digests raw bytes.
func Hash(data []byte) Digest {
	return sha256.Sum256(data)
}
