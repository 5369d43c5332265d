// Package sha256 digests result documents so a stored copy can be matched
// against the "result saved" log line.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Digest identifies a document by content and length.
type Digest struct {
	Hex  string
	Size int64
}

func (d Digest) String() string {
	return fmt.Sprintf("sha256:%s (%d bytes)", d.Hex, d.Size)
}

// Of digests an in-memory document.
func Of(data []byte) Digest {
	sum := sha256.Sum256(data)
	return Digest{Hex: hex.EncodeToString(sum[:]), Size: int64(len(data))}
}

// Read digests everything remaining in r.
func Read(r io.Reader) (Digest, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return Digest{}, fmt.Errorf("digest document: %w", err)
	}
	return Digest{Hex: hex.EncodeToString(h.Sum(nil)), Size: n}, nil
}

// Hasher adapts Of to sinks.Hasher.
type Hasher struct{}

// New returns a Hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	return Of(data).Hex, nil
}
