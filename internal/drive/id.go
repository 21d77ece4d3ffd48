package drive

import (
	"crypto/rand"
)

// idAlphabet and idLength match the identifiers minted for blob and
// metadata objects. 62^21 ids make collisions negligible at any realistic
// drive size.
const (
	idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	idLength   = 21
)

// newID returns a random identifier over the fixed alphabet.
func newID() string {
	// 248 is the largest multiple of len(idAlphabet) below 256; rejecting
	// bytes above it keeps the distribution uniform.
	const maxByte = byte(248)

	id := make([]byte, 0, idLength)
	buf := make([]byte, 32)
	for len(id) < idLength {
		if _, err := rand.Read(buf); err != nil {
			panic("drive: crypto/rand unavailable: " + err.Error())
		}
		for _, b := range buf {
			if b >= maxByte {
				continue
			}
			id = append(id, idAlphabet[int(b)%len(idAlphabet)])
			if len(id) == idLength {
				break
			}
		}
	}
	return string(id)
}
