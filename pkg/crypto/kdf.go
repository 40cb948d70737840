package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// CookieKeys holds the key pair used by securecookie: HMAC authentication plus AES encryption.
type CookieKeys struct {
	Hash  []byte
	Block []byte
}

// DeriveCookieKeys expands one configured secret into independent hash (64 byte) and
// block (32 byte) keys using HKDF-SHA256.
func DeriveCookieKeys(secret []byte) (CookieKeys, error) {
	if len(secret) == 0 {
		return CookieKeys{}, fmt.Errorf("hkdf: secret is required")
	}

	hashKey, err := expand(secret, "gotchufam session hash", 64)
	if err != nil {
		return CookieKeys{}, err
	}
	blockKey, err := expand(secret, "gotchufam session block", 32)
	if err != nil {
		return CookieKeys{}, err
	}

	return CookieKeys{Hash: hashKey, Block: blockKey}, nil
}

func expand(secret []byte, info string, size int) ([]byte, error) {
	out := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), out); err != nil {
		return nil, fmt.Errorf("hkdf: derive %s: %w", info, err)
	}
	return out, nil
}
