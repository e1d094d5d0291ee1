package fieldcrypt

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/aussiebroadwan/careportal/pkg/cryptox"
)

// Hash returns the hex SHA-256 digest of salt||data. It is one-way and only
// suitable for integrity checks and equality lookups.
func Hash(data, salt string) string {
	h := sha256.New()
	h.Write([]byte(salt))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// HashWithNewSalt hashes data under a fresh 256-bit salt and returns both.
func HashWithNewSalt(data string) (digest, salt string, err error) {
	salt, err = cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", "", err
	}
	return Hash(data, salt), salt, nil
}

// VerifyHash compares Hash(data, salt) with digest in constant time.
func VerifyHash(data, salt, digest string) bool {
	return subtle.ConstantTimeCompare([]byte(Hash(data, salt)), []byte(digest)) == 1
}
