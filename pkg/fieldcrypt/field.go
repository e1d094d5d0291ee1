package fieldcrypt

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/careportal/pkg/cryptox"
)

var (
	ErrKeyNotFound          = errors.New("fieldcrypt: encryption key not found")
	ErrDecryptionFailed     = errors.New("fieldcrypt: decryption failed")
	ErrMalformedField       = errors.New("fieldcrypt: malformed encrypted field")
	ErrConfigurationInvalid = errors.New("fieldcrypt: configuration invalid")
)

// Metadata travels with every ciphertext. The JSON shape is the persistence
// format shared with the document store.
type Metadata struct {
	Algorithm       string    `json:"algorithm"`
	KeyID           string    `json:"keyId"`
	KeyVersion      int       `json:"keyVersion"`
	IV              string    `json:"iv"`
	EncryptedAt     time.Time `json:"encryptedAt"`
	EncryptedFields []string  `json:"encryptedFields"`
}

// EncryptedField is one sealed value, or a sealed group of named values.
type EncryptedField struct {
	Ciphertext string   `json:"ciphertext"`
	Metadata   Metadata `json:"metadata"`
}

// FieldName returns the single field name, or "" for grouped fields.
func (f EncryptedField) FieldName() string {
	if len(f.Metadata.EncryptedFields) != 1 {
		return ""
	}
	return f.Metadata.EncryptedFields[0]
}

// decoded is the binary form of an EncryptedField after shape checks.
type decoded struct {
	nonce      []byte
	ciphertext []byte
}

func (f EncryptedField) decode() (decoded, error) {
	m := f.Metadata
	switch {
	case f.Ciphertext == "":
		return decoded{}, fmt.Errorf("%w: missing ciphertext", ErrMalformedField)
	case m.KeyID == "":
		return decoded{}, fmt.Errorf("%w: missing keyId", ErrMalformedField)
	case m.KeyVersion <= 0:
		return decoded{}, fmt.Errorf("%w: missing keyVersion", ErrMalformedField)
	case !cryptox.SupportedAlgorithm(m.Algorithm):
		return decoded{}, fmt.Errorf("%w: unsupported algorithm %q", ErrMalformedField, m.Algorithm)
	case len(m.EncryptedFields) == 0:
		return decoded{}, fmt.Errorf("%w: missing encryptedFields", ErrMalformedField)
	}

	nonce, err := base64.StdEncoding.DecodeString(m.IV)
	if err != nil || len(nonce) != cryptox.NonceSize {
		return decoded{}, fmt.Errorf("%w: bad iv", ErrMalformedField)
	}
	ct, err := base64.StdEncoding.DecodeString(f.Ciphertext)
	if err != nil {
		return decoded{}, fmt.Errorf("%w: ciphertext is not base64", ErrMalformedField)
	}
	return decoded{nonce: nonce, ciphertext: ct}, nil
}

// associatedData binds the metadata that decides how a ciphertext is read.
// Every element is length-prefixed, so no two metadata values encode to the
// same bytes. Editing any of it makes authentication fail.
func associatedData(alg, keyID string, version int, fields []string) []byte {
	var b strings.Builder
	b.WriteString("careportal/fieldcrypt/v2")
	writeLP := func(v string) {
		b.WriteByte('|')
		b.WriteString(strconv.Itoa(len(v)))
		b.WriteByte(':')
		b.WriteString(v)
	}
	writeLP(alg)
	writeLP(keyID)
	writeLP(strconv.Itoa(version))
	writeLP(strconv.Itoa(len(fields)))
	for _, f := range fields {
		writeLP(f)
	}
	return []byte(b.String())
}

// validFieldName rejects names that are empty or could be confused with a
// list of names by a document store.
func validFieldName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: field name required", ErrMalformedField)
	}
	if strings.ContainsAny(name, ",|") {
		return fmt.Errorf("%w: field name %q contains a separator", ErrMalformedField, name)
	}
	return nil
}
