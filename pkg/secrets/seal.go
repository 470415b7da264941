package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
)

const (
	formatPlain  byte = 0x00
	formatAESGCM byte = 0x01
)

// Sealer encrypts secret values at rest with AES-GCM when a key is set; else stores them tagged as plain.
// Sealed layout: 0x01 | nonce | ciphertext.
type Sealer struct {
	key []byte
}

func NewSealer(key string) Sealer {
	if key == "" {
		return Sealer{}
	}
	h := sha256.Sum256([]byte(key))
	return Sealer{key: h[:]}
}

func (s Sealer) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (s Sealer) Seal(plain []byte) ([]byte, error) {
	if len(s.key) == 0 {
		return append([]byte{formatPlain}, plain...), nil
	}
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	ct := gcm.Seal(nil, nonce, plain, nil)
	out := make([]byte, 1+len(nonce)+len(ct))
	out[0] = formatAESGCM
	copy(out[1:1+len(nonce)], nonce)
	copy(out[1+len(nonce):], ct)
	return out, nil
}

func (s Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) == 0 {
		return nil, errors.New("empty sealed value")
	}
	switch sealed[0] {
	case formatPlain:
		return sealed[1:], nil
	case formatAESGCM:
		if len(s.key) == 0 {
			return nil, errors.New("sealed secret but no encryption key configured")
		}
		gcm, err := s.gcm()
		if err != nil {
			return nil, err
		}
		ns := gcm.NonceSize()
		if len(sealed) < 1+ns {
			return nil, errors.New("sealed value too short")
		}
		return gcm.Open(nil, sealed[1:1+ns], sealed[1+ns:], nil)
	default:
		return nil, errors.New("unknown sealed format")
	}
}
