// Package cipher implements the AES-128-ECB envelope used by the FORA cloud APIs.
//
// Requests are zero padded and encrypted under one of two fixed keys chosen from the
// API path. Responses are decrypted with a staged fallback: strict PKCS7 first, then
// raw blocks with trailing zero bytes stripped, and finally an empty string.
package cipher

import (
	"bytes"
	"crypto/aes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// KeyDomain selects one of the two API keys.
type KeyDomain int

const (
	// WebAPI covers the TaidocWeb group and file endpoints.
	WebAPI KeyDomain = iota
	// RingAPI covers the ForaO2API ring data endpoints.
	RingAPI
)

// RingPathPrefix marks paths encrypted under the ring key.
const RingPathPrefix = "ForaO2API"

const (
	blockSize = aes.BlockSize

	// maxLoggedHex caps the ciphertext dump written when every decrypt stage fails.
	maxLoggedHex = 200
)

var (
	ringKey = [blockSize]byte{
		0x49, 0x32, 0x56, 0x28, 0x66, 0x72, 0x46, 0x26,
		0x39, 0x15, 0x62, 0x46, 0x09, 0x74, 0x23, 0x26,
	}
	webKey = [blockSize]byte{
		67, 34, 119, 18, 83, 57, 112, 9,
		73, 50, 81, 120, 24, 54, 82, 101,
	}
)

func (d KeyDomain) String() string {
	switch d {
	case RingAPI:
		return "Ring"
	case WebAPI:
		return "Web"
	default:
		return fmt.Sprintf("KeyDomain(%d)", int(d))
	}
}

// DomainForPath maps an API path to its key domain. Every path maps to exactly one domain.
func DomainForPath(path string) KeyDomain {
	if strings.HasPrefix(path, RingPathPrefix) {
		return RingAPI
	}
	return WebAPI
}

// Key returns a copy of the 16-byte key for d. Unknown domains use the web key.
func Key(d KeyDomain) []byte {
	k := webKey
	if d == RingAPI {
		k = ringKey
	}
	return k[:]
}

// Envelope is a base64 ciphertext together with the domain it was produced for.
type Envelope struct {
	Domain     KeyDomain
	Ciphertext string
}

// Bytes decodes the base64 ciphertext.
func (e Envelope) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(e.Ciphertext)
}

// Gateway encrypts and decrypts API payloads.
type Gateway struct {
	logger *logrus.Logger
}

// NewGateway creates a Gateway. A nil logger discards diagnostics.
func NewGateway(logger *logrus.Logger) *Gateway {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Gateway{logger: logger}
}

// Encrypt zero pads the UTF-8 plaintext to the block size and returns the base64 ciphertext.
func (g *Gateway) Encrypt(d KeyDomain, plaintext string) (Envelope, error) {
	raw, err := g.EncryptBytes(d, []byte(plaintext))
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Domain: d, Ciphertext: base64.StdEncoding.EncodeToString(raw)}, nil
}

// EncryptBytes zero pads plaintext to the block size and returns the raw ciphertext.
// Empty input yields empty output.
func (g *Gateway) EncryptBytes(d KeyDomain, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(Key(d))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s cipher: %w", d, err)
	}

	n := (len(plaintext) + blockSize - 1) / blockSize * blockSize
	buf := make([]byte, n)
	copy(buf, plaintext)
	for off := 0; off < n; off += blockSize {
		block.Encrypt(buf[off:off+blockSize], buf[off:off+blockSize])
	}
	return buf, nil
}

// Decrypt decodes a base64 ciphertext and decrypts it with DecryptBytes.
// Input that is not valid base64 yields "".
func (g *Gateway) Decrypt(d KeyDomain, ciphertext string) string {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertext))
	if err != nil {
		g.logger.WithFields(logrus.Fields{
			"api":   d.String(),
			"error": err,
		}).Error("Ciphertext is not valid base64")
		return ""
	}
	return g.DecryptBytes(d, raw)
}

// DecryptBytes decrypts raw ciphertext. It never fails: the PKCS7 result is preferred,
// then the unpadded result with trailing zero bytes removed, then "".
func (g *Gateway) DecryptBytes(d KeyDomain, ciphertext []byte) string {
	log := g.logger.WithField("api", d.String())

	plain, err := decryptBlocks(Key(d), ciphertext)
	if err != nil {
		log.WithError(err).Error("AES decrypt failed")
		log.WithField("raw_hex", truncatedHex(ciphertext)).Warn("Undecryptable response")
		return ""
	}

	out, err := unpadPKCS7(plain)
	if err == nil {
		return string(out)
	}
	log.WithError(err).Debug("PKCS7 unpadding failed, falling back to zero padding")

	return string(bytes.TrimRight(plain, "\x00"))
}

// decryptBlocks runs ECB decryption over a positive multiple of the block size.
func decryptBlocks(key, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%blockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a positive multiple of %d", len(ciphertext), blockSize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(ciphertext))
	for off := 0; off < len(ciphertext); off += blockSize {
		block.Decrypt(out[off:off+blockSize], ciphertext[off:off+blockSize])
	}
	return out, nil
}

func unpadPKCS7(b []byte) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(b))
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize {
		return nil, fmt.Errorf("invalid pad byte 0x%02x", n)
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("inconsistent padding")
		}
	}
	return b[:len(b)-n], nil
}

func truncatedHex(b []byte) string {
	s := hex.EncodeToString(b)
	if len(s) > maxLoggedHex {
		return s[:maxLoggedHex]
	}
	return s
}
