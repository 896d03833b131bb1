// Package push proves the platform's identity to the wallet push
// gateway and fans out background update notifications to registered
// devices.
package push

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kawhe-app/kawhe/internal/config"
)

var (
	ErrSigningKeyUnavailable = errors.New("signing_key_unavailable")
	ErrMalformedSignature    = errors.New("malformed_der_signature")
)

// Claims is the minimal provider-token claim set the gateway accepts.
type Claims struct {
	Issuer   string `json:"iss"`
	IssuedAt int64  `json:"iat"`
}

// Sign builds a complete ES256 provider token from claims and key
// material. It is a pure function of its inputs (plus the signature
// nonce) so header, payload and signature construction are directly
// testable.
func Sign(claims Claims, key *ecdsa.PrivateKey, keyID string) (string, error) {
	if key == nil {
		return "", ErrSigningKeyUnavailable
	}

	header := map[string]string{
		"alg": "ES256",
		"kid": keyID,
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	encode := base64.RawURLEncoding.EncodeToString
	signingInput := encode(headerJSON) + "." + encode(payloadJSON)

	digest := sha256.Sum256([]byte(signingInput))
	derSig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		return "", err
	}

	rawSig, err := derToRawSignature(derSig)
	if err != nil {
		return "", err
	}

	return signingInput + "." + encode(rawSig), nil
}

// derToRawSignature converts a variable-length ASN.1 DER ECDSA
// signature (SEQUENCE of two INTEGERs R, S) into the fixed 64-byte
// R||S form the token format requires. Each integer has a single
// leading zero sign byte stripped when present and is then left-padded
// to exactly 32 bytes.
func derToRawSignature(der []byte) ([]byte, error) {
	if len(der) < 8 || der[0] != 0x30 {
		return nil, ErrMalformedSignature
	}
	// Sequence length: short form is all P-256 signatures need.
	seqLen := int(der[1])
	if seqLen != len(der)-2 {
		return nil, ErrMalformedSignature
	}

	r, rest, err := readDERInteger(der[2:])
	if err != nil {
		return nil, err
	}
	s, rest, err := readDERInteger(rest)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, ErrMalformedSignature
	}

	out := make([]byte, 64)
	if err := padScalar(out[:32], r); err != nil {
		return nil, err
	}
	if err := padScalar(out[32:], s); err != nil {
		return nil, err
	}
	return out, nil
}

func readDERInteger(buf []byte) (value, rest []byte, err error) {
	if len(buf) < 2 || buf[0] != 0x02 {
		return nil, nil, ErrMalformedSignature
	}
	length := int(buf[1])
	if length <= 0 || len(buf) < 2+length {
		return nil, nil, ErrMalformedSignature
	}
	value = buf[2 : 2+length]

	// A 33-byte integer carries a zero sign byte to keep the value
	// positive; drop it before padding.
	if len(value) == 33 && value[0] == 0x00 {
		value = value[1:]
	}
	return value, buf[2+length:], nil
}

func padScalar(dst, value []byte) error {
	if len(value) > len(dst) {
		return ErrMalformedSignature
	}
	copy(dst[len(dst)-len(value):], value)
	return nil
}

// LoadKey reads the ES256 private key from inline PEM or a key file.
func LoadKey(cfg config.Config) (*ecdsa.PrivateKey, error) {
	pemBytes := []byte(cfg.APNSKeyPEM)
	if len(pemBytes) == 0 && cfg.APNSKeyPath != "" {
		b, err := os.ReadFile(cfg.APNSKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read apns key: %w", err)
		}
		pemBytes = b
	}
	if len(pemBytes) == 0 {
		return nil, nil
	}

	key, err := jwt.ParseECPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parse apns key: %w", err)
	}
	return key, nil
}
