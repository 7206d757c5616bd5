package livetabletypes

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// Signer holds an ed25519 key pair for the lifetime of its owner.
type Signer struct {
	PrivateKey   ed25519.PrivateKey
	PublicKey    ed25519.PublicKey
	PublicKeyHex string
}

// NewSigner generates a fresh key pair. A nil reader uses crypto/rand.
func NewSigner(r io.Reader) (*Signer, error) {
	if r == nil {
		r = rand.Reader
	}
	pub, priv, err := ed25519.GenerateKey(r)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signer key: %w", err)
	}
	return &Signer{PrivateKey: priv, PublicKey: pub, PublicKeyHex: hex.EncodeToString(pub)}, nil
}

// SignerFromSeedHex restores a signer from a 32-byte hex seed, or a 64-byte
// hex private key.
func SignerFromSeedHex(s string) (*Signer, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid signer key hex: %w", err)
	}
	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(raw)
	default:
		return nil, fmt.Errorf("invalid signer key length %d", len(raw))
	}
	pub := priv.Public().(ed25519.PublicKey)
	return &Signer{PrivateKey: priv, PublicKey: pub, PublicKeyHex: hex.EncodeToString(pub)}, nil
}

// Sign signs msg with the signer's private key.
func (s *Signer) Sign(msg []byte) []byte {
	return ed25519.Sign(s.PrivateKey, msg)
}
