// Package pqsig provides post-quantum transaction signatures over a closed
// set of interchangeable algorithms. Lattice-based Dilithium modes are always
// available; the hash-based SLH-DSA variant is picked up from circl's scheme
// catalog when the linked build carries it.
package pqsig

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/dilithium/mode2"
	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"github.com/cloudflare/circl/sign/dilithium/mode5"
	"github.com/cloudflare/circl/sign/schemes"
	"golang.org/x/crypto/sha3"
)

// Algorithm tags the signature scheme used for a key pair or signature.
// The set is closed: unknown tags fail at construction or verification,
// never silently.
type Algorithm string

const (
	Dilithium2      Algorithm = "dilithium2"
	Dilithium3      Algorithm = "dilithium3"
	Dilithium5      Algorithm = "dilithium5"
	SLHDSAShake128s Algorithm = "slh-dsa-shake-128s"
)

var (
	ErrUnsupportedAlgorithm   = errors.New("pqsig: unsupported algorithm")
	ErrInvalidSignatureFormat = errors.New("pqsig: invalid signature format")
)

var registry = func() map[Algorithm]sign.Scheme {
	m := map[Algorithm]sign.Scheme{
		Dilithium2: mode2.Scheme(),
		Dilithium3: mode3.Scheme(),
		Dilithium5: mode5.Scheme(),
	}
	// The hash-based family is registered only when circl's catalog has it.
	if s := schemes.ByName("SLH-DSA-SHAKE-128s"); s != nil {
		m[SLHDSAShake128s] = s
	}
	return m
}()

// Algorithms returns the registered algorithm tags in stable order.
func Algorithms() []Algorithm {
	out := make([]Algorithm, 0, len(registry))
	for alg := range registry {
		out = append(out, alg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Registered reports whether alg is available in this build.
func Registered(alg Algorithm) bool {
	_, ok := registry[alg]
	return ok
}

// Signature carries the algorithm tag, the raw signature bytes and the
// public key that produced it.
type Signature struct {
	Algorithm Algorithm `json:"algorithm"`
	Sig       []byte    `json:"sig"`
	PublicKey []byte    `json:"publicKey"`
}

// KeyPair holds a generated key pair together with its algorithm tag.
type KeyPair struct {
	Algorithm Algorithm
	Public    sign.PublicKey
	Private   sign.PrivateKey
}

// PublicKeyBytes returns the binary encoding of the public key.
func (kp *KeyPair) PublicKeyBytes() ([]byte, error) {
	return kp.Public.MarshalBinary()
}

// Address derives the ledger address bound to this key pair.
func (kp *KeyPair) Address() (string, error) {
	pk, err := kp.PublicKeyBytes()
	if err != nil {
		return "", err
	}
	return AddressFromPublicKey(pk), nil
}

// GenerateKeyPair creates a fresh key pair for the requested algorithm.
func GenerateKeyPair(alg Algorithm) (*KeyPair, error) {
	sch, ok := registry[alg]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
	pub, priv, err := sch.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("pqsig: generate %s key: %w", alg, err)
	}
	return &KeyPair{Algorithm: alg, Public: pub, Private: priv}, nil
}

// Sign signs message with the key pair and returns a tagged signature that
// embeds the signer's public key.
func Sign(message []byte, kp *KeyPair) (*Signature, error) {
	sch, ok := registry[kp.Algorithm]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, kp.Algorithm)
	}
	pk, err := kp.Public.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("pqsig: encode public key: %w", err)
	}
	return &Signature{
		Algorithm: kp.Algorithm,
		Sig:       sch.Sign(kp.Private, message, nil),
		PublicKey: pk,
	}, nil
}

// Verify checks sig over message against the public key embedded in it.
// It returns ErrInvalidSignatureFormat when the tag is unrecognized or the
// key/signature bytes are malformed, and (false, nil) when the signature is
// well formed but cryptographically invalid. It has no side effects.
func Verify(message []byte, sig *Signature) (bool, error) {
	if sig == nil {
		return false, fmt.Errorf("%w: missing signature", ErrInvalidSignatureFormat)
	}
	sch, ok := registry[sig.Algorithm]
	if !ok {
		return false, fmt.Errorf("%w: unknown algorithm %q", ErrInvalidSignatureFormat, sig.Algorithm)
	}
	if len(sig.Sig) != sch.SignatureSize() {
		return false, fmt.Errorf("%w: signature is %d bytes, want %d",
			ErrInvalidSignatureFormat, len(sig.Sig), sch.SignatureSize())
	}
	pub, err := sch.UnmarshalBinaryPublicKey(sig.PublicKey)
	if err != nil {
		return false, fmt.Errorf("%w: public key: %v", ErrInvalidSignatureFormat, err)
	}
	return sch.Verify(pub, message, sig.Sig, nil), nil
}

// AddressFromPublicKey derives the KTR address for a binary public key.
func AddressFromPublicKey(publicKey []byte) string {
	sum := sha3.Sum256(publicKey)
	return "KTR" + hex.EncodeToString(sum[:20])
}
