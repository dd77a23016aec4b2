package pqsig

import (
	"encoding/json"
	"fmt"
	"os"
)

// keyFile is the on-disk JSON form of a key pair. Key material is stored
// unencrypted; guarding it is the operator's concern.
type keyFile struct {
	Algorithm  Algorithm `json:"algorithm"`
	Address    string    `json:"address"`
	PublicKey  []byte    `json:"publicKey"`
	PrivateKey []byte    `json:"privateKey"`
}

// SaveKeyPair writes kp to path as JSON, readable only by the owner.
func SaveKeyPair(path string, kp *KeyPair) error {
	pub, err := kp.Public.MarshalBinary()
	if err != nil {
		return fmt.Errorf("pqsig: encode public key: %w", err)
	}
	priv, err := kp.Private.MarshalBinary()
	if err != nil {
		return fmt.Errorf("pqsig: encode private key: %w", err)
	}
	data, err := json.MarshalIndent(keyFile{
		Algorithm:  kp.Algorithm,
		Address:    AddressFromPublicKey(pub),
		PublicKey:  pub,
		PrivateKey: priv,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadKeyPair reads a key pair previously written by SaveKeyPair.
func LoadKeyPair(path string) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("pqsig: parse key file: %w", err)
	}
	sch, ok := registry[kf.Algorithm]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, kf.Algorithm)
	}
	pub, err := sch.UnmarshalBinaryPublicKey(kf.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("pqsig: decode public key: %w", err)
	}
	priv, err := sch.UnmarshalBinaryPrivateKey(kf.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("pqsig: decode private key: %w", err)
	}
	return &KeyPair{Algorithm: kf.Algorithm, Public: pub, Private: priv}, nil
}
