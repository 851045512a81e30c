package consensus

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	blst "github.com/supranational/blst/bindings/go"
	"golang.org/x/crypto/openpgp"

	"github.com/MiguelVN7/Mini-Blockchain/core"
)

// CryptoProvider verifies that signature is a valid signature of payload under
// publicKey. Malformed keys and signatures fail verification; they are not
// errors. Implementations are safe for concurrent use.
type CryptoProvider interface {
	Verify(publicKey string, payload, signature []byte) bool
}

const (
	SchemeECDSA   = "ecdsa"
	SchemeEd25519 = "ed25519"
	SchemeBLS     = "bls"
	SchemePGP     = "pgp"
)

// NewCryptoProvider returns the provider for a signature scheme name.
func NewCryptoProvider(scheme string) (CryptoProvider, error) {
	switch strings.ToLower(scheme) {
	case "", SchemeECDSA:
		return ECDSAProvider{}, nil
	case SchemeEd25519:
		return Ed25519Provider{}, nil
	case SchemeBLS:
		return BLSProvider{}, nil
	case SchemePGP:
		return PGPProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown signature scheme %q", scheme)
	}
}

// ECDSAProvider checks P-256 signatures made by core.Wallet. Public keys are
// the 130 hex chars of the uncompressed point.
type ECDSAProvider struct{}

func (ECDSAProvider) Verify(publicKey string, payload, signature []byte) bool {
	return core.VerifySignature(publicKey, signature, payload)
}

// Ed25519Provider checks Ed25519 signatures. Public keys are 64 hex chars.
type Ed25519Provider struct{}

func (Ed25519Provider) Verify(publicKey string, payload, signature []byte) bool {
	pub, err := hex.DecodeString(publicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), payload, signature)
}

// Ed25519Signer signs with an Ed25519 private key.
type Ed25519Signer struct {
	Key ed25519.PrivateKey
}

func (s Ed25519Signer) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(s.Key, msg), nil
}

func (s Ed25519Signer) PublicKeyHex() string {
	return hex.EncodeToString(s.Key.Public().(ed25519.PublicKey))
}

const (
	BLSPublicKeySize = 48
	BLSSignatureSize = 96
)

var blsDST = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_NUL_")

// BLSProvider checks BLS12-381 signatures: compressed G1 public keys (hex) and
// compressed G2 signatures.
type BLSProvider struct{}

func (BLSProvider) Verify(publicKey string, payload, signature []byte) bool {
	pkBytes, err := hex.DecodeString(publicKey)
	if err != nil || len(pkBytes) != BLSPublicKeySize || len(signature) != BLSSignatureSize {
		return false
	}

	sig := new(blst.P2Affine).Uncompress(signature)
	if sig == nil {
		return false
	}
	pk := new(blst.P1Affine).Uncompress(pkBytes)
	if pk == nil {
		return false
	}

	return sig.Verify(true, pk, true, payload, blsDST)
}

// BLSSigner holds a BLS secret key.
type BLSSigner struct {
	secret *blst.SecretKey
	public *blst.P1Affine
}

// NewBLSSigner derives a key from ikm, which must be at least 32 bytes. A nil
// ikm draws fresh randomness.
func NewBLSSigner(ikm []byte) (*BLSSigner, error) {
	if ikm == nil {
		ikm = make([]byte, 32)
		if _, err := rand.Read(ikm); err != nil {
			return nil, fmt.Errorf("generate random seed: %w", err)
		}
	}
	if len(ikm) < 32 {
		return nil, fmt.Errorf("bls seed must be at least 32 bytes")
	}

	secret := blst.KeyGen(ikm)
	if secret == nil {
		return nil, fmt.Errorf("failed to generate BLS key")
	}
	return &BLSSigner{
		secret: secret,
		public: new(blst.P1Affine).From(secret),
	}, nil
}

func (s *BLSSigner) Sign(msg []byte) ([]byte, error) {
	return new(blst.P2Affine).Sign(s.secret, msg, blsDST).Compress(), nil
}

func (s *BLSSigner) PublicKeyHex() string {
	return hex.EncodeToString(s.public.Compress())
}

// SecretHex returns the serialized secret key.
func (s *BLSSigner) SecretHex() string {
	return hex.EncodeToString(s.secret.Serialize())
}

// BLSSignerFromHex loads a key written by SecretHex.
func BLSSignerFromHex(secretHex string) (*BLSSigner, error) {
	raw, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, err
	}
	secret := new(blst.SecretKey).Deserialize(raw)
	if secret == nil {
		return nil, fmt.Errorf("invalid BLS secret key")
	}
	return &BLSSigner{
		secret: secret,
		public: new(blst.P1Affine).From(secret),
	}, nil
}

// PGPProvider checks OpenPGP detached signatures. Public keys are ASCII armored
// key blocks; signatures are armored or binary detached signatures.
type PGPProvider struct{}

func (PGPProvider) Verify(publicKey string, payload, signature []byte) bool {
	keyring, err := openpgp.ReadArmoredKeyRing(strings.NewReader(publicKey))
	if err != nil || len(keyring) == 0 {
		return false
	}

	if bytes.HasPrefix(bytes.TrimSpace(signature), []byte("-----BEGIN")) {
		_, err = openpgp.CheckArmoredDetachedSignature(keyring, bytes.NewReader(payload), bytes.NewReader(signature))
	} else {
		_, err = openpgp.CheckDetachedSignature(keyring, bytes.NewReader(payload), bytes.NewReader(signature))
	}
	return err == nil
}

// PGPSigner signs with an OpenPGP entity holding a decrypted private key.
type PGPSigner struct {
	Entity *openpgp.Entity
}

func (s PGPSigner) Sign(msg []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&buf, s.Entity, bytes.NewReader(msg), nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
