package cmd

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"
	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"

	"github.com/MiguelVN7/Mini-Blockchain/core"
	"github.com/MiguelVN7/Mini-Blockchain/core/consensus"
)

// A nodeKey signs requests and knows the public key to register.
type nodeKey struct {
	signer    consensus.Signer
	publicKey string
	// Private key in the form --key accepts.
	private string
}

// loadKey parses --key for a scheme. ECDSA and BLS keys are hex, Ed25519
// keys are a hex 32-byte seed and PGP keys are a path to an armored secret
// key file.
func loadKey(scheme, key string) (*nodeKey, error) {
	if key == "" {
		return nil, fmt.Errorf("a private key is required (--key or CONSENSUS_KEY)")
	}

	switch strings.ToLower(scheme) {
	case "", consensus.SchemeECDSA:
		wallet, err := core.WalletFromPrivateKey(key)
		if err != nil {
			return nil, err
		}
		return &nodeKey{signer: wallet, publicKey: wallet.PubkeyStr(), private: wallet.PrvkeyStr()}, nil

	case consensus.SchemeEd25519:
		seed, err := hex.DecodeString(key)
		if err != nil || len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("ed25519 key must be a hex %d-byte seed", ed25519.SeedSize)
		}
		signer := consensus.Ed25519Signer{Key: ed25519.NewKeyFromSeed(seed)}
		return &nodeKey{signer: signer, publicKey: signer.PublicKeyHex(), private: key}, nil

	case consensus.SchemeBLS:
		signer, err := consensus.BLSSignerFromHex(key)
		if err != nil {
			return nil, err
		}
		return &nodeKey{signer: signer, publicKey: signer.PublicKeyHex(), private: key}, nil

	case consensus.SchemePGP:
		f, err := os.Open(key)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		keyring, err := openpgp.ReadArmoredKeyRing(f)
		if err != nil {
			return nil, err
		}
		if len(keyring) == 0 || keyring[0].PrivateKey == nil {
			return nil, fmt.Errorf("%s holds no private key", key)
		}
		publicKey, err := armoredPublicKey(keyring[0])
		if err != nil {
			return nil, err
		}
		return &nodeKey{signer: consensus.PGPSigner{Entity: keyring[0]}, publicKey: publicKey, private: key}, nil

	default:
		return nil, fmt.Errorf("unknown signature scheme %q", scheme)
	}
}

// generateKey creates a key for a scheme. PGP keys are returned armored.
func generateKey(scheme, name string) (*nodeKey, error) {
	switch strings.ToLower(scheme) {
	case "", consensus.SchemeECDSA:
		wallet, err := core.CreateRandomWallet()
		if err != nil {
			return nil, err
		}
		return &nodeKey{signer: wallet, publicKey: wallet.PubkeyStr(), private: wallet.PrvkeyStr()}, nil

	case consensus.SchemeEd25519:
		seed := make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			return nil, err
		}
		signer := consensus.Ed25519Signer{Key: ed25519.NewKeyFromSeed(seed)}
		return &nodeKey{signer: signer, publicKey: signer.PublicKeyHex(), private: hex.EncodeToString(seed)}, nil

	case consensus.SchemeBLS:
		signer, err := consensus.NewBLSSigner(nil)
		if err != nil {
			return nil, err
		}
		return &nodeKey{signer: signer, publicKey: signer.PublicKeyHex(), private: signer.SecretHex()}, nil

	case consensus.SchemePGP:
		entity, err := openpgp.NewEntity(name, "consensus node", "", nil)
		if err != nil {
			return nil, err
		}
		publicKey, err := armoredPublicKey(entity)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		w, err := armor.Encode(&buf, openpgp.PrivateKeyType, nil)
		if err != nil {
			return nil, err
		}
		if err := entity.SerializePrivate(w, nil); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return &nodeKey{signer: consensus.PGPSigner{Entity: entity}, publicKey: publicKey, private: buf.String()}, nil

	default:
		return nil, fmt.Errorf("unknown signature scheme %q", scheme)
	}
}

func armoredPublicKey(entity *openpgp.Entity) (string, error) {
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		return "", err
	}
	if err := entity.Serialize(w); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RunKeygen creates a node key. With --db it is also saved in the node
// database under --label.
func RunKeygen(cmdCtx *cli.Context) error {
	scheme := cmdCtx.String("crypto")
	label := cmdCtx.String("label")

	key, err := generateKey(scheme, label)
	if err != nil {
		return err
	}

	if dbPath := cmdCtx.String("db"); dbPath != "" {
		db, err := consensus.OpenDB(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()

		keys, err := consensus.LoadDataStore[consensus.KeysStore](db, "keys")
		if err != nil {
			return err
		}
		keys.Keys = append(keys.Keys, consensus.NodeKey{
			Label:            label,
			Scheme:           scheme,
			PrivateKeyString: key.private,
		})
		if err := consensus.SaveDataStore(db, "keys", *keys); err != nil {
			return err
		}
	}

	pterm.DefaultSection.Println("New " + scheme + " key")
	pterm.Println(pterm.LightYellow("private key: ") + key.private)
	pterm.Println(pterm.LightGreen("public key:  ") + key.publicKey)
	return nil
}
