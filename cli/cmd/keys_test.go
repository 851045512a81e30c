package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/MiguelVN7/Mini-Blockchain/core/consensus"
)

func TestGenerateAndLoadKeys(t *testing.T) {
	payload := []byte(`{"nodeId":"node-a"}`)

	for _, scheme := range []string{consensus.SchemeECDSA, consensus.SchemeEd25519, consensus.SchemeBLS, consensus.SchemePGP} {
		t.Run(scheme, func(t *testing.T) {
			assert := assert.New(t)

			generated, err := generateKey(scheme, "node-a")
			require.NoError(t, err)

			// PGP keys are loaded from a file.
			keyArg := generated.private
			if scheme == consensus.SchemePGP {
				keyArg = filepath.Join(t.TempDir(), "node-a.asc")
				require.NoError(t, os.WriteFile(keyArg, []byte(generated.private), 0600))
			}

			loaded, err := loadKey(scheme, keyArg)
			require.NoError(t, err)
			assert.Equal(generated.publicKey, loaded.publicKey)

			provider, err := consensus.NewCryptoProvider(scheme)
			require.NoError(t, err)

			sig, err := loaded.signer.Sign(payload)
			require.NoError(t, err)
			assert.True(provider.Verify(generated.publicKey, payload, sig))
			assert.False(provider.Verify(generated.publicKey, []byte("tampered"), sig))
		})
	}
}

func TestLoadKeyErrors(t *testing.T) {
	_, err := loadKey(consensus.SchemeECDSA, "")
	assert.Error(t, err)

	_, err = loadKey(consensus.SchemeEd25519, "abcd")
	assert.Error(t, err)

	_, err = loadKey(consensus.SchemePGP, filepath.Join(t.TempDir(), "missing.asc"))
	assert.Error(t, err)

	_, err = loadKey("rsa", "abcd")
	assert.Error(t, err)
}

func TestKeygenSavesToDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "keys.db")

	app := &cli.App{
		Commands: []*cli.Command{
			{
				Name:   "keygen",
				Action: RunKeygen,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "crypto", Value: consensus.SchemeECDSA},
					&cli.StringFlag{Name: "label", Value: "node"},
					&cli.StringFlag{Name: "db"},
				},
			},
		},
	}
	require.NoError(t, app.Run([]string{"consensusd", "keygen", "--crypto", "ed25519", "--label", "first", "--db", dbPath}))
	require.NoError(t, app.Run([]string{"consensusd", "keygen", "--label", "second", "--db", dbPath}))

	db, err := consensus.OpenDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	keys, err := consensus.LoadDataStore[consensus.KeysStore](db, "keys")
	require.NoError(t, err)
	require.Len(t, keys.Keys, 2)
	assert.Equal(t, "first", keys.Keys[0].Label)
	assert.Equal(t, consensus.SchemeEd25519, keys.Keys[0].Scheme)
	assert.Equal(t, "second", keys.Keys[1].Label)

	key, err := loadKey(keys.Keys[1].Scheme, keys.Keys[1].PrivateKeyString)
	require.NoError(t, err)
	assert.NotEmpty(t, key.publicKey)
}

func TestOpenStore(t *testing.T) {
	store, err := openStore("memory", "")
	require.NoError(t, err)
	assert.IsType(t, &consensus.MemoryStore{}, store)
	store.Close()

	store, err = openStore("sqlite", filepath.Join(t.TempDir(), "node.db"))
	require.NoError(t, err)
	store.Close()

	_, err = openStore("redis", "")
	assert.Error(t, err)
}
