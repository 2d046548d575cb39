package crypto

import (
	"os"
	"path/filepath"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestSigner_SignVerify(t *testing.T) {
	s, err := NewSigner("0x" + testKey)
	require.NoError(t, err)
	assert.False(t, s.Ephemeral())

	digest := ethcrypto.Keccak256([]byte("envelope"))
	sig, err := s.Sign(digest)
	require.NoError(t, err)
	assert.Len(t, sig, 65)
	assert.True(t, Verify(s.PublicKey(), digest, sig))

	other := ethcrypto.Keccak256([]byte("other"))
	assert.False(t, Verify(s.PublicKey(), other, sig))
}

func TestSigner_RejectsShortDigest(t *testing.T) {
	s, err := NewSigner(testKey)
	require.NoError(t, err)
	_, err = s.Sign([]byte("short"))
	assert.Error(t, err)
}

func TestNewSigner_InvalidKey(t *testing.T) {
	_, err := NewSigner("zz")
	assert.Error(t, err)
}

func TestEphemeralSigner_Distinct(t *testing.T) {
	a, err := NewEphemeralSigner()
	require.NoError(t, err)
	b, err := NewEphemeralSigner()
	require.NoError(t, err)
	assert.True(t, a.Ephemeral())
	assert.NotEqual(t, a.PublicKey(), b.PublicKey())
}

func TestKeyFile_RoundTrip(t *testing.T) {
	data, err := EncryptKey(testKey, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(data, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKey, got)

	_, err = DecryptKey(data, "wrong")
	assert.Error(t, err)
}

func TestLoadSigner(t *testing.T) {
	s, err := LoadSigner(KeyConfig{})
	require.NoError(t, err)
	assert.Nil(t, s, "no source configured means read-only")

	data, err := EncryptKey(testKey, "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	fromFile, err := LoadSigner(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	require.NoError(t, err)
	raw, err := LoadSigner(KeyConfig{RawPrivateKey: testKey})
	require.NoError(t, err)
	assert.Equal(t, raw.PublicKey(), fromFile.PublicKey())
}
