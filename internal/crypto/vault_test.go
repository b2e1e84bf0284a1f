package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVault_RejectsShortKey(t *testing.T) {
	_, err := NewVault("too-short")
	assert.Error(t, err)
}

func TestVault_EncryptDecrypt_RoundTrip(t *testing.T) {
	v, err := NewVault("a-32-byte-or-longer-encryption-key!!")
	require.NoError(t, err)

	ciphertext, err := v.Encrypt("plaid-access-token-sandbox-1234")
	require.NoError(t, err)
	assert.NotContains(t, string(ciphertext), "plaid-access-token")

	plaintext, err := v.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "plaid-access-token-sandbox-1234", plaintext)
}

func TestVault_Decrypt_RejectsTamperedCiphertext(t *testing.T) {
	v, err := NewVault("a-32-byte-or-longer-encryption-key!!")
	require.NoError(t, err)

	ciphertext, err := v.Encrypt("secret")
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0xFF

	_, err = v.Decrypt(ciphertext)
	assert.Error(t, err)
}

func TestVault_EncryptHex(t *testing.T) {
	v, err := NewVault("a-32-byte-or-longer-encryption-key!!")
	require.NoError(t, err)

	hexCiphertext, err := v.EncryptHex("secret-value")
	require.NoError(t, err)
	assert.NotEmpty(t, hexCiphertext)
}

func TestVault_DifferentVaultsCannotDecryptEachOther(t *testing.T) {
	v1, err := NewVault("a-32-byte-or-longer-encryption-key!!")
	require.NoError(t, err)
	v2, err := NewVault("a-different-32-byte-encryption-key!")
	require.NoError(t, err)

	ciphertext, err := v1.Encrypt("secret")
	require.NoError(t, err)

	_, err = v2.Decrypt(ciphertext)
	assert.Error(t, err)
}

func TestVault_EncryptBytes_RoundTrip(t *testing.T) {
	v, err := NewVault("a-32-byte-or-longer-encryption-key!!")
	require.NoError(t, err)

	payload := []byte("arbitrary binary archive content, not a short string")
	ciphertext, err := v.EncryptBytes(payload)
	require.NoError(t, err)

	plaintext, err := v.DecryptBytes(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, payload, plaintext)
}
