package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const endpoint = "https://fcm.googleapis.com/fcm/send/abc"

func TestSealedPushSecretOpensForItsEndpoint(t *testing.T) {
	v, err := NewAESVault("push-secret-key")
	require.NoError(t, err)

	secret := []byte("auth-secret-from-browser")
	sealed, err := v.Encrypt(secret, []byte(endpoint))
	require.NoError(t, err)
	assert.Equal(t, sealVersion, sealed[0])
	assert.NotContains(t, string(sealed), string(secret))

	opened, err := v.Decrypt(sealed, []byte(endpoint))
	require.NoError(t, err)
	assert.Equal(t, secret, opened)

	again, err := v.Encrypt(secret, []byte(endpoint))
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again)
}

func TestSealedPushSecretRejectsOtherEndpoint(t *testing.T) {
	v, err := NewAESVault("push-secret-key")
	require.NoError(t, err)

	sealed, err := v.Encrypt([]byte("secret"), []byte(endpoint))
	require.NoError(t, err)

	_, err = v.Decrypt(sealed, []byte("https://push.example/other"))
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestAESVaultRejectsEmptyKey(t *testing.T) {
	_, err := NewAESVault("   ")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestAESVaultWrongKeyAndGarbage(t *testing.T) {
	a, err := NewAESVault("key-a")
	require.NoError(t, err)
	b, err := NewAESVault("key-b")
	require.NoError(t, err)

	sealed, err := a.Encrypt([]byte("secret"), nil)
	require.NoError(t, err)

	_, err = b.Decrypt(sealed, nil)
	assert.ErrorIs(t, err, ErrDecryption)

	_, err = b.Decrypt([]byte("short"), nil)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	tampered := append([]byte{9}, sealed[1:]...)
	_, err = a.Decrypt(tampered, nil)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}
