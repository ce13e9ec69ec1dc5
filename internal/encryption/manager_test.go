package encryption

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"verification-service/internal/config"
)

func testManager() *EncryptionManager {
	cfg := &config.Config{}
	return NewEncryptionManager(cfg, nil)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	em := testManager()
	ctx := context.Background()

	encrypted, err := em.EncryptField(ctx, "29805241234567", "national_id")
	require.NoError(t, err)
	require.NotEmpty(t, encrypted.EncryptedValue)
	require.NotEmpty(t, encrypted.EncryptedDEK)
	require.Equal(t, "v1", encrypted.Version)
	require.NotEqual(t, "29805241234567", encrypted.EncryptedValue)

	plaintext, err := em.DecryptField(ctx, encrypted)
	require.NoError(t, err)
	require.Equal(t, "29805241234567", plaintext)
}

func TestDecryptAfterCacheClear(t *testing.T) {
	em := testManager()
	ctx := context.Background()

	encrypted, err := em.EncryptField(ctx, "secret value", "national_id")
	require.NoError(t, err)

	em.ClearCache()

	plaintext, err := em.DecryptField(ctx, encrypted)
	require.NoError(t, err)
	require.Equal(t, "secret value", plaintext)
}

func TestDecryptWithFreshManager(t *testing.T) {
	ctx := context.Background()

	encrypted, err := testManager().EncryptField(ctx, "29805241234567", "national_id")
	require.NoError(t, err)

	// A new process has a cold DEK cache and must recover the key from the
	// stored envelope alone
	plaintext, err := testManager().DecryptField(ctx, encrypted)
	require.NoError(t, err)
	require.Equal(t, "29805241234567", plaintext)
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	em := testManager()
	ctx := context.Background()

	encrypted, err := em.EncryptField(ctx, "secret value", "national_id")
	require.NoError(t, err)

	encrypted.EncryptedValue = "bm90IGEgcmVhbCBjaXBoZXJ0ZXh0IGF0IGFsbCE="
	_, err = em.DecryptField(ctx, encrypted)
	require.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestHashIdentifierDeterministic(t *testing.T) {
	a := HashIdentifier("+201033832316")
	b := HashIdentifier("+201033832316")
	c := HashIdentifier("+201033832317")

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Len(t, a, 64)
}
