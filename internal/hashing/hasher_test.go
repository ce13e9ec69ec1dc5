package hashing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"verification-service/internal/config"
)

func testHasher() *Hasher {
	return NewHasher(&config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:   1024,
			Argon2TimeCost:     1,
			Argon2Parallelism:  1,
			PepperRotationDays: 30,
		},
	})
}

func TestHashAndVerifyOTP(t *testing.T) {
	h := testHasher()

	result, err := h.HashOTP("483920")
	require.NoError(t, err)
	require.NotEmpty(t, result.Hash)
	require.NotEmpty(t, result.Salt)
	require.Equal(t, "argon2id-v1", result.Algorithm)

	ok, err := h.VerifyOTP("483920", result)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = h.VerifyOTP("483921", result)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHashOTPUsesFreshSalt(t *testing.T) {
	h := testHasher()

	first, err := h.HashOTP("112233")
	require.NoError(t, err)
	second, err := h.HashOTP("112233")
	require.NoError(t, err)

	require.NotEqual(t, first.Salt, second.Salt)
	require.NotEqual(t, first.Hash, second.Hash)
}

func TestVerifyOTPSurvivesPepperRotation(t *testing.T) {
	h := testHasher()

	result, err := h.HashOTP("654321")
	require.NoError(t, err)

	h.rotatePepper()

	ok, err := h.VerifyOTP("654321", result)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyOTPUnknownPepperVersion(t *testing.T) {
	h := testHasher()

	result, err := h.HashOTP("654321")
	require.NoError(t, err)

	result.PepperVersion = 99
	_, err = h.VerifyOTP("654321", result)
	require.Error(t, err)
}
