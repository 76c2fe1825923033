package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("42-1-2024-05-01T10:00:00+00:00", "7/42-1-2024-05-01T10:00:00+00:00.mbz")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.False(t, expiresAt.IsZero())

	id, path, parsedExpiry, err := signer.Parse(token, false)
	require.NoError(t, err)
	require.Equal(t, "42-1-2024-05-01T10:00:00+00:00", id)
	require.Equal(t, "7/42-1-2024-05-01T10:00:00+00:00.mbz", path)
	require.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	token, _, err := signer.Generate("bundle", "7/bundle.json")
	require.NoError(t, err)
	signer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, _, _, err = signer.Parse(token, false)
	require.True(t, errors.Is(err, ErrTokenExpired))

	id, path, _, err := signer.Parse(token, true)
	require.NoError(t, err)
	require.Equal(t, "bundle", id)
	require.Equal(t, "7/bundle.json", path)
}

func TestSignedURLSignerRejectsTamperedToken(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("bundle", "7/bundle.json")
	require.NoError(t, err)

	other := NewSignedURLSigner("other", time.Hour)
	_, _, _, err = other.Parse(token, false)
	require.True(t, errors.Is(err, ErrTokenInvalid))

	_, _, _, err = signer.Parse("a.b.c", false)
	require.True(t, errors.Is(err, ErrTokenInvalid))
}
