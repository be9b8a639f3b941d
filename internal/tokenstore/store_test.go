package tokenstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(Config{Dir: t.TempDir(), FileMode: true})
	require.NoError(t, err)
	return store
}

func sampleToken(profile string) *StoredToken {
	return &StoredToken{
		Profile:       profile,
		AccessToken:   "at-" + profile,
		RefreshToken:  "rt-" + profile,
		TokenType:     "Bearer",
		Expiry:        time.Now().Add(time.Hour),
		TokenEndpoint: "https://login.example.com/oauth2/token",
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	store := newFileStore(t)

	require.NoError(t, store.Save(sampleToken("prod")))

	token := store.Get("prod")
	require.NotNil(t, token)
	assert.Equal(t, "at-prod", token.AccessToken)
	assert.True(t, token.Valid())
	assert.False(t, token.CreatedAt.IsZero())

	assert.Nil(t, store.Get("missing"))
}

func TestStore_SaveValidation(t *testing.T) {
	store := newFileStore(t)

	require.Error(t, store.Save(nil))
	require.Error(t, store.Save(&StoredToken{AccessToken: "at"}))
}

func TestStore_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()

	first, err := New(Config{Dir: dir, FileMode: true})
	require.NoError(t, err)
	require.NoError(t, first.Save(sampleToken("prod")))

	second, err := New(Config{Dir: dir, FileMode: true})
	require.NoError(t, err)

	token := second.Get("prod")
	require.NotNil(t, token)
	assert.Equal(t, "at-prod", token.AccessToken)
}

func TestStore_FilePermissions(t *testing.T) {
	dir := t.TempDir()
	store, err := New(Config{Dir: filepath.Join(dir, "tokens"), FileMode: true})
	require.NoError(t, err)
	require.NoError(t, store.Save(sampleToken("prod")))

	dirInfo, err := os.Stat(filepath.Join(dir, "tokens"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm())

	entries, err := os.ReadDir(filepath.Join(dir, "tokens"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	fileInfo, err := entries[0].Info()
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), fileInfo.Mode().Perm())
}

func TestStore_Delete(t *testing.T) {
	store := newFileStore(t)
	require.NoError(t, store.Save(sampleToken("prod")))

	require.NoError(t, store.Delete("prod"))
	assert.Nil(t, store.Get("prod"))

	require.NoError(t, store.Delete("prod"), "deleting twice is not an error")
}

func TestStore_List(t *testing.T) {
	dir := t.TempDir()
	first, err := New(Config{Dir: dir, FileMode: true})
	require.NoError(t, err)
	require.NoError(t, first.Save(sampleToken("staging")))
	require.NoError(t, first.Save(sampleToken("prod")))

	// A fresh instance must find the files from the earlier run.
	second, err := New(Config{Dir: dir, FileMode: true})
	require.NoError(t, err)

	tokens, err := second.List()
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "prod", tokens[0].Profile, "sorted by profile")
	assert.Equal(t, "staging", tokens[1].Profile)
}

func TestStore_MemoryMode(t *testing.T) {
	store, err := New(Config{FileMode: false})
	require.NoError(t, err)

	require.NoError(t, store.Save(sampleToken("prod")))
	require.NotNil(t, store.Get("prod"))

	tokens, err := store.List()
	require.NoError(t, err)
	assert.Len(t, tokens, 1)
}

func TestStoredToken_Valid(t *testing.T) {
	t.Run("expired token is invalid", func(t *testing.T) {
		token := sampleToken("prod")
		token.Expiry = time.Now().Add(-time.Minute)
		assert.False(t, token.Valid())
	})

	t.Run("expiry inside the safety buffer is invalid", func(t *testing.T) {
		token := sampleToken("prod")
		token.Expiry = time.Now().Add(30 * time.Second)
		assert.False(t, token.Valid())
	})

	t.Run("zero expiry is valid", func(t *testing.T) {
		token := sampleToken("prod")
		token.Expiry = time.Time{}
		assert.True(t, token.Valid())
	})

	t.Run("nil and empty tokens are invalid", func(t *testing.T) {
		var nilToken *StoredToken
		assert.False(t, nilToken.Valid())
		assert.False(t, (&StoredToken{}).Valid())
	})
}

func TestStoredToken_ToOAuth2Token(t *testing.T) {
	stored := sampleToken("prod")
	stored.IDToken = "id-token-value"

	token := stored.ToOAuth2Token()
	assert.Equal(t, stored.AccessToken, token.AccessToken)
	assert.Equal(t, stored.RefreshToken, token.RefreshToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Equal(t, "id-token-value", token.Extra("id_token"))
}

func TestStore_HasValidToken(t *testing.T) {
	store := newFileStore(t)
	assert.False(t, store.HasValidToken("prod"))

	require.NoError(t, store.Save(sampleToken("prod")))
	assert.True(t, store.HasValidToken("prod"))

	expired := sampleToken("old")
	expired.Expiry = time.Now().Add(-time.Hour)
	require.NoError(t, store.Save(expired))
	assert.False(t, store.HasValidToken("old"))
}
