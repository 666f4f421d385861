package fingerprint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Load(filepath.Join(dir, "fingerprints.json"), zerolog.Nop())
	require.NoError(t, err)
	return s
}

func TestVerifyOrSaveFirstConnection(t *testing.T) {
	s := newTestStore(t)
	hash := HashPSK("psk-test")

	result, err := s.VerifyOrSave("agentA", hash)
	require.NoError(t, err)
	assert.Equal(t, FirstConnection, result)

	fp, ok := s.Get("agentA")
	require.True(t, ok)
	assert.Equal(t, hash, fp.Hash)
}

func TestVerifyOrSaveVerified(t *testing.T) {
	s := newTestStore(t)
	hash := HashPSK("psk-test")

	_, err := s.VerifyOrSave("agentA", hash)
	require.NoError(t, err)

	result, err := s.VerifyOrSave("agentA", hash)
	require.NoError(t, err)
	assert.Equal(t, Verified, result)
}

func TestVerifyOrSaveMismatchLeavesStoreUntouched(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(Fingerprint{MachineName: "host", Hash: "0000000000000000000000000000000000000000000000000000000000000000"}))

	before, _ := s.Get("host")

	result, err := s.VerifyOrSave("host", HashPSK("psk-test"))
	require.NoError(t, err)
	assert.Equal(t, Mismatch, result)

	after, ok := s.Get("host")
	require.True(t, ok)
	assert.Equal(t, before, after)
}

func TestStorePersistsAcrossLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fingerprints.json")

	s1, err := Load(path, zerolog.Nop())
	require.NoError(t, err)
	_, err = s1.VerifyOrSave("agentA", HashPSK("psk-test"))
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)

	s2, err := Load(path, zerolog.Nop())
	require.NoError(t, err)
	fp, ok := s2.Get("agentA")
	require.True(t, ok)
	assert.Equal(t, HashPSK("psk-test"), fp.Hash)
}

func TestSessionIDUniquePerLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fingerprints.json")

	s1, err := Load(path, zerolog.Nop())
	require.NoError(t, err)
	s2, err := Load(path, zerolog.Nop())
	require.NoError(t, err)

	assert.NotEmpty(t, s1.SessionID())
	assert.NotEqual(t, s1.SessionID(), s2.SessionID())
}

func TestRemove(t *testing.T) {
	s := newTestStore(t)
	_, err := s.VerifyOrSave("agentA", HashPSK("psk-test"))
	require.NoError(t, err)

	require.NoError(t, s.Remove("agentA"))
	_, ok := s.Get("agentA")
	assert.False(t, ok)
}
