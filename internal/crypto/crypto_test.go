package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestSignerDeterministic(t *testing.T) {
	s := &RequestSigner{Key: "desk-1", Secret: []byte("shh")}
	body := []byte(`{"market_id":"KXBTC"}`)

	h1 := s.HeadersAt("POST", "/orders", body, 1700000000000)
	h2 := s.HeadersAt("POST", "/orders", body, 1700000000000)
	assert.Equal(t, h1, h2)
	assert.Equal(t, "desk-1", h1[HeaderKey])
	assert.Equal(t, "1700000000000", h1[HeaderTimestamp])
	assert.True(t, s.Verify("POST", "/orders", body, h1[HeaderTimestamp], h1[HeaderSignature]))
	assert.False(t, s.Verify("POST", "/orders", []byte(`{}`), h1[HeaderTimestamp], h1[HeaderSignature]))

	h3 := s.HeadersAt("POST", "/orders", body, 1700000000001)
	assert.NotEqual(t, h1[HeaderSignature], h3[HeaderSignature])
}

func TestRequestSignerStringRedacts(t *testing.T) {
	s := &RequestSigner{Key: "abcdefgh", Secret: []byte("topsecret")}
	assert.NotContains(t, s.String(), "topsecret")
	assert.NotContains(t, s.String(), "efgh")
}

func TestSealOpenSecret(t *testing.T) {
	blob, err := SealSecret([]byte("proxy-secret"), "pw")
	require.NoError(t, err)

	got, err := OpenSecret(blob, "pw")
	require.NoError(t, err)
	assert.Equal(t, "proxy-secret", string(got))

	_, err = OpenSecret(blob, "wrong")
	assert.Error(t, err)

	_, err = SealSecret([]byte("x"), "")
	assert.Error(t, err)
}

func TestLoadSecret(t *testing.T) {
	got, err := LoadSecret(SecretSource{Raw: "inline"})
	require.NoError(t, err)
	assert.Equal(t, "inline", string(got))

	got, err = LoadSecret(SecretSource{})
	require.NoError(t, err)
	assert.Nil(t, got)

	blob, err := SealSecret([]byte("from-file"), "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "secret.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err = LoadSecret(SecretSource{EncryptedPath: path, Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "from-file", string(got))
}
