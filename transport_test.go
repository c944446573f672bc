package o3chat

import (
	"context"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeServerCert(t *testing.T, server *httptest.Server, asPEM bool) string {
	t.Helper()
	der := server.Certificate().Raw
	data := der
	if asPEM {
		data = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	}
	path := filepath.Join(t.TempDir(), "server.cer")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestNewHTTPClientTrustsCertificateFile(t *testing.T) {
	t.Parallel()

	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "[]")
	}))
	t.Cleanup(server.Close)

	for _, asPEM := range []bool{true, false} {
		httpClient, err := NewHTTPClient(TransportOptions{CertificateFile: writeServerCert(t, server, asPEM)})
		require.NoError(t, err)

		c, err := New(Config{
			Credentials: StaticCredentials{Server: server.URL, Username: "a", Password: "b", Version: 3},
			HTTPClient:  httpClient,
		})
		require.NoError(t, err)
		res, err := c.FetchMessages(context.Background(), "")
		require.NoError(t, err, "pem=%v", asPEM)
		assert.Equal(t, http.StatusOK, res.Status)
	}
}

func TestNewHTTPClientRejectsUnknownAuthority(t *testing.T) {
	t.Parallel()

	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	t.Cleanup(server.Close)

	httpClient, err := NewHTTPClient(TransportOptions{})
	require.NoError(t, err)
	c, err := New(Config{
		Credentials: StaticCredentials{Server: server.URL, Username: "a", Password: "b", Version: 3},
		HTTPClient:  httpClient,
	})
	require.NoError(t, err)

	_, err = c.FetchMessages(context.Background(), "")
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestNewHTTPClientBadCertificateFile(t *testing.T) {
	t.Parallel()

	_, err := NewHTTPClient(TransportOptions{CertificateFile: filepath.Join(t.TempDir(), "missing.cer")})
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)

	junk := filepath.Join(t.TempDir(), "junk.cer")
	require.NoError(t, os.WriteFile(junk, []byte("not a certificate"), 0o600))
	_, err = NewHTTPClient(TransportOptions{CertificateFile: junk})
	require.ErrorAs(t, err, &transportErr)

	httpClient, err := NewHTTPClient(TransportOptions{CertificateFile: junk, InsecureHTTP: true})
	require.NoError(t, err)
	assert.Equal(t, DefaultRequestTimeout, httpClient.Timeout)
}
