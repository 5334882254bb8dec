package tls

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelfSignedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "server.crt")
	keyFile := filepath.Join(dir, "server.key")
	require.NoError(t, GenerateSelfSigned(certFile, keyFile, "crashloop", "127.0.0.1", "harness.local"))

	serverCfg, err := ServerConfig(Config{CertFile: certFile, KeyFile: keyFile})
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS12), serverCfg.MinVersion)

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	srv.TLS = serverCfg
	srv.StartTLS()
	defer srv.Close()

	clientCfg, err := ClientConfig(Config{CAFile: certFile})
	require.NoError(t, err)
	client := &http.Client{Transport: &http.Transport{TLSClientConfig: clientCfg}}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(body))
}

func TestServerConfig_Errors(t *testing.T) {
	_, err := ServerConfig(Config{CertFile: "missing.crt", KeyFile: "missing.key"})
	assert.Error(t, err)

	dir := t.TempDir()
	certFile := filepath.Join(dir, "c.crt")
	keyFile := filepath.Join(dir, "c.key")
	require.NoError(t, GenerateSelfSigned(certFile, keyFile, "crashloop"))

	_, err = ServerConfig(Config{CertFile: certFile, KeyFile: keyFile, RequireClientCert: true})
	assert.ErrorContains(t, err, "ca_file")

	cfg, err := ServerConfig(Config{CertFile: certFile, KeyFile: keyFile, CAFile: certFile, RequireClientCert: true})
	require.NoError(t, err)
	assert.Equal(t, tls.RequireAndVerifyClientCert, cfg.ClientAuth)
}

func TestEnabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.False(t, Config{CertFile: "a"}.Enabled())
	assert.True(t, Config{CertFile: "a", KeyFile: "b"}.Enabled())
}
