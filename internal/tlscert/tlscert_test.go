package tlscert

import (
	"crypto/tls"
	"crypto/x509"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoad_SelfSignedGeneratesAndReuses(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Mode: ModeSelfSigned, CertDir: dir}

	first, err := Load(cfg, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS13), first.TLSConfig.MinVersion)
	require.Len(t, first.TLSConfig.Certificates, 1)

	info, err := os.Stat(filepath.Join(dir, "server.key"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := Load(cfg, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, first.TLSConfig.Certificates[0].Certificate[0], second.TLSConfig.Certificates[0].Certificate[0])

	leaf, err := x509.ParseCertificate(first.TLSConfig.Certificates[0].Certificate[0])
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"localhost"}, leaf.DNSNames)
	assert.Len(t, leaf.IPAddresses, 2)
}

func TestLoad_SelfSignedRegeneratesForNewHosts(t *testing.T) {
	dir := t.TempDir()
	first, err := Load(Config{Mode: ModeSelfSigned, CertDir: dir}, quietLogger())
	require.NoError(t, err)

	second, err := Load(Config{Mode: ModeSelfSigned, CertDir: dir, Hosts: []string{"graph.internal"}}, quietLogger())
	require.NoError(t, err)
	assert.NotEqual(t, first.TLSConfig.Certificates[0].Certificate[0], second.TLSConfig.Certificates[0].Certificate[0])
}

func TestReusable(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "c.crt")
	keyPath := filepath.Join(dir, "c.key")
	now := time.Now()
	require.NoError(t, generate(certPath, keyPath, defaultHosts, now))
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	require.NoError(t, err)

	assert.True(t, reusable(cert, defaultHosts, now))
	assert.True(t, reusable(cert, []string{"::1", "localhost", "127.0.0.1"}, now))
	assert.False(t, reusable(cert, []string{"localhost"}, now))
	assert.False(t, reusable(cert, defaultHosts, now.Add(selfSignedValidity)))
	assert.False(t, reusable(tls.Certificate{}, defaultHosts, now))
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")
	require.NoError(t, generate(certPath, keyPath, defaultHosts, time.Now()))

	src, err := Load(Config{Mode: ModeFile, CertFile: certPath, KeyFile: keyPath}, quietLogger())
	require.NoError(t, err)
	cert, err := src.TLSConfig.GetCertificate(&tls.ClientHelloInfo{})
	require.NoError(t, err)
	assert.NotEmpty(t, cert.Certificate)

	require.NoError(t, os.Chmod(keyPath, 0o644))
	_, err = Load(Config{Mode: ModeFile, CertFile: certPath, KeyFile: keyPath}, quietLogger())
	assert.ErrorContains(t, err, "insecure permissions")
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(Config{Mode: "acme"}, quietLogger())
	assert.ErrorContains(t, err, "unsupported tls mode")

	_, err = Load(Config{Mode: ModeFile}, quietLogger())
	assert.Error(t, err)

	_, err = Load(Config{Mode: ModeFile, CertFile: "missing.crt", KeyFile: "missing.key"}, quietLogger())
	assert.Error(t, err)
}
