// Package tlscert provides the certificate for the HTTPS listener, either
// from operator-supplied PEM files or a generated development certificate.
package tlscert

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Mode selects where the server certificate comes from.
type Mode string

const (
	ModeFile       Mode = "file"
	ModeSelfSigned Mode = "selfsigned"
)

// Config describes the certificate source.
type Config struct {
	Mode Mode

	CertFile string
	KeyFile  string

	// CertDir holds the generated pair in selfsigned mode.
	CertDir string
	Hosts   []string
}

// Source is a loaded certificate source.
type Source struct {
	TLSConfig   *tls.Config
	Description string
}

// Load validates the configured certificate and returns a server TLS
// config. TLS 1.3 is the minimum version.
func Load(cfg Config, logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Mode {
	case ModeFile:
		return loadFiles(cfg, logger)
	case ModeSelfSigned:
		return loadSelfSigned(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported tls mode %q (valid modes: file, selfsigned)", cfg.Mode)
	}
}

func loadFiles(cfg Config, logger *slog.Logger) (*Source, error) {
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return nil, fmt.Errorf("tls mode file requires a certificate and a key file")
	}
	if err := checkKeyPermissions(cfg.KeyFile); err != nil {
		return nil, err
	}

	reloader := &certReloader{certFile: cfg.CertFile, keyFile: cfg.KeyFile, logger: logger}
	if _, err := reloader.current(); err != nil {
		return nil, err
	}
	return &Source{
		TLSConfig: &tls.Config{
			MinVersion: tls.VersionTLS13,
			GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
				return reloader.current()
			},
		},
		Description: fmt.Sprintf("file (cert=%s)", cfg.CertFile),
	}, nil
}

// certReloader re-reads the key pair when the certificate file changes so
// rotated certificates are served without a restart.
type certReloader struct {
	certFile string
	keyFile  string
	logger   *slog.Logger

	mu      sync.Mutex
	cert    *tls.Certificate
	modTime time.Time
}

func (r *certReloader) current() (*tls.Certificate, error) {
	info, err := os.Stat(r.certFile)
	if err != nil {
		return nil, fmt.Errorf("certificate file not accessible: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cert != nil && info.ModTime().Equal(r.modTime) {
		return r.cert, nil
	}

	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		if r.cert != nil {
			r.logger.Error("failed to reload certificate; serving previous one",
				slog.String("cert_file", r.certFile),
				slog.String("error", err.Error()),
			)
			return r.cert, nil
		}
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	if r.cert != nil {
		r.logger.Info("reloaded TLS certificate", slog.String("cert_file", r.certFile))
	}
	r.cert = &cert
	r.modTime = info.ModTime()
	return r.cert, nil
}

func checkKeyPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("key file not accessible: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("key file %s is a directory", path)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return fmt.Errorf("key file %s has insecure permissions %o (want 0600 or 0400)", path, perm)
	}
	return nil
}
