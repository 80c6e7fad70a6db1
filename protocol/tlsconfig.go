// File: protocol/tlsconfig.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrNoCertificate is returned when a client names a host no certificate was
// registered for and there is no default certificate.
var ErrNoCertificate = errors.New("no certificate for server name")

// TLSConfig holds the certificates served by TLS listeners, selected by the
// server name the client sent (SNI). The first certificate added is the
// default for clients that send no or an unknown server name.
type TLSConfig struct {
	mu       sync.RWMutex
	certs    map[string]*tls.Certificate
	fallback *tls.Certificate

	once   sync.Once
	config *tls.Config
}

// NewTLSConfig returns an empty configuration. Add certificates before
// accepting connections.
func NewTLSConfig() *TLSConfig {
	return &TLSConfig{certs: make(map[string]*tls.Certificate)}
}

// AddCertificate registers cert for serverName.
func (c *TLSConfig) AddCertificate(serverName string, cert tls.Certificate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cc := cert
	c.certs[strings.ToLower(serverName)] = &cc
	if c.fallback == nil {
		c.fallback = &cc
	}
}

// AddCertificateFromPEM parses a PEM certificate chain and private key and
// registers them for serverName.
func (c *TLSConfig) AddCertificateFromPEM(serverName string, certPEM, keyPEM []byte) error {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return fmt.Errorf("tls certificate for %q: %w", serverName, err)
	}
	c.AddCertificate(serverName, cert)
	return nil
}

// AddCertificateFromFiles loads a PEM certificate chain and key from disk.
func (c *TLSConfig) AddCertificateFromFiles(serverName, certFile, keyFile string) error {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return fmt.Errorf("tls certificate for %q: %w", serverName, err)
	}
	c.AddCertificate(serverName, cert)
	return nil
}

func (c *TLSConfig) getCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if cert, ok := c.certs[strings.ToLower(hello.ServerName)]; ok {
		return cert, nil
	}
	if c.fallback != nil {
		return c.fallback, nil
	}
	return nil, ErrNoCertificate
}

// serverConfig returns the shared crypto/tls server configuration.
func (c *TLSConfig) serverConfig() *tls.Config {
	c.once.Do(func() {
		c.config = &tls.Config{
			GetCertificate: c.getCertificate,
			MinVersion:     tls.VersionTLS12,
		}
	})
	return c.config
}
