package database

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/pkg/errors"
)

// TLSConfig names the files used for mutual TLS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`
}

// GetTLSConfig creates a TLS config for connecting to a database over mTLS.
//
// Example usage:
//
//	cfg, err := GetTLSConfig(TLSConfig{CertFile: "tls.crt", KeyFile: "tls.key", CAFile: "ca.crt"})
//	if err != nil {
//		return err
//	}
func GetTLSConfig(opts TLSConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to load certfile/keyfile")
	}

	caCert, err := os.ReadFile(opts.CAFile)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to load CAfile")
	}

	caCertPool := x509.NewCertPool()
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caCertPool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
