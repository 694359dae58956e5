package certgen

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// Verify checks that certPEM holds a certificate signed by its own key and
// that keyPEM holds that key. A combined PEM may be passed as both arguments.
func Verify(certPEM, keyPEM []byte) (*x509.Certificate, error) {
	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("certgen: certificate and key do not match: %w", err)
	}

	cert, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("certgen: parsing certificate: %w", err)
	}

	if err := cert.CheckSignatureFrom(cert); err != nil {
		return nil, fmt.Errorf("certgen: certificate is not self-signed: %w", err)
	}

	return cert, nil
}

// VerifyFiles reads the files written by Write and verifies them. keyPath
// may be empty when the key is stored alongside the certificate.
func VerifyFiles(certPath, keyPath string) (*x509.Certificate, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrFilesystem, certPath, err)
	}

	keyPEM := certPEM

	if keyPath != "" {
		keyPEM, err = os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %w", ErrFilesystem, keyPath, err)
		}
	}

	return Verify(certPEM, keyPEM)
}
