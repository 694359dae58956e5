package certgen

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"net"
	"time"
)

// serialBits is the size of the random serial number.
const serialBits = 128

// Artifact is a generated certificate and its key, PEM-encoded.
type Artifact struct {
	CertPEM     []byte
	KeyPEM      []byte
	Certificate *x509.Certificate
}

// Generator creates certificates. The zero value uses the wall clock and
// crypto/rand.
type Generator struct {
	Now  func() time.Time
	Rand io.Reader
}

// Generate validates req and returns a self-signed certificate for it.
func (g Generator) Generate(req Request) (*Artifact, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now
	if g.Now != nil {
		now = g.Now
	}

	random := g.Rand
	if random == nil {
		random = rand.Reader
	}

	key, err := generateKey(random, req.KeyType, req.KeySize)
	if err != nil {
		return nil, err
	}

	serial, err := rand.Int(random, new(big.Int).Lsh(big.NewInt(1), serialBits))
	if err != nil {
		return nil, fmt.Errorf("certgen: generating serial number: %w", err)
	}

	notBefore := now().UTC().Truncate(time.Second)

	subject := req.Subject
	if subject.CommonName == "" {
		subject.CommonName = req.Hostname
	}

	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               subject,
		NotBefore:             notBefore,
		NotAfter:              notBefore.AddDate(0, 0, req.ValidityDays),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	if req.KeyType == KeyRSA {
		tmpl.KeyUsage |= x509.KeyUsageKeyEncipherment
		tmpl.SignatureAlgorithm = x509.SHA256WithRSA
	} else {
		tmpl.SignatureAlgorithm = x509.ECDSAWithSHA256
	}

	host := req.Hostname
	if host == "" {
		host = subject.CommonName
	}

	if ip := net.ParseIP(host); ip != nil {
		tmpl.IPAddresses = []net.IP{ip}
	} else {
		tmpl.DNSNames = []string{host}
	}

	der, err := x509.CreateCertificate(random, tmpl, tmpl, key.Public(), key)
	if err != nil {
		return nil, fmt.Errorf("certgen: creating certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("certgen: parsing generated certificate: %w", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("certgen: encoding private key: %w", err)
	}

	return &Artifact{
		CertPEM:     pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		KeyPEM:      pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}),
		Certificate: cert,
	}, nil
}

func generateKey(random io.Reader, keyType string, size int) (crypto.Signer, error) {
	switch keyType {
	case KeyRSA:
		k, err := rsa.GenerateKey(random, size)
		if err != nil {
			return nil, fmt.Errorf("certgen: generating rsa key: %w", err)
		}

		return k, nil
	case KeyECDSA:
		var curve elliptic.Curve

		switch size {
		case 256:
			curve = elliptic.P256()
		case 384:
			curve = elliptic.P384()
		default:
			curve = elliptic.P521()
		}

		k, err := ecdsa.GenerateKey(curve, random)
		if err != nil {
			return nil, fmt.Errorf("certgen: generating ecdsa key: %w", err)
		}

		return k, nil
	default:
		return nil, invalid("unsupported key type %q", keyType)
	}
}
