package certgen

import (
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Key algorithms.
const (
	KeyRSA   = "rsa"
	KeyECDSA = "ecdsa"
)

const (
	DefaultValidityDays = 3650
	maxValidityDays     = 100 * 365
	DefaultKeySize      = 4096
	DefaultCountry      = "XX"
	minRSAKeySize       = 2048
	maxRSAKeySize       = 16384
)

var ecdsaKeySizes = []int{256, 384, 521}

// Request describes the certificate to create.
type Request struct {
	Subject      pkix.Name
	Hostname     string // becomes the SAN, and the CN when Subject has none
	ValidityDays int
	KeyType      string
	KeySize      int
}

// NewRequest builds a request with the default validity and key, and a
// subject of the form /C=<country>/ST=<state>/L=<city>/O=<company>/CN=<hostname>.
// Empty parts are left out.
func NewRequest(hostname, company, city, state, country string) Request {
	if country == "" {
		country = DefaultCountry
	}

	return Request{
		Subject: pkix.Name{
			CommonName:   hostname,
			Organization: nonEmpty(company),
			Locality:     nonEmpty(city),
			Province:     nonEmpty(state),
			Country:      nonEmpty(country),
		},
		Hostname:     hostname,
		ValidityDays: DefaultValidityDays,
		KeyType:      KeyRSA,
		KeySize:      DefaultKeySize,
	}
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}

	return []string{s}
}

// Validate reports every problem with the request. Each returned error
// wraps ErrInvalidParameter.
func (r *Request) Validate() error {
	var errs []error

	if strings.TrimSpace(r.Hostname) == "" && r.Subject.CommonName == "" {
		errs = append(errs, invalid("a hostname or subject CN is required"))
	}

	if r.ValidityDays < 1 || r.ValidityDays > maxValidityDays {
		errs = append(errs, invalid("expiry days must be between 1 and %d, got %d", maxValidityDays, r.ValidityDays))
	}

	switch r.KeyType {
	case KeyRSA:
		if r.KeySize < minRSAKeySize || r.KeySize > maxRSAKeySize {
			errs = append(errs, invalid("rsa key size must be between %d and %d, got %d", minRSAKeySize, maxRSAKeySize, r.KeySize))
		}
	case KeyECDSA:
		if !slices.Contains(ecdsaKeySizes, r.KeySize) {
			errs = append(errs, invalid("ecdsa key size must be one of 256, 384 or 521, got %d", r.KeySize))
		}
	default:
		errs = append(errs, invalid("key type must be %q or %q, got %q", KeyRSA, KeyECDSA, r.KeyType))
	}

	for _, c := range r.Subject.Country {
		if len(c) != 2 {
			errs = append(errs, invalid("country must be a two-letter code, got %q", c))
		}
	}

	return errors.Join(errs...)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, args...))
}
