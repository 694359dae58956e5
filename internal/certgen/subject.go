package certgen

import (
	"crypto/x509/pkix"
	"strings"
)

// ParseSubject parses a distinguished name in either the comma form
// "CN=example.com, O=Example" or the openssl slash form
// "/C=US/ST=WA/L=Seattle/O=Example/CN=example.com". Recognized attributes
// are CN, O, OU, L, ST, C, STREET and POSTALCODE.
func ParseSubject(s string) (pkix.Name, error) {
	var name pkix.Name

	s = strings.TrimSpace(s)
	if s == "" {
		return name, invalid("subject is empty")
	}

	var parts []string
	if strings.HasPrefix(s, "/") {
		parts = strings.Split(strings.TrimPrefix(s, "/"), "/")
	} else {
		parts = strings.Split(s, ",")
	}

	for _, part := range parts {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		if !ok || key == "" || value == "" {
			return pkix.Name{}, invalid("malformed subject attribute %q", part)
		}

		switch key {
		case "CN":
			name.CommonName = value
		case "O":
			name.Organization = append(name.Organization, value)
		case "OU":
			name.OrganizationalUnit = append(name.OrganizationalUnit, value)
		case "L":
			name.Locality = append(name.Locality, value)
		case "ST":
			name.Province = append(name.Province, value)
		case "C":
			name.Country = append(name.Country, value)
		case "STREET":
			name.StreetAddress = append(name.StreetAddress, value)
		case "POSTALCODE":
			name.PostalCode = append(name.PostalCode, value)
		default:
			return pkix.Name{}, invalid("unknown subject attribute %q", key)
		}
	}

	return name, nil
}
