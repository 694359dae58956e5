// Package certgen creates self-signed X.509 certificates and their private
// keys and writes them to disk without clobbering existing files.
package certgen

import "errors"

var (
	// ErrInvalidParameter marks a request that cannot produce a certificate.
	ErrInvalidParameter = errors.New("certgen: invalid parameter")

	// ErrFilesystem marks a failure to write an output file.
	ErrFilesystem = errors.New("certgen: filesystem error")

	// ErrOutputExists means an output file exists and overwriting was not allowed.
	ErrOutputExists = errors.New("certgen: output file already exists")
)
