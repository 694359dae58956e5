package main

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rsa"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbrownell/devenv-utilities/internal/certgen"
	"github.com/dbrownell/devenv-utilities/internal/config"
)

func noTerminal(t *testing.T) {
	t.Helper()

	old := stdinIsTerminal
	t.Cleanup(func() { stdinIsTerminal = old })

	stdinIsTerminal = func() bool { return false }
}

func execute(t *testing.T, args ...string) error {
	t.Helper()

	cmd := newRootCmd()
	cmd.SetArgs(append(args, "--quiet", "--config", filepath.Join(t.TempDir(), "none.toml")))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	return cmd.Execute()
}

func TestCreate_CombinedFile(t *testing.T) {
	noTerminal(t)

	out := filepath.Join(t.TempDir(), "server.pem")

	require.NoError(t, execute(t, out, "localhost", "Acme", "Seattle", "WA", "--key-type", "ecdsa", "--expiry-days", "365"))

	cert, err := certgen.VerifyFiles(out, "")
	require.NoError(t, err)

	assert.Equal(t, "localhost", cert.Subject.CommonName)
	assert.Equal(t, []string{"Acme"}, cert.Subject.Organization)
	assert.Equal(t, []string{"Seattle"}, cert.Subject.Locality)
	assert.Equal(t, []string{"WA"}, cert.Subject.Province)
	assert.Equal(t, []string{"XX"}, cert.Subject.Country)
	assert.Equal(t, 365*24*time.Hour, cert.NotAfter.Sub(cert.NotBefore))
	assert.Equal(t, []string{"localhost"}, cert.DNSNames)

	_, isECDSA := cert.PublicKey.(*ecdsa.PublicKey)
	assert.True(t, isECDSA)

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "-----BEGIN CERTIFICATE-----"))
}

func TestCreate_SeparateKeyRSA(t *testing.T) {
	noTerminal(t)

	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")

	require.NoError(t, execute(t, certPath, "127.0.0.1", "--key-file", keyPath, "--key-size", "2048", "--country", "US"))

	cert, err := certgen.VerifyFiles(certPath, keyPath)
	require.NoError(t, err)

	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	require.True(t, ok)
	assert.Equal(t, 2048, pub.N.BitLen())
	assert.Equal(t, []string{"US"}, cert.Subject.Country)
	require.Len(t, cert.IPAddresses, 1)
	assert.Equal(t, "127.0.0.1", cert.IPAddresses[0].String())
}

func TestCreate_RefusesOverwrite(t *testing.T) {
	noTerminal(t)

	out := filepath.Join(t.TempDir(), "server.pem")
	require.NoError(t, os.WriteFile(out, []byte("keep me"), 0o600))

	err := execute(t, out, "localhost", "--key-type", "ecdsa")
	require.ErrorIs(t, err, certgen.ErrOutputExists)

	data, readErr := os.ReadFile(out)
	require.NoError(t, readErr)
	assert.Equal(t, "keep me", string(data))

	require.NoError(t, execute(t, out, "localhost", "--key-type", "ecdsa", "--force"))

	_, err = certgen.VerifyFiles(out, "")
	require.NoError(t, err)
}

func TestCreate_InvalidParameters(t *testing.T) {
	noTerminal(t)

	out := filepath.Join(t.TempDir(), "server.pem")

	err := execute(t, out, "localhost", "--expiry-days", "0", "--key-type", "ecdsa")
	require.ErrorIs(t, err, certgen.ErrInvalidParameter)

	err = execute(t, out, "localhost", "--key-type", "dsa")
	require.ErrorIs(t, err, certgen.ErrInvalidParameter)

	assert.NoFileExists(t, out)
}

func TestCreate_UnwritablePath(t *testing.T) {
	noTerminal(t)

	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	err := execute(t, filepath.Join(blocker, "server.pem"), "localhost", "--key-type", "ecdsa")
	require.ErrorIs(t, err, certgen.ErrFilesystem)
}

func TestCreate_SubjectOverridesFields(t *testing.T) {
	noTerminal(t)

	out := filepath.Join(t.TempDir(), "server.pem")

	require.NoError(t, execute(t, out, "dev.example.com", "Ignored Co",
		"--subject", "/C=DE/O=Example GmbH", "--key-type", "ecdsa"))

	cert, err := certgen.VerifyFiles(out, "")
	require.NoError(t, err)

	assert.Equal(t, "dev.example.com", cert.Subject.CommonName)
	assert.Equal(t, []string{"Example GmbH"}, cert.Subject.Organization)
	assert.Equal(t, []string{"DE"}, cert.Subject.Country)
}

func TestCreate_ArgCount(t *testing.T) {
	err := execute(t, "only-output")
	require.Error(t, err)
}

func TestBuildRequest_ConfigDefaults(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.Flags().Parse([]string{"--company", "Flag Co"}))

	defaults := config.DefaultConfig().Cert
	defaults.ExpiryDays = 30
	defaults.KeyType = "ECDSA"
	defaults.KeySize = 384
	defaults.Country = "FI"

	req, err := buildRequest(cmd, []string{"out.pem", "host", "Arg Co", "Espoo"}, defaults)
	require.NoError(t, err)

	assert.Equal(t, 30, req.ValidityDays)
	assert.Equal(t, certgen.KeyECDSA, req.KeyType)
	assert.Equal(t, 384, req.KeySize)
	assert.Equal(t, []string{"Flag Co"}, req.Subject.Organization, "flag wins over positional")
	assert.Equal(t, []string{"Espoo"}, req.Subject.Locality)
	assert.Equal(t, []string{"FI"}, req.Subject.Country)
	assert.Empty(t, req.Subject.Province)
}

func TestConfirmOverwrite(t *testing.T) {
	var prompt bytes.Buffer

	confirm := confirmOverwrite(strings.NewReader("y\nno\n"), &prompt)

	ok, err := confirm("a.pem")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, prompt.String(), "a.pem already exists. Overwrite? [y/N]")

	ok, err = confirm("b.pem")
	require.NoError(t, err)
	assert.False(t, ok)

	// EOF answers no.
	ok, err = confirm("c.pem")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreate_LogsPerConfig(t *testing.T) {
	noTerminal(t)

	dir := t.TempDir()
	logPath := filepath.Join(dir, "cert.log")
	cfgPath := filepath.Join(dir, "config.toml")

	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`
[logging]
log_level = "debug"
log_format = "json"
log_file = %q

[cert]
key_type = "ecdsa"
key_size = 256
`, logPath)), 0o600))

	out := filepath.Join(dir, "server.pem")

	cmd := newRootCmd()
	cmd.SetArgs([]string{out, "localhost", "--config", cfgPath})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"generating certificate"`)
	assert.Contains(t, string(data), `"msg":"certificate written"`)
}
