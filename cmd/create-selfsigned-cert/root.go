package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/dbrownell/devenv-utilities/internal/certgen"
	"github.com/dbrownell/devenv-utilities/internal/config"
	"github.com/dbrownell/devenv-utilities/internal/logging"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	flagConfigPath string
	flagCompany    string
	flagCity       string
	flagState      string
	flagCountry    string
	flagSubject    string
	flagExpiryDays int
	flagKeyType    string
	flagKeySize    int
	flagKeyFile    string
	flagForce      bool
	flagVerbose    bool
	flagQuiet      bool
)

// stdinIsTerminal gates the overwrite prompt. Tests override it.
var stdinIsTerminal = func() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-selfsigned-cert <output-file> <hostname> [company] [city] [state]",
		Short: "Create a private key and self-signed certificate",
		Long: `Generate a private key and a self-signed certificate for hostname. The
certificate and key are written to output-file (certificate first) unless
--key-file names a separate key file. Existing files are only replaced with
--force or after confirming at the prompt.`,
		Version:       version,
		Args:          cobra.RangeArgs(2, 5), //nolint:mnd // output file, hostname, and three optional subject parts
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          runCreate,
	}

	defaults := config.DefaultConfig().Cert

	cmd.Flags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.Flags().StringVar(&flagCompany, "company", "", "organization (O)")
	cmd.Flags().StringVar(&flagCity, "city", "", "locality (L)")
	cmd.Flags().StringVar(&flagState, "state", "", "state or province (ST)")
	cmd.Flags().StringVar(&flagCountry, "country", defaults.Country, "two-letter country code (C)")
	cmd.Flags().StringVar(&flagSubject, "subject", "", `full subject, "CN=host,O=Org" or "/C=US/CN=host"; overrides the fields above`)
	cmd.Flags().IntVar(&flagExpiryDays, "expiry-days", defaults.ExpiryDays, "days until the certificate expires")
	cmd.Flags().StringVar(&flagKeyType, "key-type", defaults.KeyType, "key algorithm: rsa or ecdsa")
	cmd.Flags().IntVar(&flagKeySize, "key-size", defaults.KeySize, "key size in bits (rsa) or curve size (ecdsa: 256, 384, 521)")
	cmd.Flags().StringVar(&flagKeyFile, "key-file", "", "write the private key to this file instead of output-file")
	cmd.Flags().BoolVar(&flagForce, "force", false, "replace existing files without asking")
	cmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.Flags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	return cmd
}

func runCreate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Resolve(config.ReadEnvOverrides(), config.CLIOverrides{ConfigPath: flagConfigPath})
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := buildLogger(cfg)

	req, err := buildRequest(cmd, args, cfg.Cert)
	if err != nil {
		return err
	}

	outputFile := args[0]

	logger.Debug("generating certificate",
		slog.String("hostname", req.Hostname),
		slog.String("key_type", req.KeyType),
		slog.Int("key_size", req.KeySize),
		slog.Int("days", req.ValidityDays),
	)

	artifact, err := certgen.Generator{}.Generate(req)
	if err != nil {
		return err
	}

	opts := certgen.WriteOptions{
		CertPath: outputFile,
		KeyPath:  flagKeyFile,
		Force:    flagForce,
	}

	if stdinIsTerminal() {
		opts.Confirm = confirmOverwrite(os.Stdin, os.Stderr)
	}

	if err := certgen.Write(artifact, opts); err != nil {
		return err
	}

	cert, err := certgen.VerifyFiles(outputFile, flagKeyFile)
	if err != nil {
		return err
	}

	logger.Debug("certificate written",
		slog.String("path", outputFile),
		slog.String("serial", cert.SerialNumber.Text(16)), //nolint:mnd // hex
		slog.Time("not_after", cert.NotAfter),
	)

	if !flagQuiet {
		fmt.Fprintf(os.Stderr, "Wrote %s for %q, valid until %s.\n",
			describeOutputs(outputFile, flagKeyFile), cert.Subject.CommonName, cert.NotAfter.Format("2006-01-02"))
	}

	return nil
}

// buildRequest merges config defaults, positional arguments, and flags.
// Flags win over positional arguments; --subject wins over both.
func buildRequest(cmd *cobra.Command, args []string, defaults config.CertConfig) (certgen.Request, error) {
	hostname := args[1]
	company, city, state := optionalArg(args, 2), optionalArg(args, 3), optionalArg(args, 4) //nolint:mnd // positional slots

	flags := cmd.Flags()

	if flags.Changed("company") {
		company = flagCompany
	}

	if flags.Changed("city") {
		city = flagCity
	}

	if flags.Changed("state") {
		state = flagState
	}

	country := defaults.Country
	if flags.Changed("country") {
		country = flagCountry
	}

	req := certgen.NewRequest(hostname, company, city, state, country)
	req.ValidityDays = defaults.ExpiryDays
	req.KeyType = strings.ToLower(defaults.KeyType)
	req.KeySize = defaults.KeySize

	if flags.Changed("expiry-days") {
		req.ValidityDays = flagExpiryDays
	}

	if flags.Changed("key-type") {
		req.KeyType = strings.ToLower(flagKeyType)

		// An ecdsa key with the rsa default size would never validate.
		if req.KeyType == certgen.KeyECDSA && !flags.Changed("key-size") {
			req.KeySize = 256 //nolint:mnd // P-256
		}
	}

	if flags.Changed("key-size") {
		req.KeySize = flagKeySize
	}

	if flagSubject != "" {
		subject, err := certgen.ParseSubject(flagSubject)
		if err != nil {
			return certgen.Request{}, err
		}

		if subject.CommonName == "" {
			subject.CommonName = hostname
		}

		req.Subject = subject
	}

	return req, req.Validate()
}

func optionalArg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}

	return ""
}

func describeOutputs(certPath, keyPath string) string {
	if keyPath == "" {
		return "certificate and key to " + certPath
	}

	return fmt.Sprintf("certificate to %s and key to %s", certPath, keyPath)
}

// confirmOverwrite asks on out and reads a y/N answer from in.
func confirmOverwrite(in io.Reader, out io.Writer) func(path string) (bool, error) {
	reader := bufio.NewReader(in)

	return func(path string) (bool, error) {
		fmt.Fprintf(out, "%s already exists. Overwrite? [y/N] ", path)

		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, err
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}

// buildLogger honors the [logging] config section. Progress is logged at
// debug; the summary line is printed separately.
func buildLogger(cfg *config.Config) *slog.Logger {
	return logging.New(cfg.Logging, logging.Flags{Verbose: flagVerbose, Quiet: flagQuiet}, os.Stderr)
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
