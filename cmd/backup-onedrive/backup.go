package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/term"

	"github.com/dbrownell/devenv-utilities/internal/archive"
	"github.com/dbrownell/devenv-utilities/internal/config"
	"github.com/dbrownell/devenv-utilities/internal/graph"
)

// Backup flags. The config-backed ones only apply when Changed.
var (
	flagExpectedEmail  string
	flagRemoteFolder   string
	flagPicturesSubdir string
	flagVideosSubdir   string
	flagOutputTemplate string
	flagForceOAuth     bool
	flagDryRun         bool
	flagWorkers        int
	flagMaxRetries     int
	flagBandwidthLimit string
)

const keepAlive = 30 * time.Second

// Test seams for the interactive secret prompt.
var (
	readPassword    = term.ReadPassword
	stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup <name> <expected-username> <output-dir>",
		Short: "Download new pictures and videos into output-dir",
		Long: `Sign in to OneDrive, check that the account belongs to expected-username,
and download every picture and video under the remote folder that is not
already archived. Files land in <output-dir>/<pictures|videos subdir>/<template>.

The OAuth application is read from the environment:
  ` + config.EnvRedirectURI + `
  ` + config.EnvClientID + `
  ` + config.EnvClientSecret + `
  ` + config.EnvSSLPEMFile + ` (https redirect URIs only)`,
		Args: cobra.ExactArgs(3),
		RunE: runBackup,
	}

	defaults := config.DefaultConfig()

	cmd.Flags().StringVar(&flagExpectedEmail, "expected-email", "", "fail unless the account email matches")
	cmd.Flags().StringVar(&flagRemoteFolder, "remote-folder", "", "remote folder relative to the drive root (default: Camera Roll)")
	cmd.Flags().StringVar(&flagPicturesSubdir, "pictures-subdir", defaults.Backup.PicturesSubdir, "subdirectory for pictures")
	cmd.Flags().StringVar(&flagVideosSubdir, "videos-subdir", defaults.Backup.VideosSubdir, "subdirectory for videos")
	cmd.Flags().StringVar(&flagOutputTemplate, "output-dir-template", defaults.Backup.OutputDirTemplate, "folder layout below the subdirectory")
	cmd.Flags().BoolVar(&flagForceOAuth, "force-oauth", false, "ignore the cached token and sign in again")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "plan the backup without downloading")
	cmd.Flags().IntVar(&flagWorkers, "workers", defaults.Transfers.ParallelDownloads, "parallel downloads")
	cmd.Flags().IntVar(&flagMaxRetries, "max-retries", defaults.Transfers.MaxRetries, "extra attempts per item after a network failure")
	cmd.Flags().StringVar(&flagBandwidthLimit, "bandwidth-limit", defaults.Transfers.BandwidthLimit, "download rate limit, e.g. 5MB/s (0 = unlimited)")

	return cmd
}

func runBackup(cmd *cobra.Command, args []string) error {
	name, username, outputDir := args[0], args[1], args[2]

	logger := buildLogger()
	ctx := shutdownContext(cmd.Context(), logger)

	creds, err := resolveCredentials(config.ReadEnvOverrides())
	if err != nil {
		return err
	}

	httpClient := newHTTPClient(resolvedCfg.Network)

	// The oauth2 package picks its HTTP client up from the context.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)

	tokens, err := authenticate(ctx, creds, name, flagForceOAuth, logger)
	if err != nil {
		return err
	}

	statePath := config.StatePath(resolvedCfg.Backup.StateDir, name)

	unlock, err := lockArchive(statePath)
	if err != nil {
		return err
	}
	defer unlock()

	store, err := archive.OpenStore(ctx, statePath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	limiter, err := archive.NewBandwidthLimiter(resolvedCfg.Transfers.BandwidthLimit, logger)
	if err != nil {
		return err
	}

	client := graph.NewClient(graph.DefaultBaseURL, httpClient, tokens, logger, resolvedCfg.Network.UserAgent)

	_, dataTimeout, _ := resolvedCfg.Network.Durations()
	client.SetDataTimeout(dataTimeout)

	rep, err := archive.NewArchiver(client, store, logger).Run(ctx, archive.Options{
		Name:             name,
		ExpectedUsername: username,
		ExpectedEmail:    flagExpectedEmail,
		OutputDir:        outputDir,
		DryRun:           flagDryRun,
		Backup:           resolvedCfg.Backup,
		Transfers: archive.TransferOptions{
			Workers:      resolvedCfg.Transfers.ParallelDownloads,
			MaxRetries:   resolvedCfg.Transfers.MaxRetries,
			VerifyHashes: resolvedCfg.Transfers.VerifyHashes,
			Limiter:      limiter,
		},
	})

	if rep != nil {
		if printErr := printBackupReport(rep); printErr != nil && err == nil {
			err = printErr
		}
	}

	if errors.Is(err, graph.ErrUnauthorized) {
		return fmt.Errorf("%w (run again with --force-oauth to sign in)", err)
	}

	return err
}

func printBackupReport(rep *archive.Report) error {
	if flagJSON {
		return printJSON(os.Stdout, rep)
	}

	if !flagQuiet {
		printReportText(os.Stdout, rep)
	}

	return nil
}

// resolveCredentials reads the OAuth application settings from env. A
// missing client secret is prompted for when stdin is a terminal.
func resolveCredentials(env config.EnvOverrides) (config.Credentials, error) {
	creds, err := config.CredentialsFromEnv(env)
	if err != nil {
		return config.Credentials{}, err
	}

	if creds.ClientSecret == "" && stdinIsTerminal() {
		fmt.Fprint(os.Stderr, "Client secret: ")
		secret, readErr := readPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)

		if readErr != nil {
			return config.Credentials{}, fmt.Errorf("reading client secret: %w", readErr)
		}

		creds.ClientSecret = strings.TrimSpace(string(secret))
	}

	if err := creds.Check(); err != nil {
		return config.Credentials{}, err
	}

	return creds, nil
}

// authenticate returns the cached token for name, or runs the browser flow
// when there is none or force is set.
func authenticate(
	ctx context.Context, creds config.Credentials, name string, force bool, logger *slog.Logger,
) (graph.TokenSource, error) {
	tokenPath := config.TokenPath(name)
	if tokenPath == "" {
		return nil, errors.New("cannot determine token cache location")
	}

	_, _, authTimeout := resolvedCfg.Network.Durations()

	ac := graph.AuthConfig{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURI,
		PEMFile:      creds.SSLPEMFile,
		TokenPath:    tokenPath,
		Timeout:      authTimeout,
	}

	if !force {
		ts, err := graph.TokenSourceFromPath(ctx, ac, logger)
		if err == nil {
			return ts, nil
		}

		if !errors.Is(err, graph.ErrNotLoggedIn) {
			return nil, err
		}
	}

	statusf("Waiting for sign-in in your browser (up to %s)...\n", authTimeout)

	return graph.LoginWithBrowser(ctx, ac, browser.OpenURL, logger)
}

// newHTTPClient applies the network timeouts. There is no overall request
// timeout because downloads of large videos legitimately take minutes; stalled
// bodies are caught by the Graph client's data timeout instead.
func newHTTPClient(n config.NetworkConfig) *http.Client {
	connect, data, _ := n.Durations()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connect, KeepAlive: keepAlive}).DialContext
	transport.TLSHandshakeTimeout = connect
	transport.ResponseHeaderTimeout = data

	return &http.Client{Transport: transport}
}
