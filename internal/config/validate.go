package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Validation range constants.
const (
	minWorkers        = 1
	maxWorkers        = 32
	maxRetries        = 10
	minExpiryDays     = 1
	minRSAKeySize     = 2048
	maxRSAKeySize     = 16384
	minConnectTimeout = 1 * time.Second
	minDataTimeout    = 5 * time.Second
	minAuthTimeout    = 10 * time.Second
)

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"auto", "text", "json"}
	validKeyTypes   = []string{"rsa", "ecdsa"}
	validECDSASizes = []int{256, 384, 521}
)

// Validate checks all configuration values and returns all errors found,
// so users can fix every issue in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateBackup(&cfg.Backup)...)
	errs = append(errs, validateTransfers(&cfg.Transfers)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateCert(&cfg.Cert)...)

	return errors.Join(errs...)
}

func validateBackup(b *BackupConfig) []error {
	var errs []error

	if b.PicturesSubdir == "" && b.VideosSubdir == "" {
		errs = append(errs, errors.New("backup: pictures_subdir and videos_subdir cannot both be empty"))
	}

	if strings.TrimSpace(b.OutputDirTemplate) == "" {
		errs = append(errs, errors.New("backup.output_dir_template: must not be empty"))
	}

	for _, list := range []struct {
		key  string
		exts []string
	}{
		{"picture_extensions", b.PictureExtensions},
		{"video_extensions", b.VideoExtensions},
		{"ignore_extensions", b.IgnoreExtensions},
	} {
		for _, ext := range list.exts {
			if !strings.HasPrefix(ext, ".") {
				errs = append(errs, fmt.Errorf("backup.%s: %q must start with '.'", list.key, ext))
			}
		}
	}

	return errs
}

func validateTransfers(t *TransfersConfig) []error {
	var errs []error

	if t.ParallelDownloads < minWorkers || t.ParallelDownloads > maxWorkers {
		errs = append(errs, fmt.Errorf("transfers.parallel_downloads: must be between %d and %d, got %d",
			minWorkers, maxWorkers, t.ParallelDownloads))
	}

	if t.MaxRetries < 0 || t.MaxRetries > maxRetries {
		errs = append(errs, fmt.Errorf("transfers.max_retries: must be between 0 and %d, got %d",
			maxRetries, t.MaxRetries))
	}

	if _, err := ParseRate(t.BandwidthLimit); err != nil {
		errs = append(errs, fmt.Errorf("transfers.bandwidth_limit: %w", err))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDuration("network.connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDuration("network.data_timeout", n.DataTimeout, minDataTimeout)...)
	errs = append(errs, validateDuration("network.auth_timeout", n.AuthTimeout, minAuthTimeout)...)

	return errs
}

func validateDuration(key, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", key, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be at least %s, got %s", key, minimum, d)}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !slices.Contains(validLogLevels, l.LogLevel) {
		errs = append(errs, fmt.Errorf("logging.log_level: must be one of %s, got %q",
			strings.Join(validLogLevels, ", "), l.LogLevel))
	}

	if !slices.Contains(validLogFormats, l.LogFormat) {
		errs = append(errs, fmt.Errorf("logging.log_format: must be one of %s, got %q",
			strings.Join(validLogFormats, ", "), l.LogFormat))
	}

	return errs
}

func validateCert(c *CertConfig) []error {
	var errs []error

	if c.ExpiryDays < minExpiryDays {
		errs = append(errs, fmt.Errorf("cert.expiry_days: must be at least %d, got %d", minExpiryDays, c.ExpiryDays))
	}

	switch c.KeyType {
	case "rsa":
		if c.KeySize < minRSAKeySize || c.KeySize > maxRSAKeySize {
			errs = append(errs, fmt.Errorf("cert.key_size: rsa keys must be between %d and %d bits, got %d",
				minRSAKeySize, maxRSAKeySize, c.KeySize))
		}
	case "ecdsa":
		if !slices.Contains(validECDSASizes, c.KeySize) {
			errs = append(errs, fmt.Errorf("cert.key_size: ecdsa keys must be 256, 384, or 521 bits, got %d", c.KeySize))
		}
	default:
		errs = append(errs, fmt.Errorf("cert.key_type: must be one of %s, got %q",
			strings.Join(validKeyTypes, ", "), c.KeyType))
	}

	if len(c.Country) != 2 {
		errs = append(errs, fmt.Errorf("cert.country: must be a two-letter code, got %q", c.Country))
	}

	return errs
}

// Durations returns the parsed network timeouts. Call only on a validated Config.
func (n NetworkConfig) Durations() (connect, data, auth time.Duration) {
	connect, _ = time.ParseDuration(n.ConnectTimeout)
	data, _ = time.ParseDuration(n.DataTimeout)
	auth, _ = time.ParseDuration(n.AuthTimeout)

	return connect, data, auth
}
