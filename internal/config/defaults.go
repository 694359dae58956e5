package config

// Default values for configuration options. These are "layer 0" of the
// override chain.
const (
	defaultPicturesSubdir    = "My Pictures"
	defaultVideosSubdir      = "My Videos"
	defaultOutputDirTemplate = "{year}/{month:02d}/{year}.{month:02d}.{day:02d} - {name}"
	defaultParallelDownloads = 1
	defaultMaxRetries        = 3
	defaultBandwidthLimit    = "0"
	defaultConnectTimeout    = "10s"
	defaultDataTimeout       = "60s"
	defaultAuthTimeout       = "120s"
	defaultLogLevel          = "info"
	defaultLogFormat         = "auto"
	defaultExpiryDays        = 3650
	defaultKeyType           = "rsa"
	defaultKeySize           = 4096
	defaultCountry           = "XX"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		Backup:    defaultBackupConfig(),
		Transfers: defaultTransfersConfig(),
		Network:   defaultNetworkConfig(),
		Logging:   defaultLoggingConfig(),
		Cert:      defaultCertConfig(),
	}
}

func defaultBackupConfig() BackupConfig {
	return BackupConfig{
		PicturesSubdir:    defaultPicturesSubdir,
		VideosSubdir:      defaultVideosSubdir,
		OutputDirTemplate: defaultOutputDirTemplate,
		PictureExtensions: []string{".jpg", ".jpeg", ".heic", ".png"},
		VideoExtensions:   []string{".avi", ".mp4", ".mov"},
		IgnoreExtensions:  []string{".thm"},
	}
}

func defaultTransfersConfig() TransfersConfig {
	return TransfersConfig{
		ParallelDownloads: defaultParallelDownloads,
		MaxRetries:        defaultMaxRetries,
		BandwidthLimit:    defaultBandwidthLimit,
		VerifyHashes:      true,
	}
}

func defaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		ConnectTimeout: defaultConnectTimeout,
		DataTimeout:    defaultDataTimeout,
		AuthTimeout:    defaultAuthTimeout,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}

func defaultCertConfig() CertConfig {
	return CertConfig{
		ExpiryDays: defaultExpiryDays,
		KeyType:    defaultKeyType,
		KeySize:    defaultKeySize,
		Country:    defaultCountry,
	}
}
