// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for the devenv utilities. Settings follow
// a four-layer override chain: defaults -> config file -> environment -> CLI
// flags. Each tool reads only the sections it needs.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Backup    BackupConfig    `toml:"backup"`
	Transfers TransfersConfig `toml:"transfers"`
	Network   NetworkConfig   `toml:"network"`
	Logging   LoggingConfig   `toml:"logging"`
	Cert      CertConfig      `toml:"cert"`
}

// BackupConfig controls which remote items the archiver looks at and where
// they land on disk. OutputDirTemplate supports {name}, {year}, {month},
// {day} and the zero-padded {month:02d} and {day:02d} placeholders.
type BackupConfig struct {
	RemoteFolder      string   `toml:"remote_folder"`
	PicturesSubdir    string   `toml:"pictures_subdir"`
	VideosSubdir      string   `toml:"videos_subdir"`
	OutputDirTemplate string   `toml:"output_dir_template"`
	PictureExtensions []string `toml:"picture_extensions"`
	VideoExtensions   []string `toml:"video_extensions"`
	IgnoreExtensions  []string `toml:"ignore_extensions"`
	StateDir          string   `toml:"state_dir"`
}

// TransfersConfig controls download parallelism, retries, and bandwidth.
type TransfersConfig struct {
	ParallelDownloads int    `toml:"parallel_downloads"`
	MaxRetries        int    `toml:"max_retries"`
	BandwidthLimit    string `toml:"bandwidth_limit"`
	VerifyHashes      bool   `toml:"verify_hashes"`
}

// NetworkConfig controls HTTP client behavior and the OAuth callback wait.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	AuthTimeout    string `toml:"auth_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// LoggingConfig controls log level, format, and destination.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	LogFile   string `toml:"log_file"`
}

// CertConfig holds defaults for the self-signed certificate creator.
type CertConfig struct {
	ExpiryDays int    `toml:"expiry_days"`
	KeyType    string `toml:"key_type"`
	KeySize    int    `toml:"key_size"`
	Country    string `toml:"country"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to the zero value".
type CLIOverrides struct {
	ConfigPath     string
	Workers        *int
	MaxRetries     *int
	BandwidthLimit *string
	RemoteFolder   *string
	PicturesSubdir *string
	VideosSubdir   *string
	OutputTemplate *string
}
