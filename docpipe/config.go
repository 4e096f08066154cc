package docpipe

import "log/slog"

// Config configures the extraction pipeline.
type Config struct {
	// MaxFileSize is the maximum file size to process (default: 16 MiB,
	// matching the upload cap).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 16 << 20
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
