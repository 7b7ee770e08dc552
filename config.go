package flatstore

import "github.com/nomasters/flatstore/logger"

// Mode selects how a Database is opened.
type Mode int

const (
	// ReadWrite opens (creating if necessary) a file-backed store for both
	// appends and reads, taking the directory lock.
	ReadWrite Mode = iota

	// ReadOnly opens an existing file-backed store for reads only. Append
	// and AppendBatch return ErrReadOnly. No directory lock is taken, so
	// any number of readers may share a directory with the one ReadWrite
	// writer.
	ReadOnly
)

// Config holds the options accepted by Open. The zero value is not usable;
// build one with DefaultConfig and override fields as needed.
type Config struct {
	// Dir is the directory holding the data and index files. Created if it
	// does not exist. Ignored by OpenInMemory.
	Dir string

	// Mode selects read-write or read-only access.
	Mode Mode

	// Logger receives structured diagnostics (the recovery summary logged
	// by Open). Defaults to a no-op logger.
	Logger logger.Logger
}

// DefaultConfig returns a Config for a ReadWrite store rooted at dir, with
// a no-op logger.
func DefaultConfig(dir string) *Config {
	return &Config{
		Dir:    dir,
		Mode:   ReadWrite,
		Logger: logger.NewNoOp(),
	}
}

func (c *Config) logger() logger.Logger {
	if c == nil || c.Logger == nil {
		return logger.NewNoOp()
	}
	return c.Logger
}
