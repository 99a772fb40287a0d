package metrics

import (
	"codeberg.org/mutker/handheldctl/internal/config"
	"codeberg.org/mutker/handheldctl/internal/errors"
)

type Config struct {
	DBPath       string
	Enabled      bool
	BatchSize    int
	BatchTimeout int
}

// FromConfig copies the metrics section of the application config.
func FromConfig(c config.Metrics) Config {
	return Config{
		DBPath:       c.DBPath,
		Enabled:      c.Enabled,
		BatchSize:    c.BatchSize,
		BatchTimeout: c.BatchTimeout,
	}
}

func (c Config) Validate() error {
	// Only validate DBPath if metrics is enabled
	if c.Enabled && c.DBPath == "" {
		return errors.New().New(ErrInvalidDBPath)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
