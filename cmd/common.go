package cmd

import (
	"github.com/nomasters/flatstore"
	"github.com/nomasters/flatstore/logger"
)

func newLogger() logger.Logger {
	if quiet {
		return logger.NewNoOp()
	}
	return logger.NewWithLevel(logLevel)
}

func openStore(dir string, mode flatstore.Mode) (*flatstore.Database, error) {
	cfg := flatstore.DefaultConfig(dir)
	cfg.Mode = mode
	cfg.Logger = newLogger()
	return flatstore.Open(cfg)
}
