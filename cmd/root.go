package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "flatstore",
	Short: "flatstore is a fast, reindexable, append-only record store",
	Long:  `flatstore is a fast, reindexable, append-only, on-disk record store.`,
}

var (
	logLevel string
	quiet    bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", getLogLevel(), "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Disable logging output")
}

// Execute is the primary entry point for the flatstore CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func getAddr() string {
	if addr := os.Getenv("FLATSTORE_ADDR"); addr != "" {
		return addr
	}
	return ":1337"
}

func getDataDir() string {
	if dir := os.Getenv("FLATSTORE_DATA_DIR"); dir != "" {
		return dir
	}
	return "./data"
}

func getLogLevel() string {
	if level := os.Getenv("FLATSTORE_LOG_LEVEL"); level != "" {
		return level
	}
	return "info"
}
